// Package services implements the clients used to sign in and read a saved-album library.
//
// # Token exchange
//
// [TokenClient] implements [TokenExchanger] against the Spotify accounts service with the
// authorization-code and refresh-token grants. Client credentials go in the Authorization header.
// Calls pass through a circuit breaker that only counts transport errors and 5xx answers, so a
// revoked refresh token never trips it.
//
// # Library
//
// [SpotifyService] implements [LibraryFetcher]. It pages /me/albums at up to 50 albums per page,
// pacing requests with a rate limiter. A 401 on any page restarts the walk from the first page with
// a freshly minted token (see [TokenSource]); a 403 is returned at once. Profiles are best effort.
//
// # Session client
//
// [SessionClient] implements [Refresher] for processes that hold only a session cookie. It keeps the
// cookie in a jar and calls the session server's /refresh, /library and /logout endpoints.
//
// # Error Handling
//
// Non-2xx answers become [shared.ProviderError], which matches:
//   - [shared.ErrUnauthenticated] : 401
//   - [shared.ErrInsufficientScope] : 403
//   - [shared.ErrAPIRequest] : any status
//
// An open breaker is reported as [shared.ErrServiceUnavailable] and missing credentials as [shared.ErrConfig].
package services
