// Package server is the albumwall session server.
//
// It keeps a Spotify refresh token in an HttpOnly cookie and hands short-lived access tokens to
// clients, so the client secret and the refresh token never reach the browser.
//
// # Routes
//
//	GET  /login        redirect to the Spotify consent page
//	GET  /callback     exchange the authorization code and set the session cookie
//	GET  /refresh      mint an access token from the session cookie
//	POST /logout       clear the session cookie (GET is accepted too)
//	GET  /library      all saved albums and the profile, aggregated server-side
//	GET  /test-token   scope and endpoint diagnostics for the current session
//	GET  /debug        which credentials are configured, never their values
//	POST /track-login  record a login event when analytics is enabled
//	GET  /analytics    login summary, guarded by X-Admin-Key
//	GET  /metrics      Prometheus metrics
//	GET  /healthz      liveness
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support. [BasicRouter] uses
// [http.ServeMux] internally, and middleware wraps the whole mux in the order it was added.
//
// # CLI Login
//
// [LoginWaiter] lets the CLI run the same server on localhost and block until the browser
// completes the callback. The first result wins.
package server
