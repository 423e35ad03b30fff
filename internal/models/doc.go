// Package models defines the domain types shared by the session server, the sync loop and the collage renderer.
//
// The package contains two categories of types:
//
// 1. Data Transfer Objects (DTOs): values fetched from the provider and passed between components
//   - [Album] : A saved album with covers, artists and optional track listing
//   - [Profile] : The signed-in user's profile
//   - [Library] : An ordered, deduplicated album list with its owner and staleness flags
//   - [AccessToken] and [TokenSet] : Credentials minted by the token endpoint
//   - [GridLayout] and [CollageArtifact] : Collage geometry and rendered output
//
// 2. Persistent Entities: database-backed models
//   - [LoginEvent] : A recorded sign-in, used for the optional analytics summary
//
// Persistent entities implement the [Model] interface and are stored through a [Repository].
package models
