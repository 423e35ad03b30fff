package services

import (
	"context"

	"github.com/desertthunder/albumwall/internal/models"
)

// TokenExchanger trades authorization codes and refresh tokens for [models.TokenSet] values.
type TokenExchanger interface {
	// AuthURL returns the provider authorize URL carrying state.
	AuthURL(state string) string

	// ExchangeCode performs the authorization-code grant.
	ExchangeCode(ctx context.Context, code, redirectURI string) (*models.TokenSet, error)

	// ExchangeRefreshToken performs the refresh-token grant.
	// An empty RefreshToken in the result means the token was not rotated.
	ExchangeRefreshToken(ctx context.Context, refreshToken string) (*models.TokenSet, error)
}

// TokenSource hands out access tokens to the library fetcher.
//
// When force is true the source must mint a new token instead of returning a cached one.
type TokenSource interface {
	AccessToken(ctx context.Context, force bool) (string, error)
}

// TokenSourceFunc adapts a function to [TokenSource].
type TokenSourceFunc func(ctx context.Context, force bool) (string, error)

func (f TokenSourceFunc) AccessToken(ctx context.Context, force bool) (string, error) {
	return f(ctx, force)
}

// StaticToken is a [TokenSource] that always returns the same token.
type StaticToken string

func (s StaticToken) AccessToken(context.Context, bool) (string, error) {
	return string(s), nil
}

// LibraryFetcher reads the saved album library and profile from the Web API.
type LibraryFetcher interface {
	// FetchAllAlbums walks every page of saved albums and returns them deduplicated in provider order.
	FetchAllAlbums(ctx context.Context, tokens TokenSource) ([]models.Album, error)

	// FetchUserProfile returns the signed-in profile or nil. It never fails.
	FetchUserProfile(ctx context.Context, accessToken string) *models.Profile
}

// Refresher mints access tokens from the session held by the caller.
type Refresher interface {
	Refresh(ctx context.Context) (models.AccessToken, error)
}
