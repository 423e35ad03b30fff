package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/albumwall/internal/models"
	"github.com/desertthunder/albumwall/internal/shared"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
)

// Op values carried by [shared.ProviderError] for token endpoint failures.
const (
	OpExchangeCode = "exchange code"
	OpRefreshToken = "refresh token"
)

// TokenClientOpts overrides endpoints and transport, mostly for tests.
type TokenClientOpts struct {
	AuthURL    string
	TokenURL   string
	HTTPClient *http.Client
	Logger     *log.Logger
	// BreakerFailures is the number of consecutive failures that opens the breaker. Defaults to 5.
	BreakerFailures uint32
	// BreakerTimeout is how long the breaker stays open. Defaults to 30s.
	BreakerTimeout time.Duration
}

// TokenClient implements [TokenExchanger] against the Spotify accounts service.
//
// Calls go through a circuit breaker. Transport errors and 5xx answers count as failures;
// 4xx answers are the provider working as intended and count as successes, as do calls the
// caller cancelled.
type TokenClient struct {
	config     *oauth2.Config
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*oauth2.Token]
	logger     *log.Logger
}

// NewTokenClient builds a [TokenClient] for the configured Spotify application.
func NewTokenClient(conf shared.SpotifyConfig, opts TokenClientOpts) *TokenClient {
	if opts.AuthURL == "" {
		opts.AuthURL = spotifyAuthURL
	}
	if opts.TokenURL == "" {
		opts.TokenURL = spotifyTokenURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerTimeout == 0 {
		opts.BreakerTimeout = 30 * time.Second
	}

	logger := shared.WithLogger(opts.Logger, "component", "token")
	failures := opts.BreakerFailures

	breaker := gobreaker.NewCircuitBreaker[*oauth2.Token](gobreaker.Settings{
		Name:        "spotify-token",
		MaxRequests: 1,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			var re *oauth2.RetrieveError
			return errors.As(err, &re) && re.Response != nil && re.Response.StatusCode < http.StatusInternalServerError
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})

	return &TokenClient{
		config: &oauth2.Config{
			ClientID:     conf.ClientID,
			ClientSecret: conf.ClientSecret,
			RedirectURL:  conf.RedirectURI,
			Scopes:       conf.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   opts.AuthURL,
				TokenURL:  opts.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		httpClient: opts.HTTPClient,
		breaker:    breaker,
		logger:     logger,
	}
}

// AuthURL returns the authorization URL the user is redirected to on login.
func (c *TokenClient) AuthURL(state string) string {
	return c.config.AuthCodeURL(state)
}

// ExchangeCode trades an authorization code for a [models.TokenSet].
func (c *TokenClient) ExchangeCode(ctx context.Context, code, redirectURI string) (*models.TokenSet, error) {
	if err := c.checkConfig(redirectURI); err != nil {
		return nil, err
	}
	if code == "" {
		return nil, fmt.Errorf("%w: code", shared.ErrMissingArgument)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	tok, err := c.breaker.Execute(func() (*oauth2.Token, error) {
		return c.config.Exchange(ctx, code, oauth2.SetAuthURLParam("redirect_uri", redirectURI))
	})
	if err != nil {
		return nil, c.translate(OpExchangeCode, err)
	}

	c.logger.Debug("exchanged authorization code", "expires_in", expiresIn(tok))
	return toTokenSet(tok, ""), nil
}

// ExchangeRefreshToken trades a refresh token for a new access token.
func (c *TokenClient) ExchangeRefreshToken(ctx context.Context, refreshToken string) (*models.TokenSet, error) {
	if err := c.checkConfig(c.config.RedirectURL); err != nil {
		return nil, err
	}
	if refreshToken == "" {
		return nil, shared.ErrNoRefreshToken
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	tok, err := c.breaker.Execute(func() (*oauth2.Token, error) {
		return c.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	})
	if err != nil {
		return nil, c.translate(OpRefreshToken, err)
	}

	set := toTokenSet(tok, refreshToken)
	c.logger.Debug("refreshed access token", "rotated", set.RefreshToken != "")
	return set, nil
}

// BreakerState reports the circuit breaker state for diagnostics.
func (c *TokenClient) BreakerState() string {
	return c.breaker.State().String()
}

func (c *TokenClient) checkConfig(redirectURI string) error {
	switch {
	case c.config.ClientID == "":
		return fmt.Errorf("%w: client id is not set", shared.ErrConfig)
	case c.config.ClientSecret == "":
		return fmt.Errorf("%w: client secret is not set", shared.ErrConfig)
	case redirectURI == "":
		return fmt.Errorf("%w: redirect uri is not set", shared.ErrConfig)
	}
	return nil
}

func (c *TokenClient) translate(op string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s: %w", shared.ErrServiceUnavailable, op, err)
	}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		c.logger.Warn("token endpoint rejected request", "op", op, "status", re.Response.StatusCode, "error_code", re.ErrorCode)
		return &shared.ProviderError{Op: op, Status: re.Response.StatusCode, Body: re.Body}
	}

	return fmt.Errorf("%s: %w", op, err)
}

func toTokenSet(tok *oauth2.Token, priorRefresh string) *models.TokenSet {
	set := &models.TokenSet{AccessToken: tok.AccessToken, ExpiresIn: expiresIn(tok)}
	if tok.RefreshToken != "" && tok.RefreshToken != priorRefresh {
		set.RefreshToken = tok.RefreshToken
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		set.Scope = scope
	}
	return set
}

func expiresIn(tok *oauth2.Token) int {
	if tok.ExpiresIn > 0 {
		return int(tok.ExpiresIn)
	}
	if !tok.Expiry.IsZero() {
		if secs := int(time.Until(tok.Expiry).Round(time.Second).Seconds()); secs > 0 {
			return secs
		}
	}
	return models.DefaultExpiresIn
}
