package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/albumwall/internal/models"
	"github.com/desertthunder/albumwall/internal/shared"
)

// SessionClientOpts configures a [SessionClient].
type SessionClientOpts struct {
	// Session is a session cookie value obtained from a previous login.
	Session    string
	CookieName string
	HTTPClient *http.Client
	Logger     *log.Logger
	Now        func() time.Time
}

// SessionClient talks to the session server on behalf of a client process.
//
// It keeps the HttpOnly session cookie in a cookie jar, so the refresh token is never read by
// the client code. Rotated cookies from /refresh are picked up by the jar automatically.
type SessionClient struct {
	base       *url.URL
	cookieName string
	httpClient *http.Client
	logger     *log.Logger
	now        func() time.Time
}

// NewSessionClient creates a client for the server at serverURL.
func NewSessionClient(serverURL string, opts SessionClientOpts) (*SessionClient, error) {
	base, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: server url %q", shared.ErrInvalidArgument, serverURL)
	}

	if opts.CookieName == "" {
		opts.CookieName = "session"
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	client := &http.Client{Timeout: 60 * time.Second}
	if opts.HTTPClient != nil {
		copied := *opts.HTTPClient
		client = &copied
	}
	client.Jar = jar

	sc := &SessionClient{
		base:       base,
		cookieName: opts.CookieName,
		httpClient: client,
		logger:     shared.WithLogger(opts.Logger, "component", "session-client"),
		now:        opts.Now,
	}
	if opts.Session != "" {
		sc.SetSession(opts.Session)
	}
	return sc, nil
}

// SetSession stores a session cookie value for subsequent requests.
func (c *SessionClient) SetSession(value string) {
	c.httpClient.Jar.SetCookies(c.base, []*http.Cookie{{Name: c.cookieName, Value: value, Path: "/"}})
}

// Session returns the current session cookie value, or "" if there is none.
func (c *SessionClient) Session() string {
	for _, cookie := range c.httpClient.Jar.Cookies(c.base) {
		if cookie.Name == c.cookieName {
			return cookie.Value
		}
	}
	return ""
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error"`
}

// Refresh asks the server for a fresh access token.
//
// A 401 from the server means the session is gone and yields [shared.ErrUnauthenticated].
func (c *SessionClient) Refresh(ctx context.Context) (models.AccessToken, error) {
	var out refreshResponse
	if err := c.do(ctx, http.MethodGet, "/refresh", "refresh", &out); err != nil {
		return models.AccessToken{}, err
	}
	if out.AccessToken == "" {
		return models.AccessToken{}, fmt.Errorf("%w: refresh response has no access token", shared.ErrAPIRequest)
	}
	return models.NewAccessToken(out.AccessToken, out.ExpiresIn, c.now()), nil
}

// Library asks the server for the aggregated library.
func (c *SessionClient) Library(ctx context.Context) (*models.Library, error) {
	var lib models.Library
	if err := c.do(ctx, http.MethodGet, "/library", "library", &lib); err != nil {
		return nil, err
	}
	return &lib, nil
}

// Logout ends the session on the server and forgets the cookie locally.
func (c *SessionClient) Logout(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/logout", "logout", nil); err != nil {
		return err
	}
	c.httpClient.Jar.SetCookies(c.base, []*http.Cookie{{Name: c.cookieName, Value: "", Path: "/", MaxAge: -1}})
	return nil
}

func (c *SessionClient) do(ctx context.Context, method, path, op string, result any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", shared.ErrAborted, ctx.Err())
		}
		return fmt.Errorf("%w: %s: %w", shared.ErrServiceUnavailable, op, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%w: %s", shared.ErrUnauthenticated, op)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Debug("session server error", "op", op, "status", resp.StatusCode)
		return &shared.ProviderError{Op: op, Status: resp.StatusCode, Body: body}
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("%w: failed to decode %s response: %w", shared.ErrAPIRequest, op, err)
	}
	return nil
}
