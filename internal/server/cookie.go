package server

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/desertthunder/albumwall/internal/shared"
	"github.com/gorilla/securecookie"
)

const stateCookieName = "oauth_state"

// CookieCodec encodes the refresh token into the session cookie and back.
//
// By default the value is only URL-escaped. When a hash key is configured the value is signed,
// and encrypted as well when a block key is configured.
type CookieCodec struct {
	name        string
	maxAge      int
	forceSecure bool
	sc          *securecookie.SecureCookie
}

// NewCookieCodec builds a codec from the session settings.
func NewCookieCodec(conf shared.SessionConfig, forceSecure bool) *CookieCodec {
	c := &CookieCodec{name: conf.CookieName, maxAge: conf.MaxAgeSeconds, forceSecure: forceSecure}
	if c.name == "" {
		c.name = "session"
	}
	if c.maxAge <= 0 {
		c.maxAge = 30 * 24 * 60 * 60
	}
	if conf.HashKey != "" {
		var block []byte
		if conf.BlockKey != "" {
			block = []byte(conf.BlockKey)
		}
		c.sc = securecookie.New([]byte(conf.HashKey), block)
		c.sc.MaxAge(c.maxAge)
	}
	return c
}

// Name returns the cookie name.
func (c *CookieCodec) Name() string {
	return c.name
}

// Encode turns a refresh token into a cookie value.
func (c *CookieCodec) Encode(token string) (string, error) {
	if c.sc == nil {
		return url.QueryEscape(token), nil
	}
	v, err := c.sc.Encode(c.name, token)
	if err != nil {
		return "", fmt.Errorf("failed to encode session: %w", err)
	}
	return v, nil
}

// Decode turns a cookie value back into the refresh token.
func (c *CookieCodec) Decode(value string) (string, error) {
	if c.sc == nil {
		return url.QueryUnescape(value)
	}
	var token string
	if err := c.sc.Decode(c.name, value, &token); err != nil {
		return "", fmt.Errorf("failed to decode session: %w", err)
	}
	return token, nil
}

// Read returns the refresh token carried by r, if any.
func (c *CookieCodec) Read(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(c.name)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	token, err := c.Decode(cookie.Value)
	if err != nil || token == "" {
		return "", false
	}
	return token, true
}

// Write sets the session cookie to token.
func (c *CookieCodec) Write(w http.ResponseWriter, r *http.Request, token string) (string, error) {
	value, err := c.Encode(token)
	if err != nil {
		return "", err
	}
	http.SetCookie(w, c.cookie(r, value, c.maxAge))
	return value, nil
}

// Clear expires the session cookie.
func (c *CookieCodec) Clear(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, c.cookie(r, "", -1))
}

func (c *CookieCodec) cookie(r *http.Request, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     c.name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.secure(r),
		SameSite: http.SameSiteLaxMode,
	}
}

func (c *CookieCodec) setState(w http.ResponseWriter, r *http.Request, state string) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   c.secure(r),
		SameSite: http.SameSiteLaxMode,
	})
}

func (c *CookieCodec) clearState(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Path: "/", MaxAge: -1, HttpOnly: true, Secure: c.secure(r), SameSite: http.SameSiteLaxMode})
}

// secure reports whether the request arrived over HTTPS, directly or behind a proxy.
func (c *CookieCodec) secure(r *http.Request) bool {
	if c.forceSecure || r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
