package models

import "time"

// ExpirySkew is subtracted from an access token's lifetime so it is replaced before the provider rejects it.
const ExpirySkew = 60 * time.Second

// DefaultExpiresIn is used when the token endpoint omits expires_in.
const DefaultExpiresIn = 3600

// AccessToken is a short-lived bearer credential. It is never persisted.
type AccessToken struct {
	Value     string
	ExpiresAt time.Time
}

// NewAccessToken builds an [AccessToken] that expires expiresIn seconds after now.
func NewAccessToken(value string, expiresIn int, now time.Time) AccessToken {
	if expiresIn <= 0 {
		expiresIn = DefaultExpiresIn
	}
	return AccessToken{Value: value, ExpiresAt: now.Add(time.Duration(expiresIn) * time.Second)}
}

// Valid reports whether the token can still be used at now.
func (t AccessToken) Valid(now time.Time) bool {
	return t.Value != "" && now.Before(t.ExpiresAt.Add(-ExpirySkew))
}

// TokenSet is the token endpoint's answer to a code or refresh grant.
//
// An empty RefreshToken means the provider did not rotate it and the previous one stays valid.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"-"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope,omitempty"`
}
