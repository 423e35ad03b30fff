package testing

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// AlbumFixture is a saved album served by [SpotifyStub].
type AlbumFixture struct {
	ID       string
	Name     string
	Artist   string
	ImageURL string
}

// SpotifyStub fakes the accounts service and the Web API endpoints used by the library fetcher.
//
// Token endpoint: POST /api/token. Web API: GET /v1/me and GET /v1/me/albums.
// Access tokens are minted as access-1, access-2, ... and refresh tokens as refresh-1, ...
type SpotifyStub struct {
	Server *httptest.Server

	ClientID     string
	ClientSecret string

	mu sync.Mutex
	// Albums are served in order across pages of PageSize (default 50).
	Albums   []AlbumFixture
	PageSize int
	// Codes maps authorization codes to the refresh token they yield.
	Codes map[string]string
	// RefreshTokens lists the refresh tokens the token endpoint accepts.
	RefreshTokens map[string]bool
	// Rotate makes every refresh grant return a new refresh token.
	Rotate bool
	// OmitExpiresIn drops expires_in from token responses.
	OmitExpiresIn bool
	// TokenStatus forces the token endpoint to answer with this status.
	TokenStatus int
	// AlbumsStatus and ProfileStatus force the Web API endpoints to answer with a status.
	AlbumsStatus  int
	ProfileStatus int
	// RevokeAfterPages invalidates an access token after it has fetched that many album pages.
	RevokeAfterPages map[string]int

	accessTokens map[string]int
	minted       int
	rotated      int
	TokenForms   []url.Values
	AlbumHits    int
	ProfileHits  int
	// PageSizes records how many albums each successful album page carried.
	PageSizes []int
}

// NewSpotifyStub starts a stub server that is closed when the test ends.
func NewSpotifyStub(t *testing.T) *SpotifyStub {
	t.Helper()
	s := &SpotifyStub{
		ClientID:         "test-client",
		ClientSecret:     "test-secret",
		PageSize:         50,
		Codes:            map[string]string{},
		RefreshTokens:    map[string]bool{},
		RevokeAfterPages: map[string]int{},
		accessTokens:     map[string]int{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/token", s.handleToken)
	mux.HandleFunc("/v1/me", s.handleProfile)
	mux.HandleFunc("/v1/me/albums", s.handleAlbums)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Server.Close)
	return s
}

// TokenURL returns the stub token endpoint.
func (s *SpotifyStub) TokenURL() string { return s.Server.URL + "/api/token" }

// AuthURL returns a stub authorize endpoint.
func (s *SpotifyStub) AuthURL() string { return s.Server.URL + "/authorize" }

// APIURL returns the stub Web API base URL.
func (s *SpotifyStub) APIURL() string { return s.Server.URL + "/v1" }

// GrantAccessToken makes token valid for the Web API.
func (s *SpotifyStub) GrantAccessToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessTokens[token] = 0
}

// AddAlbums appends n generated albums with IDs album-<offset+i>.
func (s *SpotifyStub) AddAlbums(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := len(s.Albums)
	for i := range n {
		id := fmt.Sprintf("album-%d", start+i)
		s.Albums = append(s.Albums, AlbumFixture{
			ID:       id,
			Name:     "Album " + strconv.Itoa(start+i),
			Artist:   "Artist " + strconv.Itoa((start+i)%7),
			ImageURL: s.Server.URL + "/img/" + id + ".png",
		})
	}
}

func (s *SpotifyStub) mintLocked() string {
	s.minted++
	tok := "access-" + strconv.Itoa(s.minted)
	s.accessTokens[tok] = 0
	return tok
}

func (s *SpotifyStub) handleToken(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}
	s.TokenForms = append(s.TokenForms, r.PostForm)

	if s.TokenStatus != 0 {
		writeJSON(w, s.TokenStatus, map[string]string{"error": "server_error"})
		return
	}

	id, secret, ok := r.BasicAuth()
	if !ok || id != s.ClientID || secret != s.ClientSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}

	resp := map[string]any{"token_type": "Bearer", "scope": "user-library-read user-read-private"}
	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		refresh, ok := s.Codes[r.PostForm.Get("code")]
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "Invalid authorization code"})
			return
		}
		delete(s.Codes, r.PostForm.Get("code"))
		s.RefreshTokens[refresh] = true
		resp["refresh_token"] = refresh
	case "refresh_token":
		rt := r.PostForm.Get("refresh_token")
		if !s.RefreshTokens[rt] {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "Refresh token revoked"})
			return
		}
		if s.Rotate {
			s.rotated++
			next := "refresh-" + strconv.Itoa(s.rotated)
			delete(s.RefreshTokens, rt)
			s.RefreshTokens[next] = true
			resp["refresh_token"] = next
		}
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		return
	}

	resp["access_token"] = s.mintLocked()
	if !s.OmitExpiresIn {
		resp["expires_in"] = 3600
	}
	writeJSON(w, http.StatusOK, resp)
}

// authorize returns the bearer token and whether it may be used, counting album pages when pages is true.
func (s *SpotifyStub) authorize(r *http.Request, pages bool) bool {
	tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	used, ok := s.accessTokens[tok]
	if !ok {
		return false
	}
	if limit, set := s.RevokeAfterPages[tok]; set && pages && used >= limit {
		delete(s.accessTokens, tok)
		return false
	}
	if pages {
		s.accessTokens[tok] = used + 1
	}
	return true
}

func (s *SpotifyStub) handleProfile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ProfileHits++

	if !s.authorize(r, false) {
		writeJSON(w, http.StatusUnauthorized, apiError(http.StatusUnauthorized, "The access token expired"))
		return
	}
	if s.ProfileStatus != 0 {
		writeJSON(w, s.ProfileStatus, apiError(s.ProfileStatus, "forced"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":           "user-1",
		"display_name": "Test User",
		"email":        "test@example.com",
		"country":      "US",
		"product":      "premium",
		"images":       []any{},
	})
}

func (s *SpotifyStub) handleAlbums(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AlbumHits++

	if !s.authorize(r, true) {
		writeJSON(w, http.StatusUnauthorized, apiError(http.StatusUnauthorized, "The access token expired"))
		return
	}
	if s.AlbumsStatus != 0 {
		writeJSON(w, s.AlbumsStatus, apiError(s.AlbumsStatus, "Insufficient client scope"))
		return
	}

	limit := s.PageSize
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l < limit {
		limit = l
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	end := min(offset+limit, len(s.Albums))
	items := make([]any, 0, max(end-offset, 0))
	for _, a := range s.Albums[min(offset, len(s.Albums)):end] {
		items = append(items, map[string]any{
			"added_at": "2024-05-01T10:00:00Z",
			"album": map[string]any{
				"id":           a.ID,
				"name":         a.Name,
				"release_date": "2001-01-01",
				"total_tracks": 10,
				"uri":          "spotify:album:" + a.ID,
				"artists":      []any{map[string]any{"id": "artist-" + a.Artist, "name": a.Artist}},
				"images":       []any{map[string]any{"url": a.ImageURL, "width": 640, "height": 640}},
			},
		})
	}

	s.PageSizes = append(s.PageSizes, len(items))

	var next any
	if end < len(s.Albums) {
		next = fmt.Sprintf("%s/v1/me/albums?limit=%d&offset=%d", s.Server.URL, limit, end)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":  items,
		"total":  len(s.Albums),
		"limit":  limit,
		"offset": offset,
		"next":   next,
	})
}

func apiError(status int, message string) map[string]any {
	return map[string]any{"error": map[string]any{"status": status, "message": message}}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
