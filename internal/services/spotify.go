// Spotify Web API implementation of [LibraryFetcher]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/albumwall/internal/models"
	"github.com/desertthunder/albumwall/internal/shared"
	"golang.org/x/time/rate"
)

const (
	spotifyBaseURL = "https://api.spotify.com/v1"
	maxPageSize    = 50
	maxErrorBody   = 4096
)

const (
	opAlbums  = "saved albums"
	opProfile = "profile"
)

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"display_name"`
	Email       string         `json:"email"`
	Country     string         `json:"country"`
	Product     string         `json:"product"` // premium, free, etc.
	Images      []SpotifyImage `json:"images"`
}

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// SpotifyArtist represents a simplified Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// SpotifyTrack represents a simplified track inside an album.
type SpotifyTrack struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	TrackNumber int    `json:"track_number"`
	DurationMS  int    `json:"duration_ms"`
}

type albumTracks struct {
	Items []SpotifyTrack `json:"items"`
	Total int            `json:"total"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Artists     []SpotifyArtist `json:"artists"`
	ReleaseDate string          `json:"release_date"`
	TotalTracks int             `json:"total_tracks"`
	Images      []SpotifyImage  `json:"images"`
	Tracks      *albumTracks    `json:"tracks"`
	URI         string          `json:"uri"`
}

// SpotifySavedAlbum represents an album saved in the user's library.
type SpotifySavedAlbum struct {
	AddedAt string       `json:"added_at"`
	Album   SpotifyAlbum `json:"album"`
}

// SpotifyPaginatedAlbums represents one page of /me/albums.
type SpotifyPaginatedAlbums struct {
	Items    []SpotifySavedAlbum `json:"items"`
	Total    int                 `json:"total"`
	Limit    int                 `json:"limit"`
	Offset   int                 `json:"offset"`
	Next     *string             `json:"next"`
	Previous *string             `json:"previous"`
}

// SpotifyOpts tunes a [SpotifyService].
type SpotifyOpts struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *log.Logger
	// PageSize is clamped to 1..50.
	PageSize int
	// RequestsPerSecond paces page requests. Zero disables pacing.
	RequestsPerSecond float64
	// MaxAttempts bounds how many times pagination may start over after a 401.
	MaxAttempts int
	// OnRestart is called before each restart from the first page.
	OnRestart func(attempt int)
}

// SpotifyService reads the saved-album library and profile from the Spotify Web API.
type SpotifyService struct {
	baseURL     string
	httpClient  *http.Client
	limiter     *rate.Limiter
	pageSize    int
	maxAttempts int
	onRestart   func(int)
	logger      *log.Logger
}

// NewSpotifyService creates a library fetcher. Zero options fall back to the production defaults.
func NewSpotifyService(opts SpotifyOpts) *SpotifyService {
	if opts.BaseURL == "" {
		opts.BaseURL = spotifyBaseURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.PageSize <= 0 || opts.PageSize > maxPageSize {
		opts.PageSize = maxPageSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 2
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	return &SpotifyService{
		baseURL:     opts.BaseURL,
		httpClient:  opts.HTTPClient,
		limiter:     limiter,
		pageSize:    opts.PageSize,
		maxAttempts: opts.MaxAttempts,
		onRestart:   opts.OnRestart,
		logger:      shared.WithLogger(opts.Logger, "component", "library"),
	}
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// FetchAllAlbums walks every page of /me/albums and returns the albums deduplicated by ID.
//
// A 401 on any page discards what was collected, asks tokens for a new access token and starts again
// from the first page, up to the configured number of attempts. A 403 means the grant lacks
// user-library-read and is returned at once.
func (s *SpotifyService) FetchAllAlbums(ctx context.Context, tokens TokenSource) ([]models.Album, error) {
	return shared.Retry(ctx, s.maxAttempts, isAlbumsUnauthorized, func(ctx context.Context, attempt int) ([]models.Album, error) {
		if attempt > 1 {
			s.logger.Warn("access token rejected mid-pagination, restarting", "attempt", attempt)
			if s.onRestart != nil {
				s.onRestart(attempt)
			}
		}

		token, err := tokens.AccessToken(ctx, attempt > 1)
		if err != nil {
			return nil, fmt.Errorf("access token: %w", err)
		}
		return s.fetchAlbumPages(ctx, token)
	})
}

func isAlbumsUnauthorized(err error) bool {
	var pe *shared.ProviderError
	return errors.As(err, &pe) && pe.Op == opAlbums && pe.Status == http.StatusUnauthorized
}

func (s *SpotifyService) fetchAlbumPages(ctx context.Context, token string) ([]models.Album, error) {
	var albums []models.Album
	next := fmt.Sprintf("%s/me/albums?limit=%d", s.baseURL, s.pageSize)
	visited := make(map[string]bool)
	pages := 0

	for next != "" {
		if visited[next] {
			return nil, fmt.Errorf("%w: pagination loop at %s", shared.ErrAPIRequest, next)
		}
		visited[next] = true

		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", shared.ErrAborted, err)
		}

		var page SpotifyPaginatedAlbums
		if err := s.get(ctx, opAlbums, token, next, &page); err != nil {
			return nil, err
		}
		pages++

		for _, item := range page.Items {
			albums = append(albums, item.toAlbum())
		}

		next = ""
		if page.Next != nil {
			next = *page.Next
		}
	}

	albums = models.DedupeAlbums(albums)
	s.logger.Debug("fetched saved albums", "pages", pages, "albums", len(albums))
	return albums, nil
}

// FetchUserProfile returns the current user's profile or nil if it cannot be read.
func (s *SpotifyService) FetchUserProfile(ctx context.Context, accessToken string) *models.Profile {
	var user SpotifyUser
	if err := s.get(ctx, opProfile, accessToken, s.baseURL+"/me", &user); err != nil {
		s.logger.Debug("profile unavailable", "error", err)
		return nil
	}
	return user.toProfile()
}

// EndpointCheck is the outcome of probing one Web API endpoint with a token.
type EndpointCheck struct {
	Endpoint string `json:"endpoint"`
	Status   int    `json:"status"`
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
}

// Probe calls /me and /me/albums?limit=1 with accessToken and reports each status.
// It is used to diagnose missing scopes.
func (s *SpotifyService) Probe(ctx context.Context, accessToken string) []EndpointCheck {
	endpoints := []string{"/me", "/me/albums?limit=1"}
	checks := make([]EndpointCheck, 0, len(endpoints))

	for _, endpoint := range endpoints {
		check := EndpointCheck{Endpoint: endpoint}
		err := s.get(ctx, endpoint, accessToken, s.baseURL+endpoint, nil)
		switch {
		case err == nil:
			check.Status, check.OK = http.StatusOK, true
		default:
			check.Status = shared.ProviderStatus(err)
			check.Error = err.Error()
		}
		checks = append(checks, check)
	}
	return checks
}

// get performs an authenticated GET and decodes the JSON body into result when it is non-nil.
func (s *SpotifyService) get(ctx context.Context, op, token, url string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", shared.ErrAborted, ctx.Err())
		}
		return fmt.Errorf("%w: %s: %w", shared.ErrAPIRequest, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
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

func (sa SpotifySavedAlbum) toAlbum() models.Album {
	src := sa.Album
	album := models.Album{
		ID:          src.ID,
		Name:        src.Name,
		TotalTracks: src.TotalTracks,
		ReleaseDate: src.ReleaseDate,
		URI:         src.URI,
		Images:      toImages(src.Images),
	}
	if t, err := time.Parse(time.RFC3339, sa.AddedAt); err == nil {
		album.AddedAt = t
	}
	for _, a := range src.Artists {
		album.Artists = append(album.Artists, models.Artist{ID: a.ID, Name: a.Name})
	}
	if src.Tracks != nil {
		for _, tr := range src.Tracks.Items {
			album.Tracks = append(album.Tracks, models.Track{
				ID:          tr.ID,
				Name:        tr.Name,
				TrackNumber: tr.TrackNumber,
				DurationMs:  tr.DurationMS,
			})
		}
	}
	return album
}

func (u SpotifyUser) toProfile() *models.Profile {
	return &models.Profile{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		Country:     u.Country,
		Product:     u.Product,
		Images:      toImages(u.Images),
	}
}

func toImages(in []SpotifyImage) []models.Image {
	out := make([]models.Image, 0, len(in))
	for _, img := range in {
		out = append(out, models.Image{URL: img.URL, Width: img.Width, Height: img.Height})
	}
	return out
}
