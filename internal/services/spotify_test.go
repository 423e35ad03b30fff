package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"testing"

	"github.com/desertthunder/albumwall/internal/collage"
	"github.com/desertthunder/albumwall/internal/shared"
	testutil "github.com/desertthunder/albumwall/internal/testing"
)

// rotatingSource hands out the given tokens in order, recording whether each call forced a refresh.
type rotatingSource struct {
	tokens []string
	forced []bool
	err    error
}

func (s *rotatingSource) AccessToken(ctx context.Context, force bool) (string, error) {
	s.forced = append(s.forced, force)
	if s.err != nil {
		return "", s.err
	}
	i := min(len(s.forced)-1, len(s.tokens)-1)
	return s.tokens[i], nil
}

func newTestSpotifyService(stub *testutil.SpotifyStub, opts SpotifyOpts) *SpotifyService {
	opts.BaseURL = stub.APIURL()
	return NewSpotifyService(opts)
}

func TestSpotifyService(t *testing.T) {
	t.Run("Name", func(t *testing.T) {
		if NewSpotifyService(SpotifyOpts{}).Name() != "Spotify" {
			t.Error("expected service name Spotify")
		}
	})

	t.Run("FetchAllAlbums", func(t *testing.T) {
		t.Run("follows next across pages", func(t *testing.T) {
			stub := testutil.NewSpotifyStub(t)
			stub.AddAlbums(120)
			stub.GrantAccessToken("tok")
			srv := newTestSpotifyService(stub, SpotifyOpts{})

			albums, err := srv.FetchAllAlbums(context.Background(), StaticToken("tok"))
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if len(albums) != 120 {
				t.Fatalf("expected 120 albums, got %d", len(albums))
			}
			if stub.AlbumHits != 3 {
				t.Errorf("expected 3 page requests, got %d", stub.AlbumHits)
			}
			if albums[0].ID != "album-0" || albums[119].ID != "album-119" {
				t.Errorf("expected provider order, got %s..%s", albums[0].ID, albums[119].ID)
			}
			if albums[0].PrimaryImage() == nil || albums[0].Artists[0].Name != "Artist 0" {
				t.Errorf("expected mapped album metadata, got %+v", albums[0])
			}
			if albums[0].AddedAt.IsZero() {
				t.Error("expected added_at to be parsed")
			}
		})

		t.Run("short last page feeds the grid layout", func(t *testing.T) {
			stub := testutil.NewSpotifyStub(t)
			stub.AddAlbums(130)
			stub.GrantAccessToken("tok")
			srv := newTestSpotifyService(stub, SpotifyOpts{})

			albums, err := srv.FetchAllAlbums(context.Background(), StaticToken("tok"))
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if stub.AlbumHits != 3 || !slices.Equal(stub.PageSizes, []int{50, 50, 30}) {
				t.Errorf("expected pages of 50/50/30, got %d hits with sizes %v", stub.AlbumHits, stub.PageSizes)
			}
			if len(albums) != 130 {
				t.Fatalf("expected 130 albums, got %d", len(albums))
			}
			for i, a := range albums {
				if want := fmt.Sprintf("album-%d", i); a.ID != want {
					t.Fatalf("expected %s at %d, got %s", want, i, a.ID)
				}
			}

			layout := collage.ComputeGridDimensions(len(albums))
			if layout.Count > 130 || layout.Rows != 11 || layout.Cols != 11 {
				t.Errorf("expected an 11x11 layout for 130 albums, got %+v", layout)
			}
		})

		t.Run("empty library", func(t *testing.T) {
			stub := testutil.NewSpotifyStub(t)
			stub.GrantAccessToken("tok")
			srv := newTestSpotifyService(stub, SpotifyOpts{})

			albums, err := srv.FetchAllAlbums(context.Background(), StaticToken("tok"))
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if len(albums) != 0 {
				t.Errorf("expected no albums, got %d", len(albums))
			}
		})

		t.Run("deduplicates by id", func(t *testing.T) {
			stub := testutil.NewSpotifyStub(t)
			stub.AddAlbums(3)
			stub.Albums = append(stub.Albums, stub.Albums[1])
			stub.GrantAccessToken("tok")
			srv := newTestSpotifyService(stub, SpotifyOpts{PageSize: 2})

			albums, err := srv.FetchAllAlbums(context.Background(), StaticToken("tok"))
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if len(albums) != 3 {
				t.Errorf("expected 3 unique albums, got %d", len(albums))
			}
		})

		t.Run("401 mid-pagination restarts from page one", func(t *testing.T) {
			stub := testutil.NewSpotifyStub(t)
			stub.AddAlbums(120)
			stub.GrantAccessToken("old")
			stub.GrantAccessToken("new")
			stub.RevokeAfterPages["old"] = 1

			restarts := 0
			srv := newTestSpotifyService(stub, SpotifyOpts{OnRestart: func(int) { restarts++ }})
			source := &rotatingSource{tokens: []string{"old", "new"}}

			albums, err := srv.FetchAllAlbums(context.Background(), source)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if len(albums) != 120 {
				t.Errorf("expected a complete, non-duplicated list of 120, got %d", len(albums))
			}
			if len(source.forced) != 2 || source.forced[0] || !source.forced[1] {
				t.Errorf("expected one normal and one forced token request, got %v", source.forced)
			}
			if restarts != 1 {
				t.Errorf("expected 1 restart, got %d", restarts)
			}
			// 1 page ok + 1 rejected + 3 pages after restart
			if stub.AlbumHits != 5 {
				t.Errorf("expected 5 page requests, got %d", stub.AlbumHits)
			}
		})

		t.Run("second 401 is terminal", func(t *testing.T) {
			stub := testutil.NewSpotifyStub(t)
			stub.AddAlbums(10)
			srv := newTestSpotifyService(stub, SpotifyOpts{})
			source := &rotatingSource{tokens: []string{"bad-1", "bad-2", "bad-3"}}

			_, err := srv.FetchAllAlbums(context.Background(), source)
			if shared.ProviderStatus(err) != http.StatusUnauthorized {
				t.Fatalf("expected 401 provider error, got %v", err)
			}
			if len(source.forced) != 2 {
				t.Errorf("expected 2 attempts, got %d", len(source.forced))
			}
		})

		t.Run("403 is insufficient scope and not retried", func(t *testing.T) {
			stub := testutil.NewSpotifyStub(t)
			stub.AddAlbums(10)
			stub.AlbumsStatus = http.StatusForbidden
			stub.GrantAccessToken("tok")
			srv := newTestSpotifyService(stub, SpotifyOpts{})
			source := &rotatingSource{tokens: []string{"tok"}}

			_, err := srv.FetchAllAlbums(context.Background(), source)
			if !errors.Is(err, shared.ErrInsufficientScope) {
				t.Fatalf("expected ErrInsufficientScope, got %v", err)
			}
			if len(source.forced) != 1 {
				t.Errorf("expected a single attempt, got %d", len(source.forced))
			}
		})

		t.Run("server error carries status", func(t *testing.T) {
			stub := testutil.NewSpotifyStub(t)
			stub.AlbumsStatus = http.StatusInternalServerError
			stub.GrantAccessToken("tok")
			srv := newTestSpotifyService(stub, SpotifyOpts{})

			_, err := srv.FetchAllAlbums(context.Background(), StaticToken("tok"))
			if shared.ProviderStatus(err) != http.StatusInternalServerError {
				t.Errorf("expected provider 500, got %v", err)
			}
		})

		t.Run("token source failure is not retried", func(t *testing.T) {
			stub := testutil.NewSpotifyStub(t)
			srv := newTestSpotifyService(stub, SpotifyOpts{})
			source := &rotatingSource{err: shared.ErrUnauthenticated}

			_, err := srv.FetchAllAlbums(context.Background(), source)
			if !errors.Is(err, shared.ErrUnauthenticated) {
				t.Errorf("expected ErrUnauthenticated, got %v", err)
			}
			if len(source.forced) != 1 {
				t.Errorf("expected 1 token request, got %d", len(source.forced))
			}
		})

		t.Run("cancelled context aborts", func(t *testing.T) {
			stub := testutil.NewSpotifyStub(t)
			stub.AddAlbums(10)
			stub.GrantAccessToken("tok")
			srv := newTestSpotifyService(stub, SpotifyOpts{})

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			_, err := srv.FetchAllAlbums(ctx, StaticToken("tok"))
			if !errors.Is(err, shared.ErrAborted) {
				t.Errorf("expected ErrAborted, got %v", err)
			}
		})
	})

	t.Run("FetchUserProfile", func(t *testing.T) {
		t.Run("success", func(t *testing.T) {
			stub := testutil.NewSpotifyStub(t)
			stub.GrantAccessToken("tok")
			srv := newTestSpotifyService(stub, SpotifyOpts{})

			profile := srv.FetchUserProfile(context.Background(), "tok")
			if profile == nil {
				t.Fatal("expected a profile")
			}
			if profile.ID != "user-1" || profile.DisplayName != "Test User" {
				t.Errorf("unexpected profile %+v", profile)
			}
		})

		t.Run("failure yields nil", func(t *testing.T) {
			stub := testutil.NewSpotifyStub(t)
			srv := newTestSpotifyService(stub, SpotifyOpts{})

			if profile := srv.FetchUserProfile(context.Background(), "unknown"); profile != nil {
				t.Errorf("expected nil profile, got %+v", profile)
			}
		})
	})

	t.Run("Probe", func(t *testing.T) {
		stub := testutil.NewSpotifyStub(t)
		stub.AlbumsStatus = http.StatusForbidden
		stub.GrantAccessToken("tok")
		srv := newTestSpotifyService(stub, SpotifyOpts{})

		checks := srv.Probe(context.Background(), "tok")
		if len(checks) != 2 {
			t.Fatalf("expected 2 checks, got %d", len(checks))
		}
		if !checks[0].OK || checks[0].Status != http.StatusOK {
			t.Errorf("expected /me to pass, got %+v", checks[0])
		}
		if checks[1].OK || checks[1].Status != http.StatusForbidden {
			t.Errorf("expected albums probe to fail with 403, got %+v", checks[1])
		}
	})
}
