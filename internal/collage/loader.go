package collage

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/albumwall/internal/models"
	"github.com/desertthunder/albumwall/internal/shared"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/semaphore"
)

// maxImageBytes caps a single cover download.
const maxImageBytes = 8 << 20

// ImageLoader fetches and decodes one cover image.
type ImageLoader interface {
	Load(ctx context.Context, url string) (image.Image, error)
}

// HTTPLoader loads covers over HTTP with a per-image timeout.
type HTTPLoader struct {
	client  *http.Client
	timeout time.Duration
}

// NewHTTPLoader creates a loader. A nil client uses [http.DefaultClient]; a zero timeout means 10s.
func NewHTTPLoader(client *http.Client, timeout time.Duration) *HTTPLoader {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPLoader{client: client, timeout: timeout}
}

// Load downloads and decodes url. Every failure is a [*shared.RenderError].
func (l *HTTPLoader) Load(ctx context.Context, url string) (image.Image, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &shared.RenderError{URL: url, Err: err}
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, &shared.RenderError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &shared.RenderError{URL: url, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	img, _, err := image.Decode(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, &shared.RenderError{URL: url, Err: fmt.Errorf("decode: %w", err)}
	}
	return img, nil
}

// coverTile crops src to a centered square and scales it to size x size.
func coverTile(src image.Image, size int) *image.RGBA {
	b := src.Bounds()
	side := min(b.Dx(), b.Dy())
	x0 := b.Min.X + (b.Dx()-side)/2
	y0 := b.Min.Y + (b.Dy()-side)/2

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, image.Rect(x0, y0, x0+side, y0+side), draw.Src, nil)
	return dst
}

// loadTiles loads the primary cover of each album concurrently and scales it to size.
//
// Failed covers are left nil and counted in skipped. Only cancellation of ctx fails the call.
func loadTiles(ctx context.Context, loader ImageLoader, albums []models.Album, size, concurrency int, logger *log.Logger, onProgress func(done, total int)) ([]*image.RGBA, int, error) {
	tiles := make([]*image.RGBA, len(albums))
	sem := semaphore.NewWeighted(int64(max(concurrency, 1)))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		done    int
		skipped int
	)
	report := func(ok bool) {
		mu.Lock()
		defer mu.Unlock()
		done++
		if !ok {
			skipped++
		}
		if onProgress != nil {
			onProgress(done, len(albums))
		}
	}

	for i, album := range albums {
		cover := album.PrimaryImage()
		if cover == nil || cover.URL == "" {
			logger.Debug("album has no cover", "album", album.ID)
			report(false)
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			img, err := loader.Load(ctx, cover.URL)
			if err != nil {
				if ctx.Err() == nil {
					var re *shared.RenderError
					if !errors.As(err, &re) {
						err = &shared.RenderError{URL: cover.URL, Err: err}
					}
					logger.Warn("skipping cover", "album", album.ID, "error", err)
				}
				report(false)
				return
			}
			tiles[i] = coverTile(img, size)
			report(true)
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", shared.ErrAborted, err)
	}
	return tiles, skipped, nil
}
