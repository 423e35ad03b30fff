package collage

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/albumwall/internal/models"
	"github.com/desertthunder/albumwall/internal/shared"
)

// fakeLoader serves solid images by URL and fails for URLs in fail.
type fakeLoader struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls int
	block chan struct{}
}

func (l *fakeLoader) Load(ctx context.Context, url string) (image.Image, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()

	if l.block != nil {
		select {
		case <-l.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if l.fail[url] {
		return nil, &shared.RenderError{URL: url, Err: errors.New("boom")}
	}
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	return img, nil
}

func albumsN(n int) []models.Album {
	albums := make([]models.Album, n)
	for i := range albums {
		id := "album-" + strconv.Itoa(i)
		albums[i] = models.Album{
			ID:     id,
			Name:   "Album " + strconv.Itoa(i),
			Images: []models.Image{{URL: "https://img.test/" + id, Width: 640, Height: 640}},
		}
	}
	return albums
}

func TestComputeGridDimensions(t *testing.T) {
	tests := []struct {
		n    int
		want models.GridLayout
	}{
		{0, models.GridLayout{Type: models.LayoutEmpty}},
		{1, models.GridLayout{Rows: 1, Cols: 1, Count: 1, Type: models.LayoutSquare}},
		{2, models.GridLayout{Rows: 1, Cols: 2, Count: 2, Type: models.LayoutRectangle}},
		{3, models.GridLayout{Rows: 1, Cols: 2, Count: 2, Type: models.LayoutRectangle}},
		{4, models.GridLayout{Rows: 2, Cols: 2, Count: 4, Type: models.LayoutSquare}},
		{5, models.GridLayout{Rows: 2, Cols: 2, Count: 4, Type: models.LayoutSquare}},
		{6, models.GridLayout{Rows: 2, Cols: 3, Count: 6, Type: models.LayoutRectangle}},
		{9, models.GridLayout{Rows: 3, Cols: 3, Count: 9, Type: models.LayoutSquare}},
		{12, models.GridLayout{Rows: 3, Cols: 4, Count: 12, Type: models.LayoutRectangle}},
		// 11x12 needs 132 cells, so 130 albums fall back to the largest square.
		{130, models.GridLayout{Rows: 11, Cols: 11, Count: 121, Type: models.LayoutSquare}},
		{132, models.GridLayout{Rows: 11, Cols: 12, Count: 132, Type: models.LayoutRectangle}},
	}
	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.n), func(t *testing.T) {
			if got := ComputeGridDimensions(tt.n); got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}

	t.Run("count never exceeds n", func(t *testing.T) {
		for n := range 500 {
			l := ComputeGridDimensions(n)
			if l.Count > n || l.Count != l.Rows*l.Cols {
				t.Fatalf("n=%d: bad layout %+v", n, l)
			}
		}
	})
}

func TestCellSize(t *testing.T) {
	if CellSize(1) <= CellSize(5) || CellSize(5) <= CellSize(10) {
		t.Error("expected cells to shrink as columns grow")
	}
	if CellSize(0) != CellSize(1) {
		t.Error("expected non-positive columns to use the single-column size")
	}
	if CellSize(25) != 100 {
		t.Errorf("expected 100 for large grids, got %d", CellSize(25))
	}
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in      string
		want    color.NRGBA
		wantErr bool
	}{
		{in: "", want: color.NRGBA{0x12, 0x12, 0x12, 255}},
		{in: "#ff8000", want: color.NRGBA{255, 128, 0, 255}},
		{in: "fff", want: color.NRGBA{255, 255, 255, 255}},
		{in: "#12345", wantErr: true},
		{in: "#gggggg", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseColor(tt.in)
			if tt.wantErr {
				if !errors.Is(err, shared.ErrInvalidArgument) {
					t.Errorf("expected ErrInvalidArgument, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestRenderGrid(t *testing.T) {
	ctx := context.Background()

	t.Run("fixed grid size", func(t *testing.T) {
		r := NewRenderer(RendererOpts{Loader: &fakeLoader{}})
		a, err := r.RenderGrid(ctx, albumsN(7), GridOptions{GridSize: 3})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if a.Layout.Cols != 3 || a.Layout.Rows != 3 || a.Layout.Count != 7 {
			t.Errorf("unexpected layout %+v", a.Layout)
		}
		if b := a.Image.Bounds(); b.Dx() != 972 || b.Dy() != 972 {
			t.Errorf("expected 972x972, got %v", b)
		}
		if a.Filename != "albumwall-grid-7@1x.png" {
			t.Errorf("unexpected filename %q", a.Filename)
		}
	})

	t.Run("caps at grid size squared", func(t *testing.T) {
		r := NewRenderer(RendererOpts{Loader: &fakeLoader{}})
		a, err := r.RenderGrid(ctx, albumsN(20), GridOptions{GridSize: 2})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if a.Albums != 4 || a.Layout.Type != models.LayoutSquare {
			t.Errorf("expected 4 albums in a square, got %d (%s)", a.Albums, a.Layout.Type)
		}
	})

	t.Run("automatic layout", func(t *testing.T) {
		loader := &fakeLoader{}
		r := NewRenderer(RendererOpts{Loader: loader})
		a, err := r.RenderGrid(ctx, albumsN(7), GridOptions{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if a.Layout.Rows != 2 || a.Layout.Cols != 3 {
			t.Errorf("expected 2x3, got %+v", a.Layout)
		}
		if loader.calls != 6 {
			t.Errorf("expected only the 6 shown covers to load, got %d", loader.calls)
		}
		if b := a.Image.Bounds(); b.Dx() != 972 || b.Dy() != 660 {
			t.Errorf("expected 972x660, got %v", b)
		}
	})

	t.Run("skips covers that fail to load", func(t *testing.T) {
		albums := albumsN(4)
		albums[3].Images = nil
		loader := &fakeLoader{fail: map[string]bool{albums[1].Images[0].URL: true}}

		var progress []int
		r := NewRenderer(RendererOpts{Loader: loader, OnProgress: func(done, total int) {
			progress = append(progress, done)
		}})
		a, err := r.RenderGrid(ctx, albums, GridOptions{GridSize: 2})
		if err != nil {
			t.Fatalf("expected render to succeed, got %v", err)
		}
		if a.Skipped != 2 {
			t.Errorf("expected 2 skipped, got %d", a.Skipped)
		}
		if len(progress) != 4 || progress[3] != 4 {
			t.Errorf("expected progress for every cover, got %v", progress)
		}
	})

	t.Run("watermark adds a band", func(t *testing.T) {
		r := NewRenderer(RendererOpts{Loader: &fakeLoader{}})
		plain, err := r.RenderGrid(ctx, albumsN(4), GridOptions{GridSize: 2})
		if err != nil {
			t.Fatal(err)
		}
		marked, err := r.RenderGrid(ctx, albumsN(4), GridOptions{GridSize: 2, Watermark: "tester"})
		if err != nil {
			t.Fatal(err)
		}
		if marked.Image.Bounds().Dy() <= plain.Image.Bounds().Dy() {
			t.Error("expected watermark band to add height")
		}
	})

	t.Run("no albums", func(t *testing.T) {
		r := NewRenderer(RendererOpts{Loader: &fakeLoader{}})
		if _, err := r.RenderGrid(ctx, nil, GridOptions{}); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("bad background", func(t *testing.T) {
		r := NewRenderer(RendererOpts{Loader: &fakeLoader{}})
		if _, err := r.RenderGrid(ctx, albumsN(1), GridOptions{Background: "nope"}); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("cancellation aborts", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		loader := &fakeLoader{block: make(chan struct{})}
		r := NewRenderer(RendererOpts{Loader: loader, Concurrency: 2})

		cancel()
		if _, err := r.RenderGrid(ctx, albumsN(9), GridOptions{}); !errors.Is(err, shared.ErrAborted) {
			t.Errorf("expected ErrAborted, got %v", err)
		}
	})
}

func TestRenderCD(t *testing.T) {
	ctx := context.Background()

	t.Run("single row", func(t *testing.T) {
		r := NewRenderer(RendererOpts{Loader: &fakeLoader{}})
		a, err := r.RenderCD(ctx, albumsN(5), CDOptions{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if a.Kind != models.CollageCD || a.Layout.Rows != 1 || a.Layout.Cols != 5 {
			t.Errorf("unexpected artifact %+v", a.Layout)
		}
		if b := a.Image.Bounds(); b.Dx() != 1360 || b.Dy() != 372 {
			t.Errorf("expected 1360x372, got %v", b)
		}
	})

	t.Run("wraps within the max row width", func(t *testing.T) {
		r := NewRenderer(RendererOpts{Loader: &fakeLoader{}})
		a, err := r.RenderCD(ctx, albumsN(60), CDOptions{Count: 50})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if a.Albums != 50 {
			t.Errorf("expected 50 discs, got %d", a.Albums)
		}
		if a.Layout.Rows < 2 {
			t.Errorf("expected wrapping, got %+v", a.Layout)
		}
		d := cdDiameter(50)
		if w := a.Image.Bounds().Dx(); w > cdMaxRowWidth+d/3 {
			t.Errorf("row too wide: %d", w)
		}
	})

	t.Run("rejects negative count", func(t *testing.T) {
		r := NewRenderer(RendererOpts{Loader: &fakeLoader{}})
		if _, err := r.RenderCD(ctx, albumsN(3), CDOptions{Count: -1}); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestHTTPLoader(t *testing.T) {
	var pngBytes bytes.Buffer
	if err := png.Encode(&pngBytes, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write(pngBytes.Bytes())
		case "/garbage":
			w.Write([]byte("not an image"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	loader := NewHTTPLoader(srv.Client(), 0)

	t.Run("decodes png", func(t *testing.T) {
		img, err := loader.Load(context.Background(), srv.URL+"/ok.png")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if img.Bounds().Dx() != 4 {
			t.Errorf("expected 4px wide image, got %v", img.Bounds())
		}
	})

	for _, path := range []string{"/missing", "/garbage"} {
		t.Run(path, func(t *testing.T) {
			_, err := loader.Load(context.Background(), srv.URL+path)
			var re *shared.RenderError
			if !errors.As(err, &re) || !errors.Is(err, shared.ErrRender) {
				t.Fatalf("expected RenderError, got %v", err)
			}
			if re.URL != srv.URL+path {
				t.Errorf("expected url %s, got %s", srv.URL+path, re.URL)
			}
		})
	}
}

func TestExport(t *testing.T) {
	src := &models.CollageArtifact{
		Image:  image.NewRGBA(image.Rect(0, 0, 10, 6)),
		Kind:   models.CollageGrid,
		Albums: 4,
		Scale:  1,
	}

	t.Run("Upscale", func(t *testing.T) {
		for _, factor := range []int{1, 2, 3, 4} {
			img, err := Upscale(src.Image, factor)
			if err != nil {
				t.Fatalf("factor %d: %v", factor, err)
			}
			if b := img.Bounds(); b.Dx() != 10*factor || b.Dy() != 6*factor {
				t.Errorf("factor %d: got %v", factor, b)
			}
		}
		for _, factor := range []int{0, 5} {
			if _, err := Upscale(src.Image, factor); !errors.Is(err, shared.ErrInvalidArgument) {
				t.Errorf("factor %d: expected ErrInvalidArgument, got %v", factor, err)
			}
		}
	})

	t.Run("Export keeps layout and renames", func(t *testing.T) {
		out, err := Export(src, 3)
		if err != nil {
			t.Fatal(err)
		}
		if out.Filename != "albumwall-grid-4@3x.png" || out.Scale != 3 {
			t.Errorf("unexpected artifact %q scale %d", out.Filename, out.Scale)
		}
		if src.Scale != 1 {
			t.Error("expected source artifact to be unchanged")
		}
	})

	t.Run("DataURL", func(t *testing.T) {
		url, err := src.DataURL()
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(url, "data:image/png;base64,") {
			t.Errorf("unexpected data url prefix %q", url[:30])
		}
	})

	t.Run("WriteFile", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "out")
		a := *src
		a.Filename = a.SuggestedFilename()
		path, err := WriteFile(&a, dir)
		if err != nil {
			t.Fatal(err)
		}
		f, err := os.Open(path)
		if err != nil {
			t.Fatal(err)
		}
		defer f.Close()
		if _, err := png.Decode(f); err != nil {
			t.Errorf("expected a valid png, got %v", err)
		}
	})
}
