package collage

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/desertthunder/albumwall/internal/models"
	"github.com/desertthunder/albumwall/internal/shared"
	"golang.org/x/image/draw"
)

// MaxScale is the largest supported export factor.
const MaxScale = 4

// Upscale re-rasterizes img at an integer factor between 1 and [MaxScale].
func Upscale(img image.Image, factor int) (image.Image, error) {
	if factor < 1 || factor > MaxScale {
		return nil, fmt.Errorf("%w: scale must be between 1 and %d, got %d", shared.ErrInvalidArgument, MaxScale, factor)
	}
	if factor == 1 {
		return img, nil
	}

	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst, nil
}

// Export returns a copy of a scaled by factor, without re-running layout.
func Export(a *models.CollageArtifact, factor int) (*models.CollageArtifact, error) {
	img, err := Upscale(a.Image, factor)
	if err != nil {
		return nil, err
	}
	out := *a
	out.Image = img
	out.Scale = factor
	out.Filename = out.SuggestedFilename()
	return &out, nil
}

// WriteFile encodes a as PNG into dir (or the working directory) under its filename and
// returns the path written.
func WriteFile(a *models.CollageArtifact, dir string) (string, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	path := filepath.Join(dir, a.Filename)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := a.EncodePNG(f); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
