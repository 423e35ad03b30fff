package models

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"io"
	"strconv"
)

// LayoutType names the arrangement chosen for a grid.
type LayoutType string

const (
	LayoutSquare    LayoutType = "square"
	LayoutRectangle LayoutType = "rectangle"
	LayoutEmpty     LayoutType = "empty"
)

// GridLayout is the row/column arrangement for a set of covers.
type GridLayout struct {
	Rows  int        `json:"rows"`
	Cols  int        `json:"cols"`
	Count int        `json:"count"`
	Type  LayoutType `json:"type"`
}

// CollageKind selects the renderer.
type CollageKind string

const (
	CollageGrid CollageKind = "grid"
	CollageCD   CollageKind = "cd"
)

// CollageArtifact is a rendered collage held in memory until it is written or encoded.
type CollageArtifact struct {
	Image    image.Image
	Kind     CollageKind
	Layout   GridLayout
	Albums   int
	Scale    int
	Skipped  int
	Filename string
}

// SuggestedFilename returns albumwall-<kind>-<n>@<scale>x.png.
func (a *CollageArtifact) SuggestedFilename() string {
	scale := a.Scale
	if scale < 1 {
		scale = 1
	}
	return "albumwall-" + string(a.Kind) + "-" + strconv.Itoa(a.Albums) + "@" + strconv.Itoa(scale) + "x.png"
}

// EncodePNG writes the collage as PNG.
func (a *CollageArtifact) EncodePNG(w io.Writer) error {
	if a.Image == nil {
		return fmt.Errorf("collage has no image")
	}
	if err := png.Encode(w, a.Image); err != nil {
		return fmt.Errorf("failed to encode png: %w", err)
	}
	return nil
}

// DataURL returns the collage as a data:image/png;base64 URL.
func (a *CollageArtifact) DataURL() (string, error) {
	var buf bytes.Buffer
	if err := a.EncodePNG(&buf); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
