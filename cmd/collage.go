package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/albumwall/internal/collage"
	"github.com/desertthunder/albumwall/internal/models"
	"github.com/desertthunder/albumwall/internal/shared"
	"github.com/urfave/cli/v3"
)

// collageSettings merges command flags over the collage section of the config.
type collageSettings struct {
	kind       models.CollageKind
	gridSize   int
	count      int
	scale      int
	background string
	watermark  bool
	outDir     string
}

func (r *Runner) collageSettings(cmd *cli.Command) (collageSettings, error) {
	conf := r.config.Collage
	s := collageSettings{
		kind:       models.CollageKind(conf.Layout),
		gridSize:   conf.GridSize,
		count:      conf.Count,
		scale:      conf.Scale,
		background: conf.Background,
		watermark:  cmd.Bool("watermark"),
		outDir:     cmd.String("out"),
	}
	if cmd.IsSet("layout") {
		s.kind = models.CollageKind(cmd.String("layout"))
	}
	if cmd.IsSet("size") {
		s.gridSize = int(cmd.Int("size"))
	}
	if cmd.IsSet("count") {
		s.count = int(cmd.Int("count"))
	}
	if cmd.IsSet("scale") {
		s.scale = int(cmd.Int("scale"))
	}
	if cmd.IsSet("background") {
		s.background = cmd.String("background")
	}

	if s.kind == "" {
		s.kind = models.CollageGrid
	}
	if s.scale == 0 {
		s.scale = 1
	}

	switch {
	case s.kind != models.CollageGrid && s.kind != models.CollageCD:
		return s, fmt.Errorf("%w: layout must be grid or cd, got %q", shared.ErrInvalidArgument, s.kind)
	case s.scale < 1 || s.scale > collage.MaxScale:
		return s, fmt.Errorf("%w: scale must be between 1 and %d", shared.ErrInvalidArgument, collage.MaxScale)
	case s.gridSize < 0 || s.count < 0:
		return s, fmt.Errorf("%w: size and count cannot be negative", shared.ErrInvalidArgument)
	}
	if _, err := collage.ParseColor(s.background); err != nil {
		return s, err
	}
	return s, nil
}

// Collage renders one grid or CD collage of the saved albums and writes it as PNG.
func (r *Runner) Collage(ctx context.Context, cmd *cli.Command) error {
	settings, err := r.collageSettings(cmd)
	if err != nil {
		return err
	}

	lib, err := r.loadLibrary(ctx, cmd)
	if err != nil {
		return err
	}
	if len(lib.Albums) == 0 {
		return fmt.Errorf("%w: no saved albums to render", shared.ErrRender)
	}

	var watermark string
	if settings.watermark {
		watermark = lib.User.Handle()
	}

	renderer := collage.NewRenderer(collage.RendererOpts{
		Concurrency:  r.config.Collage.Concurrency,
		ImageTimeout: time.Duration(r.config.Collage.ImageTimeoutSeconds) * time.Second,
		Logger:       r.logger,
		OnProgress: func(done, total int) {
			if done == total || done%10 == 0 {
				r.logger.Info("loading covers", "done", done, "total", total)
			}
		},
	})

	var artifact *models.CollageArtifact
	switch settings.kind {
	case models.CollageCD:
		artifact, err = renderer.RenderCD(ctx, lib.Albums, collage.CDOptions{
			Count:      settings.count,
			Background: settings.background,
			Watermark:  watermark,
		})
	default:
		artifact, err = renderer.RenderGrid(ctx, lib.Albums, collage.GridOptions{
			GridSize:   settings.gridSize,
			Background: settings.background,
			Watermark:  watermark,
		})
	}
	if err != nil {
		return err
	}

	scaled, err := collage.Export(artifact, settings.scale)
	if err != nil {
		return err
	}

	path, err := collage.WriteFile(scaled, settings.outDir)
	if err != nil {
		return err
	}

	b := scaled.Image.Bounds()
	r.logger.Info("collage written", "path", path, "albums", scaled.Albums, "skipped", scaled.Skipped)
	r.writePlain("✓ %s (%dx%d, %d albums)\n", path, b.Dx(), b.Dy(), scaled.Albums)
	if scaled.Skipped > 0 {
		r.writePlain("⚠ %d covers could not be loaded and were left blank\n", scaled.Skipped)
	}
	return nil
}
