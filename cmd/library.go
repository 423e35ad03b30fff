package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/desertthunder/albumwall/internal/collage"
	"github.com/desertthunder/albumwall/internal/formatter"
	"github.com/desertthunder/albumwall/internal/models"
	"github.com/desertthunder/albumwall/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Library prints the saved albums in the requested format, or writes them to --output.
func (r *Runner) Library(ctx context.Context, cmd *cli.Command) error {
	f, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	lib, err := r.loadLibrary(ctx, cmd)
	if err != nil {
		return err
	}
	if lib.Warning != "" {
		r.logger.Warn(lib.Warning)
	}

	if path := cmd.String("output"); path != "" {
		written, err := formatter.WriteExport(lib, f, path)
		if err != nil {
			return err
		}
		r.logger.Info("library written", "path", written, "albums", len(lib.Albums))
		return r.writePlain("✓ Wrote %d albums to %s\n", len(lib.Albums), written)
	}

	data, err := formatter.Export(lib, f)
	if err != nil {
		return err
	}
	_, err = r.output.Write(data)
	if err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// Export writes the library in each requested format plus the requested collages.
func (r *Runner) Export(ctx context.Context, cmd *cli.Command) error {
	formats := make([]formatter.Format, 0, len(cmd.StringSlice("format")))
	for _, s := range cmd.StringSlice("format") {
		f, err := formatter.ParseFormat(s)
		if err != nil {
			return err
		}
		formats = append(formats, f)
	}

	var jobs []tasks.CollageJob
	if scales := cmd.IntSlice("grid"); len(scales) > 0 {
		jobs = append(jobs, tasks.CollageJob{Kind: models.CollageGrid, Scales: toInts(scales)})
	}
	if scales := cmd.IntSlice("cd"); len(scales) > 0 {
		jobs = append(jobs, tasks.CollageJob{Kind: models.CollageCD, Scales: toInts(scales)})
	}

	lib, err := r.loadLibrary(ctx, cmd)
	if err != nil {
		return err
	}

	conf := r.config.Collage
	opts := tasks.BulkExportOpts{
		Formats:    formats,
		Collages:   jobs,
		OutputDir:  cmd.String("output-dir"),
		NumWorkers: int(cmd.Int("workers")),
		RateLimit:  cmd.Float64("rate-limit"),
		Loader:     collage.NewHTTPLoader(nil, time.Duration(conf.ImageTimeoutSeconds)*time.Second),
		Grid:       collage.GridOptions{GridSize: conf.GridSize, Background: conf.Background},
		CD:         collage.CDOptions{Count: conf.Count, Background: conf.Background},
		Logger:     r.logger,
	}
	if cmd.Bool("watermark") {
		opts.Grid.Watermark = lib.User.Handle()
		opts.CD.Watermark = lib.User.Handle()
	}

	prog := make(chan tasks.ProgressUpdate, 32)
	logged := r.logProgress(prog)
	result, err := tasks.BulkExport(ctx, prog, lib, opts)
	close(prog)
	<-logged
	if err != nil {
		return err
	}

	r.writePlainHeader("Export complete")
	r.writePlain("Albums:     %d\n", result.Albums)
	r.writePlain("Jobs:       %d (%d ok, %d failed)\n", result.TotalJobs, result.SuccessfulExports, result.FailedExports)
	r.writePlain("Directory:  %s\n", result.OutputDirectory)
	r.writePlain("Manifest:   %s\n\n", filepath.Base(result.ManifestPath))
	for _, res := range result.Results {
		if !res.Success {
			r.writePlain("✗ %s: %s\n", res.Name, res.Error)
			continue
		}
		for _, file := range res.Files {
			r.writePlain("✓ %s\n", file)
		}
	}
	return nil
}

func toInts[T ~int | ~int64](in []T) []int {
	out := make([]int, len(in))
	for i, v := range in {
		out[i] = int(v)
	}
	return out
}
