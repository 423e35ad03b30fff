package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/albumwall/internal/collage"
	"github.com/desertthunder/albumwall/internal/formatter"
	"github.com/desertthunder/albumwall/internal/models"
	"github.com/desertthunder/albumwall/internal/shared"
	"golang.org/x/time/rate"
)

// CollageJob asks for one collage kind, written once per scale.
type CollageJob struct {
	Kind   models.CollageKind
	Scales []int // Export factors between 1 and [collage.MaxScale] (default: 1)
}

// BulkExportOpts contains configuration for a library export.
type BulkExportOpts struct {
	Formats    []formatter.Format  // Library formats to write (default: json)
	Collages   []CollageJob        // Collages to render
	OutputDir  string              // Base output directory (default: albumwall_export_{epoch})
	NumWorkers int                 // Concurrent workers (default: 4)
	RateLimit  float64             // Jobs started per second (default: 5)
	Loader     collage.ImageLoader // Cover loader for collages (default: HTTP)
	Grid       collage.GridOptions // Options for grid collages
	CD         collage.CDOptions   // Options for CD collages
	Logger     *log.Logger
}

// ExportResult is the outcome of one export job.
type ExportResult struct {
	Name    string   `json:"name"`
	Files   []string `json:"files"`
	Success bool     `json:"success"`
	Error   string   `json:"error,omitempty"`
}

// BulkExportResult summarizes an export and is written as the manifest.
type BulkExportResult struct {
	Albums            int            `json:"albums"`
	TotalJobs         int            `json:"total_jobs"`
	SuccessfulExports int            `json:"successful_exports"`
	FailedExports     int            `json:"failed_exports"`
	OutputDirectory   string         `json:"output_directory"`
	ExportedAt        time.Time      `json:"exported_at"`
	Results           []ExportResult `json:"results"`
	ManifestPath      string         `json:"-"`
}

type exportJob struct {
	name string
	run  func(ctx context.Context) ([]string, error)
}

// BulkExport writes lib in every requested format plus the requested collages into one directory.
//
// Collages render first so the Markdown export can link the grid. Jobs run on a worker pool,
// failures are recorded per job, and a manifest summarizing the export is written last.
func BulkExport(ctx context.Context, prog chan<- ProgressUpdate, lib *models.Library, opts BulkExportOpts) (*BulkExportResult, error) {
	if lib == nil {
		return nil, fmt.Errorf("%w: library", shared.ErrMissingArgument)
	}

	if opts.OutputDir == "" {
		opts.OutputDir = fmt.Sprintf("albumwall_export_%d", time.Now().Unix())
	}
	if len(opts.Formats) == 0 && len(opts.Collages) == 0 {
		opts.Formats = []formatter.Format{formatter.FormatJSON}
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 4
	}
	if opts.NumWorkers > 8 {
		opts.NumWorkers = 8
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5.0
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	logger := shared.WithLogger(opts.Logger, "component", "export")

	for i, job := range opts.Collages {
		if job.Kind != models.CollageGrid && job.Kind != models.CollageCD {
			return nil, fmt.Errorf("%w: collage kind %q", shared.ErrInvalidArgument, job.Kind)
		}
		if len(job.Scales) == 0 {
			opts.Collages[i].Scales = []int{1}
		}
		for _, s := range opts.Collages[i].Scales {
			if s < 1 || s > collage.MaxScale {
				return nil, fmt.Errorf("%w: scale must be between 1 and %d, got %d", shared.ErrInvalidArgument, collage.MaxScale, s)
			}
		}
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	result := &BulkExportResult{
		Albums:          len(lib.Albums),
		TotalJobs:       len(opts.Formats) + len(opts.Collages),
		OutputDirectory: opts.OutputDir,
		ExportedAt:      time.Now().UTC(),
		Results:         make([]ExportResult, 0, len(opts.Formats)+len(opts.Collages)),
	}

	renderer := collage.NewRenderer(collage.RendererOpts{
		Loader: opts.Loader,
		Logger: opts.Logger,
		OnProgress: func(done, total int) {
			sendProgress(prog, loadImagesUpdate(done, total))
		},
	})

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	completed := 0
	record := func(res ExportResult) {
		completed++
		result.Results = append(result.Results, res)
		if res.Success {
			result.SuccessfulExports++
			sendProgress(prog, exportCompletedUpdate(completed, result.TotalJobs, res.Name, len(res.Files)))
		} else {
			result.FailedExports++
			logger.Warn("export job failed", "job", res.Name, "error", res.Error)
			sendProgress(prog, exportFailedUpdate(completed, result.TotalJobs, res.Name, errors.New(res.Error)))
		}
	}

	var (
		gridMu   sync.Mutex
		gridFile string
	)
	collageJobs := make([]exportJob, 0, len(opts.Collages))
	for i, job := range opts.Collages {
		collageJobs = append(collageJobs, exportJob{
			name: string(job.Kind) + " collage",
			run: func(ctx context.Context) ([]string, error) {
				sendProgress(prog, renderingUpdate(i+1, len(opts.Collages), string(job.Kind)))
				files, err := writeCollage(ctx, renderer, lib, job, opts)
				if err == nil && job.Kind == models.CollageGrid && len(files) > 0 {
					gridMu.Lock()
					if gridFile == "" {
						gridFile = filepath.Base(files[0])
					}
					gridMu.Unlock()
				}
				return files, err
			},
		})
	}
	runPool(ctx, limiter, opts.NumWorkers, collageJobs, record)

	formatJobs := make([]exportJob, 0, len(opts.Formats))
	for i, f := range opts.Formats {
		formatJobs = append(formatJobs, exportJob{
			name: "albums." + f.Extension(),
			run: func(ctx context.Context) ([]string, error) {
				sendProgress(prog, exportingUpdate(i+1, len(opts.Formats), "albums."+f.Extension()))
				return writeFormat(lib, f, opts.OutputDir, gridFile)
			},
		})
	}
	runPool(ctx, limiter, opts.NumWorkers, formatJobs, record)

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("%w: %w", shared.ErrAborted, err)
	}

	manifestPath := filepath.Join(opts.OutputDir, "export_manifest.json")
	if err := formatter.WriteManifest(result, manifestPath); err != nil {
		return result, fmt.Errorf("export completed but failed to write manifest: %w", err)
	}
	result.ManifestPath = manifestPath
	logger.Info("export finished", "dir", opts.OutputDir, "ok", result.SuccessfulExports, "failed", result.FailedExports)
	return result, nil
}

// runPool feeds jobs to workers at the limiter's pace and hands each result to record
// on the calling goroutine.
func runPool(ctx context.Context, limiter *rate.Limiter, workers int, jobs []exportJob, record func(ExportResult)) {
	if len(jobs) == 0 {
		return
	}

	queue := make(chan exportJob, len(jobs))
	results := make(chan ExportResult, len(jobs))

	var wg sync.WaitGroup
	for range min(workers, len(jobs)) {
		wg.Add(1)
		go exportWorker(ctx, &wg, queue, results)
	}

	go func() {
		defer close(queue)
		for _, job := range jobs {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			queue <- job
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		record(res)
	}
}

// exportWorker runs jobs from the queue until it is closed or ctx is done.
func exportWorker(ctx context.Context, wg *sync.WaitGroup, jobs <-chan exportJob, results chan<- ExportResult) {
	defer wg.Done()

	for job := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res := ExportResult{Name: job.name, Files: []string{}}
		files, err := job.run(ctx)
		if err != nil {
			res.Error = err.Error()
		} else {
			res.Files = files
			res.Success = true
		}
		results <- res
	}
}

func writeFormat(lib *models.Library, f formatter.Format, dir, gridFile string) ([]string, error) {
	path := filepath.Join(dir, "albums."+f.Extension())

	if f != formatter.FormatMarkdown {
		written, err := formatter.WriteExport(lib, f, path)
		if err != nil {
			return nil, err
		}
		return []string{written}, nil
	}

	data, err := formatter.ExportToMarkdown(lib, gridFile)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return []string{path}, nil
}

func writeCollage(ctx context.Context, r *collage.Renderer, lib *models.Library, job CollageJob, opts BulkExportOpts) ([]string, error) {
	var (
		base *models.CollageArtifact
		err  error
	)
	switch job.Kind {
	case models.CollageCD:
		base, err = r.RenderCD(ctx, lib.Albums, opts.CD)
	default:
		base, err = r.RenderGrid(ctx, lib.Albums, opts.Grid)
	}
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, len(job.Scales))
	for _, scale := range job.Scales {
		artifact, err := collage.Export(base, scale)
		if err != nil {
			return files, err
		}
		path, err := collage.WriteFile(artifact, opts.OutputDir)
		if err != nil {
			return files, err
		}
		files = append(files, path)
	}
	return files, nil
}
