package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/albumwall/internal/collage"
	"github.com/desertthunder/albumwall/internal/shared"
	"github.com/desertthunder/albumwall/internal/tasks"
	"github.com/desertthunder/albumwall/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive terminal UI, keeping the library in sync while it runs.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	logPath := cmd.String("log-file")
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	defer logFile.Close()
	r.SetLogger(shared.NewLogger(logFile))

	client, done, err := r.sessionClient(ctx, cmd)
	if err != nil {
		return err
	}
	defer done()

	syncer, err := tasks.NewSyncer(tasks.SyncerOpts{
		Refresher: client,
		Library:   r.libraryService(r.config),
		Interval:  time.Duration(r.config.Sync.IntervalSeconds) * time.Second,
		Logger:    r.logger,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	synced := make(chan error, 1)
	go func() {
		synced <- syncer.Run(ctx)
	}()

	conf := r.config.Collage
	scale := conf.Scale
	if scale < 1 {
		scale = 1
	}
	model := ui.NewModel(ctx, syncer, ui.Options{
		OutputDir: cmd.String("out"),
		Scale:     scale,
		Grid:      collage.GridOptions{GridSize: conf.GridSize, Background: conf.Background},
		CD:        collage.CDOptions{Count: conf.Count, Background: conf.Background},
		Watermark: cmd.Bool("watermark"),
		Loader:    collage.NewHTTPLoader(nil, time.Duration(conf.ImageTimeoutSeconds)*time.Second),
	})
	p := tea.NewProgram(model, tea.WithAltScreen())

	_, runErr := p.Run()
	cancel()
	if err := <-synced; err != nil {
		r.logger.Warn("sync loop stopped", "error", err)
	}
	if runErr != nil {
		return fmt.Errorf("error running TUI: %w", runErr)
	}
	return nil
}
