package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/albumwall/internal/server"
	"github.com/desertthunder/albumwall/internal/services"
	"github.com/desertthunder/albumwall/internal/shared"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	metrics    *server.Metrics
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	Metrics    *server.Metrics
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if opts.Metrics == nil {
		opts.Metrics = server.NewMetrics()
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		metrics:    opts.Metrics,
	}
}

// SetLogger replaces the logger, e.g. to keep log lines out of the TUI.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, serveCommand, loginCommand, logoutCommand, statusCommand,
		libraryCommand, exportCommand, collageCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// libraryService builds the Web API client from the library settings.
func (r *Runner) libraryService(conf *shared.Config) *services.SpotifyService {
	var client *http.Client
	if conf.Library.TimeoutSeconds > 0 {
		client = &http.Client{Timeout: time.Duration(conf.Library.TimeoutSeconds) * time.Second}
	}
	return services.NewSpotifyService(services.SpotifyOpts{
		HTTPClient:        client,
		Logger:            r.logger,
		PageSize:          conf.Library.PageSize,
		RequestsPerSecond: conf.Library.RequestsPerSecond,
		MaxAttempts:       conf.Library.MaxAttempts,
		OnRestart:         r.metrics.LibraryRestart,
	})
}

// serverOptions wires the token and library clients for a session server built from conf.
func (r *Runner) serverOptions(conf *shared.Config) server.Options {
	return server.Options{
		Config:  conf,
		Tokens:  services.NewTokenClient(conf.Credentials.Spotify, services.TokenClientOpts{Logger: r.logger}),
		Library: r.libraryService(conf),
		Metrics: r.metrics,
		Logger:  r.logger,
	}
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
