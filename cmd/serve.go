package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/albumwall/internal/repositories"
	"github.com/desertthunder/albumwall/internal/server"
	"github.com/desertthunder/albumwall/internal/shared"
	"github.com/urfave/cli/v3"
)

// Serve validates the configuration and runs the session server until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	conf := *r.config
	if cmd.IsSet("host") {
		conf.Server.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		conf.Server.Port = int(cmd.Int("port"))
	}

	if err := conf.Validate(); err != nil {
		return err
	}

	opts := r.serverOptions(&conf)
	if conf.Analytics.Enabled {
		db, err := shared.OpenDatabase(conf.Database)
		if err != nil {
			return fmt.Errorf("failed to open analytics database: %w", err)
		}
		defer db.Close()
		opts.Analytics = repositories.NewLoginRepository(db)
		r.logger.Info("login analytics enabled", "database", conf.Database.Path)
	}

	srv, err := server.New(opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r.logger.Info("starting session server", "addr", srv.Addr(), "environment", conf.Server.Environment)
	return srv.ListenAndServe(ctx)
}
