// submodule cmd contains command definitions
package main

import (
	"github.com/desertthunder/albumwall/internal/formatter"
	"github.com/urfave/cli/v3"
)

// libraryFlags are the session flags plus the choice of who pages the Web API.
func libraryFlags(extra ...cli.Flag) []cli.Flag {
	flags := append(sessionFlags(), &cli.BoolFlag{
		Name:  "via-server",
		Usage: "Let the session server aggregate the library",
	})
	return append(flags, extra...)
}

// setupCommand handles setup operations for configuration and the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:  "config",
				Usage: "Interactively write Spotify credentials and server settings",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   "config.toml",
					},
				},
				Action: r.SetupConfig,
			},
			{
				Name:  "database",
				Usage: "Initialize the analytics database and run migrations",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   "config.toml",
					},
				},
				Action: r.SetupDatabase,
			},
		},
	}
}

// serveCommand runs the session server.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the session server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Interface to listen on (default: server.host from config)",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to listen on (default: server.port from config)",
			},
		},
		Action: r.Serve,
	}
}

// loginCommand signs in through a browser and saves the session.
func loginCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Sign in with Spotify and save the session",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "session",
				Usage: "Path to save the session to",
				Value: defaultSessionPath(),
			},
			&cli.BoolFlag{
				Name:  "no-browser",
				Usage: "Print the sign-in URL instead of opening a browser",
			},
		},
		Action: r.Login,
	}
}

// logoutCommand ends the session.
func logoutCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "logout",
		Usage:  "Sign out and forget the saved session",
		Flags:  sessionFlags(),
		Action: r.Logout,
	}
}

// statusCommand checks the saved session.
func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Check whether the saved session can mint an access token",
		Flags: append(sessionFlags(), &cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		}),
		Action: r.Status,
	}
}

// libraryCommand prints the saved album library.
func libraryCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "library",
		Aliases: []string{"albums"},
		Usage:   "Fetch your saved albums",
		Flags: libraryFlags(
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: json, csv, md or txt",
				Value:   string(formatter.FormatText),
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write to a file instead of stdout",
			},
		),
		Action: r.Library,
	}
}

// exportCommand writes the library and collages into one directory.
func exportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export the library in several formats plus collages",
		Flags: libraryFlags(
			&cli.StringSliceFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Library formats to write (repeatable): json, csv, md, txt",
			},
			&cli.IntSliceFlag{
				Name:  "grid",
				Usage: "Render a grid collage at these scales (repeatable)",
			},
			&cli.IntSliceFlag{
				Name:  "cd",
				Usage: "Render a CD collage at these scales (repeatable)",
			},
			&cli.StringFlag{
				Name:    "output-dir",
				Aliases: []string{"o"},
				Usage:   "Output directory (default: albumwall_export_{timestamp})",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Number of concurrent export jobs",
				Value: 4,
			},
			&cli.Float64Flag{
				Name:  "rate-limit",
				Usage: "Jobs started per second",
				Value: 5,
			},
			&cli.BoolFlag{
				Name:  "watermark",
				Usage: "Draw your display name on the collages",
			},
		),
		Action: r.Export,
	}
}

// collageCommand renders a single collage.
func collageCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "collage",
		Usage: "Render a collage of your saved albums",
		Flags: libraryFlags(
			&cli.StringFlag{
				Name:    "layout",
				Aliases: []string{"l"},
				Usage:   "Collage layout: grid or cd (default: collage.layout from config)",
			},
			&cli.IntFlag{
				Name:  "size",
				Usage: "Grid columns; 0 picks a layout from the album count",
			},
			&cli.IntFlag{
				Name:  "count",
				Usage: "Number of discs in a CD collage; 0 renders every album",
			},
			&cli.IntFlag{
				Name:    "scale",
				Aliases: []string{"s"},
				Usage:   "Export scale from 1 to 4",
			},
			&cli.StringFlag{
				Name:  "background",
				Usage: "Background color as #RRGGBB",
			},
			&cli.BoolFlag{
				Name:  "watermark",
				Usage: "Draw your display name in the corner",
			},
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "Output directory",
				Value:   ".",
			},
		),
		Action: r.Collage,
	}
}

// tuiCommand returns the top-level TUI command for browsing the library.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Browse your saved albums and render collages interactively",
		Flags: append(sessionFlags(),
			&cli.StringFlag{
				Name:  "out",
				Usage: "Directory collages are written to",
				Value: ".",
			},
			&cli.BoolFlag{
				Name:  "watermark",
				Usage: "Draw your display name on collages",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "File the TUI logs to",
				Value: "./tmp/albumwall-tui.log",
			},
		),
		Action: r.TUI,
	}
}
