package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/desertthunder/albumwall/internal/shared"
	"github.com/urfave/cli/v3"
)

// setupAnswers holds what the setup form asks for.
type setupAnswers struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	FrontendURI  string
	ServerURL    string
	Analytics    bool
	AdminKey     string
}

func answersFrom(config *shared.Config) setupAnswers {
	return setupAnswers{
		ClientID:     config.Credentials.Spotify.ClientID,
		ClientSecret: config.Credentials.Spotify.ClientSecret,
		RedirectURI:  config.Credentials.Spotify.RedirectURI,
		FrontendURI:  config.Server.FrontendURI,
		ServerURL:    config.Sync.ServerURL,
		Analytics:    config.Analytics.Enabled,
		AdminKey:     config.Analytics.AdminKey,
	}
}

// apply copies the answers into config. An admin key is generated when analytics is
// enabled without one.
func (a setupAnswers) apply(config *shared.Config) {
	config.Credentials.Spotify.ClientID = strings.TrimSpace(a.ClientID)
	config.Credentials.Spotify.ClientSecret = strings.TrimSpace(a.ClientSecret)
	config.Credentials.Spotify.RedirectURI = strings.TrimSpace(a.RedirectURI)
	config.Server.FrontendURI = strings.TrimSpace(a.FrontendURI)
	config.Sync.ServerURL = strings.TrimSpace(a.ServerURL)
	config.Analytics.Enabled = a.Analytics
	config.Analytics.AdminKey = strings.TrimSpace(a.AdminKey)
	if config.Analytics.Enabled && config.Analytics.AdminKey == "" {
		config.Analytics.AdminKey = shared.GenerateID()
	}
}

func required(name string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
}

func validURL(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("enter an absolute URL such as http://127.0.0.1:8080")
	}
	return nil
}

// loadOrDefault reads the config at path, falling back to the defaults when it is missing or broken.
func (r *Runner) loadOrDefault(path string) *shared.Config {
	if _, err := os.Stat(path); err != nil {
		return shared.DefaultConfig()
	}
	config, err := shared.LoadConfig(path)
	if err != nil {
		r.logger.Warn("failed to load config, using defaults", "error", err)
		return shared.DefaultConfig()
	}
	return config
}

// SetupConfig asks for Spotify credentials and server URLs and writes them to the config file.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	config := r.loadOrDefault(configPath)
	answers := answersFrom(config)

	err := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Spotify application").
				Description("Create an app at https://developer.spotify.com/dashboard and add the redirect URI below to it."),
			huh.NewInput().
				Title("Client ID").
				Value(&answers.ClientID).
				Validate(required("client id")),
			huh.NewInput().
				Title("Client secret").
				EchoMode(huh.EchoModePassword).
				Value(&answers.ClientSecret).
				Validate(required("client secret")),
			huh.NewInput().
				Title("Redirect URI").
				Description("Must point at /callback on the session server").
				Value(&answers.RedirectURI).
				Validate(validURL),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Frontend URI").
				Description("Where the browser lands after signing in").
				Value(&answers.FrontendURI).
				Validate(validURL),
			huh.NewInput().
				Title("Session server URL").
				Description("Used by library, collage and tui").
				Value(&answers.ServerURL).
				Validate(validURL),
			huh.NewConfirm().
				Title("Record logins for the /analytics endpoint?").
				Value(&answers.Analytics),
		),
	).Run()
	if err != nil {
		return fmt.Errorf("setup form cancelled: %w", err)
	}

	answers.apply(config)
	if err := config.Validate(); err != nil {
		return err
	}
	if err := shared.WriteConfigFile(configPath, config); err != nil {
		return err
	}

	r.config = config
	r.configPath = configPath
	r.logger.Info("config written", "path", configPath)

	r.writePlain("✓ Configuration saved to %s\n", configPath)
	if config.Analytics.Enabled {
		r.writePlain("Analytics admin key: %s\n", config.Analytics.AdminKey)
		r.writePlainln("Next steps:")
		r.writePlain("1. Run 'albumwall setup database' to create the analytics database\n")
		r.writePlain("2. Run 'albumwall serve' and 'albumwall login'\n")
		return nil
	}
	r.writePlainln("Next: run 'albumwall serve' and 'albumwall login'")
	return nil
}

// SetupDatabase initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	var config *shared.Config
	if _, err := os.Stat(configPath); err == nil {
		config = r.loadOrDefault(configPath)
	} else {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
			config = shared.DefaultConfig()
		} else {
			r.logger.Info("config file created", "path", configPath)
			config = r.loadOrDefault(configPath)
		}
	}

	r.logger.Info("initializing database", "path", config.Database.Path)

	db, err := shared.OpenDatabase(config.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	r.logger.Infof("setup complete for database: %v", config.Database.Path)
	return r.writePlain("✓ Database ready at %s\n", config.Database.Path)
}
