// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pocketpaw/pawtui/internal/api"
	"github.com/pocketpaw/pawtui/internal/config"
	"github.com/pocketpaw/pawtui/internal/logging"
	"github.com/pocketpaw/pawtui/internal/session"
	"github.com/pocketpaw/pawtui/internal/storage"
)

// Options are the global flags.
type Options struct {
	ConfigDir string
	APIURL    string
	LogLevel  string
	Debug     bool
	Output    string
}

// App is the runtime shared by every command. The state store and API
// client are opened on first use so that commands like `config path` work
// without them.
type App struct {
	Version string
	Options Options

	Config    *config.Config
	Store     storage.Store
	Cred      *session.Credential
	Client    *api.Client
	Session   *session.Session
	BaseURL   string
	URLSource config.URLSource

	// interactive is set by the TUI command; logs then stay out of the
	// terminal even with --debug.
	interactive bool
	logCloser   io.Closer
}

// NewApp creates an App for version.
func NewApp(version string) *App {
	return &App{Version: version}
}

// Execute runs the command tree and returns the process exit code.
func Execute(version string) int {
	app := NewApp(version)
	err := NewRootCommand(app).Execute()
	app.Close()
	if err != nil {
		return 1
	}
	return 0
}

// NewRootCommand builds the command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "pawtui",
		Short:         "Terminal client for the PocketPaw assistant",
		Long:          "pawtui talks to a PocketPaw server: chat with local models, browse\nconversations and manage the memory bank.",
		Version:       app.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd.Context(), app)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&app.Options.ConfigDir, "config-dir", "", "configuration directory (default ~/.pocketpaw)")
	flags.StringVar(&app.Options.APIURL, "api-url", "", "API base URL for this run")
	flags.StringVar(&app.Options.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.BoolVar(&app.Options.Debug, "debug", false, "debug logging, mirrored to stderr")
	flags.StringVarP(&app.Options.Output, "output", "o", "table", "output format: table, json or yaml")

	root.AddCommand(
		newChatCommand(app),
		newAskCommand(app),
		newConversationsCommand(app),
		newMemoryCommand(app),
		newModelsCommand(app),
		newToolsCommand(app),
		newWhoamiCommand(app),
		newLoginCommand(app),
		newLogoutCommand(app),
		newConfigCommand(app),
		newAPIURLCommand(app),
	)
	return root
}

// setup loads configuration and installs the logger.
func (a *App) setup(cmd *cobra.Command) error {
	if a.Options.ConfigDir != "" {
		if err := os.Setenv("PAWTUI_HOME", a.Options.ConfigDir); err != nil {
			return err
		}
	}
	switch strings.ToLower(a.Options.Output) {
	case "table", "json", "yaml":
		a.Options.Output = strings.ToLower(a.Options.Output)
	default:
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", a.Options.Output)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.Options.LogLevel != "" {
		cfg.Log.Level = a.Options.LogLevel
	}
	if a.Options.Debug {
		cfg.Log.Level = "debug"
	}
	config.SetGlobal(cfg)
	a.Config = cfg

	if err := config.EnsureDir(); err != nil {
		return err
	}
	logFile, err := config.ResolvePath(cfg.Log.File)
	if err != nil {
		return err
	}
	a.interactive = cmd.Parent() == nil
	closer, err := logging.Setup(logging.Options{
		Level:   cfg.Log.Level,
		File:    logFile,
		Console: a.Options.Debug && !a.interactive,
	})
	if err != nil {
		return err
	}
	a.logCloser = closer

	log.Debug().Str("command", cmd.CommandPath()).Str("version", a.Version).Msg("starting")
	return nil
}

// open opens the state store and builds the API client and session.
func (a *App) open() error {
	if a.Session != nil {
		return nil
	}
	cfg := a.Config
	if cfg == nil {
		return errors.New("configuration not loaded")
	}

	statePath, err := config.ResolvePath(cfg.Session.StateFile)
	if err != nil {
		return err
	}
	keyPath, err := config.ResolvePath("key")
	if err != nil {
		return err
	}
	store, err := storage.Open(storage.Options{
		Path:       statePath,
		Seal:       cfg.Session.SealToken,
		KeyPath:    keyPath,
		Passphrase: cfg.Session.Passphrase,
	})
	if err != nil {
		return errors.Wrap(err, "open state store")
	}
	a.Store = store

	a.BaseURL, a.URLSource = a.resolveBaseURL()
	log.Info().Str("url", a.BaseURL).Str("source", string(a.URLSource)).Msg("api base url")

	a.Cred = session.NewCredential(store)
	a.Client = api.NewClient(&api.ClientConfig{
		BaseURL:           a.BaseURL,
		Timeout:           cfg.API.RequestTimeout(),
		RequestsPerSecond: cfg.API.RequestsPerSecond,
		Burst:             cfg.API.Burst,
		SkipNgrokWarning:  cfg.API.SkipNgrokWarning,
		UserAgent:         cfg.API.UserAgent + "/" + a.Version,
	}, a.Cred)
	a.Session = session.New(a.Cred, a.Client, session.Config{ReauthAttempts: cfg.Session.ReauthAttempts})
	return nil
}

func (a *App) resolveBaseURL() (string, config.URLSource) {
	if u := strings.TrimSpace(a.Options.APIURL); u != "" {
		return strings.TrimRight(u, "/"), config.SourceFlag
	}
	override := ""
	if v, ok, err := a.Store.Get(storage.KeyAPIURL); err != nil {
		log.Warn().Err(err).Msg("failed to read api url override")
	} else if ok {
		override = v
	}
	return a.Config.ResolveBaseURL(override)
}

// connect opens the backend and runs the session bootstrap.
func (a *App) connect(ctx context.Context) error {
	if err := a.open(); err != nil {
		return err
	}
	if _, err := a.Session.EnsureSession(ctx); err != nil {
		return errors.Wrapf(err, "connect to %s", a.BaseURL)
	}
	return nil
}

// Close releases the store and the log file.
func (a *App) Close() {
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close state store")
		}
		a.Store = nil
	}
	if a.logCloser != nil {
		a.logCloser.Close()
		a.logCloser = nil
	}
}
