// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"

	"github.com/pocketpaw/pawtui/internal/config"
	"github.com/pocketpaw/pawtui/internal/ui"
	"github.com/pocketpaw/pawtui/internal/ui/styles"
)

// runTUI starts the dashboard and blocks until it exits. config.toml is
// watched while it runs; changes are applied without a restart.
func runTUI(ctx context.Context, app *App) error {
	if err := app.open(); err != nil {
		return err
	}
	cfg := app.Config

	m := ui.New(ui.Deps{
		Config:    cfg,
		Session:   app.Session,
		Client:    app.Client,
		Store:     app.Store,
		URLSource: app.URLSource,
		Theme:     styles.NewTheme(cfg.UI.Theme),
	})

	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if cfg.UI.AltScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	p := tea.NewProgram(m, opts...)
	m.SetSender(p.Send)

	app.Session.SetResetCallback(func() {
		log.Info().Msg("session reset, returning to connecting screen")
		p.Send(ui.SessionResetMsg{})
	})

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	if path, err := config.Path(); err == nil {
		w, err := config.NewWatcher(path, 0, func(c *config.Config) {
			config.SetGlobal(c)
			p.Send(ui.ConfigReloadedMsg{Config: c})
		})
		if err != nil {
			log.Warn().Err(err).Msg("config watcher unavailable")
		} else {
			go w.Run(watchCtx)
		}
	}

	_, err := p.Run()
	m.Shutdown()
	if err == tea.ErrProgramKilled && ctx.Err() != nil {
		return nil
	}
	return err
}
