// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/pocketpaw/pawtui/internal/config"
	"github.com/pocketpaw/pawtui/internal/storage"
)

func newConfigCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show and edit config.toml",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			text, err := app.Config.TOML()
			if err != nil {
				return err
			}
			doc, err := configDocument(app.Config)
			if err != nil {
				return err
			}
			return app.printer(out, "config show").Print(doc, func(w io.Writer) {
				fmt.Fprint(w, highlight(out, text, "toml"))
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Print one setting, e.g. chat.default_model",
		Args:  cobra.ExactArgs(1),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			return config.Keys(), cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := app.Config.Get(args[0])
			if err != nil {
				return err
			}
			if args[0] == "session.passphrase" && v != "" {
				v = "[REDACTED]"
			}
			return app.printer(cmd.OutOrStdout(), "config get").Print(map[string]interface{}{args[0]: v}, func(w io.Writer) {
				fmt.Fprintln(w, v)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one setting in config.toml",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.Path()
			if err != nil {
				return err
			}
			cfg, err := config.LoadFromPath(path)
			if err != nil {
				return err
			}
			if err := cfg.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := config.SaveTo(cfg, path); err != nil {
				return errors.Wrap(err, "save config")
			}
			return app.printer(cmd.OutOrStdout(), "config set").Message("Set %s in %s", args[0], path)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.Path()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), path)
			return err
		},
	})
	return cmd
}

// configDocument converts cfg to a generic document keyed like the TOML
// file, with the passphrase redacted.
func configDocument(cfg *config.Config) (map[string]interface{}, error) {
	safe := cfg.Clone()
	if safe.Session.Passphrase != "" {
		safe.Session.Passphrase = "[REDACTED]"
	}
	data, err := json.Marshal(safe)
	if err != nil {
		return nil, err
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// =============================================================================
// API URL OVERRIDE
// =============================================================================

func newAPIURLCommand(app *App) *cobra.Command {
	var clearOverride bool
	cmd := &cobra.Command{
		Use:   "api-url [url]",
		Short: "Show or change the stored API URL override",
		Long: "The stored override wins over the build-time URL and api.base_url.\n" +
			"It is read at startup; a running dashboard keeps its current URL.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.open(); err != nil {
				return err
			}
			p := app.printer(cmd.OutOrStdout(), "api-url")
			switch {
			case clearOverride:
				if err := app.Store.Delete(storage.KeyAPIURL); err != nil {
					return err
				}
				u, src := app.Config.ResolveBaseURL("")
				return p.Message("Override cleared; using %s (%s)", u, src)
			case len(args) == 1:
				u := strings.TrimRight(strings.TrimSpace(args[0]), "/")
				if err := config.ValidateBaseURL(u); err != nil {
					return err
				}
				if err := app.Store.Set(storage.KeyAPIURL, u); err != nil {
					return err
				}
				return p.Message("API URL override set to %s", u)
			}

			override, _, err := app.Store.Get(storage.KeyAPIURL)
			if err != nil {
				return err
			}
			data := map[string]string{
				"url":      app.BaseURL,
				"source":   string(app.URLSource),
				"override": override,
			}
			return p.Print(data, func(w io.Writer) {
				fmt.Fprintf(w, "%s\t(%s)\n", app.BaseURL, app.URLSource)
			})
		},
	}
	cmd.Flags().BoolVar(&clearOverride, "clear", false, "remove the stored override")
	return cmd
}
