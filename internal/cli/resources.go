// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/pocketpaw/pawtui/internal/chat"
	"github.com/pocketpaw/pawtui/internal/export"
	"github.com/pocketpaw/pawtui/internal/memory"
	"github.com/pocketpaw/pawtui/internal/model"
	"github.com/pocketpaw/pawtui/internal/session"
	"github.com/pocketpaw/pawtui/internal/util"
)

func parseConversationID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid conversation id %q", s)
	}
	return id, nil
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

func newConversationsCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv"},
		Short:   "List, show and delete conversations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.connect(cmd.Context()); err != nil {
				return err
			}
			svc := chat.NewService(app.Client, app.Session)
			list, err := svc.Conversations(cmd.Context())
			if err != nil {
				return errors.Wrap(err, "fetch conversations")
			}
			rows := make([]conversationRow, 0, len(list))
			for _, c := range list {
				rows = append(rows, conversationRow{ID: c.ID, Title: c.Title})
			}
			return app.printer(cmd.OutOrStdout(), "conversations list").Print(rows, func(tw io.Writer) {
				fmt.Fprintln(tw, "ID\tTITLE")
				for _, r := range rows {
					fmt.Fprintf(tw, "%d\t%s\n", r.ID, util.Truncate(util.SingleLine(r.Title), 60))
				}
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Print the messages of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseConversationID(args[0])
			if err != nil {
				return err
			}
			if err := app.connect(cmd.Context()); err != nil {
				return err
			}
			d, err := chat.NewService(app.Client, app.Session).Conversation(cmd.Context(), id)
			if err != nil {
				return errors.Wrapf(err, "fetch conversation %d", id)
			}
			rows := make([]messageRow, 0, len(d.Messages))
			for _, m := range d.Messages {
				rows = append(rows, messageRow{Role: string(m.Role), Content: m.Content})
			}
			out := cmd.OutOrStdout()
			return app.printer(out, "conversations show").Print(rows, func(w io.Writer) {
				md := newMarkdownRenderer(out, app.Config.Chat.Markdown)
				for _, r := range rows {
					fmt.Fprintf(w, "%s:\n", model.Role(r.Role).DisplayName())
					if model.Role(r.Role) == model.RoleAssistant {
						fmt.Fprintln(w, strings.TrimRight(renderMarkdown(md, r.Content), "\n"))
					} else {
						fmt.Fprintln(w, r.Content)
					}
					fmt.Fprintln(w)
				}
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a conversation",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseConversationID(args[0])
			if err != nil {
				return err
			}
			if err := app.connect(cmd.Context()); err != nil {
				return err
			}
			if err := chat.NewService(app.Client, app.Session).DeleteConversation(cmd.Context(), id); err != nil {
				return errors.Wrapf(err, "delete conversation %d", id)
			}
			return app.printer(cmd.OutOrStdout(), "conversations rm").Message("Deleted conversation %d", id)
		},
	})

	cmd.AddCommand(newExportCommand(app))
	return cmd
}

func newExportCommand(app *App) *cobra.Command {
	var format, dir string
	var stdout, timestamps bool
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Write a conversation to a Markdown, JSON or HTML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseConversationID(args[0])
			if err != nil {
				return err
			}
			opts := export.DefaultOptions()
			opts.IncludeTimestamps = timestamps
			if app.Config.UI.Theme == "light" {
				opts.Theme = "light"
			}
			exp, err := export.New(format, opts)
			if err != nil {
				return err
			}
			if err := app.connect(cmd.Context()); err != nil {
				return err
			}
			d, err := chat.NewService(app.Client, app.Session).Conversation(cmd.Context(), id)
			if err != nil {
				return errors.Wrapf(err, "fetch conversation %d", id)
			}
			doc := export.FromConversation(model.FromDetail(id, d), "")

			if stdout {
				content, err := exp.Export(doc)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(content)
				return err
			}
			path, err := export.ToFile(doc, exp, dir)
			if err != nil {
				return err
			}
			return app.printer(cmd.OutOrStdout(), "conversations export").Message("Exported conversation %d to %s", id, path)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "md", "export format: "+strings.Join(export.Formats, ", "))
	cmd.Flags().StringVar(&dir, "dir", ".", "directory to write the file into")
	cmd.Flags().BoolVar(&stdout, "stdout", false, "write to stdout instead of a file")
	cmd.Flags().BoolVar(&timestamps, "timestamps", false, "include per-message times")
	return cmd
}

// =============================================================================
// MEMORY
// =============================================================================

func memoryRows(items []model.Memory) []memoryRow {
	rows := make([]memoryRow, 0, len(items))
	for _, m := range items {
		rows = append(rows, memoryRow{ID: m.ID.String(), Text: m.Text, CreatedAt: m.CreatedAt.Display()})
	}
	return rows
}

func (a *App) printMemories(w io.Writer, command string, items []model.Memory) error {
	rows := memoryRows(items)
	return a.printer(w, command).Print(rows, func(tw io.Writer) {
		fmt.Fprintln(tw, "ID\tCREATED\tTEXT")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", r.ID, r.CreatedAt, util.Truncate(util.SingleLine(r.Text), 70))
		}
	})
}

func newMemoryCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "memory",
		Aliases: []string{"mem"},
		Short:   "Manage the memory bank",
	}
	service := func() *memory.Service {
		return memory.NewService(app.Client, app.Session, app.Config.Memory.SearchLimit)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List memories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.connect(cmd.Context()); err != nil {
				return err
			}
			items, err := service().List(cmd.Context())
			if err != nil {
				return errors.Wrap(err, "fetch memories")
			}
			return app.printMemories(cmd.OutOrStdout(), "memory list", items)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <text>...",
		Short: "Add a memory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if util.IsBlank(text) {
				return errors.New("memory text is empty")
			}
			if err := app.connect(cmd.Context()); err != nil {
				return err
			}
			m, err := service().Add(cmd.Context(), text)
			if err != nil {
				return errors.Wrap(err, "add memory")
			}
			return app.printMemories(cmd.OutOrStdout(), "memory add", []model.Memory{*m})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a memory",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.connect(cmd.Context()); err != nil {
				return err
			}
			id := model.OpaqueID(args[0])
			if err := service().Delete(cmd.Context(), id); err != nil {
				return errors.Wrapf(err, "delete memory %s", id)
			}
			return app.printer(cmd.OutOrStdout(), "memory rm").Message("Deleted memory %s", id)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "search <query>...",
		Short: "Search memories by meaning",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.connect(cmd.Context()); err != nil {
				return err
			}
			query := strings.TrimSpace(strings.Join(args, " "))
			svc := service()
			var items []model.Memory
			var err error
			if query == "" {
				items, err = svc.List(cmd.Context())
			} else {
				items, err = svc.Search(cmd.Context(), query)
			}
			if err != nil {
				return errors.Wrap(err, "search memories")
			}
			return app.printMemories(cmd.OutOrStdout(), "memory search", items)
		},
	})
	return cmd
}

// =============================================================================
// MODELS AND TOOLS
// =============================================================================

func newModelsCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models installed on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.connect(cmd.Context()); err != nil {
				return err
			}
			list, err := session.Call(cmd.Context(), app.Session, app.Client.ListModels)
			if err != nil {
				return errors.Wrap(err, "fetch models")
			}
			def := model.DefaultModel(list.Names(), app.Config.Chat.DefaultModel, "")
			rows := make([]modelRow, 0, len(list.Models))
			for _, m := range list.Models {
				rows = append(rows, modelRow{
					Name:       m.Name,
					Size:       m.Size,
					ModifiedAt: m.ModifiedAt.Display(),
					Default:    m.Name == def,
				})
			}
			return app.printer(cmd.OutOrStdout(), "models").Print(rows, func(tw io.Writer) {
				fmt.Fprintln(tw, "NAME\tSIZE\tMODIFIED\t")
				for _, r := range rows {
					mark := ""
					if r.Default {
						mark = "(default)"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Name, util.FormatGB(r.Size), r.ModifiedAt, mark)
				}
			})
		},
	}
}

func newToolsCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List and run server tools",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.connect(cmd.Context()); err != nil {
				return err
			}
			tools, err := session.Call(cmd.Context(), app.Session, app.Client.ListTools)
			if err != nil || len(tools) == 0 {
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Tool list unavailable (%v); showing built-in tools.\n", err)
				}
				tools = model.BuiltinTools
			}
			rows := make([]toolRow, 0, len(tools))
			for _, t := range tools {
				rows = append(rows, toolRow{Name: t.Name, Title: t.Title(), Description: t.Description})
			}
			return app.printer(cmd.OutOrStdout(), "tools list").Print(rows, func(tw io.Writer) {
				fmt.Fprintln(tw, "NAME\tTITLE\tDESCRIPTION")
				for _, r := range rows {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Name, r.Title, util.Truncate(r.Description, 60))
				}
			})
		},
	})

	var rawArgs string
	run := &cobra.Command{
		Use:   "run <name> [key=value]...",
		Short: "Execute a tool",
		Long:  "Execute a tool with arguments given as key=value pairs or as a JSON object with --args.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			toolArgs, err := parseToolArgs(rawArgs, args[1:])
			if err != nil {
				return err
			}
			if err := app.connect(cmd.Context()); err != nil {
				return err
			}
			name := args[0]
			res, err := session.Call(cmd.Context(), app.Session, func(ctx context.Context) (*model.ToolResult, error) {
				return app.Client.ExecuteTool(ctx, name, toolArgs)
			})
			if err != nil {
				return errors.Wrapf(err, "run tool %s", name)
			}
			data := map[string]interface{}{"status": res.Status, "result": res.Text()}
			return app.printer(cmd.OutOrStdout(), "tools run").Print(data, func(w io.Writer) {
				fmt.Fprintln(w, res.Text())
			})
		},
	}
	run.Flags().StringVar(&rawArgs, "args", "", "arguments as a JSON object")
	cmd.AddCommand(run)
	return cmd
}

// parseToolArgs merges a JSON object with key=value pairs. Values that parse
// as JSON (numbers, booleans) keep their type; everything else is a string.
func parseToolArgs(raw string, pairs []string) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	if strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &out); err != nil {
			return nil, errors.Wrap(err, "--args must be a JSON object")
		}
	}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("argument %q is not key=value", p)
		}
		var typed interface{}
		if err := json.Unmarshal([]byte(v), &typed); err == nil {
			if _, isString := typed.(string); !isString {
				out[k] = typed
				continue
			}
		}
		out[k] = v
	}
	return out, nil
}
