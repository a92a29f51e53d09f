// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/lipgloss"
	"github.com/peterh/liner"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pocketpaw/pawtui/internal/chat"
	"github.com/pocketpaw/pawtui/internal/config"
	"github.com/pocketpaw/pawtui/internal/export"
	"github.com/pocketpaw/pawtui/internal/storage"
	"github.com/pocketpaw/pawtui/internal/ui/styles"
	"github.com/pocketpaw/pawtui/internal/util"
)

var (
	promptStyle  = lipgloss.NewStyle().Foreground(styles.Blue).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(styles.TextMuted)
	errorStyle   = lipgloss.NewStyle().Foreground(styles.Rose)
	successStyle = lipgloss.NewStyle().Foreground(styles.Emerald)
)

// =============================================================================
// LINE EDITOR
// =============================================================================

// lineEditor provides input history and line editing for the REPL.
type lineEditor struct {
	line        *liner.State
	historyFile string
}

func newLineEditor() *lineEditor {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.Dir()
	if err != nil {
		dir = os.TempDir()
	}
	e := &lineEditor{line: line, historyFile: filepath.Join(dir, "chat_history")}
	if f, err := os.Open(e.historyFile); err == nil {
		e.line.ReadHistory(f)
		f.Close()
	}
	return e
}

func (e *lineEditor) SetCompleter(words []string) {
	e.line.SetCompleter(func(line string) []string {
		var out []string
		for _, w := range words {
			if strings.HasPrefix(w, line) {
				out = append(out, w)
			}
		}
		return out
	})
}

// ReadInput reads one line; non-blank input is added to the history.
func (e *lineEditor) ReadInput(prompt string) (string, error) {
	input, err := e.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if !util.IsBlank(input) {
		e.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves the history with 0600 permissions and restores the terminal.
func (e *lineEditor) Close() {
	if err := config.EnsureDir(); err == nil {
		if f, err := os.OpenFile(e.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			e.line.WriteHistory(f)
			f.Close()
		}
	}
	e.line.Close()
}

// =============================================================================
// REPL
// =============================================================================

var slashCommands = []string{"/new", "/model", "/models", "/list", "/open", "/delete", "/copy", "/export", "/help", "/quit"}

type repl struct {
	app     *App
	ctrl    *chat.Controller
	runner  *chat.Runner
	out     io.Writer
	errOut  io.Writer
	printer *turnPrinter

	mu     sync.Mutex
	cancel context.CancelFunc
}

func newChatCommand(app *App) *cobra.Command {
	var modelName string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Line-mode chat with history and slash commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.connect(ctx); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			r := &repl{
				app:    app,
				ctrl:   app.newController(ctx, modelName),
				out:    out,
				errOut: cmd.ErrOrStderr(),
				printer: &turnPrinter{
					out:    out,
					errOut: cmd.ErrOrStderr(),
					md:     newMarkdownRenderer(out, app.Config.Chat.Markdown),
				},
			}
			r.runner = chat.NewRunner(r.ctrl.Service())
			if err := r.ctrl.RefreshConversations(ctx); err != nil {
				log.Debug().Err(err).Msg("conversation list unavailable")
			}
			return r.loop(ctx)
		},
	}
	cmd.Flags().StringVarP(&modelName, "model", "m", "", "model to use")
	return cmd
}

func (r *repl) loop(ctx context.Context) error {
	editor := newLineEditor()
	defer editor.Close()
	editor.SetCompleter(slashCommands)

	// The first interrupt cancels the reply in progress.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	defer signal.Stop(sig)
	go func() {
		for range sig {
			if r.cancelTurn() {
				fmt.Fprintln(r.errOut, "\n"+mutedStyle.Render("[Cancelled]"))
			}
		}
	}()

	r.printWelcome()
	for {
		input, err := editor.ReadInput(promptStyle.Render("you> "))
		if err != nil {
			if err != liner.ErrPromptAborted && err != io.EOF {
				log.Debug().Err(err).Msg("prompt failed")
			}
			fmt.Fprintln(r.out)
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if strings.HasPrefix(input, "/") {
			keepGoing, err := r.handleSlash(ctx, input)
			if err != nil {
				fmt.Fprintln(r.errOut, errorStyle.Render("[Error] ")+err.Error())
			}
			if !keepGoing {
				return nil
			}
			continue
		}
		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			return nil
		}
		r.send(ctx, input)
	}
}

func (r *repl) setCancel(cancel context.CancelFunc) {
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
}

func (r *repl) cancelTurn() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel == nil {
		return false
	}
	r.cancel()
	r.cancel = nil
	return true
}

// send runs one turn and prints the reply.
func (r *repl) send(parent context.Context, input string) {
	turn, err := r.ctrl.Submit(input)
	if err != nil {
		return
	}

	ctx, cancel := context.WithCancel(parent)
	r.setCancel(cancel)
	defer func() {
		r.cancelTurn()
	}()

	fmt.Fprintln(r.out, mutedStyle.Render("pocketpaw>"))
	p := r.printer
	sink := &chat.ControllerSink{
		Controller: r.ctrl,
		Fragment:   p.fragment,
		Done: func(refresh bool) {
			p.done(turn.Reply().Content)
			if refresh {
				if err := r.ctrl.RefreshConversations(parent); err != nil {
					log.Debug().Err(err).Msg("conversation refresh failed")
				}
			}
		},
		Failed: func(err error) {
			p.clearIndicator()
			fmt.Fprintln(r.errOut, errorStyle.Render(r.ctrl.ErrorNotice(err)))
		},
		AuthExpired: func() {
			p.clearIndicator()
			fmt.Fprintln(r.errOut, errorStyle.Render("Session expired. Reconnecting as guest..."))
			if _, err := r.app.Session.EnsureSession(parent); err != nil {
				fmt.Fprintln(r.errOut, errorStyle.Render("[Error] ")+err.Error())
				return
			}
			fmt.Fprintln(r.errOut, successStyle.Render("Reconnected. Send your message again."))
		},
	}
	p.start()
	r.runner.Run(ctx, turn, sink)
}

func (r *repl) printWelcome() {
	user := "guest"
	if u := r.app.Session.User(); u != nil {
		user = u.DisplayName()
	}
	fmt.Fprintln(r.out, promptStyle.Render("PocketPaw")+mutedStyle.Render(fmt.Sprintf(" %s as %s", r.app.BaseURL, user)))
	fmt.Fprintln(r.out, mutedStyle.Render(fmt.Sprintf("Model: %s. Type /help for commands, ctrl+d to quit.", r.ctrl.Model())))
	fmt.Fprintln(r.out)
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlash runs a slash command and reports whether the REPL continues.
func (r *repl) handleSlash(ctx context.Context, input string) (bool, error) {
	fields := strings.Fields(input)
	name, args := fields[0], fields[1:]

	switch name {
	case "/quit", "/exit", "/q":
		return false, nil

	case "/help", "/?":
		r.printHelp()

	case "/new":
		r.ctrl.NewChat()
		fmt.Fprintln(r.out, successStyle.Render("Started a new conversation."))

	case "/model":
		if len(args) == 0 {
			fmt.Fprintf(r.out, "Current model: %s\n", r.ctrl.Model())
			return true, nil
		}
		r.ctrl.SelectModel(args[0])
		if err := r.app.Store.Set(storage.KeySelectedModel, args[0]); err != nil {
			log.Warn().Err(err).Msg("failed to persist model")
		}
		fmt.Fprintf(r.out, "Model set to %s\n", args[0])

	case "/models":
		if err := r.ctrl.RefreshModels(ctx); err != nil {
			return true, err
		}
		for _, m := range r.ctrl.Models() {
			mark := "  "
			if m == r.ctrl.Model() {
				mark = "* "
			}
			fmt.Fprintln(r.out, mark+m)
		}

	case "/list":
		if err := r.ctrl.RefreshConversations(ctx); err != nil {
			return true, err
		}
		list := r.ctrl.Conversations()
		if len(list) == 0 {
			fmt.Fprintln(r.out, mutedStyle.Render("No conversations yet."))
		}
		for _, c := range list {
			mark := "  "
			if r.ctrl.Conversation().IsCurrent(c.ID) {
				mark = "* "
			}
			fmt.Fprintf(r.out, "%s%4d  %s\n", mark, c.ID, util.Truncate(util.SingleLine(c.Title), 60))
		}

	case "/open":
		id, err := r.argID(args)
		if err != nil {
			return true, err
		}
		if err := r.ctrl.LoadConversation(ctx, id); err != nil {
			return true, err
		}
		r.printConversation()

	case "/delete":
		id, err := r.argID(args)
		if err != nil {
			return true, err
		}
		if err := r.ctrl.DeleteConversation(ctx, id); err != nil {
			return true, err
		}
		fmt.Fprintf(r.out, "Deleted conversation %d\n", id)

	case "/copy":
		text := r.ctrl.Conversation().LastAssistantText()
		if text == "" {
			return true, errors.New("nothing to copy")
		}
		if err := clipboard.WriteAll(text); err != nil {
			return true, errors.Wrap(err, "clipboard")
		}
		fmt.Fprintln(r.out, successStyle.Render("Copied last reply."))

	case "/export":
		format := "md"
		if len(args) > 0 {
			format = args[0]
		}
		exp, err := export.New(format, nil)
		if err != nil {
			return true, err
		}
		path, err := export.ToFile(export.FromConversation(r.ctrl.Conversation(), r.ctrl.Model()), exp, ".")
		if err != nil {
			return true, err
		}
		fmt.Fprintln(r.out, successStyle.Render("Exported to "+path))

	default:
		return true, fmt.Errorf("unknown command %s (try /help)", name)
	}
	return true, nil
}

// argID parses the conversation id argument, defaulting to the open
// conversation.
func (r *repl) argID(args []string) (int, error) {
	if len(args) == 0 {
		if id := r.ctrl.ConversationID(); id != nil {
			return *id, nil
		}
		return 0, errors.New("usage: give a conversation id (see /list)")
	}
	return parseConversationID(args[0])
}

func (r *repl) printConversation() {
	conv := r.ctrl.Conversation()
	fmt.Fprintln(r.out, promptStyle.Render(conv.Title))
	for _, m := range conv.Messages {
		fmt.Fprintln(r.out, mutedStyle.Render(m.Role.DisplayName()+":"))
		fmt.Fprintln(r.out, strings.TrimRight(renderMarkdown(r.printer.md, m.Content), "\n"))
	}
	fmt.Fprintln(r.out)
}

func (r *repl) printHelp() {
	help := [][2]string{
		{"/new", "start a new conversation"},
		{"/model [name]", "show or set the model"},
		{"/models", "list models on the server"},
		{"/list", "list conversations"},
		{"/open <id>", "open a conversation"},
		{"/delete [id]", "delete a conversation (default: the open one)"},
		{"/copy", "copy the last reply to the clipboard"},
		{"/export [md|json|html]", "write the conversation to a file"},
		{"/help", "show this help"},
		{"/quit", "exit"},
	}
	for _, h := range help {
		fmt.Fprintf(r.out, "  %s %s\n", promptStyle.Render(util.PadRight(h[0], 22)), h[1])
	}
	fmt.Fprintln(r.out, mutedStyle.Render("\nctrl+c cancels a reply, ctrl+d exits."))
}
