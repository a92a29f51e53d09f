// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pocketpaw/pawtui/internal/chat"
	"github.com/pocketpaw/pawtui/internal/storage"
)

// =============================================================================
// SHARED TURN HANDLING
// =============================================================================

// newController creates a chat controller with the model selected: an
// explicit name wins, then the model stored by the REPL, then the server's
// default.
func (a *App) newController(ctx context.Context, explicit string) *chat.Controller {
	ctrl := chat.NewController(
		chat.NewService(a.Client, a.Session),
		chat.Config{DefaultModel: a.Config.Chat.DefaultModel, ErrorHint: a.Config.Chat.ErrorHint},
	)
	if err := ctrl.RefreshModels(ctx); err != nil {
		log.Debug().Err(err).Msg("model list unavailable")
	}
	switch {
	case explicit != "":
		ctrl.SelectModel(explicit)
	case a.storedModel() != "":
		ctrl.SelectModel(a.storedModel())
	case ctrl.Model() == "":
		ctrl.SelectModel(a.Config.Chat.DefaultModel)
	}
	return ctrl
}

func (a *App) storedModel() string {
	v, ok, err := a.Store.Get(storage.KeySelectedModel)
	if err != nil || !ok {
		return ""
	}
	return v
}

// turnPrinter writes one reply. Fragments stream straight through unless
// the reply is rendered as markdown once complete.
type turnPrinter struct {
	out    io.Writer
	errOut io.Writer
	md     *glamour.TermRenderer
	last   string
}

func (p *turnPrinter) start() {
	p.last = ""
	if p.md != nil {
		fmt.Fprint(p.errOut, "Thinking...")
	}
}

func (p *turnPrinter) clearIndicator() {
	if p.md != nil {
		fmt.Fprint(p.errOut, "\r\033[K")
	}
}

func (p *turnPrinter) fragment(s string) {
	if p.md == nil {
		fmt.Fprint(p.out, s)
		p.last = s
	}
}

func (p *turnPrinter) done(content string) {
	if p.md != nil {
		p.clearIndicator()
		fmt.Fprint(p.out, renderMarkdown(p.md, content))
		return
	}
	if !strings.HasSuffix(p.last, "\n") {
		fmt.Fprintln(p.out)
	}
}

// =============================================================================
// ASK
// =============================================================================

func newAskCommand(app *App) *cobra.Command {
	var modelName string
	var conversation int
	var raw bool
	cmd := &cobra.Command{
		Use:   "ask <prompt>...",
		Short: "Send one message and stream the reply",
		Long:  "Send one message and stream the reply to stdout. Use - to read the prompt from stdin.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.Join(args, " ")
			if prompt == "-" {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return errors.Wrap(err, "read prompt")
				}
				prompt = string(b)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			if err := app.connect(ctx); err != nil {
				return err
			}

			ctrl := app.newController(ctx, modelName)
			if conversation > 0 {
				if err := ctrl.LoadConversation(ctx, conversation); err != nil {
					return err
				}
			}
			turn, err := ctrl.Submit(prompt)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			p := &turnPrinter{out: out, errOut: cmd.ErrOrStderr()}
			if !raw {
				p.md = newMarkdownRenderer(out, app.Config.Chat.Markdown)
			}
			var turnErr error
			sink := &chat.ControllerSink{
				Controller: ctrl,
				Fragment:   p.fragment,
				Done: func(bool) {
					p.done(turn.Reply().Content)
				},
				Failed: func(err error) {
					p.clearIndicator()
					turnErr = errors.New(ctrl.ErrorNotice(err))
				},
				AuthExpired: func() {
					p.clearIndicator()
					turnErr = errors.New("session expired; run the command again to sign in as guest")
				},
			}
			p.start()
			chat.NewRunner(ctrl.Service()).Run(ctx, turn, sink)
			return turnErr
		},
	}
	cmd.Flags().StringVarP(&modelName, "model", "m", "", "model to use")
	cmd.Flags().IntVarP(&conversation, "conversation", "c", 0, "continue an existing conversation")
	cmd.Flags().BoolVar(&raw, "raw", false, "print the reply without markdown rendering")
	return cmd
}
