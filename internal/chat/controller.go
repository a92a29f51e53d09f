// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/pocketpaw/pawtui/internal/api"
	"github.com/pocketpaw/pawtui/internal/model"
	"github.com/pocketpaw/pawtui/internal/util"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config holds configuration for the controller.
type Config struct {
	// DefaultModel is selected until a model list arrives.
	DefaultModel string

	// ErrorHint follows the error text of a failed turn.
	ErrorHint string
}

// DefaultConfig returns the default controller configuration.
func DefaultConfig() Config {
	return Config{
		DefaultModel: model.PreferredModel,
		ErrorHint:    "Make sure Ollama is running.",
	}
}

// =============================================================================
// CONTROLLER
// =============================================================================

// adoption remembers a turn that created a conversation on the server so the
// next list refresh can pick up its id.
type adoption struct {
	known map[int]bool
	title string
}

// Controller is the state of the chat view. It is not safe for concurrent
// use.
type Controller struct {
	svc *Service
	cfg Config

	conv          *model.Conversation
	model         string
	models        []string
	conversations []model.ConversationSummary

	state    TurnState
	turn     *Turn
	nextTurn uint64
	adopt    *adoption

	now func() time.Time
}

// NewController creates a controller with an empty, unsaved conversation.
func NewController(svc *Service, cfg Config) *Controller {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = model.PreferredModel
	}
	return &Controller{
		svc:   svc,
		cfg:   cfg,
		conv:  model.NewConversation(),
		model: cfg.DefaultModel,
		now:   time.Now,
	}
}

// Service returns the backend service the controller uses.
func (c *Controller) Service() *Service { return c.svc }

// Conversation returns the open conversation.
func (c *Controller) Conversation() *model.Conversation { return c.conv }

// Messages returns the messages of the open conversation.
func (c *Controller) Messages() []*model.Message { return c.conv.Messages }

// ConversationID returns the open conversation's id, nil when unsaved.
func (c *Controller) ConversationID() *int { return c.conv.ID }

// Conversations returns the last fetched conversation list.
func (c *Controller) Conversations() []model.ConversationSummary { return c.conversations }

// Model returns the selected model.
func (c *Controller) Model() string { return c.model }

// Models returns the known model names.
func (c *Controller) Models() []string { return c.models }

// State returns the current turn state.
func (c *Controller) State() TurnState { return c.state }

// Busy reports whether a turn is in flight.
func (c *Controller) Busy() bool { return c.state.InFlight() }

// CurrentTurn returns the turn in flight, or nil.
func (c *Controller) CurrentTurn() *Turn { return c.turn }

// =============================================================================
// TURNS
// =============================================================================

// Submit appends the user message and returns the turn to run. Blank input
// and input while a turn is in flight change nothing.
func (c *Controller) Submit(input string) (*Turn, error) {
	if util.IsBlank(input) {
		return nil, ErrEmptyInput
	}
	if c.state.InFlight() {
		return nil, ErrTurnInFlight
	}

	c.conv.AddUserMessage(util.Normalize(input))

	c.nextTurn++
	t := &Turn{
		ID:             c.nextTurn,
		History:        c.conv.History(),
		Model:          c.model,
		ConversationID: c.conv.ID,
		Started:        c.now(),
		state:          StateSending,
	}
	c.turn = t
	c.state = StateSending

	log.Debug().Uint64("turn", t.ID).Str("model", t.Model).Int("history", len(t.History)).Msg("turn submitted")
	return t, nil
}

func (c *Controller) active(t *Turn) error {
	if t == nil || t != c.turn {
		return ErrStaleTurn
	}
	return nil
}

// Begin moves the turn to Streaming and appends the empty assistant message.
func (c *Controller) Begin(t *Turn) error {
	if err := c.active(t); err != nil {
		return err
	}
	if t.state != StateSending {
		return nil
	}
	msg, err := c.conv.StartAssistant()
	if err != nil {
		return err
	}
	t.reply = msg
	t.state = StateStreaming
	c.state = StateStreaming
	return nil
}

// Append adds a fragment to the turn's reply.
func (c *Controller) Append(t *Turn, fragment string) error {
	if err := c.active(t); err != nil {
		return err
	}
	if t.state == StateSending {
		if err := c.Begin(t); err != nil {
			return err
		}
	}
	t.reply.Append(fragment)
	return nil
}

// Complete freezes the reply and returns to Idle. It reports whether the
// conversation list should be refreshed, which is the case when the turn
// created a new conversation.
func (c *Controller) Complete(t *Turn) (bool, error) {
	if err := c.active(t); err != nil {
		return false, err
	}
	if t.state == StateSending {
		if err := c.Begin(t); err != nil {
			return false, err
		}
	}
	t.reply.Finalize()
	t.state = StateCompleted
	c.finish()

	log.Debug().Uint64("turn", t.ID).Int("chars", len(t.reply.Content)).
		Dur("elapsed", c.now().Sub(t.Started)).Msg("turn completed")

	if !t.IsNewConversation() {
		return false, nil
	}
	c.armAdoption(t)
	return true, nil
}

// Fail ends the turn with an error notice in place of the reply. Text that
// already streamed is kept.
func (c *Controller) Fail(t *Turn, cause error) error {
	if err := c.active(t); err != nil {
		return err
	}
	if t.reply != nil && !t.reply.IsEmpty() {
		t.reply.Finalize()
	} else {
		c.conv.DropInProgress()
		t.reply = nil
	}
	c.conv.AddNotice(c.ErrorNotice(cause))
	t.state = StateFailed
	c.finish()

	log.Warn().Err(cause).Uint64("turn", t.ID).Msg("turn failed")
	return nil
}

// Expire ends the turn after the credential could not be renewed. No
// assistant message is left behind.
func (c *Controller) Expire(t *Turn) error {
	if err := c.active(t); err != nil {
		return err
	}
	c.conv.DropInProgress()
	t.reply = nil
	t.state = StateAuthExpired
	c.turn = nil
	c.state = StateAuthExpired

	log.Warn().Uint64("turn", t.ID).Msg("turn abandoned, session expired")
	return nil
}

func (c *Controller) finish() {
	c.turn = nil
	c.state = StateIdle
}

// ErrorNotice formats the assistant message shown for a failed turn.
func (c *Controller) ErrorNotice(err error) string {
	msg := "Failed to fetch response"
	if err != nil {
		msg = errorText(err)
	}
	if c.cfg.ErrorHint == "" {
		return fmt.Sprintf("Error: %s.", msg)
	}
	return fmt.Sprintf("Error: %s. %s", msg, c.cfg.ErrorHint)
}

// errorText returns the client-facing part of err without transport detail.
func errorText(err error) string {
	if ce, ok := api.AsClientError(err); ok && ce.Message != "" {
		return ce.Message
	}
	return err.Error()
}

// abandon drops a turn in flight when the view switches conversation. Its
// remaining events are rejected with ErrStaleTurn.
func (c *Controller) abandon() {
	if c.turn != nil {
		log.Debug().Uint64("turn", c.turn.ID).Msg("turn abandoned")
	}
	c.turn = nil
	c.state = StateIdle
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

// NewChat resets to an empty, unsaved conversation.
func (c *Controller) NewChat() {
	c.abandon()
	c.adopt = nil
	c.conv = model.NewConversation()
}

// OpenConversation replaces the open conversation with a fetched one.
func (c *Controller) OpenConversation(id int, detail *model.ConversationDetail) {
	c.abandon()
	c.adopt = nil
	if detail.Title == "" {
		detail.Title = c.titleOf(id)
	}
	c.conv = model.FromDetail(id, detail)
}

// RemoveConversation drops id from the list, resetting to a new chat when it
// was open.
func (c *Controller) RemoveConversation(id int) {
	out := make([]model.ConversationSummary, 0, len(c.conversations))
	for _, s := range c.conversations {
		if s.ID != id {
			out = append(out, s)
		}
	}
	c.conversations = out

	if c.conv.IsCurrent(id) {
		c.NewChat()
	}
}

// SetConversations replaces the conversation list. When the last turn
// created a conversation, its id is adopted so later turns continue it.
func (c *Controller) SetConversations(list []model.ConversationSummary) {
	c.conversations = list

	a := c.adopt
	if a == nil || !c.conv.IsNew() {
		return
	}
	c.adopt = nil

	var fresh []model.ConversationSummary
	for _, s := range list {
		if !a.known[s.ID] {
			fresh = append(fresh, s)
		}
	}
	for _, s := range fresh {
		if s.Title == a.title {
			c.adoptID(s)
			return
		}
	}
	if len(fresh) == 1 {
		c.adoptID(fresh[0])
	}
}

func (c *Controller) adoptID(s model.ConversationSummary) {
	c.conv.ID = model.IntPtr(s.ID)
	c.conv.Title = s.Title
	log.Debug().Int("conversation", s.ID).Msg("adopted new conversation id")
}

func (c *Controller) armAdoption(t *Turn) {
	known := make(map[int]bool, len(c.conversations))
	for _, s := range c.conversations {
		known[s.ID] = true
	}
	first := ""
	if len(t.History) > 0 {
		first = t.History[0].Content
	}
	c.adopt = &adoption{known: known, title: CreatedTitle(first)}
}

// CreatedTitle is the title the server gives a conversation created from
// first: its first 30 characters followed by "...".
func CreatedTitle(first string) string {
	r := []rune(first)
	if len(r) > 30 {
		r = r[:30]
	}
	return string(r) + "..."
}

func (c *Controller) titleOf(id int) string {
	for _, s := range c.conversations {
		if s.ID == id {
			return s.Title
		}
	}
	return ""
}

// RefreshConversations fetches the list. On failure the previous list is
// kept and the error is logged and returned.
func (c *Controller) RefreshConversations(ctx context.Context) error {
	list, err := c.svc.Conversations(ctx)
	return c.ApplyConversations(list, err)
}

// ApplyConversations applies a conversation list fetched elsewhere. A fetch
// error is logged and the prior list is kept.
func (c *Controller) ApplyConversations(list []model.ConversationSummary, err error) error {
	if err != nil {
		log.Error().Err(err).Str("op", "conversations.list").Msg("failed to fetch conversations")
		return errors.Wrap(err, "fetch conversations")
	}
	c.SetConversations(list)
	return nil
}

// LoadConversation fetches and opens a conversation.
func (c *Controller) LoadConversation(ctx context.Context, id int) error {
	detail, err := c.svc.Conversation(ctx, id)
	return c.ApplyConversation(id, detail, err)
}

// ApplyConversation opens a fetched conversation. A fetch error is logged
// and the open conversation is unchanged.
func (c *Controller) ApplyConversation(id int, detail *model.ConversationDetail, err error) error {
	if err != nil {
		log.Error().Err(err).Str("op", "conversations.get").Int("conversation", id).Msg("failed to load conversation")
		return errors.Wrapf(err, "load conversation %d", id)
	}
	c.OpenConversation(id, detail)
	return nil
}

// DeleteConversation deletes a conversation on the server and locally.
func (c *Controller) DeleteConversation(ctx context.Context, id int) error {
	return c.ApplyDeleted(id, c.svc.DeleteConversation(ctx, id))
}

// ApplyDeleted removes a conversation after the server deleted it. A delete
// error is logged and nothing changes locally.
func (c *Controller) ApplyDeleted(id int, err error) error {
	if err != nil {
		log.Error().Err(err).Str("op", "conversations.delete").Int("conversation", id).Msg("failed to delete conversation")
		return errors.Wrapf(err, "delete conversation %d", id)
	}
	c.RemoveConversation(id)
	return nil
}

// =============================================================================
// MODELS
// =============================================================================

// ApplyModels records the available models and selects the configured
// default (llama3) when listed, otherwise the first. An empty list keeps the
// selection.
func (c *Controller) ApplyModels(names []string) string {
	c.models = names
	c.model = model.DefaultModel(names, c.cfg.DefaultModel, c.model)
	return c.model
}

// SelectModel selects any model name. The server decides if it exists.
func (c *Controller) SelectModel(name string) {
	if name != "" {
		c.model = name
	}
}

// CycleModel selects the next known model and returns it.
func (c *Controller) CycleModel() string {
	if len(c.models) == 0 {
		return c.model
	}
	next := 0
	for i, m := range c.models {
		if m == c.model {
			next = (i + 1) % len(c.models)
			break
		}
	}
	c.model = c.models[next]
	return c.model
}

// RefreshModels fetches the model list and applies it. On failure the
// selection is unchanged.
func (c *Controller) RefreshModels(ctx context.Context) error {
	names, err := c.svc.Models(ctx)
	return c.ApplyModelList(names, err)
}

// ApplyModelList applies a model list fetched elsewhere. A fetch error is
// logged and the selection is unchanged.
func (c *Controller) ApplyModelList(names []string, err error) error {
	if err != nil {
		log.Error().Err(err).Str("op", "models.list").Msg("failed to fetch models")
		return errors.Wrap(err, "fetch models")
	}
	c.ApplyModels(names)
	return nil
}
