// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui implements the pawtui terminal dashboard: a connecting screen
// shown until the session is ready, then Dashboard, Chat, Memory, Tools and
// Settings tabs.
package ui

import (
	"context"
	"strconv"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"

	"github.com/pocketpaw/pawtui/internal/api"
	"github.com/pocketpaw/pawtui/internal/chat"
	"github.com/pocketpaw/pawtui/internal/config"
	"github.com/pocketpaw/pawtui/internal/memory"
	"github.com/pocketpaw/pawtui/internal/model"
	"github.com/pocketpaw/pawtui/internal/session"
	"github.com/pocketpaw/pawtui/internal/storage"
	"github.com/pocketpaw/pawtui/internal/ui/styles"
)

// =============================================================================
// TABS
// =============================================================================

// Tab identifies a top-level view.
type Tab int

const (
	TabDashboard Tab = iota
	TabChat
	TabMemory
	TabTools
	TabSettings
	tabCount
)

var tabNames = [...]string{"Dashboard", "Chat", "Memory", "Tools", "Settings"}

func (t Tab) String() string {
	if t < 0 || t >= tabCount {
		return "Dashboard"
	}
	return tabNames[t]
}

// =============================================================================
// MODEL
// =============================================================================

// Deps are the collaborators the TUI drives.
type Deps struct {
	Config    *config.Config
	Session   *session.Session
	Client    *api.Client
	Store     storage.Store
	URLSource config.URLSource
	Theme     *styles.Theme
}

// activeStream is the turn currently streaming into the chat view.
type activeStream struct {
	turn   *chat.Turn
	buf    *StreamingBuffer
	cancel context.CancelFunc
}

type memMode int

const (
	memBrowse memMode = iota
	memAdding
	memSearching
	memConfirm
)

// Model is the root Bubble Tea model.
type Model struct {
	deps  Deps
	cfg   *config.Config
	theme *styles.Theme
	keys  KeyMap
	send  func(tea.Msg)

	ctx    context.Context
	cancel context.CancelFunc

	width  int
	height int
	tab    Tab

	// Session
	ready   bool
	user    *model.User
	bootErr error
	spinner spinner.Model

	// Chat
	chat          *chat.Controller
	runner        *chat.Runner
	stream        *activeStream
	input         textinput.Model
	viewport      viewport.Model
	sidebarFocus  bool
	sidebarCursor int
	md            *markdownRenderer

	// Memory
	mem       *memory.Browser
	memCursor int
	memMode   memMode
	memInput  textinput.Model

	// Tools
	modelInfos []model.ModelInfo
	tools      []model.Tool

	// Settings
	editingURL bool
	urlInput   textinput.Model
	override   string

	status    string
	statusErr bool
}

// New creates the root model.
func New(deps Deps) *Model {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.Default()
	}
	theme := deps.Theme
	if theme == nil {
		theme = styles.NewTheme(cfg.UI.Theme)
	}

	chatSvc := chat.NewService(deps.Client, deps.Session)
	memSvc := memory.NewService(deps.Client, deps.Session, cfg.Memory.SearchLimit)

	ctx, cancel := context.WithCancel(context.Background())

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = theme.Spinner

	input := textinput.New()
	input.Placeholder = "Type your message..."
	input.Prompt = "> "
	input.Focus()

	memInput := textinput.New()
	memInput.Prompt = "> "

	urlInput := textinput.New()
	urlInput.Placeholder = config.FallbackAPIURL
	urlInput.Prompt = "URL: "

	m := &Model{
		deps:     deps,
		cfg:      cfg,
		theme:    theme,
		keys:     DefaultKeyMap(),
		send:     func(tea.Msg) {},
		ctx:      ctx,
		cancel:   cancel,
		spinner:  sp,
		chat:     chat.NewController(chatSvc, chat.Config{DefaultModel: cfg.Chat.DefaultModel, ErrorHint: cfg.Chat.ErrorHint}),
		runner:   chat.NewRunner(chatSvc),
		input:    input,
		viewport: viewport.New(80, 20),
		md:       newMarkdownRenderer(theme.GlamourStyle(), cfg.Chat.Markdown),
		mem:      memory.NewBrowser(memSvc),
		memInput: memInput,
		urlInput: urlInput,
	}
	m.restore()
	return m
}

// restore reads persisted UI state.
func (m *Model) restore() {
	if m.deps.Store == nil {
		return
	}
	if v, ok, err := m.deps.Store.Get(storage.KeyLastTab); err == nil && ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && Tab(n) < tabCount {
			m.tab = Tab(n)
		}
	}
	if v, ok, err := m.deps.Store.Get(storage.KeyAPIURL); err == nil && ok {
		m.override = v
	}
}

// SetSender sets the function used to deliver messages from background
// goroutines, normally tea.Program.Send.
func (m *Model) SetSender(send func(tea.Msg)) {
	m.send = send
}

// Shutdown cancels in-flight requests.
func (m *Model) Shutdown() {
	if m.stream != nil {
		m.stream.cancel()
	}
	m.cancel()
}

// Init starts the bootstrap.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.ensureSessionCmd(), textinput.Blink)
}

// =============================================================================
// UPDATE
// =============================================================================

// Update handles messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.theme.SetSize(msg.Width, msg.Height)
		m.layout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case sessionReadyMsg:
		m.ready = true
		m.user = msg.user
		m.bootErr = nil
		return m, tea.Batch(m.loadConversationsCmd(), m.loadModelsCmd(), m.loadMemoriesCmd(""), m.loadToolsCmd())

	case sessionFailedMsg:
		m.bootErr = msg.err
		log.Warn().Err(msg.err).Msg("session bootstrap failed")
		return m, nil

	case SessionResetMsg:
		return m, m.resetSession()

	// Fetch failures are logged by the chat controller and the memory
	// browser. Prior state stays on screen.
	case conversationsMsg:
		if m.chat.ApplyConversations(msg.list, msg.err) == nil {
			m.clampSidebar()
		}
		return m, nil

	case conversationLoadedMsg:
		if m.chat.ApplyConversation(msg.id, msg.detail, msg.err) == nil {
			m.syncStream()
			m.refreshViewport(true)
		}
		return m, nil

	case conversationDeletedMsg:
		if m.chat.ApplyDeleted(msg.id, msg.err) == nil {
			m.syncStream()
			m.clampSidebar()
			m.refreshViewport(true)
		}
		return m, nil

	case modelsMsg:
		names := make([]string, 0, len(msg.models))
		for _, mi := range msg.models {
			names = append(names, mi.Name)
		}
		if m.chat.ApplyModelList(names, msg.err) == nil {
			m.modelInfos = msg.models
		}
		return m, nil

	case toolsMsg:
		if msg.err != nil {
			log.Error().Err(msg.err).Str("op", "tools.list").Msg("failed to fetch tools")
		}
		m.tools = msg.tools
		return m, nil

	case memoriesMsg:
		if msg.err == nil {
			m.memCursor = 0
		}
		return m, nil

	case memoryAddedMsg:
		if msg.err == nil {
			m.memCursor = 0
		}
		return m, nil

	case memoryDeletedMsg:
		if n := len(m.mem.Items()); m.memCursor >= n {
			m.memCursor = max(n-1, 0)
		}
		return m, nil

	case overrideSavedMsg:
		if msg.err != nil {
			return m, m.flash(msg.err.Error(), true)
		}
		m.override = msg.url
		return m, m.flash("Saved. Restart pawtui to use the new API URL.", false)

	case ConfigReloadedMsg:
		m.applyConfig(msg.Config)
		return m, m.flash("Configuration reloaded", false)

	case statusMsg:
		m.status, m.statusErr = msg.text, msg.isErr
		return m, nil

	case streamTickMsg:
		return m, m.handleStreamTick(msg)

	case turnStartMsg:
		m.chat.Begin(msg.turn)
		m.refreshViewport(false)
		return m, nil

	case turnDoneMsg:
		m.drainStream(msg.turn)
		refresh, err := m.chat.Complete(msg.turn)
		m.endStream(msg.turn)
		m.refreshViewport(false)
		if err == nil && refresh {
			return m, m.loadConversationsCmd()
		}
		return m, nil

	case turnErrorMsg:
		m.drainStream(msg.turn)
		m.chat.Fail(msg.turn, msg.err)
		m.endStream(msg.turn)
		m.refreshViewport(false)
		return m, nil

	case turnExpiredMsg:
		if m.chat.Expire(msg.turn) != nil {
			return m, nil
		}
		m.endStream(msg.turn)
		m.refreshViewport(false)
		return m, m.resetSession()
	}

	return m, m.updateFocusedInput(msg)
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		m.Shutdown()
		return m, tea.Quit
	}

	if !m.ready {
		if m.bootErr != nil && key.Matches(msg, m.keys.Retry) {
			m.bootErr = nil
			return m, tea.Batch(m.spinner.Tick, m.ensureSessionCmd())
		}
		return m, nil
	}

	if !m.inTextEntry() || m.tab == TabChat {
		switch {
		case key.Matches(msg, m.keys.NextTab):
			return m, m.switchTab((m.tab + 1) % tabCount)
		case key.Matches(msg, m.keys.PrevTab):
			return m, m.switchTab((m.tab + tabCount - 1) % tabCount)
		}
	}

	switch m.tab {
	case TabChat:
		return m, m.handleChatKey(msg)
	case TabMemory:
		return m, m.handleMemoryKey(msg)
	case TabTools:
		if key.Matches(msg, m.keys.Retry) {
			return m, tea.Batch(m.loadModelsCmd(), m.loadToolsCmd())
		}
	case TabSettings:
		return m, m.handleSettingsKey(msg)
	case TabDashboard:
		if key.Matches(msg, m.keys.Retry) {
			return m, tea.Batch(m.loadConversationsCmd(), m.loadModelsCmd(), m.loadMemoriesCmd(""))
		}
	}
	return m, nil
}

// inTextEntry reports whether a text input other than the chat input owns
// the keyboard.
func (m *Model) inTextEntry() bool {
	switch m.tab {
	case TabMemory:
		return m.memMode == memAdding || m.memMode == memSearching
	case TabSettings:
		return m.editingURL
	}
	return false
}

func (m *Model) switchTab(t Tab) tea.Cmd {
	m.tab = t
	if m.deps.Store != nil {
		if err := m.deps.Store.Set(storage.KeyLastTab, strconv.Itoa(int(t))); err != nil {
			log.Debug().Err(err).Msg("failed to persist tab")
		}
	}
	if t == TabChat && !m.sidebarFocus {
		return m.input.Focus()
	}
	m.input.Blur()
	return nil
}

func (m *Model) updateFocusedInput(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	switch {
	case m.tab == TabChat && !m.sidebarFocus:
		m.input, cmd = m.input.Update(msg)
	case m.tab == TabMemory && (m.memMode == memAdding || m.memMode == memSearching):
		m.memInput, cmd = m.memInput.Update(msg)
	case m.tab == TabSettings && m.editingURL:
		m.urlInput, cmd = m.urlInput.Update(msg)
	}
	return cmd
}

func (m *Model) applyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.UI.Theme != m.cfg.UI.Theme {
		m.theme = styles.NewTheme(cfg.UI.Theme)
		m.theme.SetSize(m.width, m.height)
		m.spinner.Style = m.theme.Spinner
	}
	m.md = newMarkdownRenderer(m.theme.GlamourStyle(), cfg.Chat.Markdown)
	m.cfg = cfg
	m.refreshViewport(false)
}

// resetSession returns to the connecting screen and bootstraps a new
// session. A model that is already connecting is left alone.
func (m *Model) resetSession() tea.Cmd {
	if !m.ready {
		return nil
	}
	m.ready = false
	m.user = nil
	m.bootErr = nil
	return tea.Batch(m.spinner.Tick, m.ensureSessionCmd())
}

func (m *Model) flash(text string, isErr bool) tea.Cmd {
	return func() tea.Msg { return statusMsg{text: text, isErr: isErr} }
}

// =============================================================================
// COMMANDS
// =============================================================================

func (m *Model) ensureSessionCmd() tea.Cmd {
	sess, ctx := m.deps.Session, m.ctx
	return func() tea.Msg {
		u, err := sess.EnsureSession(ctx)
		if err != nil {
			return sessionFailedMsg{err: err}
		}
		return sessionReadyMsg{user: u}
	}
}

func (m *Model) loadConversationsCmd() tea.Cmd {
	svc, ctx := m.chat.Service(), m.ctx
	return func() tea.Msg {
		list, err := svc.Conversations(ctx)
		return conversationsMsg{list: list, err: err}
	}
}

func (m *Model) loadConversationCmd(id int) tea.Cmd {
	svc, ctx := m.chat.Service(), m.ctx
	return func() tea.Msg {
		d, err := svc.Conversation(ctx, id)
		return conversationLoadedMsg{id: id, detail: d, err: err}
	}
}

func (m *Model) deleteConversationCmd(id int) tea.Cmd {
	svc, ctx := m.chat.Service(), m.ctx
	return func() tea.Msg {
		return conversationDeletedMsg{id: id, err: svc.DeleteConversation(ctx, id)}
	}
}

func (m *Model) loadModelsCmd() tea.Cmd {
	svc, ctx := m.chat.Service(), m.ctx
	return func() tea.Msg {
		models, err := svc.ModelInfos(ctx)
		return modelsMsg{models: models, err: err}
	}
}

func (m *Model) loadToolsCmd() tea.Cmd {
	client, sess, ctx := m.deps.Client, m.deps.Session, m.ctx
	return func() tea.Msg {
		tools, err := session.Call(ctx, sess, client.ListTools)
		if err != nil || len(tools) == 0 {
			return toolsMsg{tools: model.BuiltinTools, err: err}
		}
		return toolsMsg{tools: tools}
	}
}

// loadMemoriesCmd lists memories, or searches them when query is set.
func (m *Model) loadMemoriesCmd(query string) tea.Cmd {
	b, ctx := m.mem, m.ctx
	return func() tea.Msg {
		return memoriesMsg{err: b.Search(ctx, query)}
	}
}

func (m *Model) addMemoryCmd(text string) tea.Cmd {
	b, ctx := m.mem, m.ctx
	return func() tea.Msg {
		_, err := b.Add(ctx, text)
		return memoryAddedMsg{err: err}
	}
}

// deleteMemoryCmd deletes the memory awaiting confirmation.
func (m *Model) deleteMemoryCmd() tea.Cmd {
	b, ctx := m.mem, m.ctx
	return func() tea.Msg {
		return memoryDeletedMsg{err: b.ConfirmDelete(ctx)}
	}
}
