package app

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/jwulff/docqa/internal/api"
	"github.com/jwulff/docqa/internal/chat"
	"github.com/jwulff/docqa/internal/player"
	"github.com/jwulff/docqa/internal/poller"
)

// Screen identifies the active view.
type Screen int

const (
	ScreenLogin Screen = iota
	ScreenDashboard
	ScreenDocument
)

// Backend is the subset of the API client the TUI uses.
type Backend interface {
	List(ctx context.Context) ([]api.Document, error)
	Get(ctx context.Context, id int64) (api.Document, error)
	Delete(ctx context.Context, id int64) error
	Summary(ctx context.Context, id int64) (api.SummaryResponse, error)
	Timestamps(ctx context.Context, id int64) (api.TimestampResponse, error)
	Chat(ctx context.Context, req api.ChatRequest) (api.ChatResponse, error)
	Login(ctx context.Context, email, password string) (api.AuthResponse, error)
	Register(ctx context.Context, name, email, password string) (api.AuthResponse, error)
	Upload(ctx context.Context, name, contentType string, r io.Reader) (api.Document, error)
	StreamURL(id int64) string
}

// TokenStore holds the session credential.
type TokenStore interface {
	Token() string
	Authenticated() bool
	Set(token string) error
	Clear() error
}

// Launcher starts the playback element for a media document.
type Launcher func(ctx context.Context, doc api.Document, url, token string) (player.Element, error)

// Options configures a Model.
type Options struct {
	Backend      Backend
	Tokens       TokenStore
	Launch       Launcher // nil disables playback
	PollInterval time.Duration
	ServerURL    string
	Logger       *zap.Logger
}

// Model is the root bubbletea model for the docqa TUI.
type Model struct {
	backend  Backend
	tokens   TokenStore
	launch   Launcher
	logger   *zap.Logger
	interval time.Duration
	server   string

	screen Screen
	width  int
	height int

	login      loginState
	dash       dashboardState
	doc        *documentView
	nextViewID int64

	// Errors
	errorMessage   string
	errorTransient bool
	errorSeq       int

	statusText string
}

// New creates a Model. It starts on the dashboard when the token store
// already holds a credential.
func New(opts Options) Model {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = poller.DefaultInterval
	}

	m := Model{
		backend:  opts.Backend,
		tokens:   opts.Tokens,
		launch:   opts.Launch,
		logger:   logger,
		interval: interval,
		server:   opts.ServerURL,
		login:    newLoginState(),
		dash:     newDashboardState(opts.Backend, logger),
		screen:   ScreenLogin,
	}
	if opts.Tokens.Authenticated() {
		m.screen = ScreenDashboard
	}
	return m
}

// Init starts polling on the dashboard, or the cursor blink on the login form.
func (m Model) Init() tea.Cmd {
	if m.screen == ScreenDashboard {
		return m.dash.poller.Start(m.interval)
	}
	return textinput.Blink
}

// Screen returns the active view.
func (m Model) Screen() Screen { return m.screen }

// clearTransientErrorCmd fires after a delay to clear transient errors.
func clearTransientErrorCmd(seq int) tea.Cmd {
	return tea.Tick(5*time.Second, func(time.Time) tea.Msg {
		return ClearTransientErrorMsg{seq: seq}
	})
}

func closeElementCmd(e player.Element, logger *zap.Logger) tea.Cmd {
	return func() tea.Msg {
		if err := e.Close(); err != nil {
			logger.Debug("close orphaned player", zap.Error(err))
		}
		return nil
	}
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case AuthChangedMsg:
		if msg.Authenticated {
			if m.screen == ScreenLogin {
				return m, m.enterDashboard()
			}
			return m, nil
		}
		if m.screen != ScreenLogin {
			return m, m.enterLogin("Signed out")
		}
		return m, nil

	case LoginResultMsg:
		m.login.busy = false
		if msg.Err != nil {
			return m, m.setError(loginError(msg.Err), true)
		}
		m.login.inputs[fieldPassword].Reset()
		m.statusText = "Signed in"
		return m, m.enterDashboard()

	case LoggedOutMsg:
		if msg.Err != nil {
			m.logger.Warn("clear credential", zap.Error(msg.Err))
		}
		if m.screen == ScreenLogin {
			return m, nil
		}
		return m, m.enterLogin("Signed out")

	case poller.TickMsg:
		return m, m.dash.poller.Update(msg)

	case poller.ResultMsg:
		cmd := m.dash.poller.Update(msg)
		m.clampSelection()
		if errors.Is(m.dash.poller.Err(), api.ErrUnauthorized) {
			return m, m.logoutCmd()
		}
		return m, cmd

	case UploadResultMsg:
		return m.handleUploadResult(msg)

	case DeleteResultMsg:
		return m.handleDeleteResult(msg)

	case SummaryLoadedMsg:
		return m.handleSummaryLoaded(msg)

	case TimestampsLoadedMsg:
		return m.handleTimestampsLoaded(msg)

	case PlayerReadyMsg:
		return m.handlePlayerReady(msg)

	case chat.ResponseMsg:
		if m.doc != nil {
			m.doc.chat.Update(msg)
		}
		return m, nil

	case DocumentLoadedMsg:
		return m.handleDocumentLoaded(msg)

	case player.PositionMsg, player.DetachedMsg, player.SeekDoneMsg, player.PlayStateMsg:
		return m.handlePlayerMsg(msg)

	case ClearTransientErrorMsg:
		if m.errorTransient && msg.seq == m.errorSeq {
			m.errorMessage = ""
			m.errorTransient = false
		}
		return m, nil
	}

	return m, m.updateFocusedInput(msg)
}

// handleKey processes key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == KeyCtrlC {
		return m.quit()
	}
	switch m.screen {
	case ScreenLogin:
		return m.handleLoginKey(msg)
	case ScreenDashboard:
		return m.handleDashboardKey(msg)
	case ScreenDocument:
		return m.handleDocumentKey(msg)
	}
	return m, nil
}

// quit closes the player before the program exits, off the update loop.
func (m Model) quit() (tea.Model, tea.Cmd) {
	closePlayer := m.teardownDocument()
	m.dash.poller.Stop()
	if closePlayer == nil {
		return m, tea.Quit
	}
	return m, tea.Sequence(closePlayer, tea.Quit)
}

// enterDashboard activates the dashboard and starts polling.
func (m *Model) enterDashboard() tea.Cmd {
	if m.screen == ScreenDashboard && m.dash.poller.Running() {
		return nil
	}
	closePlayer := m.teardownDocument()
	m.screen = ScreenDashboard
	m.dash.prompt = promptNone
	return tea.Batch(closePlayer, m.dash.poller.Start(m.interval))
}

// enterLogin tears everything down and shows the login form.
func (m *Model) enterLogin(status string) tea.Cmd {
	closePlayer := m.teardownDocument()
	m.dash.poller.Stop()
	m.dash.prompt = promptNone
	m.screen = ScreenLogin
	m.login.busy = false
	m.login.inputs[fieldPassword].Reset()
	m.statusText = status
	return tea.Batch(closePlayer, m.login.focusField(fieldEmail))
}

func (m *Model) logoutCmd() tea.Cmd {
	tokens := m.tokens
	return func() tea.Msg {
		return LoggedOutMsg{Err: tokens.Clear()}
	}
}

// setError shows err in the error bar; transient errors clear themselves.
func (m *Model) setError(text string, transient bool) tea.Cmd {
	m.errorSeq++
	m.errorMessage = text
	m.errorTransient = transient
	if transient {
		return clearTransientErrorCmd(m.errorSeq)
	}
	return nil
}

func (m *Model) updateFocusedInput(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	switch m.screen {
	case ScreenLogin:
		i := m.login.focus
		m.login.inputs[i], cmd = m.login.inputs[i].Update(msg)
	case ScreenDashboard:
		if m.dash.prompt == promptUpload {
			m.dash.input, cmd = m.dash.input.Update(msg)
		}
	case ScreenDocument:
		if m.doc != nil && m.doc.focus == focusInput {
			m.doc.input, cmd = m.doc.input.Update(msg)
		}
	}
	return cmd
}

func loginError(err error) string {
	switch {
	case errors.Is(err, api.ErrUnauthorized):
		return "Invalid email or password"
	case errors.Is(err, api.ErrUnavailable):
		return "Server unavailable"
	}
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}
