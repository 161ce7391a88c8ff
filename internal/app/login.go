package app

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jwulff/docqa/internal/api"
	"github.com/jwulff/docqa/internal/ui"
)

const (
	fieldName = iota
	fieldEmail
	fieldPassword
)

type loginState struct {
	inputs      []textinput.Model
	focus       int
	registering bool
	busy        bool
}

func newLoginState() loginState {
	name := textinput.New()
	name.Placeholder = "Your name"
	name.CharLimit = 100

	email := textinput.New()
	email.Placeholder = "you@example.com"
	email.CharLimit = 254
	email.Focus()

	password := textinput.New()
	password.Placeholder = "password"
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'

	return loginState{
		inputs: []textinput.Model{name, email, password},
		focus:  fieldEmail,
	}
}

// fields returns the visible fields in tab order.
func (l loginState) fields() []int {
	if l.registering {
		return []int{fieldName, fieldEmail, fieldPassword}
	}
	return []int{fieldEmail, fieldPassword}
}

func (l *loginState) focusField(f int) tea.Cmd {
	l.focus = f
	var cmd tea.Cmd
	for i := range l.inputs {
		if i == f {
			cmd = l.inputs[i].Focus()
		} else {
			l.inputs[i].Blur()
		}
	}
	return cmd
}

func (l *loginState) moveFocus(delta int) tea.Cmd {
	fields := l.fields()
	pos := 0
	for i, f := range fields {
		if f == l.focus {
			pos = i
		}
	}
	pos = (pos + delta + len(fields)) % len(fields)
	return l.focusField(fields[pos])
}

func (m Model) handleLoginKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.login.busy {
		return m, nil
	}
	switch msg.String() {
	case KeyTab, KeyDown:
		return m, m.login.moveFocus(1)

	case KeyShiftTab, KeyUp:
		return m, m.login.moveFocus(-1)

	case KeyToggleMode:
		m.login.registering = !m.login.registering
		if m.login.registering {
			return m, m.login.focusField(fieldName)
		}
		return m, m.login.focusField(fieldEmail)

	case KeyEnter:
		fields := m.login.fields()
		if m.login.focus != fields[len(fields)-1] {
			return m, m.login.moveFocus(1)
		}
		return m.submitLogin()
	}

	var cmd tea.Cmd
	i := m.login.focus
	m.login.inputs[i], cmd = m.login.inputs[i].Update(msg)
	return m, cmd
}

func (m Model) submitLogin() (tea.Model, tea.Cmd) {
	name := strings.TrimSpace(m.login.inputs[fieldName].Value())
	email := strings.TrimSpace(m.login.inputs[fieldEmail].Value())
	password := m.login.inputs[fieldPassword].Value()

	switch {
	case m.login.registering && name == "":
		return m, m.setError("Name is required", true)
	case email == "" || password == "":
		return m, m.setError("Email and password are required", true)
	}

	m.login.busy = true
	m.errorMessage = ""
	if m.login.registering {
		m.statusText = "Creating account..."
	} else {
		m.statusText = "Signing in..."
	}
	return m, loginCmd(m.backend, m.tokens, m.login.registering, name, email, password)
}

// loginCmd authenticates and stores the returned token. The token store is
// written here, off the update loop, because its subscribers send messages
// back into the program.
func loginCmd(b Backend, tokens TokenStore, register bool, name, email, password string) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		var (
			resp api.AuthResponse
			err  error
		)
		if register {
			resp, err = b.Register(ctx, name, email, password)
		} else {
			resp, err = b.Login(ctx, email, password)
		}
		if err != nil {
			return LoginResultMsg{Err: err}
		}
		if resp.Token == "" {
			return LoginResultMsg{Err: errors.New("server returned no token")}
		}
		return LoginResultMsg{Err: tokens.Set(resp.Token)}
	}
}

func (m Model) renderLogin(width, height int) string {
	var lines []string

	title := "SIGN IN"
	toggle := "create an account"
	if m.login.registering {
		title = "CREATE ACCOUNT"
		toggle = "sign in instead"
	}
	lines = append(lines, "", "  "+ui.PanelTitleActiveStyle.Render(title), "")

	labels := map[int]string{fieldName: "Name", fieldEmail: "Email", fieldPassword: "Password"}
	for _, f := range m.login.fields() {
		label := padRight(labels[f], 10)
		if f == m.login.focus {
			label = ui.SelectedStyle.Render(label)
		} else {
			label = ui.DimStyle.Render(label)
		}
		lines = append(lines, "  "+label+" "+m.login.inputs[f].View())
	}

	lines = append(lines, "")
	if m.login.busy {
		lines = append(lines, "  "+ui.SpinnerStyle.Render("⟳ "+m.statusText))
	} else {
		lines = append(lines, "  "+ui.DimStyle.Render("Ctrl+R to "+toggle))
	}

	for len(lines) < height {
		lines = append(lines, "")
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	for i, l := range lines {
		lines[i] = truncateToWidth(l, width)
	}
	return strings.Join(lines, "\n")
}
