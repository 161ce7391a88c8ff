// Package chat runs one conversation about one document.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/jwulff/docqa/internal/api"
)

// ErrorReply is the assistant message appended when a turn fails.
const ErrorReply = "Sorry, I encountered an error. Please try again."

var (
	// ErrEmptyMessage is returned by Send for blank input.
	ErrEmptyMessage = errors.New("chat: empty message")
	// ErrBusy is returned by Send while a turn is in flight.
	ErrBusy = errors.New("chat: response pending")
	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("chat: closed")
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one transcript entry.
type Message struct {
	Role       Role
	Content    string
	Timestamps []api.TimestampReference
	At         time.Time
}

// Sender performs a chat turn against the backend.
type Sender interface {
	Chat(ctx context.Context, req api.ChatRequest) (api.ChatResponse, error)
}

// ResponseMsg carries the outcome of one turn back to the update loop.
type ResponseMsg struct {
	id       int64
	Response api.ChatResponse
	Err      error
}

var lastID atomic.Int64

// Coordinator holds the transcript and session id of a document view.
// It allows at most one turn in flight.
type Coordinator struct {
	id         int64
	documentID int64
	sender     Sender
	logger     *zap.Logger
	timeout    time.Duration

	messages  []Message
	sessionID string
	loading   bool
	closed    bool
	now       func() time.Time
}

// New creates a coordinator for documentID.
func New(documentID int64, sender Sender, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		id:         lastID.Add(1),
		documentID: documentID,
		sender:     sender,
		logger:     logger.With(zap.Int64("document_id", documentID)),
		timeout:    2 * time.Minute,
		now:        time.Now,
	}
}

// Send appends the user message and returns the command performing the
// turn. Blank input, a pending turn and a closed coordinator are rejected
// without any state change.
func (c *Coordinator) Send(text string) (tea.Cmd, error) {
	text = strings.TrimSpace(text)
	switch {
	case c.closed:
		return nil, ErrClosed
	case text == "":
		return nil, ErrEmptyMessage
	case c.loading:
		return nil, ErrBusy
	}

	c.messages = append(c.messages, Message{Role: RoleUser, Content: text, At: c.now()})
	c.loading = true

	req := api.ChatRequest{DocumentID: c.documentID, Message: text, SessionID: c.sessionID}
	id, sender, timeout := c.id, c.sender, c.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		resp, err := sender.Chat(ctx, req)
		return ResponseMsg{id: id, Response: resp, Err: err}
	}, nil
}

// Update applies a ResponseMsg addressed to this coordinator. Other
// messages, and responses arriving after Close, are ignored.
func (c *Coordinator) Update(msg tea.Msg) tea.Cmd {
	r, ok := msg.(ResponseMsg)
	if !ok || r.id != c.id || c.closed || !c.loading {
		return nil
	}
	c.loading = false

	if r.Err != nil {
		c.logger.Warn("chat turn failed", zap.Error(r.Err))
		c.messages = append(c.messages, Message{Role: RoleAssistant, Content: ErrorReply, At: c.now()})
		return nil
	}

	if r.Response.SessionID != "" {
		c.sessionID = r.Response.SessionID
	}
	c.messages = append(c.messages, Message{
		Role:       RoleAssistant,
		Content:    r.Response.Response,
		Timestamps: r.Response.Timestamps,
		At:         c.now(),
	})
	return nil
}

// Close detaches the coordinator; pending responses will be dropped.
func (c *Coordinator) Close() {
	c.closed = true
	c.loading = false
}

// Messages returns the transcript in send order.
func (c *Coordinator) Messages() []Message { return c.messages }

// SessionID returns the id issued by the server, or "" before the first reply.
func (c *Coordinator) SessionID() string { return c.sessionID }

// Loading reports whether a turn is awaiting its response.
func (c *Coordinator) Loading() bool { return c.loading }

// DocumentID returns the document this conversation is about.
func (c *Coordinator) DocumentID() int64 { return c.documentID }
