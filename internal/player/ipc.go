package player

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// ErrConnClosed is returned when mpv closes the IPC socket.
var ErrConnClosed = errors.New("mpv: connection closed")

// Command is one line sent to mpv's JSON IPC socket.
type Command struct {
	Command   []any `json:"command"`
	RequestID int64 `json:"request_id"`
}

// Response answers a Command with the same request id.
type Response struct {
	RequestID int64           `json:"request_id"`
	Error     string          `json:"error"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Event is an unsolicited line such as a property change.
type Event struct {
	Event  string          `json:"event"`
	ID     int64           `json:"id,omitempty"`
	Name   string          `json:"name,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	Reason string          `json:"reason,omitempty"`
}

// frame is decoded first to tell responses from events; mpv broadcasts
// events to every client, so both arrive on the same connection.
type frame struct {
	Event     string          `json:"event"`
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Reason    string          `json:"reason"`
	RequestID *int64          `json:"request_id"`
	Error     string          `json:"error"`
	Data      json.RawMessage `json:"data"`
}

// Conn is a client of mpv's JSON IPC protocol over a Unix socket.
type Conn struct {
	conn    net.Conn
	scanner *bufio.Scanner
	mu      sync.Mutex
	nextID  atomic.Int64
}

// Dial connects to the IPC socket of a running mpv.
func Dial(socketPath string) (*Conn, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to mpv: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	return &Conn{conn: conn, scanner: scanner}, nil
}

// Close shuts down the connection.
func (c *Conn) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// SetDeadline bounds pending and future reads and writes. A command
// blocked waiting for its response fails once the deadline passes.
func (c *Conn) SetDeadline(t time.Time) error {
	if c.conn == nil {
		return ErrConnClosed
	}
	return c.conn.SetDeadline(t)
}

// SendCommand sends a command and waits for its response, discarding
// any events that arrive first.
func (c *Conn) SendCommand(args ...any) (Response, error) {
	if len(args) == 0 {
		return Response{}, errors.New("mpv: empty command")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cmd := Command{Command: args, RequestID: c.nextID.Add(1)}
	data, err := json.Marshal(cmd)
	if err != nil {
		return Response{}, fmt.Errorf("marshal command: %w", err)
	}

	data = append(data, '\n')
	if _, err := c.conn.Write(data); err != nil {
		return Response{}, fmt.Errorf("write command: %w", err)
	}

	for {
		f, err := c.next()
		if err != nil {
			return Response{}, fmt.Errorf("read response: %w", err)
		}
		if f.Event != "" || f.RequestID == nil || *f.RequestID != cmd.RequestID {
			continue
		}
		resp := Response{RequestID: *f.RequestID, Error: f.Error, Data: f.Data}
		if resp.Error != "success" {
			return resp, fmt.Errorf("mpv %v: %s", args[0], resp.Error)
		}
		return resp, nil
	}
}

// ReadEvent blocks until the next event, skipping command responses.
func (c *Conn) ReadEvent() (Event, error) {
	for {
		f, err := c.next()
		if err != nil {
			return Event{}, fmt.Errorf("read event: %w", err)
		}
		if f.Event == "" {
			continue
		}
		return Event{Event: f.Event, ID: f.ID, Name: f.Name, Data: f.Data, Reason: f.Reason}, nil
	}
}

func (c *Conn) next() (frame, error) {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return frame{}, err
		}
		return frame{}, ErrConnClosed
	}
	var f frame
	if err := json.Unmarshal(c.scanner.Bytes(), &f); err != nil {
		return frame{}, fmt.Errorf("unmarshal: %w", err)
	}
	return f, nil
}
