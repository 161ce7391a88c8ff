package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestIDHeader carries a per-request id for correlating client and server logs.
const RequestIDHeader = "X-Request-ID"

// TokenSource supplies the bearer credential attached to every request.
type TokenSource interface {
	Token() string
}

// Client talks to the DocQA backend over HTTP. It never retries and never
// caches; every method is a single request/response pair.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	logger  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithTokenSource attaches a bearer credential to every request.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Client for the API rooted at baseURL, e.g.
// "http://localhost:8080/api".
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("parse base url: unsupported scheme %q", u.Scheme)
	}

	c := &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the API root the client was created with.
func (c *Client) BaseURL() string { return c.baseURL }

// List returns every document of the current user.
func (c *Client) List(ctx context.Context) ([]Document, error) {
	var docs []Document
	if err := c.doJSON(ctx, http.MethodGet, "/documents", nil, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// ListByType returns the documents of one media kind.
func (c *Client) ListByType(ctx context.Context, kind MediaKind) ([]Document, error) {
	var docs []Document
	p := "/documents/type/" + url.PathEscape(string(kind))
	if err := c.doJSON(ctx, http.MethodGet, p, nil, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// Get returns a single document.
func (c *Client) Get(ctx context.Context, id int64) (Document, error) {
	var doc Document
	if err := c.doJSON(ctx, http.MethodGet, documentPath(id), nil, &doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Delete removes a document.
func (c *Client) Delete(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, documentPath(id), nil, nil)
}

// Summary returns the generated summary of a document.
func (c *Client) Summary(ctx context.Context, id int64) (SummaryResponse, error) {
	var resp SummaryResponse
	if err := c.doJSON(ctx, http.MethodGet, documentPath(id)+"/summary", nil, &resp); err != nil {
		return SummaryResponse{}, err
	}
	return resp, nil
}

// Timestamps returns the topic spans of a media document.
func (c *Client) Timestamps(ctx context.Context, id int64) (TimestampResponse, error) {
	var resp TimestampResponse
	if err := c.doJSON(ctx, http.MethodGet, documentPath(id)+"/timestamps", nil, &resp); err != nil {
		return TimestampResponse{}, err
	}
	return resp, nil
}

// Chat sends one conversation turn.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	var resp ChatResponse
	if err := c.doJSON(ctx, http.MethodPost, "/chat", req, &resp); err != nil {
		return ChatResponse{}, err
	}
	return resp, nil
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (AuthResponse, error) {
	var resp AuthResponse
	req := LoginRequest{Email: email, Password: password}
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", req, &resp); err != nil {
		return AuthResponse{}, err
	}
	return resp, nil
}

// Register creates an account and returns its bearer token.
func (c *Client) Register(ctx context.Context, name, email, password string) (AuthResponse, error) {
	var resp AuthResponse
	req := RegisterRequest{Name: name, Email: email, Password: password}
	if err := c.doJSON(ctx, http.MethodPost, "/auth/register", req, &resp); err != nil {
		return AuthResponse{}, err
	}
	return resp, nil
}

// Upload sends a file as multipart form field "file". The caller is
// responsible for checking contentType with AllowedContentType first.
func (c *Client) Upload(ctx context.Context, name, contentType string, r io.Reader) (Document, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(name)))
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, r); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	var doc Document
	err := c.do(ctx, http.MethodPost, "/documents/upload", pr, mw.FormDataContentType(), &doc)
	// Unblock the writer goroutine if the request ended before the body was consumed.
	pr.Close()
	if err != nil {
		return Document{}, err
	}
	return doc, nil
}

// StreamURL returns the URL the media player should open for a document.
func (c *Client) StreamURL(id int64) string {
	return c.baseURL + documentPath(id) + "/stream"
}

// Download copies the original uploaded file of a document to w.
func (c *Client) Download(ctx context.Context, id int64, w io.Writer) error {
	return c.do(ctx, http.MethodGet, documentPath(id)+"/content", nil, "", w)
}

func documentPath(id int64) string {
	return "/documents/" + strconv.FormatInt(id, 10)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	if in == nil {
		return c.do(ctx, method, path, nil, "", out)
	}
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.do(ctx, method, path, bytes.NewReader(data), "application/json", out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	reqID := uuid.NewString()
	sink, raw := out.(io.Writer)
	if !raw {
		req.Header.Set("Accept", "application/json")
	}
	req.Header.Set(RequestIDHeader, reqID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.tokens != nil {
		if tok := c.tokens.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("request failed",
			zap.String("request_id", reqID),
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return &Error{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("request done",
		zap.String("request_id", reqID),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{Method: method, Path: path, StatusCode: resp.StatusCode}
		var er ErrorResponse
		if data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024)); len(data) > 0 {
			if json.Unmarshal(data, &er) == nil {
				apiErr.Message = er.Message
			}
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if raw {
		if _, err := io.Copy(sink, resp.Body); err != nil {
			return fmt.Errorf("read %s %s: %w", method, path, err)
		}
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
