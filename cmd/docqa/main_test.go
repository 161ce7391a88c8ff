package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwulff/docqa/internal/api"
)

type backend struct {
	mu      sync.Mutex
	docs    []api.Document
	chats   []api.ChatRequest
	uploads []string
}

func newBackend(t *testing.T) (*backend, string) {
	t.Helper()
	b := &backend{docs: []api.Document{
		{ID: 1, OriginalFileName: "report.pdf", Type: api.KindPDF, FileSize: 2048, Status: api.StatusCompleted},
		{ID: 2, OriginalFileName: "talk.mp3", Type: api.KindAudio, FileSize: 1 << 20, Status: api.StatusProcessing},
	}}

	r := chi.NewRouter()
	r.Post("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req api.LoginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, api.AuthResponse{Token: "tok-cli"})
	})
	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("Authorization") != "Bearer tok-cli" {
					w.WriteHeader(http.StatusUnauthorized)
					return
				}
				next.ServeHTTP(w, r)
			})
		})
		r.Get("/api/documents", func(w http.ResponseWriter, r *http.Request) {
			b.mu.Lock()
			defer b.mu.Unlock()
			writeJSON(w, b.docs)
		})
		r.Get("/api/documents/{id}", func(w http.ResponseWriter, r *http.Request) {
			b.mu.Lock()
			defer b.mu.Unlock()
			for _, d := range b.docs {
				if strconv.FormatInt(d.ID, 10) == chi.URLParam(r, "id") {
					writeJSON(w, d)
					return
				}
			}
			w.WriteHeader(http.StatusNotFound)
		})
		r.Get("/api/documents/{id}/content", func(w http.ResponseWriter, r *http.Request) {
			if chi.URLParam(r, "id") != "1" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write([]byte(reportPDF))
		})
		r.Get("/api/documents/type/{type}", func(w http.ResponseWriter, r *http.Request) {
			b.mu.Lock()
			defer b.mu.Unlock()
			out := []api.Document{}
			for _, d := range b.docs {
				if string(d.Type) == chi.URLParam(r, "type") {
					out = append(out, d)
				}
			}
			writeJSON(w, out)
		})
		r.Post("/api/documents/upload", func(w http.ResponseWriter, r *http.Request) {
			f, h, err := r.FormFile("file")
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			f.Close()
			b.mu.Lock()
			defer b.mu.Unlock()
			b.uploads = append(b.uploads, h.Header.Get("Content-Type"))
			doc := api.Document{ID: 3, OriginalFileName: h.Filename, Type: api.KindPDF, Status: api.StatusPending}
			b.docs = append(b.docs, doc)
			writeJSON(w, doc)
		})
		r.Post("/api/chat", func(w http.ResponseWriter, r *http.Request) {
			var req api.ChatRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			b.mu.Lock()
			b.chats = append(b.chats, req)
			b.mu.Unlock()
			writeJSON(w, api.ChatResponse{
				Response:   "It is about the budget.",
				SessionID:  "sess-9",
				Timestamps: []api.TimestampReference{{StartTime: 42, FormattedTime: "00:42", Content: "budget"}},
			})
		})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return b, srv.URL + "/api"
}

const reportPDF = "%PDF-1.4\nreport body\n%%EOF\n"

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// isolate keeps config, credentials and logs inside a temp dir.
func isolate(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)
	t.Setenv("DOCQA_STORAGE_PATH", filepath.Join(dir, "docqa.sqlite"))
	t.Setenv("DOCQA_LOG_PATH", filepath.Join(dir, "docqa.log"))
	t.Chdir(dir)

	orig := readPassword
	readPassword = func(int) ([]byte, error) { return []byte("secret"), nil }
	t.Cleanup(func() { readPassword = orig })
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := rootCMD()
	root.SetArgs(args)
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&out)
	err := root.Execute()
	return out.String(), err
}

func TestCommandTree(t *testing.T) {
	root := rootCMD()
	for _, name := range []string{"login", "register", "logout", "list", "upload", "delete", "download", "summary", "timestamps", "ask", "mcp"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
	for _, flag := range []string{"config", "server", "debug"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), flag)
	}
}

func TestParseID(t *testing.T) {
	id, err := parseID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, bad := range []string{"", "abc", "0", "-3"} {
		_, err := parseID(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseKind(t *testing.T) {
	k, err := parseKind("audio")
	require.NoError(t, err)
	assert.Equal(t, api.KindAudio, k)

	k, err = parseKind("")
	require.NoError(t, err)
	assert.Equal(t, api.MediaKind(""), k)

	_, err = parseKind("spreadsheet")
	assert.Error(t, err)
}

func TestLoginListAndLogout(t *testing.T) {
	isolate(t)
	_, server := newBackend(t)

	_, err := run(t, "", "list", "--server", server)
	require.Error(t, err)
	assert.True(t, errors.Is(err, api.ErrUnauthorized), "list before login: %v", err)

	out, err := run(t, "secret\n", "login", "--server", server, "--email", "ada@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as ada@example.com")

	out, err = run(t, "", "list", "--server", server)
	require.NoError(t, err)
	assert.Contains(t, out, "report.pdf")
	assert.Contains(t, out, "talk.mp3")
	assert.Contains(t, out, "PROCESSING")

	out, err = run(t, "", "list", "--server", server, "--type", "audio")
	require.NoError(t, err)
	assert.Contains(t, out, "talk.mp3")
	assert.NotContains(t, out, "report.pdf")

	out, err = run(t, "", "logout", "--server", server)
	require.NoError(t, err)
	assert.Contains(t, out, "Signed out")

	_, err = run(t, "", "list", "--server", server)
	assert.True(t, errors.Is(err, api.ErrUnauthorized), "list after logout: %v", err)
}

func TestLoginWrongPassword(t *testing.T) {
	isolate(t)
	_, server := newBackend(t)
	readPassword = func(int) ([]byte, error) { return []byte("nope"), nil }

	_, err := run(t, "nope\n", "login", "--server", server, "--email", "ada@example.com")
	require.Error(t, err)
	assert.True(t, errors.Is(err, api.ErrUnauthorized))
}

func TestUploadAndAsk(t *testing.T) {
	isolate(t)
	b, server := newBackend(t)
	_, err := run(t, "secret\n", "login", "--server", server, "--email", "ada@example.com")
	require.NoError(t, err)

	dir := t.TempDir()
	pdf := filepath.Join(dir, "paper.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF-1.4\n1 0 obj\n<< >>\nendobj\n%%EOF\n"), 0o644))
	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("plain text\n"), 0o644))

	out, err := run(t, "", "upload", "--server", server, pdf, txt)
	require.Error(t, err)
	assert.True(t, errors.Is(err, api.ErrUnsupportedType), "got %v", err)
	assert.Contains(t, out, "Uploaded paper.pdf as #3 (PENDING)")

	b.mu.Lock()
	assert.Equal(t, []string{"application/pdf"}, b.uploads)
	b.mu.Unlock()

	out, err = run(t, "", "ask", "--server", server, "--session", "sess-1", "1", "what", "is", "this?")
	require.NoError(t, err)
	assert.Contains(t, out, "It is about the budget.")
	assert.Contains(t, out, "[00:42] budget")
	assert.Contains(t, out, "session: sess-9")

	b.mu.Lock()
	defer b.mu.Unlock()
	require.Len(t, b.chats, 1)
	assert.Equal(t, api.ChatRequest{DocumentID: 1, Message: "what is this?", SessionID: "sess-1"}, b.chats[0])
}

func TestDownload(t *testing.T) {
	isolate(t)
	_, server := newBackend(t)
	_, err := run(t, "secret\n", "login", "--server", server, "--email", "ada@example.com")
	require.NoError(t, err)

	out, err := run(t, "", "download", "--server", server, "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Saved #1 to report.pdf")
	data, err := os.ReadFile("report.pdf")
	require.NoError(t, err)
	assert.Equal(t, reportPDF, string(data))

	_, err = run(t, "", "download", "--server", server, "1")
	assert.Error(t, err, "an existing file must not be overwritten")

	out, err = run(t, "", "download", "--server", server, "-o", "-", "1")
	require.NoError(t, err)
	assert.Equal(t, reportPDF, out)

	dest := filepath.Join(t.TempDir(), "missing.bin")
	_, err = run(t, "", "download", "--server", server, "-o", dest, "2")
	assert.True(t, errors.Is(err, api.ErrNotFound), "got %v", err)
	assert.NoFileExists(t, dest)
}

func TestInvalidServerURL(t *testing.T) {
	isolate(t)
	_, err := run(t, "", "list", "--server", "ftp://example.com")
	assert.Error(t, err)
}
