package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

// fakeBackend emulates the DocQA REST API in memory.
type fakeBackend struct {
	mu        sync.Mutex
	token     string
	docs      []Document
	contents  map[int64][]byte
	nextID    int64
	chats     []ChatRequest
	uploads   []string // content types received
	requestID []string
}

func newFakeBackend(t *testing.T) (*fakeBackend, *httptest.Server) {
	t.Helper()

	fb := &fakeBackend{token: "tok-1", nextID: 1, contents: map[int64][]byte{}}

	r := chi.NewRouter()
	r.Post("/api/auth/login", fb.handleLogin)
	r.Post("/api/auth/register", fb.handleLogin)
	r.Group(func(r chi.Router) {
		r.Use(fb.requireToken)
		r.Get("/api/documents", fb.handleList)
		r.Get("/api/documents/type/{type}", fb.handleListByType)
		r.Post("/api/documents/upload", fb.handleUpload)
		r.Get("/api/documents/{id}", fb.handleGet)
		r.Delete("/api/documents/{id}", fb.handleDelete)
		r.Get("/api/documents/{id}/content", fb.handleContent)
		r.Get("/api/documents/{id}/summary", fb.handleSummary)
		r.Get("/api/documents/{id}/timestamps", fb.handleTimestamps)
		r.Post("/api/chat", fb.handleChat)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return fb, srv
}

type staticToken string

func (s staticToken) Token() string { return string(s) }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (fb *fakeBackend) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		fb.requestID = append(fb.requestID, r.Header.Get(RequestIDHeader))
		want := "Bearer " + fb.token
		fb.mu.Unlock()
		if r.Header.Get("Authorization") != want {
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Status: 401, Message: "Invalid token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (fb *fakeBackend) find(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Status: 400, Message: "bad id"})
		return 0, false
	}
	for i, d := range fb.docs {
		if d.ID == id {
			return i, true
		}
	}
	writeJSON(w, http.StatusNotFound, ErrorResponse{Status: 404, Message: "Document not found with id: " + chi.URLParam(r, "id")})
	return 0, false
}

func (fb *fakeBackend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Password != "secret" {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Status: 401, Message: "Invalid email or password"})
		return
	}
	fb.mu.Lock()
	defer fb.mu.Unlock()
	writeJSON(w, http.StatusOK, AuthResponse{Token: fb.token, ExpiresIn: 3600})
}

func (fb *fakeBackend) handleList(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	writeJSON(w, http.StatusOK, fb.docs)
}

func (fb *fakeBackend) handleListByType(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	out := []Document{}
	for _, d := range fb.docs {
		if string(d.Type) == chi.URLParam(r, "type") {
			out = append(out, d)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (fb *fakeBackend) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Status: 400, Message: err.Error()})
		return
	}
	defer file.Close()
	data, _ := io.ReadAll(file)

	ct := hdr.Header.Get("Content-Type")
	kind := KindPDF
	switch {
	case strings.HasPrefix(ct, "audio/"):
		kind = KindAudio
	case strings.HasPrefix(ct, "video/"):
		kind = KindVideo
	}

	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.uploads = append(fb.uploads, ct)
	doc := Document{
		ID:               fb.nextID,
		FileName:         "stored-" + hdr.Filename,
		OriginalFileName: hdr.Filename,
		Type:             kind,
		MimeType:         ct,
		FileSize:         int64(len(data)),
		Status:           StatusPending,
	}
	fb.contents[doc.ID] = data
	fb.nextID++
	fb.docs = append(fb.docs, doc)
	writeJSON(w, http.StatusOK, doc)
}

func (fb *fakeBackend) handleGet(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if i, ok := fb.find(w, r); ok {
		writeJSON(w, http.StatusOK, fb.docs[i])
	}
}

func (fb *fakeBackend) handleDelete(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if i, ok := fb.find(w, r); ok {
		fb.docs = append(fb.docs[:i], fb.docs[i+1:]...)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (fb *fakeBackend) handleContent(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if i, ok := fb.find(w, r); ok {
		w.Header().Set("Content-Type", fb.docs[i].MimeType)
		_, _ = w.Write(fb.contents[fb.docs[i].ID])
	}
}

func (fb *fakeBackend) handleSummary(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if i, ok := fb.find(w, r); ok {
		writeJSON(w, http.StatusOK, SummaryResponse{DocumentID: fb.docs[i].ID, Summary: fb.docs[i].Summary})
	}
}

func (fb *fakeBackend) handleTimestamps(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if i, ok := fb.find(w, r); ok {
		writeJSON(w, http.StatusOK, TimestampResponse{
			DocumentID: fb.docs[i].ID,
			Timestamps: []TimestampEntry{
				{StartTime: 0, EndTime: 10, FormattedStartTime: "00:00", FormattedEndTime: "00:10", Topic: "Intro"},
				{StartTime: 10, EndTime: 25, FormattedStartTime: "00:10", FormattedEndTime: "00:25", Topic: "Setup"},
			},
		})
	}
}

func (fb *fakeBackend) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Status: 400, Message: "Validation failed"})
		return
	}
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.chats = append(fb.chats, req)
	sid := req.SessionID
	if sid == "" {
		sid = "s1"
	}
	writeJSON(w, http.StatusOK, ChatResponse{
		Response:   "answer to " + req.Message,
		SessionID:  sid,
		Timestamps: []TimestampReference{{StartTime: 5, EndTime: 9, Content: "setup", FormattedTime: "00:05"}},
	})
}

func (fb *fakeBackend) chatRequests() []ChatRequest {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]ChatRequest(nil), fb.chats...)
}

func (fb *fakeBackend) uploadTypes() []string {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]string(nil), fb.uploads...)
}

func (fb *fakeBackend) requestIDs() []string {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]string(nil), fb.requestID...)
}
