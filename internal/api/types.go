// Package api provides the HTTP client and wire types for the DocQA backend:
// the document registry, the chat endpoint and the auth endpoints.
package api

import (
	"bytes"
	"fmt"
	"strings"
	"time"
)

// MediaKind is the kind of an uploaded document.
type MediaKind string

const (
	KindPDF   MediaKind = "PDF"
	KindAudio MediaKind = "AUDIO"
	KindVideo MediaKind = "VIDEO"
)

// Status is the server-side processing status of a document.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Terminal reports whether processing has finished, successfully or not.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Document is a document record as returned by the registry.
type Document struct {
	ID               int64     `json:"id"`
	FileName         string    `json:"fileName"`
	OriginalFileName string    `json:"originalFileName"`
	Type             MediaKind `json:"type"`
	MimeType         string    `json:"mimeType"`
	FileSize         int64     `json:"fileSize"`
	Summary          string    `json:"summary,omitempty"` // empty until generated
	UploadedAt       Time      `json:"uploadedAt"`
	ProcessedAt      *Time     `json:"processedAt,omitempty"`
	Status           Status    `json:"status"`
}

// DisplayName returns the name the user uploaded the file under.
func (d Document) DisplayName() string {
	if d.OriginalFileName != "" {
		return d.OriginalFileName
	}
	return d.FileName
}

// IsMedia reports whether the document can be played back.
func (d Document) IsMedia() bool {
	return d.Type == KindAudio || d.Type == KindVideo
}

// TimestampReference links part of a chat answer to a span of the media.
type TimestampReference struct {
	StartTime     float64 `json:"startTime"`
	EndTime       float64 `json:"endTime"`
	Content       string  `json:"content"`
	FormattedTime string  `json:"formattedTime"`
}

// TimestampEntry is one topic span of a processed media document.
type TimestampEntry struct {
	StartTime          float64 `json:"startTime"`
	EndTime            float64 `json:"endTime"`
	FormattedStartTime string  `json:"formattedStartTime"`
	FormattedEndTime   string  `json:"formattedEndTime"`
	Topic              string  `json:"topic"`
	Content            string  `json:"content"`
}

// SummaryResponse is returned by GET /documents/{id}/summary.
type SummaryResponse struct {
	DocumentID int64  `json:"documentId"`
	Summary    string `json:"summary"`
}

// TimestampResponse is returned by GET /documents/{id}/timestamps.
type TimestampResponse struct {
	DocumentID int64            `json:"documentId"`
	Timestamps []TimestampEntry `json:"timestamps"`
}

// ChatRequest is sent to POST /chat. SessionID is omitted on the first turn.
type ChatRequest struct {
	DocumentID int64  `json:"documentId"`
	Message    string `json:"message"`
	SessionID  string `json:"sessionId,omitempty"`
}

// ChatResponse is the answer to a ChatRequest.
type ChatResponse struct {
	Response   string               `json:"response"`
	SessionID  string               `json:"sessionId"`
	Timestamps []TimestampReference `json:"timestamps"`
}

// LoginRequest is sent to POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is sent to POST /auth/register.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse carries the bearer token issued by login or register.
type AuthResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expiresIn,omitempty"`
}

// ErrorResponse is the JSON body of a non-success response.
type ErrorResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// serverTimeLayout is the zone-less layout the backend uses for timestamps.
const serverTimeLayout = "2006-01-02T15:04:05"

// Time decodes backend timestamps, which carry no zone and are taken as
// local time. RFC 3339 values are accepted as well.
type Time struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Time) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	s := strings.Trim(string(data), `"`)
	if s == "" {
		return nil
	}
	if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t.Time = parsed
		return nil
	}
	// Fractional seconds appear when the server does not apply its format.
	if i := strings.IndexByte(s, '.'); i > 0 {
		s = s[:i]
	}
	parsed, err := time.ParseInLocation(serverTimeLayout, s, time.Local)
	if err != nil {
		return fmt.Errorf("parse time %q: %w", s, err)
	}
	t.Time = parsed
	return nil
}

// MarshalJSON implements json.Marshaler using the backend layout.
func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.Format(serverTimeLayout) + `"`), nil
}
