package api

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDocumentUnmarshal(t *testing.T) {
	j := `{"id":7,"fileName":"a1b2.pdf","originalFileName":"report.pdf","type":"PDF",
		"mimeType":"application/pdf","fileSize":2048,"summary":null,
		"uploadedAt":"2024-05-01T10:30:00","processedAt":null,"status":"PENDING"}`

	var doc Document
	if err := json.Unmarshal([]byte(j), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if doc.ID != 7 {
		t.Errorf("id = %d, want 7", doc.ID)
	}
	if doc.DisplayName() != "report.pdf" {
		t.Errorf("display name = %q, want %q", doc.DisplayName(), "report.pdf")
	}
	if doc.Status != StatusPending {
		t.Errorf("status = %q, want %q", doc.Status, StatusPending)
	}
	if doc.Summary != "" {
		t.Errorf("summary = %q, want empty", doc.Summary)
	}
	if doc.ProcessedAt != nil {
		t.Errorf("processedAt = %v, want nil", doc.ProcessedAt)
	}
	want := time.Date(2024, 5, 1, 10, 30, 0, 0, time.Local)
	if !doc.UploadedAt.Equal(want) {
		t.Errorf("uploadedAt = %v, want %v", doc.UploadedAt, want)
	}
}

func TestDocumentDisplayNameFallback(t *testing.T) {
	doc := Document{FileName: "stored.mp3"}
	if doc.DisplayName() != "stored.mp3" {
		t.Errorf("display name = %q", doc.DisplayName())
	}
}

func TestDocumentIsMedia(t *testing.T) {
	tests := []struct {
		kind MediaKind
		want bool
	}{
		{KindPDF, false},
		{KindAudio, true},
		{KindVideo, true},
	}
	for _, tt := range tests {
		if got := (Document{Type: tt.kind}).IsMedia(); got != tt.want {
			t.Errorf("IsMedia(%s) = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusPending.Terminal() || StatusProcessing.Terminal() {
		t.Error("pending and processing are not terminal")
	}
	if !StatusCompleted.Terminal() || !StatusFailed.Terminal() {
		t.Error("completed and failed are terminal")
	}
}

func TestTimeAcceptsRFC3339AndFraction(t *testing.T) {
	var a, b Time
	if err := json.Unmarshal([]byte(`"2024-05-01T10:30:00Z"`), &a); err != nil {
		t.Fatalf("rfc3339: %v", err)
	}
	if a.UTC().Hour() != 10 {
		t.Errorf("hour = %d, want 10", a.UTC().Hour())
	}
	if err := json.Unmarshal([]byte(`"2024-05-01T10:30:00.123456"`), &b); err != nil {
		t.Fatalf("fractional: %v", err)
	}
	if b.Minute() != 30 {
		t.Errorf("minute = %d, want 30", b.Minute())
	}
}

func TestTimeRejectsGarbage(t *testing.T) {
	var tm Time
	if err := json.Unmarshal([]byte(`"yesterday"`), &tm); err == nil {
		t.Error("expected error for unparseable time")
	}
}

func TestChatRequestOmitsEmptySession(t *testing.T) {
	data, err := json.Marshal(ChatRequest{DocumentID: 7, Message: "What is in this?"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal raw: %v", err)
	}
	if _, ok := raw["sessionId"]; ok {
		t.Error("first turn should omit sessionId")
	}
	if raw["documentId"] != float64(7) {
		t.Errorf("documentId = %v, want 7", raw["documentId"])
	}
}

func TestChatResponseTimestamps(t *testing.T) {
	j := `{"response":"It covers setup.","sessionId":"s1",
		"timestamps":[{"startTime":5,"endTime":9,"content":"setup","formattedTime":"00:05"}]}`

	var resp ChatResponse
	if err := json.Unmarshal([]byte(j), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.SessionID != "s1" {
		t.Errorf("sessionId = %q, want %q", resp.SessionID, "s1")
	}
	if len(resp.Timestamps) != 1 || resp.Timestamps[0].StartTime != 5 {
		t.Errorf("timestamps = %+v", resp.Timestamps)
	}
}

func TestAllowedContentType(t *testing.T) {
	tests := []struct {
		ct   string
		want bool
	}{
		{"application/pdf", true},
		{"audio/mpeg", true},
		{"audio/x-custom", true},
		{"video/mp4", true},
		{"Video/WebM", true},
		{"application/pdf; charset=binary", true},
		{"text/plain", false},
		{"application/zip", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := AllowedContentType(tt.ct); got != tt.want {
			t.Errorf("AllowedContentType(%q) = %v, want %v", tt.ct, got, tt.want)
		}
	}
}
