package app

import (
	"github.com/jwulff/docqa/internal/api"
	"github.com/jwulff/docqa/internal/player"
)

// AuthChangedMsg is sent when the token store gains or loses a credential.
type AuthChangedMsg struct {
	Authenticated bool
}

// LoginResultMsg carries the outcome of a login or registration.
type LoginResultMsg struct {
	Err error
}

// LoggedOutMsg is sent once the credential has been cleared.
type LoggedOutMsg struct {
	Err error
}

// UploadResultMsg carries the outcome of an upload.
type UploadResultMsg struct {
	Doc api.Document
	Err error
}

// DeleteResultMsg carries the outcome of a delete.
type DeleteResultMsg struct {
	ID  int64
	Err error
}

// DocumentLoadedMsg carries fresh document metadata for a document view.
type DocumentLoadedMsg struct {
	ViewID int64
	Doc    api.Document
	Err    error
}

// SummaryLoadedMsg carries a document summary for a document view.
type SummaryLoadedMsg struct {
	ViewID  int64
	Summary string
	Err     error
}

// TimestampsLoadedMsg carries the topic timeline for a document view.
type TimestampsLoadedMsg struct {
	ViewID  int64
	Entries []api.TimestampEntry
	Err     error
}

// PlayerReadyMsg is sent when the playback element for a view has started.
type PlayerReadyMsg struct {
	ViewID  int64
	Element player.Element
	Err     error
}

// ClearTransientErrorMsg clears a transient error after a timeout.
type ClearTransientErrorMsg struct {
	seq int
}
