package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrUnauthorized is returned when the server rejects the credential.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound is returned for unknown documents.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable is returned when the server cannot be reached.
	ErrUnavailable = errors.New("server unavailable")
	// ErrUnsupportedType is returned by ValidateContentType.
	ErrUnsupportedType = errors.New("unsupported file type")
)

// Error describes a failed request. It matches ErrUnauthorized, ErrNotFound
// or ErrUnavailable with errors.Is depending on how the request failed.
type Error struct {
	Method     string
	Path       string
	StatusCode int    // zero when the request never got a response
	Message    string // server supplied message, if any
	Err        error  // transport error, if any
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
	}
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, msg)
}

// Unwrap exposes the matching sentinel and the transport error.
func (e *Error) Unwrap() []error {
	var errs []error
	switch {
	case e.StatusCode == 0:
		errs = append(errs, ErrUnavailable)
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		errs = append(errs, ErrUnauthorized)
	case e.StatusCode == http.StatusNotFound:
		errs = append(errs, ErrNotFound)
	case e.StatusCode == http.StatusBadGateway ||
		e.StatusCode == http.StatusServiceUnavailable ||
		e.StatusCode == http.StatusGatewayTimeout:
		errs = append(errs, ErrUnavailable)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// AllowedContentType reports whether a declared content type may be uploaded:
// PDF documents and any audio or video type.
func AllowedContentType(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return ct == "application/pdf" ||
		strings.HasPrefix(ct, "audio/") ||
		strings.HasPrefix(ct, "video/")
}

// ValidateContentType returns ErrUnsupportedType for disallowed types.
func ValidateContentType(contentType string) error {
	if !AllowedContentType(contentType) {
		return fmt.Errorf("%w: %q", ErrUnsupportedType, contentType)
	}
	return nil
}
