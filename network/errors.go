package network

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Error classes. Every error returned by Client unwraps to at most one of these.
var (
	// ErrValidation marks a local precondition failure. No request was sent.
	ErrValidation = errors.New("validation error")
	// ErrTransport marks timeouts and connection failures.
	ErrTransport = errors.New("transport error")
	// ErrAuth marks 401/403 responses: invalid credentials or an expired token.
	ErrAuth = errors.New("authentication error")
	// ErrNotFound marks 404 responses.
	ErrNotFound = errors.New("not found")
	// ErrServer marks 5xx responses.
	ErrServer = errors.New("server error")
	// ErrUnexpectedResponse marks a success status with a payload missing required fields.
	ErrUnexpectedResponse = errors.New("unexpected response")
)

const maxErrorBodyLength = 200

// StatusError is returned when the API answers with a status other than the expected one.
type StatusError struct {
	StatusCode int
	// Detail is the `detail` field of the response body, if any. List shaped details
	// carry the first entry's message.
	Detail string
	// Body is the raw response body, truncated.
	Body string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Unwrap returns the error class of the status code. Unclassified 4xx codes return nil.
func (e *StatusError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusUnauthorized, e.StatusCode == http.StatusForbidden:
		return ErrAuth
	case e.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case e.StatusCode >= 500:
		return ErrServer
	default:
		return nil
	}
}

// ValidationError ...
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError ...
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Unwrap ...
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// StatusCode returns the HTTP status carried by err, or 0 if err is not a StatusError.
func StatusCode(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}

// Detail returns the remote detail message carried by err, or "".
func Detail(err error) string {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Detail
	}
	return ""
}

func unwrapError(resp *http.Response) error {
	errorResp, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read error response: %w", ErrTransport, err)
	}

	body := strings.TrimSpace(string(errorResp))
	if len(body) > maxErrorBodyLength {
		body = body[:maxErrorBodyLength]
	}

	return &StatusError{
		StatusCode: resp.StatusCode,
		Detail:     parseDetail(errorResp),
		Body:       body,
	}
}

type detailEntry struct {
	Msg string `json:"msg"`
}

// parseDetail understands both `{"detail": "text"}` and the validation shape
// `{"detail": [{"msg": "text", ...}]}`.
func parseDetail(body []byte) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return ""
	}

	var text string
	if err := json.Unmarshal(envelope.Detail, &text); err == nil {
		return text
	}

	var entries []detailEntry
	if err := json.Unmarshal(envelope.Detail, &entries); err == nil {
		if len(entries) > 0 {
			return entries[0].Msg
		}
		return ""
	}

	return strings.TrimSpace(string(envelope.Detail))
}
