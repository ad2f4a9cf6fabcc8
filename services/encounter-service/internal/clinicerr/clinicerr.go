// Package clinicerr classifies failures of the orchestration core so callers can tell a local
// precondition failure from a transport problem or a store rejection.
package clinicerr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"unicode/utf8"
)

type Kind string

const (
	KindValidation             Kind = "validation"
	KindMissingPatientIdentity Kind = "missing_patient_identity"
	KindInvalidTransition      Kind = "invalid_transition"
	KindAppointmentCancelled   Kind = "appointment_cancelled"
	KindInProgress             Kind = "in_progress"
	KindNetwork                Kind = "network"
	KindNotFound               Kind = "not_found"
	KindServer                 Kind = "server"
)

// Sentinels for errors.Is; matching is by Kind only.
var (
	ErrValidation             = &Error{Kind: KindValidation}
	ErrMissingPatientIdentity = &Error{Kind: KindMissingPatientIdentity}
	ErrInvalidTransition      = &Error{Kind: KindInvalidTransition}
	ErrAppointmentCancelled   = &Error{Kind: KindAppointmentCancelled}
	ErrInProgress             = &Error{Kind: KindInProgress}
	ErrNetwork                = &Error{Kind: KindNetwork}
	ErrNotFound               = &Error{Kind: KindNotFound}
	ErrServer                 = &Error{Kind: KindServer}
)

// ErrWriteUnconfirmed marks a write the store acknowledged without echoing the created record.
// The write may have happened, so a blind retry can duplicate it.
var ErrWriteUnconfirmed = errors.New("write state unknown")

type Error struct {
	Kind       Kind
	Op         string
	Field      string
	Message    string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "" when err is unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsValidation reports whether err is a local precondition failure.
func IsValidation(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindMissingPatientIdentity:
		return true
	}
	return false
}

func Validationf(field, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: fmt.Sprintf(format, args...)}
}

func Required(field string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: field + " is required"}
}

func MissingIdentity(field string) *Error {
	return &Error{
		Kind:    KindMissingPatientIdentity,
		Field:   field,
		Message: fmt.Sprintf("origin appointment has no %s on file", field),
	}
}

func Transition(op string, from, event string) *Error {
	return &Error{
		Kind:    KindInvalidTransition,
		Op:      op,
		Message: fmt.Sprintf("cannot %s an appointment in status %s", event, from),
	}
}

func InProgress(key string) *Error {
	return &Error{
		Kind:    KindInProgress,
		Message: fmt.Sprintf("another operation on %s is still in flight", key),
	}
}

func Cancelled(appointmentID string) *Error {
	return &Error{
		Kind:    KindAppointmentCancelled,
		Message: fmt.Sprintf("appointment %s is cancelled; its prescription is not available", appointmentID),
	}
}

// FromStatus classifies a non-2xx store response.
func FromStatus(op string, code int, body string) *Error {
	body = truncate(strings.TrimSpace(body), maxBodyBytes)
	kind := KindServer
	if code == http.StatusNotFound {
		kind = KindNotFound
	}
	msg := fmt.Sprintf("status %d", code)
	if body != "" {
		msg += ": " + body
	}
	return &Error{Kind: kind, Op: op, StatusCode: code, Message: msg}
}

const maxBodyBytes = 256

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// FromTransport classifies a failure to reach a store. Timeouts are deliberately folded into
// the network kind.
func FromTransport(op string, err error) *Error {
	msg := "store unreachable"
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		msg = "store request timed out"
	}
	return &Error{Kind: KindNetwork, Op: op, Message: msg, Err: err}
}
