// Package notify carries user-visible outcomes out of the workflows: to portal sessions over a
// websocket and, for patient-facing messages, through the outbox to kafka.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/metrics"
)

type Kind string

const (
	KindSuccess Kind = "success"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
	KindInfo    Kind = "info"
)

// Event types relayed to kafka. Anything else stays on the portal stream.
const (
	TypePatientNotification = "clinic.patient.notification.requested.v1"
	TypeCompletionPartial   = "encounter.completion.partial.v1"
)

type Event struct {
	ID            string          `json:"id"`
	Kind          Kind            `json:"kind"`
	Type          string          `json:"type"`
	Message       string          `json:"message"`
	AppointmentID string          `json:"appointmentId,omitempty"`
	Recipient     string          `json:"recipient,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
	At            time.Time       `json:"at"`
}

// NewEvent stamps an id and time. data is marshalled into Data; a marshal failure leaves Data
// empty.
func NewEvent(kind Kind, eventType, appointmentID, message string, data any) Event {
	evt := Event{
		ID:            uuid.NewString(),
		Kind:          kind,
		Type:          eventType,
		Message:       message,
		AppointmentID: appointmentID,
		At:            time.Now().UTC(),
	}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			evt.Data = raw
		}
	}
	return evt
}

func (e Event) PatientFacing() bool {
	return e.Type == TypePatientNotification || e.Type == TypeCompletionPartial
}

type Notifier interface {
	Notify(ctx context.Context, evt Event) error
}

type NotifierFunc func(ctx context.Context, evt Event) error

func (f NotifierFunc) Notify(ctx context.Context, evt Event) error { return f(ctx, evt) }

// Nop drops every event.
var Nop Notifier = NotifierFunc(func(context.Context, Event) error { return nil })

// Multi delivers to every sink and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, evt Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Observed counts every delivery to n under the sink label name.
func Observed(name string, n Notifier, m *metrics.Metrics) Notifier {
	return NotifierFunc(func(ctx context.Context, evt Event) error {
		err := n.Notify(ctx, evt)
		m.ObserveNotification(name, err)
		return err
	})
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	Err    error
}

func (r *Recorder) Notify(_ context.Context, evt Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, evt)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded events with the given type.
func (r *Recorder) OfType(eventType string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
