// Package statemachine owns the session's view of appointments and is the only place their
// status changes.
package statemachine

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	otelx "github.com/md-rashed-zaman/clinicflow/libs/otel"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/clinicerr"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/inflight"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/metrics"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/model"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/stores"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Machine struct {
	store   stores.AppointmentStore
	guard   inflight.Guard
	metrics *metrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer

	mu       sync.RWMutex
	snapshot map[string]model.Appointment
	// gen counts Track calls; trackedAt holds the gen of each id's last Track.
	gen       uint64
	trackedAt map[string]uint64
}

func New(store stores.AppointmentStore, guard inflight.Guard, m *metrics.Metrics, logger *slog.Logger) *Machine {
	if guard == nil {
		guard = inflight.NewMemoryGuard()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		store:    store,
		guard:    guard,
		metrics:  m,
		logger:   logger,
		tracer:   otelx.Tracer("clinicflow/statemachine"),
		snapshot:  make(map[string]model.Appointment),
		trackedAt: make(map[string]uint64),
	}
}

// Guard exposes the in-flight guard so workflows spanning several store calls can hold it for
// their whole duration.
func (m *Machine) Guard() inflight.Guard { return m.guard }

// Refresh replaces the snapshot with the store's current list. Entries tracked while the list
// was in flight win over the list, and a terminal status is never replaced by a non-terminal one.
func (m *Machine) Refresh(ctx context.Context) ([]model.Appointment, error) {
	m.mu.RLock()
	start := m.gen
	m.mu.RUnlock()

	list, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	next := make(map[string]model.Appointment, len(list))
	for _, a := range list {
		if a.AppointmentID == "" {
			continue
		}
		next[a.AppointmentID] = a
	}

	m.mu.Lock()
	for id, have := range m.snapshot {
		fresh, listed := next[id]
		switch {
		case m.trackedAt[id] > start:
			next[id] = have
		case listed && have.Status.Terminal() && !fresh.Status.Terminal():
			next[id] = have
		}
	}
	for id := range m.trackedAt {
		if _, ok := next[id]; !ok {
			delete(m.trackedAt, id)
		}
	}
	m.snapshot = next
	m.mu.Unlock()
	return m.Snapshot(), nil
}

// Snapshot returns the known appointments ordered by scheduled time.
func (m *Machine) Snapshot() []model.Appointment {
	m.mu.RLock()
	out := make([]model.Appointment, 0, len(m.snapshot))
	for _, a := range m.snapshot {
		out = append(out, a)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AppointmentDateTime.Equal(out[j].AppointmentDateTime) {
			return out[i].AppointmentDateTime.Before(out[j].AppointmentDateTime)
		}
		return out[i].AppointmentID < out[j].AppointmentID
	})
	return out
}

func (m *Machine) cached(id string) (model.Appointment, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.snapshot[id]
	return a, ok
}

// Lookup serves id from the snapshot, refreshing once on a miss.
func (m *Machine) Lookup(ctx context.Context, id string) (model.Appointment, error) {
	if id == "" {
		return model.Appointment{}, clinicerr.Required("appointmentId")
	}
	if a, ok := m.cached(id); ok {
		return a, nil
	}
	if _, err := m.Refresh(ctx); err != nil {
		return model.Appointment{}, err
	}
	if a, ok := m.cached(id); ok {
		return a, nil
	}
	return model.Appointment{}, notFound("appointments.lookup", id)
}

// Current always re-reads the store before answering, for checks that must not act on a status
// another client has since changed.
func (m *Machine) Current(ctx context.Context, id string) (model.Appointment, error) {
	if id == "" {
		return model.Appointment{}, clinicerr.Required("appointmentId")
	}
	if _, err := m.Refresh(ctx); err != nil {
		return model.Appointment{}, err
	}
	if a, ok := m.cached(id); ok {
		return a, nil
	}
	return model.Appointment{}, notFound("appointments.current", id)
}

func notFound(op, id string) error {
	return &clinicerr.Error{
		Kind:    clinicerr.KindNotFound,
		Op:      op,
		Message: "appointment " + id + " not found",
	}
}

// Track records an appointment the caller already holds, e.g. one just created by the store.
func (m *Machine) Track(a model.Appointment) {
	if a.AppointmentID == "" {
		return
	}
	m.mu.Lock()
	m.gen++
	m.trackedAt[a.AppointmentID] = m.gen
	m.snapshot[a.AppointmentID] = a
	m.mu.Unlock()
}

func (m *Machine) Confirm(ctx context.Context, id string) (model.Appointment, error) {
	appt, err := m.Lookup(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	to, err := Next(appt.Status, EventConfirm)
	if err != nil {
		m.metrics.ObserveTransition(string(EventConfirm), err)
		return model.Appointment{}, err
	}
	release, err := m.guard.Acquire(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	defer release()

	return m.mutate(ctx, EventConfirm, appt, to, func(ctx context.Context) (model.Appointment, error) {
		return m.store.Confirm(ctx, id)
	})
}

func (m *Machine) Cancel(ctx context.Context, id, reason string) (model.Appointment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return model.Appointment{}, clinicerr.Required("reason")
	}
	appt, err := m.Lookup(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	to, err := Next(appt.Status, EventCancel)
	if err != nil {
		m.metrics.ObserveTransition(string(EventCancel), err)
		return model.Appointment{}, err
	}
	release, err := m.guard.Acquire(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	defer release()

	updated, err := m.mutate(ctx, EventCancel, appt, to, func(ctx context.Context) (model.Appointment, error) {
		return m.store.Cancel(ctx, id, reason)
	})
	if err != nil {
		return model.Appointment{}, err
	}
	if updated.CancellationReason == "" {
		updated.CancellationReason = reason
		m.Track(updated)
	}
	return updated, nil
}

// CheckCompletable rejects ids the snapshot knows to be in a status other than CONFIRMED. Ids
// the snapshot has never seen pass; the store has the final word on those.
func (m *Machine) CheckCompletable(id string) error {
	appt, ok := m.cached(id)
	if !ok {
		return nil
	}
	_, err := Next(appt.Status, EventComplete)
	return err
}

// MarkCompleted moves id to COMPLETED. It requires the prescription already issued for this
// appointment and does not take the in-flight guard, which the calling saga holds.
func (m *Machine) MarkCompleted(ctx context.Context, id string, issued model.Prescription) (model.Appointment, error) {
	if issued.PrescriptionID == "" || issued.AppointmentID != id {
		err := &clinicerr.Error{
			Kind:    clinicerr.KindInvalidTransition,
			Op:      "appointments.complete",
			Message: "an appointment can only be completed after its prescription was issued",
		}
		m.metrics.ObserveTransition(string(EventComplete), err)
		return model.Appointment{}, err
	}
	if err := m.CheckCompletable(id); err != nil {
		m.metrics.ObserveTransition(string(EventComplete), err)
		return model.Appointment{}, err
	}
	current, _ := m.cached(id)
	if current.AppointmentID == "" {
		current = model.Appointment{AppointmentID: id, Status: model.StatusConfirmed}
	}
	return m.mutate(ctx, EventComplete, current, model.StatusCompleted, func(ctx context.Context) (model.Appointment, error) {
		return m.store.Complete(ctx, id)
	})
}

// mutate runs call on a context detached from the caller's cancellation so a response that
// arrives after the caller left is still applied to the snapshot.
func (m *Machine) mutate(ctx context.Context, event Event, current model.Appointment, to model.Status, call func(context.Context) (model.Appointment, error)) (model.Appointment, error) {
	ctx, span := m.tracer.Start(context.WithoutCancel(ctx), "appointments."+string(event),
		trace.WithAttributes(
			attribute.String("appointment.id", current.AppointmentID),
			attribute.String("appointment.from", string(current.Status)),
		))
	defer span.End()

	resp, err := call(ctx)
	m.metrics.ObserveTransition(string(event), err)
	if err != nil {
		span.RecordError(err)
		m.logger.Warn("appointment transition failed",
			"appointment_id", current.AppointmentID, "event", event, "err", err)
		return model.Appointment{}, err
	}

	updated := current
	if resp.AppointmentID != "" {
		updated = resp
	}
	if updated.Status == "" {
		updated.Status = to
	}
	m.Track(updated)
	m.logger.Info("appointment transitioned",
		"appointment_id", current.AppointmentID, "event", event, "from", current.Status, "to", updated.Status)
	return updated, nil
}
