// Package storestest provides in-memory store fakes that record every call, for exercising the
// orchestration logic without network I/O.
package storestest

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/clinicerr"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/model"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/stores"
)

// Appointments is a fake AppointmentStore. Set Fail[op] to force an error for an operation
// ("list", "create", "confirm", "cancel", "complete", "revisit").
type Appointments struct {
	mu     sync.Mutex
	byID   map[string]model.Appointment
	nextID int
	Calls  []string
	Fail   map[string]error
	// Block, when set for an op, is waited on before the op proceeds.
	Block map[string]chan struct{}
}

func NewAppointments(appts ...model.Appointment) *Appointments {
	f := &Appointments{
		byID:  make(map[string]model.Appointment),
		Fail:  make(map[string]error),
		Block: make(map[string]chan struct{}),
	}
	for _, a := range appts {
		f.byID[a.AppointmentID] = a
	}
	return f
}

func (f *Appointments) Get(id string) (model.Appointment, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	return a, ok
}

func (f *Appointments) Count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c == op || strings.HasPrefix(c, op+" ") {
			n++
		}
	}
	return n
}

func (f *Appointments) enter(op, id string) error {
	f.mu.Lock()
	f.Calls = append(f.Calls, strings.TrimSpace(op+" "+id))
	block := f.Block[op]
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Fail[op]
}

// List reads the appointments before waiting on Block, so a blocked list returns what the store
// held when it was called.
func (f *Appointments) List(_ context.Context) ([]model.Appointment, error) {
	f.mu.Lock()
	out := make([]model.Appointment, 0, len(f.byID))
	for _, a := range f.byID {
		out = append(out, a)
	}
	f.mu.Unlock()
	if err := f.enter("list", ""); err != nil {
		return nil, err
	}
	return out, nil
}

func (f *Appointments) Create(_ context.Context, appt model.Appointment) (model.Appointment, error) {
	if err := f.enter("create", ""); err != nil {
		return model.Appointment{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	appt.AppointmentID = fmt.Sprintf("appt-new-%d", f.nextID)
	appt.Status = model.StatusPending
	f.byID[appt.AppointmentID] = appt
	return appt, nil
}

func (f *Appointments) Confirm(_ context.Context, id string) (model.Appointment, error) {
	return f.transition("confirm", id, model.StatusConfirmed, "")
}

func (f *Appointments) Cancel(_ context.Context, id, reason string) (model.Appointment, error) {
	return f.transition("cancel", id, model.StatusCancelled, reason)
}

func (f *Appointments) Complete(_ context.Context, id string) (model.Appointment, error) {
	return f.transition("complete", id, model.StatusCompleted, "")
}

func (f *Appointments) CreateRevisit(_ context.Context, originID string, req stores.RevisitRequest) (model.Appointment, error) {
	if err := f.enter("revisit", originID); err != nil {
		return model.Appointment{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[originID]; !ok {
		return model.Appointment{}, notFound("appointments.revisit")
	}
	f.nextID++
	age := req.Age
	appt := model.Appointment{
		AppointmentID:         fmt.Sprintf("appt-new-%d", f.nextID),
		OriginalAppointmentID: req.OriginalAppointmentID,
		PatientID:             req.PatientID,
		PatientName:           req.PatientName,
		PatientEmail:          req.PatientEmail,
		PatientPhone:          req.PatientPhone,
		Age:                   &age,
		Gender:                req.Gender,
		DoctorID:              req.DoctorID,
		DoctorName:            req.DoctorName,
		DepartmentName:        req.DepartmentName,
		Reason:                req.Reason,
		Status:                req.Status,
	}
	f.byID[appt.AppointmentID] = appt
	return appt, nil
}

func (f *Appointments) transition(op, id string, to model.Status, reason string) (model.Appointment, error) {
	if err := f.enter(op, id); err != nil {
		return model.Appointment{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return model.Appointment{}, notFound("appointments." + op)
	}
	a.Status = to
	if reason != "" {
		a.CancellationReason = reason
	}
	f.byID[id] = a
	return a, nil
}

// Prescriptions is a fake PrescriptionStore keyed by appointment id.
type Prescriptions struct {
	mu     sync.Mutex
	byAppt map[string]model.Prescription
	nextID int
	Calls  []string
	Fail   map[string]error
	// Hook, when set, runs after an op ("create", "get", "update") is recorded and before it
	// proceeds.
	Hook func(op string)
}

func NewPrescriptions(existing ...model.Prescription) *Prescriptions {
	f := &Prescriptions{byAppt: make(map[string]model.Prescription), Fail: make(map[string]error)}
	for _, p := range existing {
		f.byAppt[p.AppointmentID] = p
	}
	return f
}

func (f *Prescriptions) record(op string) error {
	f.mu.Lock()
	f.Calls = append(f.Calls, op)
	hook := f.Hook
	err := f.Fail[op]
	f.mu.Unlock()
	if hook != nil {
		hook(op)
	}
	return err
}

func (f *Prescriptions) Create(_ context.Context, draft model.Prescription) (model.Prescription, error) {
	if err := f.record("create"); err != nil {
		return model.Prescription{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	draft.PrescriptionID = fmt.Sprintf("rx-%d", f.nextID)
	if draft.Status == "" {
		draft.Status = model.PrescriptionActive
	}
	f.byAppt[draft.AppointmentID] = draft
	return draft, nil
}

func (f *Prescriptions) GetByAppointment(_ context.Context, appointmentID string) (model.Prescription, error) {
	if err := f.record("get"); err != nil {
		return model.Prescription{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byAppt[appointmentID]
	if !ok {
		return model.Prescription{}, notFound("prescriptions.get_by_appointment")
	}
	return p, nil
}

func (f *Prescriptions) Update(_ context.Context, p model.Prescription) (model.Prescription, error) {
	if err := f.record("update"); err != nil {
		return model.Prescription{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.byAppt[p.AppointmentID]
	if !ok || cur.PrescriptionID != p.PrescriptionID {
		return model.Prescription{}, notFound("prescriptions.update")
	}
	f.byAppt[p.AppointmentID] = p
	return p, nil
}

// Catalog is a fake medicine catalog.
type Catalog struct {
	Items []model.CatalogItem
	Err   error
	Calls int
}

func (c *Catalog) ListItems(_ context.Context) ([]model.CatalogItem, error) {
	c.Calls++
	if c.Err != nil {
		return nil, c.Err
	}
	return append([]model.CatalogItem(nil), c.Items...), nil
}

func notFound(op string) error {
	return clinicerr.FromStatus(op, http.StatusNotFound, "not found")
}

// ServerError builds the classified error a store returns for a 500.
func ServerError(op string) error {
	return clinicerr.FromStatus(op, http.StatusInternalServerError, "boom")
}

var (
	_ stores.AppointmentStore  = (*Appointments)(nil)
	_ stores.PrescriptionStore = (*Prescriptions)(nil)
	_ stores.Catalog           = (*Catalog)(nil)
)
