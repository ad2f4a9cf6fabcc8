package encounter

import (
	"context"
	"testing"

	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/clinicerr"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/inflight"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/model"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/notify"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/statemachine"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/stores/storestest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	saga          *Saga
	machine       *statemachine.Machine
	appointments  *storestest.Appointments
	prescriptions *storestest.Prescriptions
	guard         *inflight.MemoryGuard
	events        *notify.Recorder
}

func newFixture(t *testing.T, appts ...model.Appointment) *fixture {
	t.Helper()
	f := &fixture{
		appointments:  storestest.NewAppointments(appts...),
		prescriptions: storestest.NewPrescriptions(),
		guard:         inflight.NewMemoryGuard(),
		events:        &notify.Recorder{},
	}
	f.machine = statemachine.New(f.appointments, f.guard, nil, nil)
	_, err := f.machine.Refresh(context.Background())
	require.NoError(t, err)
	f.saga = NewSaga(f.machine, f.prescriptions, f.events, nil, nil)
	return f
}

func confirmed(id string) model.Appointment {
	return model.Appointment{AppointmentID: id, PatientID: "p1", PatientName: "Jane Doe", PatientEmail: "jane@example.com", Status: model.StatusConfirmed}
}

func draft() model.Prescription {
	return model.Prescription{
		DoctorID:    "d1",
		PatientID:   "p1",
		PatientName: "Jane Doe",
		Medicines:   []model.MedicineLine{{Name: "Paracetamol", Batch: "B001", Dosage: "500mg", Quantity: 10}},
	}
}

func TestCompleteEncounterFullSuccess(t *testing.T) {
	f := newFixture(t, confirmed("a1"))

	res, err := f.saga.CompleteEncounter(context.Background(), "a1", draft())
	require.NoError(t, err)
	assert.Equal(t, FullSuccess, res.Outcome)
	assert.Equal(t, model.StatusCompleted, res.Appointment.Status)
	assert.NotEmpty(t, res.Prescription.PrescriptionID)
	assert.Equal(t, "a1", res.Prescription.AppointmentID)
	assert.Equal(t, model.PrescriptionActive, res.Prescription.Status)
	assert.Equal(t, []string{"create"}, f.prescriptions.Calls)
	assert.False(t, f.guard.Held("a1"))

	stored, ok := f.appointments.Get("a1")
	require.True(t, ok)
	assert.Equal(t, model.StatusCompleted, stored.Status)
	require.Len(t, f.events.Events(), 1)
	assert.Equal(t, notify.KindSuccess, f.events.Events()[0].Kind)
}

func TestCompleteEncounterPartialWhenAppointmentMissing(t *testing.T) {
	// The snapshot has never seen a9 and the appointment store answers 404.
	f := newFixture(t)

	res, err := f.saga.CompleteEncounter(context.Background(), "a9", draft())
	require.NoError(t, err)
	assert.Equal(t, PartialSuccess, res.Outcome)
	assert.Equal(t, WarningNeedsRefresh, res.Warning)
	assert.ErrorIs(t, res.Cause, clinicerr.ErrNotFound)
	assert.Empty(t, res.Appointment.AppointmentID)

	saved, err := f.prescriptions.GetByAppointment(context.Background(), "a9")
	require.NoError(t, err, "the prescription must remain queryable")
	assert.Equal(t, res.Prescription.PrescriptionID, saved.PrescriptionID)

	partial := f.events.OfType(notify.TypeCompletionPartial)
	require.Len(t, partial, 1)
	assert.Equal(t, notify.KindWarning, partial[0].Kind)
}

func TestCompleteEncounterPartialOnServerError(t *testing.T) {
	f := newFixture(t, confirmed("a1"))
	f.appointments.Fail["complete"] = storestest.ServerError("appointments.complete")

	res, err := f.saga.CompleteEncounter(context.Background(), "a1", draft())
	require.NoError(t, err)
	assert.Equal(t, PartialSuccess, res.Outcome)
	assert.Equal(t, WarningNotCompleted, res.Warning)
	assert.ErrorIs(t, res.Cause, clinicerr.ErrServer)
	assert.NotContains(t, f.prescriptions.Calls, "update", "nothing is rolled back")
}

func TestCompleteEncounterNeverCompletesWithoutPrescription(t *testing.T) {
	f := newFixture(t, confirmed("a1"))
	f.prescriptions.Fail["create"] = storestest.ServerError("prescriptions.create")

	res, err := f.saga.CompleteEncounter(context.Background(), "a1", draft())
	assert.ErrorIs(t, err, clinicerr.ErrServer)
	assert.Equal(t, PrescriptionWriteFailed, res.Outcome)
	assert.Zero(t, f.appointments.Count("complete"))

	stored, _ := f.appointments.Get("a1")
	assert.Equal(t, model.StatusConfirmed, stored.Status)
	assert.Equal(t, notify.KindError, f.events.Events()[0].Kind)
}

func TestCompleteEncounterUnconfirmedWriteWarns(t *testing.T) {
	f := newFixture(t, confirmed("a1"))
	f.prescriptions.Fail["create"] = &clinicerr.Error{
		Kind: clinicerr.KindServer,
		Op:   "prescriptions.create",
		Err:  clinicerr.ErrWriteUnconfirmed,
	}

	res, err := f.saga.CompleteEncounter(context.Background(), "a1", draft())
	assert.ErrorIs(t, err, clinicerr.ErrWriteUnconfirmed)
	assert.Equal(t, PrescriptionWriteFailed, res.Outcome)
	assert.Equal(t, WarningUnconfirmed, res.Warning)
	assert.Zero(t, f.appointments.Count("complete"))
	require.Len(t, f.events.Events(), 1)
	assert.Equal(t, WarningUnconfirmed, f.events.Events()[0].Message)
}

func TestCompleteEncounterPreconditions(t *testing.T) {
	f := newFixture(t, confirmed("a1"), model.Appointment{AppointmentID: "p", Status: model.StatusPending})

	empty := draft()
	empty.Medicines = nil
	_, err := f.saga.CompleteEncounter(context.Background(), "a1", empty)
	assert.ErrorIs(t, err, clinicerr.ErrValidation)

	noDoctor := draft()
	noDoctor.DoctorID = ""
	_, err = f.saga.CompleteEncounter(context.Background(), "a1", noDoctor)
	var ce *clinicerr.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "doctorId", ce.Field)

	foreign := draft()
	foreign.AppointmentID = "a2"
	_, err = f.saga.CompleteEncounter(context.Background(), "a1", foreign)
	assert.ErrorIs(t, err, clinicerr.ErrValidation)

	_, err = f.saga.CompleteEncounter(context.Background(), "p", draft())
	assert.ErrorIs(t, err, clinicerr.ErrInvalidTransition)

	assert.Empty(t, f.prescriptions.Calls, "preconditions never reach the network")
}

func TestCompleteEncounterRejectsDoubleSubmission(t *testing.T) {
	f := newFixture(t, confirmed("a1"))
	release, err := f.guard.Acquire(context.Background(), "a1")
	require.NoError(t, err)
	defer release()

	_, err = f.saga.CompleteEncounter(context.Background(), "a1", draft())
	assert.ErrorIs(t, err, clinicerr.ErrInProgress)
	assert.Empty(t, f.prescriptions.Calls)
}

func TestNotifierFailureDoesNotChangeOutcome(t *testing.T) {
	f := newFixture(t, confirmed("a1"))
	f.events.Err = storestest.ServerError("notify")

	res, err := f.saga.CompleteEncounter(context.Background(), "a1", draft())
	require.NoError(t, err)
	assert.Equal(t, FullSuccess, res.Outcome)
}
