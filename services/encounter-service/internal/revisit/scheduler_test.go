package revisit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/clinicerr"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/inflight"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/model"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/notify"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/statemachine"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/stores/storestest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var dhaka = time.FixedZone("Asia/Dhaka", 6*60*60)

// now is 2030-03-10 10:30 clinic time.
func now() time.Time { return time.Date(2030, 3, 10, 10, 30, 0, 0, dhaka) }

func intPtr(n int) *int { return &n }

func origin() model.Appointment {
	return model.Appointment{
		AppointmentID:  "a1",
		PatientID:      "p1",
		PatientName:    "Jane Doe",
		PatientEmail:   "jane@example.com",
		PatientPhone:   "+8801700000000",
		Age:            intPtr(41),
		Gender:         "female",
		DoctorID:       "d1",
		DoctorName:     "Dr. Rahman",
		DepartmentName: "Cardiology",
		Status:         model.StatusCompleted,
	}
}

type fixture struct {
	scheduler *Scheduler
	store     *storestest.Appointments
	machine   *statemachine.Machine
	events    *notify.Recorder
}

func newFixture(t *testing.T, policy Policy) *fixture {
	t.Helper()
	f := &fixture{store: storestest.NewAppointments(origin()), events: &notify.Recorder{}}
	f.machine = statemachine.New(f.store, inflight.NewMemoryGuard(), nil, nil)
	policy.Location = dhaka
	policy.Now = now
	f.scheduler = NewScheduler(f.machine, f.store, f.events, nil, nil, policy)
	return f
}

func TestScheduleRevisitCopiesIdentity(t *testing.T) {
	f := newFixture(t, Policy{})
	o := origin()

	res, err := f.scheduler.ScheduleRevisit(context.Background(), o, "2030-03-12", "17:00", " follow-up ")
	require.NoError(t, err)

	got := res.Appointment
	assert.Equal(t, "a1", got.OriginalAppointmentID)
	assert.Equal(t, model.StatusPending, got.Status)
	assert.Equal(t, "Jane Doe", got.PatientName)
	assert.Equal(t, "jane@example.com", got.PatientEmail)
	require.NotNil(t, got.Age)
	assert.Equal(t, 41, *got.Age)
	assert.Equal(t, "follow-up", got.Reason)
	assert.Equal(t, origin(), o, "origin must not be mutated")

	assert.Equal(t, Notification{Recipient: "jane@example.com", Dispatched: true}, res.Notification)
	sent := f.events.OfType(notify.TypePatientNotification)
	require.Len(t, sent, 1)
	assert.Equal(t, "jane@example.com", sent[0].Recipient)

	tracked, err := f.machine.Lookup(context.Background(), got.AppointmentID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, tracked.Status)
}

func TestScheduleRevisitBusinessHours(t *testing.T) {
	cases := []struct {
		clock string
		ok    bool
	}{
		{"09:00", true},
		{"17:00", true},
		{"17:01", false},
		{"08:59", false},
		{"18:00", false},
		{"12:45", true},
	}
	for _, tc := range cases {
		t.Run(tc.clock, func(t *testing.T) {
			f := newFixture(t, Policy{})
			_, err := f.scheduler.ScheduleRevisit(context.Background(), origin(), "2030-03-12", tc.clock, "check")
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, clinicerr.ErrValidation)
			assert.Zero(t, f.store.Count("revisit"))
		})
	}
}

func TestScheduleRevisitRejectsPast(t *testing.T) {
	f := newFixture(t, Policy{})

	_, err := f.scheduler.ScheduleRevisit(context.Background(), origin(), "2030-03-09", "16:00", "check")
	assert.ErrorIs(t, err, clinicerr.ErrValidation)

	_, err = f.scheduler.ScheduleRevisit(context.Background(), origin(), "2030-03-10", "10:00", "check")
	assert.ErrorIs(t, err, clinicerr.ErrValidation, "earlier today is in the past")

	_, err = f.scheduler.ScheduleRevisit(context.Background(), origin(), "2030-03-10", "11:00", "check")
	assert.NoError(t, err)
}

func TestScheduleRevisitInputValidation(t *testing.T) {
	f := newFixture(t, Policy{})
	ctx := context.Background()

	for _, in := range [][3]string{
		{"", "10:00", "check"},
		{"2030-03-12", "", "check"},
		{"2030-03-12", "10:00", "   "},
		{"12/03/2030", "10:00", "check"},
		{"2030-03-12", "10am", "check"},
	} {
		_, err := f.scheduler.ScheduleRevisit(ctx, origin(), in[0], in[1], in[2])
		assert.ErrorIs(t, err, clinicerr.ErrValidation, "%v", in)
	}
	assert.Zero(t, f.store.Count("revisit"))
}

func TestScheduleRevisitMissingEmailNeverPosts(t *testing.T) {
	f := newFixture(t, Policy{})
	o := origin()
	o.PatientEmail = ""

	_, err := f.scheduler.ScheduleRevisit(context.Background(), o, "2030-03-12", "10:00", "check")
	assert.ErrorIs(t, err, clinicerr.ErrMissingPatientIdentity)
	assert.Zero(t, f.store.Count("revisit"))
}

func TestScheduleRevisitAgeFallback(t *testing.T) {
	o := origin()
	o.Age = nil

	f := newFixture(t, Policy{})
	res, err := f.scheduler.ScheduleRevisit(context.Background(), o, "2030-03-12", "10:00", "check")
	require.NoError(t, err)
	require.NotNil(t, res.Appointment.Age)
	assert.Equal(t, 25, *res.Appointment.Age)

	strict := newFixture(t, Policy{RequireAge: true})
	_, err = strict.scheduler.ScheduleRevisit(context.Background(), o, "2030-03-12", "10:00", "check")
	assert.ErrorIs(t, err, clinicerr.ErrMissingPatientIdentity)
}

func TestScheduleRevisitNotificationFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, Policy{})
	f.events.Err = errors.New("mailer down")

	res, err := f.scheduler.ScheduleRevisit(context.Background(), origin(), "2030-03-12", "10:00", "check")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Appointment.AppointmentID)
	assert.False(t, res.Notification.Dispatched)
}

func TestScheduleRevisitStoreFailure(t *testing.T) {
	f := newFixture(t, Policy{})
	f.store.Fail["revisit"] = storestest.ServerError("appointments.revisit")

	_, err := f.scheduler.ScheduleRevisit(context.Background(), origin(), "2030-03-12", "10:00", "check")
	assert.ErrorIs(t, err, clinicerr.ErrServer)
	assert.Empty(t, f.events.Events())
}
