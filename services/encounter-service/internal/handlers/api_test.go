package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/cancellation"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/clinicerr"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/composer"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/encounter"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/inflight"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/model"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/notify"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/revisit"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/statemachine"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/stores/storestest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	mux           *http.ServeMux
	appointments  *storestest.Appointments
	prescriptions *storestest.Prescriptions
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &harness{
		appointments: storestest.NewAppointments(
			model.Appointment{AppointmentID: "a1", PatientID: "p1", PatientName: "Jane Doe", PatientEmail: "jane@example.com", DoctorID: "d1", Status: model.StatusConfirmed},
			model.Appointment{AppointmentID: "a2", PatientName: "John Roe", Status: model.StatusPending},
			model.Appointment{AppointmentID: "a3", PatientName: "Ann Poe", Status: model.StatusCancelled},
		),
		prescriptions: storestest.NewPrescriptions(
			model.Prescription{PrescriptionID: "rx-3", AppointmentID: "a3", DietPlan: "Rest"},
		),
	}
	catalog := &storestest.Catalog{Items: []model.CatalogItem{
		{Name: "Paracetamol", Batch: "B001", Dosage: "500mg"},
		{Name: "Insulin", Batch: "I100", Dosage: "10u"},
		{Name: "Bandage", Batch: "X001"},
	}}
	events := &notify.Recorder{}
	machine := statemachine.New(h.appointments, inflight.NewMemoryGuard(), nil, logger)
	policy := revisit.DefaultPolicy()
	policy.Now = func() time.Time { return time.Date(2030, 1, 1, 8, 0, 0, 0, time.UTC) }
	policy.Location = time.UTC

	api := NewEncounterHandler(Deps{
		Machine:       machine,
		Saga:          encounter.NewSaga(machine, h.prescriptions, events, nil, logger),
		Revisits:      revisit.NewScheduler(machine, h.appointments, events, nil, logger, policy),
		Cancellations: cancellation.NewWorkflow(machine, h.prescriptions, events, logger, cancellation.DefaultPolicy()),
		Composer:      composer.New(catalog),
		Logger:        logger,
	})
	h.mux = http.NewServeMux()
	api.Register(h.mux)
	return h
}

func (h *harness) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestListFiltersByStatus(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/api/v1/appointments?status=pending", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[listResponse](t, rec)
	require.Len(t, body.Appointments, 1)
	assert.Equal(t, "a2", body.Appointments[0].AppointmentID)
}

func TestConfirmTwiceConflicts(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/v1/appointments/a2/confirm", "").Code)

	rec := h.do(t, http.MethodPost, "/api/v1/appointments/a2/confirm", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", decodeBody[errorResponse](t, rec).Kind)
}

func TestCancelEmptyReason(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/api/v1/appointments/a1/cancel", `{"reason":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "reason", decodeBody[errorResponse](t, rec).Field)

	rec = h.do(t, http.MethodPost, "/api/v1/appointments/a1/cancel", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompleteEncounterRoutes(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/api/v1/appointments/a1/complete", `{
		"medicines": [{"name": "paracetamol", "quantity": 10, "timing": ["Morning", "Night"]}],
		"injections": [{"name": "Insulin", "schedule": "daily"}],
		"recommendedTests": ["ECG", "ecg"]
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decodeBody[completeResponse](t, rec)
	assert.Equal(t, encounter.FullSuccess, body.Outcome)
	require.NotNil(t, body.Appointment)
	assert.Equal(t, model.StatusCompleted, body.Appointment.Status)
	assert.Equal(t, "d1", body.Prescription.DoctorID, "header falls back to the appointment on file")
	require.Len(t, body.Prescription.Medicines, 1)
	assert.Equal(t, 10, body.Prescription.Medicines[0].Quantity)
	assert.Equal(t, "500mg", body.Prescription.Medicines[0].Dosage)
	assert.Equal(t, []string{"ECG"}, body.Prescription.RecommendedTests)
}

func TestCompletePartialSuccessIsAccepted(t *testing.T) {
	h := newHarness(t)
	h.appointments.Fail["complete"] = storestest.ServerError("appointments.complete")

	rec := h.do(t, http.MethodPost, "/api/v1/appointments/a1/complete", `{"dietPlan": "Fluids"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	body := decodeBody[completeResponse](t, rec)
	assert.Equal(t, encounter.PartialSuccess, body.Outcome)
	assert.NotEmpty(t, body.Warning)
	assert.Nil(t, body.Appointment)
}

func TestCompleteRejectsUnknownOrEmpty(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/appointments/a1/complete", `{"medicines": [{"name": "Bandage"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/appointments/a1/complete", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "prescription", decodeBody[errorResponse](t, rec).Field)
	assert.Empty(t, h.prescriptions.Calls)
}

func TestCompletePrescriptionWriteFailure(t *testing.T) {
	h := newHarness(t)
	h.prescriptions.Fail["create"] = clinicerr.FromTransport("prescriptions.create", context.DeadlineExceeded)

	rec := h.do(t, http.MethodPost, "/api/v1/appointments/a1/complete", `{"dietPlan": "Fluids"}`)
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Empty(t, decodeBody[errorResponse](t, rec).Warning)

	h.prescriptions.Fail["create"] = &clinicerr.Error{Kind: clinicerr.KindServer, Op: "prescriptions.create", Err: clinicerr.ErrWriteUnconfirmed}
	rec = h.do(t, http.MethodPost, "/api/v1/appointments/a1/complete", `{"dietPlan": "Fluids"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, encounter.WarningUnconfirmed, decodeBody[errorResponse](t, rec).Warning)
}

func TestRevisitRoute(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/appointments/a1/revisit", `{"date":"2030-01-05","time":"17:00","reason":"review"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decodeBody[revisit.Result](t, rec)
	assert.Equal(t, "a1", res.Appointment.OriginalAppointmentID)
	assert.True(t, res.Notification.Dispatched)

	rec = h.do(t, http.MethodPost, "/api/v1/appointments/a1/revisit", `{"date":"2030-01-05","time":"17:01","reason":"review"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/appointments/a2/revisit", `{"date":"2030-01-05","time":"10:00","reason":"review"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "a2 has no email on file")

	rec = h.do(t, http.MethodPost, "/api/v1/appointments/missing/revisit", `{"date":"2030-01-05","time":"10:00","reason":"review"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPrescriptionOfCancelledAppointmentIsHidden(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/v1/appointments/a3/prescription", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "appointment_cancelled", decodeBody[errorResponse](t, rec).Kind)

	rec = h.do(t, http.MethodPut, "/api/v1/appointments/a3/prescription", `{"dietPlan":"More rest"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUpdatePrescriptionRoute(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, http.StatusCreated, h.do(t, http.MethodPost, "/api/v1/appointments/a1/complete", `{"dietPlan":"Fluids"}`).Code)

	rec := h.do(t, http.MethodPut, "/api/v1/appointments/a1/prescription", `{"dietPlan":"Fluids and rest","recommendedTests":["MRI"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	p := decodeBody[model.Prescription](t, rec)
	assert.Equal(t, "Fluids and rest", p.DietPlan)
	assert.Equal(t, "a1", p.AppointmentID)

	rec = h.do(t, http.MethodGet, "/api/v1/appointments/a1/prescription", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"MRI"}, decodeBody[model.Prescription](t, rec).RecommendedTests)
}

func TestEditPrescriptionStartsFromStoredLines(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/api/v1/appointments/a1/complete",
		`{"medicines":[{"name":"Paracetamol","timing":["Morning","Night"]}],"dietPlan":"Fluids","recommendedTests":["Blood Sugar"]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodPatch, "/api/v1/appointments/a1/prescription",
		`{"toggleTiming":[{"index":0,"slot":"morning"}],"addInjections":[{"name":"Insulin","schedule":"Weekly"}],"toggleTests":["blood sugar"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	p := decodeBody[model.Prescription](t, rec)
	require.Len(t, p.Medicines, 1)
	assert.Equal(t, []model.TimingSlot{model.TimingNight}, p.Medicines[0].Timing)
	require.Len(t, p.Injections, 1)
	assert.Equal(t, "Weekly", p.Injections[0].Schedule)
	assert.Empty(t, p.RecommendedTests)
	assert.Equal(t, "Fluids", p.DietPlan, "diet plan is kept when the edit leaves it out")
	assert.Equal(t, "d1", p.DoctorID)

	rec = h.do(t, http.MethodPatch, "/api/v1/appointments/a1/prescription", `{"remove":[{"kind":"medicine","index":3}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPatch, "/api/v1/appointments/a3/prescription", `{"dietPlan":"More rest"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCatalogRoute(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/api/v1/catalog", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[catalogResponse](t, rec)
	require.Len(t, body.Medicines, 1)
	require.Len(t, body.Injections, 1)
	assert.Equal(t, "Paracetamol", body.Medicines[0].Name)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusConflict, StatusFor(clinicerr.InProgress("a1")))
	assert.Equal(t, http.StatusBadGateway, StatusFor(storestest.ServerError("x")))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(io.EOF))
}
