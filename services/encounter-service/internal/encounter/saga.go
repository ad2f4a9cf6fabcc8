// Package encounter closes a consultation: it issues the prescription and then completes the
// appointment. The prescription write is the point of no return; a later failure is reported as
// a partial success and never rolled back.
package encounter

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	otelx "github.com/md-rashed-zaman/clinicflow/libs/otel"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/clinicerr"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/composer"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/metrics"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/model"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/notify"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/statemachine"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/stores"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Outcome string

const (
	FullSuccess             Outcome = "full_success"
	PartialSuccess          Outcome = "partial_success"
	PrescriptionWriteFailed Outcome = "prescription_write_failed"
)

const (
	WarningNeedsRefresh = "Prescription saved, but the appointment status needs a manual refresh."
	WarningNotCompleted = "Prescription saved, but the appointment could not be marked completed."
	WarningUnconfirmed  = "The prescription store did not confirm the write. Check the appointment's prescription before retrying."
)

// Result describes how far the saga got. Appointment is only set on FullSuccess.
type Result struct {
	Outcome      Outcome            `json:"outcome"`
	Prescription model.Prescription `json:"prescription"`
	Appointment  model.Appointment  `json:"appointment"`
	Warning      string             `json:"warning,omitempty"`
	Cause        error              `json:"-"`
}

type Saga struct {
	machine       *statemachine.Machine
	prescriptions stores.PrescriptionStore
	notifier      notify.Notifier
	metrics       *metrics.Metrics
	logger        *slog.Logger
	tracer        trace.Tracer
}

func NewSaga(machine *statemachine.Machine, prescriptions stores.PrescriptionStore, notifier notify.Notifier, m *metrics.Metrics, logger *slog.Logger) *Saga {
	if notifier == nil {
		notifier = notify.Nop
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Saga{
		machine:       machine,
		prescriptions: prescriptions,
		notifier:      notifier,
		metrics:       m,
		logger:        logger,
		tracer:        otelx.Tracer("clinicflow/encounter"),
	}
}

// CompleteEncounter issues draft for appointmentID and completes the appointment.
//
// A non-nil error with a zero Result means a local precondition failed and nothing was
// written. A PrescriptionWriteFailed result also returns the classified error. PartialSuccess
// returns a nil error: the prescription exists and the caller must surface Warning.
func (s *Saga) CompleteEncounter(ctx context.Context, appointmentID string, draft model.Prescription) (Result, error) {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, "encounter.complete", trace.WithAttributes(
		attribute.String("appointment.id", appointmentID),
	))
	defer span.End()

	if err := s.precheck(appointmentID, &draft); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}

	release, err := s.machine.Guard().Acquire(ctx, appointmentID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	defer release()

	issued, err := s.prescriptions.Create(context.WithoutCancel(ctx), draft)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "prescription write failed")
		res := Result{Outcome: PrescriptionWriteFailed, Cause: err}
		msg := "The prescription could not be saved. Nothing was changed."
		if errors.Is(err, clinicerr.ErrWriteUnconfirmed) {
			res.Warning = WarningUnconfirmed
			msg = WarningUnconfirmed
			s.logger.Warn("prescription write state unknown", "appointment_id", appointmentID, "err", err)
		} else {
			s.logger.Error("prescription write failed", "appointment_id", appointmentID, "err", err)
		}
		s.emit(ctx, notify.NewEvent(notify.KindError, "encounter.prescription.failed", appointmentID, msg, nil))
		s.metrics.ObserveCompletion(string(PrescriptionWriteFailed), started)
		return res, err
	}
	if issued.AppointmentID == "" {
		issued.AppointmentID = appointmentID
	}
	span.SetAttributes(attribute.String("prescription.id", issued.PrescriptionID))

	appt, err := s.machine.MarkCompleted(ctx, appointmentID, issued)
	if err != nil {
		res := Result{
			Outcome:      PartialSuccess,
			Prescription: issued,
			Warning:      WarningNotCompleted,
			Cause:        err,
		}
		if errors.Is(err, clinicerr.ErrNotFound) {
			res.Warning = WarningNeedsRefresh
		}
		span.RecordError(err)
		s.logger.Warn("encounter partially completed",
			"appointment_id", appointmentID, "prescription_id", issued.PrescriptionID, "err", err)
		s.emit(ctx, notify.NewEvent(notify.KindWarning, notify.TypeCompletionPartial, appointmentID, res.Warning, map[string]string{
			"prescriptionId": issued.PrescriptionID,
			"cause":          string(clinicerr.KindOf(err)),
		}))
		s.metrics.ObserveCompletion(string(PartialSuccess), started)
		return res, nil
	}

	s.logger.Info("encounter completed", "appointment_id", appointmentID, "prescription_id", issued.PrescriptionID)
	s.emit(ctx, notify.NewEvent(notify.KindSuccess, "encounter.completed", appointmentID,
		"Prescription saved and appointment completed.", nil))
	s.metrics.ObserveCompletion(string(FullSuccess), started)
	return Result{Outcome: FullSuccess, Prescription: issued, Appointment: appt}, nil
}

// precheck runs every local precondition; none of them touch the network.
func (s *Saga) precheck(appointmentID string, draft *model.Prescription) error {
	if strings.TrimSpace(appointmentID) == "" {
		return clinicerr.Required("appointmentId")
	}
	for _, f := range []struct{ name, value string }{
		{"doctorId", draft.DoctorID},
		{"patientId", draft.PatientID},
		{"patientName", draft.PatientName},
	} {
		if strings.TrimSpace(f.value) == "" {
			return clinicerr.Required(f.name)
		}
	}
	switch draft.AppointmentID {
	case "":
		draft.AppointmentID = appointmentID
	case appointmentID:
	default:
		return clinicerr.Validationf("appointmentId", "prescription belongs to appointment %s", draft.AppointmentID)
	}
	if !draft.HasContent() {
		return composer.EmptyPrescription()
	}
	if draft.Status == "" {
		draft.Status = model.PrescriptionActive
	}
	return s.machine.CheckCompletable(appointmentID)
}

func (s *Saga) emit(ctx context.Context, evt notify.Event) {
	if err := s.notifier.Notify(context.WithoutCancel(ctx), evt); err != nil {
		s.logger.Warn("notification failed", "type", evt.Type, "appointment_id", evt.AppointmentID, "err", err)
	}
}
