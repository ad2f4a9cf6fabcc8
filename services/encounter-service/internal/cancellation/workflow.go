// Package cancellation cancels appointments and enforces what a cancelled appointment's
// prescription may still be used for.
package cancellation

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/clinicerr"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/composer"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/model"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/notify"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/statemachine"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/stores"
)

type Policy struct {
	MaxReasonLength int
	// HideCancelledPrescriptions blocks viewing and editing the prescription of a cancelled
	// appointment.
	HideCancelledPrescriptions bool
}

func DefaultPolicy() Policy {
	return Policy{MaxReasonLength: 200, HideCancelledPrescriptions: true}
}

type Workflow struct {
	machine       *statemachine.Machine
	prescriptions stores.PrescriptionStore
	notifier      notify.Notifier
	logger        *slog.Logger
	policy        Policy
}

func NewWorkflow(machine *statemachine.Machine, prescriptions stores.PrescriptionStore, notifier notify.Notifier, logger *slog.Logger, policy Policy) *Workflow {
	if policy.MaxReasonLength <= 0 {
		policy.MaxReasonLength = DefaultPolicy().MaxReasonLength
	}
	if notifier == nil {
		notifier = notify.Nop
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Workflow{machine: machine, prescriptions: prescriptions, notifier: notifier, logger: logger, policy: policy}
}

func (w *Workflow) Cancel(ctx context.Context, appointmentID, reason string) (model.Appointment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return model.Appointment{}, clinicerr.Required("reason")
	}
	if n := utf8.RuneCountInString(reason); n > w.policy.MaxReasonLength {
		return model.Appointment{}, clinicerr.Validationf("reason",
			"reason is %d characters long; at most %d are allowed", n, w.policy.MaxReasonLength)
	}

	appt, err := w.machine.Cancel(ctx, appointmentID, reason)
	if err != nil {
		return model.Appointment{}, err
	}

	evt := notify.NewEvent(notify.KindInfo, notify.TypePatientNotification, appt.AppointmentID,
		"Your appointment was cancelled: "+reason, map[string]string{"cancellationReason": reason})
	evt.Recipient = appt.PatientEmail
	if err := w.notifier.Notify(context.WithoutCancel(ctx), evt); err != nil {
		w.logger.Warn("cancellation notification failed", "appointment_id", appt.AppointmentID, "err", err)
	}
	return appt, nil
}

// gate fails with appointment_cancelled before any prescription-store call when the policy hides
// cancelled appointments' prescriptions. The status is read from the store, not the snapshot.
func (w *Workflow) gate(ctx context.Context, appointmentID string) error {
	if !w.policy.HideCancelledPrescriptions {
		return nil
	}
	appt, err := w.machine.Current(ctx, appointmentID)
	if err != nil {
		return err
	}
	if appt.Status == model.StatusCancelled {
		return clinicerr.Cancelled(appointmentID)
	}
	return nil
}

func (w *Workflow) ViewPrescription(ctx context.Context, appointmentID string) (model.Prescription, error) {
	if err := w.gate(ctx, appointmentID); err != nil {
		return model.Prescription{}, err
	}
	return w.prescriptions.GetByAppointment(ctx, appointmentID)
}

// UpdatePrescription replaces the lines of the appointment's prescription. The stored
// prescription id and appointment id are kept whatever p carries.
func (w *Workflow) UpdatePrescription(ctx context.Context, appointmentID string, p model.Prescription) (model.Prescription, error) {
	if err := w.gate(ctx, appointmentID); err != nil {
		return model.Prescription{}, err
	}
	if !p.HasContent() {
		return model.Prescription{}, composer.EmptyPrescription()
	}

	release, err := w.machine.Guard().Acquire(ctx, appointmentID)
	if err != nil {
		return model.Prescription{}, err
	}
	defer release()

	current, err := w.prescriptions.GetByAppointment(ctx, appointmentID)
	if err != nil {
		return model.Prescription{}, err
	}
	// Re-check under the guard: the appointment may have been cancelled since the first gate.
	if err := w.gate(ctx, appointmentID); err != nil {
		return model.Prescription{}, err
	}
	p.PrescriptionID = current.PrescriptionID
	p.AppointmentID = current.AppointmentID
	if p.AppointmentID == "" {
		p.AppointmentID = appointmentID
	}
	if p.DoctorID == "" {
		p.DoctorID = current.DoctorID
	}
	if p.PatientID == "" {
		p.PatientID = current.PatientID
	}
	if p.PatientName == "" {
		p.PatientName = current.PatientName
	}
	if p.Status == "" {
		p.Status = current.Status
	}

	updated, err := w.prescriptions.Update(context.WithoutCancel(ctx), p)
	if err != nil {
		w.logger.Warn("prescription update failed", "appointment_id", appointmentID, "err", err)
		return model.Prescription{}, err
	}
	w.logger.Info("prescription updated", "appointment_id", appointmentID, "prescription_id", updated.PrescriptionID)
	return updated, nil
}
