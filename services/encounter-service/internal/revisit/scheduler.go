// Package revisit books a follow-up appointment derived from an existing one.
package revisit

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/clinicerr"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/metrics"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/model"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/notify"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/statemachine"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/stores"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

type Policy struct {
	// Location is the clinic's time zone; business hours and "in the past" are judged in it.
	Location *time.Location
	// OpenHour and CloseHour bound the bookable window; CloseHour itself is only bookable on
	// the hour.
	OpenHour  int
	CloseHour int
	// DefaultAge is sent when the origin has no age on file, unless RequireAge is set.
	DefaultAge int
	RequireAge bool
	Now        func() time.Time
}

func DefaultPolicy() Policy {
	return Policy{
		Location:   time.Local,
		OpenHour:   9,
		CloseHour:  17,
		DefaultAge: 25,
		Now:        time.Now,
	}
}

type Notification struct {
	Recipient  string `json:"recipient"`
	Dispatched bool   `json:"dispatched"`
}

type Result struct {
	Appointment  model.Appointment `json:"appointment"`
	Notification Notification      `json:"notification"`
}

type Scheduler struct {
	machine  *statemachine.Machine
	store    stores.AppointmentStore
	notifier notify.Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
	policy   Policy
}

func NewScheduler(machine *statemachine.Machine, store stores.AppointmentStore, notifier notify.Notifier, m *metrics.Metrics, logger *slog.Logger, policy Policy) *Scheduler {
	def := DefaultPolicy()
	if policy.Location == nil {
		policy.Location = def.Location
	}
	if policy.OpenHour == 0 && policy.CloseHour == 0 {
		policy.OpenHour, policy.CloseHour = def.OpenHour, def.CloseHour
	}
	if policy.DefaultAge <= 0 {
		policy.DefaultAge = def.DefaultAge
	}
	if policy.Now == nil {
		policy.Now = def.Now
	}
	if notifier == nil {
		notifier = notify.Nop
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{machine: machine, store: store, notifier: notifier, metrics: m, logger: logger, policy: policy}
}

// ScheduleRevisit creates a PENDING appointment for the origin's patient at newDate newTime.
// origin is not modified.
func (s *Scheduler) ScheduleRevisit(ctx context.Context, origin model.Appointment, newDate, newTime, reason string) (Result, error) {
	req, err := s.build(origin, newDate, newTime, reason)
	if err != nil {
		s.metrics.ObserveRevisit(err)
		return Result{}, err
	}

	release, err := s.machine.Guard().Acquire(ctx, origin.AppointmentID)
	if err != nil {
		return Result{}, err
	}
	defer release()

	created, err := s.store.CreateRevisit(context.WithoutCancel(ctx), origin.AppointmentID, req)
	s.metrics.ObserveRevisit(err)
	if err != nil {
		s.logger.Warn("revisit booking failed", "origin_id", origin.AppointmentID, "err", err)
		return Result{}, err
	}
	if created.OriginalAppointmentID == "" {
		created.OriginalAppointmentID = origin.AppointmentID
	}
	if created.Status == "" {
		created.Status = model.StatusPending
	}
	s.machine.Track(created)
	s.logger.Info("revisit booked",
		"origin_id", origin.AppointmentID, "appointment_id", created.AppointmentID, "at", req.AppointmentDateTime)

	res := Result{Appointment: created, Notification: Notification{Recipient: req.PatientEmail}}
	evt := notify.NewEvent(notify.KindInfo, notify.TypePatientNotification, created.AppointmentID,
		"Your follow-up visit is booked for "+req.AppointmentDate+" at "+req.AppointmentTime+".",
		map[string]string{
			"originalAppointmentId": origin.AppointmentID,
			"appointmentDate":       req.AppointmentDate,
			"appointmentTime":       req.AppointmentTime,
			"doctorName":            req.DoctorName,
		})
	evt.Recipient = req.PatientEmail
	if err := s.notifier.Notify(context.WithoutCancel(ctx), evt); err != nil {
		s.logger.Warn("revisit notification not dispatched", "appointment_id", created.AppointmentID, "err", err)
	} else {
		res.Notification.Dispatched = true
	}
	return res, nil
}

// build validates the request in order: presence and format, business hours, not in the past,
// then the patient identity on file.
func (s *Scheduler) build(origin model.Appointment, newDate, newTime, reason string) (stores.RevisitRequest, error) {
	newDate, newTime, reason = strings.TrimSpace(newDate), strings.TrimSpace(newTime), strings.TrimSpace(reason)
	switch {
	case newDate == "":
		return stores.RevisitRequest{}, clinicerr.Required("date")
	case newTime == "":
		return stores.RevisitRequest{}, clinicerr.Required("time")
	case reason == "":
		return stores.RevisitRequest{}, clinicerr.Required("reason")
	}
	day, err := time.ParseInLocation(DateLayout, newDate, s.policy.Location)
	if err != nil {
		return stores.RevisitRequest{}, clinicerr.Validationf("date", "date must look like 2006-01-02 (got %q)", newDate)
	}
	clock, err := time.Parse(TimeLayout, newTime)
	if err != nil {
		return stores.RevisitRequest{}, clinicerr.Validationf("time", "time must look like 15:04 (got %q)", newTime)
	}

	if err := s.checkHours(clock.Hour(), clock.Minute()); err != nil {
		return stores.RevisitRequest{}, err
	}
	at := time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, s.policy.Location)
	if at.Before(s.policy.Now()) {
		return stores.RevisitRequest{}, clinicerr.Validationf("date", "revisit cannot be scheduled in the past")
	}

	if strings.TrimSpace(origin.AppointmentID) == "" {
		return stores.RevisitRequest{}, clinicerr.Required("originalAppointmentId")
	}
	if strings.TrimSpace(origin.PatientName) == "" {
		return stores.RevisitRequest{}, clinicerr.MissingIdentity("patientName")
	}
	if strings.TrimSpace(origin.PatientEmail) == "" {
		return stores.RevisitRequest{}, clinicerr.MissingIdentity("patientEmail")
	}
	age := s.policy.DefaultAge
	switch {
	case origin.Age != nil:
		age = *origin.Age
	case s.policy.RequireAge:
		return stores.RevisitRequest{}, clinicerr.MissingIdentity("age")
	}

	return stores.RevisitRequest{
		OriginalAppointmentID: origin.AppointmentID,
		AppointmentDate:       at.Format(DateLayout),
		AppointmentTime:       at.Format(TimeLayout),
		AppointmentDateTime:   at.Format(time.RFC3339),
		Reason:                reason,
		PatientID:             origin.PatientID,
		PatientName:           origin.PatientName,
		PatientEmail:          origin.PatientEmail,
		PatientPhone:          origin.PatientPhone,
		Age:                   age,
		Gender:                origin.Gender,
		DoctorID:              origin.DoctorID,
		DoctorName:            origin.DoctorName,
		DepartmentName:        origin.DepartmentName,
		Status:                model.StatusPending,
	}, nil
}

func (s *Scheduler) checkHours(hour, minute int) error {
	opening, closing := s.policy.OpenHour, s.policy.CloseHour
	if hour < opening || hour > closing || (hour == closing && minute > 0) {
		return clinicerr.Validationf("time", "revisits can be booked between %02d:00 and %02d:00", opening, closing)
	}
	return nil
}
