// Package stores holds typed clients for the three systems of record the orchestration core
// talks to: appointments, prescriptions and the medicine catalog.
package stores

import (
	"context"

	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/model"
)

type AppointmentStore interface {
	List(ctx context.Context) ([]model.Appointment, error)
	Create(ctx context.Context, appt model.Appointment) (model.Appointment, error)
	Confirm(ctx context.Context, id string) (model.Appointment, error)
	Cancel(ctx context.Context, id, reason string) (model.Appointment, error)
	Complete(ctx context.Context, id string) (model.Appointment, error)
	CreateRevisit(ctx context.Context, originID string, req RevisitRequest) (model.Appointment, error)
}

type PrescriptionStore interface {
	Create(ctx context.Context, draft model.Prescription) (model.Prescription, error)
	GetByAppointment(ctx context.Context, appointmentID string) (model.Prescription, error)
	Update(ctx context.Context, p model.Prescription) (model.Prescription, error)
}

type Catalog interface {
	ListItems(ctx context.Context) ([]model.CatalogItem, error)
}

// RevisitRequest is the body of POST /appointments/revisit/{id}: the new slot plus the
// identity fields carried over from the origin appointment.
type RevisitRequest struct {
	OriginalAppointmentID string       `json:"originalAppointmentId"`
	AppointmentDate       string       `json:"appointmentDate"`
	AppointmentTime       string       `json:"appointmentTime"`
	AppointmentDateTime   string       `json:"appointmentDateTime"`
	Reason                string       `json:"reason"`
	PatientID             string       `json:"patientId,omitempty"`
	PatientName           string       `json:"patientName"`
	PatientEmail          string       `json:"patientEmail"`
	PatientPhone          string       `json:"patientPhone,omitempty"`
	Age                   int          `json:"age"`
	Gender                string       `json:"gender,omitempty"`
	DoctorID              string       `json:"doctorId,omitempty"`
	DoctorName            string       `json:"doctorName,omitempty"`
	DepartmentName        string       `json:"departmentName,omitempty"`
	Status                model.Status `json:"status"`
}
