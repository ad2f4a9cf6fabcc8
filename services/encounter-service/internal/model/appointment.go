package model

import "time"

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

type Appointment struct {
	AppointmentID         string    `json:"appointmentId"`
	OriginalAppointmentID string    `json:"originalAppointmentId,omitempty"`
	PatientID             string    `json:"patientId,omitempty"`
	PatientName           string    `json:"patientName"`
	PatientEmail          string    `json:"patientEmail"`
	PatientPhone          string    `json:"patientPhone,omitempty"`
	Age                   *int      `json:"age,omitempty"`
	Gender                string    `json:"gender,omitempty"`
	DoctorID              string    `json:"doctorId,omitempty"`
	DoctorName            string    `json:"doctorName,omitempty"`
	DepartmentName        string    `json:"departmentName,omitempty"`
	AppointmentDateTime   time.Time `json:"appointmentDateTime"`
	Reason                string    `json:"reason,omitempty"`
	Symptoms              string    `json:"symptoms,omitempty"`
	Status                Status    `json:"status"`
	CancellationReason    string    `json:"cancellationReason,omitempty"`
}

// IsRevisit reports whether the appointment follows up an earlier one.
func (a Appointment) IsRevisit() bool {
	return a.OriginalAppointmentID != ""
}
