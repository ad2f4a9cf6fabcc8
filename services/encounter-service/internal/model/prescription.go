package model

import (
	"strings"
)

type PrescriptionStatus string

const (
	PrescriptionActive    PrescriptionStatus = "active"
	PrescriptionCancelled PrescriptionStatus = "cancelled"
)

type TimingSlot string

const (
	TimingMorning   TimingSlot = "Morning"
	TimingAfternoon TimingSlot = "Afternoon"
	TimingNight     TimingSlot = "Night"
)

// ParseTimingSlot accepts any casing of the three slot names.
func ParseTimingSlot(raw string) (TimingSlot, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "morning":
		return TimingMorning, true
	case "afternoon":
		return TimingAfternoon, true
	case "night":
		return TimingNight, true
	}
	return "", false
}

type MedicineLine struct {
	Name         string       `json:"name"`
	Batch        string       `json:"batch"`
	Dosage       string       `json:"dosage"`
	Quantity     int          `json:"quantity"`
	DurationDays int          `json:"durationDays"`
	Timing       []TimingSlot `json:"timing"`
}

type InjectionLine struct {
	Name     string `json:"name"`
	Batch    string `json:"batch"`
	Dosage   string `json:"dosage"`
	Quantity int    `json:"quantity"`
	Schedule string `json:"schedule"`
	Notes    string `json:"notes"`
}

type Prescription struct {
	PrescriptionID   string             `json:"prescriptionId,omitempty"`
	AppointmentID    string             `json:"appointmentId"`
	DoctorID         string             `json:"doctorId"`
	PatientID        string             `json:"patientId"`
	PatientName      string             `json:"patientName"`
	Medicines        []MedicineLine     `json:"medicines"`
	Injections       []InjectionLine    `json:"injections"`
	DietPlan         string             `json:"dietPlan"`
	RecommendedTests []string           `json:"recommendedTests"`
	Status           PrescriptionStatus `json:"status,omitempty"`
}

// HasContent reports whether at least one of medicines, injections, diet plan or recommended
// tests is non-empty. A prescription without content must never be written.
func (p Prescription) HasContent() bool {
	return len(p.Medicines) > 0 ||
		len(p.Injections) > 0 ||
		strings.TrimSpace(p.DietPlan) != "" ||
		len(p.RecommendedTests) > 0
}

// TestCatalog is the fixed list of investigations a doctor can recommend.
var TestCatalog = []string{
	"Complete Blood Count",
	"Blood Sugar",
	"Lipid Profile",
	"Liver Function Test",
	"Kidney Function Test",
	"Thyroid Profile",
	"Urine Analysis",
	"X-Ray",
	"ECG",
	"Ultrasound",
	"CT Scan",
	"MRI",
}

// CanonicalTest returns the catalog spelling of name, matched case-insensitively.
func CanonicalTest(name string) (string, bool) {
	name = strings.TrimSpace(name)
	for _, t := range TestCatalog {
		if strings.EqualFold(t, name) {
			return t, true
		}
	}
	return "", false
}
