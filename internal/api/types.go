package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/smartclinic/clinic-scheduling/internal/appointment"
)

type BookAppointmentRequest struct {
	PatientID string `json:"patient_id"`
	// DoctorID is optional; when omitted the first suggested doctor for the
	// issue is selected.
	DoctorID string `json:"doctor_id,omitempty"`
	Issue    string `json:"issue"`
	Date     string `json:"date"`
	TimeSlot string `json:"time_slot"`
}

type AppointmentResponse struct {
	ID          uuid.UUID `json:"id"`
	PatientID   uuid.UUID `json:"patient_id"`
	PatientName string    `json:"patient_name"`
	DoctorID    uuid.UUID `json:"doctor_id"`
	Issue       string    `json:"issue,omitempty"`
	Date        string    `json:"date"`
	TimeSlot    string    `json:"time_slot"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

type BookingResponse struct {
	Outcome     string               `json:"outcome"` // booked or waitlisted
	Appointment *AppointmentResponse `json:"appointment,omitempty"`
	Doctor      *DoctorResponse      `json:"doctor,omitempty"`
	// Position is the 1-based waitlist position when waitlisted.
	Position int `json:"waitlist_position,omitempty"`
}

type DoctorResponse struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Specialization string    `json:"specialization"`
	TimeSlots      []string  `json:"time_slots"`
}

type CancelResponse struct {
	Cancelled uuid.UUID            `json:"cancelled"`
	Promoted  *AppointmentResponse `json:"promoted,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) *AppointmentResponse {
	if a == nil {
		return nil
	}
	return &AppointmentResponse{
		ID:          a.ID,
		PatientID:   a.PatientID,
		PatientName: a.PatientName,
		DoctorID:    a.DoctorID,
		Issue:       a.Issue,
		Date:        a.Date,
		TimeSlot:    a.TimeSlot,
		Status:      string(a.Status),
		CreatedAt:   a.CreatedAt,
	}
}

func toDoctorResponse(d *appointment.Doctor) *DoctorResponse {
	if d == nil {
		return nil
	}
	return &DoctorResponse{
		ID:             d.ID,
		Name:           d.Name,
		Specialization: d.Specialization,
		TimeSlots:      d.TimeSlots,
	}
}
