package appointment

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrSlotOccupied is returned by CreateConfirmedAppointment when a
	// confirmed appointment already holds the slot. The unique index makes
	// this authoritative even if a caller skipped the availability check.
	ErrSlotOccupied = errors.New("slot already has a confirmed appointment")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	// Doctor directory (read-only). ListDoctorsBySpecialization matches
	// case-insensitively and orders by (name, id) so the first candidate
	// is stable.
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	ListDoctorsBySpecialization(ctx context.Context, specialization string) ([]Doctor, error)

	// Slot availability: the confirmed appointment holding the key, or
	// ErrAppointmentNotFound when the slot is free.
	GetConfirmedAppointmentForSlot(ctx context.Context, key SlotKey) (*Appointment, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	CreateConfirmedAppointment(ctx context.Context, appt *Appointment) (*Appointment, error)

	// DeleteAppointment reports the number of rows removed; the service
	// distinguishes "never existed" from "existed but delete took no effect".
	DeleteAppointment(ctx context.Context, id uuid.UUID) (int64, error)

	// ListAppointments is ordered by (date, time_slot) ascending.
	ListAppointments(ctx context.Context) ([]Appointment, error)
	// SearchAppointments matches query against patient name, doctor id and
	// date, case-insensitively.
	SearchAppointments(ctx context.Context, query string) ([]Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
