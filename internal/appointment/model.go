package appointment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	// StatusConfirmed is the only persisted status: an appointment either
	// holds its slot or it has been deleted by cancellation.
	StatusConfirmed AppointmentStatus = "confirmed"
)

// DateLayout is the calendar-date format used for appointment dates and
// slot keys. ISO dates sort lexicographically, which the list ordering
// relies on.
const DateLayout = "2006-01-02"

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Doctor is read-only from the engine's perspective: the directory owns it.
// TimeSlots preserves the published order of the doctor's slot labels.
type Doctor struct {
	ID             uuid.UUID
	Name           string
	Specialization string
	TimeSlots      []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasTimeSlot reports whether label is one of the doctor's published slots.
func (d *Doctor) HasTimeSlot(label string) bool {
	for _, s := range d.TimeSlots {
		if s == label {
			return true
		}
	}
	return false
}

type Appointment struct {
	ID          uuid.UUID
	PatientID   uuid.UUID
	PatientName string // denormalized for display
	DoctorID    uuid.UUID
	Issue       string
	Date        string // DateLayout
	TimeSlot    string
	Status      AppointmentStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SlotKey identifies one bookable unit: a (doctor, date, time-slot) triple.
// It is a struct key on purpose, so no field value can collide with a
// delimiter the way a concatenated string key could.
type SlotKey struct {
	DoctorID uuid.UUID
	Date     string
	TimeSlot string
}

func (a *Appointment) SlotKey() SlotKey {
	return SlotKey{DoctorID: a.DoctorID, Date: a.Date, TimeSlot: a.TimeSlot}
}

// LockKey renders the Redis key guarding this slot's critical section.
func (k SlotKey) LockKey() string {
	return fmt.Sprintf("lock:slot:%s:%s:%s", k.DoctorID, k.Date, k.TimeSlot)
}

func (k SlotKey) waitlistKey() string {
	return fmt.Sprintf("waitlist:%s:%s:%s", k.DoctorID, k.Date, k.TimeSlot)
}

func (k SlotKey) String() string {
	return fmt.Sprintf("%s %s %s", k.DoctorID, k.Date, k.TimeSlot)
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// BookingOutcome distinguishes the two successful results of Book:
// the slot was free and a confirmed appointment now holds it, or the
// slot was occupied and the patient joined its waitlist.
type BookingOutcome string

const (
	OutcomeBooked     BookingOutcome = "booked"
	OutcomeWaitlisted BookingOutcome = "waitlisted"
)

type BookingRequest struct {
	PatientID uuid.UUID
	// DoctorID is optional. When zero, the first candidate for the resolved
	// specialization is selected; when set, it must be in the candidate set.
	DoctorID uuid.UUID
	Issue    string
	Date     string
	TimeSlot string
}

type BookingResult struct {
	Outcome     BookingOutcome
	Appointment *Appointment // set when Outcome == OutcomeBooked
	Doctor      *Doctor
	// Position is the 1-based place in the slot's waitlist when waitlisted.
	Position int
}

type CancelResult struct {
	Cancelled *Appointment
	// Promoted is the appointment created for the head of the freed slot's
	// waitlist, nil when the waitlist was empty or promotion failed.
	Promoted *Appointment
}
