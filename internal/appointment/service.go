package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	redisclient "github.com/smartclinic/clinic-scheduling/internal/redis"
)

const (
	EventAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventPatientWaitlisted    = "PATIENT_WAITLISTED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventWaitlistPromoted     = "WAITLIST_PROMOTED"
	EventWaitlistPromoteError = "WAITLIST_PROMOTE_FAILED"
)

var (
	ErrNoSpecializationMatch     = errors.New("no specialization matches the described issue")
	ErrNoDoctorForSpecialization = errors.New("no doctor available for the resolved specialization")
	ErrInvalidTimeSlot           = errors.New("time slot is not in the doctor's published slots")
	ErrInvalidDate               = errors.New("date must be in YYYY-MM-DD form")
	ErrSlotBeingBooked           = errors.New("slot is currently being booked, please retry")
	ErrDeleteFailed              = errors.New("appointment delete took no effect")
)

type Service struct {
	repo     Repository
	waitlist Waitlist
	locker   redisclient.Locker
	log      *zap.Logger
}

func NewService(repo Repository, waitlist Waitlist, locker redisclient.Locker, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		repo:     repo,
		waitlist: waitlist,
		locker:   locker,
		log:      log,
	}
}

// SuggestDoctors resolves the issue text to a specialization and returns
// every doctor carrying it. Doctor selection stays with the caller; Book
// only defaults to the first candidate when none is named.
func (s *Service) SuggestDoctors(ctx context.Context, issue string) ([]Doctor, error) {
	spec, ok := ResolveSpecialization(issue)
	if !ok {
		return nil, ErrNoSpecializationMatch
	}

	doctors, err := s.repo.ListDoctorsBySpecialization(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("list doctors for %q: %w", spec, err)
	}
	if len(doctors) == 0 {
		return nil, ErrNoDoctorForSpecialization
	}
	return doctors, nil
}

// Book places a patient into the requested slot, or onto its waitlist when
// the slot is occupied. Per call it creates at most one appointment row or
// one waitlist entry, never both. The per-slot lock serializes the
// check-then-insert so two concurrent bookings of the same slot cannot
// both confirm.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*BookingResult, error) {
	if _, err := time.Parse(DateLayout, req.Date); err != nil {
		return nil, ErrInvalidDate
	}

	patient, err := s.repo.GetPatientByID(ctx, req.PatientID)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	doctor, err := s.selectDoctor(ctx, req)
	if err != nil {
		return nil, err
	}

	if !doctor.HasTimeSlot(req.TimeSlot) {
		return nil, ErrInvalidTimeSlot
	}

	key := SlotKey{DoctorID: doctor.ID, Date: req.Date, TimeSlot: req.TimeSlot}

	var result *BookingResult
	err = s.locker.WithSlotLock(ctx, key.LockKey(), func(lockCtx context.Context) error {
		// Inside the critical section re-check occupancy for this slot.
		_, err := s.repo.GetConfirmedAppointmentForSlot(lockCtx, key)
		switch {
		case err == nil:
			result, err = s.enqueue(lockCtx, key, patient)
			return err
		case errors.Is(err, ErrAppointmentNotFound):
			// Slot is free.
		default:
			return fmt.Errorf("check slot occupancy: %w", err)
		}

		appt, err := s.repo.CreateConfirmedAppointment(lockCtx, &Appointment{
			ID:          uuid.New(),
			PatientID:   patient.ID,
			PatientName: patient.Name,
			DoctorID:    doctor.ID,
			Issue:       req.Issue,
			Date:        req.Date,
			TimeSlot:    req.TimeSlot,
			Status:      StatusConfirmed,
		})
		if errors.Is(err, ErrSlotOccupied) {
			// The unique index caught a write that slipped past the lock.
			result, err = s.enqueue(lockCtx, key, patient)
			return err
		}
		if err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}

		s.logEvent(lockCtx, &appt.ID, EventAppointmentBooked, map[string]any{
			"patient_id": patient.ID.String(),
			"doctor_id":  doctor.ID.String(),
			"date":       req.Date,
			"time_slot":  req.TimeSlot,
		})

		result = &BookingResult{Outcome: OutcomeBooked, Appointment: appt, Doctor: doctor}
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	result.Doctor = doctor
	return result, nil
}

func (s *Service) selectDoctor(ctx context.Context, req BookingRequest) (*Doctor, error) {
	spec, ok := ResolveSpecialization(req.Issue)
	if !ok {
		return nil, ErrNoSpecializationMatch
	}

	candidates, err := s.repo.ListDoctorsBySpecialization(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("list doctors for %q: %w", spec, err)
	}
	if len(candidates) == 0 {
		return nil, ErrNoDoctorForSpecialization
	}

	if req.DoctorID == uuid.Nil {
		return &candidates[0], nil
	}
	for i := range candidates {
		if candidates[i].ID == req.DoctorID {
			return &candidates[i], nil
		}
	}
	// The named doctor exists only outside the candidate set (or not at all);
	// either way they cannot take this issue.
	return nil, ErrDoctorNotFound
}

func (s *Service) enqueue(ctx context.Context, key SlotKey, patient *Patient) (*BookingResult, error) {
	pos, err := s.waitlist.Enqueue(ctx, key, patient.ID)
	if err != nil {
		return nil, fmt.Errorf("enqueue waitlist: %w", err)
	}

	s.logEvent(ctx, nil, EventPatientWaitlisted, map[string]any{
		"patient_id": patient.ID.String(),
		"doctor_id":  key.DoctorID.String(),
		"date":       key.Date,
		"time_slot":  key.TimeSlot,
		"position":   pos,
	})

	return &BookingResult{Outcome: OutcomeWaitlisted, Position: pos}, nil
}

// Cancel deletes a confirmed appointment and, if patients are waiting for
// the freed slot, promotes the head of its waitlist into a new confirmed
// appointment. The promotion is a secondary effect: its failure is logged
// and recorded in the event log but never fails the cancellation itself.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*CancelResult, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	key := appt.SlotKey()

	rows, err := s.repo.DeleteAppointment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("delete appointment: %w", err)
	}
	if rows == 0 {
		// The row was there a moment ago. Surface the gap instead of
		// reporting a clean not-found.
		return nil, ErrDeleteFailed
	}

	s.logEvent(ctx, &id, EventAppointmentCancelled, map[string]any{
		"doctor_id": key.DoctorID.String(),
		"date":      key.Date,
		"time_slot": key.TimeSlot,
	})

	result := &CancelResult{Cancelled: appt}

	lockErr := s.locker.WithSlotLock(ctx, key.LockKey(), func(lockCtx context.Context) error {
		promoted, err := s.promoteHead(lockCtx, key)
		if err != nil {
			return err
		}
		result.Promoted = promoted
		return nil
	})
	if lockErr != nil {
		// Cancellation already succeeded; the waitlist entry is still queued
		// and will be promoted when the slot next frees up.
		s.log.Warn("waitlist promotion skipped",
			zap.String("slot", key.String()),
			zap.Error(lockErr),
		)
	}

	return result, nil
}

// promoteHead dequeues the earliest waitlisted patient for the key and
// persists a confirmed appointment for them. On a persistence failure the
// patient goes back to the front of the queue so FIFO order is preserved.
func (s *Service) promoteHead(ctx context.Context, key SlotKey) (*Appointment, error) {
	patientID, ok, err := s.waitlist.DequeueHead(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("dequeue waitlist: %w", err)
	}
	if !ok {
		return nil, nil
	}

	promoted, err := s.createPromotion(ctx, key, patientID)
	if err == nil {
		s.logEvent(ctx, &promoted.ID, EventWaitlistPromoted, map[string]any{
			"patient_id": patientID.String(),
			"doctor_id":  key.DoctorID.String(),
			"date":       key.Date,
			"time_slot":  key.TimeSlot,
		})
		return promoted, nil
	}

	if reErr := s.waitlist.RequeueFront(ctx, key, patientID); reErr != nil {
		s.log.Error("waitlisted patient lost: promotion and requeue both failed",
			zap.String("patient_id", patientID.String()),
			zap.String("slot", key.String()),
			zap.NamedError("promote_error", err),
			zap.NamedError("requeue_error", reErr),
		)
	}
	s.logEvent(ctx, nil, EventWaitlistPromoteError, map[string]any{
		"patient_id": patientID.String(),
		"doctor_id":  key.DoctorID.String(),
		"date":       key.Date,
		"time_slot":  key.TimeSlot,
		"error":      err.Error(),
	})
	return nil, fmt.Errorf("promote waitlisted patient: %w", err)
}

func (s *Service) createPromotion(ctx context.Context, key SlotKey, patientID uuid.UUID) (*Appointment, error) {
	patient, err := s.repo.GetPatientByID(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("load waitlisted patient: %w", err)
	}

	return s.repo.CreateConfirmedAppointment(ctx, &Appointment{
		ID:          uuid.New(),
		PatientID:   patient.ID,
		PatientName: patient.Name,
		DoctorID:    key.DoctorID,
		Issue:       "",
		Date:        key.Date,
		TimeSlot:    key.TimeSlot,
		Status:      StatusConfirmed,
	})
}

// GetDoctor retrieves a directory entry by id.
func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	doctor, err := s.repo.GetDoctorByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get doctor: %w", err)
	}
	return doctor, nil
}

// GetAppointment retrieves a single appointment by id.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

// ListAppointments returns every appointment ordered by (date, time_slot).
func (s *Service) ListAppointments(ctx context.Context) ([]Appointment, error) {
	appts, err := s.repo.ListAppointments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}

// SearchAppointments matches query against patient name, doctor id and date.
func (s *Service) SearchAppointments(ctx context.Context, query string) ([]Appointment, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.ListAppointments(ctx)
	}
	appts, err := s.repo.SearchAppointments(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search appointments: %w", err)
	}
	return appts, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID *uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("marshal event payload", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: appointmentID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Warn("insert event log", zap.String("event", eventType), zap.Error(err))
	}
}
