package appointment

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisclient "github.com/smartclinic/clinic-scheduling/internal/redis"
)

// fakeRepo is an in-memory Repository. CreateConfirmedAppointment enforces
// the same slot uniqueness the partial index provides in Postgres.
type fakeRepo struct {
	mu       sync.Mutex
	patients map[uuid.UUID]Patient
	doctors  []Doctor
	appts    map[uuid.UUID]Appointment
	events   []EventLog

	createErrs int // next N creates fail with this error
	createErr  error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		patients: make(map[uuid.UUID]Patient),
		appts:    make(map[uuid.UUID]Appointment),
	}
}

func (f *fakeRepo) addPatient(name string) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.patients[id] = Patient{ID: id, Name: name}
	return id
}

func (f *fakeRepo) addDoctor(name, specialization string, slots ...string) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.doctors = append(f.doctors, Doctor{ID: id, Name: name, Specialization: specialization, TimeSlots: slots})
	return id
}

func (f *fakeRepo) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (f *fakeRepo) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.doctors {
		if f.doctors[i].ID == id {
			d := f.doctors[i]
			return &d, nil
		}
	}
	return nil, ErrDoctorNotFound
}

func (f *fakeRepo) ListDoctorsBySpecialization(_ context.Context, specialization string) ([]Doctor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Doctor
	for _, d := range f.doctors {
		if strings.EqualFold(d.Specialization, specialization) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (f *fakeRepo) GetConfirmedAppointmentForSlot(_ context.Context, key SlotKey) (*Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.appts {
		if a.SlotKey() == key && a.Status == StatusConfirmed {
			found := a
			return &found, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (f *fakeRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (f *fakeRepo) CreateConfirmedAppointment(_ context.Context, appt *Appointment) (*Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErrs > 0 {
		f.createErrs--
		return nil, f.createErr
	}
	for _, existing := range f.appts {
		if existing.SlotKey() == appt.SlotKey() && existing.Status == StatusConfirmed {
			return nil, ErrSlotOccupied
		}
	}
	stored := *appt
	f.appts[stored.ID] = stored
	return &stored, nil
}

func (f *fakeRepo) DeleteAppointment(_ context.Context, id uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.appts[id]; !ok {
		return 0, nil
	}
	delete(f.appts, id)
	return 1, nil
}

func (f *fakeRepo) ListAppointments(_ context.Context) ([]Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Appointment, 0, len(f.appts))
	for _, a := range f.appts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].TimeSlot < out[j].TimeSlot
	})
	return out, nil
}

func (f *fakeRepo) SearchAppointments(ctx context.Context, query string) ([]Appointment, error) {
	return f.ListAppointments(ctx)
}

func (f *fakeRepo) InsertEvent(_ context.Context, ev EventLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func newTestService(repo Repository) (*Service, *MemoryWaitlist) {
	wl := NewMemoryWaitlist()
	return NewService(repo, wl, redisclient.NewLocalLocker(), nil), wl
}

func TestBookFreeSlot(t *testing.T) {
	repo := newFakeRepo()
	doctorID := repo.addDoctor("Dr. Adams", "Cardiologist", "09:00", "10:00")
	patientID := repo.addPatient("Alice Archer")
	svc, _ := newTestService(repo)

	result, err := svc.Book(context.Background(), BookingRequest{
		PatientID: patientID,
		Issue:     "chest pain",
		Date:      "2024-01-10",
		TimeSlot:  "09:00",
	})
	require.NoError(t, err)

	assert.Equal(t, OutcomeBooked, result.Outcome)
	require.NotNil(t, result.Appointment)
	assert.Equal(t, doctorID, result.Appointment.DoctorID)
	assert.Equal(t, "Alice Archer", result.Appointment.PatientName)
	assert.Equal(t, StatusConfirmed, result.Appointment.Status)
}

func TestBookOccupiedSlotWaitlists(t *testing.T) {
	repo := newFakeRepo()
	repo.addDoctor("Dr. Adams", "Cardiologist", "09:00")
	first := repo.addPatient("Alice")
	second := repo.addPatient("Bob")
	svc, wl := newTestService(repo)

	req := BookingRequest{PatientID: first, Issue: "chest pain", Date: "2024-01-10", TimeSlot: "09:00"}
	_, err := svc.Book(context.Background(), req)
	require.NoError(t, err)

	req.PatientID = second
	req.Issue = "cardiac"
	result, err := svc.Book(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, OutcomeWaitlisted, result.Outcome)
	assert.Equal(t, 1, result.Position)
	assert.Nil(t, result.Appointment)

	// Waitlisted call must not also have created an appointment row.
	appts, err := repo.ListAppointments(context.Background())
	require.NoError(t, err)
	assert.Len(t, appts, 1)

	key := appts[0].SlotKey()
	n, err := wl.Len(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestBookValidation(t *testing.T) {
	repo := newFakeRepo()
	repo.addDoctor("Dr. Adams", "Cardiologist", "09:00")
	patientID := repo.addPatient("Alice")
	svc, _ := newTestService(repo)

	ctx := context.Background()

	t.Run("unmatched issue", func(t *testing.T) {
		_, err := svc.Book(ctx, BookingRequest{PatientID: patientID, Issue: "hiccups", Date: "2024-01-10", TimeSlot: "09:00"})
		assert.ErrorIs(t, err, ErrNoSpecializationMatch)
	})

	t.Run("no doctor for specialization", func(t *testing.T) {
		_, err := svc.Book(ctx, BookingRequest{PatientID: patientID, Issue: "toothache", Date: "2024-01-10", TimeSlot: "09:00"})
		assert.ErrorIs(t, err, ErrNoDoctorForSpecialization)
	})

	t.Run("invalid time slot regardless of occupancy", func(t *testing.T) {
		_, err := svc.Book(ctx, BookingRequest{PatientID: patientID, Issue: "chest pain", Date: "2024-01-10", TimeSlot: "23:00"})
		assert.ErrorIs(t, err, ErrInvalidTimeSlot)
	})

	t.Run("bad date", func(t *testing.T) {
		_, err := svc.Book(ctx, BookingRequest{PatientID: patientID, Issue: "chest pain", Date: "10/01/2024", TimeSlot: "09:00"})
		assert.ErrorIs(t, err, ErrInvalidDate)
	})

	t.Run("unknown patient", func(t *testing.T) {
		_, err := svc.Book(ctx, BookingRequest{PatientID: uuid.New(), Issue: "chest pain", Date: "2024-01-10", TimeSlot: "09:00"})
		assert.ErrorIs(t, err, ErrPatientNotFound)
	})

	t.Run("doctor outside candidate set", func(t *testing.T) {
		_, err := svc.Book(ctx, BookingRequest{PatientID: patientID, DoctorID: uuid.New(), Issue: "chest pain", Date: "2024-01-10", TimeSlot: "09:00"})
		assert.ErrorIs(t, err, ErrDoctorNotFound)
	})
}

func TestBookDefaultsToFirstCandidate(t *testing.T) {
	repo := newFakeRepo()
	repo.addDoctor("Dr. Ziegler", "Cardiologist", "09:00")
	wantID := repo.addDoctor("Dr. Abbott", "Cardiologist", "09:00")
	patientID := repo.addPatient("Alice")
	svc, _ := newTestService(repo)

	result, err := svc.Book(context.Background(), BookingRequest{
		PatientID: patientID,
		Issue:     "heart flutter",
		Date:      "2024-01-10",
		TimeSlot:  "09:00",
	})
	require.NoError(t, err)
	assert.Equal(t, wantID, result.Appointment.DoctorID)
}

func TestConcurrentBookingExclusivity(t *testing.T) {
	repo := newFakeRepo()
	repo.addDoctor("Dr. Adams", "Cardiologist", "09:00")

	const n = 32
	patients := make([]uuid.UUID, n)
	for i := range patients {
		patients[i] = repo.addPatient("Patient")
	}
	svc, _ := newTestService(repo)

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		booked     int
		waitlisted int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(pid uuid.UUID) {
			defer wg.Done()
			result, err := svc.Book(context.Background(), BookingRequest{
				PatientID: pid, Issue: "cardiac", Date: "2024-01-10", TimeSlot: "09:00",
			})
			if err != nil {
				t.Errorf("book: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			switch result.Outcome {
			case OutcomeBooked:
				booked++
			case OutcomeWaitlisted:
				waitlisted++
			}
		}(patients[i])
	}
	wg.Wait()

	assert.Equal(t, 1, booked)
	assert.Equal(t, n-1, waitlisted)

	appts, err := repo.ListAppointments(context.Background())
	require.NoError(t, err)
	assert.Len(t, appts, 1)
}

func TestCancelPromotesFIFO(t *testing.T) {
	repo := newFakeRepo()
	repo.addDoctor("Dr. Adams", "Cardiologist", "09:00")
	holder := repo.addPatient("Holder")
	p1 := repo.addPatient("P1")
	p2 := repo.addPatient("P2")
	p3 := repo.addPatient("P3")
	svc, _ := newTestService(repo)
	ctx := context.Background()

	req := BookingRequest{PatientID: holder, Issue: "cardiac", Date: "2024-01-10", TimeSlot: "09:00"}
	first, err := svc.Book(ctx, req)
	require.NoError(t, err)
	require.Equal(t, OutcomeBooked, first.Outcome)

	for _, pid := range []uuid.UUID{p1, p2, p3} {
		req.PatientID = pid
		result, err := svc.Book(ctx, req)
		require.NoError(t, err)
		require.Equal(t, OutcomeWaitlisted, result.Outcome)
	}

	current := first.Appointment.ID
	for _, want := range []uuid.UUID{p1, p2, p3} {
		result, err := svc.Cancel(ctx, current)
		require.NoError(t, err)
		require.NotNil(t, result.Promoted, "cancel should promote the next waitlisted patient")
		assert.Equal(t, want, result.Promoted.PatientID)
		assert.Equal(t, StatusConfirmed, result.Promoted.Status)
		current = result.Promoted.ID
	}

	// Queue is drained: the final cancel frees the slot for good.
	result, err := svc.Cancel(ctx, current)
	require.NoError(t, err)
	assert.Nil(t, result.Promoted)

	appts, err := repo.ListAppointments(ctx)
	require.NoError(t, err)
	assert.Empty(t, appts)
}

func TestCancelTwiceReturnsNotFound(t *testing.T) {
	repo := newFakeRepo()
	repo.addDoctor("Dr. Adams", "Cardiologist", "09:00")
	patientID := repo.addPatient("Alice")
	svc, _ := newTestService(repo)
	ctx := context.Background()

	result, err := svc.Book(ctx, BookingRequest{PatientID: patientID, Issue: "cardiac", Date: "2024-01-10", TimeSlot: "09:00"})
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, result.Appointment.ID)
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, result.Appointment.ID)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestCancelUnknownID(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo)

	_, err := svc.Cancel(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestFailedPromotionRequeuesPatient(t *testing.T) {
	repo := newFakeRepo()
	repo.addDoctor("Dr. Adams", "Cardiologist", "09:00")
	holder := repo.addPatient("Holder")
	waiting := repo.addPatient("Waiting")
	svc, wl := newTestService(repo)
	ctx := context.Background()

	req := BookingRequest{PatientID: holder, Issue: "cardiac", Date: "2024-01-10", TimeSlot: "09:00"}
	first, err := svc.Book(ctx, req)
	require.NoError(t, err)

	req.PatientID = waiting
	_, err = svc.Book(ctx, req)
	require.NoError(t, err)

	// The promotion insert fails once; the cancellation must still succeed
	// and the patient must return to the head of the queue.
	repo.createErrs = 1
	repo.createErr = errors.New("storage write failed")

	result, err := svc.Cancel(ctx, first.Appointment.ID)
	require.NoError(t, err)
	assert.Nil(t, result.Promoted)

	key := SlotKey{DoctorID: first.Appointment.DoctorID, Date: "2024-01-10", TimeSlot: "09:00"}
	n, err := wl.Len(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "patient must not silently disappear from the waitlist")

	head, ok, err := wl.DequeueHead(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, waiting, head)
}

func TestListAppointmentsIdempotentAndSorted(t *testing.T) {
	repo := newFakeRepo()
	repo.addDoctor("Dr. Adams", "Cardiologist", "09:00", "10:00")
	patientID := repo.addPatient("Alice")
	svc, _ := newTestService(repo)
	ctx := context.Background()

	for _, bk := range []struct{ date, slot string }{
		{"2024-01-12", "09:00"},
		{"2024-01-10", "10:00"},
		{"2024-01-10", "09:00"},
	} {
		_, err := svc.Book(ctx, BookingRequest{PatientID: patientID, Issue: "cardiac", Date: bk.date, TimeSlot: bk.slot})
		require.NoError(t, err)
	}

	first, err := svc.ListAppointments(ctx)
	require.NoError(t, err)
	second, err := svc.ListAppointments(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	require.Len(t, first, 3)
	assert.Equal(t, "2024-01-10", first[0].Date)
	assert.Equal(t, "09:00", first[0].TimeSlot)
	assert.Equal(t, "2024-01-10", first[1].Date)
	assert.Equal(t, "10:00", first[1].TimeSlot)
	assert.Equal(t, "2024-01-12", first[2].Date)
}

func TestSuggestDoctors(t *testing.T) {
	repo := newFakeRepo()
	a := repo.addDoctor("Dr. Abbott", "Cardiologist", "09:00")
	b := repo.addDoctor("Dr. Baker", "cardiologist", "10:00")
	repo.addDoctor("Dr. Skin", "Dermatologist", "09:00")
	svc, _ := newTestService(repo)

	doctors, err := svc.SuggestDoctors(context.Background(), "recurring chest pain")
	require.NoError(t, err)
	require.Len(t, doctors, 2)
	assert.Equal(t, a, doctors[0].ID)
	assert.Equal(t, b, doctors[1].ID)

	_, err = svc.SuggestDoctors(context.Background(), "nothing recognizable")
	assert.ErrorIs(t, err, ErrNoSpecializationMatch)
}
