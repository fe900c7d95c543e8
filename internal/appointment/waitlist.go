package appointment

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Waitlist holds patients deferred for a specific occupied slot, FIFO per
// slot key. Enqueue returns the patient's 1-based position in the queue.
type Waitlist interface {
	Enqueue(ctx context.Context, key SlotKey, patientID uuid.UUID) (int, error)
	// DequeueHead removes and returns the earliest-enqueued patient for the
	// key; ok is false when the queue is empty or absent.
	DequeueHead(ctx context.Context, key SlotKey) (uuid.UUID, bool, error)
	// RequeueFront puts a patient back at the head of the queue. Used when
	// promoting a dequeued patient fails, so nobody silently disappears.
	RequeueFront(ctx context.Context, key SlotKey, patientID uuid.UUID) error
	Len(ctx context.Context, key SlotKey) (int, error)
}

// MemoryWaitlist is the default registry: process-local, lost on restart.
// Each slot key owns its own mutex so queues for different slots never
// contend; the registry lock only guards the key map itself.
type MemoryWaitlist struct {
	mu     sync.Mutex
	queues map[SlotKey]*slotQueue
}

type slotQueue struct {
	mu       sync.Mutex
	patients []uuid.UUID
}

func NewMemoryWaitlist() *MemoryWaitlist {
	return &MemoryWaitlist{queues: make(map[SlotKey]*slotQueue)}
}

func (w *MemoryWaitlist) queue(key SlotKey) *slotQueue {
	w.mu.Lock()
	defer w.mu.Unlock()
	q, ok := w.queues[key]
	if !ok {
		q = &slotQueue{}
		w.queues[key] = q
	}
	return q
}

func (w *MemoryWaitlist) Enqueue(_ context.Context, key SlotKey, patientID uuid.UUID) (int, error) {
	q := w.queue(key)
	q.mu.Lock()
	defer q.mu.Unlock()
	q.patients = append(q.patients, patientID)
	return len(q.patients), nil
}

func (w *MemoryWaitlist) DequeueHead(_ context.Context, key SlotKey) (uuid.UUID, bool, error) {
	q := w.queue(key)
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.patients) == 0 {
		return uuid.Nil, false, nil
	}
	head := q.patients[0]
	q.patients = q.patients[1:]
	return head, true, nil
}

func (w *MemoryWaitlist) RequeueFront(_ context.Context, key SlotKey, patientID uuid.UUID) error {
	q := w.queue(key)
	q.mu.Lock()
	defer q.mu.Unlock()
	q.patients = append([]uuid.UUID{patientID}, q.patients...)
	return nil
}

func (w *MemoryWaitlist) Len(_ context.Context, key SlotKey) (int, error) {
	q := w.queue(key)
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.patients), nil
}
