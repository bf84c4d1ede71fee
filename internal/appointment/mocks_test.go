package appointment

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/hackgods/dental-appointment-scheduling/internal/notify"
)

// mockRepo is a mock implementation of Repository.
type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) GetDentist(ctx context.Context, id uuid.UUID) (*Dentist, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Dentist), args.Error(1)
}

func (m *mockRepo) GetService(ctx context.Context, id uuid.UUID) (*Treatment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Treatment), args.Error(1)
}

func (m *mockRepo) FindOverlapping(ctx context.Context, dentistID uuid.UUID, iv Interval) ([]Appointment, error) {
	args := m.Called(ctx, dentistID, iv)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Appointment), args.Error(1)
}

func (m *mockRepo) InsertAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	args := m.Called(ctx, a)
	if fn, ok := args.Get(0).(func(*Appointment) (*Appointment, error)); ok {
		return fn(a)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Appointment), args.Error(1)
}

func (m *mockRepo) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Appointment), args.Error(1)
}

func (m *mockRepo) ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Appointment), args.Error(1)
}

func (m *mockRepo) UpdateStatus(ctx context.Context, ch StatusChange) (*Appointment, error) {
	args := m.Called(ctx, ch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Appointment), args.Error(1)
}

func (m *mockRepo) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, from, to PaymentStatus) (*Appointment, error) {
	args := m.Called(ctx, id, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Appointment), args.Error(1)
}

func (m *mockRepo) ListStartingBetween(ctx context.Context, status Status, from, to time.Time) ([]Appointment, error) {
	args := m.Called(ctx, status, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Appointment), args.Error(1)
}

func (m *mockRepo) InsertEvent(ctx context.Context, ev EventLog) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func (m *mockRepo) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// echoInsert stands in for the storage layer accepting the row as given.
func echoInsert(a *Appointment) (*Appointment, error) {
	stored := *a
	stored.CreatedAt = testNow
	stored.UpdatedAt = testNow
	return &stored, nil
}

// mockNotifier is a mock implementation of notify.Notifier.
type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, msg notify.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// memIdempotency is an in-memory Idempotency.
type memIdempotency struct {
	mu   sync.Mutex
	keys map[string]uuid.UUID
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{keys: make(map[string]uuid.UUID)}
}

func (m *memIdempotency) Claim(_ context.Context, key string) (uuid.UUID, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.keys[key]; ok {
		return id, false, nil
	}
	m.keys[key] = uuid.Nil
	return uuid.Nil, true, nil
}

func (m *memIdempotency) Complete(_ context.Context, key string, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = id
	return nil
}

func (m *memIdempotency) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

// memLedger is an in-memory ReminderLedger.
type memLedger struct {
	seen map[uuid.UUID]bool
}

func (l *memLedger) MarkReminded(_ context.Context, id uuid.UUID) (bool, error) {
	if l.seen == nil {
		l.seen = make(map[uuid.UUID]bool)
	}
	if l.seen[id] {
		return false, nil
	}
	l.seen[id] = true
	return true, nil
}

func (l *memLedger) Forget(_ context.Context, id uuid.UUID) error {
	delete(l.seen, id)
	return nil
}
