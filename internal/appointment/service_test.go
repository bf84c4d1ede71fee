package appointment

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackgods/dental-appointment-scheduling/internal/notify"
)

var (
	testNow    = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	visitStart = time.Date(2024, 2, 15, 10, 0, 0, 0, time.UTC) // a Thursday
)

func newTestService(repo *mockRepo, n *mockNotifier, opts ...Option) *Service {
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return NewService(repo, n, zap.NewNop(), opts...)
}

func activeDentist() *Dentist {
	return &Dentist{ID: uuid.New(), Name: "Dr. Ana Ruiz", Active: true}
}

func cleaning() *Treatment {
	return &Treatment{ID: uuid.New(), Name: "Cleaning", DurationMinutes: 60, Price: 120}
}

func patientActor() Actor {
	return Actor{UserID: uuid.New(), Role: RolePatient}
}

func TestCreateBooking_DerivesEndAndPriceFromService(t *testing.T) {
	repo := new(mockRepo)
	notifier := new(mockNotifier)
	dentist, svc, patient := activeDentist(), cleaning(), patientActor()

	repo.On("GetDentist", mock.Anything, dentist.ID).Return(dentist, nil)
	repo.On("GetService", mock.Anything, svc.ID).Return(svc, nil)
	repo.On("InsertAppointment", mock.Anything, mock.Anything).Return(echoInsert, nil)
	repo.On("InsertEvent", mock.Anything, mock.Anything).Return(nil)
	notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)

	s := newTestService(repo, notifier)
	appt, err := s.CreateBooking(context.Background(), BookingRequest{
		DentistID: dentist.ID,
		ServiceID: &svc.ID,
		StartsAt:  visitStart,
		Actor:     patient,
	})
	require.NoError(t, err)

	assert.Equal(t, StatusPending, appt.Status)
	assert.Equal(t, PaymentPending, appt.PaymentStatus)
	assert.Equal(t, patient.UserID, appt.PatientID, "patients always book for themselves")
	assert.Equal(t, visitStart.Add(time.Hour), appt.EndsAt)
	require.NotNil(t, appt.Price)
	assert.Equal(t, 120.0, *appt.Price)
	assert.Equal(t, CreatedByUser, appt.CreatedBy)

	// dentist and admin role are told
	notifier.AssertNumberOfCalls(t, "Notify", 2)
	repo.AssertCalled(t, "InsertEvent", mock.Anything, mock.MatchedBy(func(ev EventLog) bool {
		return ev.EventType == EventAppointmentCreated && *ev.AppointmentID == appt.ID
	}))
}

func TestCreateBooking_DefaultDurationWithoutService(t *testing.T) {
	repo := new(mockRepo)
	notifier := new(mockNotifier)
	dentist := activeDentist()
	patientID := uuid.New()

	repo.On("GetDentist", mock.Anything, dentist.ID).Return(dentist, nil)
	repo.On("InsertAppointment", mock.Anything, mock.Anything).Return(echoInsert, nil)
	repo.On("InsertEvent", mock.Anything, mock.Anything).Return(nil)
	notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)

	s := newTestService(repo, notifier)
	appt, err := s.CreateBooking(context.Background(), BookingRequest{
		PatientID: patientID,
		DentistID: dentist.ID,
		StartsAt:  visitStart,
		Actor:     Actor{UserID: uuid.New(), Role: RoleAdmin},
	})
	require.NoError(t, err)

	assert.Equal(t, visitStart.Add(DefaultDuration), appt.EndsAt)
	assert.Nil(t, appt.Price)
	assert.Equal(t, patientID, appt.PatientID)
	assert.Equal(t, CreatedByAdmin, appt.CreatedBy)
	repo.AssertNotCalled(t, "GetService", mock.Anything, mock.Anything)
}

func TestCreateBooking_UnknownReferencesWriteNothing(t *testing.T) {
	t.Run("dentist", func(t *testing.T) {
		repo := new(mockRepo)
		repo.On("GetDentist", mock.Anything, mock.Anything).Return(nil, ErrDentistNotFound)

		s := newTestService(repo, new(mockNotifier))
		_, err := s.CreateBooking(context.Background(), BookingRequest{
			DentistID: uuid.New(),
			StartsAt:  visitStart,
			Actor:     patientActor(),
		})

		assert.ErrorIs(t, err, ErrNotFound)
		repo.AssertNotCalled(t, "InsertAppointment", mock.Anything, mock.Anything)
	})

	t.Run("service", func(t *testing.T) {
		repo := new(mockRepo)
		dentist := activeDentist()
		serviceID := uuid.New()
		repo.On("GetDentist", mock.Anything, dentist.ID).Return(dentist, nil)
		repo.On("GetService", mock.Anything, serviceID).Return(nil, ErrServiceNotFound)

		s := newTestService(repo, new(mockNotifier))
		_, err := s.CreateBooking(context.Background(), BookingRequest{
			DentistID: dentist.ID,
			ServiceID: &serviceID,
			StartsAt:  visitStart,
			Actor:     patientActor(),
		})

		assert.ErrorIs(t, err, ErrServiceNotFound)
		repo.AssertNotCalled(t, "InsertAppointment", mock.Anything, mock.Anything)
	})

	t.Run("inactive dentist", func(t *testing.T) {
		repo := new(mockRepo)
		dentist := activeDentist()
		dentist.Active = false
		repo.On("GetDentist", mock.Anything, dentist.ID).Return(dentist, nil)

		s := newTestService(repo, new(mockNotifier))
		_, err := s.CreateBooking(context.Background(), BookingRequest{
			DentistID: dentist.ID,
			StartsAt:  visitStart,
			Actor:     patientActor(),
		})

		assert.ErrorIs(t, err, ErrDentistNotFound)
		repo.AssertNotCalled(t, "InsertAppointment", mock.Anything, mock.Anything)
	})
}

func TestCreateBooking_RejectsInvalidRequests(t *testing.T) {
	long := strings.Repeat("a", MaxTextLength+1)

	tests := []struct {
		name    string
		start   time.Time
		notes   *string
		actor   Actor
		wantErr error
	}{
		{"start in the past", time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC), nil, patientActor(), ErrStartInPast},
		{"clinic closed on sunday", time.Date(2024, 2, 18, 10, 0, 0, 0, time.UTC), nil, patientActor(), ErrOutsideClinicHours},
		{"runs past closing", time.Date(2024, 2, 15, 17, 30, 0, 0, time.UTC), nil, patientActor(), ErrOutsideClinicHours},
		{"before opening", time.Date(2024, 2, 15, 8, 0, 0, 0, time.UTC), nil, patientActor(), ErrOutsideClinicHours},
		{"notes too long", visitStart, &long, patientActor(), ErrTextTooLong},
		{"missing actor", visitStart, nil, Actor{}, ErrMissingActor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(mockRepo)
			dentist := activeDentist()
			repo.On("GetDentist", mock.Anything, dentist.ID).Return(dentist, nil).Maybe()

			s := newTestService(repo, new(mockNotifier))
			_, err := s.CreateBooking(context.Background(), BookingRequest{
				DentistID: dentist.ID,
				StartsAt:  tt.start,
				Notes:     tt.notes,
				Actor:     tt.actor,
			})

			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, ErrInvalidRequest)
			repo.AssertNotCalled(t, "InsertAppointment", mock.Anything, mock.Anything)
		})
	}
}

func TestCreateBooking_SlotTaken(t *testing.T) {
	repo := new(mockRepo)
	notifier := new(mockNotifier)
	dentist := activeDentist()

	repo.On("GetDentist", mock.Anything, dentist.ID).Return(dentist, nil)
	repo.On("InsertAppointment", mock.Anything, mock.Anything).Return(nil, ErrSlotUnavailable)

	s := newTestService(repo, notifier)
	_, err := s.CreateBooking(context.Background(), BookingRequest{
		DentistID: dentist.ID,
		StartsAt:  visitStart,
		Actor:     patientActor(),
	})

	assert.ErrorIs(t, err, ErrConflict)
	notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "InsertEvent", mock.Anything, mock.Anything)
}

func TestCreateBooking_StorageFailureIsNotAConflict(t *testing.T) {
	repo := new(mockRepo)
	dentist := activeDentist()

	repo.On("GetDentist", mock.Anything, dentist.ID).Return(dentist, nil)
	repo.On("InsertAppointment", mock.Anything, mock.Anything).
		Return(nil, unavailable("insert appointment", errors.New("connection reset")))

	s := newTestService(repo, new(mockNotifier))
	_, err := s.CreateBooking(context.Background(), BookingRequest{
		DentistID: dentist.ID,
		StartsAt:  visitStart,
		Actor:     patientActor(),
	})

	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.False(t, IsRequestError(err))
}

func TestCreateBooking_NotificationFailureDoesNotFailBooking(t *testing.T) {
	repo := new(mockRepo)
	notifier := new(mockNotifier)
	dentist := activeDentist()

	repo.On("GetDentist", mock.Anything, dentist.ID).Return(dentist, nil)
	repo.On("InsertAppointment", mock.Anything, mock.Anything).Return(echoInsert, nil)
	repo.On("InsertEvent", mock.Anything, mock.Anything).Return(errors.New("event table missing"))
	notifier.On("Notify", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	s := newTestService(repo, notifier)
	appt, err := s.CreateBooking(context.Background(), BookingRequest{
		DentistID: dentist.ID,
		StartsAt:  visitStart,
		Actor:     patientActor(),
	})

	require.NoError(t, err)
	assert.Equal(t, StatusPending, appt.Status)
}

func TestCreateBooking_IdempotentReplay(t *testing.T) {
	repo := new(mockRepo)
	notifier := new(mockNotifier)
	dentist, patient := activeDentist(), patientActor()
	idem := newMemIdempotency()

	repo.On("GetDentist", mock.Anything, dentist.ID).Return(dentist, nil)
	repo.On("InsertAppointment", mock.Anything, mock.Anything).Return(echoInsert, nil).Once()
	repo.On("InsertEvent", mock.Anything, mock.Anything).Return(nil)
	notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)

	s := newTestService(repo, notifier, WithIdempotency(idem))
	req := BookingRequest{
		DentistID:      dentist.ID,
		StartsAt:       visitStart,
		Actor:          patient,
		IdempotencyKey: "retry-1",
	}

	first, err := s.CreateBooking(context.Background(), req)
	require.NoError(t, err)

	repo.On("GetAppointmentByID", mock.Anything, first.ID).Return(first, nil)

	second, err := s.CreateBooking(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	repo.AssertNumberOfCalls(t, "InsertAppointment", 1)
}

func TestCreateBooking_IdempotencyKeyInFlight(t *testing.T) {
	repo := new(mockRepo)
	patient := patientActor()
	idem := newMemIdempotency()
	idem.keys[patient.UserID.String()+":retry-1"] = uuid.Nil

	s := newTestService(repo, new(mockNotifier), WithIdempotency(idem))
	_, err := s.CreateBooking(context.Background(), BookingRequest{
		DentistID:      uuid.New(),
		StartsAt:       visitStart,
		Actor:          patient,
		IdempotencyKey: "retry-1",
	})

	assert.ErrorIs(t, err, ErrIdempotencyInFlight)
	assert.ErrorIs(t, err, ErrConflict)
	repo.AssertNotCalled(t, "GetDentist", mock.Anything, mock.Anything)
}

func TestCreateBooking_FailedBookingReleasesKey(t *testing.T) {
	repo := new(mockRepo)
	dentist, patient := activeDentist(), patientActor()
	idem := newMemIdempotency()

	repo.On("GetDentist", mock.Anything, dentist.ID).Return(dentist, nil)
	repo.On("InsertAppointment", mock.Anything, mock.Anything).Return(nil, ErrSlotUnavailable)

	s := newTestService(repo, new(mockNotifier), WithIdempotency(idem))
	_, err := s.CreateBooking(context.Background(), BookingRequest{
		DentistID:      dentist.ID,
		StartsAt:       visitStart,
		Actor:          patient,
		IdempotencyKey: "retry-1",
	})

	assert.ErrorIs(t, err, ErrSlotUnavailable)
	assert.Empty(t, idem.keys)
}

func bookedAppointment(patientID, dentistID uuid.UUID, st Status) *Appointment {
	return &Appointment{
		ID:            uuid.New(),
		PatientID:     patientID,
		DentistID:     dentistID,
		StartsAt:      visitStart,
		EndsAt:        visitStart.Add(time.Hour),
		Status:        st,
		PaymentStatus: PaymentPending,
		CreatedBy:     CreatedByUser,
	}
}

func withStatus(a *Appointment, st Status) *Appointment {
	c := *a
	c.Status = st
	return &c
}

func TestTransitionStatus_AdminConfirms(t *testing.T) {
	repo := new(mockRepo)
	notifier := new(mockNotifier)
	appt := bookedAppointment(uuid.New(), uuid.New(), StatusPending)
	admin := Actor{UserID: uuid.New(), Role: RoleAdmin}

	repo.On("GetAppointmentByID", mock.Anything, appt.ID).Return(appt, nil)
	repo.On("UpdateStatus", mock.Anything, StatusChange{ID: appt.ID, From: StatusPending, To: StatusConfirmed}).
		Return(withStatus(appt, StatusConfirmed), nil)
	repo.On("InsertEvent", mock.Anything, mock.Anything).Return(nil)
	notifier.On("Notify", mock.Anything, mock.MatchedBy(func(msg notify.Message) bool {
		return msg.Kind == "appointment.confirmed" && *msg.Target.UserID == appt.PatientID
	})).Return(nil)

	s := newTestService(repo, notifier)
	updated, err := s.TransitionStatus(context.Background(), appt.ID, StatusConfirmed, admin)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, updated.Status)
	notifier.AssertExpectations(t)
}

func TestTransitionStatus_PendingCannotComplete(t *testing.T) {
	repo := new(mockRepo)
	appt := bookedAppointment(uuid.New(), uuid.New(), StatusPending)

	repo.On("GetAppointmentByID", mock.Anything, appt.ID).Return(appt, nil)

	s := newTestService(repo, new(mockNotifier))
	_, err := s.TransitionStatus(context.Background(), appt.ID, StatusCompleted, Actor{UserID: appt.DentistID, Role: RoleDentist})

	assert.ErrorIs(t, err, ErrInvalidTransition)
	repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything)
}

func TestTransitionStatus_PatientCannotConfirm(t *testing.T) {
	repo := new(mockRepo)
	appt := bookedAppointment(uuid.New(), uuid.New(), StatusPending)

	repo.On("GetAppointmentByID", mock.Anything, appt.ID).Return(appt, nil)

	s := newTestService(repo, new(mockNotifier))
	_, err := s.TransitionStatus(context.Background(), appt.ID, StatusConfirmed, Actor{UserID: appt.PatientID, Role: RolePatient})

	assert.ErrorIs(t, err, ErrForbidden)
	repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything)
}

func TestTransitionStatus_UnknownAppointment(t *testing.T) {
	repo := new(mockRepo)
	id := uuid.New()
	repo.On("GetAppointmentByID", mock.Anything, id).Return(nil, ErrAppointmentNotFound)

	s := newTestService(repo, new(mockNotifier))
	_, err := s.TransitionStatus(context.Background(), id, StatusConfirmed, Actor{UserID: uuid.New(), Role: RoleAdmin})

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTransitionStatus_RejudgesAfterConcurrentChange(t *testing.T) {
	repo := new(mockRepo)
	appt := bookedAppointment(uuid.New(), uuid.New(), StatusPending)

	repo.On("GetAppointmentByID", mock.Anything, appt.ID).Return(appt, nil).Once()
	repo.On("GetAppointmentByID", mock.Anything, appt.ID).Return(withStatus(appt, StatusCancelled), nil).Once()
	repo.On("UpdateStatus", mock.Anything, mock.Anything).Return(nil, ErrAppointmentNotFound).Once()

	s := newTestService(repo, new(mockNotifier))
	_, err := s.TransitionStatus(context.Background(), appt.ID, StatusConfirmed, Actor{UserID: uuid.New(), Role: RoleAdmin})

	assert.ErrorIs(t, err, ErrInvalidTransition)
	repo.AssertNumberOfCalls(t, "GetAppointmentByID", 2)
	repo.AssertNumberOfCalls(t, "UpdateStatus", 1)
}

func TestCancelBooking_RecordsCancellationTime(t *testing.T) {
	repo := new(mockRepo)
	notifier := new(mockNotifier)
	appt := bookedAppointment(uuid.New(), uuid.New(), StatusConfirmed)

	cancelled := withStatus(appt, StatusCancelled)
	cancelled.CancelledAt = &testNow

	repo.On("GetAppointmentByID", mock.Anything, appt.ID).Return(appt, nil)
	repo.On("UpdateStatus", mock.Anything, mock.MatchedBy(func(ch StatusChange) bool {
		return ch.From == StatusConfirmed && ch.To == StatusCancelled &&
			ch.CancelledAt != nil && ch.CancelledAt.Equal(testNow)
	})).Return(cancelled, nil)
	repo.On("InsertEvent", mock.Anything, mock.Anything).Return(nil)
	notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)

	s := newTestService(repo, notifier)
	updated, err := s.CancelBooking(context.Background(), appt.ID, Actor{UserID: appt.PatientID, Role: RolePatient})
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, updated.Status)
	require.NotNil(t, updated.CancelledAt)
	assert.True(t, updated.CancelledAt.Equal(testNow))
}

func TestCancelBooking_TerminalStaysTerminal(t *testing.T) {
	repo := new(mockRepo)
	appt := bookedAppointment(uuid.New(), uuid.New(), StatusCompleted)
	repo.On("GetAppointmentByID", mock.Anything, appt.ID).Return(appt, nil)

	s := newTestService(repo, new(mockNotifier))
	_, err := s.CancelBooking(context.Background(), appt.ID, Actor{UserID: uuid.New(), Role: RoleAdmin})

	assert.ErrorIs(t, err, ErrInvalidTransition)
	repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything)
}

func TestRecordVisit_DentistAttachesClinicalNotes(t *testing.T) {
	repo := new(mockRepo)
	notifier := new(mockNotifier)
	appt := bookedAppointment(uuid.New(), uuid.New(), StatusConfirmed)
	notes := "Filled two cavities, follow-up in 6 months"

	completed := withStatus(appt, StatusCompleted)
	completed.ClinicalNotes = &notes

	repo.On("GetAppointmentByID", mock.Anything, appt.ID).Return(appt, nil)
	repo.On("UpdateStatus", mock.Anything, mock.MatchedBy(func(ch StatusChange) bool {
		return ch.To == StatusCompleted && ch.ClinicalNotes != nil && *ch.ClinicalNotes == notes && ch.CancelledAt == nil
	})).Return(completed, nil)
	repo.On("InsertEvent", mock.Anything, mock.Anything).Return(nil)
	notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)

	s := newTestService(repo, notifier)
	updated, err := s.RecordVisit(context.Background(), appt.ID, StatusCompleted, Actor{UserID: appt.DentistID, Role: RoleDentist}, &notes)
	require.NoError(t, err)
	assert.Equal(t, notes, *updated.ClinicalNotes)
}

func TestRecordVisit_OnlyDentistsWriteNotes(t *testing.T) {
	repo := new(mockRepo)
	notes := "note"

	s := newTestService(repo, new(mockNotifier))
	_, err := s.RecordVisit(context.Background(), uuid.New(), StatusCompleted, Actor{UserID: uuid.New(), Role: RoleAdmin}, &notes)

	assert.ErrorIs(t, err, ErrForbidden)
	repo.AssertNotCalled(t, "GetAppointmentByID", mock.Anything, mock.Anything)
}

func TestUpdatePaymentStatus(t *testing.T) {
	repo := new(mockRepo)
	appt := bookedAppointment(uuid.New(), uuid.New(), StatusCompleted)
	paid := *appt
	paid.PaymentStatus = PaymentPaid

	repo.On("GetAppointmentByID", mock.Anything, appt.ID).Return(appt, nil)
	repo.On("UpdatePaymentStatus", mock.Anything, appt.ID, PaymentPending, PaymentPaid).Return(&paid, nil)
	repo.On("InsertEvent", mock.Anything, mock.Anything).Return(nil)

	s := newTestService(repo, new(mockNotifier))

	_, err := s.UpdatePaymentStatus(context.Background(), appt.ID, PaymentPaid, Actor{UserID: appt.PatientID, Role: RolePatient})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = s.UpdatePaymentStatus(context.Background(), appt.ID, PaymentRefunded, Actor{UserID: uuid.New(), Role: RoleAdmin})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	updated, err := s.UpdatePaymentStatus(context.Background(), appt.ID, PaymentPaid, Actor{UserID: uuid.New(), Role: RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, PaymentPaid, updated.PaymentStatus)
	assert.Equal(t, StatusCompleted, updated.Status, "payment does not touch booking status")
}

func TestGetAppointment_Ownership(t *testing.T) {
	repo := new(mockRepo)
	appt := bookedAppointment(uuid.New(), uuid.New(), StatusPending)
	repo.On("GetAppointmentByID", mock.Anything, appt.ID).Return(appt, nil)

	s := newTestService(repo, new(mockNotifier))
	ctx := context.Background()

	_, err := s.GetAppointment(ctx, appt.ID, Actor{UserID: appt.PatientID, Role: RolePatient})
	assert.NoError(t, err)
	_, err = s.GetAppointment(ctx, appt.ID, Actor{UserID: appt.DentistID, Role: RoleDentist})
	assert.NoError(t, err)
	_, err = s.GetAppointment(ctx, appt.ID, Actor{UserID: uuid.New(), Role: RoleAdmin})
	assert.NoError(t, err)

	_, err = s.GetAppointment(ctx, appt.ID, Actor{UserID: uuid.New(), Role: RolePatient})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = s.GetAppointment(ctx, appt.ID, Actor{UserID: uuid.New(), Role: RoleDentist})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestListAppointments_NarrowsToCaller(t *testing.T) {
	repo := new(mockRepo)
	patient := patientActor()
	otherPatient := uuid.New()

	repo.On("ListAppointments", mock.Anything, mock.MatchedBy(func(f ListFilter) bool {
		return f.PatientID != nil && *f.PatientID == patient.UserID && f.Limit == defaultListLimit
	})).Return([]Appointment{}, nil)

	s := newTestService(repo, new(mockNotifier))
	_, err := s.ListAppointments(context.Background(), ListFilter{PatientID: &otherPatient}, patient)
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestListAppointments_CapsLimitAndValidates(t *testing.T) {
	repo := new(mockRepo)
	admin := Actor{UserID: uuid.New(), Role: RoleAdmin}

	repo.On("ListAppointments", mock.Anything, mock.MatchedBy(func(f ListFilter) bool {
		return f.Limit == maxListLimit && f.Offset == 0
	})).Return([]Appointment{}, nil)

	s := newTestService(repo, new(mockNotifier))
	_, err := s.ListAppointments(context.Background(), ListFilter{Limit: 5000, Offset: -3}, admin)
	require.NoError(t, err)

	bogus := Status("LOST")
	_, err = s.ListAppointments(context.Background(), ListFilter{Status: &bogus}, admin)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	from, to := visitStart, visitStart.Add(-time.Hour)
	_, err = s.ListAppointments(context.Background(), ListFilter{From: &from, To: &to}, admin)
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func TestCheckAvailability(t *testing.T) {
	repo := new(mockRepo)
	dentistID := uuid.New()
	existing := *bookedAppointment(uuid.New(), dentistID, StatusConfirmed)

	repo.On("FindOverlapping", mock.Anything, dentistID, Interval{Start: visitStart.Add(30 * time.Minute), End: visitStart.Add(time.Hour)}).
		Return([]Appointment{existing}, nil)
	repo.On("FindOverlapping", mock.Anything, dentistID, Interval{Start: visitStart.Add(time.Hour), End: visitStart.Add(2 * time.Hour)}).
		Return([]Appointment{}, nil)

	s := newTestService(repo, new(mockNotifier))

	ok, err := s.CheckAvailability(context.Background(), dentistID, visitStart.Add(30*time.Minute), 30)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.CheckAvailability(context.Background(), dentistID, visitStart.Add(time.Hour), 60)
	require.NoError(t, err)
	assert.True(t, ok, "back-to-back is free")

	_, err = s.CheckAvailability(context.Background(), dentistID, visitStart, 0)
	assert.ErrorIs(t, err, ErrInvalidDuration)

	repo.AssertNotCalled(t, "InsertAppointment", mock.Anything, mock.Anything)
}

func TestCheckAvailability_RejectsOversizedDuration(t *testing.T) {
	repo := new(mockRepo)
	s := newTestService(repo, new(mockNotifier))

	ok, err := s.CheckAvailability(context.Background(), uuid.New(), visitStart, 153722868)
	assert.ErrorIs(t, err, ErrInvalidDuration)
	assert.False(t, ok)

	repo.AssertNotCalled(t, "FindOverlapping", mock.Anything, mock.Anything, mock.Anything)
}

func TestFreeSlots(t *testing.T) {
	repo := new(mockRepo)
	dentistID := uuid.New()
	existing := *bookedAppointment(uuid.New(), dentistID, StatusPending) // 10:00-11:00

	day := time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)
	repo.On("FindOverlapping", mock.Anything, dentistID, Interval{
		Start: time.Date(2024, 2, 15, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 2, 15, 18, 0, 0, 0, time.UTC),
	}).Return([]Appointment{existing}, nil)

	s := newTestService(repo, new(mockNotifier))
	slots, err := s.FreeSlots(context.Background(), dentistID, day, 60)
	require.NoError(t, err)

	starts := make(map[string]bool, len(slots))
	for _, sl := range slots {
		starts[sl.Start.Format("15:04")] = true
		assert.Equal(t, time.Hour, sl.Duration())
		assert.False(t, sl.Overlaps(existing.Interval()))
	}
	// 17 half-hour starts fit between 09:00 and 17:00; three collide with 10:00-11:00
	assert.Len(t, slots, 14)
	assert.True(t, starts["09:00"])
	assert.False(t, starts["09:30"])
	assert.False(t, starts["10:00"])
	assert.False(t, starts["10:30"])
	assert.True(t, starts["11:00"])
	assert.True(t, starts["17:00"])

	sunday := time.Date(2024, 2, 18, 0, 0, 0, 0, time.UTC)
	slots, err = s.FreeSlots(context.Background(), dentistID, sunday, 60)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestFreeSlots_RejectsOversizedDuration(t *testing.T) {
	repo := new(mockRepo)
	s := newTestService(repo, new(mockNotifier))
	day := time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)

	for _, minutes := range []int{0, MaxDurationMinutes + 1, 153722868} {
		slots, err := s.FreeSlots(context.Background(), uuid.New(), day, minutes)
		assert.ErrorIs(t, err, ErrInvalidDuration, "%d minutes", minutes)
		assert.Nil(t, slots)
	}

	repo.AssertNotCalled(t, "FindOverlapping", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendReminders_OncePerAppointment(t *testing.T) {
	repo := new(mockRepo)
	notifier := new(mockNotifier)
	a1 := *bookedAppointment(uuid.New(), uuid.New(), StatusConfirmed)
	a2 := *bookedAppointment(uuid.New(), uuid.New(), StatusConfirmed)
	lead := 24 * time.Hour

	repo.On("ListStartingBetween", mock.Anything, StatusConfirmed, testNow, testNow.Add(lead)).
		Return([]Appointment{a1, a2}, nil)
	repo.On("InsertEvent", mock.Anything, mock.Anything).Return(nil)
	notifier.On("Notify", mock.Anything, mock.MatchedBy(func(msg notify.Message) bool {
		return msg.Kind == "appointment.reminder"
	})).Return(nil)

	ledger := &memLedger{}
	_, _ = ledger.MarkReminded(context.Background(), a1.ID)

	s := newTestService(repo, notifier)

	sent, err := s.SendReminders(context.Background(), lead, ledger)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	sent, err = s.SendReminders(context.Background(), lead, ledger)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)

	notifier.AssertNumberOfCalls(t, "Notify", 1)
}

func TestSendReminders_RetriesWhenQueueIsFull(t *testing.T) {
	repo := new(mockRepo)
	notifier := new(mockNotifier)
	a := *bookedAppointment(uuid.New(), uuid.New(), StatusConfirmed)
	lead := 24 * time.Hour

	repo.On("ListStartingBetween", mock.Anything, StatusConfirmed, testNow, testNow.Add(lead)).
		Return([]Appointment{a}, nil)
	repo.On("InsertEvent", mock.Anything, mock.Anything).Return(nil)
	notifier.On("Notify", mock.Anything, mock.Anything).Return(notify.ErrQueueFull).Once()
	notifier.On("Notify", mock.Anything, mock.Anything).Return(nil).Once()

	ledger := &memLedger{}
	s := newTestService(repo, notifier)

	sent, err := s.SendReminders(context.Background(), lead, ledger)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	repo.AssertNotCalled(t, "InsertEvent", mock.Anything, mock.Anything)

	sent, err = s.SendReminders(context.Background(), lead, ledger)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	sent, err = s.SendReminders(context.Background(), lead, ledger)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)

	notifier.AssertNumberOfCalls(t, "Notify", 2)
	repo.AssertNumberOfCalls(t, "InsertEvent", 1)
}
