package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/dental-appointment-scheduling/internal/notify"
)

// ReminderLedger records which appointments were already reminded.
type ReminderLedger interface {
	// MarkReminded returns true the first time it is called for id.
	MarkReminded(ctx context.Context, id uuid.UUID) (bool, error)
	// Forget drops the mark so a later run reminds id again.
	Forget(ctx context.Context, id uuid.UUID) error
}

// SendReminders notifies patients of confirmed appointments starting within
// lead. It is intended to be called by the worker periodically and returns
// the number of reminders sent. Appointment rows are not modified.
func (s *Service) SendReminders(ctx context.Context, lead time.Duration, ledger ReminderLedger) (int, error) {
	now := s.now().UTC()
	upcoming, err := s.repo.ListStartingBetween(ctx, StatusConfirmed, now, now.Add(lead))
	if err != nil {
		return 0, fmt.Errorf("list upcoming appointments: %w", err)
	}

	sent := 0
	for i := range upcoming {
		appt := &upcoming[i]
		first, err := ledger.MarkReminded(ctx, appt.ID)
		if err != nil {
			s.log.Warn("failed to mark reminder", zap.Stringer("appointment_id", appt.ID), zap.Error(err))
			continue
		}
		if !first {
			continue
		}

		err = s.notify(ctx, "appointment.reminder", notify.ToUser(appt.PatientID),
			fmt.Sprintf("Reminder: dental appointment at %s", appt.StartsAt.Format("2006-01-02 15:04 MST")),
			appt)
		if err != nil {
			// not accepted for delivery, let the next run retry
			if ferr := ledger.Forget(ctx, appt.ID); ferr != nil {
				s.log.Warn("failed to release reminder mark", zap.Stringer("appointment_id", appt.ID), zap.Error(ferr))
			}
			continue
		}
		s.logEvent(ctx, appt.ID, EventReminderSent, map[string]any{"lead": lead.String()})
		sent++
	}
	return sent, nil
}
