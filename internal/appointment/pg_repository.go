package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgExclusionViolation = "23P01"
	noOverlapConstraint  = "appointments_no_overlap"
)

const appointmentColumns = `id, patient_id, dentist_id, service_id, starts_at, ends_at, status, payment_status,
	notes, symptoms, clinical_notes, price, created_by, cancelled_at, created_at, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanDentist(row pgx.Row) (*Dentist, error) {
	var d Dentist
	err := row.Scan(&d.ID, &d.Name, &d.Specialty, &d.Active, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDentistNotFound
		}
		return nil, classifyPgError("scan dentist", err)
	}
	return &d, nil
}

func scanService(row pgx.Row) (*Treatment, error) {
	var s Treatment
	err := row.Scan(&s.ID, &s.Name, &s.DurationMinutes, &s.Price, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, classifyPgError("scan service", err)
	}
	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DentistID,
		&a.ServiceID,
		&a.StartsAt,
		&a.EndsAt,
		&a.Status,
		&a.PaymentStatus,
		&a.Notes,
		&a.Symptoms,
		&a.ClinicalNotes,
		&a.Price,
		&a.CreatedBy,
		&a.CancelledAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, classifyPgError("scan appointment", err)
	}
	normalizeTimes(&a)
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	result := make([]Appointment, 0)
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPgError("iterate appointments", err)
	}
	return result, nil
}

// classifyPgError maps the exclusion constraint to ErrSlotUnavailable and
// connection-level failures to ErrStorageUnavailable.
func classifyPgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == pgExclusionViolation && pgErr.ConstraintName == noOverlapConstraint {
			return ErrSlotUnavailable
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return unavailable(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Interface methods

func (r *PgRepository) GetDentist(ctx context.Context, id uuid.UUID) (*Dentist, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, active, created_at, updated_at
		FROM dentists
		WHERE id = $1
	`, id)
	return scanDentist(row)
}

func (r *PgRepository) GetService(ctx context.Context, id uuid.UUID) (*Treatment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, duration_minutes, price, created_at, updated_at
		FROM services
		WHERE id = $1
	`, id)
	return scanService(row)
}

func (r *PgRepository) InsertDentist(ctx context.Context, d *Dentist) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO dentists (id, name, specialty, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (id) DO NOTHING
	`, d.ID, d.Name, d.Specialty, d.Active)
	if err != nil {
		return classifyPgError("insert dentist", err)
	}
	return nil
}

func (r *PgRepository) InsertService(ctx context.Context, s *Treatment) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO services (id, name, duration_minutes, price, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (id) DO NOTHING
	`, s.ID, s.Name, s.DurationMinutes, s.Price)
	if err != nil {
		return classifyPgError("insert service", err)
	}
	return nil
}

func (r *PgRepository) FindOverlapping(ctx context.Context, dentistID uuid.UUID, iv Interval) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE dentist_id = $1
		  AND status IN ('PENDING', 'CONFIRMED')
		  AND starts_at < $3
		  AND ends_at > $2
		ORDER BY starts_at
	`, dentistID, iv.Start, iv.End)
	if err != nil {
		return nil, classifyPgError("find overlapping", err)
	}
	return collectAppointments(rows)
}

// InsertAppointment relies on the appointments_no_overlap exclusion constraint:
// the insert itself decides between two concurrent overlapping bookings.
func (r *PgRepository) InsertAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (
			id, patient_id, dentist_id, service_id, starts_at, ends_at, status, payment_status,
			notes, symptoms, clinical_notes, price, created_by, cancelled_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now(), now())
		RETURNING `+appointmentColumns,
		a.ID, a.PatientID, a.DentistID, a.ServiceID, a.StartsAt, a.EndsAt, a.Status, a.PaymentStatus,
		a.Notes, a.Symptoms, a.ClinicalNotes, a.Price, a.CreatedBy, a.CancelledAt,
	)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.DentistID != nil {
		add("dentist_id = $%d", *f.DentistID)
	}
	if f.PatientID != nil {
		add("patient_id = $%d", *f.PatientID)
	}
	if f.Status != nil {
		add("status = $%d", *f.Status)
	}
	if f.From != nil {
		add("starts_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("starts_at < $%d", *f.To)
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	query += fmt.Sprintf(` ORDER BY starts_at, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classifyPgError("list appointments", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) UpdateStatus(ctx context.Context, ch StatusChange) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    cancelled_at = $4,
		    clinical_notes = COALESCE($5, clinical_notes),
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns,
		ch.ID, ch.To, ch.From, ch.CancelledAt, ch.ClinicalNotes,
	)
	return scanAppointment(row)
}

func (r *PgRepository) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, from, to PaymentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET payment_status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND payment_status = $3
		RETURNING `+appointmentColumns,
		id, to, from,
	)
	return scanAppointment(row)
}

func (r *PgRepository) ListStartingBetween(ctx context.Context, status Status, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = $1
		  AND starts_at >= $2
		  AND starts_at < $3
		ORDER BY starts_at
	`, status, from, to)
	if err != nil {
		return nil, classifyPgError("list upcoming", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return classifyPgError("insert event log", err)
	}
	return nil
}

func (r *PgRepository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return unavailable("ping postgres", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func normalizeTimes(a *Appointment) {
	a.StartsAt = a.StartsAt.UTC()
	a.EndsAt = a.EndsAt.UTC()
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	if a.CancelledAt != nil {
		t := a.CancelledAt.UTC()
		a.CancelledAt = &t
	}
}
