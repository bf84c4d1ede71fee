package appointment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Raised by the appointments_no_overlap_* triggers.
const sqliteSlotConflict = "appointment_slot_conflict"

// SQLiteRepository stores appointments in a single SQLite file. Timestamps are
// unix milliseconds in UTC; overlap is rejected by triggers inside the writing
// transaction.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullUUID(id *uuid.UUID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

func classifySQLiteError(op string, err error) error {
	if strings.Contains(err.Error(), sqliteSlotConflict) {
		return ErrSlotUnavailable
	}
	var sqlErr *sqlite.Error
	if errors.As(err, &sqlErr) {
		switch sqlErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_IOERR, sqlite3.SQLITE_CANTOPEN:
			return unavailable(op, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) {
		return unavailable(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func scanSQLiteAppointment(row rowScanner) (*Appointment, error) {
	var (
		a                              Appointment
		id, patientID, dentistID       string
		serviceID                      sql.NullString
		startsAt, endsAt               int64
		notes, symptoms, clinicalNotes sql.NullString
		price                          sql.NullFloat64
		cancelledAt                    sql.NullInt64
		createdAt, updatedAt           int64
	)
	err := row.Scan(
		&id,
		&patientID,
		&dentistID,
		&serviceID,
		&startsAt,
		&endsAt,
		&a.Status,
		&a.PaymentStatus,
		&notes,
		&symptoms,
		&clinicalNotes,
		&price,
		&a.CreatedBy,
		&cancelledAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, classifySQLiteError("scan appointment", err)
	}

	if a.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse appointment id: %w", err)
	}
	if a.PatientID, err = uuid.Parse(patientID); err != nil {
		return nil, fmt.Errorf("parse patient id: %w", err)
	}
	if a.DentistID, err = uuid.Parse(dentistID); err != nil {
		return nil, fmt.Errorf("parse dentist id: %w", err)
	}
	if serviceID.Valid {
		sid, err := uuid.Parse(serviceID.String)
		if err != nil {
			return nil, fmt.Errorf("parse service id: %w", err)
		}
		a.ServiceID = &sid
	}
	a.StartsAt = fromMillis(startsAt)
	a.EndsAt = fromMillis(endsAt)
	if notes.Valid {
		a.Notes = &notes.String
	}
	if symptoms.Valid {
		a.Symptoms = &symptoms.String
	}
	if clinicalNotes.Valid {
		a.ClinicalNotes = &clinicalNotes.String
	}
	if price.Valid {
		a.Price = &price.Float64
	}
	if cancelledAt.Valid {
		t := fromMillis(cancelledAt.Int64)
		a.CancelledAt = &t
	}
	a.CreatedAt = fromMillis(createdAt)
	a.UpdatedAt = fromMillis(updatedAt)
	return &a, nil
}

func collectSQLiteAppointments(rows *sql.Rows) ([]Appointment, error) {
	defer rows.Close()

	result := make([]Appointment, 0)
	for rows.Next() {
		a, err := scanSQLiteAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, classifySQLiteError("iterate appointments", err)
	}
	return result, nil
}

func (r *SQLiteRepository) GetDentist(ctx context.Context, id uuid.UUID) (*Dentist, error) {
	var (
		d                    Dentist
		rawID                string
		specialty            sql.NullString
		createdAt, updatedAt int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, specialty, active, created_at, updated_at
		FROM dentists
		WHERE id = ?
	`, id.String()).Scan(&rawID, &d.Name, &specialty, &d.Active, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDentistNotFound
		}
		return nil, classifySQLiteError("get dentist", err)
	}
	if d.ID, err = uuid.Parse(rawID); err != nil {
		return nil, fmt.Errorf("parse dentist id: %w", err)
	}
	if specialty.Valid {
		d.Specialty = &specialty.String
	}
	d.CreatedAt = fromMillis(createdAt)
	d.UpdatedAt = fromMillis(updatedAt)
	return &d, nil
}

func (r *SQLiteRepository) GetService(ctx context.Context, id uuid.UUID) (*Treatment, error) {
	var (
		s                    Treatment
		rawID                string
		createdAt, updatedAt int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, duration_minutes, price, created_at, updated_at
		FROM services
		WHERE id = ?
	`, id.String()).Scan(&rawID, &s.Name, &s.DurationMinutes, &s.Price, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, classifySQLiteError("get service", err)
	}
	if s.ID, err = uuid.Parse(rawID); err != nil {
		return nil, fmt.Errorf("parse service id: %w", err)
	}
	s.CreatedAt = fromMillis(createdAt)
	s.UpdatedAt = fromMillis(updatedAt)
	return &s, nil
}

func (r *SQLiteRepository) InsertDentist(ctx context.Context, d *Dentist) error {
	now := toMillis(time.Now())
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO dentists (id, name, specialty, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`, d.ID.String(), d.Name, nullString(d.Specialty), d.Active, now, now)
	if err != nil {
		return classifySQLiteError("insert dentist", err)
	}
	return nil
}

func (r *SQLiteRepository) InsertService(ctx context.Context, s *Treatment) error {
	now := toMillis(time.Now())
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO services (id, name, duration_minutes, price, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`, s.ID.String(), s.Name, s.DurationMinutes, s.Price, now, now)
	if err != nil {
		return classifySQLiteError("insert service", err)
	}
	return nil
}

func (r *SQLiteRepository) FindOverlapping(ctx context.Context, dentistID uuid.UUID, iv Interval) ([]Appointment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE dentist_id = ?
		  AND status IN ('PENDING', 'CONFIRMED')
		  AND starts_at < ?
		  AND ends_at > ?
		ORDER BY starts_at
	`, dentistID.String(), toMillis(iv.End), toMillis(iv.Start))
	if err != nil {
		return nil, classifySQLiteError("find overlapping", err)
	}
	return collectSQLiteAppointments(rows)
}

func (r *SQLiteRepository) InsertAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	now := toMillis(time.Now())
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO appointments (
			id, patient_id, dentist_id, service_id, starts_at, ends_at, status, payment_status,
			notes, symptoms, clinical_notes, price, created_by, cancelled_at, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING `+appointmentColumns,
		a.ID.String(), a.PatientID.String(), a.DentistID.String(), nullUUID(a.ServiceID),
		toMillis(a.StartsAt), toMillis(a.EndsAt), string(a.Status), string(a.PaymentStatus),
		nullString(a.Notes), nullString(a.Symptoms), nullString(a.ClinicalNotes), nullFloat(a.Price),
		string(a.CreatedBy), nullMillis(a.CancelledAt), now, now,
	)
	// The trigger error surfaces from Scan.
	return scanSQLiteAppointment(row)
}

func (r *SQLiteRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = ?
	`, id.String())
	return scanSQLiteAppointment(row)
}

func (r *SQLiteRepository) ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error) {
	var (
		where []string
		args  []any
	)
	if f.DentistID != nil {
		where = append(where, "dentist_id = ?")
		args = append(args, f.DentistID.String())
	}
	if f.PatientID != nil {
		where = append(where, "patient_id = ?")
		args = append(args, f.PatientID.String())
	}
	if f.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*f.Status))
	}
	if f.From != nil {
		where = append(where, "starts_at >= ?")
		args = append(args, toMillis(*f.From))
	}
	if f.To != nil {
		where = append(where, "starts_at < ?")
		args = append(args, toMillis(*f.To))
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY starts_at, id LIMIT ? OFFSET ?`
	args = append(args, f.Limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifySQLiteError("list appointments", err)
	}
	return collectSQLiteAppointments(rows)
}

func (r *SQLiteRepository) UpdateStatus(ctx context.Context, ch StatusChange) (*Appointment, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE appointments
		SET status = ?,
		    cancelled_at = ?,
		    clinical_notes = COALESCE(?, clinical_notes),
		    updated_at = ?
		WHERE id = ?
		  AND status = ?
		RETURNING `+appointmentColumns,
		string(ch.To), nullMillis(ch.CancelledAt), nullString(ch.ClinicalNotes), toMillis(time.Now()),
		ch.ID.String(), string(ch.From),
	)
	return scanSQLiteAppointment(row)
}

func (r *SQLiteRepository) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, from, to PaymentStatus) (*Appointment, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE appointments
		SET payment_status = ?,
		    updated_at = ?
		WHERE id = ?
		  AND payment_status = ?
		RETURNING `+appointmentColumns,
		string(to), toMillis(time.Now()), id.String(), string(from),
	)
	return scanSQLiteAppointment(row)
}

func (r *SQLiteRepository) ListStartingBetween(ctx context.Context, status Status, from, to time.Time) ([]Appointment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = ?
		  AND starts_at >= ?
		  AND starts_at < ?
		ORDER BY starts_at
	`, string(status), toMillis(from), toMillis(to))
	if err != nil {
		return nil, classifySQLiteError("list upcoming", err)
	}
	return collectSQLiteAppointments(rows)
}

func (r *SQLiteRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES (?, ?, ?, ?)
	`, ev.EventType, nullUUID(ev.AppointmentID), ev.Payload, toMillis(createdAt))
	if err != nil {
		return classifySQLiteError("insert event log", err)
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return unavailable("ping sqlite", err)
	}
	return nil
}
