package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx, so the
// same repository methods run inside or outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	pool *pgxpool.Pool
	q    querier
	inTx bool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool, q: pool}
}

// InTx begins a transaction and hands fn a repository view bound to it.
// A nested call reuses the surrounding transaction.
func (r *PgRepository) InTx(ctx context.Context, fn func(Repository) error) error {
	if r.inTx {
		return fn(r)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	txRepo := &PgRepository{pool: r.pool, q: tx, inTx: true}
	if err := fn(txRepo); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Helpers

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID,
		&a.Date,
		&a.CaregiverUsername,
		&a.PatientUsername,
		&a.VaccineName,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

// Vaccine inventory

func (r *PgRepository) GetVaccine(ctx context.Context, name string) (*Vaccine, error) {
	var v Vaccine
	err := r.q.QueryRow(ctx, `
		SELECT name, doses
		FROM vaccines
		WHERE name = $1
	`, name).Scan(&v.Name, &v.Doses)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVaccineNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (r *PgRepository) ListVaccines(ctx context.Context) ([]Vaccine, error) {
	rows, err := r.q.Query(ctx, `
		SELECT name, doses
		FROM vaccines
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Vaccine
	for rows.Next() {
		var v Vaccine
		if err := rows.Scan(&v.Name, &v.Doses); err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

func (r *PgRepository) UpsertVaccineDoses(ctx context.Context, name string, amount int) (*Vaccine, error) {
	var v Vaccine
	err := r.q.QueryRow(ctx, `
		INSERT INTO vaccines (name, doses)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE
		SET doses = vaccines.doses + EXCLUDED.doses
		RETURNING name, doses
	`, name, amount).Scan(&v.Name, &v.Doses)
	if err != nil {
		return nil, fmt.Errorf("upsert vaccine doses: %w", err)
	}
	return &v, nil
}

// DecrementVaccineDoses is a conditional update: zero rows affected means
// the stock would have gone negative, and nothing is written.
func (r *PgRepository) DecrementVaccineDoses(ctx context.Context, name string, amount int) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE vaccines
		SET doses = doses - $2
		WHERE name = $1
		  AND doses >= $2
	`, name, amount)
	if err != nil {
		return fmt.Errorf("decrement vaccine doses: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientStock
	}
	return nil
}

// Availability ledger

func (r *PgRepository) PublishAvailability(ctx context.Context, caregiver string, date time.Time) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO availabilities (caregiver_username, available_on)
		VALUES ($1, $2)
	`, caregiver, date)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateSlot
		}
		return fmt.Errorf("publish availability: %w", err)
	}
	return nil
}

// FindCandidate returns the lexicographically smallest caregiver username
// free on the date. The row lock makes a concurrent reservation for the
// same date wait here until this transaction commits, after which it sees
// the consumed slot as gone.
func (r *PgRepository) FindCandidate(ctx context.Context, date time.Time) (string, error) {
	var username string
	err := r.q.QueryRow(ctx, `
		SELECT caregiver_username
		FROM availabilities
		WHERE available_on = $1
		ORDER BY caregiver_username
		LIMIT 1
		FOR UPDATE
	`, date).Scan(&username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNoAvailability
		}
		return "", err
	}
	return username, nil
}

func (r *PgRepository) ListCaregiversOn(ctx context.Context, date time.Time) ([]string, error) {
	rows, err := r.q.Query(ctx, `
		SELECT caregiver_username
		FROM availabilities
		WHERE available_on = $1
		ORDER BY caregiver_username
	`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var username string
		if err := rows.Scan(&username); err != nil {
			return nil, err
		}
		result = append(result, username)
	}
	return result, rows.Err()
}

func (r *PgRepository) ConsumeSlot(ctx context.Context, caregiver string, date time.Time) error {
	tag, err := r.q.Exec(ctx, `
		DELETE FROM availabilities
		WHERE caregiver_username = $1
		  AND available_on = $2
	`, caregiver, date)
	if err != nil {
		return fmt.Errorf("consume slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotGone
	}
	return nil
}

// Appointment ledger

// NextAppointmentID draws from a database sequence: ids stay strictly
// increasing and are never re-issued, even after the newest appointment
// is cancelled. MAX(id)+1 over live rows could not guarantee that.
func (r *PgRepository) NextAppointmentID(ctx context.Context) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `
		SELECT nextval('appointment_ids')
	`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("next appointment id: %w", err)
	}
	return id, nil
}

func (r *PgRepository) CreateAppointment(ctx context.Context, appt Appointment) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		INSERT INTO appointments (id, appointment_date, caregiver_username, patient_username, vaccine_name)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, appointment_date, caregiver_username, patient_username, vaccine_name, created_at
	`, appt.ID, appt.Date, appt.CaregiverUsername, appt.PatientUsername, appt.VaccineName)

	created, err := scanAppointment(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateID
		}
		return nil, fmt.Errorf("create appointment: %w", err)
	}
	return created, nil
}

func (r *PgRepository) GetAppointment(ctx context.Context, id int64) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, appointment_date, caregiver_username, patient_username, vaccine_name, created_at
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListPatientAppointments(ctx context.Context, username string) ([]Appointment, error) {
	return r.listAppointments(ctx, `
		SELECT id, appointment_date, caregiver_username, patient_username, vaccine_name, created_at
		FROM appointments
		WHERE patient_username = $1
		ORDER BY id
	`, username)
}

func (r *PgRepository) ListCaregiverAppointments(ctx context.Context, username string) ([]Appointment, error) {
	return r.listAppointments(ctx, `
		SELECT id, appointment_date, caregiver_username, patient_username, vaccine_name, created_at
		FROM appointments
		WHERE caregiver_username = $1
		ORDER BY id
	`, username)
}

func (r *PgRepository) listAppointments(ctx context.Context, sql string, args ...any) ([]Appointment, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func (r *PgRepository) DeleteAppointment(ctx context.Context, id int64) error {
	tag, err := r.q.Exec(ctx, `
		DELETE FROM appointments
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}
