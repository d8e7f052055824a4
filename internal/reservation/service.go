package reservation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	redisclient "github.com/openvax/vaccine-appointment-scheduling/internal/redis"
)

var (
	ErrNotAuthenticated = errors.New("login required")
	ErrNotPatient       = errors.New("patient login required")
	ErrNotCaregiver     = errors.New("caregiver login required")
	ErrBadDate          = errors.New("invalid date, expected mm-dd-yyyy")
	ErrInvalidDoses     = errors.New("dose amount must be a non-negative integer")
	ErrOutOfStock       = errors.New("not enough available doses")
	ErrDateBusy         = errors.New("date is currently being reserved, please retry")
	ErrNotOwner         = errors.New("appointment belongs to another user")
)

// reserveAttempts bounds retries of conflict-class failures (slot raced
// away, duplicate id, lock contention). Business failures are never retried.
const reserveAttempts = 3

type Service struct {
	repo   Repository
	locker redisclient.Locker
}

func NewService(repo Repository, locker redisclient.Locker) *Service {
	return &Service{repo: repo, locker: locker}
}

// Reserve books an appointment for the session patient on the requested
// date: it picks the first free caregiver alphabetically, checks vaccine
// stock, allocates the next appointment id, consumes the slot, writes the
// appointment row and decrements the stock, all inside one transaction
// guarded by a per-date distributed lock so concurrent sessions cannot
// interleave the read-check-write sequence.
func (s *Service) Reserve(ctx context.Context, sess Session, dateStr, vaccineName string) (*Appointment, error) {
	if !sess.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	if sess.Role != RolePatient {
		return nil, ErrNotPatient
	}

	date, err := ParseDate(dateStr)
	if err != nil {
		return nil, err
	}

	var appt *Appointment
	for attempt := 1; ; attempt++ {
		appt, err = s.reserveOnce(ctx, sess.Username, date, vaccineName)
		if err == nil {
			return appt, nil
		}
		if attempt >= reserveAttempts || !isRetryable(err) {
			return nil, err
		}
		log.Printf("reserve conflict for patient=%s date=%s attempt=%d: %v",
			sess.Username, dateStr, attempt, err)
		time.Sleep(time.Duration(attempt*25) * time.Millisecond)
	}
}

func (s *Service) reserveOnce(ctx context.Context, patient string, date time.Time, vaccineName string) (*Appointment, error) {
	var created *Appointment

	err := s.locker.WithDateLock(ctx, date, func(lockCtx context.Context) error {
		return s.repo.InTx(lockCtx, func(tx Repository) error {
			caregiver, err := tx.FindCandidate(lockCtx, date)
			if err != nil {
				return err
			}

			vaccine, err := tx.GetVaccine(lockCtx, vaccineName)
			if err != nil {
				return err
			}
			if vaccine.Doses == 0 {
				return ErrOutOfStock
			}

			id, err := tx.NextAppointmentID(lockCtx)
			if err != nil {
				return err
			}

			if err := tx.ConsumeSlot(lockCtx, caregiver, date); err != nil {
				return err
			}

			appt, err := tx.CreateAppointment(lockCtx, Appointment{
				ID:                id,
				Date:              date,
				CaregiverUsername: caregiver,
				PatientUsername:   patient,
				VaccineName:       vaccineName,
			})
			if err != nil {
				return err
			}

			if err := tx.DecrementVaccineDoses(lockCtx, vaccineName, 1); err != nil {
				return err
			}

			created = appt
			return nil
		})
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrDateBusy
		}
		return nil, err
	}
	return created, nil
}

func isRetryable(err error) bool {
	return errors.Is(err, ErrDateBusy) ||
		errors.Is(err, ErrSlotGone) ||
		errors.Is(err, ErrDuplicateID)
}

// PublishAvailability declares the session caregiver free on the date.
func (s *Service) PublishAvailability(ctx context.Context, sess Session, dateStr string) (*AvailabilitySlot, error) {
	if !sess.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	if sess.Role != RoleCaregiver {
		return nil, ErrNotCaregiver
	}

	date, err := ParseDate(dateStr)
	if err != nil {
		return nil, err
	}

	if err := s.repo.PublishAvailability(ctx, sess.Username, date); err != nil {
		return nil, err
	}
	return &AvailabilitySlot{CaregiverUsername: sess.Username, AvailableOn: date}, nil
}

// AddDoses creates the vaccine with the given stock on first use, and
// increments the stock on every later call.
func (s *Service) AddDoses(ctx context.Context, sess Session, name string, amount int) (*Vaccine, error) {
	if !sess.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	if sess.Role != RoleCaregiver {
		return nil, ErrNotCaregiver
	}
	if name == "" || amount < 0 {
		return nil, ErrInvalidDoses
	}

	return s.repo.UpsertVaccineDoses(ctx, name, amount)
}

// VaccineStock reads current stock for one vaccine.
func (s *Service) VaccineStock(ctx context.Context, sess Session, name string) (*Vaccine, error) {
	if !sess.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	return s.repo.GetVaccine(ctx, name)
}

// SearchSchedule lists caregivers free on the date along with the whole
// vaccine inventory.
func (s *Service) SearchSchedule(ctx context.Context, sess Session, dateStr string) (*Schedule, error) {
	if !sess.Authenticated() {
		return nil, ErrNotAuthenticated
	}

	date, err := ParseDate(dateStr)
	if err != nil {
		return nil, err
	}

	caregivers, err := s.repo.ListCaregiversOn(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("list caregivers: %w", err)
	}

	vaccines, err := s.repo.ListVaccines(ctx)
	if err != nil {
		return nil, fmt.Errorf("list vaccines: %w", err)
	}

	return &Schedule{Date: date, Caregivers: caregivers, Vaccines: vaccines}, nil
}

// Appointments lists the session user's own appointments, ascending by id.
func (s *Service) Appointments(ctx context.Context, sess Session) ([]Appointment, error) {
	if !sess.Authenticated() {
		return nil, ErrNotAuthenticated
	}

	if sess.Role == RoleCaregiver {
		return s.repo.ListCaregiverAppointments(ctx, sess.Username)
	}
	return s.repo.ListPatientAppointments(ctx, sess.Username)
}

// Cancel deletes the appointment row. The consumed availability slot and
// vaccine dose are deliberately not restored; cancelling is not a refund.
func (s *Service) Cancel(ctx context.Context, sess Session, id int64) error {
	if !sess.Authenticated() {
		return ErrNotAuthenticated
	}

	return s.repo.InTx(ctx, func(tx Repository) error {
		appt, err := tx.GetAppointment(ctx, id)
		if err != nil {
			return err
		}

		owner := appt.PatientUsername
		if sess.Role == RoleCaregiver {
			owner = appt.CaregiverUsername
		}
		if owner != sess.Username {
			return ErrNotOwner
		}

		return tx.DeleteAppointment(ctx, id)
	})
}
