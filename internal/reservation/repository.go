package reservation

import (
	"context"
	"errors"
	"time"
)

var (
	ErrVaccineNotFound     = errors.New("vaccine not found")
	ErrInsufficientStock   = errors.New("not enough available doses")
	ErrNoAvailability      = errors.New("no caregiver available on that date")
	ErrDuplicateSlot       = errors.New("availability already published for that date")
	ErrSlotGone            = errors.New("availability slot no longer exists")
	ErrDuplicateID         = errors.New("appointment id already taken")
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// Repository contains all DB interactions needed by the engine. Methods
// that participate in a reservation are also reachable through InTx,
// which hands fn a view of the repository bound to a single transaction.
type Repository interface {
	// Vaccine inventory
	GetVaccine(ctx context.Context, name string) (*Vaccine, error)
	ListVaccines(ctx context.Context) ([]Vaccine, error)
	UpsertVaccineDoses(ctx context.Context, name string, amount int) (*Vaccine, error)
	DecrementVaccineDoses(ctx context.Context, name string, amount int) error

	// Availability ledger
	PublishAvailability(ctx context.Context, caregiver string, date time.Time) error
	FindCandidate(ctx context.Context, date time.Time) (string, error)
	ListCaregiversOn(ctx context.Context, date time.Time) ([]string, error)
	ConsumeSlot(ctx context.Context, caregiver string, date time.Time) error

	// Appointment ledger
	NextAppointmentID(ctx context.Context) (int64, error)
	CreateAppointment(ctx context.Context, appt Appointment) (*Appointment, error)
	GetAppointment(ctx context.Context, id int64) (*Appointment, error)
	ListPatientAppointments(ctx context.Context, username string) ([]Appointment, error)
	ListCaregiverAppointments(ctx context.Context, username string) ([]Appointment, error)
	DeleteAppointment(ctx context.Context, id int64) error

	// InTx runs fn inside one transaction; a non-nil error from fn rolls
	// back every write fn performed.
	InTx(ctx context.Context, fn func(Repository) error) error
}
