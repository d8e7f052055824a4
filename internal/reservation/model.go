package reservation

import (
	"time"
)

// DateLayout is the wire format for calendar dates, inherited from the
// command dispatcher's contract: mm-dd-yyyy.
const DateLayout = "01-02-2006"

type Role string

const (
	RolePatient   Role = "patient"
	RoleCaregiver Role = "caregiver"
)

// Session is the identity handed to the engine by the surrounding
// dispatcher. The engine never authenticates; it only reads this.
// At most one of the two roles is ever active per session.
type Session struct {
	Username string
	Role     Role
}

func (s Session) Authenticated() bool {
	return s.Username != "" && (s.Role == RolePatient || s.Role == RoleCaregiver)
}

type Vaccine struct {
	Name  string
	Doses int
}

// AvailabilitySlot is a caregiver's declared free calendar date.
// Identified by the (caregiver, date) pair; consumed exactly once.
type AvailabilitySlot struct {
	CaregiverUsername string
	AvailableOn       time.Time
}

type Appointment struct {
	ID                int64
	Date              time.Time
	CaregiverUsername string
	PatientUsername   string
	VaccineName       string
	CreatedAt         time.Time
}

// Schedule is the read-only view answered by a schedule search:
// every caregiver free on the date plus the whole vaccine inventory.
type Schedule struct {
	Date       time.Time
	Caregivers []string
	Vaccines   []Vaccine
}

// ParseDate parses an mm-dd-yyyy token into a UTC midnight date. The
// round-trip check rejects inputs that parse but do not match the layout
// exactly, such as unpadded months or trailing garbage absorbed by Parse.
func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, ErrBadDate
	}
	if d.Format(DateLayout) != s {
		return time.Time{}, ErrBadDate
	}
	return d, nil
}
