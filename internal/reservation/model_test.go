package reservation_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openvax/vaccine-appointment-scheduling/internal/reservation"
)

func TestParseDate(t *testing.T) {
	d, err := reservation.ParseDate("03-01-2024")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), d)

	// leap day
	d, err = reservation.ParseDate("02-29-2024")
	require.NoError(t, err)
	assert.Equal(t, time.February, d.Month())

	invalid := []string{
		"",
		"02-29-2023", // not a leap year
		"13-01-2024",
		"00-10-2024",
		"12-32-2024",
		"12-00-2024",
		"1-2-2024",
		"01/02/2024",
		"01-02-24",
		"01-02-2024 ",
	}
	for _, in := range invalid {
		t.Run(in, func(t *testing.T) {
			_, err := reservation.ParseDate(in)
			assert.ErrorIs(t, err, reservation.ErrBadDate)
		})
	}
}

func TestSessionAuthenticated(t *testing.T) {
	assert.False(t, reservation.Session{}.Authenticated())
	assert.False(t, reservation.Session{Username: "bob"}.Authenticated())
	assert.False(t, reservation.Session{Username: "bob", Role: "admin"}.Authenticated())
	assert.True(t, reservation.Session{Username: "bob", Role: reservation.RolePatient}.Authenticated())
	assert.True(t, reservation.Session{Username: "alice", Role: reservation.RoleCaregiver}.Authenticated())
}
