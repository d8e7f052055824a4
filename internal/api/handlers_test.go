package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openvax/vaccine-appointment-scheduling/internal/api"
	"github.com/openvax/vaccine-appointment-scheduling/internal/reservation"
	"github.com/openvax/vaccine-appointment-scheduling/internal/testfixtures"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	repo := testfixtures.NewMemRepo()
	svc := reservation.NewService(repo, testfixtures.NoopLocker{})

	router := api.NewRouter(api.RouterConfig{
		Service: svc,
		Env:     "test",
		Version: "test",
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, srv *httptest.Server, method, path, username, role string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if username != "" {
		req.Header.Set(api.HeaderUsername, username)
		req.Header.Set(api.HeaderRole, role)
	}

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestReserveEndToEnd(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, srv, http.MethodPost, "/availabilities", "alice", "caregiver",
		api.PublishAvailabilityRequest{Date: "03-01-2024"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	slot := decode[api.AvailabilityResponse](t, resp)
	assert.Equal(t, "alice", slot.Caregiver)
	assert.Equal(t, "03-01-2024", slot.Date)

	resp = doJSON(t, srv, http.MethodPost, "/vaccines", "alice", "caregiver",
		api.AddDosesRequest{Name: "Pfizer", Doses: 5})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, srv, http.MethodPost, "/reservations", "bob", "patient",
		api.ReserveRequest{Date: "03-01-2024", Vaccine: "Pfizer"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	appt := decode[api.AppointmentResponse](t, resp)
	assert.Equal(t, "alice", appt.Caregiver)
	assert.Equal(t, "bob", appt.Patient)
	assert.Equal(t, "Pfizer", appt.Vaccine)
	assert.Equal(t, "03-01-2024", appt.Date)

	resp = doJSON(t, srv, http.MethodGet, "/vaccines/Pfizer", "bob", "patient", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	vaccine := decode[api.VaccineResponse](t, resp)
	assert.Equal(t, 4, vaccine.Doses)

	resp = doJSON(t, srv, http.MethodGet, "/schedule?date=03-01-2024", "bob", "patient", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sched := decode[api.ScheduleResponse](t, resp)
	assert.Empty(t, sched.Caregivers)
	require.Len(t, sched.Vaccines, 1)
}

func TestReserveErrors(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name       string
		username   string
		role       string
		req        api.ReserveRequest
		wantStatus int
		wantCode   string
	}{
		{"unauthenticated", "", "", api.ReserveRequest{Date: "03-01-2024", Vaccine: "Pfizer"}, http.StatusUnauthorized, "not_authenticated"},
		{"caregiver session", "alice", "caregiver", api.ReserveRequest{Date: "03-01-2024", Vaccine: "Pfizer"}, http.StatusForbidden, "patient_required"},
		{"bad date", "bob", "patient", api.ReserveRequest{Date: "03-32-2024", Vaccine: "Pfizer"}, http.StatusBadRequest, "invalid_date"},
		{"no availability", "bob", "patient", api.ReserveRequest{Date: "03-01-2024", Vaccine: "Pfizer"}, http.StatusConflict, "no_availability"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doJSON(t, srv, http.MethodPost, "/reservations", tt.username, tt.role, tt.req)
			require.Equal(t, tt.wantStatus, resp.StatusCode)
			e := decode[api.ErrorResponse](t, resp)
			assert.Equal(t, tt.wantCode, e.Error)
		})
	}
}

func TestReserveUnknownVaccineReturns404(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, srv, http.MethodPost, "/availabilities", "alice", "caregiver",
		api.PublishAvailabilityRequest{Date: "03-01-2024"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, srv, http.MethodPost, "/reservations", "bob", "patient",
		api.ReserveRequest{Date: "03-01-2024", Vaccine: "Sputnik"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	e := decode[api.ErrorResponse](t, resp)
	assert.Equal(t, "vaccine_not_found", e.Error)
}

func TestPublishAvailabilityConflict(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, srv, http.MethodPost, "/availabilities", "alice", "caregiver",
		api.PublishAvailabilityRequest{Date: "03-01-2024"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, srv, http.MethodPost, "/availabilities", "alice", "caregiver",
		api.PublishAvailabilityRequest{Date: "03-01-2024"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	e := decode[api.ErrorResponse](t, resp)
	assert.Equal(t, "duplicate_slot", e.Error)

	// patients cannot publish
	resp = doJSON(t, srv, http.MethodPost, "/availabilities", "bob", "patient",
		api.PublishAvailabilityRequest{Date: "03-02-2024"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestCancelAppointment(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, srv, http.MethodPost, "/availabilities", "alice", "caregiver",
		api.PublishAvailabilityRequest{Date: "03-01-2024"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = doJSON(t, srv, http.MethodPost, "/vaccines", "alice", "caregiver",
		api.AddDosesRequest{Name: "Pfizer", Doses: 1})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = doJSON(t, srv, http.MethodPost, "/reservations", "bob", "patient",
		api.ReserveRequest{Date: "03-01-2024", Vaccine: "Pfizer"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	appt := decode[api.AppointmentResponse](t, resp)
	require.Equal(t, int64(1), appt.ID)

	resp = doJSON(t, srv, http.MethodDelete, "/appointments/1", "carol", "patient", nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, srv, http.MethodDelete, "/appointments/1", "bob", "patient", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, srv, http.MethodDelete, "/appointments/1", "bob", "patient", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, srv, http.MethodDelete, "/appointments/abc", "bob", "patient", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestListAppointments(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, srv, http.MethodPost, "/availabilities", "alice", "caregiver",
		api.PublishAvailabilityRequest{Date: "03-01-2024"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = doJSON(t, srv, http.MethodPost, "/vaccines", "alice", "caregiver",
		api.AddDosesRequest{Name: "Pfizer", Doses: 1})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = doJSON(t, srv, http.MethodPost, "/reservations", "bob", "patient",
		api.ReserveRequest{Date: "03-01-2024", Vaccine: "Pfizer"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, srv, http.MethodGet, "/appointments", "bob", "patient", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	appts := decode[[]api.AppointmentResponse](t, resp)
	require.Len(t, appts, 1)
	assert.Equal(t, "alice", appts[0].Caregiver)

	// the caregiver sees the same appointment from their side
	resp = doJSON(t, srv, http.MethodGet, "/appointments", "alice", "caregiver", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	appts = decode[[]api.AppointmentResponse](t, resp)
	require.Len(t, appts, 1)

	// carol has none
	resp = doJSON(t, srv, http.MethodGet, "/appointments", "carol", "patient", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	appts = decode[[]api.AppointmentResponse](t, resp)
	assert.Empty(t, appts)

	resp = doJSON(t, srv, http.MethodGet, "/appointments", "", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestRequestIDPropagated(t *testing.T) {
	srv := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/schedule?date=03-01-2024", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "req-42")
	req.Header.Set(api.HeaderUsername, "bob")
	req.Header.Set(api.HeaderRole, "patient")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "req-42", resp.Header.Get("X-Request-ID"))
}
