package api

import (
	"github.com/openvax/vaccine-appointment-scheduling/internal/reservation"
)

type ReserveRequest struct {
	Date    string `json:"date"`
	Vaccine string `json:"vaccine"`
}

type PublishAvailabilityRequest struct {
	Date string `json:"date"`
}

type AddDosesRequest struct {
	Name  string `json:"name"`
	Doses int    `json:"doses"`
}

type AppointmentResponse struct {
	ID        int64  `json:"id"`
	Date      string `json:"date"`
	Caregiver string `json:"caregiver"`
	Patient   string `json:"patient"`
	Vaccine   string `json:"vaccine"`
}

type AvailabilityResponse struct {
	Caregiver string `json:"caregiver"`
	Date      string `json:"date"`
}

type VaccineResponse struct {
	Name  string `json:"name"`
	Doses int    `json:"doses"`
}

type ScheduleResponse struct {
	Date       string            `json:"date"`
	Caregivers []string          `json:"caregivers"`
	Vaccines   []VaccineResponse `json:"vaccines"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a reservation.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		Date:      a.Date.Format(reservation.DateLayout),
		Caregiver: a.CaregiverUsername,
		Patient:   a.PatientUsername,
		Vaccine:   a.VaccineName,
	}
}

func toVaccineResponses(vs []reservation.Vaccine) []VaccineResponse {
	out := make([]VaccineResponse, 0, len(vs))
	for _, v := range vs {
		out = append(out, VaccineResponse{Name: v.Name, Doses: v.Doses})
	}
	return out
}
