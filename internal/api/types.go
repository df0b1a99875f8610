package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/session-scheduling/internal/schedule"
)

type WalkInRequest struct {
	PatientName string `json:"patient_name"`
	// At lets simulators replay a fixed arrival instant; empty means now.
	At string `json:"at,omitempty"`
}

type AdvanceBookingRequest struct {
	PatientName  string `json:"patient_name"`
	Date         string `json:"date"`
	SessionIndex int    `json:"session_index"`
	SlotIndex    int    `json:"slot_index"`
}

type AppointmentResponse struct {
	ID           uuid.UUID `json:"id"`
	DoctorName   string    `json:"doctor_name"`
	PatientName  string    `json:"patient_name"`
	Date         string    `json:"date"`
	Time         time.Time `json:"time"`
	ArriveBy     time.Time `json:"arrive_by"`
	SessionIndex int       `json:"session_index"`
	SlotIndex    int       `json:"slot_index"`
	TokenNumber  string    `json:"token_number"`
	Status       string    `json:"status"`
	CutOff       time.Time `json:"cut_off"`
	NoShow       time.Time `json:"no_show"`
}

func toAppointmentResponse(a *schedule.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:           a.ID,
		DoctorName:   a.DoctorName,
		PatientName:  a.PatientName,
		Date:         a.Date,
		Time:         a.Time,
		ArriveBy:     a.ArriveBy,
		SessionIndex: a.SessionIndex,
		SlotIndex:    a.SlotIndex,
		TokenNumber:  a.TokenNumber,
		Status:       string(a.Status),
		CutOff:       a.CutOff,
		NoShow:       a.NoShow,
	}
}

type BreakRequest struct {
	Slots []string `json:"slots"` // RFC3339 slot instants
	// ExtendByMinutes is only read on commit; prepare ignores it.
	ExtendByMinutes int `json:"extend_by_minutes"`
}

type BreakProposalResponse struct {
	Break      schedule.BreakPeriod      `json:"break"`
	HasOverrun bool                      `json:"has_overrun"`
	Options    schedule.ExtensionOptions `json:"options"`
}

type BreakCommitResponse struct {
	Status  string `json:"status"`
	Warning string `json:"warning,omitempty"`
}

type DayScheduleResponse struct {
	DoctorName string              `json:"doctor_name"`
	Date       string              `json:"date"`
	Slots      []schedule.SlotInfo `json:"slots"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
