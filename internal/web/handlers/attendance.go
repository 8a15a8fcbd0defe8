package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/gymgate/gymgate/internal/checkin"
	"github.com/gymgate/gymgate/internal/database"
)

// AttendanceHandler exposes read-only attendance views.
type AttendanceHandler struct {
	service *checkin.Service
}

// NewAttendanceHandler creates a new attendance handler.
func NewAttendanceHandler(service *checkin.Service) *AttendanceHandler {
	return &AttendanceHandler{service: service}
}

// AttendanceEventResponse is one event in the daily listing.
type AttendanceEventResponse struct {
	ID          string    `json:"id"`
	MemberID    string    `json:"member_id"`
	Outcome     string    `json:"outcome"`
	CheckedInAt time.Time `json:"checked_in_at"`
}

// Today handles GET /api/v1/attendance/today.
func (h *AttendanceHandler) Today(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		respondError(w, http.StatusServiceUnavailable, "attendance not available")
		return
	}

	events, err := h.service.AttendanceToday(r.Context())
	if err != nil {
		log.Printf("attendance: listing today: %v", err)
		respondError(w, http.StatusServiceUnavailable, "storage_unavailable")
		return
	}

	out := make([]AttendanceEventResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, toEventResponse(ev))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"date":   time.Now().UTC().Format("2006-01-02"),
		"events": out,
	})
}

func toEventResponse(ev database.AttendanceEvent) AttendanceEventResponse {
	return AttendanceEventResponse{
		ID:          ev.ID.String(),
		MemberID:    ev.MemberID.String(),
		Outcome:     string(ev.Outcome),
		CheckedInAt: ev.CheckedInAt,
	}
}
