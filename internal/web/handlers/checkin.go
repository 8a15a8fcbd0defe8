package handlers

import (
	"net/http"

	"github.com/gymgate/gymgate/internal/checkin"
	"github.com/gymgate/gymgate/internal/notify"
)

// CheckInHandler handles face check-in requests.
type CheckInHandler struct {
	service *checkin.Service
}

// NewCheckInHandler creates a new check-in handler.
func NewCheckInHandler(service *checkin.Service) *CheckInHandler {
	return &CheckInHandler{service: service}
}

// CheckInResponse is the JSON body for all check-in outcomes.
type CheckInResponse struct {
	Status     string  `json:"status"` // admitted, denied, failed
	MemberID   string  `json:"member_id,omitempty"`
	Similarity float64 `json:"similarity,omitempty"`
	Reason     string  `json:"reason,omitempty"`
	Message    string  `json:"message,omitempty"`
}

// CheckIn handles POST /api/v1/checkin.
func (h *CheckInHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		respondError(w, http.StatusServiceUnavailable, "check-in not available")
		return
	}

	imageData, err := decodeImagePayload(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result := h.service.CheckIn(r.Context(), imageData)

	switch result.State {
	case checkin.StateDone:
		respondJSON(w, http.StatusOK, CheckInResponse{
			Status:     "admitted",
			MemberID:   result.MemberID.String(),
			Similarity: result.Similarity,
			Message:    notify.EventMessage(notify.EventCheckInAdmitted),
		})
	case checkin.StateDenied:
		respondJSON(w, http.StatusForbidden, CheckInResponse{
			Status:   "denied",
			MemberID: result.MemberID.String(),
			Reason:   string(result.DenialReason),
			Message:  notify.ReasonMessage(string(result.DenialReason)),
		})
	default:
		respondJSON(w, failureStatus(result.FailureReason), CheckInResponse{
			Status:  "failed",
			Reason:  string(result.FailureReason),
			Message: notify.ReasonMessage(string(result.FailureReason)),
		})
	}
}

// failureStatus maps terminal failure reasons to HTTP status codes.
func failureStatus(reason checkin.FailureReason) int {
	switch reason {
	case checkin.FailureInvalidImage, checkin.FailureNoFace, checkin.FailureMultipleFaces:
		return http.StatusUnprocessableEntity
	case checkin.FailureNotRecognized:
		return http.StatusNotFound
	case checkin.FailureTimeout:
		return http.StatusGatewayTimeout
	case checkin.FailureStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
