package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gymgate/gymgate/internal/checkin"
	"github.com/gymgate/gymgate/internal/database"
	"github.com/gymgate/gymgate/internal/extractor"
	"github.com/gymgate/gymgate/internal/notify"
)

// BiometricsHandler handles face enrollment management.
type BiometricsHandler struct {
	service *checkin.Service
}

// NewBiometricsHandler creates a new biometrics handler.
func NewBiometricsHandler(service *checkin.Service) *BiometricsHandler {
	return &BiometricsHandler{service: service}
}

// RegisterResponse is the JSON body for a successful enrollment.
type RegisterResponse struct {
	Success     bool   `json:"success"`
	BiometricID string `json:"biometric_id"`
	SubjectID   string `json:"subject_id"`
}

// Register handles POST /api/v1/biometrics/{subjectID}.
func (h *BiometricsHandler) Register(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		respondError(w, http.StatusServiceUnavailable, "registration not available")
		return
	}

	subjectID, err := uuid.Parse(chi.URLParam(r, "subjectID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid subject id")
		return
	}

	imageData, err := decodeImagePayload(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.service.Register(r.Context(), subjectID, imageData)
	if err != nil {
		h.respondRegisterError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, RegisterResponse{
		Success:     true,
		BiometricID: result.BiometricID.String(),
		SubjectID:   result.SubjectID.String(),
	})
}

// respondRegisterError maps registration failures to HTTP responses
// without leaking internals.
func (h *BiometricsHandler) respondRegisterError(w http.ResponseWriter, err error) {
	var extErr *extractor.ExtractionError
	if errors.As(err, &extErr) {
		respondJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":   string(extErr.Code),
			"message": notify.ReasonMessage(string(extErr.Code)),
		})
		return
	}

	var dimErr *database.DimensionError
	if errors.As(err, &dimErr) {
		log.Printf("biometrics: %v", err)
		respondError(w, http.StatusInternalServerError, "configuration_error")
		return
	}

	log.Printf("biometrics: registration failed: %v", err)
	respondError(w, http.StatusServiceUnavailable, "storage_unavailable")
}

// Remove handles DELETE /api/v1/biometrics/{subjectID}.
func (h *BiometricsHandler) Remove(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		respondError(w, http.StatusServiceUnavailable, "registration not available")
		return
	}

	subjectID, err := uuid.Parse(chi.URLParam(r, "subjectID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid subject id")
		return
	}

	if err := h.service.Remove(r.Context(), subjectID); err != nil {
		if errors.Is(err, database.ErrNoActiveBiometric) {
			respondError(w, http.StatusNotFound, "no active biometric record")
			return
		}
		log.Printf("biometrics: removal failed: %v", err)
		respondError(w, http.StatusServiceUnavailable, "storage_unavailable")
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}
