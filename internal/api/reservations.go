package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/iotail/kennel-core/internal/reservation"
)

// handleReserve books the best-fitting kennel for a dog.
//
//	POST /api/v1/reserve {"userID","dogID","storeID","dog_size"}
func (s *Server) handleReserve(w http.ResponseWriter, r *http.Request) {
	var req reservation.ReserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.UserID == "" || req.DogID == "" || req.StoreID == "" {
		writeBadRequest(w, "userID, dogID, and storeID are required")
		return
	}
	if !req.DogSize.Valid() {
		writeBadRequest(w, "dog_size must be small, medium, or large")
		return
	}

	result, err := s.reservations.Reserve(r.Context(), req)
	if err != nil {
		writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"reservationID": result.ReservationID,
		"kennelID":      result.KennelID,
		"timestamp":     result.Timestamp,
	})
}

// handleUnlock is the walk-up self-service flow: an unlock code typed at
// a specific kennel creates an immediately active reservation.
//
//	POST /api/v1/unlock {"userID","dogID","dog_size","storeID","kennelID","unlockCode"}
func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	var req reservation.UnlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.UserID == "" || req.StoreID == "" || req.KennelID <= 0 || req.UnlockCode == "" {
		writeBadRequest(w, "userID, storeID, kennelID, and unlockCode are required")
		return
	}
	if !req.DogSize.Valid() {
		writeBadRequest(w, "dog_size must be small, medium, or large")
		return
	}

	result, err := s.reservations.Unlock(r.Context(), req)
	if err != nil {
		writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"reservationID": result.ReservationID,
		"kennelID":      result.KennelID,
		"timestamp":     result.Timestamp,
	})
}

// activateRequest carries the unlock code for activation.
type activateRequest struct {
	UnlockCode string `json:"unlockCode"`
}

// handleActivate marks a booked reservation occupied.
//
//	POST /api/v1/activate/{reservationID} {"unlockCode"}
func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	reservationID := chi.URLParam(r, "reservationID")

	var req activateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.UnlockCode == "" {
		writeBadRequest(w, "unlockCode is required")
		return
	}

	if err := s.reservations.Activate(r.Context(), reservationID, req.UnlockCode); err != nil {
		writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCancel removes a reservation.
//
//	DELETE /api/v1/cancel/{reservationID}
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	reservationID := chi.URLParam(r, "reservationID")

	if err := s.reservations.Cancel(r.Context(), reservationID); err != nil {
		writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus lists reservations, optionally for one user.
//
//	GET /api/v1/status
//	GET /api/v1/status/{userID}
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	reservations, err := s.reservations.Status(r.Context(), userID)
	if err != nil {
		writeSchedulerError(w, err)
		return
	}
	if reservations == nil {
		reservations = []reservation.Reservation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"reservations": reservations,
	})
}

// handleReservationEvents returns recent lifecycle audit events.
//
//	GET /api/v1/events/reservations?limit=N
func (s *Server) handleReservationEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.audit.ReservationEvents(r.Context(), queryLimit(r))
	if err != nil {
		s.logger.Error("audit query failed", "error", err)
		writeInternalError(w, "audit query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// handleHVACEvents returns recent actuator transitions.
//
//	GET /api/v1/events/hvac?kennel=N&limit=N
func (s *Server) handleHVACEvents(w http.ResponseWriter, r *http.Request) {
	kennelID, _ := strconv.Atoi(r.URL.Query().Get("kennel"))

	events, err := s.audit.HVACEvents(r.Context(), kennelID, queryLimit(r))
	if err != nil {
		s.logger.Error("audit query failed", "error", err)
		writeInternalError(w, "audit query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// queryLimit parses the limit query parameter, defaulting to zero (the
// repository applies its own default).
func queryLimit(r *http.Request) int {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return limit
}
