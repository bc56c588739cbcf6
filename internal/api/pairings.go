package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/nerrad567/gray-logic-lwrf/internal/bridges/lwrf"
	"github.com/nerrad567/gray-logic-lwrf/internal/lightwaverf"
)

// addPairingRequest is the body of POST /pairings.
type addPairingRequest struct {
	RemoteID string `json:"remote_id"`
	Channel  *int   `json:"channel"`
}

func (s *Server) handleListPairings(w http.ResponseWriter, _ *http.Request) {
	b := s.requireBridge(w)
	if b == nil {
		return
	}
	respond(w, http.StatusOK, b.Pairings())
}

func (s *Server) handleAddPairing(w http.ResponseWriter, r *http.Request) {
	b := s.requireBridge(w)
	if b == nil {
		return
	}

	var req addPairingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.RemoteID == "" || req.Channel == nil {
		failCode(w, http.StatusBadRequest, ErrCodeValidation, "remote_id and channel are required")
		return
	}

	view, err := b.AddPairing(r.Context(), req.RemoteID, *req.Channel)
	switch {
	case errors.Is(err, lwrf.ErrRegistryFull):
		fail(w, http.StatusConflict, err.Error())
	case errors.Is(err, lightwaverf.ErrInvalidRemoteID), errors.Is(err, lightwaverf.ErrInvalidChannel):
		failCode(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case err != nil:
		s.logger.Error("adding pairing failed", "error", err)
		fail(w, http.StatusInternalServerError, "failed to add pairing")
	default:
		respond(w, http.StatusCreated, view)
	}
}

func (s *Server) handleErasePairings(w http.ResponseWriter, r *http.Request) {
	b := s.requireBridge(w)
	if b == nil {
		return
	}

	erased, err := b.ErasePairings(r.Context())
	if err != nil {
		s.logger.Error("erasing pairings failed", "error", err)
		fail(w, http.StatusInternalServerError, "failed to erase pairings")
		return
	}
	respond(w, http.StatusOK, map[string]int{"erased": erased})
}

func (s *Server) handleListRemotes(w http.ResponseWriter, r *http.Request) {
	b := s.requireBridge(w)
	if b == nil {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			fail(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	remotes, err := b.Remotes(r.Context(), limit)
	switch {
	case errors.Is(err, lwrf.ErrNoActivityLog):
		fail(w, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		s.logger.Error("listing remotes failed", "error", err)
		fail(w, http.StatusInternalServerError, "failed to list remotes")
	default:
		respond(w, http.StatusOK, map[string]any{
			"remotes": remotes,
			"count":   len(remotes),
		})
	}
}

// requireBridge returns the attached bridge or writes 503.
func (s *Server) requireBridge(w http.ResponseWriter) Bridge {
	b := s.getBridge()
	if b == nil {
		fail(w, http.StatusServiceUnavailable, "bridge not ready")
	}
	return b
}
