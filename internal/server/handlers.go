package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/HyphaGroup/lockstep/internal/auth"
	"github.com/HyphaGroup/lockstep/internal/logger"
	"github.com/HyphaGroup/lockstep/internal/realtime"
)

func writeJSON(w http.ResponseWriter, status int, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// lockRequest is the body of POST /locks.
type lockRequest struct {
	EntityID string `json:"entityId"`
	Action   string `json:"action"` // acquire | release | check
}

// broadcastRequest is the body of POST /broadcast.
type broadcastRequest struct {
	EventType string                 `json:"eventType"`
	Data      map[string]interface{} `json:"data"`
}

// handleLocks serves the lock endpoints:
//
//	GET    /locks  list active locks (sweeps expired ones as a side effect)
//	POST   /locks  acquire / release / check one entity's lock
//	DELETE /locks  purge all expired locks (maintenance)
func (s *Server) handleLocks(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.FromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"success": false,
			"error":   "unauthenticated",
		})
		return
	}

	// Lock manipulation is part of the admin editing surface.
	if !identity.IsAdmin() {
		writeJSON(w, http.StatusForbidden, map[string]interface{}{
			"success": false,
			"error":   "admin role required",
		})
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.listLocks(w)
	case http.MethodPost:
		s.mutateLock(w, r, identity)
	case http.MethodDelete:
		s.purgeLocks(w)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]interface{}{
			"success": false,
			"error":   "method not allowed",
		})
	}
}

func (s *Server) listLocks(w http.ResponseWriter) {
	locks, err := s.coordinator.ActiveLocks()
	if err != nil {
		logger.Error("Failed to list locks: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"error":   "failed to fetch locks",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"locks":   locks,
	})
}

func (s *Server) mutateLock(w http.ResponseWriter, r *http.Request, identity auth.Identity) {
	var req lockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.EntityID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "entityId and action are required",
		})
		return
	}

	switch req.Action {
	case "acquire":
		result, err := s.coordinator.Acquire(req.EntityID, identity, "")
		if err != nil {
			logger.Error("Failed to acquire lock on %s: %v", req.EntityID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
				"success": false,
				"error":   "failed to manage lock",
			})
			return
		}
		if !result.Granted {
			writeJSON(w, http.StatusConflict, map[string]interface{}{
				"success":  false,
				"error":    "entity is already being edited",
				"lockedBy": result.LockedBy,
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":  true,
			"lock":     result.Lock,
			"extended": result.Extended,
		})

	case "release":
		released, err := s.coordinator.Release(req.EntityID, identity)
		if err != nil {
			logger.Error("Failed to release lock on %s: %v", req.EntityID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
				"success": false,
				"error":   "failed to manage lock",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":  true,
			"released": released,
		})

	case "check":
		l, err := s.coordinator.Check(req.EntityID)
		if err != nil {
			logger.Error("Failed to check lock on %s: %v", req.EntityID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
				"success": false,
				"error":   "failed to manage lock",
			})
			return
		}
		body := map[string]interface{}{
			"success":  true,
			"isLocked": l != nil,
		}
		if l != nil {
			body["lock"] = l
		} else {
			body["lock"] = nil
		}
		writeJSON(w, http.StatusOK, body)

	default:
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "invalid action",
		})
	}
}

func (s *Server) purgeLocks(w http.ResponseWriter) {
	cleaned, err := s.coordinator.PurgeExpired()
	if err != nil {
		logger.Error("Failed to purge locks: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"error":   "failed to clean locks",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"cleaned": cleaned,
	})
}

// handleBroadcast authorizes the requester as a producer of the event type,
// then fans the event out to all eligible connected clients.
func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]interface{}{
			"success": false,
			"error":   "method not allowed",
		})
		return
	}

	identity, ok := auth.FromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"success": false,
			"error":   "unauthenticated",
		})
		return
	}

	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.EventType == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "eventType is required",
		})
		return
	}

	eventType := realtime.EventType(req.EventType)
	if !realtime.CanTrigger(eventType, identity.Role) {
		writeJSON(w, http.StatusForbidden, map[string]interface{}{
			"success":       false,
			"error":         "insufficient permissions to broadcast " + req.EventType,
			"userRole":      string(identity.Role),
			"requiredRoles": realtime.RequiredProducerRoles(eventType),
		})
		return
	}

	s.broadcaster.Broadcast(eventType, req.Data, identity.Label)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"eventType":     req.EventType,
		"triggeredBy":   identity.Label,
		"broadcastTime": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"clients": s.registry.Len(),
	})
}
