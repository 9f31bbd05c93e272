package network

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pacroyale/viewer/pkg/faults"
	"github.com/pacroyale/viewer/pkg/input"
	"github.com/pacroyale/viewer/pkg/protocol"
)

// StateHandler serves the current render state
func StateHandler(view ViewAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "GET only"})
			return
		}
		writeJSON(w, http.StatusOK, view.Render())
	}
}

// StatsHandler serves view and server statistics
func StatsHandler(view ViewAPI, server *HTTPServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := view.GetStats()
		stats["http"] = server.GetStats()
		writeJSON(w, http.StatusOK, stats)
	}
}

type moveRequest struct {
	Direction string `json:"direction"`
}

// MoveHandler accepts {"direction": "up"} and hands it to the input
// controller. Debounced presses answer 429.
func MoveHandler(view ViewAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "POST only"})
			return
		}
		var req moveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
			return
		}
		dir, err := protocol.ParseDirection(req.Direction)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		result := view.Move(dir)
		status := http.StatusAccepted
		switch result {
		case input.Debounced:
			status = http.StatusTooManyRequests
		case input.Closed:
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]string{"result": string(result), "direction": dir.String()})
	}
}

type sessionRequest struct {
	Action string `json:"action"`
	ID     int64  `json:"id,omitempty"`
}

// SessionHandler accepts {"action": "next|previous|select|create|join"}
func SessionHandler(view ViewAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "POST only"})
			return
		}
		var req sessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
			return
		}

		var err error
		switch req.Action {
		case "next":
			view.NextSession()
		case "previous":
			view.PreviousSession()
		case "select":
			err = view.SelectSession(req.ID)
		case "create":
			err = view.CreateNextSession(r.Context())
		case "join":
			err = view.Join(r.Context())
		default:
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown action " + req.Action})
			return
		}

		if err != nil {
			writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, view.Render())
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, faults.ErrInvariant):
		return http.StatusConflict
	case errors.Is(err, faults.ErrTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
