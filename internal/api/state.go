package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/erazemk/oskrba/internal/store"
)

// MaxStateBytes limits the size of an uploaded state blob.
const MaxStateBytes = 16 << 20

// StateHandler serves the state blob.
type StateHandler struct {
	DB *sql.DB
}

// Get handles GET /api/app-state.
func (h *StateHandler) Get(w http.ResponseWriter, r *http.Request) {
	body, err := store.GetAppState(r.Context(), h.DB)
	if err != nil {
		slog.Error("loading app state", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to load state")
		return
	}
	if body == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// Put handles PUT /api/app-state.
func (h *StateHandler) Put(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxStateBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, http.StatusRequestEntityTooLarge, "state too large")
			return
		}
		jsonError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil || obj == nil {
		jsonError(w, http.StatusBadRequest, "body must be a JSON object")
		return
	}

	if err := store.PutAppState(r.Context(), h.DB, data); err != nil {
		slog.Error("storing app state", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to store state")
		return
	}
	slog.Debug("app state replaced", "client", clientID(r), "bytes", len(data))
	w.WriteHeader(http.StatusNoContent)
}

// Delete handles DELETE /api/app-state.
func (h *StateHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := store.DeleteAppState(r.Context(), h.DB); err != nil {
		slog.Error("deleting app state", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to delete state")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Health reports whether the database is reachable.
func Health(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// clientID names the authenticated client, or "anonymous" without auth.
func clientID(r *http.Request) string {
	if c := GetClaims(r.Context()); c != nil {
		return c.ClientID
	}
	return "anonymous"
}
