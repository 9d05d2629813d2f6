package stubapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// writeError writes a JSON error body. The API reports reasons in "message".
func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	slog.Warn("request rejected",
		"path", r.URL.Path,
		"status", status,
		"message", message,
	)
	writeJSON(w, status, map[string]any{"message": message})
}

// writeJSON encodes v as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
