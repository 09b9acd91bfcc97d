package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// errResponse is the uniform error body for every non-2xx reply.
type errResponse struct {
	Error string `json:"error"`
}

// respond writes v as the JSON response body for status. An encoding
// failure can only be logged: the status line is already on the wire.
func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("api: encode response failed", slog.String("error", err.Error()))
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respond(w, status, errResponse{Error: msg})
}
