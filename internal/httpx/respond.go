package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ariefcatur/go-group-buying/internal/teams"
)

// envelope: semua response pakai bentuk yang sama.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, code int, msg string, data any) {
	writeJSON(w, code, envelope{Success: true, Message: msg, Data: data})
}

func writeFail(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, envelope{Success: false, Message: msg})
}

func statusForKind(k teams.Kind) int {
	switch k {
	case teams.KindValidation:
		return http.StatusBadRequest
	case teams.KindNotFound:
		return http.StatusNotFound
	case teams.KindConflict:
		return http.StatusConflict
	case teams.KindPayment:
		return http.StatusPaymentRequired
	case teams.KindState:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// writeError: business error -> pesan aslinya; infra error -> 500 generik, detail cuma di log.
func writeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	var e *teams.Error
	if errors.As(err, &e) {
		writeFail(w, statusForKind(e.Kind), e.Message)
		return
	}
	log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writeFail(w, http.StatusInternalServerError, "Internal server error")
}
