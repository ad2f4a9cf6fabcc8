package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/clinicerr"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Field string `json:"field,omitempty"`
	// Warning tells the caller what to check before retrying.
	Warning string `json:"warning,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// StatusFor maps a classified error to the HTTP status returned to the portal.
func StatusFor(err error) int {
	switch clinicerr.KindOf(err) {
	case clinicerr.KindValidation:
		return http.StatusBadRequest
	case clinicerr.KindMissingPatientIdentity:
		return http.StatusUnprocessableEntity
	case clinicerr.KindInvalidTransition, clinicerr.KindInProgress, clinicerr.KindAppointmentCancelled:
		return http.StatusConflict
	case clinicerr.KindNotFound:
		return http.StatusNotFound
	case clinicerr.KindNetwork:
		return http.StatusGatewayTimeout
	case clinicerr.KindServer:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	writeErrorWarning(w, logger, err, "")
}

func writeErrorWarning(w http.ResponseWriter, logger *slog.Logger, err error, warning string) {
	code := StatusFor(err)
	resp := errorResponse{Error: err.Error(), Warning: warning}
	var ce *clinicerr.Error
	if errors.As(err, &ce) {
		resp.Kind = string(ce.Kind)
		resp.Field = ce.Field
		if ce.Message != "" {
			resp.Error = ce.Message
		}
	}
	if code >= http.StatusInternalServerError {
		logger.Error("request failed", "status", code, "err", err)
		if code == http.StatusInternalServerError {
			resp.Error = "internal error"
		}
	}
	writeJSON(w, code, resp)
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return clinicerr.Validationf("body", "invalid json body")
	}
	return nil
}
