package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"todoapi/internal/bootstrap/logging"
	"todoapi/internal/errs"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.KindValidation:
		return http.StatusBadRequest
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"code","message"}. Unexpected causes are logged,
// never sent to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logging.Error(r.Context(), "request failed", slog.Any("err", errs.Loggable(err)))
	}
	writeJSON(w, status, errorResponse{
		Code:    strconv.Itoa(status),
		Message: errs.Message(err),
	})
}
