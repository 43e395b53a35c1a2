package respond

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/affordindia/affordindia-sub004/internal/apperr"
)

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Success bool      `json:"success"`
	Error   ErrorBody `json:"error"`
}

func JSON(w http.ResponseWriter, status int, v any, sugar *zap.SugaredLogger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		sugar.Errorw("failed to encode response", "error", err)
	}
}

// Error writes the failure body for err with the status code of its kind.
func Error(w http.ResponseWriter, err error, sugar *zap.SugaredLogger) {
	kind := apperr.KindOf(err)
	status := StatusCode(kind)
	if status >= http.StatusInternalServerError {
		sugar.Errorw("request failed", "error", err)
	}
	Failure(w, status, kind.Code(), apperr.Message(err), sugar)
}

// Failure writes a failure body with an explicit status and code.
func Failure(w http.ResponseWriter, status int, code, message string, sugar *zap.SugaredLogger) {
	JSON(w, status, errorResponse{Error: ErrorBody{Code: code, Message: message}}, sugar)
}

func StatusCode(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindInvalidTransition:
		return http.StatusConflict
	case apperr.KindNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
