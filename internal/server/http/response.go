package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/and161185/course-keeper/internal/errs"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// WriteJSON writes v with status. Encoding errors are dropped: headers are already sent.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps sentinel errors to HTTP status codes and default messages.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests, "Too many attempts. Please try again later."
	case errors.Is(err, errs.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, errs.ErrAlreadyExists):
		return http.StatusConflict, "already exists"
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, errs.ErrValidation), errors.Is(err, errs.ErrInvalidCoupon):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, errs.ErrStorage):
		return http.StatusInternalServerError, "Could not save your data. Please try again."
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// WriteError maps err to a status and a user-visible message. Validation messages are passed
// through verbatim; internal failures are logged and hidden.
func WriteError(w http.ResponseWriter, r *http.Request, err error, log *zap.Logger) {
	status, msg := statusFor(err)
	resp := ErrorResponse{Message: msg}
	var ve *errs.ValidationError
	if errors.As(err, &ve) {
		resp.Message, resp.Field = ve.Message, ve.Field
	}
	if status == http.StatusInternalServerError && log != nil {
		log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	WriteJSON(w, status, resp)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorResponse{Message: msg})
}

// decode reads a JSON body into v, answering 400 on malformed input.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeMessage(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}
