package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	goAttend "github.com/MrEthical07/goAttend"
)

const maxBodyBytes = 1 << 20

type failure struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// errorStatus maps engine errors onto a status and a stable error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, goAttend.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, goAttend.ErrNotAuthorized):
		return http.StatusForbidden, "not_authorized"
	case errors.Is(err, goAttend.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, goAttend.ErrSessionInactive):
		return http.StatusConflict, "session_inactive"
	case errors.Is(err, goAttend.ErrTokenReplayedOrExpired):
		return http.StatusGone, "token_replayed_or_expired"
	case errors.Is(err, goAttend.ErrTokenInvalid):
		return http.StatusUnauthorized, "token_invalid"
	case errors.Is(err, goAttend.ErrScanRateLimited):
		return http.StatusTooManyRequests, "scan_rate_limited"
	case errors.Is(err, goAttend.ErrUnavailable):
		return http.StatusInternalServerError, "unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal server error"
	}
	writeFailure(w, status, code, msg)
}

func writeFailure(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, failure{Success: false, Error: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// decode reads a JSON body into dst. An empty body leaves dst untouched.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: malformed request body", goAttend.ErrInvalidInput)
	}
	return nil
}
