package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/DukeRupert/marquee/internal/domain"
)

// Retry-After hints, in seconds. The upstream hint matches the circuit
// breaker's open interval.
const (
	retryAfterUnavailable = 30
	retryAfterRateLimit   = 60
)

// ErrorResponse writes err to the client as a status code and message. Pages
// get plain text, API-style requests get a JSON envelope.
func ErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	code := domain.ErrorCode(err)
	message := domain.ErrorMessage(err)
	status := ErrorCodeToHTTPStatus(code)

	logError(logger, r, err, code, domain.ErrorOp(err), status)

	switch status {
	case http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterUnavailable))
	case http.StatusTooManyRequests:
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterRateLimit))
	}

	if acceptsJSON(r) {
		writeJSON(w, status, errorEnvelope{Error: errorBody{Code: code, Message: message}})
		return
	}
	http.Error(w, message, status)
}

// ErrorCodeToHTTPStatus maps domain error codes to HTTP status codes.
func ErrorCodeToHTTPStatus(code string) int {
	switch code {
	case domain.EINVALID:
		return http.StatusBadRequest
	case domain.EUNAUTHORIZED:
		return http.StatusUnauthorized
	case domain.EFORBIDDEN:
		return http.StatusForbidden
	case domain.ENOTFOUND:
		return http.StatusNotFound
	case domain.ECONFLICT:
		return http.StatusConflict
	case domain.EGONE:
		return http.StatusGone
	case domain.ETOOLARGE:
		return http.StatusRequestEntityTooLarge
	case domain.ERATELIMIT:
		return http.StatusTooManyRequests
	case domain.ENOTIMPL:
		return http.StatusNotImplemented
	case domain.EPARSE:
		// The movie API answered with something we could not use
		return http.StatusBadGateway
	case domain.EUNAVAILABLE:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ValidationErrorResponse writes field-level validation errors. JSON clients
// get every field message; pages get a generic message since the form is
// re-rendered by the caller in the normal flow.
func ValidationErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		ErrorResponse(w, r, logger, err)
		return
	}

	logger.Info("validation error",
		"op", ve.Op,
		"field_count", len(ve.Fields),
		"path", r.URL.Path,
	)

	if acceptsJSON(r) {
		writeJSON(w, http.StatusBadRequest, errorEnvelope{Error: errorBody{
			Code:    domain.EINVALID,
			Message: "Validation failed",
			Fields:  ve.Fields,
		}})
		return
	}

	http.Error(w, "Validation failed. Please check your input and try again.", http.StatusBadRequest)
}

// NotFoundResponse is a convenience wrapper for 404 errors.
func NotFoundResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	ErrorResponse(w, r, logger, domain.Errorf(domain.ENOTFOUND, "", "The requested page was not found"))
}

// UnauthorizedResponse is a convenience wrapper for 401 errors.
func UnauthorizedResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	ErrorResponse(w, r, logger, domain.Errorf(domain.EUNAUTHORIZED, "", "Please sign in to continue"))
}

// logError picks the level from the status. An unreachable or misbehaving
// movie API is logged as a warning: the outage is upstream and the breaker
// already reports it.
func logError(logger *slog.Logger, r *http.Request, err error, code, op string, status int) {
	attrs := []any{
		"error", err.Error(),
		"code", code,
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
	}
	if op != "" {
		attrs = append(attrs, "op", op)
	}

	var pe *domain.ParseError
	if errors.As(err, &pe) && pe.Field != "" {
		attrs = append(attrs, "field", pe.Field)
	}

	switch {
	case status == http.StatusServiceUnavailable || status == http.StatusBadGateway:
		logger.Warn("upstream error", attrs...)
	case status >= 500:
		logger.Error("server error", attrs...)
	case status >= 400:
		logger.Info("client error", attrs...)
	}
}

// acceptsJSON reports whether the client wants a JSON error. htmx requests
// always get text so the message can be dropped into a toast.
func acceptsJSON(r *http.Request) bool {
	if r.Header.Get("HX-Request") == "true" {
		return false
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.Contains(r.Header.Get("Content-Type"), "application/json")
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
