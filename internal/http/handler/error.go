package handler

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"mediagate/internal/auth"
	"mediagate/internal/http/middleware"
	"mediagate/internal/service"
	"mediagate/internal/stream"
)

// errorPayload defines the standardized error response body.
type errorPayload struct {
	RequestID string        `json:"request_id"`
	Error     errorEnvelope `json:"error"`
}

type errorEnvelope struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// writeError writes a standardized JSON error response without leaking internal errors.
//
// Parameters:
// - status: HTTP status code to return
// - code: machine-readable short error code (e.g., "INVALID_ID", "NOT_FOUND", "INTERNAL_ERROR")
// - message: human-readable safe message (no internal details)
func writeError(c *fiber.Ctx, status int, code, message string) error {
	return writeErrorDetails(c, status, code, message, nil)
}

func writeErrorDetails(c *fiber.Ctx, status int, code, message string, details map[string]string) error {
	res := errorPayload{
		RequestID: middleware.RequestIDFrom(c),
		Error: errorEnvelope{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
	return c.Status(status).JSON(res)
}

// errorMapping binds a service error to a client-facing response.
// Order matters: specific errors come before their category.
var errorMapping = []struct {
	target  error
	status  int
	code    string
	message string
}{
	{service.ErrIDRequired, fiber.StatusBadRequest, "INVALID_ID", "invalid id format"},
	{service.ErrPasswordRequired, fiber.StatusBadRequest, "PASSWORD_REQUIRED", "password is required"},
	{service.ErrPasswordTooShort, fiber.StatusBadRequest, "PASSWORD_TOO_SHORT",
		fmt.Sprintf("password must be at least %d characters", service.MinAccessPasswordLen)},
	{service.ErrPasswordTooLong, fiber.StatusBadRequest, "PASSWORD_TOO_LONG",
		fmt.Sprintf("password must be at most %d bytes", auth.MaxPasswordBytes)},
	{service.ErrReaderNil, fiber.StatusBadRequest, "FILE_REQUIRED", "no file uploaded"},
	{service.ErrInvalidInput, fiber.StatusBadRequest, "BAD_REQUEST", "bad request"},
	{service.ErrFileMissing, fiber.StatusNotFound, "FILE_NOT_FOUND", "file not found on server"},
	{service.ErrNotFound, fiber.StatusNotFound, "NOT_FOUND", "media not found"},
	{service.ErrIncorrectPassword, fiber.StatusUnauthorized, "INCORRECT_PASSWORD", "incorrect password"},
	{service.ErrInvalidCredentials, fiber.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid credentials"},
	{service.ErrUnauthorized, fiber.StatusUnauthorized, "UNAUTHORIZED", "unauthorized"},
	{service.ErrEmailTaken, fiber.StatusConflict, "EMAIL_TAKEN", "user already exists with this email"},
	{service.ErrConflict, fiber.StatusConflict, "CONFLICT", "conflict"},
	{service.ErrUnsupportedType, fiber.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", "invalid file type"},
}

// writeServiceError maps a service error to its response. Storage faults
// and unexpected errors are logged in full and surface as a generic 500.
func writeServiceError(c *fiber.Ctx, log *slog.Logger, err error) error {
	var rangeErr *service.RangeError
	if errors.As(err, &rangeErr) {
		c.Set(fiber.HeaderContentRange, stream.UnsatisfiedRange(rangeErr.Size))
		return writeError(c, fiber.StatusRequestedRangeNotSatisfiable, "RANGE_NOT_SATISFIABLE", "requested range not satisfiable")
	}

	var verr *service.ValidationError
	if errors.As(err, &verr) {
		return writeErrorDetails(c, fiber.StatusBadRequest, "VALIDATION_FAILED", "validation failed", verr.Fields)
	}

	for _, m := range errorMapping {
		if errors.Is(err, m.target) {
			return writeError(c, m.status, m.code, m.message)
		}
	}

	log.ErrorContext(c.UserContext(), "request_failed",
		slog.String("request_id", middleware.RequestIDFrom(c)),
		slog.String("method", c.Method()),
		slog.String("path", c.Path()),
		slog.Bool("storage_fault", errors.Is(err, service.ErrStorage)),
		slog.String("error", err.Error()),
	)
	return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
}

// ErrorHandler returns a Fiber global error handler that standardizes error responses.
func ErrorHandler(log *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if !errors.As(err, &fe) {
			return writeServiceError(c, log, err)
		}

		switch fe.Code {
		case fiber.StatusBadRequest:
			return writeError(c, fe.Code, "BAD_REQUEST", "bad request")
		case fiber.StatusUnauthorized:
			return writeError(c, fe.Code, "UNAUTHORIZED", fe.Message)
		case fiber.StatusForbidden:
			return writeError(c, fe.Code, "FORBIDDEN", "forbidden")
		case fiber.StatusNotFound:
			return writeError(c, fe.Code, "NOT_FOUND", "resource not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, fe.Code, "METHOD_NOT_ALLOWED", "method not allowed")
		case fiber.StatusRequestEntityTooLarge:
			return writeError(c, fe.Code, "PAYLOAD_TOO_LARGE", "file too large")
		default:
			if fe.Code < fiber.StatusInternalServerError {
				return writeError(c, fe.Code, "BAD_REQUEST", fe.Message)
			}
			log.ErrorContext(c.UserContext(), "request_failed",
				slog.String("request_id", middleware.RequestIDFrom(c)),
				slog.String("path", c.Path()),
				slog.String("error", fe.Error()),
			)
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
	}
}
