package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/smartdustbin/ecorewards/internal/apperr"
)

// ErrorHandler renders handler errors as JSON. Fiber errors keep their code;
// domain errors are mapped by kind.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := apperr.HTTPStatus(err)
		message := err.Error()
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
			message = fe.Message
		}
		if status == http.StatusInternalServerError {
			logger.Error("unhandled error", slog.String("path", c.Path()), slog.String("error", err.Error()))
			message = http.StatusText(status)
		}
		body := fiber.Map{"error": message}
		if reqID := RequestIDFrom(c); reqID != "" {
			body["request_id"] = reqID
		}
		return c.Status(status).JSON(body)
	}
}
