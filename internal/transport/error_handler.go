package transport

import (
	"github.com/gofiber/fiber/v2"
	"github.com/studentdesk/backend/internal/observability"
	"go.uber.org/zap"
)

// ErrorHandler turns handler errors into JSON responses. Client errors are
// logged at warn so a burst of bad requests does not drown delivery failures
// in the error stream.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", code),
			zap.Error(err),
		}
		if requestID, ok := observability.RequestIDFromContext(c.UserContext()); ok {
			fields = append(fields, zap.String("requestId", requestID))
		}
		if code >= fiber.StatusInternalServerError {
			logger.Error("request error", fields...)
		} else {
			logger.Warn("request rejected", fields...)
		}

		return c.Status(code).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}
