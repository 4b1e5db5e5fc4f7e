package transport

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/studentdesk/backend/internal/observability"
)

const requestIDHeader = "X-Request-Id"

// RequestID tags every request with an identifier, honoring one supplied by
// the caller. The ID travels on the user context so repository and service
// log lines can be tied back to the request.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := c.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		c.SetUserContext(observability.WithRequestID(c.UserContext(), requestID))
		c.Set(requestIDHeader, requestID)
		return c.Next()
	}
}
