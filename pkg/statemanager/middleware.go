package statemanager

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// RequestIDKey is the echo.Context key a request's tracking id is stored
// under.
const RequestIDKey = "request_id"

// Middleware wraps every route in a Group with request tracking.
// Usage: e.Use(mgr.Middleware("controlplane"))
func (m *Manager) Middleware(route string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := uuid.New().String()
			m.StartRequest(id, route, map[string]interface{}{
				"path":   c.Path(),
				"method": c.Request().Method,
			})
			c.Set(RequestIDKey, id)

			err := next(c)

			m.CompleteRequest(id, err)
			return err
		}
	}
}

// GetRequestID retrieves the tracking id Middleware stashed on c, "" if
// none (e.g. a route outside the tracked group).
func GetRequestID(c echo.Context) string {
	if id, ok := c.Get(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
