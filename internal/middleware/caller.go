package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"golang.org/x/crypto/bcrypt"
)

const (
	// UserIDHeader carries the identity asserted by the trusted gateway.
	UserIDHeader = "X-User-ID"
	// APIKeyHeader carries the admin/simulation key.
	APIKeyHeader = "X-API-Key"

	userIDLocal = "user_id"
	adminLocal  = "admin"
	maxIDLength = 128
)

// Caller stores the gateway-authenticated user id in the request locals. The
// id is trusted verbatim; requests without one are rejected.
func Caller() fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Header values alias the request buffer; the id outlives the request.
		uid := strings.TrimSpace(utils.CopyString(c.Get(UserIDHeader)))
		if uid == "" {
			return fiber.NewError(http.StatusUnauthorized, "missing "+UserIDHeader+" header")
		}
		if len(uid) > maxIDLength {
			return fiber.NewError(http.StatusBadRequest, "user id too long")
		}
		c.Locals(userIDLocal, uid)
		return c.Next()
	}
}

// UserIDFrom returns the caller id stored by Caller, or "" outside the
// caller group.
func UserIDFrom(c *fiber.Ctx) string {
	uid, _ := c.Locals(userIDLocal).(string)
	return uid
}

// APIKey guards admin routes with a bcrypt-hashed shared key. With an empty
// hash the routes are disabled.
func APIKey(hash string) fiber.Handler {
	hashed := []byte(strings.TrimSpace(hash))
	return func(c *fiber.Ctx) error {
		if len(hashed) == 0 {
			return fiber.NewError(http.StatusForbidden, "admin api disabled")
		}
		key := c.Get(APIKeyHeader)
		if key == "" {
			return fiber.NewError(http.StatusUnauthorized, "missing "+APIKeyHeader+" header")
		}
		if err := bcrypt.CompareHashAndPassword(hashed, []byte(key)); err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid api key")
		}
		c.Locals(adminLocal, true)
		return c.Next()
	}
}

// OperationTimeout bounds the user context of the request so store calls
// fail with Timeout instead of hanging.
func OperationTimeout(d time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if d <= 0 {
			return c.Next()
		}
		ctx, cancel := context.WithTimeout(c.UserContext(), d)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}
