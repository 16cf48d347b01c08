package middleware

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

func TestCallerRequiresUserHeader(t *testing.T) {
	app := fiber.New()
	app.Use(Caller())
	app.Get("/me", func(c *fiber.Ctx) error {
		return c.SendString(UserIDFrom(c))
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/me", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected %d got %d", fiber.StatusUnauthorized, resp.StatusCode)
	}

	req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
	req.Header.Set(UserIDHeader, "  u-42 ")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected %d got %d", fiber.StatusOK, resp.StatusCode)
	}
}

func TestCallerIDOutlivesRequest(t *testing.T) {
	// Default config: header values alias buffers that fasthttp reuses.
	app := fiber.New()
	app.Use(Caller())
	var seen []string
	app.Get("/me", func(c *fiber.Ctx) error {
		seen = append(seen, UserIDFrom(c))
		return c.SendStatus(fiber.StatusNoContent)
	})

	for _, uid := range []string{"u1", "u2", "u3"} {
		req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
		req.Header.Set(UserIDHeader, uid)
		if _, err := app.Test(req); err != nil {
			t.Fatalf("app.Test: %v", err)
		}
	}
	want := []string{"u1", "u2", "u3"}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("caller id %d changed after the request: got %q want %q", i, seen[i], want[i])
		}
	}
}

func TestAPIKey(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	app := fiber.New()
	app.Use("/admin", APIKey(string(hash)))
	app.Get("/admin/ping", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	cases := []struct {
		key    string
		status int
	}{
		{"", fiber.StatusUnauthorized},
		{"wrong", fiber.StatusUnauthorized},
		{"s3cret", fiber.StatusNoContent},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(fiber.MethodGet, "/admin/ping", nil)
		if tc.key != "" {
			req.Header.Set(APIKeyHeader, tc.key)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		if resp.StatusCode != tc.status {
			t.Fatalf("key %q: expected %d got %d", tc.key, tc.status, resp.StatusCode)
		}
	}
}

func TestAPIKeyDisabledWithoutHash(t *testing.T) {
	app := fiber.New()
	app.Use(APIKey(""))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	req := httptest.NewRequest(fiber.MethodGet, "/", nil)
	req.Header.Set(APIKeyHeader, "anything")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("expected %d got %d", fiber.StatusForbidden, resp.StatusCode)
	}
}

func TestOperationTimeoutSetsDeadline(t *testing.T) {
	app := fiber.New()
	app.Use(OperationTimeout(50 * time.Millisecond))
	app.Get("/", func(c *fiber.Ctx) error {
		<-c.UserContext().Done()
		if !errors.Is(c.UserContext().Err(), context.DeadlineExceeded) {
			return fiber.NewError(fiber.StatusInternalServerError, "no deadline")
		}
		return c.SendStatus(fiber.StatusGatewayTimeout)
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil), 2000)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusGatewayTimeout {
		t.Fatalf("expected %d got %d", fiber.StatusGatewayTimeout, resp.StatusCode)
	}
}

func TestDepositRateLimit(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	app := fiber.New()
	app.Use(Caller())
	app.Post("/deposits", DepositRateLimit(cache, 2), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusCreated)
	})

	send := func(user string) int {
		req := httptest.NewRequest(fiber.MethodPost, "/deposits", nil)
		req.Header.Set(UserIDHeader, user)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		return resp.StatusCode
	}

	// Stay inside one window.
	if time.Now().Second() >= 58 {
		time.Sleep(3 * time.Second)
	}
	for i := 0; i < 2; i++ {
		if got := send("u1"); got != fiber.StatusCreated {
			t.Fatalf("request %d: expected %d got %d", i, fiber.StatusCreated, got)
		}
	}
	if got := send("u1"); got != fiber.StatusTooManyRequests {
		t.Fatalf("expected %d got %d", fiber.StatusTooManyRequests, got)
	}
	if got := send("u2"); got != fiber.StatusCreated {
		t.Fatalf("other users are not throttled, got %d", got)
	}
}

func TestDepositRateLimitWithoutRedis(t *testing.T) {
	app := fiber.New()
	app.Post("/deposits", DepositRateLimit(nil, 1), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusCreated)
	})
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/deposits", nil))
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		if resp.StatusCode != fiber.StatusCreated {
			t.Fatalf("expected %d got %d", fiber.StatusCreated, resp.StatusCode)
		}
	}
}
