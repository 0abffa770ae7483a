package middleware

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/billpay/internal/auth"
	"github.com/congo-pay/billpay/internal/logging"
)

type knownAccounts map[string]bool

func (k knownAccounts) Exists(_ context.Context, id string) (bool, error) {
	return k[id], nil
}

func newAuthApp(t *testing.T, tokens *auth.Service, accounts auth.AccountLookup) *fiber.App {
	t.Helper()
	app := fiber.New()
	app.Use(JWTAuth(tokens, accounts))
	app.Get("/me", func(c *fiber.Ctx) error {
		return c.SendString(auth.AccountID(c))
	})
	app.Get("/admin", RequireRole(auth.RoleAdmin), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func get(t *testing.T, app *fiber.App, path, token string) int {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodGet, path, nil)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestJWTAuth(t *testing.T) {
	accounts := knownAccounts{"acc-1": true}
	tokens := auth.NewService("test-secret", "billpay", time.Hour, accounts)
	app := newAuthApp(t, tokens, accounts)
	ctx := context.Background()

	user, err := tokens.Issue(ctx, "acc-1", auth.RoleUser)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	admin, err := tokens.Issue(ctx, "ops", auth.RoleAdmin)
	if err != nil {
		t.Fatalf("issue admin: %v", err)
	}

	if status := get(t, app, "/me", ""); status != fiber.StatusUnauthorized {
		t.Fatalf("missing token: expected 401, got %d", status)
	}
	if status := get(t, app, "/me", "garbage"); status != fiber.StatusUnauthorized {
		t.Fatalf("bad token: expected 401, got %d", status)
	}
	if status := get(t, app, "/me", user.AccessToken); status != fiber.StatusOK {
		t.Fatalf("user token: expected 200, got %d", status)
	}
	if status := get(t, app, "/admin", user.AccessToken); status != fiber.StatusForbidden {
		t.Fatalf("user on admin route: expected 403, got %d", status)
	}
	if status := get(t, app, "/admin", admin.AccessToken); status != fiber.StatusNoContent {
		t.Fatalf("admin token: expected 204, got %d", status)
	}

	delete(accounts, "acc-1")
	if status := get(t, app, "/me", user.AccessToken); status != fiber.StatusUnauthorized {
		t.Fatalf("removed account: expected 401, got %d", status)
	}
}

func TestPinAttemptRateLimit(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	app := fiber.New()
	app.Use(asAccount())
	app.Post("/pin/verify", PinAttemptRateLimit(cache, 2, logging.Discard()), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	for i, want := range []int{fiber.StatusNoContent, fiber.StatusNoContent, fiber.StatusTooManyRequests} {
		if status, _ := post(t, app, "/pin/verify", "acc-1", ""); status != want {
			t.Fatalf("attempt %d: expected %d, got %d", i+1, want, status)
		}
	}
	if status, _ := post(t, app, "/pin/verify", "acc-2", ""); status != fiber.StatusNoContent {
		t.Fatalf("other account must not be limited, got %d", status)
	}

	mr.FastForward(time.Minute + time.Second)
	if status, _ := post(t, app, "/pin/verify", "acc-1", ""); status != fiber.StatusNoContent {
		t.Fatalf("window should reset, got %d", status)
	}
}

func TestPinAttemptRateLimitWithoutRedis(t *testing.T) {
	app := fiber.New()
	app.Post("/pin/verify", PinAttemptRateLimit(nil, 1, logging.Discard()), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	for i := 0; i < 3; i++ {
		if status, _ := post(t, app, "/pin/verify", "acc-1", ""); status != fiber.StatusNoContent {
			t.Fatalf("expected pass-through, got %d", status)
		}
	}
}
