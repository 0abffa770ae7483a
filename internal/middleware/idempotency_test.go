package middleware

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/billpay/internal/auth"
	"github.com/congo-pay/billpay/internal/logging"
)

// asAccount stands in for JWTAuth in tests.
func asAccount() fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims := &auth.Claims{Role: auth.RoleUser}
		claims.Subject = c.Get("X-Test-Account")
		auth.SetIdentity(c, claims)
		return c.Next()
	}
}

func setupTestApp(t *testing.T, cfg IdempotencyConfig) (*fiber.App, *int32, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}

	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	app := fiber.New()
	logger := logging.Discard()
	var hits int32
	app.Use(asAccount())
	app.Use(Idempotency(cache, cfg, logger))
	app.Post("/resource", func(c *fiber.Ctx) error {
		n := atomic.AddInt32(&hits, 1)
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"ok": true, "n": n})
	})
	app.Post("/fails", func(c *fiber.Ctx) error {
		atomic.AddInt32(&hits, 1)
		return fiber.NewError(fiber.StatusUnauthorized, "wrong pin")
	})

	cleanup := func() {
		cache.Close()
		mr.Close()
	}

	return app, &hits, cleanup
}

func post(t *testing.T, app *fiber.App, path, account, key string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader("{}"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set("X-Test-Account", account)
	if key != "" {
		req.Header.Set(idempotencyKeyHeader, key)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestIdempotencyRequiresHeaderWhenConfigured(t *testing.T) {
	app, _, cleanup := setupTestApp(t, IdempotencyConfig{TTL: time.Minute, RequireKey: true})
	defer cleanup()

	if status, _ := post(t, app, "/resource", "acc-1", ""); status != fiber.StatusBadRequest {
		t.Fatalf("expected %d got %d", fiber.StatusBadRequest, status)
	}
}

func TestIdempotencyOptionalHeaderPassesThrough(t *testing.T) {
	app, hits, cleanup := setupTestApp(t, IdempotencyConfig{TTL: time.Minute})
	defer cleanup()

	post(t, app, "/resource", "acc-1", "")
	post(t, app, "/resource", "acc-1", "")
	if got := atomic.LoadInt32(hits); got != 2 {
		t.Fatalf("expected both requests to reach the handler, got %d", got)
	}
}

func TestIdempotencyReturnsCachedResponse(t *testing.T) {
	app, hits, cleanup := setupTestApp(t, IdempotencyConfig{TTL: time.Minute})
	defer cleanup()

	status, payload := post(t, app, "/resource", "acc-1", "abc123")
	if status != fiber.StatusCreated {
		t.Fatalf("expected status %d got %d", fiber.StatusCreated, status)
	}

	// Second request should return the cached response without invoking handler again.
	status2, cached := post(t, app, "/resource", "acc-1", "abc123")
	if status2 != fiber.StatusCreated {
		t.Fatalf("expected cached status %d got %d", fiber.StatusCreated, status2)
	}
	if cached != payload {
		t.Fatalf("expected cached payload %s got %s", payload, cached)
	}
	if got := atomic.LoadInt32(hits); got != 1 {
		t.Fatalf("expected one handler call, got %d", got)
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(cached), &decoded); err != nil {
		t.Fatalf("cached payload invalid json: %v", err)
	}
}

func TestIdempotencyKeysAreScopedPerAccount(t *testing.T) {
	app, hits, cleanup := setupTestApp(t, IdempotencyConfig{TTL: time.Minute})
	defer cleanup()

	post(t, app, "/resource", "acc-1", "shared")
	post(t, app, "/resource", "acc-2", "shared")
	if got := atomic.LoadInt32(hits); got != 2 {
		t.Fatalf("expected each account to reach the handler, got %d", got)
	}
}

func TestIdempotencyDoesNotCacheErrors(t *testing.T) {
	app, hits, cleanup := setupTestApp(t, IdempotencyConfig{TTL: time.Minute})
	defer cleanup()

	for i := 0; i < 2; i++ {
		if status, _ := post(t, app, "/fails", "acc-1", "retry-me"); status != fiber.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", status)
		}
	}
	if got := atomic.LoadInt32(hits); got != 2 {
		t.Fatalf("expected the retry to reach the handler, got %d", got)
	}
}
