package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/congo-pay/billpay/internal/logging"
)

func TestBreakerOpensOnIndeterminateOnly(t *testing.T) {
	fails := true
	fake := NewFakeGateway(func(context.Context, Resolved) (Receipt, error) {
		if fails {
			return Receipt{}, &IndeterminateError{Cause: errors.New("timeout")}
		}
		return Receipt{Status: "successful"}, nil
	})
	g := NewBreakerGateway(fake, BreakerConfig{Name: "test", ConsecutiveFailures: 2, OpenTimeout: time.Hour}, logging.Discard())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := g.Fulfill(ctx, airtimeRequest()); !errors.Is(err, ErrIndeterminate) {
			t.Fatalf("call %d: expected indeterminate, got %v", i, err)
		}
	}

	fails = false
	_, err := g.Fulfill(ctx, airtimeRequest())
	var declined *DeclinedError
	if !errors.As(err, &declined) || declined.Reason != "provider unavailable" {
		t.Fatalf("expected open breaker to decline, got %v", err)
	}
	if len(fake.Calls()) != 2 {
		t.Fatalf("open breaker must not reach provider, got %d calls", len(fake.Calls()))
	}
	if g.State() != "open" {
		t.Fatalf("expected open state, got %s", g.State())
	}
}

func TestBreakerIgnoresDeclines(t *testing.T) {
	fake := NewFakeGateway(Decline("invalid number"))
	g := NewBreakerGateway(fake, BreakerConfig{Name: "test", ConsecutiveFailures: 1, OpenTimeout: time.Hour}, logging.Discard())
	for i := 0; i < 3; i++ {
		g.Fulfill(context.Background(), airtimeRequest())
	}
	if len(fake.Calls()) != 3 {
		t.Fatalf("declines must not trip the breaker, got %d calls", len(fake.Calls()))
	}
}
