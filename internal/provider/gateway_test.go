package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/congo-pay/billpay/internal/logging"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc, timeout time.Duration) *HTTPGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPGateway(DefaultCatalog(), HTTPConfig{BaseURL: srv.URL, Token: "secret", Timeout: timeout}, logging.Discard())
}

func airtimeRequest() Request {
	return Request{Kind: KindAirtime, Reference: "ref-1", Amount: 50_000, Phone: "08031234567", Network: "mtn"}
}

func TestFulfillAirtimeSuccess(t *testing.T) {
	var got map[string]any
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/topup/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing bearer token")
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"id": 9911, "Status": "successful", "api_response": "You have topped up 500"}`))
	}, time.Second)

	receipt, err := g.Fulfill(context.Background(), airtimeRequest())
	if err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	if receipt.ProviderReference != "9911" || receipt.Amount != "500.00" {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if got["network"] != "1" || got["amount"] != "500.00" || got["request_id"] != "ref-1" {
		t.Fatalf("unexpected payload %v", got)
	}
}

func TestFulfillElectricityCarriesToken(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if r.URL.Path != "/billpayment/" || body["disco_name"] != "1" || body["MeterType"] != "2" {
			t.Errorf("unexpected request %s %v", r.URL.Path, body)
		}
		w.Write([]byte(`{"id": "e-1", "Status": "successful", "token": "1234-5678-9012"}`))
	}, time.Second)

	receipt, err := g.Fulfill(context.Background(), Request{Kind: KindElectricity, Reference: "ref-2", Amount: 100_000, Disco: "ikeja-electric", MeterNumber: "45012345678", MeterType: "postpaid"})
	if err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	if receipt.Token != "1234-5678-9012" || receipt.ProviderReference != "e-1" {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
}

func TestFulfillClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"failed status", http.StatusOK, `{"Status": "failed", "api_response": "invalid number"}`, ErrDeclined},
		{"client error", http.StatusBadRequest, `{"error": ["insufficient vendor balance"]}`, ErrDeclined},
		{"server error", http.StatusBadGateway, `oops`, ErrIndeterminate},
		{"malformed", http.StatusOK, `<html>`, ErrIndeterminate},
		{"pending", http.StatusOK, `{"Status": "processing"}`, ErrIndeterminate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}, time.Second)
			_, err := g.Fulfill(context.Background(), airtimeRequest())
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestFulfillDeclineReason(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Status": "failed", "api_response": "invalid number"}`))
	}, time.Second)
	_, err := g.Fulfill(context.Background(), airtimeRequest())
	var declined *DeclinedError
	if !errors.As(err, &declined) || declined.Reason != "invalid number" {
		t.Fatalf("expected decline reason, got %v", err)
	}
}

func TestFulfillTimeoutIsIndeterminate(t *testing.T) {
	release := make(chan struct{})
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, 50*time.Millisecond)
	defer close(release)

	_, err := g.Fulfill(context.Background(), airtimeRequest())
	if !errors.Is(err, ErrIndeterminate) {
		t.Fatalf("expected indeterminate, got %v", err)
	}
}

func TestFulfillUnmappedNeverCallsProvider(t *testing.T) {
	var hits int32
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}, time.Second)
	req := airtimeRequest()
	req.Network = "ntel"
	if _, err := g.Fulfill(context.Background(), req); !errors.Is(err, ErrUnmappedIdentifier) {
		t.Fatalf("expected unmapped, got %v", err)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Fatalf("provider must not be called, got %d hits", hits)
	}
}

func TestFulfillUnreachableIsDeclined(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	g := NewHTTPGateway(DefaultCatalog(), HTTPConfig{BaseURL: url, Timeout: time.Second}, logging.Discard())
	if _, err := g.Fulfill(context.Background(), airtimeRequest()); !errors.Is(err, ErrDeclined) {
		t.Fatalf("expected declined for refused connection, got %v", err)
	}
}
