package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Gateway fulfils bill-payment requests through an external provider.
// Fulfill returns a Receipt on success, a *DeclinedError when the provider
// definitely rejected the request and an *IndeterminateError when the outcome
// cannot be confirmed either way.
type Gateway interface {
	Resolve(req Request) (Resolved, error)
	Fulfill(ctx context.Context, req Request) (Receipt, error)
}

// HTTPConfig configures the VTU HTTP client.
type HTTPConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// HTTPGateway talks JSON to the VTU provider.
type HTTPGateway struct {
	catalog Catalog
	cfg     HTTPConfig
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPGateway builds the VTU client. The timeout bounds every call; when it
// elapses the outcome is indeterminate.
func NewHTTPGateway(catalog Catalog, cfg HTTPConfig, logger *slog.Logger) *HTTPGateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &HTTPGateway{
		catalog: catalog,
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
}

// Resolve maps identifiers through the catalog.
func (g *HTTPGateway) Resolve(req Request) (Resolved, error) {
	return g.catalog.Resolve(req)
}

type topupPayload struct {
	Network      string `json:"network"`
	Amount       string `json:"amount"`
	MobileNumber string `json:"mobile_number"`
	Ported       bool   `json:"Ported_number"`
	AirtimeType  string `json:"airtime_type"`
	RequestID    string `json:"request_id"`
}

type dataPayload struct {
	Network      string `json:"network"`
	MobileNumber string `json:"mobile_number"`
	Plan         string `json:"plan"`
	Ported       bool   `json:"Ported_number"`
	RequestID    string `json:"request_id"`
}

type billPayload struct {
	DiscoName   string `json:"disco_name"`
	Amount      string `json:"amount"`
	MeterNumber string `json:"meter_number"`
	MeterType   string `json:"MeterType"`
	RequestID   string `json:"request_id"`
}

type vtuResponse struct {
	ID          json.RawMessage `json:"id"`
	Status      string          `json:"Status"`
	APIResponse string          `json:"api_response"`
	Message     string          `json:"message"`
	Token       string          `json:"token"`
	Error       json.RawMessage `json:"error"`
}

// Fulfill resolves the request and performs the provider call.
func (g *HTTPGateway) Fulfill(ctx context.Context, req Request) (Receipt, error) {
	resolved, err := g.catalog.Resolve(req)
	if err != nil {
		return Receipt{}, err
	}

	path, payload := g.payload(resolved)
	body, err := json.Marshal(payload)
	if err != nil {
		return Receipt{}, fmt.Errorf("encode %s payload: %w", req.Kind, err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return Receipt{}, fmt.Errorf("build provider request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.cfg.Token)

	start := time.Now()
	resp, err := g.client.Do(httpReq)
	if err != nil {
		outcome := classifyTransportError(err)
		g.logger.Warn("provider call failed",
			slog.String("reference", req.Reference),
			slog.String("kind", string(req.Kind)),
			slog.Duration("duration", time.Since(start)),
			slog.Any("error", outcome),
		)
		return Receipt{}, outcome
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Receipt{}, &IndeterminateError{Cause: fmt.Errorf("read provider response: %w", err)}
	}

	receipt, outcome := classifyResponse(resp.StatusCode, raw, resolved)
	g.logger.Info("provider call completed",
		slog.String("reference", req.Reference),
		slog.String("kind", string(req.Kind)),
		slog.Int("http_status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
		slog.Bool("fulfilled", outcome == nil),
	)
	return receipt, outcome
}

func (g *HTTPGateway) payload(r Resolved) (string, any) {
	switch r.Kind {
	case KindAirtime:
		return "/topup/", topupPayload{
			Network:      r.NetworkCode,
			Amount:       MajorUnits(r.Amount),
			MobileNumber: r.Phone,
			Ported:       true,
			AirtimeType:  "VTU",
			RequestID:    r.Reference,
		}
	case KindData:
		return "/data/", dataPayload{
			Network:      r.NetworkCode,
			MobileNumber: r.Phone,
			Plan:         r.PlanCode,
			Ported:       true,
			RequestID:    r.Reference,
		}
	default:
		return "/billpayment/", billPayload{
			DiscoName:   r.DiscoCode,
			Amount:      MajorUnits(r.Amount),
			MeterNumber: r.MeterNumber,
			MeterType:   r.MeterTypeCode,
			RequestID:   r.Reference,
		}
	}
}

// classifyTransportError separates requests that never left the process
// (dial failures) from ones that may have reached the provider.
func classifyTransportError(err error) error {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return &DeclinedError{Reason: "provider unreachable"}
	}
	return &IndeterminateError{Cause: err}
}

func classifyResponse(status int, raw []byte, r Resolved) (Receipt, error) {
	switch {
	case status >= 500:
		return Receipt{}, &IndeterminateError{Cause: fmt.Errorf("provider returned %d", status)}
	case status >= 400:
		return Receipt{}, &DeclinedError{Reason: declineReason(raw, status)}
	}

	var body vtuResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return Receipt{}, &IndeterminateError{Cause: fmt.Errorf("malformed provider response: %w", err)}
	}

	switch strings.ToLower(strings.TrimSpace(body.Status)) {
	case "successful", "success", "completed":
		return Receipt{
			ProviderReference: rawID(body.ID),
			Status:            "successful",
			Message:           firstNonEmpty(body.APIResponse, body.Message),
			Token:             body.Token,
			Amount:            MajorUnits(r.Amount),
		}, nil
	case "failed", "fail", "declined":
		return Receipt{}, &DeclinedError{Reason: firstNonEmpty(body.APIResponse, body.Message, errorText(body.Error), "declined by provider")}
	default:
		return Receipt{}, &IndeterminateError{Cause: fmt.Errorf("provider status %q", body.Status)}
	}
}

func declineReason(raw []byte, status int) string {
	var body vtuResponse
	if err := json.Unmarshal(raw, &body); err == nil {
		if reason := firstNonEmpty(body.APIResponse, body.Message, errorText(body.Error)); reason != "" {
			return reason
		}
	}
	return "provider returned " + strconv.Itoa(status)
}

// errorText flattens the provider's error field, which is either a string or
// a list of strings.
func errorText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, "; ")
	}
	return ""
}

func rawID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
