package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Identity is what the payment partner needs to reserve an account.
type Identity struct {
	Name  string
	Email string
	BVN   string
}

// VirtualAccount is a bank account reserved for wallet funding.
type VirtualAccount struct {
	Reference     string `json:"reference"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
	BankName      string `json:"bank_name"`
}

// Partner issues virtual bank accounts. Issue is idempotent on reference.
type Partner interface {
	IssueVirtualAccount(ctx context.Context, reference string, id Identity) (VirtualAccount, error)
}

// PartnerConfig configures the reserved-accounts API client.
type PartnerConfig struct {
	BaseURL      string
	Token        string
	ContractCode string
	Currency     string
	Timeout      time.Duration
}

// HTTPPartner calls the payment partner's reserved-account endpoints.
type HTTPPartner struct {
	cfg    PartnerConfig
	client *http.Client
	logger *slog.Logger
}

// NewHTTPPartner builds the partner client.
func NewHTTPPartner(cfg PartnerConfig, logger *slog.Logger) *HTTPPartner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Currency == "" {
		cfg.Currency = "NGN"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &HTTPPartner{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}, logger: logger}
}

type reserveRequest struct {
	AccountReference     string `json:"accountReference"`
	AccountName          string `json:"accountName"`
	CurrencyCode         string `json:"currencyCode"`
	ContractCode         string `json:"contractCode"`
	CustomerEmail        string `json:"customerEmail"`
	CustomerName         string `json:"customerName"`
	BVN                  string `json:"bvn,omitempty"`
	GetAllAvailableBanks bool   `json:"getAllAvailableBanks"`
}

type reserveResponse struct {
	RequestSuccessful bool   `json:"requestSuccessful"`
	ResponseMessage   string `json:"responseMessage"`
	ResponseBody      struct {
		AccountReference string `json:"accountReference"`
		AccountName      string `json:"accountName"`
		Accounts         []struct {
			BankName      string `json:"bankName"`
			AccountNumber string `json:"accountNumber"`
			AccountName   string `json:"accountName"`
		} `json:"accounts"`
	} `json:"responseBody"`
}

// IssueVirtualAccount reserves an account under reference. When the partner
// reports the reference already exists the existing account is fetched.
func (p *HTTPPartner) IssueVirtualAccount(ctx context.Context, reference string, id Identity) (VirtualAccount, error) {
	if strings.TrimSpace(id.Name) == "" || strings.TrimSpace(id.Email) == "" {
		return VirtualAccount{}, invalid("name and email are required")
	}
	if id.BVN != "" && !allDigits(id.BVN, 11) {
		return VirtualAccount{}, invalid("bvn must be 11 digits")
	}

	payload := reserveRequest{
		AccountReference:     reference,
		AccountName:          id.Name,
		CurrencyCode:         p.cfg.Currency,
		ContractCode:         p.cfg.ContractCode,
		CustomerEmail:        id.Email,
		CustomerName:         id.Name,
		BVN:                  id.BVN,
		GetAllAvailableBanks: true,
	}

	status, body, err := p.do(ctx, http.MethodPost, "/api/v2/bank-transfer/reserved-accounts", payload)
	if err != nil {
		return VirtualAccount{}, err
	}
	if status == http.StatusConflict || (status >= 400 && status < 500 && strings.Contains(strings.ToLower(body.ResponseMessage), "same reference")) {
		p.logger.Info("virtual account already reserved, fetching", slog.String("reference", reference))
		status, body, err = p.do(ctx, http.MethodGet, "/api/v2/bank-transfer/reserved-accounts/"+url.PathEscape(reference), nil)
		if err != nil {
			return VirtualAccount{}, err
		}
	}
	if status >= 400 || !body.RequestSuccessful {
		return VirtualAccount{}, &DeclinedError{Reason: firstNonEmpty(body.ResponseMessage, fmt.Sprintf("partner returned %d", status))}
	}
	if len(body.ResponseBody.Accounts) == 0 {
		return VirtualAccount{}, &IndeterminateError{Cause: fmt.Errorf("partner response has no accounts")}
	}

	acct := body.ResponseBody.Accounts[0]
	return VirtualAccount{
		Reference:     firstNonEmpty(body.ResponseBody.AccountReference, reference),
		AccountNumber: acct.AccountNumber,
		AccountName:   firstNonEmpty(acct.AccountName, body.ResponseBody.AccountName),
		BankName:      acct.BankName,
	}, nil
}

func (p *HTTPPartner) do(ctx context.Context, method, path string, payload any) (int, reserveResponse, error) {
	var reader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, reserveResponse{}, err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, reserveResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.Token)

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, reserveResponse{}, classifyTransportError(err)
	}
	defer resp.Body.Close()

	var body reserveResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		if resp.StatusCode >= 500 {
			return 0, reserveResponse{}, &IndeterminateError{Cause: fmt.Errorf("partner returned %d", resp.StatusCode)}
		}
		return 0, reserveResponse{}, &IndeterminateError{Cause: fmt.Errorf("malformed partner response: %w", err)}
	}
	if resp.StatusCode >= 500 {
		return 0, reserveResponse{}, &IndeterminateError{Cause: fmt.Errorf("partner returned %d", resp.StatusCode)}
	}
	return resp.StatusCode, body, nil
}

func allDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
