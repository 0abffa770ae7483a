package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/congo-pay/billpay/internal/logging"
)

const reservedBody = `{"requestSuccessful": true, "responseMessage": "success", "responseBody": {
  "accountReference": "VA-acct-1", "accountName": "Ada Obi",
  "accounts": [{"bankName": "Wema Bank", "accountNumber": "7012345678", "accountName": "BillPay-Ada Obi"}]}}`

func TestIssueVirtualAccount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["accountReference"] != "VA-acct-1" || body["contractCode"] != "C-1" || body["bvn"] != "12345678901" {
			t.Errorf("unexpected payload %v", body)
		}
		w.Write([]byte(reservedBody))
	}))
	defer srv.Close()

	p := NewHTTPPartner(PartnerConfig{BaseURL: srv.URL, Token: "t", ContractCode: "C-1", Timeout: time.Second}, logging.Discard())
	va, err := p.IssueVirtualAccount(context.Background(), "VA-acct-1", Identity{Name: "Ada Obi", Email: "ada@example.com", BVN: "12345678901"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if va.AccountNumber != "7012345678" || va.BankName != "Wema Bank" {
		t.Fatalf("unexpected account %+v", va)
	}
}

func TestIssueVirtualAccountFetchesExisting(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"requestSuccessful": false, "responseMessage": "You cannot reserve more than 1 account(s) with the same reference"}`))
			return
		}
		if !strings.HasSuffix(r.URL.Path, "/VA-acct-1") {
			t.Errorf("unexpected fetch path %s", r.URL.Path)
		}
		w.Write([]byte(reservedBody))
	}))
	defer srv.Close()

	p := NewHTTPPartner(PartnerConfig{BaseURL: srv.URL, Timeout: time.Second}, logging.Discard())
	va, err := p.IssueVirtualAccount(context.Background(), "VA-acct-1", Identity{Name: "Ada Obi", Email: "ada@example.com"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if va.AccountNumber != "7012345678" {
		t.Fatalf("unexpected account %+v", va)
	}
}

func TestIssueVirtualAccountValidation(t *testing.T) {
	p := NewHTTPPartner(PartnerConfig{BaseURL: "http://127.0.0.1:0"}, logging.Discard())
	ctx := context.Background()
	if _, err := p.IssueVirtualAccount(ctx, "r", Identity{Email: "a@b.c"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}
	if _, err := p.IssueVirtualAccount(ctx, "r", Identity{Name: "A", Email: "a@b.c", BVN: "123"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected invalid bvn, got %v", err)
	}
}
