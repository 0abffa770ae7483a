package wallet

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/billpay/internal/ledger"
	"github.com/congo-pay/billpay/internal/pin"
	"github.com/congo-pay/billpay/internal/provider"
)

func newTestService() (*Service, ledger.Ledger, *pin.Service) {
	led := ledger.NewInMemory()
	pins := pin.NewService(pin.NewMemoryStore(), pin.DefaultPolicy(), pin.WithHashCost(bcrypt.MinCost))
	return NewService(NewMemoryRepository(), led, pins), led, pins
}

func TestOpenAndSummary(t *testing.T) {
	svc, led, pins := newTestService()
	ctx := context.Background()

	account, err := svc.Open(ctx, OpenInput{OwnerID: "user-42"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !account.Active() {
		t.Fatalf("expected active account, got %s", account.Status)
	}

	summary, err := svc.Summary(ctx, account.ID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.Balance != 0 || summary.HasPin {
		t.Fatalf("expected empty account, got %+v", summary)
	}

	if _, err := led.Credit(ctx, account.ID, "seed:credit", 2_500); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := pins.SetPin(ctx, account.ID, "1234", ""); err != nil {
		t.Fatalf("set pin: %v", err)
	}
	summary, _ = svc.Summary(ctx, account.ID)
	if summary.Balance != 2_500 || !summary.HasPin {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestOpenRequiresOwner(t *testing.T) {
	svc, _, _ := newTestService()
	if _, err := svc.Open(context.Background(), OpenInput{OwnerID: "  "}); !errors.Is(err, ErrInvalidOwner) {
		t.Fatalf("expected invalid owner, got %v", err)
	}
}

func TestDeactivateKeepsBalance(t *testing.T) {
	svc, led, _ := newTestService()
	ctx := context.Background()
	account, _ := svc.Open(ctx, OpenInput{OwnerID: "user-1"})
	led.Credit(ctx, account.ID, "seed:credit", 900)

	deactivated, err := svc.Deactivate(ctx, account.ID)
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if deactivated.Active() {
		t.Fatal("expected inactive account")
	}
	summary, _ := svc.Summary(ctx, account.ID)
	if summary.Balance != 900 || summary.Status != StatusInactive {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if _, err := svc.Deactivate(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAttachVirtualAccountOnce(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	account, _ := svc.Open(ctx, OpenInput{OwnerID: "user-1"})

	va := provider.VirtualAccount{Reference: "VA-" + account.ID, AccountNumber: "7012345678", BankName: "Wema Bank"}
	if _, err := svc.AttachVirtualAccount(ctx, account.ID, va); err != nil {
		t.Fatalf("attach: %v", err)
	}
	again, err := svc.AttachVirtualAccount(ctx, account.ID, va)
	if err != nil || again.AccountNumber != "7012345678" {
		t.Fatalf("expected idempotent attach, got %+v %v", again, err)
	}
	other := va
	other.Reference = "VA-other"
	if _, err := svc.AttachVirtualAccount(ctx, account.ID, other); !errors.Is(err, ErrVirtualAccountExists) {
		t.Fatalf("expected existing virtual account error, got %v", err)
	}

	stored, _ := svc.Get(ctx, account.ID)
	if stored.VirtualAccount == nil || stored.VirtualAccount.Reference != va.Reference {
		t.Fatalf("unexpected stored account %+v", stored.VirtualAccount)
	}
}
