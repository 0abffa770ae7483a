package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

func TestInMemoryLedger_DebitCreditMaintainsBalance(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()

	if err := l.EnsureAccount(ctx, "acct-a"); err != nil {
		t.Fatalf("ensure account: %v", err)
	}
	SeedBalance(l, "acct-a", 10_000)

	bal, err := l.Debit(ctx, "acct-a", "ref-1:debit", 1_500)
	if err != nil {
		t.Fatalf("debit failed: %v", err)
	}
	if bal != 8_500 {
		t.Fatalf("expected balance 8500, got %d", bal)
	}

	bal, err = l.Credit(ctx, "acct-a", "ref-2:credit", 500)
	if err != nil {
		t.Fatalf("credit failed: %v", err)
	}
	if bal != 9_000 {
		t.Fatalf("expected balance 9000, got %d", bal)
	}
}

func TestInMemoryLedger_InsufficientFunds(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "acct-a")
	SeedBalance(l, "acct-a", 1_000)

	bal, err := l.Debit(ctx, "acct-a", "ref-1:debit", 1_500)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if bal != 1_000 {
		t.Fatalf("balance must be untouched, got %d", bal)
	}
}

func TestInMemoryLedger_DuplicateEntry(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "acct-a")
	SeedBalance(l, "acct-a", 5_000)

	if _, err := l.Debit(ctx, "acct-a", "dup:debit", 500); err != nil {
		t.Fatalf("initial debit failed: %v", err)
	}
	bal, err := l.Debit(ctx, "acct-a", "dup:debit", 500)
	if !errors.Is(err, ErrDuplicateEntry) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if bal != 4_500 {
		t.Fatalf("expected balance 4500 after replay, got %d", bal)
	}
}

func TestInMemoryLedger_RejectsInvalidInput(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()

	if _, err := l.Credit(ctx, "missing", "", 100); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected account not found, got %v", err)
	}
	l.EnsureAccount(ctx, "acct-a")
	if _, err := l.Debit(ctx, "acct-a", "", 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if _, err := l.Credit(ctx, "acct-a", "", -5); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestInMemoryLedger_ConcurrentDebitsOnlyOneWins(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "acct-a")
	SeedBalance(l, "acct-a", 1_000)

	var wg sync.WaitGroup
	var wins int32
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := l.Debit(ctx, "acct-a", fmt.Sprintf("race-%d:debit", i), 700); err == nil {
				atomic.AddInt32(&wins, 1)
			} else if !errors.Is(err, ErrInsufficientFunds) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one debit to succeed, got %d", wins)
	}
	bal, _ := l.Balance(ctx, "acct-a")
	if bal != 300 {
		t.Fatalf("expected balance 300, got %d", bal)
	}
}

func TestInMemoryLedger_ConcurrentPostingsConserveTotal(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "acct-a")
	SeedBalance(l, "acct-a", 100_000)

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			if _, err := l.Debit(ctx, "acct-a", fmt.Sprintf("d-%d:debit", i), 700); err != nil {
				t.Errorf("debit %d failed: %v", i, err)
			}
		}(i)
		go func(i int) {
			defer wg.Done()
			if _, err := l.Credit(ctx, "acct-a", fmt.Sprintf("c-%d:credit", i), 200); err != nil {
				t.Errorf("credit %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	bal, _ := l.Balance(ctx, "acct-a")
	if want := int64(100_000 - workers*700 + workers*200); bal != want {
		t.Fatalf("expected balance %d, got %d", want, bal)
	}
}

func TestNetEffectTracksReversal(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "acct-a")
	SeedBalance(l, "acct-a", 5_000)

	l.Debit(ctx, "acct-a", DebitRef("tx-1"), 1_000)
	if got := NetEffect(l, "acct-a", "tx-1"); got != -1_000 {
		t.Fatalf("expected -1000 after debit, got %d", got)
	}
	l.Credit(ctx, "acct-a", ReversalRef("tx-1"), 1_000)
	if got := NetEffect(l, "acct-a", "tx-1"); got != 0 {
		t.Fatalf("expected 0 after reversal, got %d", got)
	}
}
