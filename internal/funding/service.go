package funding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/billpay/internal/ledger"
	"github.com/congo-pay/billpay/internal/locker"
	"github.com/congo-pay/billpay/internal/notification"
	"github.com/congo-pay/billpay/internal/provider"
	"github.com/congo-pay/billpay/internal/transaction"
	"github.com/congo-pay/billpay/internal/wallet"
)

var (
	// ErrInvalidAmount rejects non-positive credits.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrAccountInactive rejects crediting or issuing for a deactivated account.
	ErrAccountInactive = errors.New("account is inactive")
)

// Wallets is the part of the wallet service funding depends on.
type Wallets interface {
	Get(ctx context.Context, id string) (wallet.Account, error)
	AttachVirtualAccount(ctx context.Context, id string, va provider.VirtualAccount) (provider.VirtualAccount, error)
}

// Dependencies wires the funding service.
type Dependencies struct {
	Ledger       ledger.Ledger
	Transactions transaction.Repository
	Wallets      Wallets
	Partner      provider.Partner
	Locker       locker.Locker
	Notifier     notification.Notifier
	Logger       *slog.Logger
}

// Service credits wallets and issues virtual accounts for bank-transfer funding.
type Service struct {
	ledger   ledger.Ledger
	repo     transaction.Repository
	wallets  Wallets
	partner  provider.Partner
	locker   locker.Locker
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService prepares a funding service.
func NewService(deps Dependencies) (*Service, error) {
	if deps.Wallets == nil {
		return nil, fmt.Errorf("wallet service is required")
	}
	if deps.Ledger == nil || deps.Transactions == nil {
		return nil, fmt.Errorf("ledger and transaction repository are required")
	}
	s := &Service{
		ledger:   deps.Ledger,
		repo:     deps.Transactions,
		wallets:  deps.Wallets,
		partner:  deps.Partner,
		locker:   deps.Locker,
		notifier: deps.Notifier,
		logger:   deps.Logger,
	}
	if s.locker == nil {
		s.locker = locker.NewLocal()
	}
	if s.notifier == nil {
		s.notifier = notification.Multi{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// CreditInput describes a credit to a wallet. An empty Reference gets a fresh one.
type CreditInput struct {
	AccountID string
	Amount    int64
	Reference string
	Note      string
	Source    string
}

// CreditResult is the outcome of a credit.
type CreditResult struct {
	Reference string             `json:"reference"`
	Kind      transaction.Kind   `json:"kind"`
	Amount    int64              `json:"amount"`
	Status    transaction.Status `json:"status"`
	Balance   int64              `json:"balance"`
	Replayed  bool               `json:"replayed"`
	CreatedAt time.Time          `json:"created_at"`
}

// Fund records an operator top-up of kind wallet_funding.
func (s *Service) Fund(ctx context.Context, in CreditInput) (CreditResult, error) {
	return s.credit(ctx, transaction.KindWalletFunding, "FUND-", in)
}

// Reward records a referral bonus of kind referral_reward.
func (s *Service) Reward(ctx context.Context, in CreditInput) (CreditResult, error) {
	return s.credit(ctx, transaction.KindReferralReward, "RWD-", in)
}

func (s *Service) credit(ctx context.Context, kind transaction.Kind, prefix string, in CreditInput) (CreditResult, error) {
	if in.Amount <= 0 {
		return CreditResult{}, ErrInvalidAmount
	}
	in.Reference = strings.TrimSpace(in.Reference)
	if in.Reference == "" {
		in.Reference = prefix + uuid.NewString()
	}

	account, err := s.wallets.Get(ctx, in.AccountID)
	if err != nil {
		return CreditResult{}, err
	}

	var (
		out    CreditResult
		outErr error
	)
	lockErr := s.locker.WithLock(ctx, "txn:"+in.Reference, func(ctx context.Context) error {
		out, outErr = s.creditLocked(context.WithoutCancel(ctx), account, kind, in)
		return nil
	})
	if lockErr != nil {
		return CreditResult{}, lockErr
	}
	return out, outErr
}

func (s *Service) creditLocked(ctx context.Context, account wallet.Account, kind transaction.Kind, in CreditInput) (CreditResult, error) {
	want := transaction.Transaction{AccountID: in.AccountID, Kind: kind, Amount: in.Amount}

	record, err := s.repo.Get(ctx, in.Reference)
	switch {
	case err == nil:
		if !record.SameRequest(want) {
			return CreditResult{}, transaction.ErrDuplicateReference
		}
		if record.Status != transaction.StatusPending {
			return s.result(ctx, record, true)
		}
	case errors.Is(err, transaction.ErrNotFound):
		if !account.Active() {
			return CreditResult{}, ErrAccountInactive
		}
		details := map[string]any{}
		if in.Note != "" {
			details["note"] = in.Note
		}
		if in.Source != "" {
			details["source"] = in.Source
		}
		want.Status = transaction.StatusPending
		want.Stage = transaction.StageCreated
		want.Reference = in.Reference
		want.Details = details
		var created bool
		record, created, err = s.repo.InsertOrGet(ctx, want)
		if err != nil {
			return CreditResult{}, fmt.Errorf("record credit: %w", err)
		}
		if !created && record.Status != transaction.StatusPending {
			return s.result(ctx, record, true)
		}
	default:
		return CreditResult{}, err
	}

	if _, err := s.ledger.Credit(ctx, record.AccountID, ledger.CreditRef(record.Reference), record.Amount); err != nil && !errors.Is(err, ledger.ErrDuplicateEntry) {
		return CreditResult{}, fmt.Errorf("credit %s: %w", record.Reference, err)
	}
	updated, err := s.repo.Advance(ctx, record.Reference, transaction.StatusPending, transaction.Update{
		Status: transaction.StatusSuccess,
		Stage:  transaction.StageResolved,
	})
	if err != nil {
		if errors.Is(err, transaction.ErrTerminal) || errors.Is(err, transaction.ErrStaleStatus) {
			current, getErr := s.repo.Get(ctx, record.Reference)
			if getErr != nil {
				return CreditResult{}, getErr
			}
			return s.result(ctx, current, true)
		}
		return CreditResult{}, err
	}

	s.logger.Info("wallet credited",
		slog.String("reference", updated.Reference),
		slog.String("account_id", updated.AccountID),
		slog.String("kind", string(updated.Kind)),
		slog.Int64("amount", updated.Amount),
	)
	if err := s.notifier.Send(ctx, notification.Message{
		Kind:            notification.KindTransactionSuccess,
		AccountID:       updated.AccountID,
		Reference:       updated.Reference,
		TransactionKind: string(updated.Kind),
		Amount:          updated.Amount,
		OccurredAt:      time.Now().UTC(),
	}); err != nil {
		s.logger.Warn("notification failed", slog.String("reference", updated.Reference), slog.Any("error", err))
	}
	return s.result(ctx, updated, false)
}

func (s *Service) result(ctx context.Context, t transaction.Transaction, replayed bool) (CreditResult, error) {
	balance, err := s.ledger.Balance(ctx, t.AccountID)
	if err != nil {
		return CreditResult{}, err
	}
	return CreditResult{
		Reference: t.Reference,
		Kind:      t.Kind,
		Amount:    t.Amount,
		Status:    t.Status,
		Balance:   balance,
		Replayed:  replayed,
		CreatedAt: t.CreatedAt,
	}, nil
}

// VirtualAccountInput carries the identity the partner needs. BVN is optional.
type VirtualAccountInput struct {
	AccountID string
	Name      string
	Email     string
	BVN       string
}

// VirtualAccountReference is the partner reference for an account's virtual
// account. It is stable so repeated issuance returns the same account.
func VirtualAccountReference(accountID string) string {
	return "VA-" + accountID
}

// IssueVirtualAccount reserves a bank account for transfers into the wallet
// and stores it on the account. An account keeps its first virtual account.
func (s *Service) IssueVirtualAccount(ctx context.Context, in VirtualAccountInput) (provider.VirtualAccount, error) {
	if s.partner == nil {
		return provider.VirtualAccount{}, fmt.Errorf("virtual account partner is not configured")
	}
	account, err := s.wallets.Get(ctx, in.AccountID)
	if err != nil {
		return provider.VirtualAccount{}, err
	}
	if account.VirtualAccount != nil {
		return *account.VirtualAccount, nil
	}
	if !account.Active() {
		return provider.VirtualAccount{}, ErrAccountInactive
	}

	reference := VirtualAccountReference(account.ID)
	var issued provider.VirtualAccount
	err = s.locker.WithLock(ctx, "va:"+account.ID, func(ctx context.Context) error {
		va, err := s.partner.IssueVirtualAccount(ctx, reference, provider.Identity{
			Name:  strings.TrimSpace(in.Name),
			Email: strings.TrimSpace(in.Email),
			BVN:   strings.TrimSpace(in.BVN),
		})
		if err != nil {
			return err
		}
		issued, err = s.wallets.AttachVirtualAccount(context.WithoutCancel(ctx), account.ID, va)
		return err
	})
	if err != nil {
		s.logger.Warn("virtual account issuance failed",
			slog.String("account_id", account.ID),
			slog.String("reference", reference),
			slog.Any("error", err),
		)
		return provider.VirtualAccount{}, err
	}
	s.logger.Info("virtual account issued",
		slog.String("account_id", account.ID),
		slog.String("reference", issued.Reference),
		slog.String("bank", issued.BankName),
	)
	return issued, nil
}
