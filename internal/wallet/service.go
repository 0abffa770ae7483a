package wallet

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/billpay/internal/ledger"
	"github.com/congo-pay/billpay/internal/pin"
	"github.com/congo-pay/billpay/internal/provider"
)

// Service exposes account lifecycle operations.
type Service struct {
	repo   Repository
	ledger ledger.Ledger
	pins   *pin.Service
}

// NewService builds a wallet service instance.
func NewService(repo Repository, ledger ledger.Ledger, pins *pin.Service) *Service {
	return &Service{repo: repo, ledger: ledger, pins: pins}
}

// OpenInput captures data required to open an account.
type OpenInput struct {
	OwnerID string
}

// Open provisions an account with a zero balance and no PIN.
func (s *Service) Open(ctx context.Context, input OpenInput) (Account, error) {
	owner := strings.TrimSpace(input.OwnerID)
	if owner == "" {
		return Account{}, ErrInvalidOwner
	}

	account := Account{
		ID:        uuid.New().String(),
		OwnerID:   owner,
		Status:    StatusActive,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, account); err != nil {
		return Account{}, err
	}
	if err := s.ledger.EnsureAccount(ctx, account.ID); err != nil {
		return Account{}, err
	}
	if err := s.pins.EnsureAccount(ctx, account.ID); err != nil {
		return Account{}, err
	}
	return account, nil
}

// Get retrieves account metadata.
func (s *Service) Get(ctx context.Context, id string) (Account, error) {
	return s.repo.Get(ctx, id)
}

// Deactivate stops further debits. The record and its balance are kept.
func (s *Service) Deactivate(ctx context.Context, id string) (Account, error) {
	if err := s.repo.SetStatus(ctx, id, StatusInactive); err != nil {
		return Account{}, err
	}
	return s.repo.Get(ctx, id)
}

// AttachVirtualAccount persists an issued virtual account on the account.
func (s *Service) AttachVirtualAccount(ctx context.Context, id string, va provider.VirtualAccount) (provider.VirtualAccount, error) {
	return s.repo.AttachVirtualAccount(ctx, id, va)
}

// Summary combines metadata, balance and PIN state.
func (s *Service) Summary(ctx context.Context, id string) (Summary, error) {
	account, err := s.repo.Get(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	balance, err := s.ledger.Balance(ctx, account.ID)
	if err != nil {
		return Summary{}, err
	}
	status, err := s.pins.Status(ctx, account.ID)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		AccountID:      account.ID,
		OwnerID:        account.OwnerID,
		Status:         account.Status,
		Balance:        balance,
		HasPin:         status.HasPin,
		PinLockedUntil: status.LockedUntil,
		VirtualAccount: account.VirtualAccount,
		AsOf:           time.Now().UTC(),
	}, nil
}

// Exists reports whether an account has been opened under id.
func (s *Service) Exists(ctx context.Context, id string) (bool, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
