package wallet

import (
	"errors"
	"time"

	"github.com/congo-pay/billpay/internal/provider"
)

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

var (
	// ErrNotFound indicates no account exists for the id.
	ErrNotFound = errors.New("account not found")
	// ErrInvalidOwner rejects an empty owner id.
	ErrInvalidOwner = errors.New("owner id is required")
	// ErrVirtualAccountExists rejects attaching a second, different virtual account.
	ErrVirtualAccountExists = errors.New("account already has a virtual account")
)

// Account is the wallet's metadata. Balance and PIN state are owned by the
// ledger and the PIN authorizer.
type Account struct {
	ID             string
	OwnerID        string
	Status         string
	VirtualAccount *provider.VirtualAccount
	CreatedAt      time.Time
}

// Active reports whether the account may still be debited.
func (a Account) Active() bool { return a.Status == StatusActive }

// Summary is the caller-facing view of an account.
type Summary struct {
	AccountID      string                   `json:"account_id"`
	OwnerID        string                   `json:"owner_id"`
	Status         string                   `json:"status"`
	Balance        int64                    `json:"balance"`
	HasPin         bool                     `json:"has_pin"`
	PinLockedUntil *time.Time               `json:"pin_locked_until,omitempty"`
	VirtualAccount *provider.VirtualAccount `json:"virtual_account,omitempty"`
	AsOf           time.Time                `json:"as_of"`
}
