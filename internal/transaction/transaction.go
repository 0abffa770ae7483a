package transaction

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates no record exists for the reference.
	ErrNotFound = errors.New("transaction not found")

	// ErrDuplicateReference indicates the reference is already bound to a
	// different request.
	ErrDuplicateReference = errors.New("reference already used by a different request")

	// ErrTerminal rejects any change to a success or failed record.
	ErrTerminal = errors.New("transaction is terminal")

	// ErrStaleStatus means the record is no longer in the status the caller
	// expected, usually because another execution already advanced it.
	ErrStaleStatus = errors.New("transaction status changed")
)

// Kind enumerates what a transaction does to the wallet.
type Kind string

const (
	KindAirtime         Kind = "airtime"
	KindData            Kind = "data"
	KindElectricity     Kind = "electricity"
	KindWalletFunding   Kind = "wallet_funding"
	KindProductPurchase Kind = "product_purchase"
	KindReferralReward  Kind = "referral_reward"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindAirtime, KindData, KindElectricity, KindWalletFunding, KindProductPurchase, KindReferralReward:
		return true
	}
	return false
}

// IsDebit reports whether the kind takes money out of the wallet.
func (k Kind) IsDebit() bool {
	switch k {
	case KindAirtime, KindData, KindElectricity, KindProductPurchase:
		return true
	}
	return false
}

// Fulfilled reports whether the kind needs an external provider call.
func (k Kind) Fulfilled() bool {
	switch k {
	case KindAirtime, KindData, KindElectricity:
		return true
	}
	return false
}

// Status is the lifecycle state of a record.
type Status string

const (
	StatusPending     Status = "pending"
	StatusSuccess     Status = "success"
	StatusFailed      Status = "failed"
	StatusNeedsReview Status = "needs_review"
)

// Terminal reports whether the record can no longer change.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Stage is the last saga step completed for a record. It lets a replay
// decide which step to resume from.
type Stage string

const (
	StageCreated        Stage = "created"
	StageDebited        Stage = "debited"
	StageProviderCalled Stage = "provider_called"
	StageResolved       Stage = "resolved"
)

// Transaction is one attempt to move money, keyed by its reference.
type Transaction struct {
	ID        string         `json:"id"`
	AccountID string         `json:"account_id"`
	Kind      Kind           `json:"kind"`
	Amount    int64          `json:"amount"`
	Status    Status         `json:"status"`
	Stage     Stage          `json:"stage"`
	Reference string         `json:"reference"`
	Details   map[string]any `json:"details"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// SameRequest reports whether other describes the request that created t.
func (t Transaction) SameRequest(other Transaction) bool {
	return t.AccountID == other.AccountID && t.Kind == other.Kind && t.Amount == other.Amount
}

// Update describes a conditional change. Empty Status or Stage leave the
// current value; Details are merged key by key.
type Update struct {
	Status  Status
	Stage   Stage
	Details map[string]any
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	AccountID string
	Kind      Kind
	Status    Status
	From      time.Time
	To        time.Time
	Limit     int
}

const (
	defaultLimit = 50
	maxLimit     = 500
)

func (f Filter) limit() int {
	switch {
	case f.Limit <= 0:
		return defaultLimit
	case f.Limit > maxLimit:
		return maxLimit
	default:
		return f.Limit
	}
}

func (f Filter) matches(t Transaction) bool {
	if f.AccountID != "" && t.AccountID != f.AccountID {
		return false
	}
	if f.Kind != "" && t.Kind != f.Kind {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if !f.From.IsZero() && t.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !t.CreatedAt.Before(f.To) {
		return false
	}
	return true
}

// Repository is the append-mostly store of transaction records.
//
// InsertOrGet stores t when its reference is new and otherwise returns the
// existing record with created=false. Advance applies u only while the
// record's status equals from; terminal records are never changed.
type Repository interface {
	InsertOrGet(ctx context.Context, t Transaction) (stored Transaction, created bool, err error)
	Get(ctx context.Context, reference string) (Transaction, error)
	Advance(ctx context.Context, reference string, from Status, u Update) (Transaction, error)
	List(ctx context.Context, f Filter) ([]Transaction, error)
}

func mergeDetails(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func checkAdvance(current Transaction, from Status) error {
	if current.Status.Terminal() {
		return ErrTerminal
	}
	if current.Status != from {
		return ErrStaleStatus
	}
	return nil
}
