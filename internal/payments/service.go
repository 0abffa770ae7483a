package payments

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
	"github.com/congo-pay/billpay/internal/pin"
	"github.com/congo-pay/billpay/internal/provider"
	"github.com/congo-pay/billpay/internal/transaction"
	"github.com/congo-pay/billpay/internal/wallet"
)

var (
	// ErrUnauthorized wraps every PIN failure: mismatch, lockout or no PIN set.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidRequest rejects requests the orchestrator cannot run.
	ErrInvalidRequest = errors.New("invalid transaction request")
	// ErrAccountInactive rejects debits against a deactivated account.
	ErrAccountInactive = errors.New("account is inactive")
	// ErrNotUnderReview is returned when resolving a record that is not awaiting review.
	ErrNotUnderReview = errors.New("transaction is not awaiting review")
	// ErrCancelled marks a request abandoned by the caller before any debit.
	ErrCancelled = errors.New("cancelled before debit")
)

// Failure codes stored in transaction details.
const (
	failureInsufficientFunds = "insufficient_funds"
	failureDeclined          = "declined"
	failureCancelled         = "cancelled"
	failureOperator          = "reversed_by_operator"
)

const defaultProviderTimeout = 30 * time.Second

// Accounts is the part of the wallet service the orchestrator reads.
type Accounts interface {
	Get(ctx context.Context, id string) (wallet.Account, error)
}

// Dependencies wires the orchestrator's collaborators.
type Dependencies struct {
	Ledger          ledger.Ledger
	Pins            *pin.Service
	Gateway         provider.Gateway
	Transactions    transaction.Repository
	Accounts        Accounts
	Locker          locker.Locker
	Notifier        notification.Notifier
	Logger          *slog.Logger
	ProviderTimeout time.Duration
}

// Service is the transaction orchestrator. Every debit runs as a saga keyed by
// its reference: record, debit, fulfil, then resolve or compensate.
type Service struct {
	ledger          ledger.Ledger
	pins            *pin.Service
	gateway         provider.Gateway
	repo            transaction.Repository
	accounts        Accounts
	locker          locker.Locker
	notifier        notification.Notifier
	logger          *slog.Logger
	providerTimeout time.Duration
	now             func() time.Time
}

// NewService constructs the orchestrator.
func NewService(deps Dependencies) *Service {
	s := &Service{
		ledger:          deps.Ledger,
		pins:            deps.Pins,
		gateway:         deps.Gateway,
		repo:            deps.Transactions,
		accounts:        deps.Accounts,
		locker:          deps.Locker,
		notifier:        deps.Notifier,
		logger:          deps.Logger,
		providerTimeout: deps.ProviderTimeout,
		now:             time.Now,
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
	if s.providerTimeout <= 0 {
		s.providerTimeout = defaultProviderTimeout
	}
	return s
}

// Params are the kind-specific fields of a request.
type Params struct {
	Phone       string `json:"phone,omitempty"`
	Network     string `json:"network,omitempty"`
	Plan        string `json:"plan,omitempty"`
	Disco       string `json:"disco,omitempty"`
	MeterNumber string `json:"meter_number,omitempty"`
	MeterType   string `json:"meter_type,omitempty"`
	ProductID   string `json:"product_id,omitempty"`
}

func (p Params) fields() map[string]string {
	return map[string]string{
		"phone":        p.Phone,
		"network":      p.Network,
		"plan":         p.Plan,
		"disco":        p.Disco,
		"meter_number": p.MeterNumber,
		"meter_type":   p.MeterType,
		"product_id":   p.ProductID,
	}
}

func (p Params) details() map[string]any {
	out := map[string]any{}
	for k, v := range p.fields() {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// matches reports whether details carry the same parameters as p. Keys added
// later by the saga, such as the receipt, are ignored.
func (p Params) matches(details map[string]any) bool {
	for k, v := range p.fields() {
		stored, _ := details[k].(string)
		if !strings.EqualFold(strings.TrimSpace(stored), strings.TrimSpace(v)) {
			return false
		}
	}
	return true
}

// InitiateInput is one debit request. An empty Reference gets a fresh one.
type InitiateInput struct {
	AccountID string
	Kind      transaction.Kind
	Amount    int64
	PIN       string
	Reference string
	Params    Params
}

// Result is the outcome of a transaction as callers see it.
type Result struct {
	Reference string             `json:"reference"`
	Kind      transaction.Kind   `json:"kind"`
	Amount    int64              `json:"amount"`
	Status    transaction.Status `json:"status"`
	Details   map[string]any     `json:"details"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

func resultOf(t transaction.Transaction) Result {
	return Result{
		Reference: t.Reference,
		Kind:      t.Kind,
		Amount:    t.Amount,
		Status:    t.Status,
		Details:   t.Details,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

// outcomeError reports why a failed record failed, so a replay returns the
// same error as the original call.
func outcomeError(t transaction.Transaction) error {
	if t.Status != transaction.StatusFailed {
		return nil
	}
	code, _ := t.Details["failure_code"].(string)
	reason, _ := t.Details["reason"].(string)
	switch code {
	case failureInsufficientFunds:
		return ledger.ErrInsufficientFunds
	case failureDeclined:
		return &provider.DeclinedError{Reason: reason}
	case failureCancelled:
		return ErrCancelled
	}
	return nil
}

// Initiate runs a debit transaction to a terminal or review state.
//
// Validation, identifier mapping and PIN verification happen before anything
// is written. Once the debit is applied the caller's cancellation is ignored
// and the saga always reaches success, failed or needs_review. Replaying a
// reference returns the stored outcome without a second debit.
func (s *Service) Initiate(ctx context.Context, in InitiateInput) (Result, error) {
	if !in.Kind.IsDebit() {
		return Result{}, fmt.Errorf("%w: kind %q is not a debit", ErrInvalidRequest, in.Kind)
	}
	if in.Amount <= 0 {
		return Result{}, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	in.Reference = strings.TrimSpace(in.Reference)
	if in.Reference == "" {
		in.Reference = "TX-" + uuid.NewString()
	}

	account, err := s.accounts.Get(ctx, in.AccountID)
	if err != nil {
		return Result{}, err
	}

	var (
		out    Result
		outErr error
	)
	lockErr := s.locker.WithLock(ctx, "txn:"+in.Reference, func(ctx context.Context) error {
		out, outErr = s.initiateLocked(ctx, account, in)
		return nil
	})
	if lockErr != nil {
		return Result{}, lockErr
	}
	return out, outErr
}

func (s *Service) initiateLocked(ctx context.Context, account wallet.Account, in InitiateInput) (Result, error) {
	logger := s.logger.With(slog.String("reference", in.Reference), slog.String("account_id", in.AccountID))

	existing, err := s.repo.Get(ctx, in.Reference)
	switch {
	case err == nil:
		logger.Info("replayed transaction", slog.String("status", string(existing.Status)))
		return s.replay(ctx, existing, in)
	case !errors.Is(err, transaction.ErrNotFound):
		return Result{}, err
	}

	if in.Kind.Fulfilled() {
		if _, err := s.gateway.Resolve(providerRequest(in)); err != nil {
			return Result{}, err
		}
	}

	if !account.Active() {
		return Result{}, ErrAccountInactive
	}
	if err := s.authorize(ctx, in.AccountID, in.PIN); err != nil {
		logger.Warn("transaction not authorized", slog.Any("error", err))
		return Result{}, err
	}

	record, created, err := s.repo.InsertOrGet(ctx, transaction.Transaction{
		AccountID: in.AccountID,
		Kind:      in.Kind,
		Amount:    in.Amount,
		Status:    transaction.StatusPending,
		Stage:     transaction.StageCreated,
		Reference: in.Reference,
		Details:   in.Params.details(),
	})
	if err != nil {
		return Result{}, fmt.Errorf("record transaction: %w", err)
	}
	if !created {
		return s.replay(ctx, record, in)
	}
	logger.Info("transaction created", slog.String("kind", string(in.Kind)), slog.Int64("amount", in.Amount))
	return s.run(ctx, record)
}

// replay answers a request whose reference is already stored. The stored
// record is the source of truth; a request that differs from it in any field
// is a reference collision.
func (s *Service) replay(ctx context.Context, t transaction.Transaction, in InitiateInput) (Result, error) {
	candidate := transaction.Transaction{AccountID: in.AccountID, Kind: in.Kind, Amount: in.Amount}
	if !t.SameRequest(candidate) || !in.Params.matches(t.Details) {
		return Result{}, transaction.ErrDuplicateReference
	}
	if t.Status == transaction.StatusPending {
		return s.run(ctx, t)
	}
	return resultOf(t), outcomeError(t)
}

func (s *Service) authorize(ctx context.Context, accountID, candidate string) error {
	ok, err := s.pins.Verify(ctx, accountID, candidate)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if !ok {
		return fmt.Errorf("%w: %w", ErrUnauthorized, pin.ErrPinMismatch)
	}
	return nil
}

// run advances a pending record from its persisted stage. The provider
// request is always rebuilt from the record.
func (s *Service) run(ctx context.Context, t transaction.Transaction) (Result, error) {
	logger := s.logger.With(slog.String("reference", t.Reference), slog.String("account_id", t.AccountID))

	if t.Stage == transaction.StageCreated {
		if err := ctx.Err(); err != nil {
			return s.finish(context.WithoutCancel(ctx), t, transaction.StatusFailed, map[string]any{
				"failure_code": failureCancelled,
				"reason":       "cancelled before debit",
			})
		}

		balance, err := s.ledger.Debit(ctx, t.AccountID, ledger.DebitRef(t.Reference), t.Amount)
		switch {
		case errors.Is(err, ledger.ErrInsufficientFunds):
			logger.Info("debit refused", slog.Int64("amount", t.Amount), slog.Int64("balance", balance))
			return s.finish(context.WithoutCancel(ctx), t, transaction.StatusFailed, map[string]any{
				"failure_code": failureInsufficientFunds,
				"reason":       ledger.ErrInsufficientFunds.Error(),
			})
		case err != nil && !errors.Is(err, ledger.ErrDuplicateEntry):
			return resultOf(t), fmt.Errorf("debit %s: %w", t.Reference, err)
		}

		// The debit is applied; from here the saga must reach a resting state.
		ctx = context.WithoutCancel(ctx)
		debited, err := s.repo.Advance(ctx, t.Reference, transaction.StatusPending, transaction.Update{Stage: transaction.StageDebited})
		if err != nil {
			return s.settled(ctx, t, err)
		}
		t = debited
		logger.Info("account debited", slog.Int64("amount", t.Amount), slog.Int64("balance", balance))
	}
	ctx = context.WithoutCancel(ctx)

	switch t.Stage {
	case transaction.StageDebited:
		if !t.Kind.Fulfilled() {
			return s.finish(ctx, t, transaction.StatusSuccess, nil)
		}
		return s.fulfil(ctx, t, requestFromRecord(t))
	case transaction.StageProviderCalled:
		// A provider call started but its outcome was never recorded.
		return s.finish(ctx, t, transaction.StatusNeedsReview, map[string]any{
			"provider_error": "provider outcome unknown after interruption",
		})
	default:
		return resultOf(t), outcomeError(t)
	}
}

func (s *Service) fulfil(ctx context.Context, t transaction.Transaction, req provider.Request) (Result, error) {
	called, err := s.repo.Advance(ctx, t.Reference, transaction.StatusPending, transaction.Update{Stage: transaction.StageProviderCalled})
	if err != nil {
		return s.settled(ctx, t, err)
	}
	t = called

	callCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	receipt, err := s.gateway.Fulfill(callCtx, req)
	cancel()

	switch {
	case err == nil:
		return s.finish(ctx, t, transaction.StatusSuccess, map[string]any{"receipt": receiptDetails(receipt)})
	case errors.Is(err, provider.ErrDeclined),
		errors.Is(err, provider.ErrUnmappedIdentifier),
		errors.Is(err, provider.ErrInvalidRequest):
		reason := err.Error()
		var declined *provider.DeclinedError
		if errors.As(err, &declined) {
			reason = declined.Reason
		}
		return s.compensate(ctx, t, reason)
	default:
		s.logger.Warn("provider outcome indeterminate",
			slog.String("reference", t.Reference),
			slog.Any("error", err),
		)
		return s.finish(ctx, t, transaction.StatusNeedsReview, map[string]any{"provider_error": err.Error()})
	}
}

// compensate reverses the debit and fails the record. When the reversal
// itself cannot be posted the record goes to review instead, so an operator
// can apply it later.
func (s *Service) compensate(ctx context.Context, t transaction.Transaction, reason string) (Result, error) {
	if _, err := s.ledger.Credit(ctx, t.AccountID, ledger.ReversalRef(t.Reference), t.Amount); err != nil && !errors.Is(err, ledger.ErrDuplicateEntry) {
		s.logger.Error("reversal failed",
			slog.String("reference", t.Reference),
			slog.Any("error", err),
		)
		return s.finish(ctx, t, transaction.StatusNeedsReview, map[string]any{
			"provider_declined": reason,
			"provider_error":    "reversal failed: " + err.Error(),
		})
	}
	return s.finish(ctx, t, transaction.StatusFailed, map[string]any{
		"failure_code": failureDeclined,
		"reason":       reason,
		"refunded":     true,
	})
}

// finish moves a pending record to status and emits the event.
func (s *Service) finish(ctx context.Context, t transaction.Transaction, status transaction.Status, details map[string]any) (Result, error) {
	stage := transaction.StageResolved
	if status == transaction.StatusNeedsReview {
		stage = t.Stage
	}
	updated, err := s.repo.Advance(ctx, t.Reference, transaction.StatusPending, transaction.Update{
		Status:  status,
		Stage:   stage,
		Details: details,
	})
	if err != nil {
		return s.settled(ctx, t, err)
	}
	s.logger.Info("transaction resolved",
		slog.String("reference", updated.Reference),
		slog.String("kind", string(updated.Kind)),
		slog.String("status", string(updated.Status)),
	)
	s.notify(ctx, updated)
	return resultOf(updated), outcomeError(updated)
}

// settled handles a lost race on Advance: another execution already moved the
// record, so its stored state is the answer.
func (s *Service) settled(ctx context.Context, t transaction.Transaction, err error) (Result, error) {
	if errors.Is(err, transaction.ErrTerminal) || errors.Is(err, transaction.ErrStaleStatus) {
		current, getErr := s.repo.Get(ctx, t.Reference)
		if getErr != nil {
			return Result{}, getErr
		}
		return resultOf(current), outcomeError(current)
	}
	return resultOf(t), err
}

func (s *Service) notify(ctx context.Context, t transaction.Transaction) {
	kind := notification.KindTransactionSuccess
	switch t.Status {
	case transaction.StatusFailed:
		kind = notification.KindTransactionFailed
	case transaction.StatusNeedsReview:
		kind = notification.KindTransactionNeedsReview
	}
	reason, _ := t.Details["reason"].(string)
	if reason == "" {
		reason, _ = t.Details["provider_error"].(string)
	}
	err := s.notifier.Send(ctx, notification.Message{
		Kind:            kind,
		AccountID:       t.AccountID,
		Reference:       t.Reference,
		TransactionKind: string(t.Kind),
		Amount:          t.Amount,
		Reason:          reason,
		OccurredAt:      s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("notification failed", slog.String("reference", t.Reference), slog.Any("error", err))
	}
}

// ResolveInput is an operator decision on a record under review.
type ResolveInput struct {
	Reference string
	Outcome   transaction.Status
	Operator  string
	Note      string
}

// Resolve settles a needs_review record. Failed applies the compensating
// credit exactly once; success keeps the debit.
func (s *Service) Resolve(ctx context.Context, in ResolveInput) (Result, error) {
	if in.Outcome != transaction.StatusSuccess && in.Outcome != transaction.StatusFailed {
		return Result{}, fmt.Errorf("%w: outcome must be success or failed", ErrInvalidRequest)
	}

	var (
		out    Result
		outErr error
	)
	lockErr := s.locker.WithLock(ctx, "txn:"+in.Reference, func(ctx context.Context) error {
		out, outErr = s.resolveLocked(context.WithoutCancel(ctx), in)
		return nil
	})
	if lockErr != nil {
		return Result{}, lockErr
	}
	return out, outErr
}

func (s *Service) resolveLocked(ctx context.Context, in ResolveInput) (Result, error) {
	t, err := s.repo.Get(ctx, in.Reference)
	if err != nil {
		return Result{}, err
	}
	if t.Status != transaction.StatusNeedsReview {
		return resultOf(t), ErrNotUnderReview
	}

	details := map[string]any{
		"resolution": map[string]any{
			"outcome":     string(in.Outcome),
			"operator":    in.Operator,
			"note":        in.Note,
			"resolved_at": s.now().UTC().Format(time.RFC3339),
		},
	}
	if in.Outcome == transaction.StatusFailed {
		if _, err := s.ledger.Credit(ctx, t.AccountID, ledger.ReversalRef(t.Reference), t.Amount); err != nil && !errors.Is(err, ledger.ErrDuplicateEntry) {
			return resultOf(t), fmt.Errorf("reverse %s: %w", t.Reference, err)
		}
		details["failure_code"] = failureOperator
		details["reason"] = "reversed after review"
		details["refunded"] = true
	}

	updated, err := s.repo.Advance(ctx, t.Reference, transaction.StatusNeedsReview, transaction.Update{
		Status:  in.Outcome,
		Stage:   transaction.StageResolved,
		Details: details,
	})
	if err != nil {
		return s.settled(ctx, t, err)
	}
	s.logger.Info("review resolved",
		slog.String("reference", updated.Reference),
		slog.String("status", string(updated.Status)),
		slog.String("operator", in.Operator),
	)
	s.notify(ctx, updated)
	return resultOf(updated), nil
}

// Get returns a transaction owned by accountID. An empty accountID skips the
// ownership check.
func (s *Service) Get(ctx context.Context, accountID, reference string) (Result, error) {
	t, err := s.repo.Get(ctx, reference)
	if err != nil {
		return Result{}, err
	}
	if accountID != "" && t.AccountID != accountID {
		return Result{}, transaction.ErrNotFound
	}
	return resultOf(t), nil
}

// History lists transactions matching f.
func (s *Service) History(ctx context.Context, f transaction.Filter) ([]Result, error) {
	records, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(records))
	for _, t := range records {
		out = append(out, resultOf(t))
	}
	return out, nil
}

// Reviews lists records awaiting an operator, newest first.
func (s *Service) Reviews(ctx context.Context, limit int) ([]Result, error) {
	return s.History(ctx, transaction.Filter{Status: transaction.StatusNeedsReview, Limit: limit})
}

func providerRequest(in InitiateInput) provider.Request {
	return provider.Request{
		Kind:        provider.Kind(in.Kind),
		Reference:   in.Reference,
		Amount:      in.Amount,
		Phone:       in.Params.Phone,
		Network:     in.Params.Network,
		Plan:        in.Params.Plan,
		Disco:       in.Params.Disco,
		MeterNumber: in.Params.MeterNumber,
		MeterType:   in.Params.MeterType,
	}
}

// requestFromRecord rebuilds the provider request from stored details.
func requestFromRecord(t transaction.Transaction) provider.Request {
	str := func(key string) string {
		v, _ := t.Details[key].(string)
		return v
	}
	return provider.Request{
		Kind:        provider.Kind(t.Kind),
		Reference:   t.Reference,
		Amount:      t.Amount,
		Phone:       str("phone"),
		Network:     str("network"),
		Plan:        str("plan"),
		Disco:       str("disco"),
		MeterNumber: str("meter_number"),
		MeterType:   str("meter_type"),
	}
}

func receiptDetails(r provider.Receipt) map[string]any {
	out := map[string]any{
		"provider_reference": r.ProviderReference,
		"status":             r.Status,
		"amount":             r.Amount,
	}
	if r.Message != "" {
		out["message"] = r.Message
	}
	if r.Token != "" {
		out["token"] = r.Token
	}
	return out
}
