package pin

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Service authorizes PIN-gated actions. State machine per account:
// no pin -> pin set -> locked (after MaxAttempts failures) -> pin set once the
// lockout window passes.
type Service struct {
	store  Store
	policy Policy
	now    func() time.Time
	cost   int
}

// Option customizes a Service.
type Option func(*Service)

// WithClock swaps the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithHashCost sets the bcrypt cost used when storing new PINs.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// NewService creates a PIN authorizer over the given store.
func NewService(store Store, policy Policy, opts ...Option) *Service {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultPolicy().MaxAttempts
	}
	if policy.Lockout <= 0 {
		policy.Lockout = DefaultPolicy().Lockout
	}
	s := &Service{store: store, policy: policy, now: time.Now, cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureAccount initializes an empty credential for a new account.
func (s *Service) EnsureAccount(ctx context.Context, accountID string) error {
	return s.store.EnsureAccount(ctx, accountID)
}

// SetPin stores a new PIN. When the account already has one, currentPin must
// verify first; a wrong currentPin counts as a failed attempt.
func (s *Service) SetPin(ctx context.Context, accountID, newPin, currentPin string) error {
	if !validFormat(newPin) {
		return ErrInvalidPinFormat
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPin), s.cost)
	if err != nil {
		return err
	}

	var outcome error
	err = s.store.Update(ctx, accountID, func(c *Credential) error {
		now := s.now()
		if c.HasPin() {
			if err := s.checkLock(c, now); err != nil {
				return err
			}
			if !matches(c.Hash, currentPin) {
				s.registerFailure(c, now)
				outcome = ErrPinMismatch
				return nil
			}
		}
		c.Hash = hash
		c.FailedAttempts = 0
		c.LockedUntil = nil
		return nil
	})
	if err != nil {
		return err
	}
	return outcome
}

// Verify compares candidate with the stored hash. A mismatch returns false and
// counts toward the lockout; reaching MaxAttempts locks the PIN for the
// lockout window and resets the counter. While locked every call fails with
// *LockedError, even with the correct PIN.
func (s *Service) Verify(ctx context.Context, accountID, candidate string) (bool, error) {
	var ok bool
	err := s.store.Update(ctx, accountID, func(c *Credential) error {
		if !c.HasPin() {
			return ErrPinNotSet
		}
		now := s.now()
		if err := s.checkLock(c, now); err != nil {
			return err
		}
		if !matches(c.Hash, candidate) {
			s.registerFailure(c, now)
			return nil
		}
		c.FailedAttempts = 0
		ok = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Reset clears the PIN so a fresh SetPin is needed before further PIN-gated
// operations.
func (s *Service) Reset(ctx context.Context, accountID string) error {
	return s.store.Update(ctx, accountID, func(c *Credential) error {
		c.Hash = nil
		c.FailedAttempts = 0
		c.LockedUntil = nil
		return nil
	})
}

// Status reports whether a PIN is set and any active lockout.
func (s *Service) Status(ctx context.Context, accountID string) (Status, error) {
	c, err := s.store.Get(ctx, accountID)
	if err != nil {
		return Status{}, err
	}
	st := Status{HasPin: c.HasPin(), FailedAttempts: c.FailedAttempts}
	if c.LockedUntil != nil && c.LockedUntil.After(s.now()) {
		st.LockedUntil = c.LockedUntil
	}
	return st, nil
}

// checkLock fails while the lockout is active and clears an expired one.
func (s *Service) checkLock(c *Credential, now time.Time) error {
	if c.LockedUntil == nil {
		return nil
	}
	if now.Before(*c.LockedUntil) {
		return &LockedError{Remaining: c.LockedUntil.Sub(now)}
	}
	c.LockedUntil = nil
	c.FailedAttempts = 0
	return nil
}

func (s *Service) registerFailure(c *Credential, now time.Time) {
	c.FailedAttempts++
	if c.FailedAttempts >= s.policy.MaxAttempts {
		until := now.Add(s.policy.Lockout).UTC()
		c.LockedUntil = &until
		c.FailedAttempts = 0
	}
}

func matches(hash []byte, candidate string) bool {
	if !validFormat(candidate) {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(candidate)) == nil
}

func validFormat(p string) bool {
	if len(p) != 4 {
		return false
	}
	for i := 0; i < len(p); i++ {
		if p[i] < '0' || p[i] > '9' {
			return false
		}
	}
	return true
}
