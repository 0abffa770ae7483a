package pin

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidPinFormat rejects anything other than exactly four digits.
	ErrInvalidPinFormat = errors.New("pin must be exactly 4 digits")
	// ErrPinMismatch reports a wrong current PIN on change.
	ErrPinMismatch = errors.New("pin mismatch")
	// ErrPinNotSet is returned when a PIN-gated action runs before setPin.
	ErrPinNotSet = errors.New("transaction pin not set")
	// ErrPinLocked is matched by *LockedError.
	ErrPinLocked = errors.New("transaction pin locked")
	// ErrAccountNotFound reports an unknown account id.
	ErrAccountNotFound = errors.New("account not found")
)

// LockedError carries how long the lockout still applies.
type LockedError struct {
	Remaining time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("transaction pin locked, retry in %s", e.Remaining.Round(time.Second))
}

// Is lets errors.Is(err, ErrPinLocked) match.
func (e *LockedError) Is(target error) bool { return target == ErrPinLocked }

// Credential is the PIN state stored for an account. Hash is a bcrypt digest;
// the raw PIN never leaves the Service.
type Credential struct {
	AccountID      string
	Hash           []byte
	FailedAttempts int
	LockedUntil    *time.Time
}

// HasPin reports whether a PIN has been set.
func (c Credential) HasPin() bool { return len(c.Hash) > 0 }

// Status is the caller-visible view of a credential.
type Status struct {
	HasPin         bool       `json:"has_pin"`
	FailedAttempts int        `json:"failed_attempts"`
	LockedUntil    *time.Time `json:"locked_until,omitempty"`
}

// Policy configures the lockout state machine.
type Policy struct {
	MaxAttempts int
	Lockout     time.Duration
}

// DefaultPolicy locks for 15 minutes after 5 consecutive failures.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 5, Lockout: 15 * time.Minute}
}
