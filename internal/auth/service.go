package auth

import (
	"context"
	"errors"
	"time"
)

// ErrUnknownAccount is returned when a token is requested for a missing account.
var ErrUnknownAccount = errors.New("unknown account")

// AccountLookup reports whether an account exists.
type AccountLookup interface {
	Exists(ctx context.Context, accountID string) (bool, error)
}

// Service issues access tokens for accounts. Login itself belongs to the
// collaborator that owns user identity.
type Service struct {
	secret   []byte
	issuer   string
	ttl      time.Duration
	accounts AccountLookup
	now      func() time.Time
}

// NewService builds a token issuer.
func NewService(secret, issuer string, ttl time.Duration, accounts AccountLookup) *Service {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Service{secret: []byte(secret), issuer: issuer, ttl: ttl, accounts: accounts, now: time.Now}
}

// Token is a signed access token.
type Token struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	Role        string `json:"role"`
}

// Issue signs a token for accountID with the given role.
func (s *Service) Issue(ctx context.Context, accountID, role string) (Token, error) {
	if role == "" {
		role = RoleUser
	}
	if role != RoleAdmin {
		ok, err := s.accounts.Exists(ctx, accountID)
		if err != nil {
			return Token{}, err
		}
		if !ok {
			return Token{}, ErrUnknownAccount
		}
	}
	signed, err := SignHS256(newClaims(accountID, role, s.issuer, s.now(), s.ttl), s.secret)
	if err != nil {
		return Token{}, err
	}
	return Token{AccessToken: signed, ExpiresIn: int64(s.ttl.Seconds()), Role: role}, nil
}

// Verify parses a bearer token.
func (s *Service) Verify(token string) (*Claims, error) {
	return ParseAndVerifyHS256(token, s.secret)
}
