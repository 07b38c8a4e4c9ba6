package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// State purposes
const (
	PurposeOAuth   = "oauth"
	PurposeWebhook = "webhook"
)

const stateIssuer = "interview-scheduler"

var ErrInvalidState = errors.New("invalid or expired state")

// StateClaims is carried through the provider redirect (or webhook channel token)
// so the callback can be matched to a user without a server-side session.
type StateClaims struct {
	Provider string `json:"prv"`
	Purpose  string `json:"pur"`
	jwt.RegisteredClaims
}

// StateSigner issues and verifies HS256 state tokens.
type StateSigner struct {
	secret []byte
	now    func() time.Time
}

func NewStateSigner(secret []byte) *StateSigner {
	return &StateSigner{secret: secret, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (s *StateSigner) WithClock(now func() time.Time) *StateSigner {
	s.now = now
	return s
}

// Sign encodes userID for the given provider and purpose.
func (s *StateSigner) Sign(userID, provider, purpose string, ttl time.Duration) (string, error) {
	if len(s.secret) == 0 {
		return "", errors.New("state signer: secret not configured")
	}
	now := s.now()
	claims := StateClaims{
		Provider: provider,
		Purpose:  purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    stateIssuer,
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify returns the user ID encoded in state.
func (s *StateSigner) Verify(state, provider, purpose string) (string, error) {
	claims := &StateClaims{}
	_, err := jwt.ParseWithClaims(state, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(stateIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if claims.Provider != provider || claims.Purpose != purpose || claims.Subject == "" {
		return "", ErrInvalidState
	}
	return claims.Subject, nil
}
