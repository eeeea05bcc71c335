package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/phofmann/floodgate/internal/models"
)

// ChallengeManager issues and validates the short-lived token that
// carries a login between the password step and the second-factor step.
// Possession of a valid challenge token means "password accepted,
// awaiting second factor" and nothing more.
type ChallengeManager struct {
	secret []byte
	expiry time.Duration
}

type challengeClaims struct {
	AccountType string `json:"account_type"`
	jwt.RegisteredClaims
}

// NewChallengeManager creates a ChallengeManager
func NewChallengeManager(secret string, expiry time.Duration) *ChallengeManager {
	return &ChallengeManager{
		secret: []byte(secret),
		expiry: expiry,
	}
}

// Issue creates a challenge token for an account awaiting its second factor
func (cm *ChallengeManager) Issue(accountID string, accountType models.AccountType) (string, error) {
	now := time.Now()
	claims := challengeClaims{
		AccountType: string(accountType),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cm.expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(cm.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign challenge token: %w", err)
	}

	return signed, nil
}

// Validate parses a challenge token and returns the account it belongs to
func (cm *ChallengeManager) Validate(tokenString string) (string, models.AccountType, error) {
	claims := &challengeClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return cm.secret, nil
	})
	if err != nil || !token.Valid {
		return "", "", models.ErrUnauthorized
	}

	accountType := models.AccountType(claims.AccountType)
	if claims.Subject == "" || !accountType.Valid() {
		return "", "", models.ErrUnauthorized
	}

	return claims.Subject, accountType, nil
}
