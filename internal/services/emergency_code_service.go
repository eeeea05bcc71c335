package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"

	pkgauth "github.com/phofmann/floodgate/pkg/auth"
)

const (
	// EmergencyCodeLength is the fixed plaintext length shown to the user
	EmergencyCodeLength = 16

	// emergencyCodeAlphabet keeps the hex-like shape of historically
	// issued codes while sampling every character from the CSPRNG.
	emergencyCodeAlphabet = "0123456789abcdef"
)

// EmergencyCodeRepository defines the interface for backup code store operations
type EmergencyCodeRepository interface {
	ReplaceBatch(ctx context.Context, accountID string, hashes []string) error
	ListHashes(ctx context.Context, accountID string) ([]string, error)
	DeleteByHash(ctx context.Context, accountID, hash string) (int64, error)
	DeleteAll(ctx context.Context, accountID string) error
}

// EmergencyCodeService maintains the consumable pool of single-use backup
// codes an account falls back to when its TOTP device is unavailable.
type EmergencyCodeService struct {
	repo   EmergencyCodeRepository
	count  int
	logger *slog.Logger
}

// NewEmergencyCodeService creates an EmergencyCodeService issuing count
// codes per batch.
func NewEmergencyCodeService(repo EmergencyCodeRepository, count int, logger *slog.Logger) *EmergencyCodeService {
	return &EmergencyCodeService{
		repo:   repo,
		count:  count,
		logger: logger,
	}
}

// CreateNewCodes generates a fresh batch, persists only the hashes, and
// returns the plaintext codes for one-time display. Any prior batch for
// the account is invalidated in the same operation.
func (s *EmergencyCodeService) CreateNewCodes(ctx context.Context, accountID string) ([]string, error) {
	codes := make([]string, s.count)
	hashes := make([]string, s.count)

	for i := 0; i < s.count; i++ {
		code, err := generateEmergencyCode()
		if err != nil {
			return nil, fmt.Errorf("failed to generate emergency code: %w", err)
		}

		hash, err := pkgauth.HashCode(code)
		if err != nil {
			return nil, fmt.Errorf("failed to hash emergency code: %w", err)
		}

		codes[i] = code
		hashes[i] = hash
	}

	if err := s.repo.ReplaceBatch(ctx, accountID, hashes); err != nil {
		return nil, err
	}

	s.logger.Info("emergency codes issued",
		slog.String("account_id", accountID),
		slog.Int("count", s.count))

	return codes, nil
}

// RemoveExistingCodes deletes all outstanding codes for an account
func (s *EmergencyCodeService) RemoveExistingCodes(ctx context.Context, accountID string) error {
	return s.repo.DeleteAll(ctx, accountID)
}

// IsValidEmergencyCode checks a submitted code against the account's
// stored hashes and consumes it on the first match. An account with no
// outstanding codes simply fails verification. Consumption is a single
// delete keyed by the matched hash, so of two requests racing on the
// same code only one observes success.
func (s *EmergencyCodeService) IsValidEmergencyCode(ctx context.Context, accountID, submitted string) (bool, error) {
	hashes, err := s.repo.ListHashes(ctx, accountID)
	if err != nil {
		return false, err
	}

	for _, hash := range hashes {
		if !pkgauth.CompareCode(hash, submitted) {
			continue
		}

		affected, err := s.repo.DeleteByHash(ctx, accountID, hash)
		if err != nil {
			return false, err
		}
		if affected != 1 {
			// The code still counts as consumed; an unexpected row count
			// is recorded for investigation only.
			s.logger.Warn("emergency code deletion affected unexpected row count",
				slog.String("account_id", accountID),
				slog.Int64("rows_affected", affected))
		}

		return true, nil
	}

	return false, nil
}

// generateEmergencyCode samples each character directly from the CSPRNG
func generateEmergencyCode() (string, error) {
	raw := make([]byte, EmergencyCodeLength)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}

	code := make([]byte, EmergencyCodeLength)
	for i, b := range raw {
		code[i] = emergencyCodeAlphabet[int(b)%len(emergencyCodeAlphabet)]
	}

	return string(code), nil
}
