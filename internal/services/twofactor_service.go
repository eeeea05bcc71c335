package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/phofmann/floodgate/internal/models"
	"github.com/phofmann/floodgate/internal/otp"
	pkglogger "github.com/phofmann/floodgate/pkg/logger"
)

// AccountRepository defines the interface for account store operations
type AccountRepository interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByUsername(ctx context.Context, accountType models.AccountType, username string) (*models.Account, error)
	SetSecret(ctx context.Context, id, secret string) error
	SetEnabled(ctx context.Context, id string, enabled bool) error
}

// TwoFactorConfig holds two-factor behavior configuration
type TwoFactorConfig struct {
	SecretLength int
	Discrepancy  int
}

// EnrollmentInfo is surfaced once when a secret is provisioned
type EnrollmentInfo struct {
	Secret          string
	ProvisioningURI string
	QRCode          string
}

// TwoFactorService composes the TOTP engine and the emergency code pool
// behind one per-account contract. Admin and customer accounts live in
// distinct stores but share this behavior.
//
// Enrollment walks NotEnrolled -> SecretProvisioned -> Enrolled; a login
// moves AwaitingSecondFactor to Verified when either the TOTP code or an
// emergency code passes.
type TwoFactorService struct {
	accounts AccountRepository
	codes    *EmergencyCodeService
	engine   *otp.Engine
	audit    *pkglogger.AuditLogger
	logger   *slog.Logger
	config   TwoFactorConfig
}

// NewTwoFactorService creates a TwoFactorService
func NewTwoFactorService(
	accounts AccountRepository,
	codes *EmergencyCodeService,
	engine *otp.Engine,
	audit *pkglogger.AuditLogger,
	logger *slog.Logger,
	config TwoFactorConfig,
) *TwoFactorService {
	return &TwoFactorService{
		accounts: accounts,
		codes:    codes,
		engine:   engine,
		audit:    audit,
		logger:   logger,
		config:   config,
	}
}

// LookupAccount resolves a login identifier within one account type.
// A miss means "no such account", not a failure.
func (s *TwoFactorService) LookupAccount(ctx context.Context, accountType models.AccountType, username string) (*models.Account, error) {
	return s.accounts.GetByUsername(ctx, accountType, username)
}

// BeginEnrollment provisions a fresh secret for an account that has not
// completed setup. Regenerating replaces any earlier, unconfirmed secret
// and invalidates QR codes issued for it.
func (s *TwoFactorService) BeginEnrollment(ctx context.Context, accountID string) (*EnrollmentInfo, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if account.Enrolled() {
		return nil, models.ErrAlreadyEnrolled
	}

	secret, err := s.engine.CreateSecret(s.config.SecretLength)
	if err != nil {
		if errors.Is(err, otp.ErrSecretLength) {
			return nil, models.ErrInvalidArgument
		}
		return nil, err
	}

	if err := s.accounts.SetSecret(ctx, accountID, secret); err != nil {
		return nil, err
	}

	qr, err := s.engine.QRCodePNG(account.Username, secret)
	if err != nil {
		s.logger.Error("failed to render enrollment QR code", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("two-factor secret provisioned",
		slog.String("account_id", accountID),
		slog.String("account_type", string(account.Type)))

	return &EnrollmentInfo{
		Secret:          secret,
		ProvisioningURI: s.engine.ProvisioningURI(account.Username, secret),
		QRCode:          qr,
	}, nil
}

// ConfirmEnrollment flips the account to Enrolled once the user proves
// possession of the provisioned secret with one valid code, and issues
// the initial emergency code batch.
func (s *TwoFactorService) ConfirmEnrollment(ctx context.Context, accountID, code string) ([]string, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if account.Enrolled() {
		return nil, models.ErrAlreadyEnrolled
	}
	if !account.Provisioned() {
		return nil, models.ErrNotEnrolled
	}

	valid, err := s.engine.Verify(account.TOTPSecret, code, s.config.Discrepancy)
	if err != nil {
		s.logger.Error("enrollment code verification error",
			slog.String("account_id", accountID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if !valid {
		s.logger.Warn("invalid code during enrollment confirmation",
			slog.String("account_id", accountID))
		return nil, models.ErrInvalidCode
	}

	if err := s.accounts.SetEnabled(ctx, accountID, true); err != nil {
		return nil, err
	}

	emergencyCodes, err := s.codes.CreateNewCodes(ctx, accountID)
	if err != nil {
		return nil, err
	}

	s.audit.LogAccountAction("two_factor_enrolled", accountID, "", map[string]string{
		"account_type": string(account.Type),
	})

	return emergencyCodes, nil
}

// VerifyLogin settles the second factor of a login attempt. Submissions
// longer than a TOTP code are routed to the emergency code pool,
// everything else to the TOTP engine. Callers receive only pass or fail;
// which path rejected is not distinguishable from the result.
func (s *TwoFactorService) VerifyLogin(ctx context.Context, accountID, code string) (bool, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return false, err
	}

	if !account.Enrolled() {
		return false, models.ErrNotEnrolled
	}

	var valid bool
	if len(code) > otp.Digits {
		valid, err = s.codes.IsValidEmergencyCode(ctx, accountID, code)
		if err != nil {
			return false, err
		}
		if valid {
			s.logger.Info("emergency code consumed", slog.String("account_id", accountID))
		}
	} else {
		valid, err = s.engine.Verify(account.TOTPSecret, code, s.config.Discrepancy)
		if err != nil {
			s.logger.Error("totp verification error",
				slog.String("account_id", accountID),
				slog.Any("error", err))
			return false, models.ErrInternalServer
		}
	}

	s.audit.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "second_factor",
		UserID:    accountID,
		Success:   valid,
	})

	return valid, nil
}

// RegenerateEmergencyCodes replaces the outstanding batch for an
// enrolled account and returns the new plaintext codes.
func (s *TwoFactorService) RegenerateEmergencyCodes(ctx context.Context, accountID string) ([]string, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if !account.Enrolled() {
		return nil, models.ErrNotEnrolled
	}

	return s.codes.CreateNewCodes(ctx, accountID)
}

// Disable turns two-factor off and drops secret and emergency codes
func (s *TwoFactorService) Disable(ctx context.Context, accountID string) error {
	if err := s.accounts.SetEnabled(ctx, accountID, false); err != nil {
		return err
	}

	if err := s.codes.RemoveExistingCodes(ctx, accountID); err != nil {
		return err
	}

	s.audit.LogAccountAction("two_factor_disabled", accountID, "", nil)

	return nil
}
