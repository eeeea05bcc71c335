package services_test

import (
	"context"
	"strings"
	"testing"

	"github.com/phofmann/floodgate/internal/models"
	"github.com/phofmann/floodgate/internal/otp"
	"github.com/phofmann/floodgate/internal/services"
	pkglogger "github.com/phofmann/floodgate/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockAccountRepository implements AccountRepository for testing
type MockAccountRepository struct {
	accounts map[string]*models.Account
}

func NewMockAccountRepository(accounts ...*models.Account) *MockAccountRepository {
	repo := &MockAccountRepository{accounts: make(map[string]*models.Account)}
	for _, account := range accounts {
		copied := *account
		repo.accounts[account.ID] = &copied
	}
	return repo
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	account, ok := m.accounts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *account
	return &copied, nil
}

func (m *MockAccountRepository) GetByUsername(ctx context.Context, accountType models.AccountType, username string) (*models.Account, error) {
	for _, account := range m.accounts {
		if account.Type == accountType && account.Username == username {
			copied := *account
			return &copied, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) SetSecret(ctx context.Context, id, secret string) error {
	account, ok := m.accounts[id]
	if !ok {
		return models.ErrNotFound
	}
	account.TOTPSecret = secret
	account.TOTPEnabled = false
	return nil
}

func (m *MockAccountRepository) SetEnabled(ctx context.Context, id string, enabled bool) error {
	account, ok := m.accounts[id]
	if !ok {
		return models.ErrNotFound
	}
	account.TOTPEnabled = enabled
	if !enabled {
		account.TOTPSecret = ""
	}
	return nil
}

func newTwoFactorService(t *testing.T, accounts *MockAccountRepository) *services.TwoFactorService {
	t.Helper()
	logger := testLogger()
	codes := services.NewEmergencyCodeService(NewMockEmergencyCodeRepository(), 2, logger)
	return services.NewTwoFactorService(
		accounts,
		codes,
		otp.NewEngine("Floodgate"),
		pkglogger.NewAuditLogger(logger),
		logger,
		services.TwoFactorConfig{SecretLength: 16, Discrepancy: 1},
	)
}

func adminAccount() *models.Account {
	return &models.Account{
		ID:       "account-1",
		Type:     models.AccountTypeAdmin,
		Username: "jdoe",
		Email:    "jdoe@example.com",
	}
}

func TestTwoFactorService_BeginEnrollment(t *testing.T) {
	accounts := NewMockAccountRepository(adminAccount())
	service := newTwoFactorService(t, accounts)

	info, err := service.BeginEnrollment(context.Background(), "account-1")
	require.NoError(t, err)

	assert.Len(t, info.Secret, 16)
	assert.True(t, strings.HasPrefix(info.ProvisioningURI, "otpauth://totp/"))
	assert.Contains(t, info.ProvisioningURI, "secret="+info.Secret)
	assert.True(t, strings.HasPrefix(info.QRCode, "data:image/png;base64,"))

	// The secret is provisioned but not yet active
	stored, err := accounts.GetByID(context.Background(), "account-1")
	require.NoError(t, err)
	assert.Equal(t, info.Secret, stored.TOTPSecret)
	assert.False(t, stored.TOTPEnabled)
}

func TestTwoFactorService_BeginEnrollment_ReplacesUnconfirmedSecret(t *testing.T) {
	accounts := NewMockAccountRepository(adminAccount())
	service := newTwoFactorService(t, accounts)
	ctx := context.Background()

	first, err := service.BeginEnrollment(ctx, "account-1")
	require.NoError(t, err)

	second, err := service.BeginEnrollment(ctx, "account-1")
	require.NoError(t, err)
	assert.NotEqual(t, first.Secret, second.Secret)

	stored, err := accounts.GetByID(ctx, "account-1")
	require.NoError(t, err)
	assert.Equal(t, second.Secret, stored.TOTPSecret)
}

func TestTwoFactorService_BeginEnrollment_AlreadyEnrolled(t *testing.T) {
	account := adminAccount()
	account.TOTPSecret = "GEZDGNBVGY3TQOJQ"
	account.TOTPEnabled = true
	service := newTwoFactorService(t, NewMockAccountRepository(account))

	_, err := service.BeginEnrollment(context.Background(), "account-1")
	assert.ErrorIs(t, err, models.ErrAlreadyEnrolled)
}

func TestTwoFactorService_BeginEnrollment_UnknownAccount(t *testing.T) {
	service := newTwoFactorService(t, NewMockAccountRepository())

	_, err := service.BeginEnrollment(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestTwoFactorService_ConfirmEnrollment(t *testing.T) {
	accounts := NewMockAccountRepository(adminAccount())
	service := newTwoFactorService(t, accounts)
	ctx := context.Background()

	info, err := service.BeginEnrollment(ctx, "account-1")
	require.NoError(t, err)

	code, err := otp.NewEngine("Floodgate").Code(info.Secret)
	require.NoError(t, err)

	emergencyCodes, err := service.ConfirmEnrollment(ctx, "account-1", code)
	require.NoError(t, err)
	assert.Len(t, emergencyCodes, 2)

	stored, err := accounts.GetByID(ctx, "account-1")
	require.NoError(t, err)
	assert.True(t, stored.Enrolled())
}

func TestTwoFactorService_ConfirmEnrollment_InvalidCode(t *testing.T) {
	accounts := NewMockAccountRepository(adminAccount())
	service := newTwoFactorService(t, accounts)
	ctx := context.Background()

	_, err := service.BeginEnrollment(ctx, "account-1")
	require.NoError(t, err)

	_, err = service.ConfirmEnrollment(ctx, "account-1", "000000")
	assert.ErrorIs(t, err, models.ErrInvalidCode)

	// A failed confirmation leaves the account unenrolled
	stored, err := accounts.GetByID(ctx, "account-1")
	require.NoError(t, err)
	assert.False(t, stored.Enrolled())
}

func TestTwoFactorService_ConfirmEnrollment_WithoutSecret(t *testing.T) {
	service := newTwoFactorService(t, NewMockAccountRepository(adminAccount()))

	_, err := service.ConfirmEnrollment(context.Background(), "account-1", "123456")
	assert.ErrorIs(t, err, models.ErrNotEnrolled)
}

func TestTwoFactorService_ConfirmEnrollment_AlreadyEnrolled(t *testing.T) {
	account := adminAccount()
	account.TOTPSecret = "GEZDGNBVGY3TQOJQ"
	account.TOTPEnabled = true
	service := newTwoFactorService(t, NewMockAccountRepository(account))

	_, err := service.ConfirmEnrollment(context.Background(), "account-1", "123456")
	assert.ErrorIs(t, err, models.ErrAlreadyEnrolled)
}

func TestTwoFactorService_VerifyLogin_TOTP(t *testing.T) {
	accounts := NewMockAccountRepository(adminAccount())
	service := newTwoFactorService(t, accounts)
	ctx := context.Background()

	info, err := service.BeginEnrollment(ctx, "account-1")
	require.NoError(t, err)
	code, err := otp.NewEngine("Floodgate").Code(info.Secret)
	require.NoError(t, err)
	_, err = service.ConfirmEnrollment(ctx, "account-1", code)
	require.NoError(t, err)

	valid, err := service.VerifyLogin(ctx, "account-1", code)
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = service.VerifyLogin(ctx, "account-1", "000000")
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestTwoFactorService_VerifyLogin_EmergencyCode(t *testing.T) {
	accounts := NewMockAccountRepository(adminAccount())
	service := newTwoFactorService(t, accounts)
	ctx := context.Background()

	info, err := service.BeginEnrollment(ctx, "account-1")
	require.NoError(t, err)
	code, err := otp.NewEngine("Floodgate").Code(info.Secret)
	require.NoError(t, err)
	emergencyCodes, err := service.ConfirmEnrollment(ctx, "account-1", code)
	require.NoError(t, err)

	// Anything longer than a TOTP code takes the emergency path
	valid, err := service.VerifyLogin(ctx, "account-1", emergencyCodes[0])
	require.NoError(t, err)
	assert.True(t, valid)

	// Emergency codes are single use
	valid, err = service.VerifyLogin(ctx, "account-1", emergencyCodes[0])
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestTwoFactorService_VerifyLogin_NotEnrolled(t *testing.T) {
	service := newTwoFactorService(t, NewMockAccountRepository(adminAccount()))

	_, err := service.VerifyLogin(context.Background(), "account-1", "123456")
	assert.ErrorIs(t, err, models.ErrNotEnrolled)
}

func TestTwoFactorService_RegenerateEmergencyCodes(t *testing.T) {
	accounts := NewMockAccountRepository(adminAccount())
	service := newTwoFactorService(t, accounts)
	ctx := context.Background()

	info, err := service.BeginEnrollment(ctx, "account-1")
	require.NoError(t, err)
	code, err := otp.NewEngine("Floodgate").Code(info.Secret)
	require.NoError(t, err)
	oldCodes, err := service.ConfirmEnrollment(ctx, "account-1", code)
	require.NoError(t, err)

	newCodes, err := service.RegenerateEmergencyCodes(ctx, "account-1")
	require.NoError(t, err)
	assert.Len(t, newCodes, 2)

	// The replaced batch no longer verifies
	valid, err := service.VerifyLogin(ctx, "account-1", oldCodes[0])
	require.NoError(t, err)
	assert.False(t, valid)

	valid, err = service.VerifyLogin(ctx, "account-1", newCodes[0])
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestTwoFactorService_RegenerateEmergencyCodes_NotEnrolled(t *testing.T) {
	service := newTwoFactorService(t, NewMockAccountRepository(adminAccount()))

	_, err := service.RegenerateEmergencyCodes(context.Background(), "account-1")
	assert.ErrorIs(t, err, models.ErrNotEnrolled)
}

func TestTwoFactorService_Disable(t *testing.T) {
	accounts := NewMockAccountRepository(adminAccount())
	service := newTwoFactorService(t, accounts)
	ctx := context.Background()

	info, err := service.BeginEnrollment(ctx, "account-1")
	require.NoError(t, err)
	code, err := otp.NewEngine("Floodgate").Code(info.Secret)
	require.NoError(t, err)
	emergencyCodes, err := service.ConfirmEnrollment(ctx, "account-1", code)
	require.NoError(t, err)

	require.NoError(t, service.Disable(ctx, "account-1"))

	stored, err := accounts.GetByID(ctx, "account-1")
	require.NoError(t, err)
	assert.False(t, stored.Enrolled())
	assert.Empty(t, stored.TOTPSecret)

	_, err = service.VerifyLogin(ctx, "account-1", emergencyCodes[1])
	assert.ErrorIs(t, err, models.ErrNotEnrolled)
}

func TestTwoFactorService_LookupAccount(t *testing.T) {
	accounts := NewMockAccountRepository(adminAccount())
	service := newTwoFactorService(t, accounts)
	ctx := context.Background()

	account, err := service.LookupAccount(ctx, models.AccountTypeAdmin, "jdoe")
	require.NoError(t, err)
	assert.Equal(t, "account-1", account.ID)

	// The same username in the other store is a different identity space
	_, err = service.LookupAccount(ctx, models.AccountTypeCustomer, "jdoe")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
