package auth

import (
	"testing"
	"time"

	"github.com/phofmann/floodgate/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChallengeManager_IssueAndValidate(t *testing.T) {
	cm := NewChallengeManager("test-challenge-secret-value", 5*time.Minute)

	token, err := cm.Issue("account-123", models.AccountTypeCustomer)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	accountID, accountType, err := cm.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "account-123", accountID)
	assert.Equal(t, models.AccountTypeCustomer, accountType)
}

func TestChallengeManager_Validate_WrongSecret(t *testing.T) {
	cm := NewChallengeManager("test-challenge-secret-value", 5*time.Minute)
	other := NewChallengeManager("a-different-secret-entirely", 5*time.Minute)

	token, err := cm.Issue("account-123", models.AccountTypeAdmin)
	require.NoError(t, err)

	_, _, err = other.Validate(token)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestChallengeManager_Validate_Expired(t *testing.T) {
	cm := NewChallengeManager("test-challenge-secret-value", -1*time.Minute)

	token, err := cm.Issue("account-123", models.AccountTypeCustomer)
	require.NoError(t, err)

	_, _, err = cm.Validate(token)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestChallengeManager_Validate_Garbage(t *testing.T) {
	cm := NewChallengeManager("test-challenge-secret-value", 5*time.Minute)

	_, _, err := cm.Validate("not-a-token")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestChallengeManager_Validate_UnknownAccountType(t *testing.T) {
	cm := NewChallengeManager("test-challenge-secret-value", 5*time.Minute)

	token, err := cm.Issue("account-123", models.AccountType("vendor"))
	require.NoError(t, err)

	_, _, err = cm.Validate(token)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}
