package models

import "time"

// AccountType discriminates the two credential stores sharing one
// behavioral contract: back-office administrators and storefront customers.
type AccountType string

const (
	AccountTypeAdmin    AccountType = "admin"
	AccountTypeCustomer AccountType = "customer"
)

// Valid reports whether the account type is one of the known stores.
func (t AccountType) Valid() bool {
	return t == AccountTypeAdmin || t == AccountTypeCustomer
}

// Account is a login identity with optional TOTP enrollment.
// Invariant: TOTPEnabled implies TOTPSecret is a non-empty base32 string.
type Account struct {
	ID          string      `db:"id"`
	Type        AccountType `db:"account_type"`
	Username    string      `db:"username"`
	Email       string      `db:"email"`
	TOTPSecret  string      `db:"totp_secret"`
	TOTPEnabled bool        `db:"totp_enabled"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
}

// Enrolled reports whether the account has confirmed two-factor setup.
func (a *Account) Enrolled() bool {
	return a.TOTPEnabled && a.TOTPSecret != ""
}

// Provisioned reports whether a secret exists that has not yet been
// confirmed with a first valid code.
func (a *Account) Provisioned() bool {
	return !a.TOTPEnabled && a.TOTPSecret != ""
}

// EmergencyCode is one outstanding single-use backup credential.
// Only the bcrypt hash is ever stored; the plaintext is shown once at
// creation time and discarded.
type EmergencyCode struct {
	AccountID string    `db:"account_id"`
	CodeHash  string    `db:"code_hash"`
	CreatedAt time.Time `db:"created_at"`
}
