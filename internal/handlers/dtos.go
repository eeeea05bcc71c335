package handlers

import "time"

// PasswordResetRequest is the body of POST /account/password/reset
type PasswordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// PasswordResetResponse deliberately does not reveal whether the address
// belongs to an account.
type PasswordResetResponse struct {
	Message string `json:"message"`
}

// AvailabilityNotifyRequest is the body of POST /notify/availability
type AvailabilityNotifyRequest struct {
	Email     string `json:"email" validate:"required,email"`
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
}

type AvailabilityNotifyResponse struct {
	Message string `json:"message"`
}

// UploadTicketRequest is the body of POST /media/upload-ticket
type UploadTicketRequest struct {
	Filename string `json:"filename" validate:"required,max=255"`
}

type UploadTicketResponse struct {
	TicketID  string    `json:"ticket_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ChallengeRequest is the body of POST /2fa/challenge. It stands in for
// the password step of a login: callers that have already authenticated
// the first factor exchange the account identity for a challenge token.
type ChallengeRequest struct {
	AccountType string `json:"account_type" validate:"required,oneof=admin customer"`
	Username    string `json:"username" validate:"required,max=255"`
}

type ChallengeResponse struct {
	ChallengeToken string    `json:"challenge_token"`
	Enrolled       bool      `json:"enrolled"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// BeginEnrollmentRequest is the body of POST /2fa/enroll
type BeginEnrollmentRequest struct {
	AccountID string `json:"account_id" validate:"required,uuid"`
}

type BeginEnrollmentResponse struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
	QRCode          string `json:"qr_code"`
}

// ConfirmEnrollmentRequest is the body of POST /2fa/enroll/confirm
type ConfirmEnrollmentRequest struct {
	AccountID string `json:"account_id" validate:"required,uuid"`
	Code      string `json:"code" validate:"required,len=6,numeric"`
}

type ConfirmEnrollmentResponse struct {
	Enrolled       bool     `json:"enrolled"`
	EmergencyCodes []string `json:"emergency_codes"`
}

// VerifyLoginRequest is the body of POST /2fa/verify. Code accepts both
// a 6-digit TOTP code and a 16-character emergency code.
type VerifyLoginRequest struct {
	ChallengeToken string `json:"challenge_token" validate:"required"`
	Code           string `json:"code" validate:"required,min=6,max=16"`
}

type VerifyLoginResponse struct {
	Verified  bool   `json:"verified"`
	AccountID string `json:"account_id,omitempty"`
}

// RegenerateCodesRequest is the body of POST /2fa/emergency-codes
type RegenerateCodesRequest struct {
	AccountID string `json:"account_id" validate:"required,uuid"`
}

type RegenerateCodesResponse struct {
	EmergencyCodes []string `json:"emergency_codes"`
}

// DisableRequest is the body of POST /2fa/disable
type DisableRequest struct {
	AccountID string `json:"account_id" validate:"required,uuid"`
}

type DisableResponse struct {
	Enrolled bool   `json:"enrolled"`
	Message  string `json:"message"`
}
