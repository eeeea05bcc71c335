package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/phofmann/floodgate/internal/auth"
	"github.com/phofmann/floodgate/internal/models"
	"github.com/phofmann/floodgate/internal/services"
	pkghttp "github.com/phofmann/floodgate/pkg/http"
)

// TwoFactorHandler serves enrollment and second-factor verification.
// Verification responses are timing-equalized: a wrong TOTP code, a
// wrong emergency code and an unenrolled account all answer in roughly
// the same time.
type TwoFactorHandler struct {
	twofactor  *services.TwoFactorService
	challenges *auth.ChallengeManager
	flood      *services.FloodService
	timing     *auth.TimingDelay
	expiry     time.Duration
	ipConfig   *pkghttp.IPConfig
	logger     *slog.Logger
}

// NewTwoFactorHandler creates a new two-factor handler
func NewTwoFactorHandler(
	twofactor *services.TwoFactorService,
	challenges *auth.ChallengeManager,
	flood *services.FloodService,
	timing *auth.TimingDelay,
	expiry time.Duration,
	ipConfig *pkghttp.IPConfig,
	logger *slog.Logger,
) *TwoFactorHandler {
	return &TwoFactorHandler{
		twofactor:  twofactor,
		challenges: challenges,
		flood:      flood,
		timing:     timing,
		expiry:     expiry,
		ipConfig:   ipConfig,
		logger:     logger,
	}
}

// IssueChallenge handles POST /2fa/challenge. It sits behind whatever
// performed the first factor and exchanges an account identity for the
// short-lived token the verify step requires.
func (h *TwoFactorHandler) IssueChallenge(w http.ResponseWriter, r *http.Request) {
	var req ChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	accountType := models.AccountType(req.AccountType)
	account, err := h.twofactor.LookupAccount(r.Context(), accountType, req.Username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// A username miss answers as slowly as a hit
			h.timing.Wait(false)
			pkghttp.WriteUnauthorized(w, "Unknown account")
			return
		}
		h.logger.Error("account lookup failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Challenge failed")
		return
	}

	token, err := h.challenges.Issue(account.ID, account.Type)
	if err != nil {
		h.logger.Error("failed to issue challenge token", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Challenge failed")
		return
	}

	writeJSON(w, http.StatusOK, ChallengeResponse{
		ChallengeToken: token,
		Enrolled:       account.Enrolled(),
		ExpiresAt:      time.Now().Add(h.expiry),
	})
}

// BeginEnrollment handles POST /2fa/enroll
func (h *TwoFactorHandler) BeginEnrollment(w http.ResponseWriter, r *http.Request) {
	var req BeginEnrollmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	info, err := h.twofactor.BeginEnrollment(r.Context(), req.AccountID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteNotFound(w, "Account not found")
		case errors.Is(err, models.ErrAlreadyEnrolled):
			pkghttp.WriteConflict(w, "Two-factor authentication is already enabled")
		default:
			h.logger.Error("failed to begin enrollment", slog.Any("error", err))
			pkghttp.WriteInternalError(w, "Enrollment failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, BeginEnrollmentResponse{
		Secret:          info.Secret,
		ProvisioningURI: info.ProvisioningURI,
		QRCode:          info.QRCode,
	})
}

// ConfirmEnrollment handles POST /2fa/enroll/confirm. The emergency
// codes in the response are shown exactly once.
func (h *TwoFactorHandler) ConfirmEnrollment(w http.ResponseWriter, r *http.Request) {
	var req ConfirmEnrollmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	codes, err := h.twofactor.ConfirmEnrollment(r.Context(), req.AccountID, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteNotFound(w, "Account not found")
		case errors.Is(err, models.ErrAlreadyEnrolled):
			pkghttp.WriteConflict(w, "Two-factor authentication is already enabled")
		case errors.Is(err, models.ErrNotEnrolled):
			pkghttp.WriteBadRequest(w, "No provisioned secret, begin enrollment first")
		case errors.Is(err, models.ErrInvalidCode):
			pkghttp.WriteUnauthorized(w, "Invalid code")
		default:
			h.logger.Error("failed to confirm enrollment", slog.Any("error", err))
			pkghttp.WriteInternalError(w, "Enrollment failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, ConfirmEnrollmentResponse{
		Enrolled:       true,
		EmergencyCodes: codes,
	})
}

// VerifyLogin handles POST /2fa/verify. Attempts are metered by the
// generic flood rule per client IP; failed attempts are persisted so
// the budget counts them.
func (h *TwoFactorHandler) VerifyLogin(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req VerifyLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ip := pkghttp.ExtractClientIP(r, h.ipConfig)

	if !h.flood.Check(r.Context(), ip, models.FloodActionGeneric, 0) {
		pkghttp.WriteTooManyRequests(w, "Too many verification attempts, try again later")
		return
	}

	accountID, _, err := h.challenges.Validate(req.ChallengeToken)
	if err != nil {
		h.timing.WaitFrom(start, false)
		pkghttp.WriteUnauthorized(w, "Invalid or expired challenge")
		return
	}

	// A missing or unenrolled account fails like a wrong code; the
	// challenge token must not become an enrollment oracle.
	valid, err := h.twofactor.VerifyLogin(r.Context(), accountID, req.Code)
	if err != nil && !errors.Is(err, models.ErrNotEnrolled) && !errors.Is(err, models.ErrNotFound) {
		h.logger.Error("second factor verification failed",
			slog.String("account_id", accountID),
			slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Verification failed")
		return
	}

	if !valid {
		if err := h.flood.Persist(r.Context(), ip, models.FloodActionGeneric, 0); err != nil {
			h.logger.Error("failed to record verification attempt", slog.Any("error", err))
		}
		h.timing.WaitFrom(start, false)
		pkghttp.WriteUnauthorized(w, "Authentication failed")
		return
	}

	h.timing.WaitFrom(start, true)

	writeJSON(w, http.StatusOK, VerifyLoginResponse{
		Verified:  true,
		AccountID: accountID,
	})
}

// RegenerateEmergencyCodes handles POST /2fa/emergency-codes
func (h *TwoFactorHandler) RegenerateEmergencyCodes(w http.ResponseWriter, r *http.Request) {
	var req RegenerateCodesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	codes, err := h.twofactor.RegenerateEmergencyCodes(r.Context(), req.AccountID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteNotFound(w, "Account not found")
		case errors.Is(err, models.ErrNotEnrolled):
			pkghttp.WriteBadRequest(w, "Two-factor authentication is not enabled")
		default:
			h.logger.Error("failed to regenerate emergency codes", slog.Any("error", err))
			pkghttp.WriteInternalError(w, "Regeneration failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, RegenerateCodesResponse{EmergencyCodes: codes})
}

// Disable handles POST /2fa/disable
func (h *TwoFactorHandler) Disable(w http.ResponseWriter, r *http.Request) {
	var req DisableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.twofactor.Disable(r.Context(), req.AccountID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Account not found")
			return
		}
		h.logger.Error("failed to disable two-factor", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Disable failed")
		return
	}

	writeJSON(w, http.StatusOK, DisableResponse{
		Enrolled: false,
		Message:  "Two-factor authentication has been disabled",
	})
}
