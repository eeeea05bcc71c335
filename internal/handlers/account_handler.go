package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/phofmann/floodgate/internal/models"
	"github.com/phofmann/floodgate/internal/services"
	pkghttp "github.com/phofmann/floodgate/pkg/http"
	pkglogger "github.com/phofmann/floodgate/pkg/logger"
)

// uploadTicketTTL bounds how long a granted upload slot stays claimable
const uploadTicketTTL = 15 * time.Minute

// AccountHandler serves the abuse-prone public endpoints that sit behind
// the flood limiter: password reset, availability signup and upload
// tickets. Each endpoint checks its limiter variant before doing work
// and persists an event only for attempts that went through.
type AccountHandler struct {
	flood        *services.FloodService
	email        services.EmailService
	resetURLBase string
	ipConfig     *pkghttp.IPConfig
	logger       *slog.Logger
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(flood *services.FloodService, email services.EmailService, resetURLBase string, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		flood:        flood,
		email:        email,
		resetURLBase: resetURLBase,
		ipConfig:     ipConfig,
		logger:       logger,
	}
}

// RequestPasswordReset handles POST /account/password/reset.
// The response is identical whether or not the address belongs to an
// account, and identical again when the limiter swallows the request
// silently would invite probing, so over-limit requests get an explicit
// 429 instead.
func (h *AccountHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ip := pkghttp.ExtractClientIP(r, h.ipConfig)

	if !h.flood.Check(r.Context(), ip, models.FloodActionPasswordReset, 0) {
		pkghttp.WriteTooManyRequests(w, "Too many password reset requests, try again later")
		return
	}

	if err := h.flood.Persist(r.Context(), ip, models.FloodActionPasswordReset, 0); err != nil {
		pkghttp.WriteInternalError(w, "Request failed")
		return
	}

	h.logger.Info("password reset requested",
		slog.String("email", pkglogger.SanitizedEmail(req.Email)))

	token := uuid.NewString()
	resetLink := fmt.Sprintf("%s?token=%s", h.resetURLBase, url.QueryEscape(token))

	if err := h.email.SendPasswordResetEmail(r.Context(), req.Email, resetLink); err != nil {
		// The generic response stands either way; a delivery failure must
		// not disclose anything about the address.
		h.logger.Error("password reset email delivery failed", slog.Any("error", err))
	}

	writeJSON(w, http.StatusAccepted, PasswordResetResponse{
		Message: "If an account exists for this address, a reset email has been sent",
	})
}

// NotifyAvailability handles POST /notify/availability. The limiter is
// keyed per product, so signing up for two different products from one
// IP is two independent budgets.
func (h *AccountHandler) NotifyAvailability(w http.ResponseWriter, r *http.Request) {
	var req AvailabilityNotifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ip := pkghttp.ExtractClientIP(r, h.ipConfig)

	if !h.flood.Check(r.Context(), ip, models.FloodActionAvailability, req.ProductID) {
		pkghttp.WriteTooManyRequests(w, "A notification for this product was requested recently")
		return
	}

	if err := h.flood.Persist(r.Context(), ip, models.FloodActionAvailability, req.ProductID); err != nil {
		pkghttp.WriteInternalError(w, "Request failed")
		return
	}

	h.logger.Info("availability notification registered",
		slog.Int64("product_id", req.ProductID))

	writeJSON(w, http.StatusAccepted, AvailabilityNotifyResponse{
		Message: "You will be notified when the product is back in stock",
	})
}

// CreateUploadTicket handles POST /media/upload-ticket
func (h *AccountHandler) CreateUploadTicket(w http.ResponseWriter, r *http.Request) {
	var req UploadTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ip := pkghttp.ExtractClientIP(r, h.ipConfig)

	if !h.flood.Check(r.Context(), ip, models.FloodActionUpload, 0) {
		pkghttp.WriteTooManyRequests(w, "Upload limit reached, try again later")
		return
	}

	if err := h.flood.Persist(r.Context(), ip, models.FloodActionUpload, 0); err != nil {
		pkghttp.WriteInternalError(w, "Request failed")
		return
	}

	writeJSON(w, http.StatusCreated, UploadTicketResponse{
		TicketID:  uuid.NewString(),
		ExpiresAt: time.Now().Add(uploadTicketTTL),
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}
