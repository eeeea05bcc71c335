package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/phofmann/floodgate/internal/models"
	"github.com/phofmann/floodgate/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAccountHandler(t *testing.T, floodRepo *fakeFloodEventRepo, email *fakeEmailService) *AccountHandler {
	t.Helper()
	flood, err := services.NewFloodService(floodRepo, models.DefaultFloodRules(), discardLogger())
	require.NoError(t, err)
	return NewAccountHandler(flood, email, "http://localhost:8080/account/password/new", nil, discardLogger())
}

func postJSON(t *testing.T, handler http.HandlerFunc, target string, body any, remoteAddr string) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", target, bytes.NewReader(payload))
	req.RemoteAddr = remoteAddr
	recorder := httptest.NewRecorder()
	handler(recorder, req)
	return recorder
}

func TestAccountHandler_RequestPasswordReset(t *testing.T) {
	email := &fakeEmailService{}
	handler := newAccountHandler(t, &fakeFloodEventRepo{}, email)

	recorder := postJSON(t, handler.RequestPasswordReset, "/account/password/reset",
		PasswordResetRequest{Email: "user@example.com"}, "203.0.113.5:44321")

	assert.Equal(t, http.StatusAccepted, recorder.Code)
	assert.Equal(t, []string{"user@example.com"}, email.sent)
}

func TestAccountHandler_RequestPasswordReset_InvalidEmail(t *testing.T) {
	email := &fakeEmailService{}
	handler := newAccountHandler(t, &fakeFloodEventRepo{}, email)

	recorder := postJSON(t, handler.RequestPasswordReset, "/account/password/reset",
		PasswordResetRequest{Email: "not-an-email"}, "203.0.113.5:44321")

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Empty(t, email.sent)
}

func TestAccountHandler_RequestPasswordReset_FloodLimited(t *testing.T) {
	email := &fakeEmailService{}
	handler := newAccountHandler(t, &fakeFloodEventRepo{}, email)

	// The password reset rule admits limit+1 requests before denying
	for i := 0; i < 4; i++ {
		recorder := postJSON(t, handler.RequestPasswordReset, "/account/password/reset",
			PasswordResetRequest{Email: "user@example.com"}, "203.0.113.5:44321")
		require.Equal(t, http.StatusAccepted, recorder.Code, "request %d", i+1)
	}

	recorder := postJSON(t, handler.RequestPasswordReset, "/account/password/reset",
		PasswordResetRequest{Email: "user@example.com"}, "203.0.113.5:44321")
	assert.Equal(t, http.StatusTooManyRequests, recorder.Code)
	assert.Len(t, email.sent, 4)
}

func TestAccountHandler_RequestPasswordReset_DeliveryFailureIsSilent(t *testing.T) {
	email := &fakeEmailService{sendErr: assert.AnError}
	handler := newAccountHandler(t, &fakeFloodEventRepo{}, email)

	recorder := postJSON(t, handler.RequestPasswordReset, "/account/password/reset",
		PasswordResetRequest{Email: "user@example.com"}, "203.0.113.5:44321")

	// The caller learns nothing from a failed delivery
	assert.Equal(t, http.StatusAccepted, recorder.Code)
}

func TestAccountHandler_RequestPasswordReset_StoreErrorDenies(t *testing.T) {
	email := &fakeEmailService{}
	handler := newAccountHandler(t, &fakeFloodEventRepo{countErr: models.ErrStoreUnavailable}, email)

	recorder := postJSON(t, handler.RequestPasswordReset, "/account/password/reset",
		PasswordResetRequest{Email: "user@example.com"}, "203.0.113.5:44321")

	assert.Equal(t, http.StatusTooManyRequests, recorder.Code)
	assert.Empty(t, email.sent)
}

func TestAccountHandler_NotifyAvailability_PerProductBudget(t *testing.T) {
	handler := newAccountHandler(t, &fakeFloodEventRepo{}, &fakeEmailService{})

	recorder := postJSON(t, handler.NotifyAvailability, "/notify/availability",
		AvailabilityNotifyRequest{Email: "user@example.com", ProductID: 42}, "203.0.113.5:44321")
	assert.Equal(t, http.StatusAccepted, recorder.Code)

	// Availability allows a single signup per IP and product
	recorder = postJSON(t, handler.NotifyAvailability, "/notify/availability",
		AvailabilityNotifyRequest{Email: "user@example.com", ProductID: 42}, "203.0.113.5:44321")
	assert.Equal(t, http.StatusTooManyRequests, recorder.Code)

	// A different product from the same IP still passes
	recorder = postJSON(t, handler.NotifyAvailability, "/notify/availability",
		AvailabilityNotifyRequest{Email: "user@example.com", ProductID: 43}, "203.0.113.5:44321")
	assert.Equal(t, http.StatusAccepted, recorder.Code)
}

func TestAccountHandler_NotifyAvailability_RequiresProduct(t *testing.T) {
	handler := newAccountHandler(t, &fakeFloodEventRepo{}, &fakeEmailService{})

	recorder := postJSON(t, handler.NotifyAvailability, "/notify/availability",
		AvailabilityNotifyRequest{Email: "user@example.com"}, "203.0.113.5:44321")

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestAccountHandler_CreateUploadTicket(t *testing.T) {
	handler := newAccountHandler(t, &fakeFloodEventRepo{}, &fakeEmailService{})

	recorder := postJSON(t, handler.CreateUploadTicket, "/media/upload-ticket",
		UploadTicketRequest{Filename: "photo.jpg"}, "203.0.113.5:44321")

	require.Equal(t, http.StatusCreated, recorder.Code)

	var resp UploadTicketResponse
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&resp))
	assert.NotEmpty(t, resp.TicketID)
	assert.False(t, resp.ExpiresAt.IsZero())
}

func TestAccountHandler_CreateUploadTicket_FloodLimited(t *testing.T) {
	handler := newAccountHandler(t, &fakeFloodEventRepo{}, &fakeEmailService{})

	// Upload rule: 10 tickets per IP per hour
	for i := 0; i < 10; i++ {
		recorder := postJSON(t, handler.CreateUploadTicket, "/media/upload-ticket",
			UploadTicketRequest{Filename: "photo.jpg"}, "203.0.113.5:44321")
		require.Equal(t, http.StatusCreated, recorder.Code, "ticket %d", i+1)
	}

	recorder := postJSON(t, handler.CreateUploadTicket, "/media/upload-ticket",
		UploadTicketRequest{Filename: "photo.jpg"}, "203.0.113.5:44321")
	assert.Equal(t, http.StatusTooManyRequests, recorder.Code)
}
