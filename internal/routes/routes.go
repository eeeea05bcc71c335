package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/phofmann/floodgate/internal/handlers"
	"github.com/phofmann/floodgate/internal/middleware"
)

// RegisterRoutes registers all application routes.
//
// The public endpoints carry two limiter layers: the in-memory httprate
// middleware shields the process from raw request floods, and the
// DB-backed flood service applies the per-action policy behind it.
func RegisterRoutes(
	router chi.Router,
	accountHandler *handlers.AccountHandler,
	twoFactorHandler *handlers.TwoFactorHandler,
	rateLimitConfig middleware.RateLimitConfig,
) {
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(rateLimitConfig))

		r.Post("/account/password/reset", accountHandler.RequestPasswordReset)
		r.Post("/notify/availability", accountHandler.NotifyAvailability)
		r.Post("/media/upload-ticket", accountHandler.CreateUploadTicket)

		r.Post("/2fa/challenge", twoFactorHandler.IssueChallenge)
		r.Post("/2fa/verify", twoFactorHandler.VerifyLogin)
	})

	// Enrollment management sits behind the first factor and is expected
	// to be fronted by session authentication at the edge.
	router.Post("/2fa/enroll", twoFactorHandler.BeginEnrollment)
	router.Post("/2fa/enroll/confirm", twoFactorHandler.ConfirmEnrollment)
	router.Post("/2fa/emergency-codes", twoFactorHandler.RegenerateEmergencyCodes)
	router.Post("/2fa/disable", twoFactorHandler.Disable)
}
