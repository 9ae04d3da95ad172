package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/growsmart/internal/config"
	"github.com/growsmart/internal/transport/http/handler"
	appmiddleware "github.com/growsmart/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	if cfg.TrustProxyHeaders {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", appmiddleware.DeviceHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authMw := appmiddleware.Auth(deps.JWTProvider)

	// 5 requests/second, burst of 10, on endpoints that reach the identity provider.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	healthH := handler.NewHealthHandler(deps.Shells)
	authH := handler.NewAuthHandler(deps.Shells)
	historyH := handler.NewHistoryHandler(deps.Shells)
	predictionH := handler.NewPredictionHandler(deps.Shells)
	identityH := handler.NewIdentityHandler(deps.Identity)

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes ────────────────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)
		r.With(sensitiveRL.Limit).Post("/password-recovery/reset", identityH.ResetPassword)

		// ── Device-scoped routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(appmiddleware.Device)

			r.Get("/state", authH.State)
			r.With(sensitiveRL.Limit).Post("/auth/sign-in", authH.SignIn)
			r.With(sensitiveRL.Limit).Post("/auth/sign-up", authH.SignUp)
			r.With(sensitiveRL.Limit).Post("/auth/otp/confirm", authH.ConfirmOTP)
			r.With(sensitiveRL.Limit).Post("/auth/forgot-password", authH.ForgotPassword)
			r.Post("/auth/otp/cancel", authH.CancelOTP)
			r.Post("/auth/sign-out", authH.SignOut)

			// Signed-in shell and matching identity token.
			r.Group(func(r chi.Router) {
				r.Use(authMw)

				r.Get("/history", historyH.Get)
				r.Post("/history/refresh", historyH.Refresh)
				r.Delete("/history/{index}", historyH.Delete)
				r.Post("/predictions/rainfall", predictionH.Rainfall)
				r.Post("/predictions/crop", predictionH.Crop)
				r.Post("/predictions/yield", predictionH.Yield)
			})
		})

		r.With(authMw).Post("/confirm-email/{action}", identityH.ConfirmEmail)
	})

	return r
}
