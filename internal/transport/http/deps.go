package http

import (
	"github.com/growsmart/internal/app"
	jwtinfra "github.com/growsmart/internal/infrastructure/jwt"
	"github.com/growsmart/internal/transport/http/handler"
)

// Deps holds everything the router needs. Shells owns the per-device app
// sessions; Identity serves the flows completed outside the app.
type Deps struct {
	Shells      *app.Registry
	Identity    handler.IdentityService
	JWTProvider *jwtinfra.Provider
}
