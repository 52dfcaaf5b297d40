package server

import (
	"context"
	"net/http"
	"time"

	"poolbet/domain/entities"
	"poolbet/domain/interfaces"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/jwtauth"
	log "github.com/sirupsen/logrus"
)

type principalKey struct{}

// RequestLogger logs every request once it has been served
func RequestLogger() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				log.WithFields(log.Fields{
					"method":     r.Method,
					"path":       r.URL.Path,
					"remote":     r.RemoteAddr,
					"status":     ww.Status(),
					"duration":   time.Since(start),
					"request_id": middleware.GetReqID(r.Context()),
				}).Debug("Request served")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// CORS builds the cross-origin policy for the configured origins
func CORS(allowedOrigins []string) *cors.Cors {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173"}
	}
	return cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

// browsers cannot set headers on a websocket handshake
func tokenFromQuery(r *http.Request) string {
	return r.URL.Query().Get("token")
}

// Verifier looks for a token in the Authorization header, the jwt cookie or the token query param
func Verifier(ja *jwtauth.JWTAuth) func(http.Handler) http.Handler {
	return jwtauth.Verify(ja, jwtauth.TokenFromHeader, jwtauth.TokenFromCookie, tokenFromQuery)
}

// PrincipalFromClaims extracts the caller from verified token claims
func PrincipalFromClaims(claims map[string]interface{}) entities.Principal {
	var principal entities.Principal
	if sub, ok := claims["sub"].(string); ok {
		principal.UserID = sub
	}
	if name, ok := claims["name"].(string); ok {
		principal.DisplayName = name
	}
	return principal
}

// Principal resolves the caller and opens their wallet on first contact
func Principal(ledger interfaces.WalletLedger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, claims, err := jwtauth.FromContext(r.Context())
			if err != nil {
				writeResult(w, entities.NewResult(entities.OutcomeUnauthenticated))
				return
			}
			principal := PrincipalFromClaims(claims)
			if !principal.Valid() {
				writeResult(w, entities.NewResult(entities.OutcomeUnauthenticated))
				return
			}

			if _, err := ledger.EnsureAccount(r.Context(), principal); err != nil {
				log.WithError(err).WithField("user_id", principal.UserID).Warn("Failed to ensure account")
			}

			ctx := context.WithValue(r.Context(), principalKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrincipalFrom returns the caller attached by the Principal middleware
func PrincipalFrom(ctx context.Context) entities.Principal {
	principal, _ := ctx.Value(principalKey{}).(entities.Principal)
	return principal
}
