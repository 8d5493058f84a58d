package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Caller identifies the authenticated party on a request.
type Caller struct {
	// Subject is the user ID from the JWT, or the literal "service" for
	// allow-listed internal services.
	Subject string

	// Service is true for allow-listed service tokens.
	Service bool
}

// authMiddleware validates the bearer token on protected routes.
//
// Two credential kinds are accepted: opaque tokens on the service
// allow-list (catalog, cleaning rigs), and HS256 JWTs issued by the
// catalog's login endpoint and verified with the shared secret.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeUnauthorized(w, "missing bearer token")
			return
		}

		caller, err := s.authenticate(token)
		if err != nil {
			s.logger.Warn("rejected bearer token",
				"error", err, "request_id", r.Context().Value(ctxKeyRequestID))
			writeUnauthorized(w, "invalid bearer token")
			return
		}

		ctx := contextWithCaller(r.Context(), caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authenticate resolves a bearer token to a caller.
func (s *Server) authenticate(token string) (Caller, error) {
	for _, allowed := range s.secCfg.ServiceTokens {
		if allowed != "" && token == allowed {
			return Caller{Subject: "service", Service: true}, nil
		}
	}

	if s.secCfg.JWTSecret == "" {
		return Caller{}, fmt.Errorf("jwt secret not configured")
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.secCfg.JWTSecret), nil
	})
	if err != nil {
		return Caller{}, fmt.Errorf("parsing token: %w", err)
	}
	if !parsed.Valid {
		return Caller{}, fmt.Errorf("token invalid")
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return Caller{}, fmt.Errorf("token has no subject")
	}
	return Caller{Subject: subject}, nil
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return token, token != ""
}

// contextWithCaller and CallerFromContext move the caller through the
// request context.
func contextWithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, ctxKeyCaller, caller)
}

// CallerFromContext returns the authenticated caller, if any.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	caller, ok := ctx.Value(ctxKeyCaller).(Caller)
	return caller, ok
}
