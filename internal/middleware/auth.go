package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/affordindia/affordindia-sub004/internal/apperr"
	"github.com/affordindia/affordindia-sub004/internal/auth"
	"github.com/affordindia/affordindia-sub004/internal/respond"
)

type subjectKey struct{}

// ValidateAuth admits requests carrying a valid admin bearer token.
func ValidateAuth(issuer *auth.Issuer) Middleware {
	return func(h http.Handler, sugar *zap.SugaredLogger) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respond.Error(w, apperr.New(apperr.KindUnauthorized, "authorization header is missing"), sugar)
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				respond.Error(w, apperr.New(apperr.KindUnauthorized, "invalid token format"), sugar)
				return
			}

			subject, err := issuer.ValidateJWT(tokenString)
			if err != nil {
				sugar.Warnw("invalid token", "error", err)
				respond.Error(w, apperr.Wrap(apperr.KindUnauthorized, "invalid token", err), sugar)
				return
			}

			h.ServeHTTP(w, r.WithContext(WithSubject(r.Context(), subject)))
		})
	}
}

func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// Subject returns the admin identity set by ValidateAuth.
func Subject(ctx context.Context) string {
	s, _ := ctx.Value(subjectKey{}).(string)
	return s
}
