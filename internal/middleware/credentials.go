package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/affordindia/affordindia-sub004/internal/apperr"
	"github.com/affordindia/affordindia-sub004/internal/respond"
	"github.com/affordindia/affordindia-sub004/models"
)

// ValidateCredentials rejects malformed login bodies and hands the handler a
// body with the email normalized.
func ValidateCredentials(h http.Handler, sugar *zap.SugaredLogger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if mediaType != "application/json" {
			sugar.Warnw("wrong content type", "content_type", r.Header.Get("Content-Type"))
			respond.Error(w, apperr.New(apperr.KindValidation, "wrong content type"), sugar)
			return
		}

		var credentials models.Credentials
		if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
			sugar.Warnw("error decoding credentials", "error", err)
			respond.Error(w, apperr.Wrap(apperr.KindValidation, "error decoding credentials", err), sugar)
			return
		}

		credentials.Email = strings.ToLower(strings.TrimSpace(credentials.Email))
		if credentials.Email == "" || credentials.Password == "" {
			respond.Error(w, apperr.New(apperr.KindValidation, "email and password are required"), sugar)
			return
		}

		bodyBytes, err := json.Marshal(credentials)
		if err != nil {
			respond.Error(w, err, sugar)
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		r.ContentLength = int64(len(bodyBytes))

		h.ServeHTTP(w, r)
	})
}
