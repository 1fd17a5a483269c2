package handlers

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"log/slog"
	"net/http"

	"github.com/username/ledgerdesk/backend/src/logger"
	"github.com/username/ledgerdesk/backend/src/utils"
)

const (
	csrfCookieName = "ledgerdesk_csrf"
	csrfHeaderName = "X-CSRF-Token"
)

// GetCSRFToken issues a double-submit token as a cookie and in the response.
func GetCSRFToken(w http.ResponseWriter, r *http.Request) {
	token, err := generateRandomToken()
	if err != nil {
		logger.FromContext(r.Context()).Error("Error generating CSRF token", "error", err)
		utils.SendJSONError(w, "Could not issue a CSRF token", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		MaxAge:   3600,
	})
	w.Header().Set(csrfHeaderName, token)
	utils.SendJSON(w, map[string]string{"csrfToken": token}, http.StatusOK)
}

func generateRandomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// CSRFMiddleware requires the header token to match the cookie on state-changing methods.
func CSRFMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		headerToken := r.Header.Get(csrfHeaderName)
		cookie, errCookie := r.Cookie(csrfCookieName)
		if headerToken != "" && errCookie == nil &&
			subtle.ConstantTimeCompare([]byte(headerToken), []byte(cookie.Value)) == 1 {
			next.ServeHTTP(w, r)
			return
		}

		logger.FromContext(r.Context()).Warn("CSRF validation failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Bool("headerTokenExists", headerToken != ""),
			slog.Bool("cookieExists", errCookie == nil),
			slog.String("origin", r.Header.Get("Origin")),
		)
		utils.SendJSONError(w, "CSRF token validation failed", http.StatusForbidden)
	})
}
