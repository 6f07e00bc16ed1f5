package main

import (
	"fmt"
	"net/http"

	"github.com/dgrijalva/jwt-go"
)

const sessionCookie = "ots_session"

// requireSession gates the report endpoints behind the portal's session
// cookie: a JWT signed with HMAC-SHA256 by the frontend's auth service.
// Anything missing, expired or signed with the wrong method is a flat 401.
func (app *application) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if app.config.sessionSecret == "" {
			// No secret configured means auth is handled upstream
			// (reverse proxy) or this is a dev instance.
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(sessionCookie)
		if err != nil {
			writeJSONError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		token, err := jwt.Parse(cookie.Value, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(app.config.sessionSecret), nil
		})
		if err != nil || !token.Valid {
			writeJSONError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		next.ServeHTTP(w, r)
	})
}
