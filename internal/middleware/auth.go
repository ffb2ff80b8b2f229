package middleware

import (
	"net/http"

	"redditscheduler/internal/httputil"
	"redditscheduler/internal/privacy"
	"redditscheduler/internal/security"
	"redditscheduler/internal/service"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// PublicPaths are served without credentials
var PublicPaths = map[string]bool{
	"/health": true,
}

// BasicAuthMiddleware requires HTTP basic credentials matching user and the
// bcrypt hash. An empty user disables the check.
func BasicAuthMiddleware(user, hash string, logger *logrus.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		if user == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if PublicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			gotUser, gotPass, ok := r.BasicAuth()
			if !ok || !security.CheckBasicAuth(user, hash, gotUser, gotPass) {
				logger.WithFields(logrus.Fields{
					service.LogFieldURL:      r.URL.Path,
					service.LogFieldRemoteIP: httputil.GetClientIP(r),
					"auth_user":              privacy.MaskUsername(gotUser),
				}).Warn("Rejected request with invalid credentials")

				w.Header().Set("WWW-Authenticate", `Basic realm="reddit-scheduler", charset="UTF-8"`)
				httputil.WriteError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RecoveryMiddleware turns handler panics into 500 responses
func RecoveryMiddleware(logger *logrus.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					service.LogWithContext(r.Context(), logger).WithFields(logrus.Fields{
						service.LogFieldURL:    r.URL.Path,
						service.LogFieldMethod: r.Method,
						"panic":                rec,
					}).Error("Recovered from handler panic")
					httputil.WriteError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
