package middleware

import (
	"log/slog"
	"net/http"

	"github.com/invertase/react-native-firebase/internal/session"
)

// Auth rejects requests without a valid bridge token. A token passed in
// the query is moved into a cookie so page reloads keep working.
func Auth(tokens *session.Tokens, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, fromQuery := session.FromRequest(r)
			claims, err := tokens.Verify(token)
			if err != nil {
				logger.Debug("bridge token rejected", "path", r.URL.Path, "err", err)
				session.ClearCookie(w)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if fromQuery {
				tokens.SetCookie(w, token)
			}
			next.ServeHTTP(w, r.WithContext(setClaimsContext(r.Context(), claims)))
		})
	}
}
