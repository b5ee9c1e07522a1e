package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"otakudb/internal/identity"
	"otakudb/pkg/requestcontext"
)

// RequireAuth validates the Bearer token and resolves the user through the
// store, so bans and deactivations take effect immediately rather than at
// token expiry. The resolved user becomes the request actor.
func RequireAuth(tokens *identity.TokenService, users identity.UserStore, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				unauthorized(w, "missing or invalid Authorization header")
				return
			}

			claims, err := tokens.Validate(token)
			if err != nil {
				logger.WarnContext(ctx, "rejected token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				unauthorized(w, "invalid or expired token")
				return
			}
			userID, err := claims.ParseUserID()
			if err != nil {
				unauthorized(w, "invalid or expired token")
				return
			}

			user, err := users.FindByID(ctx, userID)
			if err != nil {
				logger.WarnContext(ctx, "token subject not found",
					"user_id", userID,
					"request_id", requestcontext.RequestID(ctx),
				)
				unauthorized(w, "unknown user")
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithActor(ctx, user)))
		})
	}
}

func unauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
