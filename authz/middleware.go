package authz

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
)

// Middleware protects a handler with the requirements registered for operation.
// It expects a principal placed in the request context by the bearer middleware.
func (e *Evaluator) Middleware(operation string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFrom(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, apperrors.MsgNeedsSignIn)
				return
			}

			err := e.Authorize(operation, principal, Params{Route: r.PathValue, Query: r.URL.Query()})
			switch {
			case err == nil:
				next(w, r)
			case errors.Is(err, ErrForbidden):
				e.logger.Info().Str("operation", operation).Str("user_id", principal.UserID).Msg("authorization denied")
				writeError(w, http.StatusForbidden, apperrors.MsgForbidden)
			default:
				e.logger.Error().Err(err).Str("operation", operation).Msg("authorization misconfigured")
				writeError(w, http.StatusInternalServerError, apperrors.MsgUnexpected)
			}
		}
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string][]string{"errors": {msg}})
}
