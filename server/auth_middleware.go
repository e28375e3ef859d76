package server

import (
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-identity-server/auth"
	"github.com/jrsteele09/go-identity-server/authz"
	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
)

// Authenticate verifies a Bearer access token when one is presented and puts the
// principal into the request context. Requests without a token pass through.
func (s *Server) Authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			next(w, r)
			return
		}

		principal, err := s.tokens.Parse(raw)
		if err != nil {
			if !errors.Is(err, apperrors.ErrTokenRevoked) && !errors.Is(err, apperrors.ErrInvalidToken) {
				s.logger.Error().Err(err).Msg("access token verification failed")
			}
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			writeErrors(w, http.StatusUnauthorized, apperrors.MsgNeedsSignIn)
			return
		}
		next(w, r.WithContext(authz.WithPrincipal(r.Context(), principal)))
	}
}

// AuthenticateIfValid attaches the principal when the Bearer token verifies and
// otherwise lets the request through unauthenticated. Logout uses it so an
// expired access token cannot keep a refresh cookie alive.
func (s *Server) AuthenticateIfValid(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			next(w, r)
			return
		}
		principal, err := s.tokens.Parse(raw)
		if err != nil {
			s.logger.Debug().Err(err).Str("path", r.URL.Path).Msg("ignoring unverifiable access token")
			next(w, r)
			return
		}
		next(w, r.WithContext(authz.WithPrincipal(r.Context(), principal)))
	}
}

// RequireAuth rejects requests that Authenticate did not attach a principal to.
func (s *Server) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := authz.PrincipalFrom(r.Context()); !ok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeErrors(w, http.StatusUnauthorized, apperrors.MsgNeedsSignIn)
			return
		}
		next(w, r)
	}
}

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	raw := strings.TrimSpace(parts[1])
	return raw, raw != ""
}

func (s *Server) callerFrom(r *http.Request) auth.Caller {
	principal, _ := authz.PrincipalFrom(r.Context())
	return auth.CallerFromPrincipal(principal, s.clientIP(r))
}
