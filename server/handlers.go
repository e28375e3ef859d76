package server

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/jrsteele09/go-identity-server/auth"
	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Errors []string `json:"errors"`
}

type tokenResponse struct {
	Status      string     `json:"status"`
	AccessToken string     `json:"accessToken,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

func newTokenResponse(result *auth.LoginResult) tokenResponse {
	resp := tokenResponse{Status: result.Status.String()}
	if result.Status == auth.LoginSucceeded {
		expiresAt := result.ExpiresAt.UTC()
		resp.AccessToken = result.AccessToken
		resp.ExpiresAt = &expiresAt
	}
	return resp
}

// decodeJSON reads a single JSON object from the request body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return apperrors.NewUserError(apperrors.KindInvalid, "Invalid request body.").WithCause(err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrors(w http.ResponseWriter, status int, messages ...string) {
	writeJSON(w, status, errorResponse{Errors: messages})
}

// writeError maps err to a status code. Only UserError messages reach the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ue, ok := apperrors.AsUserError(err)
	if !ok {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("unhandled error")
		writeErrors(w, http.StatusInternalServerError, apperrors.MsgUnexpected)
		return
	}
	writeErrors(w, statusForKind(ue.Kind), ue.Messages...)
}

func statusForKind(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindInvalid:
		return http.StatusBadRequest
	case apperrors.KindUnauthorized:
		return http.StatusUnauthorized
	case apperrors.KindForbidden:
		return http.StatusForbidden
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// flowHandler decodes a request of type T and runs a flow that ends in a login result.
func flowHandler[T any](s *Server, flow func(r *http.Request, req T, jar auth.CookieJar) (*auth.LoginResult, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req T
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		result, err := flow(r, req, s.cookieJar(w, r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newTokenResponse(result))
	}
}

// actionHandler decodes a request of type T and answers 204 when the action succeeds.
func actionHandler[T any](s *Server, action func(r *http.Request, req T) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req T
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := action(r, req); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
