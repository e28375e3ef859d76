package server

import (
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-identity-server/identity"
	"github.com/jrsteele09/go-identity-server/users"
)

type userResponse struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	Username         string    `json:"username,omitempty"`
	EmailConfirmed   bool      `json:"emailConfirmed"`
	TwoFactorEnabled bool      `json:"twoFactorEnabled"`
	Roles            []string  `json:"roles"`
	DateJoined       time.Time `json:"dateJoined"`
	LastLogin        time.Time `json:"lastLogin,omitzero"`
}

func newUserResponse(u *users.User) userResponse {
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	return userResponse{
		ID:               u.ID,
		Email:            u.Email,
		Username:         u.Username,
		EmailConfirmed:   u.EmailConfirmed,
		TwoFactorEnabled: u.TwoFactorEnabled,
		Roles:            roles,
		DateJoined:       u.DateJoined,
		LastLogin:        u.LastLogin,
	}
}

// GetUserHandler returns a profile. Access is decided by the claim requirements
// registered for OperationReadUser.
func (s *Server) GetUserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := s.store.FindByID(r.Context(), r.PathValue("userId"))
		if err != nil {
			if errors.Is(err, identity.ErrNotFound) {
				writeErrors(w, http.StatusNotFound, "User not found.")
				return
			}
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newUserResponse(u))
	}
}
