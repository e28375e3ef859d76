package server

import (
	"context"
	"crypto/rand"
	"encoding/base64"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-identity-server/identity"
	"github.com/jrsteele09/go-identity-server/users"
)

const DefaultAdminUsername = "admin"

// InitialiseSystem makes sure the Administrator role exists and, when ADMIN_EMAIL
// is configured, that an administrator account exists for it. A password is
// generated and logged once when ADMIN_PASSWORD is empty.
func (s *Server) InitialiseSystem(ctx context.Context) error {
	if err := s.initialiseAdministratorRole(ctx); err != nil {
		return errors.Wrap(err, "[Server InitialiseSystem] failed to bootstrap administrator role")
	}

	adminEmail := s.config.GetAdminEmail()
	if adminEmail == "" {
		return nil
	}
	generatedPassword, err := s.createAdministrator(ctx, adminEmail, s.config.GetAdminPassword())
	if err != nil {
		return errors.Wrap(err, "[Server InitialiseSystem] failed to bootstrap administrator")
	}
	if generatedPassword != "" {
		s.logger.Warn().
			Str("email", adminEmail).
			Str("password", generatedPassword).
			Msg("administrator created with a generated password, change it after the first sign in")
	}
	return nil
}

func (s *Server) initialiseAdministratorRole(ctx context.Context) error {
	_, err := s.roles.Get(ctx, users.RoleAdministrator)
	if err == nil {
		return nil
	}
	if !errors.Is(err, users.ErrNotFound) {
		return err
	}
	return s.roles.Upsert(ctx, &users.Role{Name: users.RoleAdministrator})
}

// createAdministrator returns the generated password, or "" when the account
// already existed or the password was configured.
func (s *Server) createAdministrator(ctx context.Context, email, password string) (generatedPassword string, err error) {
	if _, err := s.store.FindByEmail(ctx, email); err == nil {
		s.logger.Debug().Str("email", email).Msg("administrator already exists")
		return "", nil
	} else if !errors.Is(err, identity.ErrNotFound) {
		return "", err
	}

	if password == "" {
		passwordBytes := make([]byte, 16)
		if _, err := rand.Read(passwordBytes); err != nil {
			return "", errors.Wrap(err, "[server createAdministrator] failed to generate password")
		}
		// The suffix satisfies the strength rules whatever the random part holds.
		password = base64.RawURLEncoding.EncodeToString(passwordBytes) + "Aa1"
		generatedPassword = password
	}

	admin := &users.User{
		Email:          email,
		Username:       DefaultAdminUsername,
		EmailConfirmed: true,
		Roles:          []string{users.RoleAdministrator},
	}
	if err := s.store.Create(ctx, admin, password); err != nil {
		return "", errors.Wrap(err, "[server createAdministrator] failed to create administrator")
	}
	return generatedPassword, nil
}
