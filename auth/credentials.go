package auth

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-identity-server/identity"
	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/jrsteele09/go-identity-server/users"
)

// LoginType selects how the login string is looked up and which secret it is checked against.
type LoginType int

const (
	LoginTypeUnspecified LoginType = iota
	LoginTypeEmail
	LoginTypeUsername
	LoginTypeMagicLink
)

var loginTypeNames = map[string]LoginType{
	"":           LoginTypeUnspecified,
	"email":      LoginTypeEmail,
	"username":   LoginTypeUsername,
	"magiclink":  LoginTypeMagicLink,
	"magic-link": LoginTypeMagicLink,
}

func ParseLoginType(s string) (LoginType, error) {
	lt, ok := loginTypeNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return LoginTypeUnspecified, errors.Errorf("unknown login type %q", s)
	}
	return lt, nil
}

func (lt LoginType) String() string {
	switch lt {
	case LoginTypeEmail:
		return "email"
	case LoginTypeUsername:
		return "username"
	case LoginTypeMagicLink:
		return "magiclink"
	}
	return ""
}

// CredentialResolver maps a login string to an identity and checks its secret.
type CredentialResolver struct {
	store identity.Store
}

func NewCredentialResolver(store identity.Store) *CredentialResolver {
	return &CredentialResolver{store: store}
}

// Resolve finds the identity for login. A missing identity is reported with the
// same message as a wrong password.
func (r *CredentialResolver) Resolve(ctx context.Context, login string, loginType LoginType) (*users.User, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return nil, invalidLogin()
	}

	var lookups []func(context.Context, string) (*users.User, error)
	switch loginType {
	case LoginTypeEmail, LoginTypeMagicLink:
		lookups = append(lookups, r.store.FindByEmail)
	case LoginTypeUsername:
		lookups = append(lookups, r.store.FindByUsername)
	default:
		lookups = append(lookups, r.store.FindByEmail, r.store.FindByUsername)
	}

	for _, lookup := range lookups {
		user, err := lookup(ctx, login)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, identity.ErrNotFound) {
			return nil, errors.Wrap(err, "[CredentialResolver.Resolve] lookup")
		}
	}
	return nil, invalidLogin()
}

// VerifySecret checks a password, or a magic link code for LoginTypeMagicLink.
// A wrong secret is a result, not an error.
func (r *CredentialResolver) VerifySecret(ctx context.Context, user *users.User, secret string, loginType LoginType) (identity.SignInResult, error) {
	if loginType != LoginTypeMagicLink {
		return r.store.CheckPassword(ctx, user, secret)
	}
	ok, err := r.store.VerifyOneTimeToken(ctx, user, identity.PurposeMagicLink, secret)
	if err != nil {
		return identity.SignInFailed, err
	}
	if !ok {
		return identity.SignInFailed, nil
	}
	return identity.SignInSucceeded, nil
}

func invalidLogin() error {
	return apperrors.NewUserError(apperrors.KindUnauthorized, apperrors.MsgInvalidLogin)
}
