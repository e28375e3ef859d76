package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-identity-server/auth"
	"github.com/jrsteele09/go-identity-server/identity"
	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
)

func TestParseLoginType(t *testing.T) {
	cases := map[string]auth.LoginType{
		"":           auth.LoginTypeUnspecified,
		"Email":      auth.LoginTypeEmail,
		"USERNAME":   auth.LoginTypeUsername,
		"magiclink":  auth.LoginTypeMagicLink,
		"Magic-Link": auth.LoginTypeMagicLink,
	}
	for in, want := range cases {
		got, err := auth.ParseLoginType(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	_, err := auth.ParseLoginType("sms")
	require.Error(t, err)
}

func TestCredentialResolver_LookupByType(t *testing.T) {
	f := setupTestFixture(t)
	user := f.createUser(t)
	resolver := auth.NewCredentialResolver(f.store)
	ctx := context.Background()

	got, err := resolver.Resolve(ctx, " JOHN.DOE@example.com ", auth.LoginTypeEmail)
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)

	got, err = resolver.Resolve(ctx, testUsername, auth.LoginTypeUnspecified)
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)

	_, err = resolver.Resolve(ctx, testUsername, auth.LoginTypeEmail)
	require.True(t, apperrors.HasMessage(err, apperrors.MsgInvalidLogin))

	_, err = resolver.Resolve(ctx, testEmail, auth.LoginTypeUsername)
	require.True(t, apperrors.HasMessage(err, apperrors.MsgInvalidLogin))

	_, err = resolver.Resolve(ctx, "", auth.LoginTypeUnspecified)
	require.True(t, apperrors.HasMessage(err, apperrors.MsgInvalidLogin))
}

func TestCredentialResolver_VerifySecret(t *testing.T) {
	f := setupTestFixture(t)
	user := f.createUser(t)
	resolver := auth.NewCredentialResolver(f.store)
	ctx := context.Background()

	res, err := resolver.VerifySecret(ctx, user, testPassword, auth.LoginTypeEmail)
	require.NoError(t, err)
	require.Equal(t, identity.SignInSucceeded, res)

	res, err = resolver.VerifySecret(ctx, user, "nope", auth.LoginTypeUnspecified)
	require.NoError(t, err)
	require.Equal(t, identity.SignInFailed, res)

	code, err := f.store.GenerateOneTimeToken(ctx, user, identity.PurposeMagicLink)
	require.NoError(t, err)
	res, err = resolver.VerifySecret(ctx, user, code, auth.LoginTypeMagicLink)
	require.NoError(t, err)
	require.Equal(t, identity.SignInSucceeded, res)
	res, err = resolver.VerifySecret(ctx, user, code, auth.LoginTypeMagicLink)
	require.NoError(t, err)
	require.Equal(t, identity.SignInFailed, res)
}
