package authz_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-identity-server/authz"
	"github.com/jrsteele09/go-identity-server/token"
)

func principal(roles []string, claims map[string][]string) *token.Principal {
	return &token.Principal{UserID: "u-1", Roles: roles, Claims: claims}
}

func routeParams(values map[string]string) authz.Params {
	return authz.Params{Route: func(name string) string { return values[name] }}
}

func newEvaluator(t *testing.T, development bool) (*authz.Evaluator, *authz.Registry) {
	t.Helper()
	registry := authz.NewRegistry()
	e, err := authz.NewEvaluator(registry, authz.WithDevelopment(development))
	require.NoError(t, err)
	return e, registry
}

func TestAuthorize_ResolvesRouteParameter(t *testing.T) {
	e, registry := newEvaluator(t, true)
	registry.Register("resource.read", authz.Requirement{ClaimType: "resource:{resourceId}", ClaimValue: "read"})

	holder := principal(nil, map[string][]string{"resource:42": {"read"}})
	require.NoError(t, e.Authorize("resource.read", holder, routeParams(map[string]string{"resourceId": "42"})))

	other := principal(nil, map[string][]string{"resource:7": {"read"}})
	err := e.Authorize("resource.read", other, routeParams(map[string]string{"resourceId": "42"}))
	require.ErrorIs(t, err, authz.ErrForbidden)
}

func TestAuthorize_OverrideRole(t *testing.T) {
	e, registry := newEvaluator(t, true)
	registry.Register("resource.read", authz.Requirement{
		ClaimType: "resource:{resourceId}", ClaimValue: "read", OverrideRoles: "Administrator, Auditor",
	})

	auditor := principal([]string{"Auditor"}, nil)
	require.NoError(t, e.Authorize("resource.read", auditor, routeParams(map[string]string{"resourceId": "42"})))
}

func TestAuthorize_QueryFallback(t *testing.T) {
	e, registry := newEvaluator(t, true)
	registry.Register("report", authz.Requirement{ClaimType: "tenant", ClaimValue: "{tenant}"})

	p := principal(nil, map[string][]string{"tenant": {"acme"}})
	params := authz.Params{Route: func(string) string { return "" }, Query: url.Values{"tenant": {"acme"}}}
	require.NoError(t, e.Authorize("report", p, params))

	params.Route = func(string) string { return "other" }
	require.ErrorIs(t, e.Authorize("report", p, params), authz.ErrForbidden)
}

func TestAuthorize_UnresolvedParameter(t *testing.T) {
	e, registry := newEvaluator(t, true)
	registry.Register("resource.read", authz.Requirement{ClaimType: "resource:{resourceId}", ClaimValue: "read"})

	err := e.Authorize("resource.read", principal(nil, nil), authz.Params{})
	require.ErrorIs(t, err, authz.ErrUnresolvedParameter)
	require.Contains(t, err.Error(), "resourceId")
}

func TestAuthorize_AllRequirementsMustHold(t *testing.T) {
	e, registry := newEvaluator(t, true)
	registry.Register("doc.edit",
		authz.Requirement{ClaimType: "doc:{id}", ClaimValue: "read"},
		authz.Requirement{ClaimType: "doc:{id}", ClaimValue: "write"},
	)
	params := routeParams(map[string]string{"id": "9"})

	require.ErrorIs(t, e.Authorize("doc.edit", principal(nil, map[string][]string{"doc:9": {"read"}}), params), authz.ErrForbidden)
	require.NoError(t, e.Authorize("doc.edit", principal(nil, map[string][]string{"doc:9": {"read", "write"}}), params))
}

func TestAuthorize_NoRequirements(t *testing.T) {
	dev, _ := newEvaluator(t, true)
	require.ErrorIs(t, dev.Authorize("missing", principal(nil, nil), authz.Params{}), authz.ErrNoRequirements)

	prod, _ := newEvaluator(t, false)
	err := prod.Authorize("missing", principal(nil, nil), authz.Params{})
	require.ErrorIs(t, err, authz.ErrForbidden)
	require.False(t, errors.Is(err, authz.ErrNoRequirements))
}

func TestMiddleware(t *testing.T) {
	e, registry := newEvaluator(t, true)
	registry.Register("resource.read", authz.Requirement{ClaimType: "resource:{resourceId}", ClaimValue: "read"})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /resources/{resourceId}", e.Middleware("resource.read")(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	mux.HandleFunc("GET /unregistered/{id}", e.Middleware("unregistered")(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	serve := func(path string, p *token.Principal) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if p != nil {
			req = req.WithContext(authz.WithPrincipal(req.Context(), p))
		}
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec.Code
	}

	holder := principal(nil, map[string][]string{"resource:42": {"read"}})
	require.Equal(t, http.StatusNoContent, serve("/resources/42", holder))
	require.Equal(t, http.StatusForbidden, serve("/resources/43", holder))
	require.Equal(t, http.StatusUnauthorized, serve("/resources/42", nil))
	require.Equal(t, http.StatusInternalServerError, serve("/unregistered/1", holder))
}

func TestNewEvaluator_RequiresRegistry(t *testing.T) {
	_, err := authz.NewEvaluator(nil)
	require.Error(t, err)
}
