// Package authz evaluates claim requirements whose type and value templates are
// filled from request parameters, e.g. "resource:{resourceId}".
package authz

import (
	"context"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-identity-server/token"
)

var (
	ErrForbidden           = errors.New("forbidden")
	ErrUnresolvedParameter = errors.New("unresolved requirement parameter")
	ErrNoRequirements      = errors.New("no requirements registered for protected operation")
)

var placeholder = regexp.MustCompile(`\{([A-Za-z0-9_\-]+)\}`)

// Requirement demands an exact (type, value) claim once placeholders are filled.
// Holding any of OverrideRoles (comma separated) satisfies it outright.
type Requirement struct {
	ClaimType     string
	ClaimValue    string
	OverrideRoles string
}

func (r Requirement) roles() []string {
	var roles []string
	for _, role := range strings.Split(r.OverrideRoles, ",") {
		if role = strings.TrimSpace(role); role != "" {
			roles = append(roles, role)
		}
	}
	return roles
}

// Registry maps operations to their requirements. It is filled at startup.
type Registry struct {
	lock         sync.RWMutex
	requirements map[string][]Requirement
}

func NewRegistry() *Registry {
	return &Registry{requirements: make(map[string][]Requirement)}
}

func (r *Registry) Register(operation string, requirements ...Requirement) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.requirements[operation] = append(r.requirements[operation], requirements...)
}

func (r *Registry) Requirements(operation string) []Requirement {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return slices.Clone(r.requirements[operation])
}

// Subject is whoever is being authorized. *token.Principal satisfies it.
type Subject interface {
	HasRole(role string) bool
	HasClaim(claimType, value string) bool
}

var _ Subject = (*token.Principal)(nil)

// Params supplies placeholder values. Route values win over query values.
type Params struct {
	Route func(name string) string
	Query url.Values
}

func (p Params) lookup(name string) (string, bool) {
	if p.Route != nil {
		if v := p.Route(name); v != "" {
			return v, true
		}
	}
	if v := p.Query.Get(name); v != "" {
		return v, true
	}
	return "", false
}

// Evaluator decides requests against a Registry.
type Evaluator struct {
	registry    *Registry
	development bool
	logger      zerolog.Logger
}

type EvaluatorOption func(*Evaluator)

// WithDevelopment makes missing registrations an error instead of a silent deny.
func WithDevelopment(development bool) EvaluatorOption {
	return func(e *Evaluator) {
		e.development = development
	}
}

func WithLogger(logger zerolog.Logger) EvaluatorOption {
	return func(e *Evaluator) {
		e.logger = logger
	}
}

func NewEvaluator(registry *Registry, options ...EvaluatorOption) (*Evaluator, error) {
	if registry == nil {
		return nil, errors.New("[authz.NewEvaluator] registry is required")
	}
	e := &Evaluator{registry: registry, logger: log.Logger}
	for _, opt := range options {
		opt(e)
	}
	return e, nil
}

// Authorize returns nil when subject meets every requirement of operation,
// ErrForbidden when it does not, and a configuration error otherwise.
func (e *Evaluator) Authorize(operation string, subject Subject, params Params) error {
	requirements := e.registry.Requirements(operation)
	if len(requirements) == 0 {
		if e.development {
			return errors.Wrap(ErrNoRequirements, operation)
		}
		e.logger.Error().Str("operation", operation).Msg("protected operation has no requirements, denying")
		return ErrForbidden
	}
	if subject == nil {
		return ErrForbidden
	}

	for _, req := range requirements {
		if slices.ContainsFunc(req.roles(), subject.HasRole) {
			continue
		}
		claimType, err := resolve(req.ClaimType, params)
		if err != nil {
			return errors.Wrapf(err, "operation %s", operation)
		}
		claimValue, err := resolve(req.ClaimValue, params)
		if err != nil {
			return errors.Wrapf(err, "operation %s", operation)
		}
		if !subject.HasClaim(claimType, claimValue) {
			return ErrForbidden
		}
	}
	return nil
}

// resolve fills every {name} in template. A name with no value is an error.
func resolve(template string, params Params) (string, error) {
	var missing string
	out := placeholder.ReplaceAllStringFunc(template, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := params.lookup(name)
		if !ok && missing == "" {
			missing = name
		}
		return v
	})
	if missing != "" {
		return "", errors.Wrap(ErrUnresolvedParameter, missing)
	}
	return out, nil
}

type principalKey struct{}

// WithPrincipal stores the verified principal for Middleware.
func WithPrincipal(ctx context.Context, p *token.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (*token.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*token.Principal)
	return p, ok && p != nil
}
