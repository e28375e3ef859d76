// Package server exposes the identity flows as a JSON API over net/http.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-identity-server/auth"
	"github.com/jrsteele09/go-identity-server/authz"
	"github.com/jrsteele09/go-identity-server/identity"
	"github.com/jrsteele09/go-identity-server/internal/config"
	"github.com/jrsteele09/go-identity-server/token"
	"github.com/jrsteele09/go-identity-server/users"
)

// Dependencies are the services the HTTP layer forwards to.
type Dependencies struct {
	Auth   *auth.Service
	Tokens *token.Manager
	Store  identity.Store
	Roles  users.RoleRepo
}

type Server struct {
	env       string
	mux       *http.ServeMux
	routes    []string
	config    config.Config
	auth      *auth.Service
	tokens    *token.Manager
	store     identity.Store
	roles     users.RoleRepo
	registry  *authz.Registry
	evaluator *authz.Evaluator
	logger    zerolog.Logger
}

type Option func(*Server)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func New(cfg config.Config, deps Dependencies, options ...Option) (*Server, error) {
	if deps.Auth == nil || deps.Tokens == nil || deps.Store == nil || deps.Roles == nil {
		return nil, errors.New("[server.New] auth, tokens, store and roles are required")
	}

	s := &Server{
		env:      cfg.GetEnv(),
		mux:      http.NewServeMux(),
		config:   cfg,
		auth:     deps.Auth,
		tokens:   deps.Tokens,
		store:    deps.Store,
		roles:    deps.Roles,
		registry: authz.NewRegistry(),
		logger:   log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}

	evaluator, err := authz.NewEvaluator(s.registry,
		authz.WithDevelopment(cfg.IsDevelopment()),
		authz.WithLogger(s.logger))
	if err != nil {
		return nil, errors.Wrap(err, "[server.New] authz.NewEvaluator")
	}
	s.evaluator = evaluator

	if err := s.InitialiseSystem(context.Background()); err != nil {
		return nil, errors.Wrap(err, "[server.New] failed to initialise the system")
	}

	s.registerRequirements()
	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != config.EnvDevelopment {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)
		if len(parts) > 1 {
			s.logRoute(parts[0], parts[1])
		} else {
			s.logRoute("", parts[0])
		}
	}
}

func (s *Server) logRoute(method, path string) {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	color, ok := methodColors[method]
	if !ok {
		color = Gray
	}
	s.logger.Info().Msgf("[%s] %s", color+paddedMethod+ResetColor, path)
}

// getScheme determines the scheme (http/https), honouring a TLS terminating proxy.
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}

// clientIP is the socket address unless TRUST_PROXY_HEADERS is set, in which
// case the first X-Forwarded-For hop wins.
func (s *Server) clientIP(r *http.Request) string {
	if s.config.GetTrustProxyHeaders() {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			return strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0])
		}
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i != -1 {
		host = host[:i]
	}
	return strings.Trim(host, "[]")
}
