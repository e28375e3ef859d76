package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-identity-server/auth"
	"github.com/jrsteele09/go-identity-server/email"
	"github.com/jrsteele09/go-identity-server/identity"
	fakecoderepo "github.com/jrsteele09/go-identity-server/identity/repofake"
	identitypg "github.com/jrsteele09/go-identity-server/identity/repopg"
	"github.com/jrsteele09/go-identity-server/internal/config"
	"github.com/jrsteele09/go-identity-server/internal/db"
	"github.com/jrsteele09/go-identity-server/server"
	"github.com/jrsteele09/go-identity-server/token"
	"github.com/jrsteele09/go-identity-server/token/refresh"
	refreshrepofake "github.com/jrsteele09/go-identity-server/token/refresh/repofake"
	refreshpg "github.com/jrsteele09/go-identity-server/token/refresh/repopg"
	"github.com/jrsteele09/go-identity-server/users"
	fakeuserrepo "github.com/jrsteele09/go-identity-server/users/repofake"
	userspg "github.com/jrsteele09/go-identity-server/users/repopg"
)

const revokedTokenCleanupInterval = 5 * time.Minute

type repos struct {
	users   users.UserRepo
	roles   users.RoleRepo
	codes   identity.CodeRepo
	refresh refresh.Repo
	close   func() error
}

func main() {
	c := config.New()
	configureLogging(c)

	if err := run(c); err != nil {
		log.Fatal().Err(err).Msg("error running server")
	}
	log.Info().Msg("server stopped")
}

func run(c config.Config) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	if err := config.Validate(c); err != nil {
		return err
	}
	displayAppname(c.GetAppName())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r, err := openRepos(ctx, c)
	if err != nil {
		return err
	}
	defer func() {
		if err := r.close(); err != nil {
			log.Error().Err(err).Msg("failed to close database")
		}
	}()

	handler, tokens, err := buildServer(c, r)
	if err != nil {
		return err
	}
	go cleanupRevokedTokens(ctx, tokens)

	httpServer := &http.Server{
		Addr:              c.GetPort(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errs := make(chan error, 1)
	go func() { errs <- listenAndServe(httpServer) }()

	select {
	case err := <-errs:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(httpServer)
}

func configureLogging(c config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339
	if c.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// openRepos uses Postgres when DATABASE_DSN is set and in-memory stores otherwise.
func openRepos(ctx context.Context, c config.Config) (*repos, error) {
	dsn := c.GetDatabaseDSN()
	if dsn == "" {
		log.Warn().Msg("DATABASE_DSN not set, using in-memory stores")
		return &repos{
			users:   fakeuserrepo.NewFakeUserRepo(),
			roles:   fakeuserrepo.NewFakeRoleRepo(),
			codes:   fakecoderepo.NewFakeCodeRepo(),
			refresh: refreshrepofake.NewFakeRefreshTokenRepo(),
			close:   func() error { return nil },
		}, nil
	}

	conn, err := db.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.RunMigrations(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return postgresRepos(conn), nil
}

func postgresRepos(conn *sql.DB) *repos {
	return &repos{
		users:   userspg.NewUserRepository(conn),
		roles:   userspg.NewRoleRepository(conn),
		codes:   identitypg.NewCodeRepository(conn),
		refresh: refreshpg.NewRefreshTokenRepository(conn),
		close:   conn.Close,
	}
}

func buildServer(c config.Config, r *repos) (*server.Server, *token.Manager, error) {
	logger := log.Logger

	store, err := identity.NewManager(r.users, r.roles, r.codes,
		identity.WithLockoutPolicy(c.GetMaxFailedAccessAttempts(), c.GetLockoutDuration()),
		identity.WithRequireConfirmedEmail(c.GetRequireEmailVerification()),
		identity.WithCodeExpiry(c.GetTwoFactorCodeExpiry(), c.GetOneTimeCodeExpiry()),
		identity.WithLogger(logger),
	)
	if err != nil {
		return nil, nil, err
	}

	signer, err := token.NewHMACSigner([]byte(c.GetSigningKey()))
	if err != nil {
		return nil, nil, err
	}
	tokens, err := token.New(signer,
		token.WithTokenExpiry(c.GetAccessTokenExpiry()),
		token.WithRefreshTokenLength(c.GetRefreshTokenLength()),
		token.WithIssuer(c.GetIssuer()),
		token.WithAudience(c.GetAudience()),
	)
	if err != nil {
		return nil, nil, err
	}

	refreshTokens, err := refresh.NewManager(r.refresh, tokens,
		refresh.WithExpiry(c.GetSessionRefreshExpiry(), c.GetRememberMeExpiry()),
		refresh.WithLogger(logger),
	)
	if err != nil {
		return nil, nil, err
	}

	sender, err := newSender(c, logger)
	if err != nil {
		return nil, nil, err
	}

	service, err := auth.NewService(store, tokens, refreshTokens, sender,
		auth.WithRequireEmailVerification(c.GetRequireEmailVerification()),
		auth.WithForceTwoFactorOnRegistration(c.GetForceTwoFactorOnRegistration()),
		auth.WithAdminEmails(c.GetAdminNotificationEmails()),
		auth.WithLogger(logger),
	)
	if err != nil {
		return nil, nil, err
	}

	s, err := server.New(c, server.Dependencies{
		Auth:   service,
		Tokens: tokens,
		Store:  store,
		Roles:  r.roles,
	}, server.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	return s, tokens, nil
}

// newSender delivers over SMTP when SMTP_HOST is set and logs messages otherwise.
func newSender(c config.Config, logger zerolog.Logger) (email.Sender, error) {
	var transport email.Transport
	if c.GetSmtpHost() == "" {
		logger.Warn().Msg("SMTP_HOST not set, emails will be logged")
		transport = email.NewLogTransport(logger)
	} else {
		smtp, err := email.NewSMTPTransport(c.GetSmtpHost(), c.GetSmtpPort(), c.GetSmtpAccount(), c.GetSmtpPassword(), c.GetSmtpFrom())
		if err != nil {
			return nil, err
		}
		transport = smtp
	}
	return email.NewTemplateSender(transport, email.NewLinks(c.GetBaseURL()), c.GetAppName())
}

func cleanupRevokedTokens(ctx context.Context, tokens *token.Manager) {
	ticker := time.NewTicker(revokedTokenCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tokens.CleanupRevokedTokens()
		}
	}
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server.ListenAndServe")
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "server.Shutdown")
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
