package token

import (
	"crypto/rand"
	"encoding/hex"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/jrsteele09/go-identity-server/internal/utils"
	"github.com/jrsteele09/go-identity-server/users"
)

// Claim names written by GenerateAccessToken. User and role claims never overwrite them.
const (
	ClaimSubject  = "sub"
	ClaimEmail    = "email"
	ClaimUsername = "username"
	ClaimRole     = "role"
)

var reservedClaims = map[string]struct{}{
	ClaimSubject: {}, ClaimEmail: {}, ClaimUsername: {}, ClaimRole: {},
	"iss": {}, "aud": {}, "iat": {}, "exp": {}, "nbf": {}, "jti": {},
}

// Principal is the verified content of an access token.
type Principal struct {
	TokenID   string
	UserID    string
	Email     string
	Username  string
	Roles     []string
	Claims    map[string][]string
	ExpiresAt time.Time
}

func (p *Principal) HasRole(role string) bool {
	return slices.Contains(p.Roles, role)
}

// HasClaim reports an exact (type, value) match.
func (p *Principal) HasClaim(claimType, value string) bool {
	return slices.Contains(p.Claims[claimType], value)
}

type Manager struct {
	signer             Signer
	issuer             string
	audience           string
	revokedCache       RevokedTokenCache
	accessTokenExpiry  time.Duration
	refreshTokenLength int
	nowFunc            func() time.Time
}

type ManagerOption func(*Manager)

func WithTokenExpiry(accessTokenExpiry time.Duration) ManagerOption {
	return func(m *Manager) {
		m.accessTokenExpiry = accessTokenExpiry
	}
}

func WithRefreshTokenLength(bytes int) ManagerOption {
	return func(m *Manager) {
		m.refreshTokenLength = bytes
	}
}

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func WithIssuer(issuer string) ManagerOption {
	return func(m *Manager) {
		m.issuer = issuer
	}
}

func WithAudience(audience string) ManagerOption {
	return func(m *Manager) {
		m.audience = audience
	}
}

func WithRevokedTokenCache(cache RevokedTokenCache) ManagerOption {
	return func(m *Manager) {
		m.revokedCache = cache
	}
}

func New(signer Signer, options ...ManagerOption) (*Manager, error) {
	if signer == nil {
		return nil, errors.New("[token.New] signer is required")
	}
	m := &Manager{
		signer:       signer,
		revokedCache: NewInMemoryRevokedTokenCache(),
	}

	for _, opt := range options {
		opt(m)
	}

	if m.accessTokenExpiry == 0 {
		m.accessTokenExpiry = 15 * time.Minute
	}
	// 16 bytes is the floor; anything shorter is raised to 32.
	if m.refreshTokenLength < 16 {
		m.refreshTokenLength = 32
	}
	if m.nowFunc == nil {
		m.nowFunc = time.Now
	}
	return m, nil
}

// GenerateAccessToken mints a signed token for user. The user's own claims and
// roleClaims are merged into one multi-valued entry per claim type.
func (c *Manager) GenerateAccessToken(user *users.User, roleClaims []users.Claim) (string, time.Time, error) {
	now := c.nowFunc()
	expiresAt := now.Add(c.accessTokenExpiry)

	claims := jwt.MapClaims{
		ClaimSubject:  user.ID,
		ClaimEmail:    user.Email,
		ClaimUsername: user.Username,
		ClaimRole:     utils.Unique(user.Roles),
		"iat":         now.Unix(),
		"exp":         expiresAt.Unix(),
		"jti":         uuid.New().String(),
	}
	if c.issuer != "" {
		claims["iss"] = c.issuer
	}
	if c.audience != "" {
		claims["aud"] = c.audience
	}

	for claimType, values := range MergeClaims(user.Claims, roleClaims) {
		if _, reserved := reservedClaims[claimType]; reserved {
			continue
		}
		claims[claimType] = values
	}

	signed, err := c.signer.Sign(claims)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "[Manager.GenerateAccessToken] Sign")
	}
	return signed, expiresAt, nil
}

// MergeClaims groups claims by type, dropping duplicate values.
func MergeClaims(sets ...[]users.Claim) map[string][]string {
	merged := make(map[string][]string)
	for _, set := range sets {
		for _, claim := range set {
			if !slices.Contains(merged[claim.Type], claim.Value) {
				merged[claim.Type] = append(merged[claim.Type], claim.Value)
			}
		}
	}
	return merged
}

// GenerateRefreshToken returns an opaque hex value from crypto/rand.
func (c *Manager) GenerateRefreshToken() (string, error) {
	tokenBytes := make([]byte, c.refreshTokenLength)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", errors.Wrap(err, "[Manager.GenerateRefreshToken] rand.Read")
	}
	return hex.EncodeToString(tokenBytes), nil
}

// Parse verifies the signature, algorithm, expiry, issuer, audience and revocation.
func (c *Manager) Parse(rawToken string) (*Principal, error) {
	claims, err := c.verify(rawToken)
	if err != nil {
		return nil, err
	}

	p := &Principal{Claims: make(map[string][]string)}
	p.TokenID, _ = claims["jti"].(string)
	p.UserID, _ = claims[ClaimSubject].(string)
	p.Email, _ = claims[ClaimEmail].(string)
	p.Username, _ = claims[ClaimUsername].(string)
	p.Roles = utils.ToStringSlice(claims[ClaimRole])
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		p.ExpiresAt = exp.Time
	}
	for k, v := range claims {
		if _, reserved := reservedClaims[k]; reserved {
			continue
		}
		p.Claims[k] = utils.ToStringSlice(v)
	}

	if p.TokenID != "" && c.revokedCache.IsRevoked(p.TokenID) {
		return nil, apperrors.ErrTokenRevoked
	}
	return p, nil
}

// RevokeAccessToken revokes an access token by its JTI until it expires.
func (c *Manager) RevokeAccessToken(rawToken string) error {
	claims, err := c.verify(rawToken)
	if err != nil {
		return err
	}

	jti, ok := claims["jti"].(string)
	if !ok || jti == "" {
		return errors.New("token missing jti claim")
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return errors.New("token missing exp claim")
	}
	return c.revokedCache.Add(jti, exp.Time)
}

// CleanupRevokedTokens removes expired tokens from the revocation cache
func (c *Manager) CleanupRevokedTokens() {
	if c.revokedCache != nil {
		c.revokedCache.Cleanup()
	}
}

func (c *Manager) verify(rawToken string) (jwt.MapClaims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, apperrors.ErrInvalidToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.signer.GetSigningMethod().Alg()}),
		jwt.WithTimeFunc(c.nowFunc),
		jwt.WithExpirationRequired(),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}
	if c.audience != "" {
		opts = append(opts, jwt.WithAudience(c.audience))
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(rawToken, claims, c.signer.GetVerificationKey, opts...)
	if err != nil || !token.Valid {
		return nil, errors.Wrap(apperrors.ErrInvalidToken, errorText(err))
	}
	return claims, nil
}

func errorText(err error) string {
	if err == nil {
		return "token not valid"
	}
	return err.Error()
}
