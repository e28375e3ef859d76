package token

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/jrsteele09/go-identity-server/internal/config"
)

// ErrSigningKeyTooShort is returned for HMAC keys shorter than config.MinSigningKeyLength.
var ErrSigningKeyTooShort = errors.New("signing key too short")

// Signer is an interface for signing and verifying JWT tokens
type Signer interface {
	// Sign creates a signed JWT token from claims
	Sign(claims jwt.MapClaims) (string, error)

	// GetVerificationKey returns the key used to verify token's signature
	GetVerificationKey(token *jwt.Token) (any, error)

	// GetSigningMethod returns the JWT signing method used
	GetSigningMethod() jwt.SigningMethod
}

// HMACSigner implements Signer using symmetric HMAC-SHA256
type HMACSigner struct {
	secret []byte
}

var _ Signer = (*HMACSigner)(nil)

// NewHMACSigner creates an HMAC signer. Keys shorter than 32 bytes are rejected.
func NewHMACSigner(secret []byte) (*HMACSigner, error) {
	if len(secret) < config.MinSigningKeyLength {
		return nil, errors.Wrapf(ErrSigningKeyTooShort, "[NewHMACSigner] need %d bytes, got %d", config.MinSigningKeyLength, len(secret))
	}
	key := make([]byte, len(secret))
	copy(key, secret)
	return &HMACSigner{secret: key}, nil
}

func (h *HMACSigner) Sign(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(h.secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token with HMAC")
	}
	return signedToken, nil
}

func (h *HMACSigner) GetVerificationKey(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return h.secret, nil
}

func (h *HMACSigner) GetSigningMethod() jwt.SigningMethod {
	return jwt.SigningMethodHS256
}
