package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
)

// JWTSigner issues RS256 brand access tokens.
type JWTSigner struct {
	kid        string
	issuer     string
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
}

func NewJWTSigner(kid, issuer, privateKeyPEM string) (*JWTSigner, error) {
	if kid == "" {
		return nil, errors.New("jwt key id (kid) is required")
	}
	if privateKeyPEM == "" {
		return nil, errors.New("jwt private key is required")
	}
	priv, err := parseRSAPrivate(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &JWTSigner{kid: kid, issuer: issuer, privateKey: priv, publicKey: &priv.PublicKey}, nil
}

// NewEphemeralJWTSigner generates an in-memory keypair. Tokens do not
// survive a restart.
func NewEphemeralJWTSigner(kid, issuer string) (*JWTSigner, error) {
	if kid == "" {
		kid = "ephemeral-key-1"
	}
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	return &JWTSigner{kid: kid, issuer: issuer, privateKey: privateKey, publicKey: &privateKey.PublicKey}, nil
}

type brandJWTClaims struct {
	BrandSlug string `json:"brand_slug"`
	jwt.RegisteredClaims
}

func (s *JWTSigner) Sign(claims ports.BrandClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, brandJWTClaims{
		BrandSlug: claims.BrandSlug,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.BrandID.String(),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
	})
	token.Header["kid"] = s.kid
	return token.SignedString(s.privateKey)
}

func (s *JWTSigner) ParseAndValidate(raw string) (ports.BrandClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithLeeway(30 * time.Second),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	parsed, err := jwt.ParseWithClaims(raw, &brandJWTClaims{}, func(token *jwt.Token) (any, error) {
		return s.publicKey, nil
	}, opts...)
	if err != nil {
		return ports.BrandClaims{}, err
	}
	claims, ok := parsed.Claims.(*brandJWTClaims)
	if !ok || !parsed.Valid {
		return ports.BrandClaims{}, errors.New("invalid token claims")
	}
	brandID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return ports.BrandClaims{}, fmt.Errorf("parse subject: %w", err)
	}
	kid, _ := parsed.Header["kid"].(string)
	return ports.BrandClaims{
		BrandID:   brandID,
		BrandSlug: claims.BrandSlug,
		IssuedAt:  claims.IssuedAt.Time.UTC(),
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
		KeyID:     kid,
	}, nil
}

func parseRSAPrivate(raw string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(raw))
	if block == nil {
		return nil, errors.New("invalid private PEM")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	keyAny, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := keyAny.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not RSA")
	}
	return key, nil
}
