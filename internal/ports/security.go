package ports

import (
	"time"

	"github.com/google/uuid"
)

type SecretHasher interface {
	Hash(secret string) (string, error)
	Compare(hash, secret string) error
}

type BrandClaims struct {
	BrandID   uuid.UUID
	BrandSlug string
	IssuedAt  time.Time
	ExpiresAt time.Time
	KeyID     string
}

type TokenSigner interface {
	Sign(claims BrandClaims) (string, error)
	ParseAndValidate(token string) (BrandClaims, error)
}

// APICredential is handed to the brand once; only the secret hash is kept.
type APICredential struct {
	KeyID  string
	Secret string
}

func (c APICredential) String() string { return c.KeyID + "." + c.Secret }

type TokenGenerator interface {
	LicenseKey() (string, error)
	APICredential() (APICredential, error)
}
