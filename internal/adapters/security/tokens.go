package security

import (
	"crypto/rand"
	"encoding/base32"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
)

const (
	licenseKeyBytes = 20
	licenseKeyGroup = 4
	apiKeyIDBytes   = 8
	apiSecretBytes  = 32
	apiKeyIDPrefix  = "lk_"
)

// TokenGenerator mints opaque random credentials from crypto/rand.
type TokenGenerator struct{}

func NewTokenGenerator() TokenGenerator { return TokenGenerator{} }

// LicenseKey returns 160 random bits as dash-grouped base32, for example
// ABCD-EFGH-...; the format carries no structure.
func (TokenGenerator) LicenseKey() (string, error) {
	raw, err := randomBytes(licenseKeyBytes)
	if err != nil {
		return "", err
	}
	encoded := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw)
	groups := make([]string, 0, len(encoded)/licenseKeyGroup)
	for i := 0; i < len(encoded); i += licenseKeyGroup {
		groups = append(groups, encoded[i:min(i+licenseKeyGroup, len(encoded))])
	}
	return strings.Join(groups, "-"), nil
}

func (TokenGenerator) APICredential() (ports.APICredential, error) {
	id, err := randomBytes(apiKeyIDBytes)
	if err != nil {
		return ports.APICredential{}, err
	}
	secret, err := randomBytes(apiSecretBytes)
	if err != nil {
		return ports.APICredential{}, err
	}
	return ports.APICredential{
		KeyID:  apiKeyIDPrefix + hex.EncodeToString(id),
		Secret: base64.RawURLEncoding.EncodeToString(secret),
	}, nil
}

func randomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}
