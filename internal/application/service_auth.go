package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
)

const credentialCachePrefix = "m91:credential:"

// AuthenticateAPIKey resolves "<key_id>.<secret>" to the owning brand.
// Successful bcrypt checks are cached by key id and secret digest; a cached
// entry still requires the brand to be active and to hold that key id.
func (s *Service) AuthenticateAPIKey(ctx context.Context, raw string) (Actor, error) {
	keyID, secret, ok := strings.Cut(strings.TrimSpace(raw), ".")
	if !ok || keyID == "" || secret == "" {
		return Actor{}, domain.ErrUnauthorized
	}
	cacheKey := credentialCachePrefix + keyID + ":" + secretDigest(secret)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey); err == nil {
			if brandID, parseErr := uuid.Parse(cached); parseErr == nil {
				brand, getErr := s.brands.GetByID(ctx, brandID)
				if getErr == nil && brand.Active && brand.APIKeyID == keyID {
					return Actor{BrandID: brand.ID, BrandSlug: brand.Slug}, nil
				}
			}
			_ = s.cache.Delete(ctx, cacheKey)
		} else if !errors.Is(err, ports.ErrCacheMiss) {
			s.logFailure(ctx, "credential_cache_get", err)
		}
	}

	brand, err := s.brands.GetByAPIKeyID(ctx, keyID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Actor{}, domain.ErrUnauthorized
		}
		return Actor{}, err
	}
	if err := s.hasher.Compare(brand.APIKeyHash, secret); err != nil {
		return Actor{}, domain.ErrUnauthorized
	}
	if !brand.Active {
		return Actor{}, domain.ErrUnauthorized
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, brand.ID.String(), s.cfg.CredentialCacheTTL); err != nil {
			s.logFailure(ctx, "credential_cache_set", err)
		}
	}
	return Actor{BrandID: brand.ID, BrandSlug: brand.Slug}, nil
}

// IssueAccessToken exchanges an API key for a short-lived bearer token.
func (s *Service) IssueAccessToken(ctx context.Context, input IssueTokenInput) (AccessToken, error) {
	if err := s.validateInput(input); err != nil {
		return AccessToken{}, err
	}
	actor, err := s.AuthenticateAPIKey(ctx, input.APIKey)
	if err != nil {
		return AccessToken{}, err
	}
	now := s.nowFn()
	claims := ports.BrandClaims{
		BrandID:   actor.BrandID,
		BrandSlug: actor.BrandSlug,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.AccessTokenTTL),
	}
	token, err := s.signer.Sign(claims)
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: token, TokenType: "Bearer", ExpiresAt: claims.ExpiresAt}, nil
}

func (s *Service) AuthenticateToken(ctx context.Context, raw string) (Actor, error) {
	claims, err := s.signer.ParseAndValidate(raw)
	if err != nil {
		return Actor{}, domain.ErrUnauthorized
	}
	brand, err := s.brands.GetByID(ctx, claims.BrandID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Actor{}, domain.ErrUnauthorized
		}
		return Actor{}, err
	}
	if !brand.Active {
		return Actor{}, domain.ErrUnauthorized
	}
	return Actor{BrandID: brand.ID, BrandSlug: brand.Slug}, nil
}

func secretDigest(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
