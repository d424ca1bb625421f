package services

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/suitelink/internal/core/domain"
	"github.com/custodia-labs/suitelink/internal/core/ports/driven"
)

// CredentialStore maps client configuration and token sets onto the
// string keys of a Vault.
type CredentialStore struct {
	vault driven.Vault
	keys  domain.VaultKeys
}

// NewCredentialStore creates a store namespaced to provider.
func NewCredentialStore(vault driven.Vault, provider string) *CredentialStore {
	return &CredentialStore{vault: vault, keys: domain.KeysFor(provider)}
}

// Keys returns the vault key namespace.
func (s *CredentialStore) Keys() domain.VaultKeys {
	return s.keys
}

// LoadConfiguration reads the client configuration. Missing keys are empty fields.
func (s *CredentialStore) LoadConfiguration(ctx context.Context) (domain.ClientConfiguration, error) {
	var cfg domain.ClientConfiguration
	fields := []struct {
		key string
		dst *string
	}{
		{s.keys.ClientID, &cfg.ClientID},
		{s.keys.ClientSecret, &cfg.ClientSecret},
		{s.keys.AccountID, &cfg.AccountID},
		{s.keys.RedirectURI, &cfg.RedirectURI},
	}
	for _, f := range fields {
		v, _, err := s.vault.Load(ctx, f.key)
		if err != nil {
			return domain.ClientConfiguration{}, fmt.Errorf("loading configuration: %w", err)
		}
		*f.dst = v
	}
	return cfg, nil
}

// SaveConfiguration writes all four configuration fields in one batch.
func (s *CredentialStore) SaveConfiguration(ctx context.Context, cfg domain.ClientConfiguration) error {
	err := s.vault.SaveMany(ctx, map[string]string{
		s.keys.ClientID:     cfg.ClientID,
		s.keys.ClientSecret: cfg.ClientSecret,
		s.keys.AccountID:    cfg.AccountID,
		s.keys.RedirectURI:  cfg.RedirectURI,
	})
	if err != nil {
		return fmt.Errorf("saving configuration: %w", err)
	}
	return nil
}

// LoadTokens reads the stored token set. ok is false when no access token
// is stored.
func (s *CredentialStore) LoadTokens(ctx context.Context) (tokens domain.TokenSet, ok bool, err error) {
	access, ok, err := s.vault.Load(ctx, s.keys.AccessToken)
	if err != nil {
		return domain.TokenSet{}, false, fmt.Errorf("loading tokens: %w", err)
	}
	if !ok || access == "" {
		return domain.TokenSet{}, false, nil
	}

	refresh, _, err := s.vault.Load(ctx, s.keys.RefreshToken)
	if err != nil {
		return domain.TokenSet{}, false, fmt.Errorf("loading tokens: %w", err)
	}
	expiryRaw, _, err := s.vault.Load(ctx, s.keys.TokenExpiry)
	if err != nil {
		return domain.TokenSet{}, false, fmt.Errorf("loading tokens: %w", err)
	}

	// An unreadable expiry leaves ExpiresAt zero, which reads as expired.
	var expiry time.Time
	if expiryRaw != "" {
		if t, perr := time.Parse(time.RFC3339Nano, expiryRaw); perr == nil {
			expiry = t
		}
	}

	return domain.TokenSet{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresAt:    expiry,
	}, true, nil
}

// SaveTokens writes the access token, refresh token and expiry in one batch.
func (s *CredentialStore) SaveTokens(ctx context.Context, tokens domain.TokenSet) error {
	err := s.vault.SaveMany(ctx, map[string]string{
		s.keys.AccessToken:  tokens.AccessToken,
		s.keys.RefreshToken: tokens.RefreshToken,
		s.keys.TokenExpiry:  tokens.ExpiresAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("saving tokens: %w", err)
	}
	return nil
}

// PurgeTokens removes the token set and keeps the configuration.
func (s *CredentialStore) PurgeTokens(ctx context.Context) error {
	if err := s.vault.DeleteMany(ctx, s.keys.Tokens()...); err != nil {
		return fmt.Errorf("purging tokens: %w", err)
	}
	return nil
}

// PurgeAll removes tokens and configuration.
func (s *CredentialStore) PurgeAll(ctx context.Context) error {
	if err := s.vault.DeleteMany(ctx, s.keys.All()...); err != nil {
		return fmt.Errorf("purging credentials: %w", err)
	}
	return nil
}
