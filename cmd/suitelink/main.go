// Package main is the entry point for the suitelink CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/custodia-labs/suitelink/internal/adapters/driven/config/file"
	"github.com/custodia-labs/suitelink/internal/adapters/driven/oauth"
	"github.com/custodia-labs/suitelink/internal/adapters/driven/vault/memory"
	"github.com/custodia-labs/suitelink/internal/adapters/driven/vault/redis"
	"github.com/custodia-labs/suitelink/internal/adapters/driven/vault/sqlite"
	"github.com/custodia-labs/suitelink/internal/adapters/driving/cli"
	browser "github.com/custodia-labs/suitelink/internal/adapters/driving/oauth"
	"github.com/custodia-labs/suitelink/internal/core/domain"
	"github.com/custodia-labs/suitelink/internal/core/ports/driven"
	"github.com/custodia-labs/suitelink/internal/core/services"
	"github.com/custodia-labs/suitelink/internal/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	// A .env in the working directory may carry SUITELINK_* overrides.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("could not load .env: %v", err)
	}

	configStore, err := file.NewConfigStore("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	settings, err := services.NewSettingsService(configStore).Get()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	ctx := context.Background()
	vault, err := openVault(ctx, settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: opening %s vault: %v\n", settings.Vault.Backend, err)
		return 1
	}
	if c, ok := vault.(io.Closer); ok {
		defer c.Close()
	}

	endpoints, ok := domain.ProviderPreset(settings.Provider)
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: unknown provider %q\n", settings.Provider)
		return 1
	}

	httpClient := &http.Client{Timeout: settings.HTTP.Timeout()}
	store := services.NewCredentialStore(vault, endpoints.Name)
	tokenClient := oauth.NewClient(oauth.WithHTTPClient(httpClient))
	tokens := services.NewTokenManager(endpoints, store, tokenClient)
	flow := services.NewFlowController(endpoints, store, tokens, tokenClient,
		services.WithStrictState(settings.OAuth.StrictState))
	if err := flow.Restore(ctx); err != nil {
		logger.Warn("could not restore session: %v", err)
	}

	api := services.NewAPIClient(endpoints, store, tokens,
		services.WithAPIHTTPClient(httpClient),
		services.WithRateLimiter(services.NewRateLimiter(services.RateLimitConfig{
			RequestsPerSecond: settings.API.RateLimit,
			Burst:             settings.API.Burst,
		})),
		services.WithUserAgent("suitelink/"+cli.Version()),
	)

	cli.SetServices(cli.Services{
		Auth:      flow,
		Resources: api,
		Records:   services.NewRecordService(api, endpoints, store, nil),
		Settings:  services.NewSettingsService(configStore),
		Browser:   browser.SystemBrowser{},
	})
	return cli.Execute()
}

func openVault(ctx context.Context, settings *domain.AppSettings) (driven.Vault, error) {
	switch settings.Vault.Backend {
	case domain.VaultMemory:
		logger.Warn("memory vault selected; credentials are lost on exit")
		return memory.NewVault(), nil
	case domain.VaultRedis:
		return redis.NewVault(ctx, redis.Options{
			Addr:     settings.Redis.Addr,
			Password: settings.Redis.Password,
			DB:       settings.Redis.DB,
		})
	default:
		return sqlite.NewVault(settings.Vault.Dir)
	}
}
