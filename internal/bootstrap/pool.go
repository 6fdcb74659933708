package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/idmx-dev/poolhouse/internal/config"
	"github.com/idmx-dev/poolhouse/internal/domain/repository"
	"github.com/idmx-dev/poolhouse/internal/observability/logger"
	"github.com/idmx-dev/poolhouse/internal/store"
)

// EnsureDefaultPool crea el pool default al boot si está habilitado y no
// existe todavía. Es idempotente: corridas repetidas (o dos réplicas
// arrancando a la vez) no fallan: ErrAlreadyExists se trata como éxito.
func EnsureDefaultPool(ctx context.Context, conn store.Connection, cfg *config.Config) error {
	dp := cfg.Bootstrap.DefaultPool
	if !dp.Enabled {
		return nil
	}
	log := logger.Named("bootstrap")

	if _, err := conn.Pools().Get(ctx, dp.ID); err == nil {
		log.Debug("default pool already present", logger.PoolID(dp.ID))
		return nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("bootstrap: checking default pool: %w", err)
	}

	_, err := conn.Pools().Create(ctx, repository.CreatePoolInput{
		ID:   dp.ID,
		Name: dp.Name,
		PasswordPolicy: repository.PasswordPolicy{
			MinLength:        cfg.Security.PasswordPolicy.MinLength,
			RequireUppercase: cfg.Security.PasswordPolicy.RequireUpper,
			RequireLowercase: cfg.Security.PasswordPolicy.RequireLower,
			RequireNumbers:   cfg.Security.PasswordPolicy.RequireDigit,
			RequireSymbols:   cfg.Security.PasswordPolicy.RequireSymbol,
		},
		MFAConfiguration: repository.MFAOptional,
	})
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil
		}
		return fmt.Errorf("bootstrap: creating default pool: %w", err)
	}

	log.Info("default pool created", logger.PoolID(dp.ID))
	return nil
}
