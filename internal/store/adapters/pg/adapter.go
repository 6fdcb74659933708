// Package pg implementa el contrato de almacenamiento sobre PostgreSQL
// usando pgxpool. El aislamiento por pool se apoya en claves compuestas
// (pool_id, id) y la cascada de borrado en foreign keys ON DELETE CASCADE.
package pg

import (
	"context"
	"fmt"
	"io/fs"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/idmx-dev/poolhouse/internal/domain/repository"
	"github.com/idmx-dev/poolhouse/internal/observability/logger"
	"github.com/idmx-dev/poolhouse/internal/store"
	"github.com/idmx-dev/poolhouse/migrations"
)

func init() {
	store.Register(&pgAdapter{})
}

type pgAdapter struct{}

func (a *pgAdapter) Name() string { return "postgres" }

func (a *pgAdapter) Connect(ctx context.Context, cfg store.AdapterConfig) (store.Connection, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse pgxpool config: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		pcfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	// pgxpool no tiene MaxIdleConns; MinConns es lo más cercano.
	if cfg.MaxIdleConns > 0 {
		pcfg.MinConns = int32(cfg.MaxIdleConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("%w: new pgxpool: %v", repository.ErrBackendUnavailable, err)
	}
	// Conectar para fallar rápido si hay problema.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: pgxpool ping: %v", repository.ErrBackendUnavailable, err)
	}

	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &conn{pool: pool}, nil
}

// migrate aplica el esquema embebido en orden lexicográfico. Todas las
// sentencias son IF NOT EXISTS, así que correr en cada boot es seguro y
// varias réplicas arrancando a la vez no se pisan.
func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	entries, err := fs.ReadDir(migrations.PostgresFS, migrations.PostgresDir)
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	log := logger.Named("store.pg")
	for _, name := range names {
		sql, err := fs.ReadFile(migrations.PostgresFS, migrations.PostgresDir+"/"+name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		log.Debug("migration aplicada", logger.String("migration", name))
	}
	return nil
}

// conn implementa store.Connection sobre un pgxpool compartido.
type conn struct {
	pool *pgxpool.Pool
}

func (c *conn) Name() string { return "postgres" }

func (c *conn) Ping(ctx context.Context) error {
	if err := c.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", repository.ErrBackendUnavailable, err)
	}
	return nil
}

func (c *conn) Close() error {
	c.pool.Close()
	return nil
}

func (c *conn) Pools() repository.PoolRepository           { return &poolRepo{pool: c.pool} }
func (c *conn) Users() repository.UserRepository           { return &userRepo{pool: c.pool} }
func (c *conn) Clients() repository.ClientRepository       { return &clientRepo{pool: c.pool} }
func (c *conn) Groups() repository.GroupRepository         { return &groupRepo{pool: c.pool} }
func (c *conn) MFADevices() repository.MFADeviceRepository { return &mfaRepo{pool: c.pool} }
