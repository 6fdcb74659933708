// Package redis implementa el backend clave-valor sobre Redis.
//
// Cada entidad se guarda como JSON bajo una clave particionada por pool, y
// los listados se resuelven con sorted sets por pool (ZRangeByLex) para que
// la paginación por keyset funcione igual que en el backend relacional. La
// unicidad (email por pool, client_id global, nombre de group por pool) se
// reserva con SetNX sobre claves de índice dedicadas.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/idmx-dev/poolhouse/internal/domain/repository"
	"github.com/idmx-dev/poolhouse/internal/observability/logger"
	"github.com/idmx-dev/poolhouse/internal/store"
)

func init() {
	store.Register(&redisAdapter{})
}

type redisAdapter struct{}

func (a *redisAdapter) Name() string { return "redis" }

func (a *redisAdapter) Connect(ctx context.Context, cfg store.AdapterConfig) (store.Connection, error) {
	return connect(ctx, cfg)
}

type conn struct {
	rdb    *redis.Client
	prefix string
	log    *zap.Logger

	pools   *poolRepo
	users   *userRepo
	clients *clientRepo
	groups  *groupRepo
	mfa     *mfaRepo
}

func connect(ctx context.Context, cfg store.AdapterConfig) (store.Connection, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis: ping %s: %v: %w", cfg.RedisAddr, err, repository.ErrBackendUnavailable)
	}

	c := &conn{
		rdb:    rdb,
		prefix: cfg.RedisPrefix,
		log:    logger.Named("store.redis"),
	}
	c.pools = &poolRepo{c: c}
	c.users = &userRepo{c: c}
	c.clients = &clientRepo{c: c}
	c.groups = &groupRepo{c: c}
	c.mfa = &mfaRepo{c: c}
	return c, nil
}

func (c *conn) Name() string { return "redis" }

func (c *conn) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %v: %w", err, repository.ErrBackendUnavailable)
	}
	return nil
}

func (c *conn) Close() error { return c.rdb.Close() }

func (c *conn) Pools() repository.PoolRepository           { return c.pools }
func (c *conn) Users() repository.UserRepository           { return c.users }
func (c *conn) Clients() repository.ClientRepository       { return c.clients }
func (c *conn) Groups() repository.GroupRepository         { return c.groups }
func (c *conn) MFADevices() repository.MFADeviceRepository { return c.mfa }
