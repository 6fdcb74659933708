package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/idmx-dev/poolhouse/internal/domain/repository"
)

// zMember arma el miembro de un índice zset; el score siempre es 0 para
// que el orden sea puramente lexicográfico.
func zMember(id string) redis.Z {
	return redis.Z{Score: 0, Member: id}
}

func wrapUnavailable(op, key string, err error) error {
	return fmt.Errorf("redis: %s %s: %v: %w", op, key, err, repository.ErrBackendUnavailable)
}

// getJSON carga y decodifica el valor de una clave. redis.Nil se traduce a
// ErrNotFound; cualquier otro fallo de red/servidor a ErrBackendUnavailable.
func (c *conn) getJSON(ctx context.Context, key string, dst any) error {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return repository.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("redis: get %s: %v: %w", key, err, repository.ErrBackendUnavailable)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("redis: decode %s: %w", key, err)
	}
	return nil
}

// putJSON codifica y escribe el valor bajo una clave, sin TTL: el store es
// la fuente de verdad, no un cache.
func (c *conn) putJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("redis: encode %s: %w", key, err)
	}
	if err := c.rdb.Set(ctx, key, raw, 0).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %v: %w", key, err, repository.ErrBackendUnavailable)
	}
	return nil
}

// listLex pagina un índice zset por orden lexicográfico de sus miembros.
// after vacío arranca desde el principio; count es el máximo a devolver.
func (c *conn) listLex(ctx context.Context, idxKey, after string, count int) ([]string, error) {
	min := "-"
	if after != "" {
		min = "(" + after
	}
	ids, err := c.rdb.ZRangeByLex(ctx, idxKey, &redis.ZRangeBy{
		Min:   min,
		Max:   "+",
		Count: int64(count),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: zrangebylex %s: %v: %w", idxKey, err, repository.ErrBackendUnavailable)
	}
	return ids, nil
}

// translateGet traduce el error de un GET plano (índices que guardan un id).
func translateGet(key string, err error) error {
	if errors.Is(err, redis.Nil) {
		return repository.ErrNotFound
	}
	return wrapUnavailable("get", key, err)
}

// createJSON escribe el valor solo si la clave no existe todavía.
func (c *conn) createJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("redis: encode %s: %w", key, err)
	}
	ok, err := c.rdb.SetNX(ctx, key, raw, 0).Result()
	if err != nil {
		return fmt.Errorf("redis: setnx %s: %v: %w", key, err, repository.ErrBackendUnavailable)
	}
	if !ok {
		return repository.ErrAlreadyExists
	}
	return nil
}

// reserve intenta apartar una clave de unicidad con SetNX. Devuelve
// ErrAlreadyExists si otra entidad ya la tiene.
func (c *conn) reserve(ctx context.Context, key, owner string) error {
	ok, err := c.rdb.SetNX(ctx, key, owner, 0).Result()
	if err != nil {
		return fmt.Errorf("redis: setnx %s: %v: %w", key, err, repository.ErrBackendUnavailable)
	}
	if !ok {
		return repository.ErrAlreadyExists
	}
	return nil
}
