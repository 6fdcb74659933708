package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/idmx-dev/poolhouse/internal/domain/repository"
)

// poolRepo implementa repository.PoolRepository sobre Redis.
type poolRepo struct {
	c *conn
}

func (r *poolRepo) Create(ctx context.Context, input repository.CreatePoolInput) (*repository.Pool, error) {
	id := input.ID
	if id == "" {
		id = uuid.NewString()
	}
	mode := input.MFAConfiguration
	if mode == "" {
		mode = repository.MFAOff
	}
	attrs := input.CustomAttributes
	if attrs == nil {
		attrs = map[string]string{}
	}

	now := time.Now().UTC()
	rec := &poolRecord{
		ID:               id,
		Name:             input.Name,
		CustomAttributes: attrs,
		PasswordPolicy:   input.PasswordPolicy,
		MFAConfiguration: mode,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := r.c.createJSON(ctx, r.c.poolKey(id), rec); err != nil {
		return nil, err
	}
	if err := r.c.rdb.ZAdd(ctx, r.c.poolIdxKey(), zMember(id)).Err(); err != nil {
		return nil, wrapUnavailable("zadd", r.c.poolIdxKey(), err)
	}
	return rec.toDomain(), nil
}

func (r *poolRepo) Get(ctx context.Context, poolID string) (*repository.Pool, error) {
	var rec poolRecord
	if err := r.c.getJSON(ctx, r.c.poolKey(poolID), &rec); err != nil {
		return nil, err
	}
	return rec.toDomain(), nil
}

func (r *poolRepo) GetByClientID(ctx context.Context, clientID string) (*repository.Pool, error) {
	var cl clientRecord
	if err := r.c.getJSON(ctx, r.c.clientKey(clientID), &cl); err != nil {
		return nil, err
	}
	return r.Get(ctx, cl.PoolID)
}

func (r *poolRepo) List(ctx context.Context) ([]repository.Pool, error) {
	ids, err := r.c.rdb.ZRange(ctx, r.c.poolIdxKey(), 0, -1).Result()
	if err != nil {
		return nil, wrapUnavailable("zrange", r.c.poolIdxKey(), err)
	}
	pools := make([]repository.Pool, 0, len(ids))
	for _, id := range ids {
		var rec poolRecord
		if err := r.c.getJSON(ctx, r.c.poolKey(id), &rec); err != nil {
			if repository.IsNotFound(err) {
				// índice desfasado por un delete parcial: se saltea
				continue
			}
			return nil, err
		}
		pools = append(pools, *rec.toDomain())
	}
	return pools, nil
}

func (r *poolRepo) Update(ctx context.Context, poolID string, input repository.UpdatePoolInput) (*repository.Pool, error) {
	var rec poolRecord
	if err := r.c.getJSON(ctx, r.c.poolKey(poolID), &rec); err != nil {
		return nil, err
	}

	if input.Name != nil {
		rec.Name = *input.Name
	}
	if input.CustomAttributes != nil {
		rec.CustomAttributes = input.CustomAttributes
	}
	if input.PasswordPolicy != nil {
		rec.PasswordPolicy = *input.PasswordPolicy
	}
	if input.MFAConfiguration != nil {
		rec.MFAConfiguration = *input.MFAConfiguration
	}
	rec.UpdatedAt = time.Now().UTC()

	if err := r.c.putJSON(ctx, r.c.poolKey(poolID), &rec); err != nil {
		return nil, err
	}
	return rec.toDomain(), nil
}

// Delete elimina el pool y toda su data en cascada. Redis no tiene
// transacciones cross-clave que cubran esto, así que la cascada es
// best-effort e idempotente: los hijos se borran antes que el pool, y una
// re-ejecución tras un fallo parcial retoma donde quedó.
func (r *poolRepo) Delete(ctx context.Context, poolID string) error {
	exists, err := r.c.rdb.Exists(ctx, r.c.poolKey(poolID)).Result()
	if err != nil {
		return wrapUnavailable("exists", r.c.poolKey(poolID), err)
	}
	if exists == 0 {
		return repository.ErrNotFound
	}

	if err := r.deleteChildren(ctx, poolID); err != nil {
		return err
	}

	if err := r.c.rdb.Del(ctx, r.c.poolKey(poolID)).Err(); err != nil {
		return wrapUnavailable("del", r.c.poolKey(poolID), err)
	}
	if err := r.c.rdb.ZRem(ctx, r.c.poolIdxKey(), poolID).Err(); err != nil {
		r.c.log.Warn("pool index cleanup failed", zap.String("pool_id", poolID), zap.Error(err))
	}
	return nil
}

func (r *poolRepo) deleteChildren(ctx context.Context, poolID string) error {
	// Users (cada uno arrastra sus devices MFA y su índice de email).
	userIDs, err := r.c.rdb.ZRange(ctx, r.c.userIdxKey(poolID), 0, -1).Result()
	if err != nil {
		return wrapUnavailable("zrange", r.c.userIdxKey(poolID), err)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, uid := range userIDs {
		g.Go(func() error {
			if err := r.c.users.Delete(gctx, poolID, uid); err != nil && !repository.IsNotFound(err) {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := r.c.rdb.Del(ctx, r.c.userIdxKey(poolID)).Err(); err != nil {
		return wrapUnavailable("del", r.c.userIdxKey(poolID), err)
	}

	// Clients del pool.
	clientIDs, err := r.c.rdb.ZRange(ctx, r.c.poolClientIdxKey(poolID), 0, -1).Result()
	if err != nil {
		return wrapUnavailable("zrange", r.c.poolClientIdxKey(poolID), err)
	}
	for _, cid := range clientIDs {
		if err := r.c.clients.Delete(ctx, cid); err != nil && !repository.IsNotFound(err) {
			return err
		}
	}
	if err := r.c.rdb.Del(ctx, r.c.poolClientIdxKey(poolID)).Err(); err != nil {
		return wrapUnavailable("del", r.c.poolClientIdxKey(poolID), err)
	}

	// Groups del pool (ya sin usuarios de los que removerlos).
	groupIDs, err := r.c.rdb.ZRange(ctx, r.c.groupIdxKey(poolID), 0, -1).Result()
	if err != nil {
		return wrapUnavailable("zrange", r.c.groupIdxKey(poolID), err)
	}
	for _, gid := range groupIDs {
		if err := r.c.groups.Delete(ctx, poolID, gid); err != nil && !repository.IsNotFound(err) {
			return err
		}
	}
	if err := r.c.rdb.Del(ctx, r.c.groupIdxKey(poolID)).Err(); err != nil {
		return wrapUnavailable("del", r.c.groupIdxKey(poolID), err)
	}
	return nil
}
