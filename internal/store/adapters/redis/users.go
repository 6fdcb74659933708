package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/idmx-dev/poolhouse/internal/domain/repository"
	"github.com/idmx-dev/poolhouse/internal/store"
)

// userRepo implementa repository.UserRepository sobre Redis.
type userRepo struct {
	c *conn
}

func (r *userRepo) Create(ctx context.Context, input repository.CreateUserInput) (*repository.User, error) {
	// Paridad con el FK del backend relacional: sin pool no hay user.
	exists, err := r.c.rdb.Exists(ctx, r.c.poolKey(input.PoolID)).Result()
	if err != nil {
		return nil, wrapUnavailable("exists", r.c.poolKey(input.PoolID), err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("pool %s: %w", input.PoolID, repository.ErrNotFound)
	}

	id := store.NewUserID()
	status := input.Status
	if status == "" {
		status = repository.StatusConfirmed
	}
	groups := input.Groups
	if groups == nil {
		groups = []string{}
	}

	now := time.Now().UTC()
	rec := &userRecord{
		ID:               id,
		PoolID:           input.PoolID,
		Email:            input.Email,
		EmailVerified:    input.EmailVerified,
		PasswordHash:     input.PasswordHash,
		Name:             input.Name,
		GivenName:        input.GivenName,
		FamilyName:       input.FamilyName,
		Nickname:         input.Nickname,
		Picture:          input.Picture,
		Website:          input.Website,
		CustomAttributes: input.CustomAttributes,
		Groups:           groups,
		Status:           status,
		MFAEnabled:       input.MFAEnabled,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	// La reserva del email es lo que hace único (pool, email).
	emailKey := r.c.emailIdxKey(input.PoolID, input.Email)
	if err := r.c.reserve(ctx, emailKey, id); err != nil {
		return nil, err
	}
	if err := r.c.createJSON(ctx, r.c.userKey(input.PoolID, id), rec); err != nil {
		if delErr := r.c.rdb.Del(ctx, emailKey).Err(); delErr != nil {
			r.c.log.Warn("email reservation rollback failed",
				zap.String("pool_id", input.PoolID), zap.String("email", input.Email), zap.Error(delErr))
		}
		return nil, err
	}
	if err := r.c.rdb.ZAdd(ctx, r.c.userIdxKey(input.PoolID), zMember(id)).Err(); err != nil {
		return nil, wrapUnavailable("zadd", r.c.userIdxKey(input.PoolID), err)
	}
	return rec.toDomain(), nil
}

func (r *userRepo) Get(ctx context.Context, poolID, userID string) (*repository.User, error) {
	var rec userRecord
	if err := r.c.getJSON(ctx, r.c.userKey(poolID, userID), &rec); err != nil {
		return nil, err
	}
	if rec.PoolID != poolID {
		return nil, repository.ErrTenantIsolation
	}
	return rec.toDomain(), nil
}

func (r *userRepo) GetByEmail(ctx context.Context, poolID, email string) (*repository.User, error) {
	userID, err := r.c.rdb.Get(ctx, r.c.emailIdxKey(poolID, email)).Result()
	if err != nil {
		return nil, translateGet(r.c.emailIdxKey(poolID, email), err)
	}
	return r.Get(ctx, poolID, userID)
}

func (r *userRepo) List(ctx context.Context, poolID string, limit int, token string) ([]repository.User, string, error) {
	after, err := store.DecodeCursor(token)
	if err != nil {
		return nil, "", err
	}

	// limit+1 de lookahead para saber si queda otra página.
	ids, err := r.c.listLex(ctx, r.c.userIdxKey(poolID), after, limit+1)
	if err != nil {
		return nil, "", err
	}

	next := ""
	if len(ids) > limit {
		ids = ids[:limit]
		next = store.EncodeCursor(ids[limit-1])
	}

	users := make([]repository.User, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, id := range ids {
		g.Go(func() error {
			var rec userRecord
			if err := r.c.getJSON(gctx, r.c.userKey(poolID, id), &rec); err != nil {
				return err
			}
			users[i] = *rec.toDomain()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, "", err
	}
	return users, next, nil
}

func (r *userRepo) Update(ctx context.Context, poolID, userID string, input repository.UpdateUserInput) (*repository.User, error) {
	var rec userRecord
	if err := r.c.getJSON(ctx, r.c.userKey(poolID, userID), &rec); err != nil {
		return nil, err
	}

	if input.Email != nil && *input.Email != rec.Email {
		// Mover la reserva de email: primero la nueva, después soltar la vieja.
		if err := r.c.reserve(ctx, r.c.emailIdxKey(poolID, *input.Email), userID); err != nil {
			return nil, err
		}
		if err := r.c.rdb.Del(ctx, r.c.emailIdxKey(poolID, rec.Email)).Err(); err != nil {
			r.c.log.Warn("stale email reservation left behind",
				zap.String("pool_id", poolID), zap.String("email", rec.Email), zap.Error(err))
		}
		rec.Email = *input.Email
	}
	if input.EmailVerified != nil {
		rec.EmailVerified = *input.EmailVerified
	}
	if input.PasswordHash != nil {
		rec.PasswordHash = *input.PasswordHash
	}
	if input.Name != nil {
		rec.Name = *input.Name
	}
	if input.GivenName != nil {
		rec.GivenName = *input.GivenName
	}
	if input.FamilyName != nil {
		rec.FamilyName = *input.FamilyName
	}
	if input.Nickname != nil {
		rec.Nickname = *input.Nickname
	}
	if input.Picture != nil {
		rec.Picture = *input.Picture
	}
	if input.Website != nil {
		rec.Website = *input.Website
	}
	if input.CustomAttributes != nil {
		rec.CustomAttributes = input.CustomAttributes
	}
	if input.Groups != nil {
		rec.Groups = *input.Groups
	}
	if input.Status != nil {
		rec.Status = *input.Status
	}
	if input.MFAEnabled != nil {
		rec.MFAEnabled = *input.MFAEnabled
	}
	if input.LastLogin != nil {
		rec.LastLogin = input.LastLogin
	}
	rec.UpdatedAt = time.Now().UTC()

	if err := r.c.putJSON(ctx, r.c.userKey(poolID, userID), &rec); err != nil {
		return nil, err
	}
	return rec.toDomain(), nil
}

func (r *userRepo) Delete(ctx context.Context, poolID, userID string) error {
	var rec userRecord
	if err := r.c.getJSON(ctx, r.c.userKey(poolID, userID), &rec); err != nil {
		return err
	}

	// Devices MFA primero. Cascada idempotente: si algo falla, re-ejecutar
	// el delete retoma porque el user todavía existe.
	deviceIDs, err := r.c.rdb.ZRange(ctx, r.c.mfaIdxKey(poolID, userID), 0, -1).Result()
	if err != nil {
		return wrapUnavailable("zrange", r.c.mfaIdxKey(poolID, userID), err)
	}
	for _, did := range deviceIDs {
		if err := r.c.rdb.Del(ctx, r.c.mfaKey(poolID, userID, did)).Err(); err != nil {
			return wrapUnavailable("del", r.c.mfaKey(poolID, userID, did), err)
		}
	}
	if err := r.c.rdb.Del(ctx, r.c.mfaIdxKey(poolID, userID)).Err(); err != nil {
		return wrapUnavailable("del", r.c.mfaIdxKey(poolID, userID), err)
	}

	// Membresías de groups.
	for _, gname := range rec.Groups {
		gid, err := r.c.rdb.Get(ctx, r.c.groupNameIdxKey(poolID, gname)).Result()
		if err != nil {
			continue
		}
		if err := r.c.rdb.SRem(ctx, r.c.groupUsersKey(poolID, gid), userID).Err(); err != nil {
			r.c.log.Warn("group membership cleanup failed",
				zap.String("pool_id", poolID), zap.String("group", gname), zap.Error(err))
		}
	}

	if err := r.c.rdb.Del(ctx, r.c.emailIdxKey(poolID, rec.Email)).Err(); err != nil {
		return wrapUnavailable("del", r.c.emailIdxKey(poolID, rec.Email), err)
	}
	if err := r.c.rdb.Del(ctx, r.c.userKey(poolID, userID)).Err(); err != nil {
		return wrapUnavailable("del", r.c.userKey(poolID, userID), err)
	}
	if err := r.c.rdb.ZRem(ctx, r.c.userIdxKey(poolID), userID).Err(); err != nil {
		r.c.log.Warn("user index cleanup failed", zap.String("user_id", userID), zap.Error(err))
	}
	return nil
}
