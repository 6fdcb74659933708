package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/idmx-dev/poolhouse/internal/domain/repository"
	"github.com/idmx-dev/poolhouse/internal/store"
)

// groupRepo implementa repository.GroupRepository sobre Redis. La membresía
// vive en dos lados y siempre por id, igual que en el backend relacional:
// User.Groups guarda ids de group y el set idx:group_users guarda ids de
// user para el fan-out inverso.
type groupRepo struct {
	c *conn
}

func (r *groupRepo) Create(ctx context.Context, input repository.CreateGroupInput) (*repository.Group, error) {
	exists, err := r.c.rdb.Exists(ctx, r.c.poolKey(input.PoolID)).Result()
	if err != nil {
		return nil, wrapUnavailable("exists", r.c.poolKey(input.PoolID), err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("pool %s: %w", input.PoolID, repository.ErrNotFound)
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	rec := &groupRecord{
		ID:          id,
		PoolID:      input.PoolID,
		Name:        input.Name,
		Description: input.Description,
		Permissions: sliceOrEmpty(input.Permissions),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	nameKey := r.c.groupNameIdxKey(input.PoolID, input.Name)
	if err := r.c.reserve(ctx, nameKey, id); err != nil {
		return nil, err
	}
	if err := r.c.createJSON(ctx, r.c.groupKey(input.PoolID, id), rec); err != nil {
		if delErr := r.c.rdb.Del(ctx, nameKey).Err(); delErr != nil {
			r.c.log.Warn("group name reservation rollback failed",
				zap.String("pool_id", input.PoolID), zap.String("group", input.Name), zap.Error(delErr))
		}
		return nil, err
	}
	if err := r.c.rdb.ZAdd(ctx, r.c.groupIdxKey(input.PoolID), zMember(id)).Err(); err != nil {
		return nil, wrapUnavailable("zadd", r.c.groupIdxKey(input.PoolID), err)
	}
	return rec.toDomain(), nil
}

func (r *groupRepo) Get(ctx context.Context, poolID, groupID string) (*repository.Group, error) {
	var rec groupRecord
	if err := r.c.getJSON(ctx, r.c.groupKey(poolID, groupID), &rec); err != nil {
		return nil, err
	}
	return rec.toDomain(), nil
}

func (r *groupRepo) GetByName(ctx context.Context, poolID, name string) (*repository.Group, error) {
	groupID, err := r.c.rdb.Get(ctx, r.c.groupNameIdxKey(poolID, name)).Result()
	if err != nil {
		return nil, translateGet(r.c.groupNameIdxKey(poolID, name), err)
	}
	return r.Get(ctx, poolID, groupID)
}

func (r *groupRepo) List(ctx context.Context, poolID string, limit int, token string) ([]repository.Group, string, error) {
	after, err := store.DecodeCursor(token)
	if err != nil {
		return nil, "", err
	}
	ids, err := r.c.listLex(ctx, r.c.groupIdxKey(poolID), after, limit+1)
	if err != nil {
		return nil, "", err
	}

	next := ""
	if len(ids) > limit {
		ids = ids[:limit]
		next = store.EncodeCursor(ids[limit-1])
	}

	groups := make([]repository.Group, 0, len(ids))
	for _, id := range ids {
		var rec groupRecord
		if err := r.c.getJSON(ctx, r.c.groupKey(poolID, id), &rec); err != nil {
			if repository.IsNotFound(err) {
				continue
			}
			return nil, "", err
		}
		groups = append(groups, *rec.toDomain())
	}
	return groups, next, nil
}

func (r *groupRepo) Update(ctx context.Context, poolID, groupID string, input repository.UpdateGroupInput) (*repository.Group, error) {
	var rec groupRecord
	if err := r.c.getJSON(ctx, r.c.groupKey(poolID, groupID), &rec); err != nil {
		return nil, err
	}

	if input.Name != nil && *input.Name != rec.Name {
		// Renombrar solo mueve la reserva de nombre: User.Groups guarda ids,
		// así que los miembros no se tocan.
		if err := r.c.reserve(ctx, r.c.groupNameIdxKey(poolID, *input.Name), groupID); err != nil {
			return nil, err
		}
		if err := r.c.rdb.Del(ctx, r.c.groupNameIdxKey(poolID, rec.Name)).Err(); err != nil {
			r.c.log.Warn("stale group name reservation left behind",
				zap.String("pool_id", poolID), zap.String("group", rec.Name), zap.Error(err))
		}
		rec.Name = *input.Name
	}
	if input.Description != nil {
		rec.Description = *input.Description
	}
	if input.Permissions != nil {
		rec.Permissions = sliceOrEmpty(*input.Permissions)
	}
	rec.UpdatedAt = time.Now().UTC()

	if err := r.c.putJSON(ctx, r.c.groupKey(poolID, groupID), &rec); err != nil {
		return nil, err
	}
	return rec.toDomain(), nil
}

// Delete elimina el group removiéndolo antes de todos sus miembros. El
// backend relacional hace esto en una transacción; acá es un fan-out
// best-effort: un miembro que no se pudo limpiar se loguea como warning y
// el delete sigue, porque la operación es re-ejecutable.
func (r *groupRepo) Delete(ctx context.Context, poolID, groupID string) error {
	var rec groupRecord
	if err := r.c.getJSON(ctx, r.c.groupKey(poolID, groupID), &rec); err != nil {
		return err
	}

	memberIDs, err := r.c.rdb.SMembers(ctx, r.c.groupUsersKey(poolID, groupID)).Result()
	if err != nil {
		return wrapUnavailable("smembers", r.c.groupUsersKey(poolID, groupID), err)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, uid := range memberIDs {
		g.Go(func() error {
			err := r.removeFromUser(gctx, poolID, uid, groupID)
			if err != nil && !repository.IsNotFound(err) {
				r.c.log.Warn("group member cleanup failed",
					zap.String("pool_id", poolID), zap.String("group_id", groupID),
					zap.String("user_id", uid), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := r.c.rdb.Del(ctx, r.c.groupUsersKey(poolID, groupID)).Err(); err != nil {
		return wrapUnavailable("del", r.c.groupUsersKey(poolID, groupID), err)
	}
	if err := r.c.rdb.Del(ctx, r.c.groupNameIdxKey(poolID, rec.Name)).Err(); err != nil {
		return wrapUnavailable("del", r.c.groupNameIdxKey(poolID, rec.Name), err)
	}
	if err := r.c.rdb.Del(ctx, r.c.groupKey(poolID, groupID)).Err(); err != nil {
		return wrapUnavailable("del", r.c.groupKey(poolID, groupID), err)
	}
	if err := r.c.rdb.ZRem(ctx, r.c.groupIdxKey(poolID), groupID).Err(); err != nil {
		r.c.log.Warn("group index cleanup failed", zap.String("group_id", groupID), zap.Error(err))
	}
	return nil
}

func (r *groupRepo) AddUser(ctx context.Context, poolID, userID, groupID string) error {
	if _, err := r.Get(ctx, poolID, groupID); err != nil {
		return err
	}
	var usr userRecord
	if err := r.c.getJSON(ctx, r.c.userKey(poolID, userID), &usr); err != nil {
		return err
	}

	if !contains(usr.Groups, groupID) {
		usr.Groups = append(usr.Groups, groupID)
		usr.UpdatedAt = time.Now().UTC()
		if err := r.c.putJSON(ctx, r.c.userKey(poolID, userID), &usr); err != nil {
			return err
		}
	}
	if err := r.c.rdb.SAdd(ctx, r.c.groupUsersKey(poolID, groupID), userID).Err(); err != nil {
		return wrapUnavailable("sadd", r.c.groupUsersKey(poolID, groupID), err)
	}
	return nil
}

func (r *groupRepo) RemoveUser(ctx context.Context, poolID, userID, groupID string) error {
	if err := r.removeFromUser(ctx, poolID, userID, groupID); err != nil {
		return err
	}
	if err := r.c.rdb.SRem(ctx, r.c.groupUsersKey(poolID, groupID), userID).Err(); err != nil {
		return wrapUnavailable("srem", r.c.groupUsersKey(poolID, groupID), err)
	}
	return nil
}

func (r *groupRepo) UserGroups(ctx context.Context, poolID, userID string) ([]repository.Group, error) {
	var usr userRecord
	if err := r.c.getJSON(ctx, r.c.userKey(poolID, userID), &usr); err != nil {
		return nil, err
	}
	groups := make([]repository.Group, 0, len(usr.Groups))
	for _, id := range usr.Groups {
		grp, err := r.Get(ctx, poolID, id)
		if err != nil {
			if repository.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		groups = append(groups, *grp)
	}
	return groups, nil
}

func (r *groupRepo) GroupUsers(ctx context.Context, poolID, groupID string) ([]repository.User, error) {
	if _, err := r.Get(ctx, poolID, groupID); err != nil {
		return nil, err
	}
	memberIDs, err := r.c.rdb.SMembers(ctx, r.c.groupUsersKey(poolID, groupID)).Result()
	if err != nil {
		return nil, wrapUnavailable("smembers", r.c.groupUsersKey(poolID, groupID), err)
	}
	users := make([]repository.User, 0, len(memberIDs))
	for _, uid := range memberIDs {
		var rec userRecord
		if err := r.c.getJSON(ctx, r.c.userKey(poolID, uid), &rec); err != nil {
			if repository.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		users = append(users, *rec.toDomain())
	}
	return users, nil
}

func (r *groupRepo) removeFromUser(ctx context.Context, poolID, userID, groupID string) error {
	var usr userRecord
	if err := r.c.getJSON(ctx, r.c.userKey(poolID, userID), &usr); err != nil {
		return err
	}
	if !contains(usr.Groups, groupID) {
		return nil
	}
	usr.Groups = remove(usr.Groups, groupID)
	usr.UpdatedAt = time.Now().UTC()
	return r.c.putJSON(ctx, r.c.userKey(poolID, userID), &usr)
}

func contains(s []string, v string) bool {
	for _, e := range s {
		if e == v {
			return true
		}
	}
	return false
}

func remove(s []string, v string) []string {
	out := make([]string, 0, len(s))
	for _, e := range s {
		if e != v {
			out = append(out, e)
		}
	}
	return out
}
