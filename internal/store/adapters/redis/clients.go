package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/idmx-dev/poolhouse/internal/domain/repository"
	"github.com/idmx-dev/poolhouse/internal/store"
)

// clientRepo implementa repository.ClientRepository sobre Redis.
type clientRepo struct {
	c *conn
}

func (r *clientRepo) Create(ctx context.Context, input repository.CreateClientInput) (*repository.Client, error) {
	exists, err := r.c.rdb.Exists(ctx, r.c.poolKey(input.PoolID)).Result()
	if err != nil {
		return nil, wrapUnavailable("exists", r.c.poolKey(input.PoolID), err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("pool %s: %w", input.PoolID, repository.ErrNotFound)
	}

	appType := input.ApplicationType
	if appType == "" {
		appType = "web"
	}
	authMethod := input.TokenEndpointAuthMethod
	if authMethod == "" {
		authMethod = "client_secret_basic"
	}

	now := time.Now().UTC()
	rec := &clientRecord{
		ClientID:                input.ClientID,
		ClientSecret:            input.ClientSecret,
		Name:                    input.Name,
		PoolID:                  input.PoolID,
		RedirectURIs:            sliceOrEmpty(input.RedirectURIs),
		PostLogoutRedirectURIs:  sliceOrEmpty(input.PostLogoutRedirectURIs),
		ResponseTypes:           sliceOrEmpty(input.ResponseTypes),
		GrantTypes:              sliceOrEmpty(input.GrantTypes),
		Scope:                   input.Scope,
		TokenEndpointAuthMethod: authMethod,
		ApplicationType:         appType,
		Settings:                input.Settings,
		CreatedAt:               now,
		UpdatedAt:               now,
	}

	// El SetNX sobre la clave global es la unicidad cross-pool del clientID.
	if err := r.c.createJSON(ctx, r.c.clientKey(input.ClientID), rec); err != nil {
		return nil, err
	}
	if err := r.c.rdb.ZAdd(ctx, r.c.clientIdxKey(), zMember(input.ClientID)).Err(); err != nil {
		return nil, wrapUnavailable("zadd", r.c.clientIdxKey(), err)
	}
	if err := r.c.rdb.ZAdd(ctx, r.c.poolClientIdxKey(input.PoolID), zMember(input.ClientID)).Err(); err != nil {
		return nil, wrapUnavailable("zadd", r.c.poolClientIdxKey(input.PoolID), err)
	}
	return rec.toDomain(), nil
}

func (r *clientRepo) Get(ctx context.Context, clientID string) (*repository.Client, error) {
	var rec clientRecord
	if err := r.c.getJSON(ctx, r.c.clientKey(clientID), &rec); err != nil {
		return nil, err
	}
	return rec.toDomain(), nil
}

func (r *clientRepo) List(ctx context.Context, poolID string, limit int, token string) ([]repository.Client, string, error) {
	after, err := store.DecodeCursor(token)
	if err != nil {
		return nil, "", err
	}

	idx := r.c.clientIdxKey()
	if poolID != "" {
		idx = r.c.poolClientIdxKey(poolID)
	}
	ids, err := r.c.listLex(ctx, idx, after, limit+1)
	if err != nil {
		return nil, "", err
	}

	next := ""
	if len(ids) > limit {
		ids = ids[:limit]
		next = store.EncodeCursor(ids[limit-1])
	}

	clients := make([]repository.Client, 0, len(ids))
	for _, id := range ids {
		var rec clientRecord
		if err := r.c.getJSON(ctx, r.c.clientKey(id), &rec); err != nil {
			if repository.IsNotFound(err) {
				continue
			}
			return nil, "", err
		}
		clients = append(clients, *rec.toDomain())
	}
	return clients, next, nil
}

func (r *clientRepo) Update(ctx context.Context, clientID string, input repository.UpdateClientInput) (*repository.Client, error) {
	var rec clientRecord
	if err := r.c.getJSON(ctx, r.c.clientKey(clientID), &rec); err != nil {
		return nil, err
	}

	if input.PoolID != nil && *input.PoolID != rec.PoolID {
		exists, err := r.c.rdb.Exists(ctx, r.c.poolKey(*input.PoolID)).Result()
		if err != nil {
			return nil, wrapUnavailable("exists", r.c.poolKey(*input.PoolID), err)
		}
		if exists == 0 {
			return nil, fmt.Errorf("pool %s: %w", *input.PoolID, repository.ErrNotFound)
		}
		if err := r.c.rdb.ZRem(ctx, r.c.poolClientIdxKey(rec.PoolID), clientID).Err(); err != nil {
			r.c.log.Warn("pool client index cleanup failed",
				zap.String("client_id", clientID), zap.String("pool_id", rec.PoolID), zap.Error(err))
		}
		if err := r.c.rdb.ZAdd(ctx, r.c.poolClientIdxKey(*input.PoolID), zMember(clientID)).Err(); err != nil {
			return nil, wrapUnavailable("zadd", r.c.poolClientIdxKey(*input.PoolID), err)
		}
		rec.PoolID = *input.PoolID
	}
	if input.ClientSecret != nil {
		rec.ClientSecret = *input.ClientSecret
	}
	if input.Name != nil {
		rec.Name = *input.Name
	}
	if input.RedirectURIs != nil {
		rec.RedirectURIs = sliceOrEmpty(*input.RedirectURIs)
	}
	if input.PostLogoutRedirectURIs != nil {
		rec.PostLogoutRedirectURIs = sliceOrEmpty(*input.PostLogoutRedirectURIs)
	}
	if input.ResponseTypes != nil {
		rec.ResponseTypes = sliceOrEmpty(*input.ResponseTypes)
	}
	if input.GrantTypes != nil {
		rec.GrantTypes = sliceOrEmpty(*input.GrantTypes)
	}
	if input.Scope != nil {
		rec.Scope = *input.Scope
	}
	if input.TokenEndpointAuthMethod != nil {
		rec.TokenEndpointAuthMethod = *input.TokenEndpointAuthMethod
	}
	if input.ApplicationType != nil {
		rec.ApplicationType = *input.ApplicationType
	}
	if input.Settings != nil {
		rec.Settings = *input.Settings
	}
	rec.UpdatedAt = time.Now().UTC()

	if err := r.c.putJSON(ctx, r.c.clientKey(clientID), &rec); err != nil {
		return nil, err
	}
	return rec.toDomain(), nil
}

func (r *clientRepo) Delete(ctx context.Context, clientID string) error {
	var rec clientRecord
	if err := r.c.getJSON(ctx, r.c.clientKey(clientID), &rec); err != nil {
		return err
	}

	if err := r.c.rdb.Del(ctx, r.c.clientKey(clientID)).Err(); err != nil {
		return wrapUnavailable("del", r.c.clientKey(clientID), err)
	}
	if err := r.c.rdb.ZRem(ctx, r.c.clientIdxKey(), clientID).Err(); err != nil {
		r.c.log.Warn("client index cleanup failed", zap.String("client_id", clientID), zap.Error(err))
	}
	if err := r.c.rdb.ZRem(ctx, r.c.poolClientIdxKey(rec.PoolID), clientID).Err(); err != nil {
		r.c.log.Warn("pool client index cleanup failed",
			zap.String("client_id", clientID), zap.String("pool_id", rec.PoolID), zap.Error(err))
	}
	return nil
}

func sliceOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
