package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/idmx-dev/poolhouse/internal/domain/repository"
)

// mfaRepo implementa repository.MFADeviceRepository sobre Redis.
type mfaRepo struct {
	c *conn
}

func (r *mfaRepo) Create(ctx context.Context, input repository.CreateMFADeviceInput) (*repository.MFADevice, error) {
	// El device cuelga de un user concreto; paridad con el FK compuesto.
	exists, err := r.c.rdb.Exists(ctx, r.c.userKey(input.PoolID, input.UserID)).Result()
	if err != nil {
		return nil, wrapUnavailable("exists", r.c.userKey(input.PoolID, input.UserID), err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("user %s: %w", input.UserID, repository.ErrNotFound)
	}

	id := uuid.NewString()
	name := input.Name
	if name == "" {
		name = "Default Device"
	}
	devType := input.Type
	if devType == "" {
		devType = repository.DeviceTOTP
	}

	now := time.Now().UTC()
	rec := &mfaRecord{
		ID:          id,
		PoolID:      input.PoolID,
		UserID:      input.UserID,
		Name:        name,
		Type:        devType,
		SecretKey:   input.SecretKey,
		Verified:    false,
		BackupCodes: sliceOrEmpty(input.BackupCodes),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := r.c.createJSON(ctx, r.c.mfaKey(input.PoolID, input.UserID, id), rec); err != nil {
		return nil, err
	}
	if err := r.c.rdb.ZAdd(ctx, r.c.mfaIdxKey(input.PoolID, input.UserID), zMember(id)).Err(); err != nil {
		return nil, wrapUnavailable("zadd", r.c.mfaIdxKey(input.PoolID, input.UserID), err)
	}
	return rec.toDomain(), nil
}

func (r *mfaRepo) Get(ctx context.Context, poolID, userID, deviceID string) (*repository.MFADevice, error) {
	var rec mfaRecord
	if err := r.c.getJSON(ctx, r.c.mfaKey(poolID, userID, deviceID), &rec); err != nil {
		return nil, err
	}
	if rec.PoolID != poolID || rec.UserID != userID {
		return nil, repository.ErrTenantIsolation
	}
	return rec.toDomain(), nil
}

func (r *mfaRepo) ListByUser(ctx context.Context, poolID, userID string) ([]repository.MFADevice, error) {
	ids, err := r.c.rdb.ZRange(ctx, r.c.mfaIdxKey(poolID, userID), 0, -1).Result()
	if err != nil {
		return nil, wrapUnavailable("zrange", r.c.mfaIdxKey(poolID, userID), err)
	}
	devices := make([]repository.MFADevice, 0, len(ids))
	for _, id := range ids {
		var rec mfaRecord
		if err := r.c.getJSON(ctx, r.c.mfaKey(poolID, userID, id), &rec); err != nil {
			if repository.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		devices = append(devices, *rec.toDomain())
	}
	return devices, nil
}

func (r *mfaRepo) Update(ctx context.Context, poolID, userID, deviceID string, input repository.UpdateMFADeviceInput) (*repository.MFADevice, error) {
	var rec mfaRecord
	if err := r.c.getJSON(ctx, r.c.mfaKey(poolID, userID, deviceID), &rec); err != nil {
		return nil, err
	}

	if input.Name != nil {
		rec.Name = *input.Name
	}
	if input.Verified != nil {
		rec.Verified = *input.Verified
	}
	if input.BackupCodes != nil {
		rec.BackupCodes = sliceOrEmpty(*input.BackupCodes)
	}
	if input.LastUsed != nil {
		rec.LastUsed = input.LastUsed
	}
	rec.UpdatedAt = time.Now().UTC()

	if err := r.c.putJSON(ctx, r.c.mfaKey(poolID, userID, deviceID), &rec); err != nil {
		return nil, err
	}
	return rec.toDomain(), nil
}

func (r *mfaRepo) Delete(ctx context.Context, poolID, userID, deviceID string) error {
	n, err := r.c.rdb.Del(ctx, r.c.mfaKey(poolID, userID, deviceID)).Result()
	if err != nil {
		return wrapUnavailable("del", r.c.mfaKey(poolID, userID, deviceID), err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	if err := r.c.rdb.ZRem(ctx, r.c.mfaIdxKey(poolID, userID), deviceID).Err(); err != nil {
		return wrapUnavailable("zrem", r.c.mfaIdxKey(poolID, userID), err)
	}
	return nil
}
