package pg

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/idmx-dev/poolhouse/internal/domain/repository"
)

type mfaRepo struct{ pool *pgxpool.Pool }

const deviceColumns = `id, pool_id, user_id, name, device_type, secret_key,
	is_verified, backup_codes, last_used, created_at, updated_at`

func scanDevice(row interface{ Scan(...any) error }) (*repository.MFADevice, error) {
	var d repository.MFADevice
	err := row.Scan(
		&d.ID, &d.PoolID, &d.UserID, &d.Name, &d.Type, &d.SecretKey,
		&d.Verified, &d.BackupCodes, &d.LastUsed, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	if d.BackupCodes == nil {
		d.BackupCodes = []string{}
	}
	return &d, nil
}

func (r *mfaRepo) Create(ctx context.Context, input repository.CreateMFADeviceInput) (*repository.MFADevice, error) {
	typ := input.Type
	if typ == "" {
		typ = repository.DeviceTOTP
	}
	const query = `
		INSERT INTO mfa_devices (id, pool_id, user_id, name, device_type, secret_key, is_verified, backup_codes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7, NOW(), NOW())
		RETURNING ` + deviceColumns
	d, err := scanDevice(r.pool.QueryRow(ctx, query,
		uuid.NewString(), input.PoolID, input.UserID, input.Name, string(typ),
		input.SecretKey, sliceOrEmpty(input.BackupCodes),
	))
	if err != nil {
		return nil, fmt.Errorf("create mfa device: %w", err)
	}
	return d, nil
}

func (r *mfaRepo) Get(ctx context.Context, poolID, userID, deviceID string) (*repository.MFADevice, error) {
	const query = `SELECT ` + deviceColumns + ` FROM mfa_devices WHERE pool_id = $1 AND user_id = $2 AND id = $3`
	return scanDevice(r.pool.QueryRow(ctx, query, poolID, userID, deviceID))
}

func (r *mfaRepo) ListByUser(ctx context.Context, poolID, userID string) ([]repository.MFADevice, error) {
	const query = `SELECT ` + deviceColumns + ` FROM mfa_devices WHERE pool_id = $1 AND user_id = $2 ORDER BY id`
	rows, err := r.pool.Query(ctx, query, poolID, userID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var devices []repository.MFADevice
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *d)
	}
	return devices, rows.Err()
}

func (r *mfaRepo) Update(ctx context.Context, poolID, userID, deviceID string, input repository.UpdateMFADeviceInput) (*repository.MFADevice, error) {
	var b setBuilder
	if input.Name != nil {
		b.set("name", *input.Name)
	}
	if input.Verified != nil {
		b.set("is_verified", *input.Verified)
	}
	if input.BackupCodes != nil {
		b.set("backup_codes", *input.BackupCodes)
	}
	if input.LastUsed != nil {
		b.set("last_used", *input.LastUsed)
	}
	if b.empty() {
		return r.Get(ctx, poolID, userID, deviceID)
	}

	setSQL, args, next := b.clause()
	query := fmt.Sprintf(
		`UPDATE mfa_devices SET %s WHERE pool_id = $%d AND user_id = $%d AND id = $%d RETURNING `+deviceColumns,
		setSQL, next, next+1, next+2,
	)
	args = append(args, poolID, userID, deviceID)
	return scanDevice(r.pool.QueryRow(ctx, query, args...))
}

func (r *mfaRepo) Delete(ctx context.Context, poolID, userID, deviceID string) error {
	const query = `DELETE FROM mfa_devices WHERE pool_id = $1 AND user_id = $2 AND id = $3`
	tag, err := r.pool.Exec(ctx, query, poolID, userID, deviceID)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
