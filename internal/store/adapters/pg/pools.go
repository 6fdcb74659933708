package pg

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/idmx-dev/poolhouse/internal/domain/repository"
)

type poolRepo struct{ pool *pgxpool.Pool }

const poolColumns = `id, name, custom_attributes, password_policy, mfa_configuration, created_at, updated_at`

func scanPool(row interface{ Scan(...any) error }) (*repository.Pool, error) {
	var p repository.Pool
	err := row.Scan(&p.ID, &p.Name, &p.CustomAttributes, &p.PasswordPolicy, &p.MFAConfiguration, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	if p.CustomAttributes == nil {
		p.CustomAttributes = map[string]string{}
	}
	return &p, nil
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
	const query = `
		INSERT INTO pools (id, name, custom_attributes, password_policy, mfa_configuration, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING ` + poolColumns
	p, err := scanPool(r.pool.QueryRow(ctx, query, id, input.Name, attrs, input.PasswordPolicy, mode))
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	return p, nil
}

func (r *poolRepo) Get(ctx context.Context, poolID string) (*repository.Pool, error) {
	const query = `SELECT ` + poolColumns + ` FROM pools WHERE id = $1`
	return scanPool(r.pool.QueryRow(ctx, query, poolID))
}

func (r *poolRepo) GetByClientID(ctx context.Context, clientID string) (*repository.Pool, error) {
	const query = `
		SELECT p.id, p.name, p.custom_attributes, p.password_policy, p.mfa_configuration, p.created_at, p.updated_at
		FROM pools p JOIN clients c ON c.pool_id = p.id
		WHERE c.client_id = $1`
	return scanPool(r.pool.QueryRow(ctx, query, clientID))
}

func (r *poolRepo) List(ctx context.Context) ([]repository.Pool, error) {
	const query = `SELECT ` + poolColumns + ` FROM pools ORDER BY id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var pools []repository.Pool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, err
		}
		pools = append(pools, *p)
	}
	return pools, rows.Err()
}

func (r *poolRepo) Update(ctx context.Context, poolID string, input repository.UpdatePoolInput) (*repository.Pool, error) {
	var b setBuilder
	if input.Name != nil {
		b.set("name", *input.Name)
	}
	if input.CustomAttributes != nil {
		b.set("custom_attributes", input.CustomAttributes)
	}
	if input.PasswordPolicy != nil {
		b.set("password_policy", *input.PasswordPolicy)
	}
	if input.MFAConfiguration != nil {
		b.set("mfa_configuration", string(*input.MFAConfiguration))
	}
	if b.empty() {
		return r.Get(ctx, poolID)
	}

	setSQL, args, next := b.clause()
	query := fmt.Sprintf(`UPDATE pools SET %s WHERE id = $%d RETURNING `+poolColumns, setSQL, next)
	args = append(args, poolID)
	return scanPool(r.pool.QueryRow(ctx, query, args...))
}

func (r *poolRepo) Delete(ctx context.Context, poolID string) error {
	// users/clients/groups/mfa_devices caen por ON DELETE CASCADE.
	const query = `DELETE FROM pools WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, poolID)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
