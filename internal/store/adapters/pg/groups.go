package pg

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/idmx-dev/poolhouse/internal/domain/repository"
	"github.com/idmx-dev/poolhouse/internal/store"
)

type groupRepo struct{ pool *pgxpool.Pool }

const groupColumns = `id, pool_id, name, description, permissions, created_at, updated_at`

func scanGroup(row interface{ Scan(...any) error }) (*repository.Group, error) {
	var g repository.Group
	var desc *string
	err := row.Scan(&g.ID, &g.PoolID, &g.Name, &desc, &g.Permissions, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	g.Description = emptyIfNull(desc)
	if g.Permissions == nil {
		g.Permissions = []string{}
	}
	return &g, nil
}

func (r *groupRepo) Create(ctx context.Context, input repository.CreateGroupInput) (*repository.Group, error) {
	const query = `
		INSERT INTO groups (id, pool_id, name, description, permissions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING ` + groupColumns
	g, err := scanGroup(r.pool.QueryRow(ctx, query,
		uuid.NewString(), input.PoolID, input.Name, nullIfEmpty(input.Description), sliceOrEmpty(input.Permissions),
	))
	if err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}
	return g, nil
}

func (r *groupRepo) Get(ctx context.Context, poolID, groupID string) (*repository.Group, error) {
	const query = `SELECT ` + groupColumns + ` FROM groups WHERE pool_id = $1 AND id = $2`
	return scanGroup(r.pool.QueryRow(ctx, query, poolID, groupID))
}

func (r *groupRepo) GetByName(ctx context.Context, poolID, name string) (*repository.Group, error) {
	const query = `SELECT ` + groupColumns + ` FROM groups WHERE pool_id = $1 AND name = $2`
	return scanGroup(r.pool.QueryRow(ctx, query, poolID, name))
}

func (r *groupRepo) List(ctx context.Context, poolID string, limit int, token string) ([]repository.Group, string, error) {
	if limit <= 0 {
		limit = 50
	}
	lastID, err := store.DecodeCursor(token)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", repository.ErrInvalidInput, err)
	}

	const query = `
		SELECT ` + groupColumns + `
		FROM groups
		WHERE pool_id = $1 AND id > $2
		ORDER BY id
		LIMIT $3`
	rows, err := r.pool.Query(ctx, query, poolID, lastID, limit+1)
	if err != nil {
		return nil, "", mapErr(err)
	}
	defer rows.Close()

	var groups []repository.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, "", err
		}
		groups = append(groups, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, "", mapErr(err)
	}

	next := ""
	if len(groups) > limit {
		groups = groups[:limit]
		next = store.EncodeCursor(groups[limit-1].ID)
	}
	return groups, next, nil
}

func (r *groupRepo) Update(ctx context.Context, poolID, groupID string, input repository.UpdateGroupInput) (*repository.Group, error) {
	var b setBuilder
	if input.Name != nil {
		b.set("name", *input.Name)
	}
	if input.Description != nil {
		b.set("description", nullIfEmpty(*input.Description))
	}
	if input.Permissions != nil {
		b.set("permissions", *input.Permissions)
	}
	if b.empty() {
		return r.Get(ctx, poolID, groupID)
	}

	setSQL, args, next := b.clause()
	query := fmt.Sprintf(
		`UPDATE groups SET %s WHERE pool_id = $%d AND id = $%d RETURNING `+groupColumns,
		setSQL, next, next+1,
	)
	args = append(args, poolID, groupID)
	return scanGroup(r.pool.QueryRow(ctx, query, args...))
}

func (r *groupRepo) Delete(ctx context.Context, poolID, groupID string) error {
	// A diferencia del backend key-value, acá la remoción de membresías y
	// el borrado del group van en una sola transacción.
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return mapErr(err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`UPDATE users SET groups = array_remove(groups, $2), updated_at = NOW()
		 WHERE pool_id = $1 AND $2 = ANY(groups)`,
		poolID, groupID)
	if err != nil {
		return mapErr(err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM groups WHERE pool_id = $1 AND id = $2`, poolID, groupID)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return tx.Commit(ctx)
}

func (r *groupRepo) AddUser(ctx context.Context, poolID, userID, groupID string) error {
	if _, err := r.Get(ctx, poolID, groupID); err != nil {
		return err
	}
	const query = `
		UPDATE users SET groups = array_append(groups, $3), updated_at = NOW()
		WHERE pool_id = $1 AND id = $2 AND NOT ($3 = ANY(groups))`
	tag, err := r.pool.Exec(ctx, query, poolID, userID, groupID)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		// Idempotente: o el usuario no existe, o ya era miembro.
		if _, err := r.userExists(ctx, poolID, userID); err != nil {
			return err
		}
	}
	return nil
}

func (r *groupRepo) RemoveUser(ctx context.Context, poolID, userID, groupID string) error {
	const query = `
		UPDATE users SET groups = array_remove(groups, $3), updated_at = NOW()
		WHERE pool_id = $1 AND id = $2`
	tag, err := r.pool.Exec(ctx, query, poolID, userID, groupID)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *groupRepo) UserGroups(ctx context.Context, poolID, userID string) ([]repository.Group, error) {
	const query = `
		SELECT g.id, g.pool_id, g.name, g.description, g.permissions, g.created_at, g.updated_at
		FROM groups g
		JOIN users u ON u.pool_id = g.pool_id AND g.id = ANY(u.groups)
		WHERE u.pool_id = $1 AND u.id = $2
		ORDER BY g.id`
	rows, err := r.pool.Query(ctx, query, poolID, userID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var groups []repository.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, *g)
	}
	return groups, rows.Err()
}

func (r *groupRepo) GroupUsers(ctx context.Context, poolID, groupID string) ([]repository.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE pool_id = $1 AND $2 = ANY(groups)
		ORDER BY id`
	rows, err := r.pool.Query(ctx, query, poolID, groupID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var users []repository.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (r *groupRepo) userExists(ctx context.Context, poolID, userID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE pool_id = $1 AND id = $2)`,
		poolID, userID).Scan(&exists)
	if err != nil {
		return false, mapErr(err)
	}
	if !exists {
		return false, repository.ErrNotFound
	}
	return true, nil
}
