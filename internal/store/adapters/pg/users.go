package pg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/idmx-dev/poolhouse/internal/domain/repository"
	"github.com/idmx-dev/poolhouse/internal/store"
)

type userRepo struct{ pool *pgxpool.Pool }

const userColumns = `id, pool_id, email, email_verified, password_hash,
	name, given_name, family_name, nickname, picture, website,
	custom_attributes, groups, status, mfa_enabled, last_login, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*repository.User, error) {
	var u repository.User
	var name, given, family, nick, pic, web *string
	err := row.Scan(
		&u.ID, &u.PoolID, &u.Email, &u.EmailVerified, &u.PasswordHash,
		&name, &given, &family, &nick, &pic, &web,
		&u.CustomAttributes, &u.Groups, &u.Status, &u.MFAEnabled, &u.LastLogin, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	u.Name = emptyIfNull(name)
	u.GivenName = emptyIfNull(given)
	u.FamilyName = emptyIfNull(family)
	u.Nickname = emptyIfNull(nick)
	u.Picture = emptyIfNull(pic)
	u.Website = emptyIfNull(web)
	if u.CustomAttributes == nil {
		u.CustomAttributes = map[string]any{}
	}
	if u.Groups == nil {
		u.Groups = []string{}
	}
	return &u, nil
}

func (r *userRepo) Create(ctx context.Context, input repository.CreateUserInput) (*repository.User, error) {
	id := store.NewUserID()
	status := input.Status
	if status == "" {
		status = repository.StatusConfirmed
	}
	attrs := input.CustomAttributes
	if attrs == nil {
		attrs = map[string]any{}
	}
	groups := input.Groups
	if groups == nil {
		groups = []string{}
	}
	const query = `
		INSERT INTO users (
			id, pool_id, email, email_verified, password_hash,
			name, given_name, family_name, nickname, picture, website,
			custom_attributes, groups, status, mfa_enabled, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, NOW(), NOW()
		)
		RETURNING ` + userColumns
	u, err := scanUser(r.pool.QueryRow(ctx, query,
		id, input.PoolID, input.Email, input.EmailVerified, input.PasswordHash,
		nullIfEmpty(input.Name), nullIfEmpty(input.GivenName), nullIfEmpty(input.FamilyName),
		nullIfEmpty(input.Nickname), nullIfEmpty(input.Picture), nullIfEmpty(input.Website),
		attrs, groups, string(status), input.MFAEnabled,
	))
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (r *userRepo) Get(ctx context.Context, poolID, userID string) (*repository.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE pool_id = $1 AND id = $2`
	return scanUser(r.pool.QueryRow(ctx, query, poolID, userID))
}

func (r *userRepo) GetByEmail(ctx context.Context, poolID, email string) (*repository.User, error) {
	// El filtro por pool_id va siempre presente aunque (pool_id, email)
	// tenga índice propio: un email puede existir en varios pools.
	const query = `SELECT ` + userColumns + ` FROM users WHERE pool_id = $1 AND email = $2`
	return scanUser(r.pool.QueryRow(ctx, query, poolID, email))
}

func (r *userRepo) List(ctx context.Context, poolID string, limit int, token string) ([]repository.User, string, error) {
	if limit <= 0 {
		limit = 50
	}
	lastID, err := store.DecodeCursor(token)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", repository.ErrInvalidInput, err)
	}

	// Keyset sobre la clave primaria: estable bajo inserciones concurrentes.
	// Se pide limit+1 para saber si hay página siguiente sin un COUNT extra.
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE pool_id = $1 AND id > $2
		ORDER BY id
		LIMIT $3`
	rows, err := r.pool.Query(ctx, query, poolID, lastID, limit+1)
	if err != nil {
		return nil, "", mapErr(err)
	}
	defer rows.Close()

	var users []repository.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, "", err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, "", mapErr(err)
	}

	next := ""
	if len(users) > limit {
		users = users[:limit]
		next = store.EncodeCursor(users[limit-1].ID)
	}
	return users, next, nil
}

func (r *userRepo) Update(ctx context.Context, poolID, userID string, input repository.UpdateUserInput) (*repository.User, error) {
	var b setBuilder
	if input.Email != nil {
		b.set("email", *input.Email)
	}
	if input.EmailVerified != nil {
		b.set("email_verified", *input.EmailVerified)
	}
	if input.PasswordHash != nil {
		b.set("password_hash", *input.PasswordHash)
	}
	if input.Name != nil {
		b.set("name", nullIfEmpty(*input.Name))
	}
	if input.GivenName != nil {
		b.set("given_name", nullIfEmpty(*input.GivenName))
	}
	if input.FamilyName != nil {
		b.set("family_name", nullIfEmpty(*input.FamilyName))
	}
	if input.Nickname != nil {
		b.set("nickname", nullIfEmpty(*input.Nickname))
	}
	if input.Picture != nil {
		b.set("picture", nullIfEmpty(*input.Picture))
	}
	if input.Website != nil {
		b.set("website", nullIfEmpty(*input.Website))
	}
	if input.CustomAttributes != nil {
		b.set("custom_attributes", input.CustomAttributes)
	}
	if input.Groups != nil {
		b.set("groups", *input.Groups)
	}
	if input.Status != nil {
		b.set("status", string(*input.Status))
	}
	if input.MFAEnabled != nil {
		b.set("mfa_enabled", *input.MFAEnabled)
	}
	if input.LastLogin != nil {
		b.set("last_login", *input.LastLogin)
	}
	if b.empty() {
		return r.Get(ctx, poolID, userID)
	}

	setSQL, args, next := b.clause()
	query := fmt.Sprintf(
		`UPDATE users SET %s WHERE pool_id = $%d AND id = $%d RETURNING `+userColumns,
		setSQL, next, next+1,
	)
	args = append(args, poolID, userID)
	return scanUser(r.pool.QueryRow(ctx, query, args...))
}

func (r *userRepo) Delete(ctx context.Context, poolID, userID string) error {
	// mfa_devices caen por FK compuesta (pool_id, user_id) ON DELETE CASCADE.
	const query = `DELETE FROM users WHERE pool_id = $1 AND id = $2`
	tag, err := r.pool.Exec(ctx, query, poolID, userID)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
