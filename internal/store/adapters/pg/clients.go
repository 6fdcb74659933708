package pg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/idmx-dev/poolhouse/internal/domain/repository"
	"github.com/idmx-dev/poolhouse/internal/store"
)

type clientRepo struct{ pool *pgxpool.Pool }

const clientColumns = `client_id, client_secret, name, pool_id,
	redirect_uris, post_logout_redirect_uris, response_types, grant_types,
	scope, token_endpoint_auth_method, application_type, settings, created_at, updated_at`

func scanClient(row interface{ Scan(...any) error }) (*repository.Client, error) {
	var c repository.Client
	err := row.Scan(
		&c.ClientID, &c.ClientSecret, &c.Name, &c.PoolID,
		&c.RedirectURIs, &c.PostLogoutRedirectURIs, &c.ResponseTypes, &c.GrantTypes,
		&c.Scope, &c.TokenEndpointAuthMethod, &c.ApplicationType, &c.Settings, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func (r *clientRepo) Create(ctx context.Context, input repository.CreateClientInput) (*repository.Client, error) {
	const query = `
		INSERT INTO clients (
			client_id, client_secret, name, pool_id,
			redirect_uris, post_logout_redirect_uris, response_types, grant_types,
			scope, token_endpoint_auth_method, application_type, settings, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11, $12, NOW(), NOW()
		)
		RETURNING ` + clientColumns
	c, err := scanClient(r.pool.QueryRow(ctx, query,
		input.ClientID, input.ClientSecret, input.Name, input.PoolID,
		sliceOrEmpty(input.RedirectURIs), sliceOrEmpty(input.PostLogoutRedirectURIs),
		sliceOrEmpty(input.ResponseTypes), sliceOrEmpty(input.GrantTypes),
		input.Scope, input.TokenEndpointAuthMethod, input.ApplicationType, input.Settings,
	))
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return c, nil
}

func (r *clientRepo) Get(ctx context.Context, clientID string) (*repository.Client, error) {
	// Única búsqueda global del contrato: el clientID no lleva pool.
	const query = `SELECT ` + clientColumns + ` FROM clients WHERE client_id = $1`
	return scanClient(r.pool.QueryRow(ctx, query, clientID))
}

func (r *clientRepo) List(ctx context.Context, poolID string, limit int, token string) ([]repository.Client, string, error) {
	if limit <= 0 {
		limit = 50
	}
	lastID, err := store.DecodeCursor(token)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", repository.ErrInvalidInput, err)
	}

	query := `
		SELECT ` + clientColumns + `
		FROM clients
		WHERE client_id > $1
		ORDER BY client_id
		LIMIT $2`
	args := []any{lastID, limit + 1}
	if poolID != "" {
		query = `
			SELECT ` + clientColumns + `
			FROM clients
			WHERE pool_id = $1 AND client_id > $2
			ORDER BY client_id
			LIMIT $3`
		args = []any{poolID, lastID, limit + 1}
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", mapErr(err)
	}
	defer rows.Close()

	var clients []repository.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, "", err
		}
		clients = append(clients, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, "", mapErr(err)
	}

	next := ""
	if len(clients) > limit {
		clients = clients[:limit]
		next = store.EncodeCursor(clients[limit-1].ClientID)
	}
	return clients, next, nil
}

func (r *clientRepo) Update(ctx context.Context, clientID string, input repository.UpdateClientInput) (*repository.Client, error) {
	var b setBuilder
	if input.ClientSecret != nil {
		b.set("client_secret", *input.ClientSecret)
	}
	if input.Name != nil {
		b.set("name", *input.Name)
	}
	if input.PoolID != nil {
		b.set("pool_id", *input.PoolID)
	}
	if input.RedirectURIs != nil {
		b.set("redirect_uris", *input.RedirectURIs)
	}
	if input.PostLogoutRedirectURIs != nil {
		b.set("post_logout_redirect_uris", *input.PostLogoutRedirectURIs)
	}
	if input.ResponseTypes != nil {
		b.set("response_types", *input.ResponseTypes)
	}
	if input.GrantTypes != nil {
		b.set("grant_types", *input.GrantTypes)
	}
	if input.Scope != nil {
		b.set("scope", *input.Scope)
	}
	if input.TokenEndpointAuthMethod != nil {
		b.set("token_endpoint_auth_method", *input.TokenEndpointAuthMethod)
	}
	if input.ApplicationType != nil {
		b.set("application_type", *input.ApplicationType)
	}
	if input.Settings != nil {
		b.set("settings", *input.Settings)
	}
	if b.empty() {
		return r.Get(ctx, clientID)
	}

	setSQL, args, next := b.clause()
	query := fmt.Sprintf(`UPDATE clients SET %s WHERE client_id = $%d RETURNING `+clientColumns, setSQL, next)
	args = append(args, clientID)
	return scanClient(r.pool.QueryRow(ctx, query, args...))
}

func (r *clientRepo) Delete(ctx context.Context, clientID string) error {
	const query = `DELETE FROM clients WHERE client_id = $1`
	tag, err := r.pool.Exec(ctx, query, clientID)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func sliceOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
