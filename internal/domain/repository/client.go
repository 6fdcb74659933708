package repository

import (
	"context"
	"time"
)

// ClientSettings contiene validez de tokens en segundos (0 = default del engine).
type ClientSettings struct {
	AccessTokenValidity  int `json:"access_token_validity,omitempty"`
	IDTokenValidity      int `json:"id_token_validity,omitempty"`
	RefreshTokenValidity int `json:"refresh_token_validity,omitempty"`
}

// Client representa una aplicación OAuth ligada a exactamente un pool.
// ClientID es globalmente único; PoolID es inmutable una vez creado salvo
// re-asociación explícita vía Update.
type Client struct {
	ClientID                string         `json:"client_id"`
	ClientSecret            string         `json:"-"`
	Name                    string         `json:"client_name"`
	PoolID                  string         `json:"pool_id"`
	RedirectURIs            []string       `json:"redirect_uris"`
	PostLogoutRedirectURIs  []string       `json:"post_logout_redirect_uris"`
	ResponseTypes           []string       `json:"response_types"`
	GrantTypes              []string       `json:"grant_types"`
	Scope                   string         `json:"scope"`
	TokenEndpointAuthMethod string         `json:"token_endpoint_auth_method"`
	ApplicationType         string         `json:"application_type"`
	Settings                ClientSettings `json:"settings"`
	CreatedAt               time.Time      `json:"created_at"`
	UpdatedAt               time.Time      `json:"updated_at"`
}

// CreateClientInput contiene los datos para registrar un client.
type CreateClientInput struct {
	ClientID                string
	ClientSecret            string
	Name                    string
	PoolID                  string
	RedirectURIs            []string
	PostLogoutRedirectURIs  []string
	ResponseTypes           []string
	GrantTypes              []string
	Scope                   string
	TokenEndpointAuthMethod string
	ApplicationType         string
	Settings                ClientSettings
}

// UpdateClientInput contiene los campos actualizables de un client.
type UpdateClientInput struct {
	ClientSecret            *string
	Name                    *string
	PoolID                  *string // re-asociación explícita de pool
	RedirectURIs            *[]string
	PostLogoutRedirectURIs  *[]string
	ResponseTypes           *[]string
	GrantTypes              *[]string
	Scope                   *string
	TokenEndpointAuthMethod *string
	ApplicationType         *string
	Settings                *ClientSettings
}

// ClientRepository define operaciones sobre clients. La búsqueda por
// clientID es global (única clave no pool-scoped del contrato).
type ClientRepository interface {
	// Create registra un client. Retorna ErrAlreadyExists si el clientID
	// ya existe, sin importar el pool.
	Create(ctx context.Context, input CreateClientInput) (*Client, error)

	// Get busca un client por su clientID global.
	Get(ctx context.Context, clientID string) (*Client, error)

	// List pagina clients. poolID vacío enumera todos los pools (usado por
	// el seed del protocol engine al boot).
	List(ctx context.Context, poolID string, limit int, token string) ([]Client, string, error)

	// Update actualiza campos de un client.
	Update(ctx context.Context, clientID string, input UpdateClientInput) (*Client, error)

	// Delete elimina un client.
	Delete(ctx context.Context, clientID string) error
}
