// Package appregistry administra los clients OAuth registrados por pool y
// expone el volcado completo que consume el protocol engine al boot.
package appregistry

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/idmx-dev/poolhouse/internal/domain/repository"
	"github.com/idmx-dev/poolhouse/internal/observability/logger"
	"github.com/idmx-dev/poolhouse/internal/security/tokens"
	"github.com/idmx-dev/poolhouse/internal/store"
	"github.com/idmx-dev/poolhouse/internal/validation"
)

// Registry no cachea nada: cada lectura va al storage, así los cambios de
// provisioning se ven sin restart. La única lista en memoria es la del
// protocol engine, y esa se refresca solo con el Reload explícito de admin.
type Registry struct {
	conn store.Connection
	log  *zap.Logger
}

func New(conn store.Connection) *Registry {
	return &Registry{conn: conn, log: logger.Named("appregistry")}
}

// RegisterInput es el alta de un client. ClientID y ClientSecret vacíos se
// generan; el secret generado se devuelve una sola vez en el Client.
type RegisterInput struct {
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
	Settings                repository.ClientSettings
}

func (r *Registry) Register(ctx context.Context, input RegisterInput) (*repository.Client, error) {
	if strings.TrimSpace(input.PoolID) == "" {
		return nil, fmt.Errorf("pool id requerido: %w", repository.ErrInvalidInput)
	}
	if len(input.RedirectURIs) == 0 {
		return nil, fmt.Errorf("al menos un redirect uri: %w", repository.ErrInvalidInput)
	}

	clientID := input.ClientID
	if clientID == "" {
		id, err := tokens.GenerateOpaqueToken(16)
		if err != nil {
			return nil, err
		}
		clientID = "app_" + id
	}
	secret := input.ClientSecret
	if secret == "" {
		s, err := tokens.GenerateOpaqueToken(32)
		if err != nil {
			return nil, err
		}
		secret = s
	}

	responseTypes := input.ResponseTypes
	if len(responseTypes) == 0 {
		responseTypes = []string{"code"}
	}
	grantTypes := input.GrantTypes
	if len(grantTypes) == 0 {
		grantTypes = []string{"authorization_code", "refresh_token"}
	}
	scope := input.Scope
	if scope == "" {
		scope = "openid profile email"
	}
	for _, s := range strings.Fields(scope) {
		if !validation.ValidScopeName(s) {
			return nil, fmt.Errorf("scope %q inválido: %w", s, repository.ErrInvalidInput)
		}
	}

	created, err := r.conn.Clients().Create(ctx, repository.CreateClientInput{
		ClientID:                clientID,
		ClientSecret:            secret,
		Name:                    input.Name,
		PoolID:                  input.PoolID,
		RedirectURIs:            input.RedirectURIs,
		PostLogoutRedirectURIs:  input.PostLogoutRedirectURIs,
		ResponseTypes:           responseTypes,
		GrantTypes:              grantTypes,
		Scope:                   scope,
		TokenEndpointAuthMethod: input.TokenEndpointAuthMethod,
		ApplicationType:         input.ApplicationType,
		Settings:                input.Settings,
	})
	if err != nil {
		return nil, err
	}
	r.log.Info("client registered",
		logger.ClientID(created.ClientID), logger.PoolID(created.PoolID))
	// El caller necesita el secret en el alta; después nunca más sale.
	created.ClientSecret = secret
	return created, nil
}

func (r *Registry) Get(ctx context.Context, clientID string) (*repository.Client, error) {
	return r.conn.Clients().Get(ctx, clientID)
}

func (r *Registry) List(ctx context.Context, poolID string, limit int, token string) ([]repository.Client, string, error) {
	return r.conn.Clients().List(ctx, poolID, limit, token)
}

func (r *Registry) Update(ctx context.Context, clientID string, input repository.UpdateClientInput) (*repository.Client, error) {
	return r.conn.Clients().Update(ctx, clientID, input)
}

func (r *Registry) Delete(ctx context.Context, clientID string) error {
	return r.conn.Clients().Delete(ctx, clientID)
}

// LoadAll enumera todos los clients de todos los pools paginando hasta
// agotar. Se usa una vez al boot para sembrar el protocol engine y en cada
// Reload de admin.
func (r *Registry) LoadAll(ctx context.Context) ([]repository.Client, error) {
	return r.LoadAllForPool(ctx, "")
}

// LoadAllForPool es LoadAll acotado a un pool; poolID vacío enumera todo.
func (r *Registry) LoadAllForPool(ctx context.Context, poolID string) ([]repository.Client, error) {
	const pageSize = 200

	var all []repository.Client
	token := ""
	for {
		page, next, err := r.conn.Clients().List(ctx, poolID, pageSize, token)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if next == "" {
			return all, nil
		}
		token = next
	}
}
