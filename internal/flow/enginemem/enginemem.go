// Package enginemem es un protocol engine en memoria: suficiente para correr
// el flow completo en desarrollo y en tests, sin un engine OIDC real del otro
// lado. No emite tokens; el "authorization code" del redirect es un opaco
// random que nadie canjea.
package enginemem

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/idmx-dev/poolhouse/internal/domain/repository"
	"github.com/idmx-dev/poolhouse/internal/flow"
)

type Engine struct {
	interactions *gocache.Cache
	accounts     flow.AccountSource

	mu     sync.Mutex
	grants map[string]*grant

	// Finished guarda el último Result por uid, para inspección en tests.
	finished map[string]flow.Result
}

// New arma el engine. accounts es el puente findAccount con el que se
// proyectan los claims al cerrar un consent; puede ser nil y en ese caso
// los grants quedan sin profile.
func New(interactionTTL time.Duration, accounts flow.AccountSource) *Engine {
	return &Engine{
		interactions: gocache.New(interactionTTL, interactionTTL/2),
		accounts:     accounts,
		grants:       make(map[string]*grant),
		finished:     make(map[string]flow.Result),
	}
}

// Begin registra una interaction viva y devuelve su uid. Es el equivalente a
// que un usuario llegue al authorization endpoint del engine.
func (e *Engine) Begin(inter flow.Interaction) string {
	if inter.UID == "" {
		inter.UID = uuid.NewString()
	}
	e.interactions.Set(inter.UID, &inter, gocache.DefaultExpiration)
	return inter.UID
}

// Expire mata una interaction viva, simulando el vencimiento del lifetime.
func (e *Engine) Expire(uid string) {
	e.interactions.Delete(uid)
}

// LastResult devuelve el result con el que se cerró una interaction.
func (e *Engine) LastResult(uid string) (flow.Result, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.finished[uid]
	return r, ok
}

func (e *Engine) InteractionContext(_ context.Context, uid string) (*flow.Interaction, error) {
	v, ok := e.interactions.Get(uid)
	if !ok {
		return nil, flow.ErrInteractionExpired
	}
	inter := *v.(*flow.Interaction)
	return &inter, nil
}

func (e *Engine) FinishInteraction(ctx context.Context, uid string, result flow.Result) (string, error) {
	v, ok := e.interactions.Get(uid)
	if !ok {
		return "", flow.ErrInteractionExpired
	}
	inter := v.(*flow.Interaction)

	e.mu.Lock()
	e.finished[uid] = result
	e.mu.Unlock()

	switch {
	case result.Login != nil:
		// El engine real transiciona a consent con la sesión logueada; acá
		// se simula actualizando la interaction en el lugar.
		inter.SessionAccountID = result.Login.AccountID
		if inter.Prompt.Name == "" || inter.Prompt.Name == "login" {
			inter.Prompt = flow.Prompt{
				Name:          "consent",
				MissingScopes: strings.Fields(inter.Scope),
			}
		}
		e.interactions.Set(uid, inter, gocache.DefaultExpiration)
		return "/interaction/" + uid + "/consent", nil

	case result.Consent != nil:
		e.projectProfile(ctx, inter, result.Consent.GrantID)
		e.interactions.Delete(uid)
		q := url.Values{}
		q.Set("code", uuid.NewString())
		if inter.State != "" {
			q.Set("state", inter.State)
		}
		return inter.RedirectURI + "?" + q.Encode(), nil

	case result.Error != nil:
		e.interactions.Delete(uid)
		q := url.Values{}
		q.Set("error", result.Error.Error)
		q.Set("error_description", result.Error.Description)
		if inter.State != "" {
			q.Set("state", inter.State)
		}
		return inter.RedirectURI + "?" + q.Encode(), nil
	}
	return "", flow.ErrInteractionExpired
}

// projectProfile resuelve el findAccount de la sesión y deja los claims
// proyectados en el grant: es lo que el engine real usa para el id_token.
func (e *Engine) projectProfile(ctx context.Context, inter *flow.Interaction, grantID string) {
	if grantID == "" {
		grantID = inter.GrantID
	}
	if e.accounts == nil || grantID == "" || inter.SessionAccountID == "" {
		return
	}
	profile, err := e.accounts.ClaimsForAccount(ctx, inter.ClientID, inter.SessionAccountID, inter.Scope)
	if err != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if g, ok := e.grants[grantID]; ok {
		g.setProfile(profile)
	}
}

func (e *Engine) FindGrant(_ context.Context, grantID string) (flow.Grant, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	g, ok := e.grants[grantID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return g, nil
}

func (e *Engine) NewGrant(_ context.Context, accountID, clientID string) flow.Grant {
	return &grant{
		engine:         e,
		accountID:      accountID,
		clientID:       clientID,
		resourceScopes: make(map[string]string),
	}
}

type grant struct {
	engine    *Engine
	id        string
	accountID string
	clientID  string

	mu             sync.Mutex
	scopes         []string
	claims         []string
	resourceScopes map[string]string
	profile        map[string]any
}

func (g *grant) AddScope(scope string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scopes = append(g.scopes, strings.Fields(scope)...)
}

func (g *grant) AddClaims(claims []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.claims = append(g.claims, claims...)
}

func (g *grant) AddResourceScope(indicator, scopes string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resourceScopes[indicator] = scopes
}

func (g *grant) Save(_ context.Context) (string, error) {
	g.engine.mu.Lock()
	defer g.engine.mu.Unlock()
	if g.id == "" {
		g.id = uuid.NewString()
	}
	g.engine.grants[g.id] = g
	return g.id, nil
}

// Scopes expone lo acumulado, para asserts en tests.
func (g *grant) Scopes() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.scopes...)
}

// Claims expone lo acumulado, para asserts en tests.
func (g *grant) Claims() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.claims...)
}

func (g *grant) setProfile(p map[string]any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.profile = p
}

// Profile expone los claims proyectados al cerrar el consent.
func (g *grant) Profile() map[string]any {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.profile
}
