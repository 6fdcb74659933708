// Package flow implementa el Interaction Orchestrator: la máquina de
// estados login → (mfa)? → consent → finished que media entre el usuario y
// el protocol engine OIDC externo. El engine es dueño de los interaction
// ids y de la sesión protocolar; acá solo se orquesta.
package flow

import (
	"context"
	"errors"
)

// ErrInteractionExpired la devuelve el engine cuando el uid ya no existe
// (lifetime acotado de la interaction).
var ErrInteractionExpired = errors.New("flow: interaction expired")

// ErrSessionMismatch indica que el estado stasheado pertenece a otra
// interaction que la de la URL.
var ErrSessionMismatch = errors.New("flow: session does not match interaction")

// ErrReauthRequired indica que la sesión del engine perdió el account id y
// el usuario tiene que loguearse de nuevo. No es reintentable.
var ErrReauthRequired = errors.New("flow: re-authentication required")

// Prompt describe qué le falta juntar al engine en el estado actual.
type Prompt struct {
	Name                  string
	MissingScopes         []string
	MissingClaims         []string
	MissingResourceScopes map[string][]string
}

// Interaction es la vista que el engine expone de una interaction viva:
// los parámetros del authorization request original más el estado de la
// sesión protocolar.
type Interaction struct {
	UID                 string
	ClientID            string
	RedirectURI         string
	State               string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod string

	// SessionAccountID viene de la sesión del engine; vacío si el usuario
	// todavía no se autenticó (o la sesión se perdió).
	SessionAccountID string

	// GrantID del grant existente, si la sesión ya tiene uno.
	GrantID string

	Prompt Prompt
}

// Result es la continuación con la que se cierra una interaction.
// Exactamente uno de los tres campos debe estar seteado.
type Result struct {
	Login   *LoginResult
	Consent *ConsentResult
	Error   *ErrorResult
}

type LoginResult struct {
	AccountID string
}

type ConsentResult struct {
	// GrantID solo se manda cuando la interaction no traía uno.
	GrantID string
}

type ErrorResult struct {
	Error       string
	Description string
}

// Grant es el objeto de consentimiento del engine. Los Add* acumulan; nada
// persiste hasta Save.
type Grant interface {
	AddScope(scope string)
	AddClaims(claims []string)
	AddResourceScope(indicator, scopes string)
	Save(ctx context.Context) (string, error)
}

// AccountSource resuelve una cuenta de la sesión a su proyección de
// claims. Es el puente findAccount que el engine consulta al cerrar un
// consent para armar los tokens.
type AccountSource interface {
	ClaimsForAccount(ctx context.Context, clientID, accountID, scope string) (map[string]any, error)
}

// Engine abstrae el protocol engine OIDC externo. La implementación real
// vive fuera de este repo; los tests usan un fake en memoria.
type Engine interface {
	// InteractionContext carga la interaction viva para un uid. Devuelve
	// ErrInteractionExpired si el uid ya no resuelve.
	InteractionContext(ctx context.Context, uid string) (*Interaction, error)

	// FinishInteraction cierra la interaction con el result dado y devuelve
	// la URL a la que hay que mandar al usuario.
	FinishInteraction(ctx context.Context, uid string, result Result) (string, error)

	// FindGrant busca un grant existente; ErrNotFound del engine se reporta
	// como error, no como nil.
	FindGrant(ctx context.Context, grantID string) (Grant, error)

	// NewGrant crea un grant vacío para (account, client), sin persistir.
	NewGrant(ctx context.Context, accountID, clientID string) Grant
}
