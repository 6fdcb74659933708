package flow

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/idmx-dev/poolhouse/internal/domain/repository"
	"github.com/idmx-dev/poolhouse/internal/identity"
	"github.com/idmx-dev/poolhouse/internal/mfa"
	"github.com/idmx-dev/poolhouse/internal/observability/logger"
	"github.com/idmx-dev/poolhouse/internal/store"
)

// Status resume cómo terminó un paso del flow para el handler que tiene
// que decidir qué render/redirect sigue.
type Status string

const (
	// StatusFinished: la interaction se cerró; seguir el redirect.
	StatusFinished Status = "finished"
	// StatusMFARequired: login ok pero falta el segundo factor.
	StatusMFARequired Status = "mfa_required"
	// StatusMFASetup: cuenta creada, el usuario pidió enrolar MFA.
	StatusMFASetup Status = "mfa_setup"
	// StatusInvalidCredentials: re-render del login con error, sin
	// transición de estado. Reintentos ilimitados acá; el rate limiting es
	// de otra capa.
	StatusInvalidCredentials Status = "invalid_credentials"
	// StatusInvalidCode: código MFA incorrecto, se queda en AwaitingMfa.
	StatusInvalidCode Status = "invalid_code"
)

// Outcome es el resultado de un paso del orchestrator.
type Outcome struct {
	Status     Status
	RedirectTo string
}

// Orchestrator coordina identity, mfa y el protocol engine por interaction.
type Orchestrator struct {
	engine   Engine
	accounts *identity.Service
	mfa      *mfa.Service
	sessions *SessionStore
	conn     store.Connection

	// authEndpoint es el authorization endpoint del engine, usado para
	// reconstruir el request original cuando una interaction venció
	// durante el MFA setup.
	authEndpoint string

	log *zap.Logger
}

func NewOrchestrator(engine Engine, accounts *identity.Service, mfaSvc *mfa.Service, sessions *SessionStore, conn store.Connection, authEndpoint string) *Orchestrator {
	return &Orchestrator{
		engine:       engine,
		accounts:     accounts,
		mfa:          mfaSvc,
		sessions:     sessions,
		conn:         conn,
		authEndpoint: authEndpoint,
		log:          logger.Named("flow"),
	}
}

// Login procesa el submit de AwaitingLogin. Credenciales inválidas no
// transicionan: el mismo estado se re-renderiza con error.
func (o *Orchestrator) Login(ctx context.Context, uid, email, plain string) (*Outcome, error) {
	inter, err := o.engine.InteractionContext(ctx, uid)
	if err != nil {
		return nil, err
	}

	user, err := o.accounts.Authenticate(ctx, email, plain, inter.ClientID)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidCredentials) {
			return &Outcome{Status: StatusInvalidCredentials}, nil
		}
		return nil, err
	}

	if user.MFAEnabled {
		o.sessions.PutMFA(uid, PendingMFA{
			AccountID:      user.ID,
			PoolID:         user.PoolID,
			Email:          user.Email,
			InteractionUID: uid,
		})
		o.log.Info("login ok, awaiting mfa",
			logger.InteractionID(uid), logger.UserID(user.ID))
		return &Outcome{Status: StatusMFARequired}, nil
	}

	return o.finishLogin(ctx, uid, user.ID)
}

// VerifyMFA procesa un código TOTP en AwaitingMfa. El stash de sesión tiene
// que pertenecer al uid de la URL.
func (o *Orchestrator) VerifyMFA(ctx context.Context, uid, code string) (*Outcome, error) {
	pending, err := o.sessions.MFA(uid)
	if err != nil {
		return nil, err
	}

	_, ok, err := o.mfa.VerifyAuthentication(ctx, pending.PoolID, pending.AccountID, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Outcome{Status: StatusInvalidCode}, nil
	}

	o.sessions.ClearMFA(uid)
	return o.finishLogin(ctx, uid, pending.AccountID)
}

// VerifyBackupCode procesa un backup code en AwaitingMfa.
func (o *Orchestrator) VerifyBackupCode(ctx context.Context, uid, code string) (*Outcome, error) {
	pending, err := o.sessions.MFA(uid)
	if err != nil {
		return nil, err
	}

	ok, err := o.mfa.VerifyBackupCode(ctx, pending.PoolID, pending.AccountID, strings.TrimSpace(code))
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Outcome{Status: StatusInvalidCode}, nil
	}

	o.sessions.ClearMFA(uid)
	return o.finishLogin(ctx, uid, pending.AccountID)
}

// Consent procesa AwaitingConsent: acumula lo que falte sobre el grant
// (existente o nuevo) y cierra con consent. Sin account id en la sesión
// del engine no hay nada que consentir: re-auth dura.
func (o *Orchestrator) Consent(ctx context.Context, uid string) (*Outcome, error) {
	inter, err := o.engine.InteractionContext(ctx, uid)
	if err != nil {
		return nil, err
	}
	if inter.SessionAccountID == "" {
		return nil, ErrReauthRequired
	}

	var grant Grant
	if inter.GrantID != "" {
		grant, err = o.engine.FindGrant(ctx, inter.GrantID)
		if err != nil {
			return nil, fmt.Errorf("flow: grant %s: %w", inter.GrantID, err)
		}
	} else {
		grant = o.engine.NewGrant(ctx, inter.SessionAccountID, inter.ClientID)
	}

	if len(inter.Prompt.MissingScopes) > 0 {
		grant.AddScope(strings.Join(inter.Prompt.MissingScopes, " "))
	}
	if len(inter.Prompt.MissingClaims) > 0 {
		grant.AddClaims(inter.Prompt.MissingClaims)
	}
	for indicator, scopes := range inter.Prompt.MissingResourceScopes {
		grant.AddResourceScope(indicator, strings.Join(scopes, " "))
	}

	grantID, err := grant.Save(ctx)
	if err != nil {
		return nil, err
	}

	consent := ConsentResult{}
	if inter.GrantID == "" {
		consent.GrantID = grantID
	}
	redirect, err := o.engine.FinishInteraction(ctx, uid, Result{Consent: &consent})
	if err != nil {
		return nil, err
	}
	return &Outcome{Status: StatusFinished, RedirectTo: redirect}, nil
}

// Abort cierra la interaction con access_denied desde cualquier estado.
func (o *Orchestrator) Abort(ctx context.Context, uid string) (*Outcome, error) {
	redirect, err := o.engine.FinishInteraction(ctx, uid, Result{Error: &ErrorResult{
		Error:       "access_denied",
		Description: "The resource owner denied the request",
	}})
	if err != nil {
		return nil, err
	}
	o.sessions.ClearMFA(uid)
	o.sessions.ClearSetup(uid)
	return &Outcome{Status: StatusFinished, RedirectTo: redirect}, nil
}

// RegisterInput es el submit del registro dentro de una interaction.
type RegisterInput struct {
	Email      string
	Password   string
	GivenName  string
	FamilyName string
	EnableMFA  bool
}

// Register es la entrada paralela a la máquina: crea la cuenta y o bien
// cierra con login directo, o desvía al sub-flow de MFA setup guardando el
// contexto del authorization request original.
func (o *Orchestrator) Register(ctx context.Context, uid string, input RegisterInput) (*Outcome, error) {
	inter, err := o.engine.InteractionContext(ctx, uid)
	if err != nil {
		return nil, err
	}

	pool, err := o.conn.Pools().GetByClientID(ctx, inter.ClientID)
	if err != nil {
		return nil, err
	}

	account, err := o.accounts.Create(ctx, identity.CreateAccountInput{
		PoolID:     pool.ID,
		Email:      input.Email,
		Password:   input.Password,
		GivenName:  input.GivenName,
		FamilyName: input.FamilyName,
	})
	if err != nil {
		return nil, err
	}
	o.log.Info("account registered",
		logger.PoolID(pool.ID), logger.UserID(account.ID), logger.Bool("mfa_requested", input.EnableMFA))

	if input.EnableMFA {
		o.sessions.PutSetup(uid, PendingSetup{
			AccountID:           account.ID,
			PoolID:              pool.ID,
			Email:               account.Email,
			InteractionUID:      uid,
			ClientID:            inter.ClientID,
			RedirectURI:         inter.RedirectURI,
			State:               inter.State,
			Scope:               inter.Scope,
			CodeChallenge:       inter.CodeChallenge,
			CodeChallengeMethod: inter.CodeChallengeMethod,
		})
		return &Outcome{Status: StatusMFASetup}, nil
	}

	return o.finishLogin(ctx, uid, account.ID)
}

// GenerateMFASetup arma el device TOTP del sub-flow de setup usando el stash
// de la interaction (no toca el engine: la interaction puede incluso vencer
// mientras el usuario escanea el QR, eso lo resuelve CompleteMFASetup).
func (o *Orchestrator) GenerateMFASetup(ctx context.Context, uid string) (*mfa.Setup, error) {
	pending, err := o.sessions.Setup(uid)
	if err != nil {
		return nil, err
	}
	return o.mfa.GenerateSetup(ctx, pending.PoolID, pending.AccountID, "")
}

// VerifyMFASetup valida el primer código contra el device recién creado.
// No cierra la interaction: el front muestra los backup codes y recién
// después llama CompleteMFASetup.
func (o *Orchestrator) VerifyMFASetup(ctx context.Context, uid, deviceID, code string) (bool, error) {
	pending, err := o.sessions.Setup(uid)
	if err != nil {
		return false, err
	}
	return o.mfa.VerifyRegistration(ctx, pending.PoolID, pending.AccountID, deviceID, code)
}

// CompleteMFASetup cierra el sub-flow de setup. Si la interaction original
// sigue viva, termina con login normal. Si venció (lifetime acotado del
// engine), reconstruye el authorization request original desde el stash y
// manda al usuario de vuelta al authorization endpoint: el flow re-arranca
// pero el usuario no pierde el contexto de la app que lo trajo.
func (o *Orchestrator) CompleteMFASetup(ctx context.Context, uid string) (*Outcome, error) {
	pending, err := o.sessions.Setup(uid)
	if err != nil {
		return nil, err
	}
	o.sessions.ClearSetup(uid)

	redirect, err := o.engine.FinishInteraction(ctx, uid, Result{Login: &LoginResult{
		AccountID: pending.AccountID,
	}})
	if err == nil {
		return &Outcome{Status: StatusFinished, RedirectTo: redirect}, nil
	}
	if !errors.Is(err, ErrInteractionExpired) {
		return nil, err
	}

	o.log.Warn("interaction expired during mfa setup, rebuilding authorization request",
		logger.InteractionID(uid), logger.ClientID(pending.ClientID))
	return &Outcome{Status: StatusFinished, RedirectTo: o.resumeURL(pending)}, nil
}

// resumeURL arma la URL de autorización equivalente al request original.
func (o *Orchestrator) resumeURL(p PendingSetup) string {
	if p.RedirectURI == "" || p.ClientID == "" {
		// Sin datos del client no hay request que reconstruir; el
		// login_hint al menos le ahorra tipear el email.
		return "/?login_hint=" + url.QueryEscape(p.Email)
	}

	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", p.ClientID)
	q.Set("redirect_uri", p.RedirectURI)
	scope := p.Scope
	if scope == "" {
		scope = "openid profile email"
	}
	q.Set("scope", scope)
	q.Set("login_hint", p.Email)
	if p.State != "" {
		q.Set("state", p.State)
	}
	if p.CodeChallenge != "" && p.CodeChallengeMethod != "" {
		q.Set("code_challenge", p.CodeChallenge)
		q.Set("code_challenge_method", p.CodeChallengeMethod)
	}
	return o.authEndpoint + "?" + q.Encode()
}

func (o *Orchestrator) finishLogin(ctx context.Context, uid, accountID string) (*Outcome, error) {
	redirect, err := o.engine.FinishInteraction(ctx, uid, Result{Login: &LoginResult{
		AccountID: accountID,
	}})
	if err != nil {
		return nil, err
	}
	return &Outcome{Status: StatusFinished, RedirectTo: redirect}, nil
}
