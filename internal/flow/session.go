package flow

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/idmx-dev/poolhouse/internal/metrics"
)

// PendingMFA es lo que se stashea entre el login exitoso y la verificación
// TOTP/backup-code. Vive keyed por interaction uid con TTL.
type PendingMFA struct {
	AccountID      string
	PoolID         string
	Email          string
	InteractionUID string
}

// PendingSetup guarda el contexto del authorization request original
// mientras el usuario completa el alta de MFA. Los campos del request
// (client, redirect, scope, PKCE) alcanzan para reconstruir la URL de
// autorización si la interaction venció en el medio.
type PendingSetup struct {
	AccountID      string
	PoolID         string
	Email          string
	InteractionUID string

	ClientID            string
	RedirectURI         string
	State               string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// SessionStore guarda el estado pendiente de interactions en memoria con
// expiración. No sobrevive restarts: una interaction a medio camino tras un
// restart simplemente re-arranca el login, igual que si hubiera vencido.
type SessionStore struct {
	c *gocache.Cache
}

func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &SessionStore{c: gocache.New(ttl, ttl/2)}
}

func mfaKey(uid string) string   { return "mfa:" + uid }
func setupKey(uid string) string { return "setup:" + uid }

func (s *SessionStore) PutMFA(uid string, p PendingMFA) {
	s.c.SetDefault(mfaKey(uid), p)
	metrics.InteractionsActive.Set(float64(s.c.ItemCount()))
}

// MFA devuelve el estado pendiente validando que pertenezca al uid de la
// URL. Un stash de otra interaction es ErrSessionMismatch, no un miss.
func (s *SessionStore) MFA(uid string) (PendingMFA, error) {
	v, ok := s.c.Get(mfaKey(uid))
	if !ok {
		return PendingMFA{}, ErrSessionMismatch
	}
	p, ok := v.(PendingMFA)
	if !ok || p.InteractionUID != uid {
		return PendingMFA{}, ErrSessionMismatch
	}
	return p, nil
}

func (s *SessionStore) ClearMFA(uid string) {
	s.c.Delete(mfaKey(uid))
	metrics.InteractionsActive.Set(float64(s.c.ItemCount()))
}

func (s *SessionStore) PutSetup(uid string, p PendingSetup) {
	s.c.SetDefault(setupKey(uid), p)
	metrics.InteractionsActive.Set(float64(s.c.ItemCount()))
}

func (s *SessionStore) Setup(uid string) (PendingSetup, error) {
	v, ok := s.c.Get(setupKey(uid))
	if !ok {
		return PendingSetup{}, ErrSessionMismatch
	}
	p, ok := v.(PendingSetup)
	if !ok || p.InteractionUID != uid {
		return PendingSetup{}, ErrSessionMismatch
	}
	return p, nil
}

func (s *SessionStore) ClearSetup(uid string) {
	s.c.Delete(setupKey(uid))
	metrics.InteractionsActive.Set(float64(s.c.ItemCount()))
}
