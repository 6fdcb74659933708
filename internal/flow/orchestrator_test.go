package flow_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/idmx-dev/poolhouse/internal/domain/repository"
	"github.com/idmx-dev/poolhouse/internal/flow"
	"github.com/idmx-dev/poolhouse/internal/flow/enginemem"
	"github.com/idmx-dev/poolhouse/internal/identity"
	"github.com/idmx-dev/poolhouse/internal/mfa"
	"github.com/idmx-dev/poolhouse/internal/security/password"
	"github.com/idmx-dev/poolhouse/internal/store"
	"github.com/idmx-dev/poolhouse/internal/store/storetest"
)

type harness struct {
	engine   *enginemem.Engine
	orch     *flow.Orchestrator
	accounts *identity.Service
	mfa      *mfa.Service
	conn     store.Connection
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := storetest.NewConn(t)
	ctx := context.Background()

	_, err := conn.Pools().Create(ctx, repository.CreatePoolInput{ID: "acme", Name: "Acme"})
	require.NoError(t, err)
	_, err = conn.Clients().Create(ctx, repository.CreateClientInput{
		ClientID: "app_acme", ClientSecret: "s", PoolID: "acme",
		RedirectURIs: []string{"https://app.acme.test/cb"},
	})
	require.NoError(t, err)

	accounts := identity.NewService(conn, identity.WithHashParams(
		password.Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, KeyLen: 32}))
	mfaSvc := mfa.NewService(conn, "poolhouse-test", 4)
	engine := enginemem.New(time.Minute, accounts)
	orch := flow.NewOrchestrator(engine, accounts, mfaSvc, flow.NewSessionStore(time.Minute), conn, "https://idp.acme.test/auth")

	return &harness{engine: engine, orch: orch, accounts: accounts, mfa: mfaSvc, conn: conn}
}

func (h *harness) seedAccount(t *testing.T, email, pass string) *repository.User {
	t.Helper()
	u, err := h.accounts.Create(context.Background(), identity.CreateAccountInput{
		PoolID: "acme", Email: email, Password: pass,
	})
	require.NoError(t, err)
	return u
}

func (h *harness) begin(state string) string {
	return h.engine.Begin(flow.Interaction{
		ClientID:    "app_acme",
		RedirectURI: "https://app.acme.test/cb",
		State:       state,
		Scope:       "openid profile email",
		Prompt:      flow.Prompt{Name: "login"},
	})
}

func TestLoginFinishes(t *testing.T) {
	h := newHarness(t)
	h.seedAccount(t, "ana@example.com", "S3cure-pass")
	uid := h.begin("xyz")

	out, err := h.orch.Login(context.Background(), uid, "ana@example.com", "S3cure-pass")
	require.NoError(t, err)
	require.Equal(t, flow.StatusFinished, out.Status)
	require.NotEmpty(t, out.RedirectTo)

	result, ok := h.engine.LastResult(uid)
	require.True(t, ok)
	require.NotNil(t, result.Login)
}

func TestLoginInvalidCredentialsStays(t *testing.T) {
	h := newHarness(t)
	h.seedAccount(t, "ana@example.com", "S3cure-pass")
	uid := h.begin("")

	out, err := h.orch.Login(context.Background(), uid, "ana@example.com", "wrong")
	require.NoError(t, err)
	require.Equal(t, flow.StatusInvalidCredentials, out.Status)
	require.Empty(t, out.RedirectTo)

	// La interaction sigue viva: se puede reintentar.
	out, err = h.orch.Login(context.Background(), uid, "ana@example.com", "S3cure-pass")
	require.NoError(t, err)
	require.Equal(t, flow.StatusFinished, out.Status)
}

func TestLoginExpiredInteraction(t *testing.T) {
	h := newHarness(t)
	h.seedAccount(t, "ana@example.com", "S3cure-pass")
	uid := h.begin("")
	h.engine.Expire(uid)

	_, err := h.orch.Login(context.Background(), uid, "ana@example.com", "S3cure-pass")
	require.ErrorIs(t, err, flow.ErrInteractionExpired)
}

func TestLoginDivertsToMFA(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := h.seedAccount(t, "mfa@example.com", "S3cure-pass")

	setup, err := h.mfa.GenerateSetup(ctx, "acme", user.ID, "")
	require.NoError(t, err)
	otpCode, err := totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)
	ok, err := h.mfa.VerifyRegistration(ctx, "acme", user.ID, setup.DeviceID, otpCode)
	require.NoError(t, err)
	require.True(t, ok)

	uid := h.begin("")
	out, err := h.orch.Login(ctx, uid, "mfa@example.com", "S3cure-pass")
	require.NoError(t, err)
	require.Equal(t, flow.StatusMFARequired, out.Status)

	// Código malo: sigue en AwaitingMfa.
	out, err = h.orch.VerifyMFA(ctx, uid, "000000")
	require.NoError(t, err)
	require.Equal(t, flow.StatusInvalidCode, out.Status)

	otpCode, err = totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)
	out, err = h.orch.VerifyMFA(ctx, uid, otpCode)
	require.NoError(t, err)
	require.Equal(t, flow.StatusFinished, out.Status)

	// El stash se consumió: repetir el verify es session mismatch.
	_, err = h.orch.VerifyMFA(ctx, uid, otpCode)
	require.ErrorIs(t, err, flow.ErrSessionMismatch)
}

func TestBackupCodeLogin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := h.seedAccount(t, "mfa@example.com", "S3cure-pass")

	setup, err := h.mfa.GenerateSetup(ctx, "acme", user.ID, "")
	require.NoError(t, err)
	otpCode, _ := totp.GenerateCode(setup.Secret, time.Now())
	_, err = h.mfa.VerifyRegistration(ctx, "acme", user.ID, setup.DeviceID, otpCode)
	require.NoError(t, err)

	uid := h.begin("")
	out, err := h.orch.Login(ctx, uid, "mfa@example.com", "S3cure-pass")
	require.NoError(t, err)
	require.Equal(t, flow.StatusMFARequired, out.Status)

	out, err = h.orch.VerifyBackupCode(ctx, uid, " "+setup.BackupCodes[0]+" ")
	require.NoError(t, err)
	require.Equal(t, flow.StatusFinished, out.Status)
}

func TestVerifyMFAWrongInteraction(t *testing.T) {
	h := newHarness(t)
	_, err := h.orch.VerifyMFA(context.Background(), "uid-sin-stash", "123456")
	require.ErrorIs(t, err, flow.ErrSessionMismatch)
}

func TestConsentCreatesGrant(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	uid := h.engine.Begin(flow.Interaction{
		ClientID:         "app_acme",
		RedirectURI:      "https://app.acme.test/cb",
		State:            "st",
		Scope:            "openid email",
		SessionAccountID: "usr_logged",
		Prompt: flow.Prompt{
			Name:          "consent",
			MissingScopes: []string{"openid", "email"},
			MissingClaims: []string{"email"},
		},
	})

	out, err := h.orch.Consent(ctx, uid)
	require.NoError(t, err)
	require.Equal(t, flow.StatusFinished, out.Status)
	require.Contains(t, out.RedirectTo, "code=")
	require.Contains(t, out.RedirectTo, "state=st")

	result, ok := h.engine.LastResult(uid)
	require.True(t, ok)
	require.NotNil(t, result.Consent)
	// Interaction sin grant previo: el result lleva el grant nuevo.
	require.NotEmpty(t, result.Consent.GrantID)
}

func TestConsentReusesExistingGrant(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	g := h.engine.NewGrant(ctx, "usr_logged", "app_acme")
	g.AddScope("openid")
	grantID, err := g.Save(ctx)
	require.NoError(t, err)

	uid := h.engine.Begin(flow.Interaction{
		ClientID:         "app_acme",
		RedirectURI:      "https://app.acme.test/cb",
		SessionAccountID: "usr_logged",
		GrantID:          grantID,
		Prompt: flow.Prompt{
			Name:          "consent",
			MissingScopes: []string{"profile"},
		},
	})

	out, err := h.orch.Consent(ctx, uid)
	require.NoError(t, err)
	require.Equal(t, flow.StatusFinished, out.Status)

	result, _ := h.engine.LastResult(uid)
	require.NotNil(t, result.Consent)
	// El grant ya existía: el result no lo repite.
	require.Empty(t, result.Consent.GrantID)
}

func TestConsentProjectsAccountClaims(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.seedAccount(t, "claims@example.com", "S3cure-pass")

	uid := h.engine.Begin(flow.Interaction{
		ClientID:    "app_acme",
		RedirectURI: "https://app.acme.test/cb",
		Scope:       "openid email",
		Prompt:      flow.Prompt{Name: "login"},
	})
	out, err := h.orch.Login(ctx, uid, "claims@example.com", "S3cure-pass")
	require.NoError(t, err)
	require.Equal(t, flow.StatusFinished, out.Status)

	out, err = h.orch.Consent(ctx, uid)
	require.NoError(t, err)
	require.Equal(t, flow.StatusFinished, out.Status)

	result, ok := h.engine.LastResult(uid)
	require.True(t, ok)
	require.NotNil(t, result.Consent)

	// El grant queda con el perfil proyectado: sub siempre, email por el
	// scope pedido, nada de profile porque no se pidió.
	g, err := h.engine.FindGrant(ctx, result.Consent.GrantID)
	require.NoError(t, err)
	profiled, ok := g.(interface{ Profile() map[string]any })
	require.True(t, ok)
	profile := profiled.Profile()
	require.Equal(t, u.ID, profile["sub"])
	require.Equal(t, "claims@example.com", profile["email"])
	require.NotContains(t, profile, "given_name")
}

func TestConsentWithoutSessionIsReauth(t *testing.T) {
	h := newHarness(t)
	uid := h.begin("")

	_, err := h.orch.Consent(context.Background(), uid)
	require.ErrorIs(t, err, flow.ErrReauthRequired)
}

func TestAbort(t *testing.T) {
	h := newHarness(t)
	uid := h.begin("st")

	out, err := h.orch.Abort(context.Background(), uid)
	require.NoError(t, err)
	require.Equal(t, flow.StatusFinished, out.Status)
	require.Contains(t, out.RedirectTo, "error=access_denied")
	require.Contains(t, out.RedirectTo, "state=st")
}

func TestRegisterDirectLogin(t *testing.T) {
	h := newHarness(t)
	uid := h.begin("")

	out, err := h.orch.Register(context.Background(), uid, flow.RegisterInput{
		Email:    "new@example.com",
		Password: "S3cure-pass",
	})
	require.NoError(t, err)
	require.Equal(t, flow.StatusFinished, out.Status)

	// La cuenta quedó creada en el pool dueño del client.
	u, err := h.accounts.FindByPoolAndEmail(context.Background(), "acme", "new@example.com")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(u.ID, "usr_"))
}

func TestRegisterWithMFASetup(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	uid := h.begin("st")

	out, err := h.orch.Register(ctx, uid, flow.RegisterInput{
		Email:     "enroll@example.com",
		Password:  "S3cure-pass",
		EnableMFA: true,
	})
	require.NoError(t, err)
	require.Equal(t, flow.StatusMFASetup, out.Status)

	setup, err := h.orch.GenerateMFASetup(ctx, uid)
	require.NoError(t, err)
	require.NotEmpty(t, setup.ProvisioningURI)

	otpCode, err := totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)
	ok, err := h.orch.VerifyMFASetup(ctx, uid, setup.DeviceID, otpCode)
	require.NoError(t, err)
	require.True(t, ok)

	out, err = h.orch.CompleteMFASetup(ctx, uid)
	require.NoError(t, err)
	require.Equal(t, flow.StatusFinished, out.Status)
}

func TestCompleteMFASetupAfterExpiryRebuildsURL(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	uid := h.engine.Begin(flow.Interaction{
		ClientID:            "app_acme",
		RedirectURI:         "https://app.acme.test/cb",
		State:               "st",
		Scope:               "openid email",
		CodeChallenge:       "chal",
		CodeChallengeMethod: "S256",
		Prompt:              flow.Prompt{Name: "login"},
	})

	out, err := h.orch.Register(ctx, uid, flow.RegisterInput{
		Email:     "late@example.com",
		Password:  "S3cure-pass",
		EnableMFA: true,
	})
	require.NoError(t, err)
	require.Equal(t, flow.StatusMFASetup, out.Status)

	// La interaction vence mientras el usuario enrola el device.
	h.engine.Expire(uid)

	out, err = h.orch.CompleteMFASetup(ctx, uid)
	require.NoError(t, err)
	require.Equal(t, flow.StatusFinished, out.Status)

	// El redirect reconstruye el authorization request original completo.
	require.Contains(t, out.RedirectTo, "https://idp.acme.test/auth?")
	require.Contains(t, out.RedirectTo, "client_id=app_acme")
	require.Contains(t, out.RedirectTo, "response_type=code")
	require.Contains(t, out.RedirectTo, "scope=openid+email")
	require.Contains(t, out.RedirectTo, "state=st")
	require.Contains(t, out.RedirectTo, "code_challenge=chal")
	require.Contains(t, out.RedirectTo, "code_challenge_method=S256")
	require.Contains(t, out.RedirectTo, "login_hint=late%40example.com")
}
