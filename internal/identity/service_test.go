package identity

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/idmx-dev/poolhouse/internal/domain/repository"
	"github.com/idmx-dev/poolhouse/internal/security/password"
	"github.com/idmx-dev/poolhouse/internal/store"
	"github.com/idmx-dev/poolhouse/internal/store/storetest"
)

// Parámetros argon2id bajos para que la suite no queme CPU.
var testHash = password.Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, KeyLen: 32}

func testService(t *testing.T, opts ...Option) (*Service, store.Connection) {
	t.Helper()
	conn := storetest.NewConn(t)
	opts = append([]Option{WithHashParams(testHash)}, opts...)
	return NewService(conn, opts...), conn
}

func seedPoolAndClient(t *testing.T, conn store.Connection) {
	t.Helper()
	ctx := context.Background()
	_, err := conn.Pools().Create(ctx, repository.CreatePoolInput{ID: "acme", Name: "Acme"})
	require.NoError(t, err)
	_, err = conn.Clients().Create(ctx, repository.CreateClientInput{
		ClientID: "app_acme", ClientSecret: "s", PoolID: "acme",
		RedirectURIs: []string{"https://acme/cb"},
	})
	require.NoError(t, err)
}

func TestCreateAndAuthenticate(t *testing.T) {
	svc, conn := testService(t)
	seedPoolAndClient(t, conn)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateAccountInput{
		PoolID:    "acme",
		Email:     "ana@example.com",
		Password:  "S3cure-pass",
		GivenName: "Ana",
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(created.ID, "usr_"))
	require.NotEmpty(t, created.PasswordHash)
	require.NotEqual(t, "S3cure-pass", created.PasswordHash)

	user, err := svc.Authenticate(ctx, "ana@example.com", "S3cure-pass", "app_acme")
	require.NoError(t, err)
	require.Equal(t, created.ID, user.ID)
	require.NotNil(t, user.LastLogin, "successful login must stamp last_login")
}

func TestAuthenticateIndistinguishable(t *testing.T) {
	svc, conn := testService(t)
	seedPoolAndClient(t, conn)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateAccountInput{
		PoolID: "acme", Email: "real@example.com", Password: "S3cure-pass",
	})
	require.NoError(t, err)

	// Password incorrecto, usuario inexistente y client desconocido devuelven
	// exactamente el mismo error.
	for _, tc := range []struct{ email, pass, client string }{
		{"real@example.com", "wrong-pass", "app_acme"},
		{"ghost@example.com", "S3cure-pass", "app_acme"},
		{"real@example.com", "S3cure-pass", "app_unknown"},
	} {
		_, err := svc.Authenticate(ctx, tc.email, tc.pass, tc.client)
		require.ErrorIs(t, err, repository.ErrInvalidCredentials)
	}
}

func TestFindRejectsLegacyIDs(t *testing.T) {
	svc, conn := testService(t)
	seedPoolAndClient(t, conn)
	ctx := context.Background()

	// Un UUID plano es el esquema de ids anterior: se rechaza sin mirar el
	// storage, aunque el pool exista.
	_, err := svc.FindByPoolAndID(ctx, "acme", "3f2b8c9e-1d4a-4b6f-9e2c-7a8d5f0b1c2d")
	require.ErrorIs(t, err, ErrLegacyID)
	require.ErrorIs(t, err, repository.ErrNotFound)

	created, err := svc.Create(ctx, CreateAccountInput{
		PoolID: "acme", Email: "ok@example.com", Password: "S3cure-pass",
	})
	require.NoError(t, err)

	got, err := svc.FindByPoolAndID(ctx, "acme", created.ID)
	require.NoError(t, err)
	require.Equal(t, created.ID, got.ID)
}

func TestCreateEnforcesPoolPolicy(t *testing.T) {
	svc, conn := testService(t)
	ctx := context.Background()

	_, err := conn.Pools().Create(ctx, repository.CreatePoolInput{
		ID: "strict", Name: "Strict",
		PasswordPolicy: repository.PasswordPolicy{
			MinLength: 12, RequireUppercase: true, RequireNumbers: true,
		},
	})
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreateAccountInput{
		PoolID: "strict", Email: "a@example.com", Password: "short",
	})
	require.ErrorIs(t, err, repository.ErrInvalidInput)

	_, err = svc.Create(ctx, CreateAccountInput{
		PoolID: "strict", Email: "a@example.com", Password: "LongEnough123!",
	})
	require.NoError(t, err)
}

func TestCreateBlacklistedPassword(t *testing.T) {
	bl := blacklistWith(t, "password123")
	svc, conn := testService(t, WithBlacklist(bl))
	seedPoolAndClient(t, conn)

	_, err := svc.Create(context.Background(), CreateAccountInput{
		PoolID: "acme", Email: "a@example.com", Password: "PASSWORD123",
	})
	require.ErrorIs(t, err, repository.ErrInvalidInput)
}

func TestUpdateMergesCustomAttributes(t *testing.T) {
	svc, conn := testService(t)
	ctx := context.Background()

	_, err := conn.Pools().Create(ctx, repository.CreatePoolInput{
		ID: "acme", Name: "Acme",
		CustomAttributes: map[string]string{"plan": "string", "seats": "number"},
	})
	require.NoError(t, err)

	created, err := svc.Create(ctx, CreateAccountInput{
		PoolID: "acme", Email: "m@example.com", Password: "S3cure-pass",
		CustomAttributes: map[string]any{"plan": "free", "seats": float64(1)},
	})
	require.NoError(t, err)

	// Merge parcial: cambia plan, borra seats, agrega region.
	got, err := svc.Update(ctx, "acme", created.ID, UpdateAccountInput{
		CustomAttributes: map[string]any{
			"plan":   "pro",
			"seats":  nil,
			"region": "sa-east-1",
		},
	})
	require.NoError(t, err)
	require.Equal(t, "pro", got.CustomAttributes["plan"])
	require.NotContains(t, got.CustomAttributes, "seats")
	require.Equal(t, "sa-east-1", got.CustomAttributes["region"])
}

func TestClaimsProjection(t *testing.T) {
	svc, conn := testService(t)
	ctx := context.Background()

	_, err := conn.Pools().Create(ctx, repository.CreatePoolInput{
		ID: "acme", Name: "Acme",
		CustomAttributes: map[string]string{"plan": "string"},
	})
	require.NoError(t, err)

	created, err := svc.Create(ctx, CreateAccountInput{
		PoolID:        "acme",
		Email:         "c@example.com",
		EmailVerified: true,
		Password:      "S3cure-pass",
		GivenName:     "Carla",
		FamilyName:    "Gómez",
		CustomAttributes: map[string]any{
			"plan": "pro",
			// No declarado en el pool: no debe salir en los claims.
			"internal_note": "x",
		},
	})
	require.NoError(t, err)

	pool, err := conn.Pools().Get(ctx, "acme")
	require.NoError(t, err)
	user, err := conn.Users().Get(ctx, "acme", created.ID)
	require.NoError(t, err)

	claims := Claims(user, pool, []string{"openid", "email"})
	require.Equal(t, user.ID, claims["sub"])
	require.Equal(t, "c@example.com", claims["email"])
	require.Equal(t, true, claims["email_verified"])
	require.NotContains(t, claims, "given_name", "profile scope not requested")
	require.Equal(t, "pro", claims["plan"], "declared custom attrs ride along")
	require.NotContains(t, claims, "internal_note")

	full := Claims(user, pool, []string{"openid", "profile"})
	require.Equal(t, "Carla", full["given_name"])
	require.Equal(t, "Gómez", full["family_name"])
	require.NotContains(t, full, "email")
}

func TestClaimsForAccount(t *testing.T) {
	svc, conn := testService(t)
	ctx := context.Background()
	seedPoolAndClient(t, conn)

	created, err := svc.Create(ctx, CreateAccountInput{
		PoolID:        "acme",
		Email:         "f@example.com",
		EmailVerified: true,
		Password:      "S3cure-pass",
	})
	require.NoError(t, err)

	// El client resuelve el pool; el scope gatea la proyección.
	claims, err := svc.ClaimsForAccount(ctx, "app_acme", created.ID, "openid email")
	require.NoError(t, err)
	require.Equal(t, created.ID, claims["sub"])
	require.Equal(t, "f@example.com", claims["email"])

	// Client desconocido y account id legacy rebotan como not found.
	_, err = svc.ClaimsForAccount(ctx, "app_nope", created.ID, "openid")
	require.ErrorIs(t, err, repository.ErrNotFound)
	_, err = svc.ClaimsForAccount(ctx, "app_acme", "7c9e6679-7425-40de-944b-e07fc1f90ae7", "openid")
	require.ErrorIs(t, err, ErrLegacyID)
}

func TestCreateLogsMaskedEmail(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	svc, conn := testService(t, WithLogger(zap.New(core)))
	seedPoolAndClient(t, conn)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateAccountInput{
		PoolID:   "acme",
		Email:    "ana@example.com",
		Password: "S3cure-pass",
	})
	require.NoError(t, err)

	entries := logs.FilterMessage("account created").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "a…@e….com", fields["email"], "el email va enmascarado al log")
	require.Equal(t, "acme", fields["pool_id"])
}

func blacklistWith(t *testing.T, words ...string) *password.Blacklist {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bl.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(words, "\n")), 0o600))
	bl, err := password.LoadBlacklist(path)
	require.NoError(t, err)
	return bl
}
