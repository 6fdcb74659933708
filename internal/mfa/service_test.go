package mfa

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/idmx-dev/poolhouse/internal/domain/repository"
	"github.com/idmx-dev/poolhouse/internal/store"
	"github.com/idmx-dev/poolhouse/internal/store/storetest"
)

func testSetup(t *testing.T) (*Service, store.Connection, *repository.User) {
	t.Helper()
	conn := storetest.NewConn(t)
	ctx := context.Background()

	_, err := conn.Pools().Create(ctx, repository.CreatePoolInput{ID: "p", Name: "P"})
	require.NoError(t, err)
	user, err := conn.Users().Create(ctx, repository.CreateUserInput{
		PoolID: "p", Email: "mfa@example.com", PasswordHash: "h",
	})
	require.NoError(t, err)

	return NewService(conn, "poolhouse-test", 4), conn, user
}

func code(t *testing.T, secret string) string {
	t.Helper()
	c, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	return c
}

func TestGenerateSetup(t *testing.T) {
	svc, conn, user := testSetup(t)
	ctx := context.Background()

	setup, err := svc.GenerateSetup(ctx, "p", user.ID, "")
	require.NoError(t, err)
	require.NotEmpty(t, setup.Secret)
	require.Contains(t, setup.ProvisioningURI, "otpauth://totp/")
	require.Contains(t, setup.ProvisioningURI, "poolhouse-test")
	require.Contains(t, setup.ProvisioningURI, "mfa@example.com")
	require.Len(t, setup.BackupCodes, 4)
	for _, c := range setup.BackupCodes {
		require.Len(t, c, 8)
	}

	// El device nace sin verificar y el user sigue sin MFA.
	device, err := conn.MFADevices().Get(ctx, "p", user.ID, setup.DeviceID)
	require.NoError(t, err)
	require.False(t, device.Verified)
	u, err := conn.Users().Get(ctx, "p", user.ID)
	require.NoError(t, err)
	require.False(t, u.MFAEnabled)
}

func TestVerifyRegistration(t *testing.T) {
	svc, conn, user := testSetup(t)
	ctx := context.Background()
	setup, err := svc.GenerateSetup(ctx, "p", user.ID, "")
	require.NoError(t, err)

	// Código inválido: (false, nil), el device sigue pendiente.
	ok, err := svc.VerifyRegistration(ctx, "p", user.ID, setup.DeviceID, "000000")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = svc.VerifyRegistration(ctx, "p", user.ID, setup.DeviceID, code(t, setup.Secret))
	require.NoError(t, err)
	require.True(t, ok)

	u, err := conn.Users().Get(ctx, "p", user.ID)
	require.NoError(t, err)
	require.True(t, u.MFAEnabled)

	// Re-verificar un device ya confirmado es idempotente, aun con código
	// basura.
	ok, err = svc.VerifyRegistration(ctx, "p", user.ID, setup.DeviceID, "garbage")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerifyAuthentication(t *testing.T) {
	svc, _, user := testSetup(t)
	ctx := context.Background()
	setup, err := svc.GenerateSetup(ctx, "p", user.ID, "")
	require.NoError(t, err)

	// Device sin verificar no cuenta para el login.
	_, ok, err := svc.VerifyAuthentication(ctx, "p", user.ID, code(t, setup.Secret))
	require.NoError(t, err)
	require.False(t, ok)

	_, err2 := svc.VerifyRegistration(ctx, "p", user.ID, setup.DeviceID, code(t, setup.Secret))
	require.NoError(t, err2)

	deviceID, ok, err := svc.VerifyAuthentication(ctx, "p", user.ID, code(t, setup.Secret))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, setup.DeviceID, deviceID)

	_, ok, err = svc.VerifyAuthentication(ctx, "p", user.ID, "999999")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBackupCodeSingleUse(t *testing.T) {
	svc, _, user := testSetup(t)
	ctx := context.Background()
	setup, err := svc.GenerateSetup(ctx, "p", user.ID, "")
	require.NoError(t, err)
	_, err = svc.VerifyRegistration(ctx, "p", user.ID, setup.DeviceID, code(t, setup.Secret))
	require.NoError(t, err)

	backup := setup.BackupCodes[0]
	ok, err := svc.VerifyBackupCode(ctx, "p", user.ID, backup)
	require.NoError(t, err)
	require.True(t, ok)

	// El mismo código no entra dos veces.
	ok, err = svc.VerifyBackupCode(ctx, "p", user.ID, backup)
	require.NoError(t, err)
	require.False(t, ok)

	devices, err := svc.ListDevices(ctx, "p", user.ID)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	require.Len(t, devices[0].BackupCodes, 3)
}

func TestRemoveDeviceLowersFlag(t *testing.T) {
	svc, conn, user := testSetup(t)
	ctx := context.Background()

	first, err := svc.GenerateSetup(ctx, "p", user.ID, "phone")
	require.NoError(t, err)
	_, err = svc.VerifyRegistration(ctx, "p", user.ID, first.DeviceID, code(t, first.Secret))
	require.NoError(t, err)

	second, err := svc.GenerateSetup(ctx, "p", user.ID, "tablet")
	require.NoError(t, err)
	_, err = svc.VerifyRegistration(ctx, "p", user.ID, second.DeviceID, code(t, second.Secret))
	require.NoError(t, err)

	// Con otro device verificado vivo, el flag queda arriba.
	require.NoError(t, svc.RemoveDevice(ctx, "p", user.ID, first.DeviceID))
	u, err := conn.Users().Get(ctx, "p", user.ID)
	require.NoError(t, err)
	require.True(t, u.MFAEnabled)

	require.NoError(t, svc.RemoveDevice(ctx, "p", user.ID, second.DeviceID))
	u, err = conn.Users().Get(ctx, "p", user.ID)
	require.NoError(t, err)
	require.False(t, u.MFAEnabled)
}

func TestSetupForUnknownUser(t *testing.T) {
	svc, _, _ := testSetup(t)
	_, err := svc.GenerateSetup(context.Background(), "p", "usr_"+strings.Repeat("0", 8), "")
	require.ErrorIs(t, err, repository.ErrNotFound)
}
