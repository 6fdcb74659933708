// Package mfa implementa la máquina de estados MFA por usuario: alta de
// device TOTP, verificación de registro, verificación de login y backup
// codes de un solo uso. Es independiente del estado del flow: acá solo
// viven devices y el flag mfaEnabled del user.
package mfa

import (
	"context"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"

	"github.com/idmx-dev/poolhouse/internal/domain/repository"
	"github.com/idmx-dev/poolhouse/internal/metrics"
	"github.com/idmx-dev/poolhouse/internal/observability/logger"
	"github.com/idmx-dev/poolhouse/internal/security/tokens"
	"github.com/idmx-dev/poolhouse/internal/store"
)

const backupCodeLen = 8

type Service struct {
	conn            store.Connection
	issuer          string
	backupCodeCount int
	log             *zap.Logger
}

func NewService(conn store.Connection, issuer string, backupCodeCount int) *Service {
	if backupCodeCount <= 0 {
		backupCodeCount = 10
	}
	return &Service{
		conn:            conn,
		issuer:          issuer,
		backupCodeCount: backupCodeCount,
		log:             logger.Named("mfa"),
	}
}

// Setup es lo que ve el usuario una única vez al enrolar: el secret crudo
// para carga manual, la URI para el QR y los backup codes.
type Setup struct {
	DeviceID        string
	Secret          string
	ProvisioningURI string
	BackupCodes     []string
}

// GenerateSetup crea un device TOTP sin verificar (parámetros estándar:
// SHA1, 6 dígitos, período de 30s) con backup codes frescos. El device no
// habilita MFA hasta que VerifyRegistration lo confirme.
func (s *Service) GenerateSetup(ctx context.Context, poolID, userID, deviceName string) (*Setup, error) {
	user, err := s.conn.Users().Get(ctx, poolID, userID)
	if err != nil {
		return nil, err
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: user.Email,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("mfa: generate totp key: %w", err)
	}

	codes := make([]string, s.backupCodeCount)
	for i := range codes {
		c, err := tokens.GenerateNumericCode(backupCodeLen)
		if err != nil {
			return nil, fmt.Errorf("mfa: generate backup code: %w", err)
		}
		codes[i] = c
	}

	device, err := s.conn.MFADevices().Create(ctx, repository.CreateMFADeviceInput{
		PoolID:      poolID,
		UserID:      userID,
		Name:        deviceName,
		Type:        repository.DeviceTOTP,
		SecretKey:   key.Secret(),
		BackupCodes: codes,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("mfa setup generated",
		logger.PoolID(poolID), logger.UserID(userID), logger.DeviceID(device.ID))
	return &Setup{
		DeviceID:        device.ID,
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
		BackupCodes:     codes,
	}, nil
}

// VerifyRegistration valida el primer código contra el device pendiente.
// Código inválido devuelve (false, nil), nunca error: reintentos ilimitados
// son problema del rate limiting de afuera. Un device ya verificado
// devuelve true sin tocar nada (guard de idempotencia).
func (s *Service) VerifyRegistration(ctx context.Context, poolID, userID, deviceID, code string) (bool, error) {
	device, err := s.conn.MFADevices().Get(ctx, poolID, userID, deviceID)
	if err != nil {
		return false, err
	}
	if device.Verified {
		return true, nil
	}

	if !totp.Validate(code, device.SecretKey) {
		metrics.MFAVerifications.WithLabelValues("totp", "invalid").Inc()
		return false, nil
	}

	verified := true
	if _, err := s.conn.MFADevices().Update(ctx, poolID, userID, deviceID, repository.UpdateMFADeviceInput{
		Verified: &verified,
	}); err != nil {
		return false, err
	}

	enabled := true
	if _, err := s.conn.Users().Update(ctx, poolID, userID, repository.UpdateUserInput{
		MFAEnabled: &enabled,
	}); err != nil {
		return false, err
	}

	metrics.MFAVerifications.WithLabelValues("totp", "success").Inc()
	s.log.Info("mfa device verified",
		logger.PoolID(poolID), logger.UserID(userID), logger.DeviceID(deviceID))
	return true, nil
}

// VerifyAuthentication chequea el código contra TODOS los devices
// verificados del usuario, no uno puntual. Devuelve el id del device que
// matcheó y le actualiza lastUsed.
func (s *Service) VerifyAuthentication(ctx context.Context, poolID, userID, code string) (string, bool, error) {
	devices, err := s.conn.MFADevices().ListByUser(ctx, poolID, userID)
	if err != nil {
		return "", false, err
	}

	for _, d := range devices {
		if !d.Verified {
			continue
		}
		if totp.Validate(code, d.SecretKey) {
			now := time.Now().UTC()
			if _, err := s.conn.MFADevices().Update(ctx, poolID, userID, d.ID, repository.UpdateMFADeviceInput{
				LastUsed: &now,
			}); err != nil {
				s.log.Warn("last_used update failed",
					logger.DeviceID(d.ID), zap.Error(err))
			}
			metrics.MFAVerifications.WithLabelValues("totp", "success").Inc()
			return d.ID, true, nil
		}
	}
	metrics.MFAVerifications.WithLabelValues("totp", "invalid").Inc()
	return "", false, nil
}

// VerifyBackupCode consume un backup code de cualquiera de los devices
// verificados que lo tenga. El code sale del set restante: un solo uso.
func (s *Service) VerifyBackupCode(ctx context.Context, poolID, userID, code string) (bool, error) {
	devices, err := s.conn.MFADevices().ListByUser(ctx, poolID, userID)
	if err != nil {
		return false, err
	}

	for _, d := range devices {
		if !d.Verified {
			continue
		}
		idx := -1
		for i, c := range d.BackupCodes {
			if c == code {
				idx = i
				break
			}
		}
		if idx < 0 {
			continue
		}

		remaining := make([]string, 0, len(d.BackupCodes)-1)
		remaining = append(remaining, d.BackupCodes[:idx]...)
		remaining = append(remaining, d.BackupCodes[idx+1:]...)
		now := time.Now().UTC()
		if _, err := s.conn.MFADevices().Update(ctx, poolID, userID, d.ID, repository.UpdateMFADeviceInput{
			BackupCodes: &remaining,
			LastUsed:    &now,
		}); err != nil {
			return false, err
		}
		metrics.MFAVerifications.WithLabelValues("backup_code", "success").Inc()
		s.log.Info("backup code consumed",
			logger.PoolID(poolID), logger.UserID(userID), logger.DeviceID(d.ID),
			logger.Count(len(remaining)))
		return true, nil
	}
	metrics.MFAVerifications.WithLabelValues("backup_code", "invalid").Inc()
	return false, nil
}

// ListDevices expone los devices del usuario (sin secrets: los campos
// sensibles no serializan).
func (s *Service) ListDevices(ctx context.Context, poolID, userID string) ([]repository.MFADevice, error) {
	return s.conn.MFADevices().ListByUser(ctx, poolID, userID)
}

// RemoveDevice borra un device y re-deriva mfaEnabled: si no queda ningún
// device verificado, el flag baja. Este es el único lugar que lo baja.
func (s *Service) RemoveDevice(ctx context.Context, poolID, userID, deviceID string) error {
	if err := s.conn.MFADevices().Delete(ctx, poolID, userID, deviceID); err != nil {
		return err
	}

	devices, err := s.conn.MFADevices().ListByUser(ctx, poolID, userID)
	if err != nil {
		return err
	}
	anyVerified := false
	for _, d := range devices {
		if d.Verified {
			anyVerified = true
			break
		}
	}
	if !anyVerified {
		enabled := false
		if _, err := s.conn.Users().Update(ctx, poolID, userID, repository.UpdateUserInput{
			MFAEnabled: &enabled,
		}); err != nil {
			return err
		}
	}
	return nil
}
