package repository

import (
	"context"
	"time"
)

// DeviceType identifica el esquema del device MFA.
type DeviceType string

const (
	// DeviceTOTP es el único tipo soportado hoy. SMS queda reservado.
	DeviceTOTP DeviceType = "TOTP"
)

// MFADevice representa una credencial TOTP más backup codes de un usuario.
// Un device nace sin verificar; la primera verificación correcta lo marca
// Verified y es lo que habilita MFA en el usuario.
type MFADevice struct {
	ID          string     `json:"device_id"`
	PoolID      string     `json:"pool_id"`
	UserID      string     `json:"user_id"`
	Name        string     `json:"device_name"`
	Type        DeviceType `json:"device_type"`
	SecretKey   string     `json:"-"`
	Verified    bool       `json:"is_verified"`
	BackupCodes []string   `json:"-"`
	LastUsed    *time.Time `json:"last_used,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// CreateMFADeviceInput contiene los datos para crear un device.
type CreateMFADeviceInput struct {
	PoolID      string
	UserID      string
	Name        string
	Type        DeviceType
	SecretKey   string
	BackupCodes []string
}

// UpdateMFADeviceInput contiene los campos actualizables de un device.
// BackupCodes no-nil reemplaza el set completo (así se consume un code).
type UpdateMFADeviceInput struct {
	Name        *string
	Verified    *bool
	BackupCodes *[]string
	LastUsed    *time.Time
}

// MFADeviceRepository define operaciones sobre devices MFA. La clave
// compuesta es (poolID, userID, deviceID).
type MFADeviceRepository interface {
	// Create crea un device (sin verificar). Retorna ErrAlreadyExists si
	// el deviceID colisiona.
	Create(ctx context.Context, input CreateMFADeviceInput) (*MFADevice, error)

	// Get busca un device. Retorna ErrNotFound si la clave no resuelve.
	Get(ctx context.Context, poolID, userID, deviceID string) (*MFADevice, error)

	// ListByUser retorna todos los devices de un usuario.
	ListByUser(ctx context.Context, poolID, userID string) ([]MFADevice, error)

	// Update actualiza campos de un device.
	Update(ctx context.Context, poolID, userID, deviceID string, input UpdateMFADeviceInput) (*MFADevice, error)

	// Delete elimina un device. No toca User.MFAEnabled: re-derivar ese
	// flag es responsabilidad exclusiva del MFA subsystem.
	Delete(ctx context.Context, poolID, userID, deviceID string) error
}
