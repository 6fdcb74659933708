package repository

import (
	"context"
	"time"
)

// MFAMode define la política de MFA de un pool.
type MFAMode string

const (
	MFAOff      MFAMode = "OFF"
	MFAOptional MFAMode = "OPTIONAL"
	MFARequired MFAMode = "REQUIRED"
)

// PasswordPolicy define los requisitos de password a nivel pool.
type PasswordPolicy struct {
	MinLength        int  `json:"min_length" yaml:"min_length"`
	RequireUppercase bool `json:"require_uppercase" yaml:"require_uppercase"`
	RequireLowercase bool `json:"require_lowercase" yaml:"require_lowercase"`
	RequireNumbers   bool `json:"require_numbers" yaml:"require_numbers"`
	RequireSymbols   bool `json:"require_symbols" yaml:"require_symbols"`
}

// Pool representa un tenant: la frontera de aislamiento de todos los datos
// de identidad. CustomAttributes declara el esquema de atributos propios
// del pool (nombre -> tipo: "string", "number", "boolean").
type Pool struct {
	ID               string            `json:"pool_id"`
	Name             string            `json:"name"`
	CustomAttributes map[string]string `json:"custom_attributes"`
	PasswordPolicy   PasswordPolicy    `json:"password_policy"`
	MFAConfiguration MFAMode           `json:"mfa_configuration"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// CreatePoolInput contiene los datos para crear un pool.
// Si ID viene vacío el backend genera uno.
type CreatePoolInput struct {
	ID               string
	Name             string
	CustomAttributes map[string]string
	PasswordPolicy   PasswordPolicy
	MFAConfiguration MFAMode
}

// UpdatePoolInput contiene los campos actualizables de un pool.
// Solo los campos no-nil se modifican.
type UpdatePoolInput struct {
	Name             *string
	CustomAttributes map[string]string // nil = sin cambios, no-nil = reemplazo completo
	PasswordPolicy   *PasswordPolicy
	MFAConfiguration *MFAMode
}

// PoolRepository define operaciones sobre pools (tenants).
type PoolRepository interface {
	// Create crea un pool. Retorna ErrAlreadyExists si el ID colisiona.
	Create(ctx context.Context, input CreatePoolInput) (*Pool, error)

	// Get busca un pool por ID. Retorna ErrNotFound si no existe.
	Get(ctx context.Context, poolID string) (*Pool, error)

	// GetByClientID resuelve el pool dueño de un client. El clientId es la
	// única clave global que el protocol engine usa para resolver un pool.
	GetByClientID(ctx context.Context, clientID string) (*Pool, error)

	// List retorna todos los pools del sistema.
	List(ctx context.Context) ([]Pool, error)

	// Update actualiza campos de un pool. Retorna ErrNotFound si no existe.
	Update(ctx context.Context, poolID string, input UpdatePoolInput) (*Pool, error)

	// Delete elimina un pool y en cascada todos sus users, clients, groups
	// y mfa devices. En backends sin transacciones cross-entidad la cascada
	// es best-effort e idempotente: se puede re-ejecutar tras fallo parcial.
	Delete(ctx context.Context, poolID string) error
}
