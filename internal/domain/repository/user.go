package repository

import (
	"context"
	"time"
)

// UserStatus representa el estado de cuenta de un usuario.
type UserStatus string

const (
	StatusConfirmed     UserStatus = "CONFIRMED"
	StatusUnconfirmed   UserStatus = "UNCONFIRMED"
	StatusArchived      UserStatus = "ARCHIVED"
	StatusCompromised   UserStatus = "COMPROMISED"
	StatusResetRequired UserStatus = "RESET_REQUIRED"
)

// User representa una cuenta dentro de un pool. El email es único dentro
// del pool, no globalmente: dos pools pueden contener cada uno a@b.com.
type User struct {
	ID               string         `json:"user_id"`
	PoolID           string         `json:"pool_id"`
	Email            string         `json:"email"`
	EmailVerified    bool           `json:"email_verified"`
	PasswordHash     string         `json:"-"`
	Name             string         `json:"name,omitempty"`
	GivenName        string         `json:"given_name,omitempty"`
	FamilyName       string         `json:"family_name,omitempty"`
	Nickname         string         `json:"nickname,omitempty"`
	Picture          string         `json:"picture,omitempty"`
	Website          string         `json:"website,omitempty"`
	CustomAttributes map[string]any `json:"custom_attributes,omitempty"`
	Groups           []string       `json:"groups"`
	Status           UserStatus     `json:"status"`
	MFAEnabled       bool           `json:"mfa_enabled"`
	LastLogin        *time.Time     `json:"last_login,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// CreateUserInput contiene los datos para crear un usuario.
// El backend genera el ID y los timestamps.
type CreateUserInput struct {
	PoolID           string
	Email            string
	EmailVerified    bool
	PasswordHash     string
	Name             string
	GivenName        string
	FamilyName       string
	Nickname         string
	Picture          string
	Website          string
	CustomAttributes map[string]any
	Groups           []string
	Status           UserStatus
	MFAEnabled       bool
}

// UpdateUserInput contiene los campos actualizables de un usuario.
// Solo los campos no-nil se modifican. CustomAttributes no-nil reemplaza
// el blob completo; el merge parcial de atributos anidados es
// responsabilidad del caller (Identity Model), no del backend.
type UpdateUserInput struct {
	Email            *string
	EmailVerified    *bool
	PasswordHash     *string
	Name             *string
	GivenName        *string
	FamilyName       *string
	Nickname         *string
	Picture          *string
	Website          *string
	CustomAttributes map[string]any
	Groups           *[]string
	Status           *UserStatus
	MFAEnabled       *bool
	LastLogin        *time.Time
}

// UserRepository define operaciones sobre usuarios. Todas son pool-scoped:
// la clave compuesta es siempre (poolID, userID).
type UserRepository interface {
	// Create crea un usuario. Retorna ErrAlreadyExists si el email ya
	// existe dentro del pool.
	Create(ctx context.Context, input CreateUserInput) (*User, error)

	// Get busca un usuario por (poolID, userID). Retorna ErrNotFound si la
	// clave compuesta no resuelve.
	Get(ctx context.Context, poolID, userID string) (*User, error)

	// GetByEmail busca un usuario por email dentro de un pool.
	GetByEmail(ctx context.Context, poolID, email string) (*User, error)

	// List pagina los usuarios de un pool en orden de clave primaria.
	// token vacío inicia el scan; el token retornado es no-vacío si y solo
	// si quedan más filas, y re-consultar con él no repite ni saltea filas
	// existentes bajo inserciones concurrentes.
	List(ctx context.Context, poolID string, limit int, token string) ([]User, string, error)

	// Update actualiza campos de un usuario. Retorna ErrNotFound si no existe.
	Update(ctx context.Context, poolID, userID string, input UpdateUserInput) (*User, error)

	// Delete elimina un usuario junto con sus devices MFA y membresías.
	Delete(ctx context.Context, poolID, userID string) error
}
