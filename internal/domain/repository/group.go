package repository

import (
	"context"
	"time"
)

// Group representa un bundle de permisos con nombre, único dentro del pool.
type Group struct {
	ID          string    `json:"group_id"`
	PoolID      string    `json:"pool_id"`
	Name        string    `json:"group_name"`
	Description string    `json:"description,omitempty"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateGroupInput contiene los datos para crear un group.
type CreateGroupInput struct {
	PoolID      string
	Name        string
	Description string
	Permissions []string
}

// UpdateGroupInput contiene los campos actualizables de un group.
type UpdateGroupInput struct {
	Name        *string
	Description *string
	Permissions *[]string
}

// GroupRepository define operaciones sobre groups y membresías. La
// membresía se trackea en User.Groups; al borrar un group el backend debe
// removerlo de todos los usuarios (fan-out best-effort en backends sin
// transacciones).
type GroupRepository interface {
	// Create crea un group. Retorna ErrAlreadyExists si (poolID, name) colisiona.
	Create(ctx context.Context, input CreateGroupInput) (*Group, error)

	// Get busca un group por (poolID, groupID).
	Get(ctx context.Context, poolID, groupID string) (*Group, error)

	// GetByName busca un group por nombre dentro de un pool.
	GetByName(ctx context.Context, poolID, name string) (*Group, error)

	// List pagina los groups de un pool en orden de clave primaria.
	List(ctx context.Context, poolID string, limit int, token string) ([]Group, string, error)

	// Update actualiza campos de un group.
	Update(ctx context.Context, poolID, groupID string, input UpdateGroupInput) (*Group, error)

	// Delete elimina un group, removiéndolo antes de todos los usuarios
	// que lo tengan asignado.
	Delete(ctx context.Context, poolID, groupID string) error

	// AddUser agrega un usuario al group (idempotente).
	AddUser(ctx context.Context, poolID, userID, groupID string) error

	// RemoveUser quita un usuario del group (idempotente).
	RemoveUser(ctx context.Context, poolID, userID, groupID string) error

	// UserGroups retorna los groups a los que pertenece un usuario.
	UserGroups(ctx context.Context, poolID, userID string) ([]Group, error)

	// GroupUsers retorna los usuarios que pertenecen a un group.
	GroupUsers(ctx context.Context, poolID, groupID string) ([]User, error)
}
