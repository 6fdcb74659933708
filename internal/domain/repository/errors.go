package repository

import "errors"

var (
	// ErrNotFound indica que la entidad o clave solicitada no existe.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indica una violación de clave única (primaria o declarada).
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidCredentials indica fallo de autenticación. Deliberadamente no
	// distingue entre usuario inexistente y password incorrecto.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrTenantIsolation indica que una consulta resolvió una entidad fuera
	// del pool del caller. Nunca debe ocurrir: es un defecto, no un estado.
	ErrTenantIsolation = errors.New("tenant isolation violation")

	// ErrBackendUnavailable indica fallo de conexión/transporte con el storage.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrInvalidInput indica que los datos de entrada son inválidos.
	ErrInvalidInput = errors.New("invalid input")
)

// IsNotFound verifica si el error es ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists verifica si el error es ErrAlreadyExists.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}
