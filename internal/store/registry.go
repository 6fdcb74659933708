// Package store provee el registry de adaptadores de storage y la factory
// que selecciona y memoiza el backend activo del proceso.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/idmx-dev/poolhouse/internal/domain/repository"
)

// Adapter representa un backend de storage capaz de abrir conexiones.
type Adapter interface {
	// Name retorna el nombre del adapter (ej: "postgres", "redis").
	Name() string

	// Connect establece conexión con el almacenamiento.
	Connect(ctx context.Context, cfg AdapterConfig) (Connection, error)
}

// Connection representa una conexión activa a un backend. Provee acceso a
// los repositorios del contrato; un caller no puede observar qué backend
// hay detrás salvo por el texto de los mensajes de error.
type Connection interface {
	// Name retorna el nombre del adapter.
	Name() string

	// Ping verifica la conexión.
	Ping(ctx context.Context) error

	// Close cierra la conexión.
	Close() error

	Pools() repository.PoolRepository
	Users() repository.UserRepository
	Clients() repository.ClientRepository
	Groups() repository.GroupRepository
	MFADevices() repository.MFADeviceRepository
}

// AdapterConfig configuración para conectar a un backend.
type AdapterConfig struct {
	// Name del adapter: "postgres" o "redis".
	Name string

	// DSN connection string (postgres).
	DSN string

	// Pool settings (postgres).
	MaxOpenConns int
	MaxIdleConns int

	// Redis settings.
	RedisAddr   string
	RedisDB     int
	RedisPrefix string
}

// ─── Registry Global ───

var (
	registryMu sync.RWMutex
	adapters   = make(map[string]Adapter)
)

// Register registra un adapter en el registry global.
// Llamar en init() de cada adapter.
func Register(a Adapter) {
	registryMu.Lock()
	defer registryMu.Unlock()

	name := a.Name()
	if _, exists := adapters[name]; exists {
		panic(fmt.Sprintf("store: adapter %q already registered", name))
	}
	adapters[name] = a
}

// Lookup obtiene un adapter por nombre.
func Lookup(name string) (Adapter, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	a, ok := adapters[name]
	return a, ok
}

// Adapters retorna los nombres de todos los adapters registrados.
func Adapters() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(adapters))
	for name := range adapters {
		names = append(names, name)
	}
	return names
}
