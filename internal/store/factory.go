package store

import (
	"context"
	"fmt"
	"sync"
)

// La factory es el único estado mutable global del core: exactamente un
// backend activo por proceso, construido lazy y memoizado. Reset existe
// para que los tests puedan reconstruirlo.

var (
	factoryMu  sync.Mutex
	activeConn Connection
	activeCfg  *AdapterConfig
)

// Configure fija la configuración del backend sin conectar todavía.
// Debe llamarse una vez en el bootstrap, antes del primer Active.
func Configure(cfg AdapterConfig) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	if activeConn != nil {
		panic("store: Configure called with an active connection; call Reset first")
	}
	activeCfg = &cfg
}

// Active retorna la conexión memoizada, conectando en el primer uso.
// La inicialización es exactly-once aun bajo llamadas concurrentes.
func Active(ctx context.Context) (Connection, error) {
	factoryMu.Lock()
	defer factoryMu.Unlock()

	if activeConn != nil {
		return activeConn, nil
	}
	if activeCfg == nil {
		return nil, fmt.Errorf("store: not configured")
	}

	a, ok := Lookup(activeCfg.Name)
	if !ok {
		return nil, fmt.Errorf("store: adapter %q not registered (have %v)", activeCfg.Name, Adapters())
	}
	conn, err := a.Connect(ctx, *activeCfg)
	if err != nil {
		return nil, fmt.Errorf("store: connect %s: %w", activeCfg.Name, err)
	}
	activeConn = Instrument(conn)
	return activeConn, nil
}

// Reset cierra y descarta el singleton. Pensado para tests y shutdown.
func Reset() error {
	factoryMu.Lock()
	defer factoryMu.Unlock()

	var err error
	if activeConn != nil {
		err = activeConn.Close()
	}
	activeConn = nil
	activeCfg = nil
	return err
}
