// Package storetest provee una Connection redis real contra miniredis para
// tests de services. Los tests del adapter relacional requieren un postgres
// vivo y corren aparte; todo lo que se prueba acá vale para ambos backends
// porque los services solo ven el contrato.
package storetest

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/idmx-dev/poolhouse/internal/store"

	_ "github.com/idmx-dev/poolhouse/internal/store/adapters/redis"
)

// NewConn levanta un miniredis propio del test y conecta el adapter redis.
// El server y la conexión se limpian solos al terminar el test.
func NewConn(t *testing.T) store.Connection {
	t.Helper()

	mr := miniredis.RunT(t)
	a, ok := store.Lookup("redis")
	if !ok {
		t.Fatal("redis adapter not registered")
	}
	conn, err := a.Connect(context.Background(), store.AdapterConfig{
		Name:      "redis",
		RedisAddr: mr.Addr(),
	})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}
