package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
)

var (
	once     sync.Once
	instance *zap.Logger
)

// Init construye el singleton. Idempotente: solo la primera llamada tiene
// efecto, así que main decide la config y el resto del proceso la hereda.
func Init(cfg Config) {
	once.Do(func() {
		instance = build(cfg)
	})
}

// L devuelve el singleton. Si nadie llamó Init (tests, tools sueltos) arma
// uno de dev tomando APP_ENV y LOG_LEVEL del entorno.
func L() *zap.Logger {
	if instance == nil {
		Init(Config{Env: os.Getenv("APP_ENV"), Level: os.Getenv("LOG_LEVEL")})
	}
	return instance
}

// Named devuelve el singleton con nombre de componente ("flow", "store.pg").
func Named(name string) *zap.Logger {
	return L().Named(name)
}

// With devuelve el singleton con campos fijos adicionales.
func With(fields ...zap.Field) *zap.Logger {
	return L().With(fields...)
}

// Sync flushea buffers pendientes; para el defer de main.
func Sync() error {
	if instance != nil {
		return instance.Sync()
	}
	return nil
}
