package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Métricas Prometheus del storage. Paquete aparte para no armar ciclos de
// import entre los adapters del store y la capa HTTP.

var (
	StoreOpLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "store_op_latency_ms",
		Help:    "Latencia de operaciones del storage en milisegundos",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"backend", "entity", "op"})

	StoreOpErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "store_op_errors_total",
		Help: "Errores de operaciones del storage",
	}, []string{"backend", "entity", "op"})
)

// RegisterStore registra las métricas del storage en el registry recibido
// (o en el default si es nil).
func RegisterStore(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if err := reg.Register(StoreOpLatency); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			return err
		}
	}
	if err := reg.Register(StoreOpErrors); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			return err
		}
	}
	return nil
}
