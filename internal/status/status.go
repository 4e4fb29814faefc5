// Package status exposes a small local HTTP surface for observing a
// running session: a JSON snapshot and Prometheus metrics.
package status

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gridline/gridline/core/logx"
	"github.com/gridline/gridline/internal/engine"
)

// Snapshot is the /status payload.
type Snapshot struct {
	Mode    string       `json:"mode"`
	Session string       `json:"session,omitempty"`
	State   engine.State `json:"state"`
}

// Start serves /status and /metrics on addr until ctx ends. The state
// function is called per request. It returns the resolved listen address.
func Start(ctx context.Context, addr string, reg prometheus.Gatherer, state func() Snapshot) (string, error) {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedMethods: []string{http.MethodGet},
		AllowedOrigins: []string{"*"},
	}))
	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(state())
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	srv := &http.Server{Handler: r}
	go func() {
		<-ctx.Done()
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(c)
	}()
	go func() { _ = srv.Serve(ln) }()
	logx.Log.Info().Str("addr", ln.Addr().String()).Msg("status server listening")
	return ln.Addr().String(), nil
}
