// Package metrics exposes the process's Prometheus registry over HTTP for
// long-running commands.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const DefaultPath = "/metrics"

type PrometheusController struct {
	path string
}

func NewPrometheusController(path string) *PrometheusController {
	if path == "" {
		path = DefaultPath
	}
	return &PrometheusController{path: path}
}

func (c *PrometheusController) Key() string {
	return c.path
}

func (c *PrometheusController) Register(r *mux.Router) {
	r.Handle(c.path, promhttp.Handler()).Methods(http.MethodGet)
}

// NewRouter returns a router serving the metrics endpoint and a liveness
// probe at /healthz.
func NewRouter(path string) *mux.Router {
	r := mux.NewRouter()
	NewPrometheusController(path).Register(r)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	return r
}

// Serve runs the metrics server on addr until ctx is done.
func Serve(ctx context.Context, addr, path string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(path),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
