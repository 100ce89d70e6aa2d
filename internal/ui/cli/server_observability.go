package cli

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"archguard/internal/engine/report"
	"archguard/internal/shared/version"

	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type healthStatus struct {
	Status     string        `json:"status"`
	Version    string        `json:"version"`
	LastRun    string        `json:"last_run,omitempty"`
	LastStatus report.Status `json:"last_status,omitempty"`
	Passed     *bool         `json:"passed,omitempty"`
}

// ObservabilityServer serves /metrics and /health while the process runs.
type ObservabilityServer struct {
	addr    string
	lastRun func() *report.ValidationReport
	server  *http.Server
}

func NewObservabilityServer(addr string, lastRun func() *report.ValidationReport) *ObservabilityServer {
	return &ObservabilityServer{addr: addr, lastRun: lastRun}
}

func (s *ObservabilityServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status := healthStatus{Status: "up", Version: version.Version}
		if s.lastRun != nil {
			if rep := s.lastRun(); rep != nil {
				passed := rep.Passed
				status.LastRun = rep.RunID
				status.LastStatus = rep.Status
				status.Passed = &passed
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w).Encode(status)
	})
	return mux
}

// Start binds the listener synchronously so address errors surface here,
// then serves in the background.
func (s *ObservabilityServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.server = &http.Server{
		Handler:           s.handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	slog.Info("observability server starting", "addr", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("observability server failed", "error", err)
		}
	}()
	return nil
}

func (s *ObservabilityServer) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
