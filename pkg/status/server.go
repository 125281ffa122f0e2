// Package status serves liveness, readiness, metrics and the set of traced
// processes over HTTP.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	"github.com/coretrace/coretrace/pkg/buildinfo"
	"github.com/coretrace/coretrace/pkg/telemetry"
)

// maxConns bounds concurrent status connections.
const maxConns = 16

type StatusServer interface {
	Start() error
	Stop() error
	IsReady() bool
}

// Source reports what the tracer is doing.
type Source interface {
	Pids() []int
}

type BaseStatusServer struct {
	listen         string
	logger         *zap.Logger
	metricsHandler http.Handler
	source         Source
	server         *http.Server
	addr           net.Addr
}

// NewBaseStatusServer serves on listen. The server is ready once source
// traces at least one process.
func NewBaseStatusServer(listen string, logger *zap.Logger, metricsHandler http.Handler, source Source) *BaseStatusServer {
	return &BaseStatusServer{
		listen:         listen,
		logger:         logger,
		metricsHandler: metricsHandler,
		source:         source,
	}
}

func (s *BaseStatusServer) Start() error {
	mux := http.NewServeMux()
	s.setupRoutes(mux)

	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return err
	}
	s.addr = ln.Addr()
	ln = netutil.LimitListener(ln, maxConns)
	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status server stopped", zap.Error(err))
		}
	}()

	s.logger.Info("status server listening", zap.String("url", "http://"+s.addr.String()))
	return nil
}

// Addr is the bound address; valid after Start.
func (s *BaseStatusServer) Addr() net.Addr { return s.addr }

func (s *BaseStatusServer) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *BaseStatusServer) IsReady() bool {
	return s.source != nil && len(s.source.Pids()) > 0
}

type tracesResponse struct {
	Version       string `json:"version"`
	Instance      string `json:"instance"`
	ConfigVersion string `json:"config_version,omitempty"`
	Pids          []int  `json:"pids"`
}

func (s *BaseStatusServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if s.IsReady() {
			s.write(w, http.StatusOK, "ready")
		} else {
			s.write(w, http.StatusServiceUnavailable, "not ready")
		}
	})

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		s.write(w, http.StatusOK, "healthy")
	})

	mux.HandleFunc("GET /traces", func(w http.ResponseWriter, r *http.Request) {
		resp := tracesResponse{
			Version:       buildinfo.Version(),
			Instance:      telemetry.InstanceID(),
			ConfigVersion: telemetry.ConfigVersion(),
			Pids:          []int{},
		}
		if s.source != nil {
			resp.Pids = append(resp.Pids, s.source.Pids()...)
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			s.logger.Error("failed to write response", zap.Error(err))
		}
	})

	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
}

func (s *BaseStatusServer) write(w http.ResponseWriter, code int, body string) {
	w.WriteHeader(code)
	if _, err := w.Write([]byte(body)); err != nil {
		s.logger.Error("failed to write response", zap.Error(err))
	}
}
