// Package opsserver runs the daemon's ops-facing HTTP surface: health
// and metrics, entirely separate from the node-facing fetch traffic.
package opsserver

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server is the minimal ops HTTP server: /healthz and /metrics.
type Server struct {
	httpServer *http.Server
	healthy    atomic.Bool
}

// New builds a Server bound to addr, serving metrics from registry. A
// nil wsHandler omits the /ws route entirely (the cycle-complete
// notifier is optional).
func New(addr string, registry *prometheus.Registry, logger *zap.Logger, wsHandler http.HandlerFunc) *Server {
	s := &Server{}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if s.healthy.Load() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	if wsHandler != nil {
		mux.HandleFunc("/ws", wsHandler)
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: logging(logger)(mux),
	}
	return s
}

// MarkHealthy flips /healthz to 200, called after the first cycle
// completes without a startup-phase fatal.
func (s *Server) MarkHealthy() { s.healthy.Store(true) }

// Serve runs the server until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("ops server shutdown error", zap.Error(err))
		}
		return nil
	case err := <-errCh:
		return err
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	return sr.ResponseWriter.Write(b)
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, fmt.Errorf("underlying ResponseWriter does not support hijacking")
}

var reqIDCounter uint64

// logging wraps every ops-server request with a structured log line and
// panic recovery, matching the shape used elsewhere in the daemon's
// HTTP-facing code.
func logging(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rid := fmt.Sprintf("%d-%x", atomic.AddUint64(&reqIDCounter, 1), start.UnixNano())
			sr := &statusRecorder{ResponseWriter: w}
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("ops server panic",
						zap.String("request_id", rid),
						zap.String("path", r.URL.Path),
						zap.Any("error", rec),
						zap.ByteString("stack", debug.Stack()),
					)
					http.Error(sr, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
				logger.Debug("ops request",
					zap.String("request_id", rid),
					zap.String("path", r.URL.Path),
					zap.Int("status", sr.status),
					zap.Duration("duration", time.Since(start)),
				)
			}()
			next.ServeHTTP(sr, r)
		})
	}
}
