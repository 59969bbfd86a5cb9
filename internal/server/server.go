package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"ytdl-gateway/internal/task"
	"ytdl-gateway/internal/videoinfo"
)

const (
	shutdownTimeout = 10 * time.Second
	janitorInterval = time.Hour
)

type Options struct {
	Addr              string
	WebDir            string
	CleanupAfterFetch bool
}

type Server struct {
	opts   Options
	tasks  *task.Manager
	info   *videoinfo.Service
	logger *slog.Logger
}

func New(opts Options, tasks *task.Manager, info *videoinfo.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{opts: opts, tasks: tasks, info: info, logger: logger}
}

// Handler builds the route table wrapped in the OpenTelemetry middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	if s.opts.WebDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.opts.WebDir)))
	}

	task.NewHandlers(s.tasks, task.HandlerOptions{CleanupAfterFetch: s.opts.CleanupAfterFetch}).Register(mux)
	mux.HandleFunc("GET /api/video-info", s.info.HandleLookup)
	mux.HandleFunc("GET /api/health", s.handleHealth)

	return otelhttp.NewHandler(mux, "ytdl-gateway")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","tasks":%d}`, s.tasks.Len())
}

// Run serves until ctx is cancelled, then shuts down gracefully. It also
// runs the video info cache janitor for as long as the server is up.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go s.info.RunJanitor(janitorCtx, janitorInterval)

	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", ln.Addr().String(), "web_dir", s.opts.WebDir)
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, closing server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server exited cleanly")
		return nil
	}
}
