package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"ytdl-gateway/internal/downloader"
	"ytdl-gateway/internal/logging"
	"ytdl-gateway/internal/storage"
)

var (
	ErrEmptyURL   = errors.New("url is required")
	ErrInvalidURL = downloader.ErrInvalidURL
	// ErrToolUnavailable is the downloader sentinel, so errors.Is matches either.
	ErrToolUnavailable = downloader.ErrToolUnavailable
	ErrNotFound        = errors.New("task not found")
	ErrNotReady        = errors.New("task is not finished yet")
	ErrTaskFailed      = errors.New("task failed")
	ErrArtifactIO      = errors.New("artifact could not be read")
	ErrClosed          = errors.New("task manager is shut down")
)

// Launcher prepares yt-dlp invocations. *downloader.Client implements it.
type Launcher interface {
	Available(ctx context.Context) error
	Command(ctx context.Context, req downloader.Request) *exec.Cmd
	ArtifactExt(quality string) string
}

type Options struct {
	// Timeout bounds a single yt-dlp run; the process is killed after it.
	Timeout          time.Duration
	MinArtifactBytes int64
	// LogTail is how many output and error lines a View carries.
	LogTail int
	// WaitDelay is how long Wait keeps the output pipes open after the
	// process exits or is killed.
	WaitDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Minute
	}
	if o.MinArtifactBytes <= 0 {
		o.MinArtifactBytes = 1024
	}
	if o.LogTail == 0 {
		o.LogTail = 50
	}
	if o.WaitDelay <= 0 {
		o.WaitDelay = 5 * time.Second
	}
	return o
}

// Manager owns the task registry and runs one background download per task.
type Manager struct {
	registry *Registry
	launcher Launcher
	store    *storage.Store
	opts     Options
	logger   *slog.Logger
	metrics  *logging.Metrics
	tracer   trace.Tracer

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	now func() time.Time
}

func NewManager(launcher Launcher, store *storage.Store, opts Options, logger *slog.Logger, metrics *logging.Metrics) *Manager {
	if logger == nil {
		logger = logging.Logger("task")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		registry: NewRegistry(),
		launcher: launcher,
		store:    store,
		opts:     opts.withDefaults(),
		logger:   logger,
		metrics:  metrics,
		tracer:   logging.Tracer("task"),
		ctx:      ctx,
		cancel:   cancel,
		now:      time.Now,
	}
}

// Start validates the request, registers a task and launches the download
// in the background. It returns as soon as the task exists.
func (m *Manager) Start(ctx context.Context, url, quality string) (string, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return "", ErrEmptyURL
	}
	if err := downloader.ValidateURL(url); err != nil {
		return "", err
	}
	quality = strings.TrimSpace(quality)
	if quality == "" {
		quality = downloader.QualityBest
	}

	if err := m.launcher.Available(ctx); err != nil {
		m.logger.Error("yt-dlp unavailable, rejecting download", "url", url, "error", err)
		if errors.Is(err, ErrToolUnavailable) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrToolUnavailable, err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrClosed
	}
	t := m.registry.Create(url, quality)
	m.wg.Add(1)
	m.mu.Unlock()

	m.logger.Info("download task created", "task_id", t.ID, "url", url, "quality", quality,
		"format", downloader.FormatSelector(quality))
	m.metrics.TaskStarted(ctx)

	go m.run(t)
	return t.ID, nil
}

// Status returns a snapshot of the task.
func (m *Manager) Status(id string) (View, error) {
	t, ok := m.registry.Get(id)
	if !ok {
		return View{}, ErrNotFound
	}
	return t.View(m.opts.LogTail, m.now()), nil
}

// List returns snapshots of every registered task, newest first.
func (m *Manager) List() []View {
	tasks := m.registry.List()
	views := make([]View, 0, len(tasks))
	now := m.now()
	for _, t := range tasks {
		views = append(views, t.View(m.opts.LogTail, now))
	}
	return views
}

// Len is the number of registered tasks.
func (m *Manager) Len() int {
	return m.registry.Len()
}

// OpenArtifact streams the finished file of a completed task. The caller
// closes the reader.
func (m *Manager) OpenArtifact(ctx context.Context, id string) (io.ReadCloser, storage.Artifact, error) {
	t, err := m.readyTask(id)
	if err != nil {
		return nil, storage.Artifact{}, err
	}
	a, _ := t.Artifact()
	r, err := m.store.Open(ctx, a.Key)
	if err != nil {
		t.appendError("failed to read file: " + err.Error())
		m.logger.Error("open artifact failed", "task_id", id, "key", a.Key, "error", err)
		return nil, a, fmt.Errorf("%w: %v", ErrArtifactIO, err)
	}
	m.logger.Info("serving artifact", "task_id", id, "file", a.Name(), "size", humanizeSize(a.Size))
	return r, a, nil
}

// FetchArtifact returns the exact bytes of the finished file.
func (m *Manager) FetchArtifact(ctx context.Context, id string) ([]byte, error) {
	t, err := m.readyTask(id)
	if err != nil {
		return nil, err
	}
	a, _ := t.Artifact()
	data, err := m.store.ReadAll(ctx, a.Key)
	if err != nil {
		t.appendError("failed to read file: " + err.Error())
		m.logger.Error("read artifact failed", "task_id", id, "key", a.Key, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrArtifactIO, err)
	}
	m.logger.Info("artifact read", "task_id", id, "file", a.Name(), "size", humanizeSize(int64(len(data))))
	return data, nil
}

func (m *Manager) readyTask(id string) (*Task, error) {
	t, ok := m.registry.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	switch t.State() {
	case StateCompleted:
		return t, nil
	case StateFailed:
		return nil, fmt.Errorf("%w: %s", ErrTaskFailed, t.Failure())
	default:
		return nil, ErrNotReady
	}
}

// Cleanup forgets the task. The file on disk is kept. Calling it again, or
// for an unknown id, is a no-op.
func (m *Manager) Cleanup(id string) {
	t, ok := m.registry.Get(id)
	if !ok {
		return
	}
	m.registry.Remove(id)
	if path := t.ArtifactPath(); path != "" {
		m.logger.Info("task cleaned up, file kept", "task_id", id, "path", path)
	} else {
		m.logger.Info("task cleaned up", "task_id", id, "state", string(t.State()))
	}
}

// Close stops accepting tasks, kills running downloads and waits for them
// to finish. Interrupted tasks end failed.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
}
