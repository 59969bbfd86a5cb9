package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ytdl-gateway/internal/downloader"
	"ytdl-gateway/internal/progress"
	"ytdl-gateway/internal/storage"
)

// result is what one download attempt produced. kind is empty on success.
type result struct {
	artifact storage.Artifact
	kind     FailureKind
	message  string
	exitCode int
}

func failed(kind FailureKind, format string, args ...any) result {
	return result{kind: kind, message: fmt.Sprintf(format, args...), exitCode: -1}
}

func (m *Manager) run(t *Task) {
	defer m.wg.Done()

	ctx, span := m.tracer.Start(m.ctx, "download", trace.WithAttributes(
		attribute.String("task.id", t.ID),
		attribute.String("task.quality", t.Quality),
	))
	defer span.End()

	started := m.now()
	res := m.protect(ctx, t)
	elapsed := m.now().Sub(started)
	span.SetAttributes(attribute.Int("process.exit_code", res.exitCode))

	if res.kind != "" {
		span.SetAttributes(attribute.String("task.failure", string(res.kind)))
		span.SetStatus(codes.Error, res.message)
		if t.fail(res.kind, res.message, m.now()) {
			m.metrics.TaskFailed(ctx, string(res.kind), elapsed)
		}
		m.logger.Error("download failed", "task_id", t.ID, "failure", string(res.kind),
			"message", res.message, "elapsed", elapsed.Round(time.Millisecond))
		return
	}

	var duration time.Duration
	path := m.store.LocalPath(res.artifact.Key)
	if res.artifact.Ext() == "mp3" {
		d, err := storage.Mp3DurationByFrames(path)
		if err != nil {
			m.logger.Warn("could not read mp3 duration", "task_id", t.ID, "error", err)
		}
		duration = d
	}

	if t.complete(res.artifact, path, duration, m.now()) {
		m.metrics.TaskCompleted(ctx, elapsed)
	}
	span.SetStatus(codes.Ok, "")
	m.logger.Info("download completed", "task_id", t.ID, "file", res.artifact.Name(),
		"size", humanizeSize(res.artifact.Size), "path", path, "elapsed", elapsed.Round(time.Millisecond))
}

// protect turns a panic anywhere in the attempt into an unexpected failure.
func (m *Manager) protect(ctx context.Context, t *Task) (res result) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("download panicked", "task_id", t.ID, "panic", r, "stack", string(debug.Stack()))
			res = failed(FailureUnexpected, "unexpected error: %v", r)
		}
	}()
	return m.download(ctx, t)
}

// download runs yt-dlp once for t and classifies the outcome. Both output
// streams are fully drained before classification starts.
func (m *Manager) download(ctx context.Context, t *Task) result {
	dir, err := m.store.Layout().EnsureTaskDir(t.ID)
	if err != nil {
		return failed(FailureLaunch, "failed to prepare output directory: %v", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, m.opts.Timeout)
	defer cancel()

	cmd := m.launcher.Command(runCtx, downloader.Request{URL: t.URL, Quality: t.Quality, OutputDir: dir})
	cmd.WaitDelay = m.opts.WaitDelay

	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		stdoutW.Close()
		stderrW.Close()
		return failed(FailureLaunch, "failed to start yt-dlp: %v", err)
	}
	t.markDownloading()
	m.logger.Info("download process started", "task_id", t.ID, "pid", cmd.Process.Pid, "dir", dir)

	var drainers sync.WaitGroup
	drainers.Add(2)
	go func() {
		defer drainers.Done()
		drain(stdoutR, t, streamStdout, m.logger)
	}()
	go func() {
		defer drainers.Done()
		drain(stderrR, t, streamStderr, m.logger)
	}()

	waitErr := cmd.Wait()
	stdoutW.Close()
	stderrW.Close()
	drainers.Wait()

	// A clean exit whose pipes outlived WaitDelay is still a clean exit; some
	// leftover child (ffmpeg, usually) held stdout or stderr open.
	if errors.Is(waitErr, exec.ErrWaitDelay) && cmd.ProcessState != nil && cmd.ProcessState.Success() {
		m.logger.Warn("yt-dlp exited but its output stayed open", "task_id", t.ID, "wait_delay", m.opts.WaitDelay)
		waitErr = nil
	}

	if waitErr != nil {
		return m.classifyWaitError(ctx, runCtx, t, waitErr)
	}

	artifact, err := m.store.FindArtifact(ctx, t.ID, m.launcher.ArtifactExt(t.Quality))
	if errors.Is(err, storage.ErrArtifactMissing) {
		return result{kind: FailureArtifactMissing, message: "download finished but no output file was found"}
	}
	if err != nil {
		return result{kind: FailureUnexpected, message: fmt.Sprintf("failed to look up output file: %v", err)}
	}
	if artifact.Size < m.opts.MinArtifactBytes {
		return result{
			kind:    FailureArtifactTooSmall,
			message: fmt.Sprintf("downloaded file is too small to be valid: %d bytes", artifact.Size),
		}
	}
	return result{artifact: artifact}
}

func (m *Manager) classifyWaitError(ctx, runCtx context.Context, t *Task, waitErr error) result {
	code := -1
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		code = exitErr.ExitCode()
	}

	switch {
	case ctx.Err() != nil:
		res := failed(FailureInterrupted, "download interrupted by service shutdown")
		res.exitCode = code
		return res
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res := failed(FailureTimeout, "download timed out after %s", m.opts.Timeout)
		res.exitCode = code
		return res
	case exitErr != nil:
		cause := progress.ClassifyExit(strings.Join(t.ErrorLines(), "\n"))
		m.logger.Warn("yt-dlp exited with error", "task_id", t.ID, "exit_code", code, "cause", string(cause))
		return result{kind: FailureNonZeroExit, message: cause.Message(code), exitCode: code}
	}
	return failed(FailureUnexpected, "waiting for yt-dlp failed: %v", waitErr)
}

func humanizeSize(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}
