package task

import (
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"ytdl-gateway/internal/storage"
)

type State string

const (
	StatePending     State = "pending"
	StateDownloading State = "downloading"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
)

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// FailureKind says why a task ended in StateFailed.
type FailureKind string

const (
	FailureToolUnavailable  FailureKind = "tool_unavailable"
	FailureLaunch           FailureKind = "launch_failure"
	FailureTimeout          FailureKind = "timeout"
	FailureNonZeroExit      FailureKind = "non_zero_exit"
	FailureArtifactMissing  FailureKind = "artifact_missing"
	FailureArtifactTooSmall FailureKind = "artifact_too_small"
	FailureUnexpected       FailureKind = "unexpected"
	FailureInterrupted      FailureKind = "interrupted"
)

const (
	// progress never reaches 100 before the task is completed
	maxRunningProgress = 99.9
	nearDoneProgress   = 99.0
	doneProgress       = 100.0
)

// Task is one download attempt. Identity fields are immutable; everything
// else is guarded by mu.
type Task struct {
	ID        string
	URL       string
	Quality   string
	CreatedAt time.Time

	mu         sync.Mutex
	state      State
	progress   float64
	output     []string
	errors     []string
	failure    FailureKind
	artifact   storage.Artifact
	path       string
	duration   time.Duration
	finishedAt time.Time
}

func newTask(id, url, quality string, now time.Time) *Task {
	return &Task{
		ID:        id,
		URL:       url,
		Quality:   quality,
		CreatedAt: now,
		state:     StatePending,
	}
}

func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Task) Progress() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}

func (t *Task) Failure() FailureKind {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failure
}

// ArtifactPath is empty unless the task is completed.
func (t *Task) ArtifactPath() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.path
}

func (t *Task) Artifact() (storage.Artifact, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.artifact, t.state == StateCompleted
}

func (t *Task) OutputLines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.output...)
}

func (t *Task) ErrorLines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.errors...)
}

func (t *Task) appendOutput(line string) {
	t.mu.Lock()
	t.output = append(t.output, line)
	t.mu.Unlock()
}

func (t *Task) appendError(line string) {
	t.mu.Lock()
	t.errors = append(t.errors, line)
	t.mu.Unlock()
}

func (t *Task) markDownloading() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StatePending {
		return false
	}
	t.state = StateDownloading
	return true
}

// updateProgress applies a parsed percentage. Lower values than the current
// one are ignored and the result is capped below 100.
func (t *Task) updateProgress(p float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Terminal() {
		return
	}
	p = min(p, maxRunningProgress)
	if p > t.progress {
		t.progress = p
	}
}

// nearCompletion raises progress to 99 on merge/destination notices.
func (t *Task) nearCompletion() {
	t.updateProgress(nearDoneProgress)
}

func (t *Task) complete(a storage.Artifact, path string, duration time.Duration, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Terminal() {
		return false
	}
	t.state = StateCompleted
	t.progress = doneProgress
	t.artifact = a
	t.path = path
	t.duration = duration
	t.finishedAt = now
	return true
}

// fail moves the task to StateFailed and records msg in the error log.
// Progress keeps its last value.
func (t *Task) fail(kind FailureKind, msg string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Terminal() {
		return false
	}
	t.state = StateFailed
	t.failure = kind
	t.errors = append(t.errors, msg)
	t.finishedAt = now
	return true
}

// View is the JSON status document for a task.
type View struct {
	TaskID            string      `json:"taskId"`
	URL               string      `json:"url"`
	Quality           string      `json:"quality"`
	Status            State       `json:"status"`
	Progress          float64     `json:"progress"`
	ElapsedTimeMs     int64       `json:"elapsedTimeMs"`
	CreatedAt         time.Time   `json:"createdAt"`
	Failure           FailureKind `json:"failure,omitempty"`
	Output            []string    `json:"output"`
	Errors            []string    `json:"errors"`
	ArtifactName      string      `json:"artifactName,omitempty"`
	ArtifactSize      int64       `json:"artifactSize,omitempty"`
	ArtifactSizeHuman string      `json:"artifactSizeHuman,omitempty"`
	DurationSeconds   float64     `json:"durationSeconds,omitempty"`
}

// View snapshots the task. Logs are cut to their last tail lines; tail <= 0
// keeps them whole. Elapsed time stops when the task reaches a final state.
func (t *Task) View(tail int, now time.Time) View {
	t.mu.Lock()
	defer t.mu.Unlock()

	end := now
	if t.state.Terminal() {
		end = t.finishedAt
	}
	v := View{
		TaskID:        t.ID,
		URL:           t.URL,
		Quality:       t.Quality,
		Status:        t.state,
		Progress:      t.progress,
		ElapsedTimeMs: end.Sub(t.CreatedAt).Milliseconds(),
		CreatedAt:     t.CreatedAt,
		Failure:       t.failure,
		Output:        lastLines(t.output, tail),
		Errors:        lastLines(t.errors, tail),
	}
	if t.state == StateCompleted {
		v.ArtifactName = t.artifact.Name()
		v.ArtifactSize = t.artifact.Size
		v.ArtifactSizeHuman = humanize.IBytes(uint64(t.artifact.Size))
		v.DurationSeconds = t.duration.Seconds()
	}
	return v
}

func lastLines(lines []string, n int) []string {
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return append([]string{}, lines...)
}
