package task

import (
	"errors"
	"io"
	"slices"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"ytdl-gateway/internal/logging"
	"ytdl-gateway/internal/progress"
)

func TestScanLinesSplitsOnCarriageReturn(t *testing.T) {
	task := newTask("d", "u", "best", time.Now())
	in := "[download]  10.0% of 5MiB\r[download]  55.5% of 5MiB\r\n\nplain line\nno newline at end"
	drain(strings.NewReader(in), task, streamStdout, logging.Discard())

	want := []string{"[download]  10.0% of 5MiB", "[download]  55.5% of 5MiB", "plain line", "no newline at end"}
	if got := task.OutputLines(); !slices.Equal(got, want) {
		t.Fatalf("lines = %q, want %q", got, want)
	}
	if task.Progress() != 55.5 {
		t.Errorf("progress = %v", task.Progress())
	}
}

func TestDrainStdoutSignals(t *testing.T) {
	task := newTask("d", "u", "best", time.Now())
	in := strings.Join([]string{
		"[youtube] abc: Downloading webpage",
		"[download]  45.2% of ~10MiB at 1MiB/s",
		"[download] Destination: foo.mp4",
		"[download] abc% of garbage",
		"ERROR: unable to download: HTTP Error 403: Forbidden",
	}, "\n")
	drain(strings.NewReader(in), task, streamStdout, logging.Discard())

	if task.Progress() != 99 {
		t.Errorf("progress = %v, want 99 after destination notice", task.Progress())
	}
	if task.State() != StatePending {
		t.Errorf("drain changed the state to %v", task.State())
	}
	if len(task.OutputLines()) != 5 {
		t.Errorf("output lines = %d", len(task.OutputLines()))
	}
	errs := task.ErrorLines()
	if !slices.Contains(errs, "detected error: ERROR: unable to download: HTTP Error 403: Forbidden") {
		t.Errorf("stdout error line not recorded: %q", errs)
	}
	if !slices.Contains(errs, progress.CategoryAccessForbidden.Message()) {
		t.Errorf("403 not classified: %q", errs)
	}
}

func TestDrainStderr(t *testing.T) {
	task := newTask("d", "u", "best", time.Now())
	in := "WARNING: falling back\n网络连接失败\n[download]  50.0% of 1MiB\n"
	drain(strings.NewReader(in), task, streamStderr, logging.Discard())

	if len(task.OutputLines()) != 0 {
		t.Errorf("stderr lines leaked into output: %q", task.OutputLines())
	}
	if task.Progress() != 0 {
		t.Errorf("stderr must not move progress, got %v", task.Progress())
	}
	errs := task.ErrorLines()
	if errs[0] != "WARNING: falling back" || errs[1] != "网络连接失败" {
		t.Errorf("raw stderr lines = %q", errs)
	}
	if !slices.Contains(errs, progress.CategoryNetwork.Message()) {
		t.Errorf("network category missing: %q", errs)
	}
}

func TestDrainReadFailure(t *testing.T) {
	task := newTask("d", "u", "best", time.Now())
	r := io.MultiReader(strings.NewReader("[download]  12.0% of 3MiB\n"), iotest.ErrReader(errors.New("pipe broke")))
	drain(r, task, streamStdout, logging.Discard())

	if task.Progress() != 12 {
		t.Errorf("progress = %v", task.Progress())
	}
	errs := task.ErrorLines()
	if len(errs) != 1 || !strings.Contains(errs[0], "pipe broke") || !strings.Contains(errs[0], "stdout") {
		t.Errorf("read failure not recorded: %q", errs)
	}
	if task.State() != StatePending {
		t.Errorf("read failure changed state to %v", task.State())
	}
}

func TestDrainOverlongLineDiscardsRest(t *testing.T) {
	task := newTask("d", "u", "best", time.Now())
	pr, pw := io.Pipe()
	done := make(chan struct{})
	go func() {
		drain(pr, task, streamStdout, logging.Discard())
		close(done)
	}()

	// the writer must never block, even after the scanner gives up
	pw.Write([]byte(strings.Repeat("x", maxLineBytes+10)))
	pw.Write([]byte("\nmore output\n"))
	pw.Close()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("drain did not return")
	}
	if errs := task.ErrorLines(); len(errs) != 1 || !strings.Contains(errs[0], "too long") {
		t.Errorf("errors = %q", errs)
	}
}
