package task

import (
	"bufio"
	"bytes"
	"io"
	"log/slog"
	"strings"

	"ytdl-gateway/internal/progress"
)

type stream int

const (
	streamStdout stream = iota
	streamStderr
)

func (s stream) String() string {
	if s == streamStderr {
		return "stderr"
	}
	return "stdout"
}

const maxLineBytes = 1024 * 1024

// scanLines splits on either \r or \n, so carriage-return progress redraws
// arrive as separate lines.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// drain reads r until EOF and feeds each line into t. It never changes the
// task state. A read failure is recorded in the error log and the rest of
// the stream is discarded so the writer is never blocked.
func drain(r io.Reader, t *Task, s stream, logger *slog.Logger) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	sc.Split(scanLines)

	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), " \t")
		if strings.TrimSpace(line) == "" {
			continue
		}
		handleLine(line, t, s, logger)
	}

	if err := sc.Err(); err != nil {
		t.appendError("failed to read " + s.String() + ": " + err.Error())
		logger.Warn("stream read failed", "task_id", t.ID, "stream", s.String(), "error", err)
		io.Copy(io.Discard, r)
	}
}

func handleLine(line string, t *Task, s stream, logger *slog.Logger) {
	if s == streamStdout {
		t.appendOutput(line)
		logger.Debug("yt-dlp output", "task_id", t.ID, "line", line)

		pct, ok, err := progress.ParseProgressLine(line)
		switch {
		case err != nil:
			logger.Warn("unparsable progress line", "task_id", t.ID, "line", line, "error", err)
		case ok:
			t.updateProgress(pct)
		}

		if progress.IsCompletionSignal(line) {
			t.nearCompletion()
		}
		if progress.IsErrorLine(line) {
			t.appendError("detected error: " + line)
			logger.Error("error reported on stdout", "task_id", t.ID, "line", line)
		}
	} else {
		t.appendError(line)
		logger.Warn("yt-dlp stderr", "task_id", t.ID, "line", line)
	}

	if cat, ok := progress.ClassifyErrorSignal(line); ok {
		t.appendError(cat.Message())
		logger.Error("classified error", "task_id", t.ID, "stream", s.String(), "category", string(cat))
	}
}
