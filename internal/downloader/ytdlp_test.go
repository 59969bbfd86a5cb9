package downloader

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFormatSelector(t *testing.T) {
	tests := []struct {
		quality  string
		expected string
	}{
		{"1080p", "bestvideo[height<=1080]+bestaudio/best[height<=1080]/best"},
		{"720p", "bestvideo[height<=720]+bestaudio/best[height<=720]/best"},
		{"480p", "bestvideo[height<=480]+bestaudio/best[height<=480]/best"},
		{"360p", "bestvideo[height<=360]+bestaudio/best[height<=360]/best"},
		{"240p", "bestvideo[height<=240]+bestaudio/best[height<=240]/best"},
		{"best", "best"},
		{"audio", "bestaudio/best"},
		{"", "best"},
		{"4k", "best"},
		{"720P", "best"},
	}

	for _, test := range tests {
		if got := FormatSelector(test.quality); got != test.expected {
			t.Errorf("FormatSelector(%q) = %q, expected %q", test.quality, got, test.expected)
		}
	}
}

func TestQualitiesAreAllMapped(t *testing.T) {
	for _, q := range Qualities() {
		if _, ok := formatSelectors[q]; !ok {
			t.Errorf("quality %q has no selector", q)
		}
	}
}

func TestArgs(t *testing.T) {
	c := NewClient(Options{
		UserAgent:     "test-agent",
		SocketTimeout: 30 * time.Second,
		Retries:       10,
	}, discardLogger())

	args := c.Args(Request{URL: "https://example.com/v", Quality: "720p", OutputDir: "/tmp/out"})

	wantPairs := map[string]string{
		"-f":                    FormatSelector("720p"),
		"--merge-output-format": "mp4",
		"--socket-timeout":      "30",
		"--retries":             "10",
		"--user-agent":          "test-agent",
		"-o":                    filepath.Join("/tmp/out", "%(title)s.%(ext)s"),
	}
	for flag, value := range wantPairs {
		i := slices.Index(args, flag)
		if i < 0 || i+1 >= len(args) {
			t.Fatalf("flag %s missing from %v", flag, args)
		}
		if args[i+1] != value {
			t.Errorf("flag %s = %q, want %q", flag, args[i+1], value)
		}
	}
	for _, flag := range []string{"--no-check-certificate", "--geo-bypass", "--restrict-filenames", "--newline"} {
		if !slices.Contains(args, flag) {
			t.Errorf("flag %s missing", flag)
		}
	}
	if slices.Contains(args, "--cookies-from-browser") || slices.Contains(args, "--verbose") {
		t.Errorf("optional flags should be absent: %v", args)
	}
	if args[len(args)-1] != "https://example.com/v" {
		t.Errorf("URL must be last, got %q", args[len(args)-1])
	}
}

func TestArgsEndOptionsBeforeURL(t *testing.T) {
	c := NewClient(Options{}, discardLogger())
	for _, u := range []string{
		"https://example.com/v",
		"--update-to=someone/yt-dlp@latest",
		"--batch-file=/etc/passwd",
		"-x",
	} {
		args := c.Args(Request{URL: u, Quality: "best", OutputDir: "/tmp/out"})
		if args[len(args)-2] != "--" || args[len(args)-1] != u {
			t.Errorf("Args(%q) tail = %q, want [-- %s]", u, args[len(args)-2:], u)
		}
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		url   string
		valid bool
	}{
		{"https://www.youtube.com/watch?v=abc", true},
		{"http://example.com/v", true},
		{"-x", false},
		{"--update-to=someone/yt-dlp@latest", false},
		{"ftp://example.com/v", false},
		{"example.com/v", false},
		{"https://", false},
		{"file:///etc/passwd", false},
	}
	for _, test := range tests {
		err := ValidateURL(test.url)
		if test.valid && err != nil {
			t.Errorf("ValidateURL(%q) = %v, want nil", test.url, err)
		}
		if !test.valid && !errors.Is(err, ErrInvalidURL) {
			t.Errorf("ValidateURL(%q) = %v, want ErrInvalidURL", test.url, err)
		}
	}
}

func TestArgsAudio(t *testing.T) {
	c := NewClient(Options{CookiesFromBrowser: "chrome", Verbose: true}, discardLogger())
	args := c.Args(Request{URL: "u", Quality: QualityAudio, OutputDir: "d"})

	if slices.Contains(args, "--merge-output-format") {
		t.Errorf("audio download should not merge: %v", args)
	}
	i := slices.Index(args, "--audio-format")
	if i < 0 || args[i+1] != "mp3" || !slices.Contains(args, "-x") {
		t.Errorf("audio extraction flags missing: %v", args)
	}
	if !slices.Contains(args, "--verbose") {
		t.Errorf("--verbose missing")
	}
	if j := slices.Index(args, "--cookies-from-browser"); j < 0 || args[j+1] != "chrome" {
		t.Errorf("cookies flag missing: %v", args)
	}
}

func TestArtifactExt(t *testing.T) {
	c := NewClient(Options{}, discardLogger())
	if got := c.ArtifactExt("720p"); got != "mp4" {
		t.Errorf("ArtifactExt(720p) = %q", got)
	}
	if got := c.ArtifactExt(QualityAudio); got != "mp3" {
		t.Errorf("ArtifactExt(audio) = %q", got)
	}

	mkv := NewClient(Options{MergeFormat: "mkv"}, discardLogger())
	if got := mkv.ArtifactExt(""); got != "mkv" {
		t.Errorf("ArtifactExt with mkv merge = %q", got)
	}
}

func TestAvailableMissingBinary(t *testing.T) {
	c := NewClient(Options{Binary: "definitely-not-a-real-binary-ytdl"}, discardLogger())

	err := c.Available(context.Background())
	if !errors.Is(err, ErrToolUnavailable) {
		t.Fatalf("expected ErrToolUnavailable, got %v", err)
	}

	_, err = c.DumpJSON(context.Background(), "https://example.com")
	if !errors.Is(err, ErrToolUnavailable) {
		t.Fatalf("DumpJSON: expected ErrToolUnavailable, got %v", err)
	}
}

func TestCommandUsesBinary(t *testing.T) {
	c := NewClient(Options{Binary: "/opt/bin/yt-dlp"}, discardLogger())
	cmd := c.Command(context.Background(), Request{URL: "u", OutputDir: "d"})
	if cmd.Path != "/opt/bin/yt-dlp" {
		t.Errorf("cmd.Path = %q", cmd.Path)
	}
	if cmd.Args[len(cmd.Args)-1] != "u" {
		t.Errorf("last arg = %q", cmd.Args[len(cmd.Args)-1])
	}
}
