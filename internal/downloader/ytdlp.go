package downloader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrToolUnavailable is returned when the yt-dlp binary cannot be resolved or run.
var ErrToolUnavailable = errors.New("yt-dlp is not available, install it with `pip install yt-dlp` or your package manager")

// ErrInvalidURL is returned for input that is not an absolute http(s) URL.
var ErrInvalidURL = errors.New("url must be an absolute http or https URL")

// ValidateURL accepts only absolute http and https URLs with a host.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return nil
}

const (
	QualityBest  = "best"
	QualityAudio = "audio"

	audioExt = "mp3"

	versionTimeout = 10 * time.Second
)

var formatSelectors = map[string]string{
	"1080p":      "bestvideo[height<=1080]+bestaudio/best[height<=1080]/best",
	"720p":       "bestvideo[height<=720]+bestaudio/best[height<=720]/best",
	"480p":       "bestvideo[height<=480]+bestaudio/best[height<=480]/best",
	"360p":       "bestvideo[height<=360]+bestaudio/best[height<=360]/best",
	"240p":       "bestvideo[height<=240]+bestaudio/best[height<=240]/best",
	QualityBest:  "best",
	QualityAudio: "bestaudio/best",
}

// FormatSelector maps a quality token to the -f expression. Unknown and
// empty tokens fall back to "best".
func FormatSelector(quality string) string {
	if sel, ok := formatSelectors[quality]; ok {
		return sel
	}
	return formatSelectors[QualityBest]
}

// Qualities lists the recognized quality tokens.
func Qualities() []string {
	return []string{"1080p", "720p", "480p", "360p", "240p", QualityBest, QualityAudio}
}

type Options struct {
	Binary             string
	UserAgent          string
	SocketTimeout      time.Duration
	Retries            int
	MergeFormat        string
	CookiesFromBrowser string
	Verbose            bool
}

// Request describes one download invocation.
type Request struct {
	URL       string
	Quality   string
	OutputDir string
}

// Client drives the yt-dlp command line tool.
type Client struct {
	opts   Options
	logger *slog.Logger

	versionOnce sync.Once
}

func NewClient(opts Options, logger *slog.Logger) *Client {
	if opts.Binary == "" {
		opts.Binary = "yt-dlp"
	}
	if opts.MergeFormat == "" {
		opts.MergeFormat = "mp4"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{opts: opts, logger: logger}
}

// ArtifactExt is the file extension the finished download will carry.
func (c *Client) ArtifactExt(quality string) string {
	if quality == QualityAudio {
		return audioExt
	}
	return c.opts.MergeFormat
}

// Args builds the full argument list for a download.
func (c *Client) Args(req Request) []string {
	args := []string{
		"-f", FormatSelector(req.Quality),
	}
	if req.Quality == QualityAudio {
		args = append(args, "-x", "--audio-format", audioExt)
	} else {
		args = append(args, "--merge-output-format", c.opts.MergeFormat)
	}

	args = append(args,
		"--socket-timeout", strconv.Itoa(int(c.opts.SocketTimeout.Seconds())),
		"--retries", strconv.Itoa(c.opts.Retries),
		"--no-check-certificate",
		"--geo-bypass",
		"--restrict-filenames",
		"--newline",
	)
	if c.opts.UserAgent != "" {
		args = append(args, "--user-agent", c.opts.UserAgent)
	}
	if c.opts.CookiesFromBrowser != "" {
		args = append(args, "--cookies-from-browser", c.opts.CookiesFromBrowser)
	}
	if c.opts.Verbose {
		args = append(args, "--verbose")
	}

	// "--" ends option parsing, so the URL is never read as a flag.
	return append(args,
		"-o", filepath.Join(req.OutputDir, "%(title)s.%(ext)s"),
		"--", req.URL,
	)
}

// Command prepares, but does not start, the download process.
func (c *Client) Command(ctx context.Context, req Request) *exec.Cmd {
	args := c.Args(req)
	c.logger.Debug("yt-dlp command", "binary", c.opts.Binary, "args", strings.Join(args, " "))
	return exec.CommandContext(ctx, c.opts.Binary, args...)
}

// Available checks that the binary resolves on PATH. The version is logged
// once per process.
func (c *Client) Available(ctx context.Context) error {
	path, err := exec.LookPath(c.opts.Binary)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrToolUnavailable, err)
	}

	c.versionOnce.Do(func() {
		vctx, cancel := context.WithTimeout(ctx, versionTimeout)
		defer cancel()
		out, err := exec.CommandContext(vctx, path, "--version").Output()
		if err != nil {
			c.logger.Warn("yt-dlp found but version check failed", "path", path, "error", err)
			return
		}
		c.logger.Info("yt-dlp detected", "path", path, "version", strings.TrimSpace(string(out)))
	})
	return nil
}

// DumpJSON runs yt-dlp in metadata mode and returns the single JSON document
// it prints for the URL.
func (c *Client) DumpJSON(ctx context.Context, rawURL string) ([]byte, error) {
	if err := c.Available(ctx); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, c.opts.Binary, "-j", "--no-playlist", "--", rawURL)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("yt-dlp -j: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}
