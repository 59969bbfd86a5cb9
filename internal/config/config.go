package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration written as a Go duration string ("10m").
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"10m\": %w", err)
	}
	return d.set(s)
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.set(node.Value)
}

func (d *Duration) set(s string) error {
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

type Config struct {
	Port        int    `json:"port" yaml:"port"`
	DownloadDir string `json:"download_dir" yaml:"download_dir"`
	DataDir     string `json:"data_dir" yaml:"data_dir"`
	WebDir      string `json:"web_dir" yaml:"web_dir"`

	Binary             string   `json:"binary" yaml:"binary"`
	DownloadTimeout    Duration `json:"download_timeout" yaml:"download_timeout"`
	MinArtifactBytes   int64    `json:"min_artifact_bytes" yaml:"min_artifact_bytes"`
	SocketTimeout      Duration `json:"socket_timeout" yaml:"socket_timeout"`
	Retries            int      `json:"retries" yaml:"retries"`
	UserAgent          string   `json:"user_agent" yaml:"user_agent"`
	MergeFormat        string   `json:"merge_format" yaml:"merge_format"`
	CookiesFromBrowser string   `json:"cookies_from_browser" yaml:"cookies_from_browser"`
	Verbose            bool     `json:"verbose" yaml:"verbose"`
	LogTail            int      `json:"log_tail" yaml:"log_tail"`
	CleanupAfterFetch  bool     `json:"cleanup_after_fetch" yaml:"cleanup_after_fetch"`

	InfoCacheTTL Duration `json:"info_cache_ttl" yaml:"info_cache_ttl"`
	HLSProbe     bool     `json:"hls_probe" yaml:"hls_probe"`

	LogLevel   string `json:"log_level" yaml:"log_level"`
	OTelStdout bool   `json:"otel_stdout" yaml:"otel_stdout"`
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func Default() Config {
	return Config{
		Port:              8084,
		DownloadDir:       "./downloads",
		DataDir:           "./data",
		Binary:            "yt-dlp",
		DownloadTimeout:   Duration(10 * time.Minute),
		MinArtifactBytes:  1024,
		SocketTimeout:     Duration(30 * time.Second),
		Retries:           10,
		UserAgent:         defaultUserAgent,
		MergeFormat:       "mp4",
		LogTail:           50,
		CleanupAfterFetch: true,
		InfoCacheTTL:      Duration(30 * time.Minute),
		HLSProbe:          true,
		LogLevel:          "info",
	}
}

// Load reads path over the defaults. A missing file leaves the defaults in
// place. The format follows the extension: .yaml/.yml or JSON otherwise.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from YTDL_* variables looked up with getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	var errs []error
	integer := func(key string, dst *int) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	int64v := func(key string, dst *int64) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *Duration) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			if err := dst.set(v); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
			}
		}
	}
	boolean := func(key string, dst *bool) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	integer("YTDL_PORT", &c.Port)
	str("YTDL_DOWNLOAD_DIR", &c.DownloadDir)
	str("YTDL_DATA_DIR", &c.DataDir)
	str("YTDL_WEB_DIR", &c.WebDir)
	str("YTDL_BINARY", &c.Binary)
	duration("YTDL_DOWNLOAD_TIMEOUT", &c.DownloadTimeout)
	int64v("YTDL_MIN_ARTIFACT_BYTES", &c.MinArtifactBytes)
	str("YTDL_COOKIES_FROM_BROWSER", &c.CookiesFromBrowser)
	duration("YTDL_INFO_CACHE_TTL", &c.InfoCacheTTL)
	str("YTDL_LOG_LEVEL", &c.LogLevel)
	boolean("YTDL_OTEL_STDOUT", &c.OTelStdout)

	if err := errors.Join(errs...); err != nil {
		return err
	}
	return c.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.DownloadDir == "" {
		errs = append(errs, errors.New("download_dir is empty"))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is empty"))
	}
	if c.DownloadTimeout <= 0 {
		errs = append(errs, errors.New("download_timeout must be positive"))
	}
	if c.MinArtifactBytes < 0 {
		errs = append(errs, errors.New("min_artifact_bytes must not be negative"))
	}
	if c.InfoCacheTTL < 0 {
		errs = append(errs, errors.New("info_cache_ttl must not be negative"))
	}
	return errors.Join(errs...)
}
