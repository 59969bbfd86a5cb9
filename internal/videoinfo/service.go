package videoinfo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ytdl-gateway/internal/downloader"
	"ytdl-gateway/internal/logging"
)

var ErrEmptyURL = errors.New("url is required")

// Source runs yt-dlp in metadata mode. *downloader.Client implements it.
type Source interface {
	DumpJSON(ctx context.Context, url string) ([]byte, error)
}

type Options struct {
	// CacheTTL is how long a stored lookup is served; 0 disables the cache.
	CacheTTL time.Duration
}

// Service answers video info queries. It never touches download tasks.
type Service struct {
	source  Source
	repo    *Repository
	prober  *Prober
	opts    Options
	logger  *slog.Logger
	metrics *logging.Metrics
	now     func() time.Time
}

// NewService wires the lookup path. repo and prober may be nil.
func NewService(source Source, repo *Repository, prober *Prober, opts Options, logger *slog.Logger, metrics *logging.Metrics) *Service {
	if logger == nil {
		logger = logging.Logger("videoinfo")
	}
	return &Service{
		source:  source,
		repo:    repo,
		prober:  prober,
		opts:    opts,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

func (s *Service) cacheEnabled() bool {
	return s.repo != nil && s.opts.CacheTTL > 0
}

func (s *Service) Lookup(ctx context.Context, url string) (Info, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return Info{}, ErrEmptyURL
	}
	if err := downloader.ValidateURL(url); err != nil {
		return Info{}, err
	}

	if info, ok := s.cached(ctx, url); ok {
		return info, nil
	}

	s.logger.Info("fetching video info", "url", url)
	raw, err := s.source.DumpJSON(ctx, url)
	if err != nil {
		return Info{}, fmt.Errorf("video info: %w", err)
	}
	info, manifestURL, err := decode(raw)
	if err != nil {
		return Info{}, err
	}

	if s.prober != nil && manifestURL != "" {
		variants, err := s.prober.Variants(ctx, manifestURL)
		if err != nil {
			s.logger.Warn("hls manifest probe failed", "url", url, "manifest", manifestURL, "error", err)
		} else {
			info.Formats = mergeVariants(info.Formats, variants)
		}
	}

	s.store(ctx, url, info)
	s.logger.Info("video info fetched", "url", url, "id", info.ID, "title", info.Title, "formats", len(info.Formats))
	return info, nil
}

func (s *Service) cached(ctx context.Context, url string) (Info, bool) {
	if !s.cacheEnabled() {
		return Info{}, false
	}
	c, ok, err := s.repo.Get(ctx, url)
	if err != nil {
		s.logger.Warn("video info cache read failed", "url", url, "error", err)
		return Info{}, false
	}
	if !ok || s.now().Sub(c.FetchedAt) >= s.opts.CacheTTL {
		return Info{}, false
	}
	var info Info
	if err := json.Unmarshal(c.Payload, &info); err != nil {
		s.logger.Warn("discarding unreadable cache entry", "url", url, "error", err)
		return Info{}, false
	}
	s.metrics.InfoCacheHit(ctx)
	s.logger.Debug("video info served from cache", "url", url, "age", s.now().Sub(c.FetchedAt).Round(time.Second))
	return info, true
}

func (s *Service) store(ctx context.Context, url string, info Info) {
	if !s.cacheEnabled() {
		return
	}
	payload, err := json.Marshal(info)
	if err != nil {
		s.logger.Warn("encode video info for cache", "url", url, "error", err)
		return
	}
	if err := s.repo.Put(ctx, CachedInfo{URL: url, Payload: payload, FetchedAt: s.now()}); err != nil {
		s.logger.Warn("video info cache write failed", "url", url, "error", err)
	}
}

// Prune drops cache entries older than the TTL.
func (s *Service) Prune(ctx context.Context) (int64, error) {
	if !s.cacheEnabled() {
		return 0, nil
	}
	return s.repo.DeleteOlderThan(ctx, s.now().Add(-s.opts.CacheTTL))
}

// RunJanitor calls Prune every interval until ctx is done.
func (s *Service) RunJanitor(ctx context.Context, interval time.Duration) {
	if !s.cacheEnabled() {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Prune(ctx)
			if err != nil {
				s.logger.Warn("video info cache prune failed", "error", err)
				continue
			}
			if n > 0 {
				kept, _ := s.repo.Count(ctx)
				s.logger.Info("pruned video info cache", "removed", n, "kept", kept)
			}
		}
	}
}
