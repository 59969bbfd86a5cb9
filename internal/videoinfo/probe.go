package videoinfo

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"

	"ytdl-gateway/internal/m3u8"
)

// Prober fetches HLS master playlists and lists their renditions.
type Prober struct {
	client          *http.Client
	userAgent       string
	maxRetries      uint64
	initialInterval time.Duration
	logger          *slog.Logger
}

func NewProber(client *http.Client, userAgent string, logger *slog.Logger) *Prober {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{
		client:          client,
		userAgent:       userAgent,
		maxRetries:      2,
		initialInterval: 500 * time.Millisecond,
		logger:          logger,
	}
}

// Variants downloads the manifest, retrying transport errors and 5xx/429
// responses with exponential backoff. Any other status or an unparsable
// body fails at once.
func (p *Prober) Variants(ctx context.Context, manifestURL string) ([]m3u8.Variant, error) {
	base, err := url.Parse(manifestURL)
	if err != nil {
		return nil, fmt.Errorf("manifest url: %w", err)
	}

	var variants []m3u8.Variant
	attempt := 0
	operation := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, manifestURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		if p.userAgent != "" {
			req.Header.Set("User-Agent", p.userAgent)
		}

		resp, err := p.client.Do(req)
		if err != nil {
			p.logger.Debug("manifest fetch failed", "url", manifestURL, "attempt", attempt, "error", err)
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			p.logger.Debug("manifest fetch retryable status", "url", manifestURL, "attempt", attempt, "status", resp.StatusCode)
			return fmt.Errorf("manifest status %d", resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return backoff.Permanent(fmt.Errorf("manifest status %d", resp.StatusCode))
		}

		vs, _, err := m3u8.DecodeVariants(resp.Body, base)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("parse manifest: %w", err))
		}
		variants = vs
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.initialInterval
	b := backoff.WithMaxRetries(eb, p.maxRetries)
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return variants, nil
}

// mergeVariants adds one m3u8 format per rendition height not already listed.
func mergeVariants(formats []Format, variants []m3u8.Variant) []Format {
	have := make(map[string]bool, len(formats))
	for _, f := range formats {
		have[f.QualityLabel] = true
	}
	for _, v := range variants {
		label := v.QualityLabel()
		if have[label] {
			continue
		}
		have[label] = true

		f := Format{
			Itag:         fmt.Sprintf("hls-%d", v.Bandwidth/1000),
			QualityLabel: label,
			Container:    "m3u8",
			VideoCodec:   v.Codecs,
		}
		if f.VideoCodec == "" {
			f.VideoCodec = unknown
		}
		if v.FrameRate > 0 {
			fps := v.FrameRate
			f.FPS = &fps
		}
		formats = append(formats, f)
	}
	sortFormats(formats)
	return formats
}
