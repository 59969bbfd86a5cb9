package m3u8

import (
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/grafov/m3u8"
)

type PlaylistType int

const (
	Master PlaylistType = iota
	Media
	Unknown
)

func (t PlaylistType) String() string {
	switch t {
	case Master:
		return "master"
	case Media:
		return "media"
	}
	return "unknown"
}

// Variant is one rendition advertised by a master playlist.
type Variant struct {
	URL       string
	Bandwidth uint32
	Width     int
	Height    int
	Codecs    string
	FrameRate float64
}

// QualityLabel is "<height>p", or "unknown" without a resolution.
func (v Variant) QualityLabel() string {
	if v.Height <= 0 {
		return "unknown"
	}
	return strconv.Itoa(v.Height) + "p"
}

// Parse checks the content and returns the type and parsed object
func Parse(content io.Reader) (m3u8.Playlist, PlaylistType, error) {
	p, listType, err := m3u8.DecodeFrom(content, true)
	if err != nil {
		return nil, Unknown, err
	}

	switch listType {
	case m3u8.MASTER:
		return p, Master, nil
	case m3u8.MEDIA:
		return p, Media, nil
	default:
		return nil, Unknown, fmt.Errorf("unknown playlist type")
	}
}

// ResolveURL resolves a relative reference against a base URL
func ResolveURL(base *url.URL, ref string) string {
	refURL, err := url.Parse(ref)
	if err != nil || base == nil {
		return ref
	}
	return base.ResolveReference(refURL).String()
}

// ParseResolution reads a "1280x720" RESOLUTION attribute.
func ParseResolution(s string) (width, height int, ok bool) {
	w, h, found := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !found {
		return 0, 0, false
	}
	width, err := strconv.Atoi(w)
	if err != nil {
		return 0, 0, false
	}
	height, err = strconv.Atoi(h)
	if err != nil {
		return 0, 0, false
	}
	return width, height, true
}

// Variants lists the renditions of a master playlist with absolute URLs,
// tallest first and, within a height, highest bandwidth first.
func Variants(p *m3u8.MasterPlaylist, base *url.URL) []Variant {
	out := make([]Variant, 0, len(p.Variants))
	for _, v := range p.Variants {
		if v == nil || v.URI == "" {
			continue
		}
		vr := Variant{
			URL:       ResolveURL(base, v.URI),
			Bandwidth: v.Bandwidth,
			Codecs:    v.Codecs,
			FrameRate: v.FrameRate,
		}
		if w, h, ok := ParseResolution(v.Resolution); ok {
			vr.Width, vr.Height = w, h
		}
		out = append(out, vr)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Height != out[j].Height {
			return out[i].Height > out[j].Height
		}
		return out[i].Bandwidth > out[j].Bandwidth
	})
	return out
}

// DecodeVariants parses a manifest and returns its renditions. A media
// playlist is a single rendition and yields no variants.
func DecodeVariants(content io.Reader, base *url.URL) ([]Variant, PlaylistType, error) {
	p, kind, err := Parse(content)
	if err != nil {
		return nil, kind, err
	}
	if kind != Master {
		return nil, kind, nil
	}
	return Variants(p.(*m3u8.MasterPlaylist), base), kind, nil
}
