package videoinfo

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Info is the summary returned for a video URL.
type Info struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Author      string   `json:"author"`
	Duration    string   `json:"duration"`
	PublishDate string   `json:"publishDate"`
	Thumbnail   string   `json:"thumbnail"`
	Formats     []Format `json:"formats"`
}

type Format struct {
	Itag          string   `json:"itag"`
	QualityLabel  string   `json:"qualityLabel"`
	ContentLength *int64   `json:"contentLength"`
	Container     string   `json:"container"`
	FPS           *float64 `json:"fps"`
	AudioQuality  *string  `json:"audioQuality"`
	VideoCodec    string   `json:"videoCodec"`
	AudioCodec    *string  `json:"audioCodec"`
}

const unknown = "unknown"

// document is the subset of `yt-dlp -j` output we read.
type document struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Uploader    string      `json:"uploader"`
	Duration    *float64    `json:"duration"`
	UploadDate  string      `json:"upload_date"`
	Thumbnail   string      `json:"thumbnail"`
	ManifestURL string      `json:"manifest_url"`
	Formats     []docFormat `json:"formats"`
}

type docFormat struct {
	FormatID string   `json:"format_id"`
	Ext      string   `json:"ext"`
	Height   *float64 `json:"height"`
	Filesize *float64 `json:"filesize"`
	FPS      *float64 `json:"fps"`
	ASR      *float64 `json:"asr"`
	VCodec   *string  `json:"vcodec"`
	ACodec   *string  `json:"acodec"`
}

// decode turns a yt-dlp JSON document into an Info and returns the HLS
// manifest URL when the document names one.
func decode(raw []byte) (Info, string, error) {
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Info{}, "", fmt.Errorf("decode yt-dlp json: %w", err)
	}

	info := Info{
		ID:          doc.ID,
		Title:       doc.Title,
		Author:      doc.Uploader,
		PublishDate: FormatDate(doc.UploadDate),
		Thumbnail:   doc.Thumbnail,
	}
	if doc.Duration != nil {
		info.Duration = FormatDuration(time.Duration(*doc.Duration) * time.Second)
	} else {
		info.Duration = FormatDuration(0)
	}

	best := make(map[string]Format)
	var order []string
	for _, f := range doc.Formats {
		if f.VCodec == nil || *f.VCodec == "none" {
			continue
		}
		cand := Format{
			Itag:         f.FormatID,
			QualityLabel: qualityLabel(f.Height),
			Container:    f.Ext,
			FPS:          f.FPS,
			VideoCodec:   *f.VCodec,
			AudioCodec:   f.ACodec,
		}
		if f.Filesize != nil {
			n := int64(*f.Filesize)
			cand.ContentLength = &n
		}
		if f.ASR != nil {
			q := strconv.FormatFloat(*f.ASR, 'f', -1, 64) + "Hz"
			cand.AudioQuality = &q
		}

		cur, seen := best[cand.QualityLabel]
		if !seen {
			order = append(order, cand.QualityLabel)
			best[cand.QualityLabel] = cand
			continue
		}
		if preferFormat(cand, cur) {
			best[cand.QualityLabel] = cand
		}
	}

	info.Formats = make([]Format, 0, len(order))
	for _, label := range order {
		info.Formats = append(info.Formats, best[label])
	}
	sortFormats(info.Formats)
	return info, doc.ManifestURL, nil
}

// preferFormat reports whether cand should replace cur for the same label:
// a known size beats an unknown one and the larger known size wins.
func preferFormat(cand, cur Format) bool {
	if cand.ContentLength == nil {
		return false
	}
	if cur.ContentLength == nil {
		return true
	}
	return *cand.ContentLength > *cur.ContentLength
}

func qualityLabel(height *float64) string {
	if height == nil || *height <= 0 {
		return unknown
	}
	return strconv.Itoa(int(*height)) + "p"
}

func labelHeight(label string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSuffix(label, "p"))
	if err != nil || !strings.HasSuffix(label, "p") {
		return 0, false
	}
	return n, true
}

// sortFormats orders by height, tallest first, with unknown heights last.
func sortFormats(formats []Format) {
	sort.SliceStable(formats, func(i, j int) bool {
		hi, okI := labelHeight(formats[i].QualityLabel)
		hj, okJ := labelHeight(formats[j].QualityLabel)
		if okI != okJ {
			return okI
		}
		return hi > hj
	})
}

// FormatDuration renders h:mm:ss when at least an hour long, mm:ss otherwise.
func FormatDuration(d time.Duration) string {
	total := int64(d / time.Second)
	if total < 0 {
		total = 0
	}
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// FormatDate turns yt-dlp's YYYYMMDD into YYYY-MM-DD, or "unknown".
func FormatDate(s string) string {
	if len(s) != 8 {
		return unknown
	}
	t, err := time.Parse("20060102", s)
	if err != nil {
		return unknown
	}
	return t.Format("2006-01-02")
}
