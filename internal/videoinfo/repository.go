package videoinfo

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// CachedInfo is one stored lookup result.
type CachedInfo struct {
	URL       string
	Payload   []byte
	FetchedAt time.Time
}

// Repository keeps lookup results in SQLite, keyed by URL.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) (*Repository, error) {
	r := &Repository{db: db}
	if err := r.InitTable(); err != nil {
		return nil, err
	}
	return r, nil
}

// InitTable creates the video_info table if it doesn't exist
func (r *Repository) InitTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS video_info (
		url TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		fetched_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_video_info_fetched_at ON video_info(fetched_at);
	`
	_, err := r.db.Exec(query)
	return err
}

func (r *Repository) Get(ctx context.Context, url string) (CachedInfo, bool, error) {
	query := `SELECT url, payload, fetched_at FROM video_info WHERE url = ?`
	var (
		c       CachedInfo
		fetched int64
	)
	err := r.db.QueryRowContext(ctx, query, url).Scan(&c.URL, &c.Payload, &fetched)
	if errors.Is(err, sql.ErrNoRows) {
		return CachedInfo{}, false, nil
	}
	if err != nil {
		return CachedInfo{}, false, err
	}
	c.FetchedAt = time.UnixMilli(fetched)
	return c, true, nil
}

func (r *Repository) Put(ctx context.Context, c CachedInfo) error {
	query := `
	INSERT INTO video_info (url, payload, fetched_at) VALUES (?, ?, ?)
	ON CONFLICT(url) DO UPDATE SET payload = excluded.payload, fetched_at = excluded.fetched_at
	`
	_, err := r.db.ExecContext(ctx, query, c.URL, c.Payload, c.FetchedAt.UnixMilli())
	return err
}

// DeleteOlderThan removes entries fetched before cutoff and reports how many.
func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM video_info WHERE fetched_at < ?`
	res, err := r.db.ExecContext(ctx, query, cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM video_info`).Scan(&n)
	return n, err
}
