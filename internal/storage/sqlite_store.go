package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/samvad-hq/samvad-quote-harvester/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS quotes (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	title       TEXT NOT NULL DEFAULT '',
	author      TEXT NOT NULL DEFAULT '',
	url         TEXT NOT NULL UNIQUE,
	raw_content TEXT NOT NULL DEFAULT '',
	posted_at   TEXT NOT NULL DEFAULT '',
	scraped_at  TEXT NOT NULL DEFAULT '',
	type        TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS quotes_title_unique ON quotes(title) WHERE title <> '';
CREATE TABLE IF NOT EXISTS lines (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	quote_id   INTEGER NOT NULL REFERENCES quotes(id) ON DELETE CASCADE,
	author     TEXT NOT NULL DEFAULT '',
	color      TEXT NOT NULL DEFAULT '',
	message    TEXT NOT NULL DEFAULT '',
	line_order INTEGER NOT NULL,
	UNIQUE (quote_id, line_order)
);
CREATE TABLE IF NOT EXISTS misses (
	url        TEXT PRIMARY KEY,
	expires_at INTEGER NOT NULL
);
`

// sqliteStore implements a Store backed by SQLite.
type sqliteStore struct {
	db              *sql.DB
	cleanupMu       sync.Mutex
	lastCleanup     atomic.Int64
	missTTL         time.Duration
	cleanupInterval time.Duration
	now             func() time.Time
}

// openSQLite opens (or creates) the database at path and applies the schema.
func openSQLite(path string, opts Options) (*sqliteStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite has a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}

	store := &sqliteStore{
		db:              db,
		missTTL:         opts.MissTTL,
		cleanupInterval: opts.CleanupInterval,
		now:             time.Now,
	}
	store.lastCleanup.Store(store.now().Unix())
	return store, nil
}

func sqliteDSN(path string) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	return "file:" + path + "?" + q.Encode()
}

// Close closes the SQLite store.
func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveQuote stores q and its lines in one transaction and returns q with its new ID.
func (s *sqliteStore) SaveQuote(ctx context.Context, q domain.Quote, lines []domain.QuoteLine) (domain.Quote, error) {
	if err := ctx.Err(); err != nil {
		return domain.Quote{}, err
	}
	if err := validateQuote(q); err != nil {
		return domain.Quote{}, err
	}
	if err := validateLines(lines); err != nil {
		return domain.Quote{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("begin save quote: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := checkDuplicate(ctx, tx, `SELECT 1 FROM quotes WHERE url = ?`, q.URL); err != nil {
		if errors.Is(err, errRowExists) {
			return domain.Quote{}, fmt.Errorf("%w: %s", ErrDuplicateURL, q.URL)
		}
		return domain.Quote{}, err
	}
	if q.Title != "" {
		if err := checkDuplicate(ctx, tx, `SELECT 1 FROM quotes WHERE title = ?`, q.Title); err != nil {
			if errors.Is(err, errRowExists) {
				return domain.Quote{}, fmt.Errorf("%w: %q", ErrDuplicateTitle, q.Title)
			}
			return domain.Quote{}, err
		}
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO quotes (title, author, url, raw_content, posted_at, scraped_at, type) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		q.Title, q.Author, q.URL, q.RawContent, q.PostedAt, q.ScrapedAt, string(q.Type),
	)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("insert quote: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Quote{}, fmt.Errorf("quote id: %w", err)
	}
	q.ID = uint64(id)

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO lines (quote_id, author, color, message, line_order) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("prepare line insert: %w", err)
	}
	defer stmt.Close()
	for _, line := range lines {
		if _, err := stmt.ExecContext(ctx, id, line.Author, line.Color, line.Message, line.Order); err != nil {
			return domain.Quote{}, fmt.Errorf("insert line %d: %w", line.Order, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM misses WHERE url = ?`, q.URL); err != nil {
		return domain.Quote{}, fmt.Errorf("clear miss: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Quote{}, fmt.Errorf("commit quote: %w", err)
	}
	return q, nil
}

var errRowExists = errors.New("row exists")

func checkDuplicate(ctx context.Context, tx *sql.Tx, query, arg string) error {
	var one int
	err := tx.QueryRowContext(ctx, query, arg).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil
	case err != nil:
		return fmt.Errorf("check duplicate: %w", err)
	default:
		return errRowExists
	}
}

// QuoteByURL looks up a stored quote by its source URL.
func (s *sqliteStore) QuoteByURL(ctx context.Context, url string) (domain.Quote, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Quote{}, false, err
	}

	var (
		q   domain.Quote
		id  int64
		typ string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, author, url, raw_content, posted_at, scraped_at, type FROM quotes WHERE url = ?`, url,
	).Scan(&id, &q.Title, &q.Author, &q.URL, &q.RawContent, &q.PostedAt, &q.ScrapedAt, &typ)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Quote{}, false, nil
	}
	if err != nil {
		return domain.Quote{}, false, fmt.Errorf("query quote %s: %w", url, err)
	}
	q.ID = uint64(id)
	q.Type = domain.QuoteType(typ)
	return q, true, nil
}

// Lines returns the lines of quoteID in display order.
func (s *sqliteStore) Lines(ctx context.Context, quoteID uint64) ([]domain.QuoteLine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, quote_id, author, color, message, line_order FROM lines WHERE quote_id = ? ORDER BY line_order`,
		int64(quoteID),
	)
	if err != nil {
		return nil, fmt.Errorf("query lines of quote %d: %w", quoteID, err)
	}
	defer rows.Close()

	var out []domain.QuoteLine
	for rows.Next() {
		var (
			line    domain.QuoteLine
			id, qid int64
		)
		if err := rows.Scan(&id, &qid, &line.Author, &line.Color, &line.Message, &line.Order); err != nil {
			return nil, fmt.Errorf("scan line of quote %d: %w", quoteID, err)
		}
		line.ID = uint64(id)
		line.QuoteID = uint64(qid)
		out = append(out, line)
	}
	return out, rows.Err()
}

// HasURL reports whether a quote from url is already stored.
func (s *sqliteStore) HasURL(ctx context.Context, url string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM quotes WHERE url = ?`, url).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query url %s: %w", url, err)
	}
	return true, nil
}

// RecentMiss reports whether fetching url failed within the miss TTL.
// Expired entries are removed on read.
func (s *sqliteStore) RecentMiss(ctx context.Context, url string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	now := s.now()
	if err := s.maybeCleanupExpired(ctx, now); err != nil {
		return false, err
	}

	var expiresAt int64
	err := s.db.QueryRowContext(ctx, `SELECT expires_at FROM misses WHERE url = ?`, url).Scan(&expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query miss %s: %w", url, err)
	}
	if expiresAt > now.Unix() {
		return true, nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM misses WHERE url = ?`, url); err != nil {
		return false, fmt.Errorf("delete expired miss %s: %w", url, err)
	}
	return false, nil
}

// MarkMiss records a failed fetch of url for the miss TTL.
func (s *sqliteStore) MarkMiss(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(url) == "" {
		return ErrMissingURL
	}

	now := s.now()
	if err := s.maybeCleanupExpired(ctx, now); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO misses (url, expires_at) VALUES (?, ?)
		 ON CONFLICT(url) DO UPDATE SET expires_at = excluded.expires_at`,
		url, now.Add(s.missTTL).Unix(),
	)
	if err != nil {
		return fmt.Errorf("record miss %s: %w", url, err)
	}
	return nil
}

// maybeCleanupExpired sweeps expired misses once per cleanup interval.
func (s *sqliteStore) maybeCleanupExpired(ctx context.Context, now time.Time) error {
	last := time.Unix(s.lastCleanup.Load(), 0)
	if now.Sub(last) < s.cleanupInterval {
		return nil
	}

	s.cleanupMu.Lock()
	defer s.cleanupMu.Unlock()

	last = time.Unix(s.lastCleanup.Load(), 0)
	if now.Sub(last) < s.cleanupInterval {
		return nil
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM misses WHERE expires_at <= ?`, now.Unix()); err != nil {
		return fmt.Errorf("sweep expired misses: %w", err)
	}
	s.lastCleanup.Store(now.Unix())
	return nil
}
