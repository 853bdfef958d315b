package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/samvad-hq/samvad-quote-harvester/internal/domain"
)

const (
	quotesBucket     = "quotes"
	linesBucket      = "lines"
	titleIndexBucket = "quotes_by_title"
	urlIndexBucket   = "quotes_by_url"
	missBucket       = "misses"
	idBytes          = 8
	orderBytes       = 4
	expiryValueBytes = 8
)

var allBuckets = []string{quotesBucket, linesBucket, titleIndexBucket, urlIndexBucket, missBucket}

// boltStore implements a Store backed by BoltDB.
type boltStore struct {
	db              *bolt.DB
	cleanupMu       sync.Mutex
	lastCleanup     atomic.Int64
	missTTL         time.Duration
	cleanupInterval time.Duration
	now             func() time.Time
}

// openBolt initializes a BoltDB-backed Store.
func openBolt(path string, opts Options) (*boltStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("bucket %s: %w", name, err)
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}

	store := &boltStore{
		db:              db,
		missTTL:         opts.MissTTL,
		cleanupInterval: opts.CleanupInterval,
		now:             time.Now,
	}
	store.lastCleanup.Store(store.now().Unix())
	return store, nil
}

// Close closes the BoltDB store.
func (b *boltStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// SaveQuote stores q and its lines in one transaction and returns q with its new ID.
// Lines are stored with the quote ID and fresh line IDs; their Order is kept.
func (b *boltStore) SaveQuote(ctx context.Context, q domain.Quote, lines []domain.QuoteLine) (domain.Quote, error) {
	if err := ctx.Err(); err != nil {
		return domain.Quote{}, err
	}
	if err := validateQuote(q); err != nil {
		return domain.Quote{}, err
	}
	if err := validateLines(lines); err != nil {
		return domain.Quote{}, err
	}

	err := b.db.Update(func(tx *bolt.Tx) error {
		quotes, lineBkt, byTitle, byURL, err := quoteBuckets(tx)
		if err != nil {
			return err
		}

		if byURL.Get([]byte(q.URL)) != nil {
			return fmt.Errorf("%w: %s", ErrDuplicateURL, q.URL)
		}
		if q.Title != "" && byTitle.Get([]byte(q.Title)) != nil {
			return fmt.Errorf("%w: %q", ErrDuplicateTitle, q.Title)
		}

		seq, err := quotes.NextSequence()
		if err != nil {
			return fmt.Errorf("next quote id: %w", err)
		}
		q.ID = seq
		key := encodeID(q.ID)

		payload, err := json.Marshal(q)
		if err != nil {
			return fmt.Errorf("encode quote: %w", err)
		}
		if err := quotes.Put(key, payload); err != nil {
			return fmt.Errorf("put quote: %w", err)
		}
		if err := byURL.Put([]byte(q.URL), key); err != nil {
			return fmt.Errorf("index quote url: %w", err)
		}
		if q.Title != "" {
			if err := byTitle.Put([]byte(q.Title), key); err != nil {
				return fmt.Errorf("index quote title: %w", err)
			}
		}

		for _, line := range lines {
			lineID, err := lineBkt.NextSequence()
			if err != nil {
				return fmt.Errorf("next line id: %w", err)
			}
			line.ID = lineID
			line.QuoteID = q.ID
			payload, err := json.Marshal(line)
			if err != nil {
				return fmt.Errorf("encode line %d: %w", line.Order, err)
			}
			lk := lineKey(q.ID, line.Order)
			if lineBkt.Get(lk) != nil {
				return fmt.Errorf("%w: %d", ErrDuplicateLineOrder, line.Order)
			}
			if err := lineBkt.Put(lk, payload); err != nil {
				return fmt.Errorf("put line %d: %w", line.Order, err)
			}
		}

		return missDelete(tx, q.URL)
	})
	if err != nil {
		return domain.Quote{}, err
	}
	return q, nil
}

// QuoteByURL looks up a stored quote by its source URL.
func (b *boltStore) QuoteByURL(ctx context.Context, url string) (domain.Quote, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Quote{}, false, err
	}

	var (
		q     domain.Quote
		found bool
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		quotes, _, _, byURL, err := quoteBuckets(tx)
		if err != nil {
			return err
		}
		key := byURL.Get([]byte(url))
		if key == nil {
			return nil
		}
		raw := quotes.Get(key)
		if raw == nil {
			return fmt.Errorf("quote index for %s points to missing id %d", url, decodeID(key))
		}
		if err := json.Unmarshal(raw, &q); err != nil {
			return fmt.Errorf("decode quote %d: %w", decodeID(key), err)
		}
		found = true
		return nil
	})
	if err != nil {
		return domain.Quote{}, false, err
	}
	return q, found, nil
}

// Lines returns the lines of quoteID in display order.
func (b *boltStore) Lines(ctx context.Context, quoteID uint64) ([]domain.QuoteLine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []domain.QuoteLine
	err := b.db.View(func(tx *bolt.Tx) error {
		_, lineBkt, _, _, err := quoteBuckets(tx)
		if err != nil {
			return err
		}
		prefix := encodeID(quoteID)
		c := lineBkt.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var line domain.QuoteLine
			if err := json.Unmarshal(v, &line); err != nil {
				return fmt.Errorf("decode line of quote %d: %w", quoteID, err)
			}
			out = append(out, line)
		}
		return nil
	})
	return out, err
}

// HasURL reports whether a quote from url is already stored.
func (b *boltStore) HasURL(ctx context.Context, url string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var exists bool
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(urlIndexBucket))
		if bucket == nil {
			return fmt.Errorf("%s bucket missing", urlIndexBucket)
		}
		exists = bucket.Get([]byte(url)) != nil
		return nil
	})
	return exists, err
}

// RecentMiss reports whether fetching url failed within the miss TTL.
// Expired entries are removed on read.
func (b *boltStore) RecentMiss(ctx context.Context, url string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	now := b.now()
	if err := b.maybeCleanupExpired(now); err != nil {
		return false, err
	}

	var missed bool
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(missBucket))
		if bucket == nil {
			return fmt.Errorf("%s bucket missing", missBucket)
		}

		key := []byte(url)
		value := bucket.Get(key)
		if value == nil {
			return nil
		}

		expiry, ok := decodeExpiry(value)
		if !ok || !expiry.After(now) {
			return bucket.Delete(key)
		}

		missed = true
		return nil
	})
	return missed, err
}

// MarkMiss records a failed fetch of url for the miss TTL.
func (b *boltStore) MarkMiss(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(url) == "" {
		return ErrMissingURL
	}

	now := b.now()
	if err := b.maybeCleanupExpired(now); err != nil {
		return err
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(missBucket))
		if bucket == nil {
			return fmt.Errorf("%s bucket missing", missBucket)
		}
		buf := make([]byte, expiryValueBytes)
		binary.BigEndian.PutUint64(buf, uint64(now.Add(b.missTTL).Unix()))
		return bucket.Put([]byte(url), buf)
	})
}

// maybeCleanupExpired sweeps expired misses once per cleanup interval.
func (b *boltStore) maybeCleanupExpired(now time.Time) error {
	last := time.Unix(b.lastCleanup.Load(), 0)
	if now.Sub(last) < b.cleanupInterval {
		return nil
	}

	b.cleanupMu.Lock()
	defer b.cleanupMu.Unlock()

	last = time.Unix(b.lastCleanup.Load(), 0)
	if now.Sub(last) < b.cleanupInterval {
		return nil
	}

	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(missBucket))
		if bucket == nil {
			return fmt.Errorf("%s bucket missing", missBucket)
		}

		cursor := bucket.Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			expiry, ok := decodeExpiry(v)
			if !ok || !expiry.After(now) {
				if err := cursor.Delete(); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err == nil {
		b.lastCleanup.Store(now.Unix())
	}
	return err
}

func quoteBuckets(tx *bolt.Tx) (quotes, lines, byTitle, byURL *bolt.Bucket, err error) {
	quotes = tx.Bucket([]byte(quotesBucket))
	lines = tx.Bucket([]byte(linesBucket))
	byTitle = tx.Bucket([]byte(titleIndexBucket))
	byURL = tx.Bucket([]byte(urlIndexBucket))
	if quotes == nil || lines == nil || byTitle == nil || byURL == nil {
		return nil, nil, nil, nil, fmt.Errorf("quote buckets missing")
	}
	return quotes, lines, byTitle, byURL, nil
}

func missDelete(tx *bolt.Tx, url string) error {
	bucket := tx.Bucket([]byte(missBucket))
	if bucket == nil {
		return nil
	}
	return bucket.Delete([]byte(url))
}

func encodeID(id uint64) []byte {
	buf := make([]byte, idBytes)
	binary.BigEndian.PutUint64(buf, id)
	return buf
}

func decodeID(key []byte) uint64 {
	if len(key) < idBytes {
		return 0
	}
	return binary.BigEndian.Uint64(key[:idBytes])
}

// lineKey sorts lines by quote then order. Orders start at 0 and fit in 32 bits.
func lineKey(quoteID uint64, order int) []byte {
	buf := make([]byte, idBytes+orderBytes)
	binary.BigEndian.PutUint64(buf, quoteID)
	binary.BigEndian.PutUint32(buf[idBytes:], uint32(order))
	return buf
}

// decodeExpiry decodes the expiry time from the stored byte slice.
func decodeExpiry(value []byte) (time.Time, bool) {
	if len(value) != expiryValueBytes {
		return time.Time{}, false
	}
	unix := int64(binary.BigEndian.Uint64(value))
	if unix <= 0 {
		return time.Time{}, false
	}
	return time.Unix(unix, 0), true
}
