package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/samvad-hq/samvad-quote-harvester/internal/domain"
)

// Package storage persists extracted quotes and the fetch misses of the harvester.

var (
	// ErrDuplicateTitle is returned when a quote with the same title is already stored.
	ErrDuplicateTitle = errors.New("quote title already stored")
	// ErrDuplicateURL is returned when a quote with the same URL is already stored.
	ErrDuplicateURL = errors.New("quote url already stored")
	// ErrMissingURL is returned for quotes without a source URL.
	ErrMissingURL = errors.New("quote url is required")
	// ErrDuplicateLineOrder is returned when two lines of one quote share an order.
	ErrDuplicateLineOrder = errors.New("quote line order repeated")
	// ErrInvalidLineOrder is returned for orders outside 0..MaxUint32.
	ErrInvalidLineOrder = errors.New("quote line order out of range")
)

// Store persists quotes with their lines and remembers recently failed URLs.
type Store interface {
	Close() error
	SaveQuote(ctx context.Context, q domain.Quote, lines []domain.QuoteLine) (domain.Quote, error)
	QuoteByURL(ctx context.Context, url string) (domain.Quote, bool, error)
	Lines(ctx context.Context, quoteID uint64) ([]domain.QuoteLine, error)
	HasURL(ctx context.Context, url string) (bool, error)
	RecentMiss(ctx context.Context, url string) (bool, error)
	MarkMiss(ctx context.Context, url string) error
}

// Options controls retention of miss entries for concrete store implementations.
type Options struct {
	MissTTL         time.Duration
	CleanupInterval time.Duration
}

const (
	defaultMissTTL         = 24 * time.Hour
	defaultCleanupInterval = 12 * time.Hour
)

// NewStore creates the configured storage backend.
func NewStore(typ, path string, opts Options) (Store, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))
	opts = normalizeOptions(opts)

	switch typ {
	case "", "none", "disabled":
		return noopStore{}, nil
	case "bbolt":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		return openBolt(path, opts)
	case "sqlite":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("sqlite storage requires a path")
		}
		return openSQLite(path, opts)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}

func normalizeOptions(opts Options) Options {
	if opts.MissTTL <= 0 {
		opts.MissTTL = defaultMissTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}
	return opts
}

func validateQuote(q domain.Quote) error {
	if strings.TrimSpace(q.URL) == "" {
		return ErrMissingURL
	}
	if !q.Type.Valid() {
		return fmt.Errorf("invalid quote type %q", q.Type)
	}
	return nil
}

// validateLines enforces unique, non-negative line orders within one quote.
func validateLines(lines []domain.QuoteLine) error {
	seen := make(map[int]struct{}, len(lines))
	for _, line := range lines {
		if line.Order < 0 || int64(line.Order) > math.MaxUint32 {
			return fmt.Errorf("%w: %d", ErrInvalidLineOrder, line.Order)
		}
		if _, dup := seen[line.Order]; dup {
			return fmt.Errorf("%w: %d", ErrDuplicateLineOrder, line.Order)
		}
		seen[line.Order] = struct{}{}
	}
	return nil
}

type noopStore struct{}

func (noopStore) Close() error { return nil }

func (noopStore) SaveQuote(_ context.Context, q domain.Quote, lines []domain.QuoteLine) (domain.Quote, error) {
	if err := validateQuote(q); err != nil {
		return domain.Quote{}, err
	}
	if err := validateLines(lines); err != nil {
		return domain.Quote{}, err
	}
	return q, nil
}

func (noopStore) QuoteByURL(context.Context, string) (domain.Quote, bool, error) {
	return domain.Quote{}, false, nil
}

func (noopStore) Lines(context.Context, uint64) ([]domain.QuoteLine, error) { return nil, nil }
func (noopStore) HasURL(context.Context, string) (bool, error)              { return false, nil }
func (noopStore) RecentMiss(context.Context, string) (bool, error)          { return false, nil }
func (noopStore) MarkMiss(context.Context, string) error                    { return nil }
