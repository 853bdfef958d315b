package sources

import (
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/samvad-hq/samvad-quote-harvester/internal/regfile"
)

// Package sources contains the quote site registry (YAML/JSON) helpers.

// Source describes one quote site and the numeric id range to harvest from it.
type Source struct {
	ID             string         `json:"id" yaml:"id"`
	Name           string         `json:"name" yaml:"name"`
	BaseURL        string         `json:"base_url" yaml:"base_url"`
	QuotePath      string         `json:"quote_path" yaml:"quote_path"`
	StartID        int            `json:"start_id" yaml:"start_id"`
	EndID          int            `json:"end_id" yaml:"end_id"`
	RequestDelayMs int            `json:"request_delay_ms" yaml:"request_delay_ms"`
	Config         map[string]any `json:"config" yaml:"config"`
}

type registry struct {
	Sources []Source `json:"sources" yaml:"sources"`
}

// MaxQuoteRange bounds end_id - start_id + 1 for one source.
const MaxQuoteRange = 1_000_000

var (
	regMu                 sync.RWMutex
	currentReg            registry
	sourcesIdx            map[string]Source
	defaultRequestDelayMs = 1000
	defaultQuotePath      = "/quote/%d"
)

// Sources returns a copy of the currently loaded source registry.
func Sources() []Source {
	regMu.RLock()
	defer regMu.RUnlock()

	if len(currentReg.Sources) == 0 {
		return nil
	}

	out := make([]Source, len(currentReg.Sources))
	copy(out, currentReg.Sources)
	return out
}

// SourceByID returns the source entry for the given id, if loaded.
func SourceByID(id string) (Source, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Source{}, false
	}

	regMu.RLock()
	defer regMu.RUnlock()

	if sourcesIdx == nil {
		return Source{}, false
	}

	s, ok := sourcesIdx[id]
	return s, ok
}

// LoadSources loads the source registry from file and makes it current.
func LoadSources(path string) error {
	list, err := ReadSources(path)
	if err != nil {
		return err
	}

	idx := make(map[string]Source, len(list))
	for _, s := range list {
		idx[s.ID] = s
	}

	regMu.Lock()
	currentReg = registry{Sources: list}
	sourcesIdx = idx
	regMu.Unlock()

	return nil
}

// ReadSources parses and validates a source file without touching the current registry.
func ReadSources(path string) ([]Source, error) {
	var reg registry
	if err := regfile.Read(path, "sources", &reg); err != nil {
		return nil, err
	}
	if len(reg.Sources) == 0 {
		return nil, errors.New("sources file contains no sources entries")
	}

	seen := make(map[string]struct{}, len(reg.Sources))
	for i := range reg.Sources {
		s := sanitizeSource(reg.Sources[i])
		if err := validateSource(s); err != nil {
			return nil, fmt.Errorf("source[%d]: %w", i, err)
		}
		if _, exists := seen[s.ID]; exists {
			return nil, fmt.Errorf("duplicate source id %q", s.ID)
		}
		seen[s.ID] = struct{}{}
		reg.Sources[i] = s
	}

	return reg.Sources, nil
}

func sanitizeSource(s Source) Source {
	s.ID = strings.TrimSpace(s.ID)
	s.Name = strings.TrimSpace(s.Name)
	s.BaseURL = strings.TrimRight(strings.TrimSpace(s.BaseURL), "/")
	s.QuotePath = strings.TrimSpace(s.QuotePath)

	if s.QuotePath == "" {
		s.QuotePath = defaultQuotePath
	}
	if !strings.HasPrefix(s.QuotePath, "/") {
		s.QuotePath = "/" + s.QuotePath
	}
	if s.Config == nil {
		s.Config = map[string]any{}
	}
	if s.RequestDelayMs <= 0 {
		s.RequestDelayMs = defaultRequestDelayMs
	}

	return s
}

func validateSource(s Source) error {
	if s.ID == "" {
		return errors.New("id is required")
	}
	if s.Name == "" {
		return fmt.Errorf("name is required for source %q", s.ID)
	}
	if s.BaseURL == "" {
		return fmt.Errorf("base_url is required for source %q", s.ID)
	}
	if !strings.HasPrefix(strings.ToLower(s.BaseURL), "https://") {
		return fmt.Errorf("base_url must be https for source %q", s.ID)
	}
	if strings.Count(s.QuotePath, "%d") != 1 || strings.Count(s.QuotePath, "%") != 1 {
		return fmt.Errorf("quote_path must contain exactly one %%d for source %q", s.ID)
	}
	if s.StartID <= 0 {
		return fmt.Errorf("start_id must be positive for source %q", s.ID)
	}
	if s.EndID < s.StartID {
		return fmt.Errorf("end_id must not be below start_id for source %q", s.ID)
	}
	if s.EndID-s.StartID >= MaxQuoteRange {
		return fmt.Errorf("source %q spans more than %d quote ids", s.ID, MaxQuoteRange)
	}
	return nil
}

// RequestDelay returns the per-request throttle duration for the source.
func (s Source) RequestDelay() time.Duration {
	if s.RequestDelayMs <= 0 {
		return time.Duration(defaultRequestDelayMs) * time.Millisecond
	}
	return time.Duration(s.RequestDelayMs) * time.Millisecond
}

// QuoteURL returns the page URL for quote id.
func (s Source) QuoteURL(id int) string {
	return s.BaseURL + fmt.Sprintf(s.QuotePath, id)
}

// QuoteURLs yields page URLs from StartID to EndID inclusive.
func (s Source) QuoteURLs() iter.Seq[string] {
	return func(yield func(string) bool) {
		if s.EndID < s.StartID {
			return
		}
		for id := s.StartID; ; id++ {
			if !yield(s.QuoteURL(id)) || id == s.EndID {
				return
			}
		}
	}
}

// QuoteCount returns how many quote pages the source spans.
func (s Source) QuoteCount() int {
	if s.EndID < s.StartID {
		return 0
	}
	return s.EndID - s.StartID + 1
}
