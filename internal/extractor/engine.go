package extractor

import (
	"time"

	"github.com/samvad-hq/samvad-quote-harvester/internal/document"
)

// Document is the lookup capability the engine needs from a parsed page.
// *document.Tree satisfies it; any backend producing neutral elements can.
type Document interface {
	Find(selector string) (*document.Element, bool)
}

// Engine extracts a quote and its lines from one parsed page. It holds no
// mutable state, so ParseMetadata and ParseLines may be called in any order
// and repeatedly.
type Engine struct {
	doc      Document
	now      func() time.Time
	reporter Reporter
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for ScrapedAt.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithReporter sets the sink for extraction diagnostics.
func WithReporter(r Reporter) Option {
	return func(e *Engine) {
		e.reporter = ensureReporter(r)
	}
}

// New binds an engine to doc.
func New(doc Document, opts ...Option) *Engine {
	e := &Engine{
		doc:      doc,
		now:      time.Now,
		reporter: nopReporter{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FromHTML parses raw and binds an engine to the result. The loader error is
// the only error extraction can produce.
func FromHTML(raw string, opts ...Option) (*Engine, error) {
	tree, err := document.Parse(raw)
	if err != nil {
		return nil, err
	}
	return New(tree, opts...), nil
}

func (e *Engine) find(selector string) (*document.Element, bool) {
	if e.doc == nil {
		return nil, false
	}
	el, ok := e.doc.Find(selector)
	if !ok || el == nil {
		return nil, false
	}
	return el, true
}

// content returns the dialogue container, reporting its absence against field.
func (e *Engine) content(field string) (*document.Element, bool) {
	el, ok := e.find(SelectorContent)
	if !ok {
		e.reporter.Report(Diagnostic{
			Kind:     KindNoContentContainer,
			Field:    field,
			Selector: SelectorContent,
		})
	}
	return el, ok
}

func (e *Engine) missing(field, selector, detail string) {
	e.reporter.Report(Diagnostic{
		Kind:     KindMissingElement,
		Field:    field,
		Selector: selector,
		Detail:   detail,
	})
}
