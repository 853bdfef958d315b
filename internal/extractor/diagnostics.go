package extractor

import (
	"fmt"
	"sync"
)

// Kind classifies a recoverable extraction problem.
type Kind string

const (
	KindMissingElement     Kind = "missing_element"
	KindUnparsableDate     Kind = "unparsable_date"
	KindNoContentContainer Kind = "no_content_container"
)

// Diagnostic describes a field the engine could not fill. The field still
// receives its empty default; the diagnostic only makes the gap observable.
type Diagnostic struct {
	Kind     Kind   `json:"kind"`
	Field    string `json:"field"`
	Selector string `json:"selector"`
	Detail   string `json:"detail,omitempty"`
}

func (d Diagnostic) String() string {
	if d.Detail == "" {
		return fmt.Sprintf("%s: %s (%s)", d.Kind, d.Field, d.Selector)
	}
	return fmt.Sprintf("%s: %s (%s): %s", d.Kind, d.Field, d.Selector, d.Detail)
}

// Reporter receives diagnostics as extraction runs.
type Reporter interface {
	Report(d Diagnostic)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Diagnostic)

func (f ReporterFunc) Report(d Diagnostic) { f(d) }

type nopReporter struct{}

func (nopReporter) Report(Diagnostic) {}

func ensureReporter(r Reporter) Reporter {
	if r == nil {
		return nopReporter{}
	}
	return r
}

// Recorder keeps every reported diagnostic in memory. Safe for concurrent use.
type Recorder struct {
	mu    sync.Mutex
	diags []Diagnostic
}

func (r *Recorder) Report(d Diagnostic) {
	r.mu.Lock()
	r.diags = append(r.diags, d)
	r.mu.Unlock()
}

// Diagnostics returns a copy of everything recorded so far.
func (r *Recorder) Diagnostics() []Diagnostic {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Diagnostic, len(r.diags))
	copy(out, r.diags)
	return out
}

// Reset drops recorded diagnostics.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.diags = nil
	r.mu.Unlock()
}

// Logger is the logging surface LogReporter writes to.
type Logger interface {
	WarnObj(msg, key string, obj interface{})
}

type logReporter struct {
	log Logger
}

// LogReporter forwards diagnostics to log at warn level.
func LogReporter(log Logger) Reporter {
	if log == nil {
		return nopReporter{}
	}
	return logReporter{log: log}
}

func (l logReporter) Report(d Diagnostic) {
	l.log.WarnObj("quote extraction incomplete", "extract_diagnostic", d)
}

// MultiReporter reports every diagnostic to each non-nil reporter in order.
func MultiReporter(reporters ...Reporter) Reporter {
	out := make([]Reporter, 0, len(reporters))
	for _, r := range reporters {
		if r != nil {
			out = append(out, r)
		}
	}
	return ReporterFunc(func(d Diagnostic) {
		for _, r := range out {
			r.Report(d)
		}
	})
}
