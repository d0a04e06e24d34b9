// Package instrument wraps functions so that each call is timed and, by
// category, measured for memory and system resources, then reported as one
// record through a perflog.Manager.
//
// Wrapping never changes what the wrapped function returns: errors come back
// unchanged and panics are re-raised with the original value. Failures of the
// measuring itself are swallowed.
//
// Typical usage:
//
//	in := instrument.New(mgr)
//	load := instrument.WrapArg(in, loadUser,
//		instrument.Performance(instrument.Options{MinDuration: 40 * time.Millisecond}),
//		instrument.Memory(instrument.Options{}),
//	)
//	user, err := load(ctx, id)
package instrument

import (
	"time"

	"github.com/Station-Manager/perflog"
	"github.com/Station-Manager/perflog/snapshot"
)

const defaultAnalysisTimeout = 10 * time.Second

// Record is the outcome of one wrapped call in one category. It is built
// when the call completes, emitted once and discarded.
type Record struct {
	Name          string
	Category      Category
	Success       bool
	Failure       string
	Elapsed       time.Duration
	Message       string
	CorrelationID string
	Timestamp     time.Time
}

// Instrumenter holds what wrappers share: the Manager records go to, the
// snapshot engine, the analyzer and the clock.
type Instrumenter struct {
	mgr             *perflog.Manager
	engine          *snapshot.Engine
	analyzer        Analyzer
	analysisTimeout time.Duration
	now             func() time.Time
	observer        func(Record)
}

// InstrumenterOption customizes an Instrumenter.
type InstrumenterOption func(*Instrumenter)

// WithAnalyzer sets the default analyzer of ErrorAnalysis wrappers.
func WithAnalyzer(a Analyzer) InstrumenterOption {
	return func(in *Instrumenter) { in.analyzer = a }
}

// WithAnalysisTimeout bounds each analyzer call.
func WithAnalysisTimeout(d time.Duration) InstrumenterOption {
	return func(in *Instrumenter) {
		if d > 0 {
			in.analysisTimeout = d
		}
	}
}

// WithClock replaces time.Now for measuring elapsed time.
func WithClock(now func() time.Time) InstrumenterOption {
	return func(in *Instrumenter) {
		if now != nil {
			in.now = now
		}
	}
}

// WithEngine replaces the snapshot engine.
func WithEngine(e *snapshot.Engine) InstrumenterOption {
	return func(in *Instrumenter) {
		if e != nil {
			in.engine = e
		}
	}
}

// WithObserver registers a function that receives every emitted record
// after it was logged.
func WithObserver(fn func(Record)) InstrumenterOption {
	return func(in *Instrumenter) { in.observer = fn }
}

// New returns an Instrumenter emitting through mgr, or through
// perflog.Default() when mgr is nil.
func New(mgr *perflog.Manager, opts ...InstrumenterOption) *Instrumenter {
	if mgr == nil {
		mgr = perflog.Default()
	}
	in := &Instrumenter{
		mgr:             mgr,
		analysisTimeout: defaultAnalysisTimeout,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(in)
	}
	if in.engine == nil {
		in.engine = snapshot.NewEngine()
	}
	return in
}

// Manager returns the Manager records are emitted through.
func (in *Instrumenter) Manager() *perflog.Manager {
	return in.mgr
}
