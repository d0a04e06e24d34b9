package instrument

import (
	"context"
	"time"

	"github.com/Station-Manager/perflog"
)

// Category selects what a wrapper measures.
type Category int

const (
	CategoryPerformance Category = iota
	CategoryMemory
	CategoryResources
	CategoryErrorAnalysis
)

func (c Category) String() string {
	switch c {
	case CategoryPerformance:
		return "performance"
	case CategoryMemory:
		return "memory"
	case CategoryResources:
		return "resources"
	case CategoryErrorAnalysis:
		return "error_analysis"
	}
	return "unknown"
}

// logger is the logical logger records of the category are emitted under.
func (c Category) logger() string {
	switch c {
	case CategoryMemory:
		return perflog.LoggerMemory
	case CategoryResources:
		return perflog.LoggerResources
	case CategoryErrorAnalysis:
		return perflog.LoggerErrors
	}
	return perflog.LoggerPerformance
}

const (
	defaultLevel        = "info"
	defaultMaxArgLength = 200
	maxFailureLength    = 200
)

// Options configures one wrapper.
type Options struct {
	// MinDuration suppresses successful records of calls faster than it.
	// Failures are always recorded.
	MinDuration time.Duration
	// Level is the severity of successful records; failures use error. An
	// empty or unknown name means info.
	Level string
	// IncludeArguments adds the call's arguments to performance records.
	IncludeArguments bool
	// IncludeIO and IncludeNetwork add disk and network deltas to resource
	// records.
	IncludeIO      bool
	IncludeNetwork bool
	// TraceAllocations adds Go heap tracing to memory records.
	TraceAllocations bool
	// Name replaces the qualified function name in records.
	Name string
	// MaxArgLength caps the rendered Args and Kwargs, each.
	MaxArgLength int
}

func (o Options) withDefaults() Options {
	if !perflog.ValidLevel(o.Level) {
		o.Level = defaultLevel
	}
	if o.MaxArgLength <= 0 {
		o.MaxArgLength = defaultMaxArgLength
	}
	if o.MinDuration < 0 {
		o.MinDuration = 0
	}
	return o
}

// Spec is one wrapper: a category and its options.
type Spec struct {
	Category Category
	Options  Options
	// Analyzer overrides the Instrumenter's analyzer for error analysis.
	Analyzer Analyzer
}

func Performance(opts Options) Spec {
	return Spec{Category: CategoryPerformance, Options: opts}
}

func Memory(opts Options) Spec {
	return Spec{Category: CategoryMemory, Options: opts}
}

func Resources(opts Options) Spec {
	return Spec{Category: CategoryResources, Options: opts}
}

// ErrorAnalysis asks a (nil for the Instrumenter's) analyzer for a probable
// cause whenever the wrapped call fails.
func ErrorAnalysis(a Analyzer, opts Options) Spec {
	return Spec{Category: CategoryErrorAnalysis, Options: opts, Analyzer: a}
}

// Analyzer turns a failure description into a probable-cause text.
type Analyzer interface {
	Analyze(ctx context.Context, prompt string) (string, error)
}

// AnalyzerFunc adapts a function to Analyzer.
type AnalyzerFunc func(ctx context.Context, prompt string) (string, error)

func (f AnalyzerFunc) Analyze(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

type kwargsKey struct{}

// WithKwargs attaches named arguments to ctx. Wrappers with
// IncludeArguments render them as the Kwargs of their records.
func WithKwargs(ctx context.Context, kwargs map[string]interface{}) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, kwargsKey{}, kwargs)
}

func kwargsFrom(ctx context.Context) map[string]interface{} {
	kw, _ := ctx.Value(kwargsKey{}).(map[string]interface{})
	return kw
}
