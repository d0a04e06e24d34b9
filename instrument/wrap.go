package instrument

import (
	"context"
	"fmt"
	"path"
	"reflect"
	"runtime"
	"time"

	"github.com/Station-Manager/perflog"
	"github.com/Station-Manager/perflog/correlation"
	"github.com/Station-Manager/perflog/snapshot"
)

// Wrap instruments fn with specs, the first spec being the outermost
// wrapper. Without specs it measures performance with default options.
func Wrap(in *Instrumenter, fn func(context.Context) error, specs ...Spec) func(context.Context) error {
	if in == nil || fn == nil {
		return fn
	}
	return in.chain(siteOf(fn), specs, nil, fn)
}

// WrapValue instruments a function returning a value. See Wrap.
func WrapValue[T any](in *Instrumenter, fn func(context.Context) (T, error), specs ...Spec) func(context.Context) (T, error) {
	if in == nil || fn == nil {
		return fn
	}
	site := siteOf(fn)
	return func(ctx context.Context) (T, error) {
		var out T
		err := in.chain(site, specs, nil, func(ctx context.Context) error {
			var err error
			out, err = fn(ctx)
			return err
		})(ctx)
		return out, err
	}
}

// WrapArg instruments a function of one argument. The argument is rendered
// into performance records with IncludeArguments. See Wrap.
func WrapArg[A, T any](in *Instrumenter, fn func(context.Context, A) (T, error), specs ...Spec) func(context.Context, A) (T, error) {
	if in == nil || fn == nil {
		return fn
	}
	site := siteOf(fn)
	return func(ctx context.Context, arg A) (T, error) {
		var out T
		err := in.chain(site, specs, []interface{}{arg}, func(ctx context.Context) error {
			var err error
			out, err = fn(ctx, arg)
			return err
		})(ctx)
		return out, err
	}
}

func (in *Instrumenter) chain(site callSite, specs []Spec, args []interface{}, call func(context.Context) error) func(context.Context) error {
	if len(specs) == 0 {
		return in.wrap(Performance(Options{}), site, call, args)
	}
	for i := len(specs) - 1; i >= 0; i-- {
		call = in.wrap(specs[i], site, call, args)
	}
	return call
}

// callSite identifies the wrapped function in records.
type callSite struct {
	name     string
	module   string
	function string
	line     int
}

func siteOf(fn interface{}) callSite {
	pc := reflect.ValueOf(fn).Pointer()
	f := runtime.FuncForPC(pc)
	if f == nil {
		return callSite{name: "unknown"}
	}
	full := f.Name()
	module, function := perflog.SplitFuncName(full)
	_, line := f.FileLine(f.Entry())
	return callSite{name: path.Base(full), module: module, function: function, line: line}
}

// baseline holds the readings taken before a call.
type baseline struct {
	start  time.Time
	res    snapshot.Resource
	mem    snapshot.Memory
	tracer *snapshot.Tracer
}

// outcome is how a call ended.
type outcome struct {
	err       error
	panicked  bool
	recovered interface{}
}

func (o outcome) failed() bool {
	return o.panicked || o.err != nil
}

func (in *Instrumenter) wrap(spec Spec, site callSite, call func(context.Context) error, args []interface{}) func(context.Context) error {
	spec.Options = spec.Options.withDefaults()
	if spec.Options.Name != "" {
		site.name = spec.Options.Name
	}
	return func(ctx context.Context) error {
		ctx, rid := correlation.Ensure(ctx)

		p := in.begin(spec)
		p.start = in.now()
		out := invoke(ctx, call)
		in.complete(ctx, spec, site, rid, args, p, out)

		if out.panicked {
			panic(out.recovered)
		}
		return out.err
	}
}

func invoke(ctx context.Context, call func(context.Context) error) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			out.panicked = true
			out.recovered = r
		}
	}()
	out.err = call(ctx)
	return out
}

func (in *Instrumenter) begin(spec Spec) (p baseline) {
	defer func() { _ = recover() }()

	switch spec.Category {
	case CategoryMemory:
		p.mem = in.engine.CaptureMemory()
		if spec.Options.TraceAllocations {
			p.tracer = snapshot.StartTrace()
		}
	case CategoryResources:
		p.res = in.engine.CaptureResource(resourceOptions(spec.Options))
	}
	return p
}

// complete builds and emits the record of one call. Nothing it does reaches
// the caller.
func (in *Instrumenter) complete(ctx context.Context, spec Spec, site callSite, rid string, args []interface{}, p baseline, out outcome) {
	end := in.now()

	var traced *snapshot.Traced
	if p.tracer != nil {
		t := p.tracer.Stop()
		traced = &t
	}

	defer func() { _ = recover() }()

	elapsed := end.Sub(p.start)
	if elapsed < 0 {
		elapsed = 0
	}
	if !out.failed() && elapsed < spec.Options.MinDuration {
		return
	}

	rec := Record{
		Name:          site.name,
		Category:      spec.Category,
		Success:       !out.failed(),
		Elapsed:       elapsed,
		CorrelationID: rid,
		Timestamp:     end,
	}
	if out.failed() {
		rec.Failure = failureSummary(out)
	}

	switch spec.Category {
	case CategoryPerformance:
		rec.Message = performanceMessage(rec, spec.Options, args, kwargsFrom(ctx))
	case CategoryMemory:
		d := snapshot.DiffMemory(p.mem, in.engine.CaptureMemory())
		rec.Message = memoryMessage(rec, d, traced)
	case CategoryResources:
		d := snapshot.DiffResource(p.res, in.engine.CaptureResource(resourceOptions(spec.Options)))
		rec.Message = resourceMessage(rec, d, spec.Options)
	case CategoryErrorAnalysis:
		if !out.failed() {
			return
		}
		a := spec.Analyzer
		if a == nil {
			a = in.analyzer
		}
		if a == nil {
			return
		}
		rec.Message = analysisMessage(rec, in.analyze(ctx, a, rec, args))
	}

	in.emit(ctx, spec, site, rec)
}

func (in *Instrumenter) emit(ctx context.Context, spec Spec, site callSite, rec Record) {
	level := spec.Options.Level
	if !rec.Success {
		level = "error"
	}

	e := in.mgr.Logger(spec.Category.logger()).Log(level).
		Ctx(ctx).
		Caller(site.module, site.function, site.line).
		Str("category", spec.Category.String()).
		Str("status", status(rec)).
		Float64("elapsed_s", rec.Elapsed.Seconds())
	if rec.Failure != "" {
		e.Str("failure", rec.Failure)
	}
	e.Msg(rec.Message)

	if in.observer != nil {
		in.observer(rec)
	}
}

func (in *Instrumenter) analyze(ctx context.Context, a Analyzer, rec Record, args []interface{}) string {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), in.analysisTimeout)
	defer cancel()

	prompt := fmt.Sprintf("Function: %s\nFailure: %s\nElapsed: %.4fs", rec.Name, rec.Failure, rec.Elapsed.Seconds())
	if len(args) > 0 {
		prompt += "\nArgs: " + truncate(reprArgs(args), defaultMaxArgLength)
	}

	type answer struct {
		cause string
		err   error
	}
	ch := make(chan answer, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- answer{err: fmt.Errorf("analyzer panic: %v", r)}
			}
		}()
		cause, err := a.Analyze(actx, prompt)
		ch <- answer{cause: cause, err: err}
	}()

	select {
	case ans := <-ch:
		if ans.err != nil || ans.cause == "" {
			return snapshot.Unavailable
		}
		return ans.cause
	case <-actx.Done():
		return snapshot.Unavailable
	}
}

func resourceOptions(o Options) snapshot.Options {
	return snapshot.Options{IO: o.IncludeIO, Network: o.IncludeNetwork}
}

// failureSummary is "<type>: <message>" for errors and "panic: <value>" for
// panics, truncated.
func failureSummary(out outcome) string {
	var s string
	switch {
	case out.panicked:
		s = fmt.Sprintf("panic: %v", out.recovered)
	default:
		s = fmt.Sprintf("%T: %s", out.err, out.err.Error())
	}
	return truncate(s, maxFailureLength)
}
