// Package autoinstrument retrofits instrumentation onto HTTP route handlers.
//
// A Patcher sits between the application and its router. While it is
// enabled, every handler registered through it is wrapped with the
// performance, memory, resource and error-analysis wrappers before it reaches
// the router. Routes registered while the Patcher is disabled, including
// those registered before Enable, are passed through untouched: enable the
// Patcher before registering the routes it should monitor.
package autoinstrument

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Station-Manager/perflog/correlation"
	"github.com/Station-Manager/perflog/instrument"
	"github.com/gorilla/mux"
	"go.uber.org/atomic"
)

// Registrar is the route registration entry point of a router.
// *http.ServeMux satisfies it; MuxRegistrar adapts a gorilla/mux Router.
type Registrar interface {
	Handle(pattern string, h http.Handler)
}

// MuxRegistrar adapts a *mux.Router to Registrar.
type MuxRegistrar struct {
	Router *mux.Router
}

func (r MuxRegistrar) Handle(pattern string, h http.Handler) {
	r.Router.Handle(pattern, h)
}

// StatusError is the failure recorded for a response with a 5xx status.
type StatusError struct {
	Code int
}

func (e StatusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.Code)
}

// Patcher wraps handlers registered through it while enabled.
type Patcher struct {
	in      *instrument.Instrumenter
	reg     Registrar
	opts    instrument.Options
	enabled atomic.Bool
}

// Option customizes a Patcher.
type Option func(*Patcher)

// WithOptions sets the wrapper options applied to every route. The record
// name is always "HTTP <pattern>".
func WithOptions(o instrument.Options) Option {
	return func(p *Patcher) { p.opts = o }
}

// New returns a disabled Patcher registering routes on reg.
func New(in *instrument.Instrumenter, reg Registrar, opts ...Option) *Patcher {
	p := &Patcher{in: in, reg: reg}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Enable starts wrapping handlers registered from now on. It reports whether
// the Patcher was disabled before; enabling twice is a no-op.
func (p *Patcher) Enable() bool {
	return p.enabled.CompareAndSwap(false, true)
}

// Disable stops wrapping newly registered handlers. Routes already wrapped
// stay instrumented.
func (p *Patcher) Disable() {
	p.enabled.Store(false)
}

func (p *Patcher) Enabled() bool {
	return p.enabled.Load()
}

// Handle registers h for pattern, instrumented when the Patcher is enabled.
func (p *Patcher) Handle(pattern string, h http.Handler) {
	if p.Enabled() {
		h = p.Instrument(pattern, h)
	}
	p.reg.Handle(pattern, h)
}

// HandleFunc registers f for pattern. See Handle.
func (p *Patcher) HandleFunc(pattern string, f func(http.ResponseWriter, *http.Request)) {
	p.Handle(pattern, http.HandlerFunc(f))
}

// Instrument wraps h regardless of the Patcher's state. A handler that is
// already instrumented is returned as is.
func (p *Patcher) Instrument(pattern string, h http.Handler) http.Handler {
	if _, ok := h.(*handler); ok || p.in == nil {
		return h
	}

	opts := p.opts
	opts.Name = "HTTP " + pattern

	ih := &handler{next: h}
	ih.serve = instrument.WrapArg(p.in, ih.call,
		instrument.Performance(opts),
		instrument.Memory(opts),
		instrument.Resources(opts),
		instrument.ErrorAnalysis(nil, opts),
	)
	return ih
}

// exchange is one request/response pair passed through the wrappers.
type exchange struct {
	w *statusRecorder
	r *http.Request
}

func (x exchange) String() string {
	return x.r.Method + " " + x.r.URL.Path
}

type handler struct {
	next  http.Handler
	serve func(context.Context, exchange) (int, error)
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, id := correlation.FromRequest(r)
	w.Header().Set(correlation.Header, id)

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	_, _ = h.serve(ctx, exchange{w: rec, r: r.WithContext(ctx)})
}

func (h *handler) call(ctx context.Context, x exchange) (int, error) {
	h.next.ServeHTTP(x.w, x.r)
	if x.w.status >= http.StatusInternalServerError {
		return x.w.status, StatusError{Code: x.w.status}
	}
	return x.w.status, nil
}

// statusRecorder remembers the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	s.wroteHeader = true
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}
