package perflog

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Station-Manager/perflog/correlation"
	"github.com/rs/zerolog"
)

var pid = os.Getpid()

// LogEvent provides a fluent interface for structured logging with type-safe field methods.
// It wraps zerolog.Event; every event must be finished with Msg, Msgf or Send.
// An event that is dropped unfinished pins the configuration it was created
// under, so a later Reconfigure or Cleanup waits the full drain timeout for it.
type LogEvent interface {
	Str(key, val string) LogEvent
	Strs(key string, vals []string) LogEvent
	Int(key string, val int) LogEvent
	Int64(key string, val int64) LogEvent
	Uint64(key string, val uint64) LogEvent
	Float64(key string, val float64) LogEvent
	Bool(key string, val bool) LogEvent
	Time(key string, val time.Time) LogEvent
	Dur(key string, val time.Duration) LogEvent
	Err(err error) LogEvent
	AnErr(key string, err error) LogEvent
	Interface(key string, val interface{}) LogEvent
	Fields(fields map[string]interface{}) LogEvent
	// Ctx takes the correlation id from ctx.
	Ctx(ctx context.Context) LogEvent
	// Caller sets the source location explicitly instead of the caller of Msg.
	Caller(module, function string, line int) LogEvent
	Msg(msg string)
	Msgf(format string, v ...interface{})
	Send()
}

// logEvent implements LogEvent. A nil event is a no-op; a non-nil st is
// released exactly once when the event is finished.
type logEvent struct {
	event *zerolog.Event
	st    *state

	requestID string
	module    string
	function  string
	line      int
	hasCaller bool
	done      bool
}

func noopEvent() LogEvent {
	return &logEvent{}
}

func newLogEvent(e *zerolog.Event, st *state, name string) LogEvent {
	if e == nil {
		if st != nil {
			st.release()
		}
		return noopEvent()
	}
	gid := goroutineID()
	e.Str(FieldTimestamp, time.Now().Format(TimestampLayout)).
		Str(FieldLogger, name).
		Uint64(FieldThread, gid).
		Str(FieldThreadName, "goroutine-"+strconv.FormatUint(gid, 10)).
		Int(FieldProcess, pid)
	return &logEvent{event: e, st: st}
}

func (e *logEvent) Str(key, val string) LogEvent {
	if e.event != nil {
		e.event.Str(key, val)
	}
	return e
}

func (e *logEvent) Strs(key string, vals []string) LogEvent {
	if e.event != nil {
		e.event.Strs(key, vals)
	}
	return e
}

func (e *logEvent) Int(key string, val int) LogEvent {
	if e.event != nil {
		e.event.Int(key, val)
	}
	return e
}

func (e *logEvent) Int64(key string, val int64) LogEvent {
	if e.event != nil {
		e.event.Int64(key, val)
	}
	return e
}

func (e *logEvent) Uint64(key string, val uint64) LogEvent {
	if e.event != nil {
		e.event.Uint64(key, val)
	}
	return e
}

func (e *logEvent) Float64(key string, val float64) LogEvent {
	if e.event != nil {
		e.event.Float64(key, val)
	}
	return e
}

func (e *logEvent) Bool(key string, val bool) LogEvent {
	if e.event != nil {
		e.event.Bool(key, val)
	}
	return e
}

func (e *logEvent) Time(key string, val time.Time) LogEvent {
	if e.event != nil {
		e.event.Time(key, val)
	}
	return e
}

func (e *logEvent) Dur(key string, val time.Duration) LogEvent {
	if e.event != nil {
		e.event.Dur(key, val)
	}
	return e
}

func (e *logEvent) Err(err error) LogEvent {
	if e.event != nil {
		e.event.Err(err)
		if err != nil {
			chain, ops, root, rootOp := buildErrorChain(err)
			if len(chain) > 0 {
				// include array and joined string for readability
				e.event.Strs("error_chain", chain)
				e.event.Str("error_root", root)
				e.event.Str("error_history", joinChain(chain))
				e.event.Strs("error_ops", ops)
				if rootOp != emptyString {
					e.event.Str("error_root_op", rootOp)
				}
			}
		}
	}
	return e
}

func (e *logEvent) AnErr(key string, err error) LogEvent {
	if e.event != nil {
		e.event.AnErr(key, err)
		if err != nil {
			chain, _, root, _ := buildErrorChain(err)
			if len(chain) > 1 {
				e.event.Str(key+"_root", root)
				e.event.Str(key+"_history", joinChain(chain))
			}
		}
	}
	return e
}

func (e *logEvent) Interface(key string, val interface{}) LogEvent {
	if e.event != nil {
		e.event.Interface(key, val)
	}
	return e
}

func (e *logEvent) Fields(fields map[string]interface{}) LogEvent {
	if e.event != nil && len(fields) > 0 {
		e.event.Fields(fields)
	}
	return e
}

func (e *logEvent) Ctx(ctx context.Context) LogEvent {
	if id, ok := correlation.Get(ctx); ok {
		e.requestID = id
	}
	return e
}

func (e *logEvent) Caller(module, function string, line int) LogEvent {
	e.module, e.function, e.line = module, function, line
	e.hasCaller = true
	return e
}

func (e *logEvent) Msg(msg string) {
	if e.finish(2) {
		e.event.Msg(msg)
		e.release()
	}
}

func (e *logEvent) Msgf(format string, v ...interface{}) {
	if e.finish(2) {
		e.event.Msg(fmt.Sprintf(format, v...))
		e.release()
	}
}

func (e *logEvent) Send() {
	if e.finish(2) {
		e.event.Send()
		e.release()
	}
}

// finish stamps the request id and source location and reports whether the
// event still has to be written. skip counts the frames above finish up to
// the user's call site.
func (e *logEvent) finish(skip int) bool {
	if e.event == nil || e.done {
		return false
	}
	e.done = true
	if !e.hasCaller {
		e.module, e.function, e.line = callerInfo(skip)
	}
	e.event.Str(FieldRequestID, e.requestID).
		Str(FieldModule, e.module).
		Str(FieldFunction, e.function).
		Int(FieldLine, e.line)
	return true
}

func (e *logEvent) release() {
	if e.st != nil {
		e.st.release()
		e.st = nil
	}
}
