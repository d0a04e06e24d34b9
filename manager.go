package perflog

import (
	stderrs "errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/Station-Manager/errors"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

// State is the lifecycle state of a Manager.
type State int32

const (
	StateUnconfigured State = iota
	StateConfigured
	StateReconfiguring
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateConfigured:
		return "configured"
	case StateReconfiguring:
		return "reconfiguring"
	case StateTornDown:
		return "torn_down"
	}
	return "unknown"
}

var (
	// ErrNotConfigured is returned by Reconfigure before Setup.
	ErrNotConfigured = stderrs.New("logging manager is not configured")
	// ErrTornDown is returned by Setup and Reconfigure after Cleanup.
	ErrTornDown = stderrs.New("logging manager has been torn down")
)

// sinkWarnEvery rate-limits sink failure warnings: the first failure and
// every sinkWarnEvery-th after it are reported.
const sinkWarnEvery = 100

// Manager owns the logging configuration and every sink writer. It is safe
// for concurrent use; emission never blocks on Setup, Reconfigure or Cleanup
// beyond the short state swap.
type Manager struct {
	// lifecycle serializes Setup, Reconfigure and Cleanup.
	lifecycle sync.Mutex
	// mu is held for reading while an emitter pins the active state and for
	// writing while the active state is swapped.
	mu     sync.RWMutex
	active atomic.Pointer[state]
	status atomic.Int32

	console io.Writer
	warnLog zerolog.Logger
}

// Option customizes a Manager.
type Option func(*Manager)

// WithConsoleWriter replaces stderr as the console sink destination.
func WithConsoleWriter(w io.Writer) Option {
	return func(m *Manager) {
		if w != nil {
			m.console = w
		}
	}
}

// WithWarningWriter replaces stderr as the destination of the manager's own
// warnings (double Setup, drain timeouts, sink write failures).
func WithWarningWriter(w io.Writer) Option {
	return func(m *Manager) {
		if w != nil {
			m.warnLog = newWarnLogger(w)
		}
	}
}

// NewManager returns an unconfigured Manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		console: os.Stderr,
		warnLog: newWarnLogger(os.Stderr),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func newWarnLogger(w io.Writer) zerolog.Logger {
	out := zerolog.ConsoleWriter{Out: zerolog.SyncWriter(w), NoColor: true}
	return zerolog.New(out).With().Timestamp().Str(FieldLogger, "perflog").Logger()
}

// State reports the current lifecycle state.
func (m *Manager) State() State {
	if m == nil {
		return StateUnconfigured
	}
	return State(m.status.Load())
}

// Setup validates cfg, opens every enabled sink and activates the
// configuration. Calling Setup on a configured Manager logs a warning and
// changes nothing; Reconfigure is the way to change a running configuration.
func (m *Manager) Setup(cfg Config) error {
	const op errors.Op = "perflog.Manager.Setup"
	if m == nil {
		return errors.New(op).Msg(errMsgNilManager)
	}

	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	switch m.State() {
	case StateConfigured, StateReconfiguring:
		m.warnLog.Warn().Msg(warnMsgAlreadySetup)
		return nil
	case StateTornDown:
		return ErrTornDown
	}

	c := cfg.clone()
	if err := validateConfig(&c); err != nil {
		return err
	}
	st, err := build(c, nil, m.console, m.sinkWarning)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.active.Store(st)
	m.mu.Unlock()
	m.status.Store(int32(StateConfigured))
	return nil
}

// Reconfigure atomically replaces the active configuration. The new writer
// set is built first; if that fails the previous configuration stays active
// and the error is returned. Events already started against the previous
// configuration complete before its superseded writers are closed, bounded
// by Config.DrainTimeoutMS.
func (m *Manager) Reconfigure(cfg Config) error {
	const op errors.Op = "perflog.Manager.Reconfigure"
	if m == nil {
		return errors.New(op).Msg(errMsgNilManager)
	}

	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	switch m.State() {
	case StateUnconfigured:
		return ErrNotConfigured
	case StateTornDown:
		return ErrTornDown
	}

	c := cfg.clone()
	if err := validateConfig(&c); err != nil {
		return err
	}

	m.status.Store(int32(StateReconfiguring))
	defer m.status.Store(int32(StateConfigured))

	old := m.active.Load()
	st, err := build(c, old, m.console, m.sinkWarning)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.active.Store(st)
	m.mu.Unlock()

	if err = m.retire(old, st); err != nil {
		m.warnLog.Warn().Err(err).Msg(errMsgSinkClose)
	}
	return nil
}

// Cleanup flushes and closes every writer. It is idempotent; after it the
// Manager drops all records.
func (m *Manager) Cleanup() error {
	const op errors.Op = "perflog.Manager.Cleanup"
	if m == nil {
		return nil
	}

	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if m.State() == StateTornDown {
		return nil
	}

	m.mu.Lock()
	old := m.active.Load()
	m.active.Store(nil)
	m.mu.Unlock()
	m.status.Store(int32(StateTornDown))

	if err := m.retire(old, nil); err != nil {
		return errors.New(op).Err(err).Msg(errMsgSinkClose)
	}
	return nil
}

// retire waits for events pinned to old and closes the writers next does not
// carry over. Late writes to a closed writer go to its same-named successor.
func (m *Manager) retire(old, next *state) error {
	if old == nil {
		return nil
	}
	m.drain(old)

	var errs []error
	for name, s := range old.sinks {
		var succ *sink
		if next != nil {
			succ = next.sinks[name]
		}
		if succ == s {
			continue
		}
		if err := s.closeInto(succ); err != nil {
			errs = append(errs, err)
		}
	}
	if old.console != nil {
		var succ *sink
		if next != nil {
			succ = next.console
		}
		if succ != old.console {
			_ = old.console.closeInto(succ)
		}
	}
	return stderrs.Join(errs...)
}

// drainPoll is how often drain rechecks the in-flight count.
const drainPoll = time.Millisecond

// drain waits for the events pinned to st, giving up after the configured
// drain timeout. An event that is never finished keeps st pinned until the
// timeout; nothing keeps waiting for it afterwards.
func (m *Manager) drain(st *state) {
	timeout := time.Duration(st.cfg.DrainTimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultDrainTimeoutMS * time.Millisecond
	}
	if st.inflight.Load() == 0 {
		return
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(drainPoll)
	defer tick.Stop()

	for {
		select {
		case <-tick.C:
			if st.inflight.Load() == 0 {
				return
			}
		case <-deadline.C:
			m.warnLog.Warn().
				Int64("in_flight", st.inflight.Load()).
				Dur("timeout", timeout).
				Msg(warnMsgDrainTimeout)
			return
		}
	}
}

func (m *Manager) sinkWarning(name string, err error, failures int64) {
	if failures != 1 && failures%sinkWarnEvery != 0 {
		return
	}
	m.warnLog.Warn().
		Err(err).
		Str("sink", name).
		Int64("failures", failures).
		Msg(warnMsgSinkWriteFail)
}

// event pins the active state and starts an event for logger name at level.
// It returns a no-op event when the record would be dropped anyway.
func (m *Manager) event(name string, level zerolog.Level) LogEvent {
	if m == nil || level == zerolog.Disabled || level == zerolog.NoLevel {
		return noopEvent()
	}

	m.mu.RLock()
	st := m.active.Load()
	if st == nil {
		m.mu.RUnlock()
		return noopEvent()
	}
	r := st.resolve(name)
	if !r.enabled || len(r.sinks) == 0 || level < st.levelFor(name, r) {
		m.mu.RUnlock()
		return noopEvent()
	}
	st.acquire()
	m.mu.RUnlock()

	return newLogEvent(r.logger.WithLevel(level), st, name)
}

// enabled reports whether a record for name at level would be emitted.
func (m *Manager) enabled(name string, level zerolog.Level) bool {
	if m == nil || level == zerolog.Disabled {
		return false
	}
	st := m.active.Load()
	if st == nil {
		return false
	}
	r := st.resolve(name)
	return r.enabled && len(r.sinks) > 0 && level >= st.levelFor(name, r)
}
