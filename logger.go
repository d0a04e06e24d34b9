package perflog

import (
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

// Logger is a handle on a logical logger. It resolves against the Manager's
// active configuration at every emission, so a handle obtained before
// Reconfigure keeps working after it.
type Logger interface {
	Name() string
	// Enabled reports whether a record at the named severity would be emitted.
	Enabled(level string) bool
	DebugWith() LogEvent
	InfoWith() LogEvent
	WarnWith() LogEvent
	ErrorWith() LogEvent
	// CriticalWith emits at critical severity. It never exits the process.
	CriticalWith() LogEvent
	// Log emits at the named severity; an unknown name yields a no-op event.
	Log(level string) LogEvent
}

// Logger returns the logical logger called name. Names are dot-separated;
// an unconfigured name uses its nearest configured ancestor, or the root
// logger. The empty name is the root logger.
func (m *Manager) Logger(name string) Logger {
	if name == emptyString {
		name = rootLoggerName
	}
	return &managedLogger{m: m, name: name}
}

type managedLogger struct {
	m    *Manager
	name string
}

func (l *managedLogger) Name() string { return l.name }

func (l *managedLogger) Enabled(level string) bool {
	lvl, err := parseLevel(level)
	if err != nil {
		return false
	}
	return l.m.enabled(l.name, lvl)
}

func (l *managedLogger) DebugWith() LogEvent    { return l.m.event(l.name, zerolog.DebugLevel) }
func (l *managedLogger) InfoWith() LogEvent     { return l.m.event(l.name, zerolog.InfoLevel) }
func (l *managedLogger) WarnWith() LogEvent     { return l.m.event(l.name, zerolog.WarnLevel) }
func (l *managedLogger) ErrorWith() LogEvent    { return l.m.event(l.name, zerolog.ErrorLevel) }
func (l *managedLogger) CriticalWith() LogEvent { return l.m.event(l.name, zerolog.FatalLevel) }

func (l *managedLogger) Log(level string) LogEvent {
	lvl, err := parseLevel(level)
	if err != nil {
		return noopEvent()
	}
	return l.m.event(l.name, lvl)
}

var defaultManager atomic.Pointer[Manager]

// Default returns the process-wide Manager, creating an unconfigured one on
// first use.
func Default() *Manager {
	if m := defaultManager.Load(); m != nil {
		return m
	}
	defaultManager.CompareAndSwap(nil, NewManager())
	return defaultManager.Load()
}

// SetDefault replaces the process-wide Manager.
func SetDefault(m *Manager) {
	defaultManager.Store(m)
}
