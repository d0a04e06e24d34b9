package perflog

import "github.com/rs/zerolog"

// Stats is a point-in-time view of a Manager.
type Stats struct {
	State     State
	Format    string
	RootLevel string
	// InFlight counts events started but not yet finished.
	InFlight   int64
	Sinks      []SinkStats
	Loggers    []LoggerStats
	Components map[string]string
}

// SinkStats describes one configured sink and its write counters.
type SinkStats struct {
	Name        string
	Path        string
	Level       string
	MaxBytes    int64
	BackupCount int
	Enabled     bool
	Written     int64
	Rotations   int64
	Failures    int64
}

// LoggerStats describes one configured logger as resolved, with inherited
// level and propagated sinks applied.
type LoggerStats struct {
	Name      string
	Level     string
	Sinks     []string
	Propagate bool
	Enabled   bool
}

// Stats reports the active configuration and per-sink counters. It never
// fails; an unconfigured or torn down Manager reports only its state.
func (m *Manager) Stats() Stats {
	if m == nil {
		return Stats{State: StateUnconfigured}
	}
	stats := Stats{State: m.State()}

	st := m.active.Load()
	if st == nil {
		return stats
	}

	stats.Format = st.cfg.Format
	stats.RootLevel = levelName(st.root.level)
	stats.InFlight = st.inflight.Load()

	for _, name := range sortedKeys(st.cfg.Sinks) {
		spec := st.cfg.Sinks[name]
		ss := SinkStats{
			Name:        name,
			Path:        st.cfg.sinkPath(spec),
			Level:       levelName(levelOr(spec.Level, zerolog.TraceLevel)),
			MaxBytes:    spec.MaxBytes,
			BackupCount: spec.BackupCount,
			Enabled:     spec.Enabled,
		}
		if s, ok := st.sinks[name]; ok {
			ss.Written = s.written.Load()
			ss.Failures = s.failures.Load()
			ss.Rotations = s.rotations()
		}
		stats.Sinks = append(stats.Sinks, ss)
	}
	if s := st.console; s != nil {
		stats.Sinks = append(stats.Sinks, SinkStats{
			Name:     s.name,
			Path:     s.path,
			Level:    levelName(s.level),
			Enabled:  true,
			Written:  s.written.Load(),
			Failures: s.failures.Load(),
		})
	}

	for _, name := range sortedKeys(st.routes) {
		r := st.routes[name]
		stats.Loggers = append(stats.Loggers, LoggerStats{
			Name:      name,
			Level:     levelName(r.level),
			Sinks:     sinkNames(r.sinks),
			Propagate: r.propagate,
			Enabled:   r.enabled,
		})
	}

	stats.Components = make(map[string]string, len(st.components))
	for name, lvl := range st.components {
		stats.Components[name] = levelName(lvl)
	}
	return stats
}

// levelName is the configuration name of a level.
func levelName(l zerolog.Level) string {
	switch l {
	case zerolog.WarnLevel:
		return "warning"
	case zerolog.FatalLevel:
		return "critical"
	case zerolog.Disabled:
		return "disabled"
	}
	return l.String()
}
