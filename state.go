package perflog

import (
	"io"
	"strings"

	"github.com/Station-Manager/errors"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

const rootLoggerName = "root"

// state is one immutable, fully built logging configuration. Emitters pin a
// state for the lifetime of an event; Reconfigure swaps in a new state and
// retires the old one once its pinned events have finished.
type state struct {
	cfg        Config
	sinks      map[string]*sink
	console    *sink
	root       *route
	routes     map[string]*route
	components map[string]zerolog.Level

	inflight atomic.Int64
}

// route is the resolved view of one logical logger.
type route struct {
	name      string
	level     zerolog.Level
	enabled   bool
	propagate bool
	sinks     []*sink
	logger    zerolog.Logger
}

type warnFunc func(sink string, err error, failures int64)

// build opens the writers of cfg and resolves every configured logger. Sinks
// whose specification did not change are taken over from prev instead of
// being reopened. On error every writer opened by this call is closed again
// and prev is left untouched.
func build(cfg Config, prev *state, console io.Writer, warn warnFunc) (*state, error) {
	const op errors.Op = "perflog.build"

	st := &state{
		cfg:        cfg,
		sinks:      make(map[string]*sink, len(cfg.Sinks)),
		routes:     make(map[string]*route, len(cfg.Loggers)),
		components: make(map[string]zerolog.Level, len(cfg.Components)),
	}

	var opened []*sink
	fail := func(err error, name string) (*state, error) {
		for _, s := range opened {
			_ = s.closeInto(nil)
		}
		return nil, errors.New(op).Err(err).Msg(errMsgSinkOpen + " " + name + ": " + err.Error())
	}

	for _, name := range sortedKeys(cfg.Sinks) {
		spec := cfg.Sinks[name]
		if !spec.Enabled {
			continue
		}
		if prev != nil {
			if old, ok := prev.sinks[name]; ok && old.key == fileSinkKey(cfg, spec) {
				st.sinks[name] = old
				continue
			}
		}
		s, err := newFileSink(cfg, spec, warn)
		if err != nil {
			return fail(err, name)
		}
		opened = append(opened, s)
		st.sinks[name] = s
	}

	if cfg.Console.Enabled {
		s := newConsoleSink(console, cfg, warn)
		if prev != nil && prev.console != nil && prev.console.key == s.key {
			s = prev.console
		}
		st.console = s
	}

	rootSinks := make([]*sink, 0, len(cfg.RootSinks)+1)
	for _, name := range cfg.RootSinks {
		rootSinks = appendSink(rootSinks, st.sinks[name])
	}
	rootSinks = appendSink(rootSinks, st.console)
	st.root = newRoute(rootLoggerName, levelOr(cfg.RootLevel, zerolog.InfoLevel), true, true, rootSinks)

	for _, name := range sortedKeys(cfg.Loggers) {
		st.resolveSpec(name)
	}

	for name, lvl := range cfg.Components {
		st.components[name] = levelOr(lvl, st.root.level)
	}
	return st, nil
}

// resolveSpec builds the route of a configured logger, building its
// configured ancestors first.
func (st *state) resolveSpec(name string) *route {
	if r, ok := st.routes[name]; ok {
		return r
	}
	spec := st.cfg.Loggers[name]

	parent := st.root
	for p := parentName(name); p != emptyString; p = parentName(p) {
		if _, ok := st.cfg.Loggers[p]; ok {
			parent = st.resolveSpec(p)
			break
		}
	}

	sinks := make([]*sink, 0, len(spec.Sinks))
	for _, s := range spec.Sinks {
		sinks = appendSink(sinks, st.sinks[s])
	}
	if spec.Propagate {
		for _, s := range parent.sinks {
			sinks = appendSink(sinks, s)
		}
	}

	r := newRoute(name, levelOr(spec.Level, parent.level), spec.Enabled, spec.Propagate, sinks)
	st.routes[name] = r
	return r
}

// resolve returns the route of the nearest configured logger at or above name.
func (st *state) resolve(name string) *route {
	for n := name; n != emptyString; n = parentName(n) {
		if r, ok := st.routes[n]; ok {
			return r
		}
	}
	return st.root
}

// levelFor returns the minimum severity for name, honouring component
// overrides.
func (st *state) levelFor(name string, r *route) zerolog.Level {
	if lvl, ok := st.components[name]; ok {
		return lvl
	}
	return r.level
}

func (st *state) acquire() {
	st.inflight.Inc()
}

func (st *state) release() {
	st.inflight.Dec()
}

func newRoute(name string, level zerolog.Level, enabled, propagate bool, sinks []*sink) *route {
	writers := make([]io.Writer, len(sinks))
	for i, s := range sinks {
		writers[i] = s
	}
	return &route{
		name:      name,
		level:     level,
		enabled:   enabled,
		propagate: propagate,
		sinks:     sinks,
		logger:    zerolog.New(zerolog.MultiLevelWriter(writers...)),
	}
}

func appendSink(list []*sink, s *sink) []*sink {
	if s == nil {
		return list
	}
	for _, have := range list {
		if have == s {
			return list
		}
	}
	return append(list, s)
}

func parentName(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return emptyString
	}
	return name[:i]
}

func sinkNames(sinks []*sink) []string {
	names := make([]string, len(sinks))
	for i, s := range sinks {
		names[i] = s.name
	}
	return names
}
