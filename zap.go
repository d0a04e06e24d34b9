package perflog

import (
	"github.com/rs/zerolog"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Zap returns a *zap.Logger for a third-party component that logs through
// zap. Its records are routed like those of Logger(component) and filtered
// by the component's level from Config.Components when one is set.
func (m *Manager) Zap(component string) *zap.Logger {
	if component == emptyString {
		component = rootLoggerName
	}
	return zap.New(&zapCore{m: m, component: component}, zap.AddCaller())
}

type zapCore struct {
	m         *Manager
	component string
	fields    []zapcore.Field
}

func (c *zapCore) Enabled(l zapcore.Level) bool {
	return c.m.enabled(c.component, fromZapLevel(l))
}

func (c *zapCore) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = make([]zapcore.Field, 0, len(c.fields)+len(fields))
	clone.fields = append(clone.fields, c.fields...)
	clone.fields = append(clone.fields, fields...)
	return &clone
}

func (c *zapCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *zapCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	e := c.m.event(c.component, fromZapLevel(ent.Level))
	if ent.Caller.Defined {
		module, function := SplitFuncName(ent.Caller.Function)
		e.Caller(module, function, ent.Caller.Line)
	}
	e.Fields(enc.Fields).Msg(ent.Message)
	return nil
}

func (c *zapCore) Sync() error { return nil }

func fromZapLevel(l zapcore.Level) zerolog.Level {
	switch l {
	case zapcore.DebugLevel:
		return zerolog.DebugLevel
	case zapcore.InfoLevel:
		return zerolog.InfoLevel
	case zapcore.WarnLevel:
		return zerolog.WarnLevel
	case zapcore.ErrorLevel:
		return zerolog.ErrorLevel
	case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return zerolog.FatalLevel
	}
	return zerolog.TraceLevel
}
