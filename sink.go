package perflog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/valyala/fastjson"
	"go.uber.org/atomic"
	"gopkg.in/natefinch/lumberjack.v2"
)

const mebibyte = 1024 * 1024

// sink is one output destination. It implements zerolog.LevelWriter, applies
// its own severity filter, renders the record into its format and serializes
// writes with a per-sink lock. Write errors are counted and reported through
// warn; they never reach the emitting caller.
type sink struct {
	name   string
	key    string
	path   string
	spec   SinkSpec
	level  zerolog.Level
	out    io.Writer
	closer io.Closer
	render func([]byte) []byte
	ascii  bool
	warn   func(sink string, err error, failures int64)
	rf     *rotatingFile

	mu     sync.Mutex
	closed bool
	// next receives writes that arrive after the sink was superseded.
	next *sink

	written  atomic.Int64
	failures atomic.Int64
}

func (s *sink) Write(p []byte) (int, error) {
	return s.WriteLevel(zerolog.NoLevel, p)
}

func (s *sink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < s.level {
		return len(p), nil
	}
	data := p
	if s.render != nil {
		data = s.render(p)
	}
	if s.ascii {
		data = toASCII(data)
	}

	s.mu.Lock()
	if s.closed {
		next := s.next
		s.mu.Unlock()
		if next != nil {
			return next.WriteLevel(level, p)
		}
		return len(p), nil
	}
	_, err := s.out.Write(data)
	s.mu.Unlock()

	if err != nil {
		n := s.failures.Inc()
		if s.warn != nil {
			s.warn(s.name, err, n)
		}
		return len(p), nil
	}
	s.written.Inc()
	return len(p), nil
}

// closeInto closes the sink and redirects late writes to next (may be nil).
func (s *sink) closeInto(next *sink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.next = next
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func (s *sink) rotations() int64 {
	if s.rf == nil {
		return 0
	}
	return s.rf.rotations.Load()
}

func newFileSink(cfg Config, spec SinkSpec, warn func(string, error, int64)) (*sink, error) {
	path := cfg.sinkPath(spec)
	s := &sink{
		name:   spec.Name,
		key:    fileSinkKey(cfg, spec),
		path:   path,
		spec:   spec,
		level:  levelOr(spec.Level, zerolog.TraceLevel),
		render: renderer(cfg.Format),
		ascii:  spec.Encoding == "ascii",
		warn:   warn,
	}

	if spec.MaxAgeDays > 0 || spec.Compress {
		if err := checkWritable(path); err != nil {
			return nil, err
		}
		lj := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    megabytes(spec.MaxBytes),
			MaxBackups: spec.BackupCount,
			MaxAge:     spec.MaxAgeDays,
			Compress:   spec.Compress,
			LocalTime:  true,
		}
		s.out, s.closer = lj, lj
		return s, nil
	}

	rf, err := openRotatingFile(path, spec.MaxBytes, spec.BackupCount)
	if err != nil {
		return nil, err
	}
	s.out, s.closer, s.rf = rf, rf, rf
	return s, nil
}

func newConsoleSink(w io.Writer, cfg Config, warn func(string, error, int64)) *sink {
	s := &sink{
		name:  "console",
		key:   fmt.Sprintf("console|%s|%+v", cfg.Format, cfg.Console),
		path:  "stderr",
		spec:  SinkSpec{Name: "console", Level: cfg.Console.Level, Enabled: true},
		level: levelOr(cfg.Console.Level, zerolog.TraceLevel),
		out:   w,
		warn:  warn,
	}
	if cfg.Console.Pretty {
		s.out = zerolog.ConsoleWriter{
			Out:        w,
			NoColor:    true,
			PartsOrder: []string{FieldTimestamp, zerolog.LevelFieldName, FieldLogger, FieldRequestID, zerolog.MessageFieldName},
			FieldsExclude: []string{
				FieldTimestamp, FieldLogger, FieldRequestID, FieldModule, FieldFunction,
				FieldLine, FieldThread, FieldThreadName, FieldProcess,
			},
		}
		return s
	}
	s.render = renderer(cfg.Format)
	return s
}

func fileSinkKey(cfg Config, spec SinkSpec) string {
	return fmt.Sprintf("%s|%s|%+v", cfg.Format, cfg.sinkPath(spec), spec)
}

// checkWritable creates the sink directory and checks the file can be opened
// for appending, so lazily opened writers fail at configuration time.
func checkWritable(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

func megabytes(n int64) int {
	mb := (n + mebibyte - 1) / mebibyte
	if mb < 1 {
		mb = 1
	}
	return int(mb)
}

func renderer(format string) func([]byte) []byte {
	if format == FormatStructured {
		return nil
	}
	return renderLine
}

var parserPool fastjson.ParserPool

// renderLine turns a zerolog JSON record into
// "timestamp - request_id - logger - LEVEL - message\n". Input that is not a
// JSON object is passed through untouched.
func renderLine(p []byte) []byte {
	parser := parserPool.Get()
	defer parserPool.Put(parser)

	v, err := parser.ParseBytes(p)
	if err != nil {
		return p
	}

	out := make([]byte, 0, len(p))
	out = append(out, v.GetStringBytes(FieldTimestamp)...)
	out = append(out, " - "...)
	if rid := v.GetStringBytes(FieldRequestID); len(rid) > 0 {
		out = append(out, rid...)
	} else {
		out = append(out, '-')
	}
	out = append(out, " - "...)
	out = append(out, v.GetStringBytes(FieldLogger)...)
	out = append(out, " - "...)
	out = append(out, severityName(string(v.GetStringBytes(FieldLevel)))...)
	out = append(out, " - "...)
	out = append(out, v.GetStringBytes(FieldMessage)...)
	return append(out, '\n')
}

func toASCII(p []byte) []byte {
	clean := true
	for _, b := range p {
		if b >= utf8.RuneSelf {
			clean = false
			break
		}
	}
	if clean {
		return p
	}
	out := make([]byte, 0, len(p))
	for _, r := range string(p) {
		if r >= utf8.RuneSelf {
			out = append(out, '?')
			continue
		}
		out = append(out, byte(r))
	}
	return out
}
