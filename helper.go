package perflog

import (
	"bytes"
	stderrs "errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"

	smerrors "github.com/Station-Manager/errors"
	"github.com/rs/zerolog"
)

// parseLevel parses a severity name. Accepted names are debug, info,
// warning (or warn), error and critical (or fatal), case-insensitive, plus
// trace and disabled. Critical records are emitted with zerolog's fatal
// level but never terminate the process.
func parseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	case "critical", "fatal":
		return zerolog.FatalLevel, nil
	case "disabled", "off":
		return zerolog.Disabled, nil
	}
	return zerolog.NoLevel, fmt.Errorf("unknown severity %q", level)
}

// ValidLevel reports whether level is a severity name Logger.Log accepts.
func ValidLevel(level string) bool {
	_, err := parseLevel(level)
	return err == nil
}

// levelOr parses level, falling back to def when it is empty or invalid.
func levelOr(level string, def zerolog.Level) zerolog.Level {
	if level == emptyString {
		return def
	}
	l, err := parseLevel(level)
	if err != nil {
		return def
	}
	return l
}

// severityName maps zerolog's level names to the names used in line records.
func severityName(level string) string {
	switch level {
	case zerolog.LevelWarnValue:
		return "WARNING"
	case zerolog.LevelFatalValue, zerolog.LevelPanicValue:
		return "CRITICAL"
	}
	return strings.ToUpper(level)
}

// buildErrorChain walks an error's cause chain and returns:
//   - chain: outermost -> innermost error messages
//   - ops: operation identifiers for DetailedError links ("" if not available)
//   - root: the innermost error message
//   - rootOp: the innermost operation identifier if available
//
// The traversal prefers Station-Manager DetailedError.Cause() and then
// falls back to stdlib errors.Unwrap. It guards against excessive depth
// and repeated messages to avoid cycles.
func buildErrorChain(err error) (chain []string, ops []string, root string, rootOp string) {
	const maxDepth = 50
	visited := 0
	seen := map[string]bool{}

	for err != nil && visited < maxDepth {
		visited++

		if dErr, ok := smerrors.AsDetailedError(err); ok && dErr != nil {
			chain = append(chain, dErr.Error())
			ops = append(ops, string(dErr.Op()))
			err = dErr.Cause()
			continue
		}

		msg := err.Error()
		if seen[msg] {
			break
		}
		seen[msg] = true
		chain = append(chain, msg)
		ops = append(ops, emptyString)
		err = stderrs.Unwrap(err)
	}

	if len(chain) > 0 {
		root = chain[len(chain)-1]
	}
	if len(ops) > 0 {
		rootOp = ops[len(ops)-1]
	}
	return
}

// joinChain returns a single string for the error chain separated by " -> ".
func joinChain(chain []string) string {
	if len(chain) == 0 {
		return emptyString
	}
	return strings.Join(chain, " -> ")
}

// SplitFuncName splits a runtime function name such as
// "github.com/x/pkg.(*T).Method" into its package path and the function part.
func SplitFuncName(full string) (module, function string) {
	slash := strings.LastIndexByte(full, '/')
	dot := strings.IndexByte(full[slash+1:], '.')
	if dot < 0 {
		return full, emptyString
	}
	return full[:slash+1+dot], full[slash+1+dot+1:]
}

// callerInfo resolves module, function and line skip frames above its caller.
func callerInfo(skip int) (module, function string, line int) {
	pc, _, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return emptyString, emptyString, 0
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return emptyString, emptyString, line
	}
	module, function = SplitFuncName(fn.Name())
	return module, function, line
}

var goroutinePrefix = []byte("goroutine ")

// goroutineID parses the current goroutine's id from its stack header.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := bytes.TrimPrefix(buf[:n], goroutinePrefix)
	i := bytes.IndexByte(b, ' ')
	if i <= 0 {
		return 0
	}
	id, err := strconv.ParseUint(string(b[:i]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
