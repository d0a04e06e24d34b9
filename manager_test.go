package perflog

import (
	"bufio"
	"bytes"
	stderrs "errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// testConfig is DefaultConfig under dir with the console at trace.
func testConfig(dir string) Config {
	cfg := DefaultConfig(dir)
	cfg.Console.Level = "trace"
	return cfg
}

// newTestManager returns a Manager whose console and warnings go to buffers.
func newTestManager(t *testing.T) (m *Manager, console, warnings *syncBuffer) {
	t.Helper()
	console, warnings = &syncBuffer{}, &syncBuffer{}
	m = NewManager(WithConsoleWriter(console), WithWarningWriter(warnings))
	t.Cleanup(func() { _ = m.Cleanup() })
	return m, console, warnings
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		n++
	}
	require.NoError(t, sc.Err())
	return n
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestManager_Setup(t *testing.T) {
	t.Run("successful setup", func(t *testing.T) {
		m, _, _ := newTestManager(t)
		dir := filepath.Join(t.TempDir(), "nested", "logs")

		require.NoError(t, m.Setup(testConfig(dir)))
		assert.Equal(t, StateConfigured, m.State())
		for _, name := range []string{LoggerApp, LoggerPerformance, LoggerMemory, LoggerResources, LoggerErrors} {
			assert.FileExists(t, filepath.Join(dir, name+".log"))
		}
	})

	t.Run("nil manager", func(t *testing.T) {
		var m *Manager
		err := m.Setup(testConfig(t.TempDir()))
		require.Error(t, err)
		assert.Contains(t, err.Error(), errMsgNilManager)
	})

	t.Run("invalid level", func(t *testing.T) {
		m, _, _ := newTestManager(t)
		cfg := testConfig(t.TempDir())
		cfg.RootLevel = "loud"
		err := m.Setup(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), errMsgConfigInvalid)
		assert.Equal(t, StateUnconfigured, m.State())
	})

	t.Run("non-positive rotation threshold", func(t *testing.T) {
		m, _, _ := newTestManager(t)
		cfg := testConfig(t.TempDir())
		s := cfg.Sinks[LoggerApp]
		s.MaxBytes = 0
		cfg.Sinks[LoggerApp] = s
		err := m.Setup(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "MaxBytes")
	})

	t.Run("unknown encoding", func(t *testing.T) {
		m, _, _ := newTestManager(t)
		cfg := testConfig(t.TempDir())
		s := cfg.Sinks[LoggerApp]
		s.Encoding = "latin-1"
		cfg.Sinks[LoggerApp] = s
		require.Error(t, m.Setup(cfg))
	})

	t.Run("unknown sink reference", func(t *testing.T) {
		m, _, _ := newTestManager(t)
		cfg := testConfig(t.TempDir())
		cfg.RootSinks = append(cfg.RootSinks, "nope")
		err := m.Setup(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), errMsgUnknownSink)
	})

	t.Run("unwritable directory", func(t *testing.T) {
		m, _, _ := newTestManager(t)
		blocker := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

		err := m.Setup(testConfig(filepath.Join(blocker, "logs")))
		require.Error(t, err)
		assert.Contains(t, err.Error(), errMsgSinkOpen)
		assert.Equal(t, StateUnconfigured, m.State())
	})

	t.Run("second setup warns and keeps configuration", func(t *testing.T) {
		m, _, warnings := newTestManager(t)
		dir := t.TempDir()
		require.NoError(t, m.Setup(testConfig(dir)))

		other := testConfig(t.TempDir())
		other.RootLevel = "error"
		require.NoError(t, m.Setup(other))

		assert.Contains(t, warnings.String(), warnMsgAlreadySetup)
		assert.Equal(t, "info", m.Stats().RootLevel)
	})

	t.Run("setup after cleanup", func(t *testing.T) {
		m, _, _ := newTestManager(t)
		require.NoError(t, m.Setup(testConfig(t.TempDir())))
		require.NoError(t, m.Cleanup())
		assert.True(t, stderrs.Is(m.Setup(testConfig(t.TempDir())), ErrTornDown))
	})
}

func TestManager_Reconfigure(t *testing.T) {
	t.Run("before setup", func(t *testing.T) {
		m, _, _ := newTestManager(t)
		assert.True(t, stderrs.Is(m.Reconfigure(testConfig(t.TempDir())), ErrNotConfigured))
	})

	t.Run("after cleanup", func(t *testing.T) {
		m, _, _ := newTestManager(t)
		require.NoError(t, m.Setup(testConfig(t.TempDir())))
		require.NoError(t, m.Cleanup())
		assert.True(t, stderrs.Is(m.Reconfigure(testConfig(t.TempDir())), ErrTornDown))
	})

	t.Run("applies new levels to existing handles", func(t *testing.T) {
		m, _, _ := newTestManager(t)
		dir := t.TempDir()
		require.NoError(t, m.Setup(testConfig(dir)))

		l := m.Logger("app")
		l.DebugWith().Msg("before")

		cfg := testConfig(dir)
		cfg.RootLevel = "debug"
		require.NoError(t, m.Reconfigure(cfg))
		assert.Equal(t, StateConfigured, m.State())

		l.DebugWith().Msg("after")

		content := readFile(t, filepath.Join(dir, "app.log"))
		assert.NotContains(t, content, "before")
		assert.Contains(t, content, "after")
	})

	t.Run("unchanged sinks are reused", func(t *testing.T) {
		m, _, _ := newTestManager(t)
		dir := t.TempDir()
		require.NoError(t, m.Setup(testConfig(dir)))
		before := m.active.Load()

		cfg := testConfig(dir)
		s := cfg.Sinks[LoggerMemory]
		s.Level = "error"
		cfg.Sinks[LoggerMemory] = s
		require.NoError(t, m.Reconfigure(cfg))
		after := m.active.Load()

		assert.Same(t, before.sinks[LoggerApp], after.sinks[LoggerApp])
		assert.NotSame(t, before.sinks[LoggerMemory], after.sinks[LoggerMemory])
		assert.True(t, before.sinks[LoggerMemory].closed)
		assert.False(t, after.sinks[LoggerApp].closed)
	})

	t.Run("failed build keeps previous configuration", func(t *testing.T) {
		m, _, _ := newTestManager(t)
		dir := t.TempDir()
		require.NoError(t, m.Setup(testConfig(dir)))

		blocker := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
		require.Error(t, m.Reconfigure(testConfig(filepath.Join(blocker, "logs"))))
		assert.Equal(t, StateConfigured, m.State())

		m.Logger("app").InfoWith().Msg("still here")
		assert.Contains(t, readFile(t, filepath.Join(dir, "app.log")), "still here")
	})

	t.Run("invalid configuration keeps previous configuration", func(t *testing.T) {
		m, _, _ := newTestManager(t)
		dir := t.TempDir()
		require.NoError(t, m.Setup(testConfig(dir)))

		cfg := testConfig(dir)
		cfg.Format = "xml"
		require.Error(t, m.Reconfigure(cfg))
		assert.Equal(t, FormatLine, m.Stats().Format)
	})
}

// Every record emitted while the configuration is being replaced must reach
// the file exactly once.
func TestManager_ReconfigureUnderLoadLosesNothing(t *testing.T) {
	m, _, warnings := newTestManager(t)
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.Console.Enabled = false
	require.NoError(t, m.Setup(cfg))

	const (
		writers    = 8
		perWriter  = 250
		reconfigs  = 20
		totalLines = writers * perWriter
	)

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			l := m.Logger("app.worker" + strconv.Itoa(w))
			for i := 0; i < perWriter; i++ {
				l.InfoWith().Int("i", i).Msg("record")
			}
		}(w)
	}

	levels := []string{"debug", "trace"}
	for i := 0; i < reconfigs; i++ {
		next := testConfig(dir)
		next.Console.Enabled = false
		s := next.Sinks[LoggerApp]
		s.Level = levels[i%2]
		next.Sinks[LoggerApp] = s
		require.NoError(t, m.Reconfigure(next))
	}
	wg.Wait()

	require.NoError(t, m.Cleanup())
	assert.Equal(t, totalLines, countLines(t, filepath.Join(dir, "app.log")))
	assert.NotContains(t, warnings.String(), warnMsgDrainTimeout)
}

func TestManager_Cleanup(t *testing.T) {
	t.Run("idempotent", func(t *testing.T) {
		m, _, _ := newTestManager(t)
		require.NoError(t, m.Setup(testConfig(t.TempDir())))
		require.NoError(t, m.Cleanup())
		require.NoError(t, m.Cleanup())
		assert.Equal(t, StateTornDown, m.State())
	})

	t.Run("cleanup without setup", func(t *testing.T) {
		m, _, _ := newTestManager(t)
		require.NoError(t, m.Cleanup())
		assert.Equal(t, StateTornDown, m.State())
	})

	t.Run("records after cleanup are dropped", func(t *testing.T) {
		m, console, _ := newTestManager(t)
		dir := t.TempDir()
		require.NoError(t, m.Setup(testConfig(dir)))
		l := m.Logger("app")
		require.NoError(t, m.Cleanup())

		assert.NotPanics(t, func() { l.ErrorWith().Msg("late") })
		assert.NotContains(t, console.String(), "late")
		assert.NotContains(t, readFile(t, filepath.Join(dir, "app.log")), "late")
	})

	// An event that is never finished must not block Cleanup beyond the
	// drain timeout.
	t.Run("drain timeout", func(t *testing.T) {
		m, _, warnings := newTestManager(t)
		cfg := testConfig(t.TempDir())
		cfg.DrainTimeoutMS = 30
		require.NoError(t, m.Setup(cfg))

		before := runtime.NumGoroutine()
		_ = m.Logger("app").InfoWith()

		start := time.Now()
		require.NoError(t, m.Cleanup())
		assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
		assert.Contains(t, warnings.String(), warnMsgDrainTimeout)

		// the abandoned event leaves nothing behind waiting for it
		assert.Eventually(t, func() bool {
			return runtime.NumGoroutine() <= before
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("waits for in-flight events", func(t *testing.T) {
		m, _, _ := newTestManager(t)
		dir := t.TempDir()
		require.NoError(t, m.Setup(testConfig(dir)))

		ev := m.Logger("app").InfoWith()
		done := make(chan error, 1)
		go func() { done <- m.Cleanup() }()

		time.Sleep(20 * time.Millisecond)
		ev.Msg("finished during cleanup")
		require.NoError(t, <-done)
		assert.Contains(t, readFile(t, filepath.Join(dir, "app.log")), "finished during cleanup")
	})
}

func TestManager_InFlightBalance(t *testing.T) {
	m, _, _ := newTestManager(t)
	require.NoError(t, m.Setup(testConfig(t.TempDir())))
	l := m.Logger("app")

	l.InfoWith().Msg("a")
	l.WarnWith().Msgf("b %d", 1)
	l.ErrorWith().Send()
	l.DebugWith().Msg("filtered")
	l.Log("bogus").Msg("unknown level")
	l.CriticalWith().Msg("critical does not exit")

	assert.Zero(t, m.Stats().InFlight)
}

func TestManager_ConcurrentEmitAndCleanup(t *testing.T) {
	m, _, _ := newTestManager(t)
	cfg := testConfig(t.TempDir())
	cfg.DrainTimeoutMS = 1000
	require.NoError(t, m.Setup(cfg))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Logger("app").InfoWith().Int("j", j).Msg("concurrent")
			}
		}()
	}

	time.Sleep(time.Millisecond)
	require.NoError(t, m.Cleanup())
	wg.Wait()
	assert.Equal(t, StateTornDown, m.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "unconfigured", StateUnconfigured.String())
	assert.Equal(t, "configured", StateConfigured.String())
	assert.Equal(t, "reconfiguring", StateReconfiguring.String())
	assert.Equal(t, "torn_down", StateTornDown.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestDefaultManager(t *testing.T) {
	prev := defaultManager.Load()
	t.Cleanup(func() { SetDefault(prev) })

	SetDefault(nil)
	d := Default()
	require.NotNil(t, d)
	assert.Same(t, d, Default())

	m := NewManager()
	SetDefault(m)
	assert.Same(t, m, Default())
}
