package perflog

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestZapBridge(t *testing.T) {
	m, _, _ := newTestManager(t)
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.Format = FormatStructured
	cfg.Console.Enabled = false
	cfg.Components = map[string]string{"kafka": "warning"}
	require.NoError(t, m.Setup(cfg))

	zl := m.Zap("kafka").With(zap.String("broker", "b1"))
	zl.Info("rebalance started")
	zl.Warn("rebalance slow", zap.Int("partitions", 12))
	zl.Error("rebalance failed", zap.Error(assert.AnError))
	require.NoError(t, zl.Sync())

	lines := strings.Split(strings.TrimSpace(readFile(t, filepath.Join(dir, "app.log"))), "\n")
	require.Len(t, lines, 2)

	var warn logEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &warn))
	assert.Equal(t, "kafka", warn[FieldLogger])
	assert.Equal(t, "rebalance slow", warn[FieldMessage])
	assert.Equal(t, "b1", warn["broker"])
	assert.EqualValues(t, 12, warn["partitions"])
	assert.Equal(t, "TestZapBridge", warn[FieldFunction])
	assert.Equal(t, "github.com/Station-Manager/perflog", warn[FieldModule])

	var failed logEntry
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &failed))
	assert.Equal(t, "error", failed[FieldLevel])
	assert.Equal(t, assert.AnError.Error(), failed["error"])
}

func TestZapBridgeUnconfigured(t *testing.T) {
	m := NewManager()
	zl := m.Zap("")
	assert.NotPanics(t, func() { zl.Error("dropped") })
	assert.Nil(t, zl.Check(zap.ErrorLevel, "dropped"))
}
