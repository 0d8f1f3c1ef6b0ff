package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, DEBUG, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, INFO, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger("mesh", &buf, WARN)

	l.Info("скрыто %d", 1)
	l.Warn("пропущен воксель %d", 7)

	out := buf.String()
	assert.NotContains(t, out, "скрыто")
	assert.Contains(t, out, "[WARN] [mesh] пропущен воксель 7")
}

func TestLoggerWritesFile(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLoggerWithOptions("world", Options{Level: ERROR, Dir: dir})
	require.NoError(t, err)

	l.Debug("в файл")
	require.NoError(t, l.Close())
	// повторное закрытие безопасно
	assert.NoError(t, l.Close())
}

func TestComponentLoggerIsShared(t *testing.T) {
	a := GetComponentLogger("test-component")
	b := GetComponentLogger("test-component")
	assert.Same(t, a, b)
	assert.Contains(t, Components(), "test-component")

	assert.NoError(t, SetComponentLevel("test-component", ERROR))
	assert.ErrorIs(t, SetComponentLevel("missing-component", ERROR), ErrUnknownComponent)
}

func TestInitDefaultLoggerUpdatesComponents(t *testing.T) {
	t.Cleanup(func() {
		require.NoError(t, InitDefaultLogger("", Options{Level: INFO}))
	})

	early := GetComponentLogger("early-component")
	require.NoError(t, InitDefaultLogger("voxelgen", Options{Level: ERROR}))

	early.mu.Lock()
	level := early.minConsoleLevel
	early.mu.Unlock()
	assert.Equal(t, ERROR, level)

	late := GetComponentLogger("late-component")
	assert.Equal(t, ERROR, late.minConsoleLevel)
}

func TestCloseComponentsForgetsLoggers(t *testing.T) {
	GetComponentLogger("closing-component")
	require.NoError(t, CloseComponents())
	assert.NotContains(t, Components(), "closing-component")
}
