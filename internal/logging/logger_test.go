package logging

import (
	"bytes"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		raw     string
		want    Level
		wantErr bool
	}{
		{"", LevelInfo, false},
		{"0", LevelNone, false},
		{"1", LevelError, false},
		{" 4 ", LevelDebug, false},
		{"5", LevelVerbose, false},
		{"6", LevelInfo, true},
		{"-1", LevelInfo, true},
		{"loud", LevelInfo, true},
	}
	for _, tc := range cases {
		got, err := ParseLevel(tc.raw)
		assert.Equal(t, tc.want, got, "raw=%q", tc.raw)
		if tc.wantErr {
			assert.Error(t, err, "raw=%q", tc.raw)
		} else {
			assert.NoError(t, err, "raw=%q", tc.raw)
		}
	}
}

func TestLevelFlags(t *testing.T) {
	assert.True(t, LevelVerbose.Verbose())
	assert.False(t, LevelDebug.Verbose())
	assert.True(t, LevelDebug.Debug())
	assert.False(t, LevelInfo.Debug())
	assert.Equal(t, "warn", LevelWarn.String())
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(LevelWarn, zapcore.AddSync(&buf))
	log.Info("hidden")
	log.Warn("shown")
	_ = log.Sync()

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "WARN")
}

func TestNewNoneIsSilent(t *testing.T) {
	var buf bytes.Buffer
	log := New(LevelNone, zapcore.AddSync(&buf))
	log.Error("nothing")
	assert.Empty(t, buf.String())
}

func TestThoughtLogAppends(t *testing.T) {
	dir := t.TempDir()
	tl := NewThoughtLog(dir, nil)
	tl.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }

	require.NoError(t, tl.Record("login", "DISCOVERY", "found the form"))
	require.NoError(t, tl.Record("login", "HEAL_ATTEMPT_1", "selector changed"))

	data, err := os.ReadFile(tl.Path())
	require.NoError(t, err)
	text := string(data)

	first := strings.Index(text, "found the form")
	second := strings.Index(text, "selector changed")
	require.True(t, first >= 0 && second > first, "entries must be appended in order")
	assert.Contains(t, text, "[2025-01-02T03:04:05Z] [Scenario: login] [Action: DISCOVERY]")
	assert.Equal(t, 2, strings.Count(text, strings.Repeat("-", 50)))
}

func TestThoughtLogTagsRunID(t *testing.T) {
	dir := t.TempDir()
	tl := NewThoughtLog(dir, nil)
	require.NoError(t, tl.Record("login", "DISCOVERY", "one"))
	require.NoError(t, tl.Record("login", "HEAL_ATTEMPT_1", "two"))

	_, err := uuid.Parse(tl.RunID())
	require.NoError(t, err)

	data, err := os.ReadFile(tl.Path())
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "[Run: "+tl.RunID()+"]"))

	other := NewThoughtLog(dir, nil)
	assert.NotEqual(t, tl.RunID(), other.RunID())
}

func TestThoughtLogConcurrentWriters(t *testing.T) {
	tl := NewThoughtLog(t.TempDir(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = tl.Record("s", "stage", "r")
		}()
	}
	wg.Wait()

	data, err := os.ReadFile(tl.Path())
	require.NoError(t, err)
	assert.Equal(t, 20, strings.Count(string(data), "REASONING: r\n"))
}
