package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogrusLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"DEBUG", logrus.DebugLevel},
		{"warn", logrus.WarnLevel},
		{"warning", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"info", logrus.InfoLevel},
		{"unknown", logrus.InfoLevel},
		{"", logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLogrusLevel(tt.input))
		})
	}
}

func TestNewLogger_Formatter(t *testing.T) {
	logger := NewLogger("debug", "production")
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)

	logger = NewLogger("info", "development")
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)
}

func TestLogStartupAndShutdown(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "info", "production")

	LogStartup(logger, "arb-monitor", "1.0.0", 8080)
	LogShutdown(logger, "arb-monitor", "signal")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var startup map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &startup))
	assert.Equal(t, "startup", startup["event"])
	assert.Equal(t, float64(8080), startup["port"])

	var shutdown map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &shutdown))
	assert.Equal(t, "signal", shutdown["reason"])
}

func TestErrorAggregator_FlushAggregates(t *testing.T) {
	var buf bytes.Buffer
	aggregator := NewErrorAggregator(newLogger(&buf, "info", "production"))

	for i := 0; i < 5; i++ {
		aggregator.Report("upstream_unavailable", errors.New("price missing"))
	}
	aggregator.Report("unexpected_calculation", errors.New("division by zero"))

	assert.Equal(t, 2, aggregator.Flush())
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "unexpected_calculation", first["category"])
	assert.Equal(t, float64(1), first["count"])

	var second map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "upstream_unavailable", second["category"])
	assert.Equal(t, float64(5), second["count"])
	assert.Equal(t, "price missing", second["error"])

	buf.Reset()
	assert.Equal(t, 0, aggregator.Flush())
	assert.Empty(t, buf.String())

	assert.Equal(t, int64(5), aggregator.Totals()["upstream_unavailable"])
}

func TestErrorAggregator_StartFlushesOnCancel(t *testing.T) {
	var buf bytes.Buffer
	aggregator := NewErrorAggregator(newLogger(&buf, "info", "production"))
	aggregator.Report("upstream_unavailable", errors.New("timeout"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		aggregator.Start(ctx, time.Hour)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("aggregator did not stop")
	}
	assert.Contains(t, buf.String(), "upstream_unavailable")
}
