package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" INFO ", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"chatty", slog.LevelInfo},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.want, ParseLevel(tc.in), tc.in)
	}
}

func TestHandlerFormat(t *testing.T) {
	SetLevel("info")
	defer SetLevel("info")

	var buf bytes.Buffer
	log := slog.New(NewHandler(&buf)).With("node", "n1")

	log.Debug("[Center] hidden")
	require.Empty(t, buf.String())

	log.WithGroup("call").Warn("[Center] Missed acknowledgment", "id", "A")
	require.Regexp(t, `^\[\d\d:\d\d:\d\d\] \[WARN\] \[Center\] Missed acknowledgment node=n1 call\.id=A\n$`, buf.String())

	SetLevel("debug")
	require.Equal(t, "debug", GetLevel())
	buf.Reset()
	log.Debug("shown")
	require.Contains(t, buf.String(), "[DEBUG] shown")
}
