package logging

import (
	"bytes"
	"log"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   LogLevel
		wantOK bool
	}{
		{name: "debug", input: "debug", want: LevelDebug, wantOK: true},
		{name: "info", input: "info", want: LevelInfo, wantOK: true},
		{name: "warn", input: "warn", want: LevelWarn, wantOK: true},
		{name: "warning alias", input: "warning", want: LevelWarn, wantOK: true},
		{name: "error", input: "error", want: LevelError, wantOK: true},
		{name: "case insensitive", input: " DEBUG ", want: LevelDebug, wantOK: true},
		{name: "unknown falls back to info", input: "verbose", want: LevelInfo, wantOK: false},
		{name: "empty", input: "", want: LevelInfo, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseLevel(tt.input)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestSetLevelFiltersOutput(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)
	flags := log.Flags()
	log.SetFlags(0)
	defer log.SetFlags(flags)

	SetLevel(LevelWarn)
	defer SetLevel(LevelInfo)

	Debug("debug line")
	Info("info line")
	Warn("warn line %d", 1)
	Error("error line")

	out := buf.String()
	assert.NotContains(t, out, "debug line")
	assert.NotContains(t, out, "info line")
	assert.Contains(t, out, "[WARN] warn line 1")
	assert.Contains(t, out, "[ERROR] error line")
	assert.False(t, IsDebugEnabled())
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "debug", LevelDebug.String())
	assert.Equal(t, "error", LevelError.String())
	assert.True(t, strings.HasPrefix(LogLevel(42).String(), "unknown"))
}
