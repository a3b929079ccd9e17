package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bavix/scanbridge/internal/logging"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{in: "debug", want: zerolog.DebugLevel},
		{in: " warn ", want: zerolog.WarnLevel},
		{in: "ERROR", want: zerolog.ErrorLevel},
		{in: "trace", want: zerolog.TraceLevel},
		{in: "", want: zerolog.InfoLevel},
		{in: "verbose", want: zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, logging.ParseLevel(tt.in))
		})
	}
}

func TestNew_JSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	log := logging.New(&buf, "till-1", "warn", "json")
	log.Info().Msg("dropped")
	log.Warn().Str("device_id", "demo").Msg("kept")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))

	assert.Equal(t, "till-1", line["app"])
	assert.Equal(t, "kept", line["message"])
	assert.Equal(t, "demo", line["device_id"])
	assert.Contains(t, line, "time")
}

func TestNew_Console(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	log := logging.New(&buf, "till-1", "info", "Console")
	log.Info().Msg("scanner ready")

	assert.Contains(t, buf.String(), "scanner ready")
	assert.False(t, json.Valid(buf.Bytes()))
}
