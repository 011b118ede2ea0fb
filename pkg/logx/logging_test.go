package logx

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "broadcast"))
	log.Info("job finished", Int("sent", 3), Bool("ok", true))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "job finished", line["message"])
	assert.Equal(t, "broadcast", line["comp"])
	assert.EqualValues(t, 3, line["sent"])
	assert.Equal(t, true, line["ok"])
	assert.Contains(t, line["caller"], "logging_test.go:")
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "warn")
	log.Info("hidden")
	assert.Zero(t, buf.Len())
	assert.False(t, log.Enabled(LevelInfo))
	assert.True(t, log.Enabled(LevelError))
}

func TestZeroLoggerIsNop(t *testing.T) {
	var log Logger
	assert.True(t, log.IsZero())
	log.Error("nothing happens")
	assert.False(t, Nop().IsZero())
}

func TestFormatAlert(t *testing.T) {
	got := formatAlert([]byte(`{"level":"warn","time":"x","message":"send <failed>","to":"42","err":"blocked"}`))
	assert.Equal(t, "<b>WARN</b> send &lt;failed&gt;\n<code>err</code>: blocked\n<code>to</code>: 42", got)

	assert.Equal(t, "plain &amp; line", formatAlert([]byte("plain & line\n")))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel(" debug ", zerolog.InfoLevel))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("WARNING", zerolog.InfoLevel))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("bogus", zerolog.InfoLevel))
}
