package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel(""))
	assert.Equal(t, LevelInfo, ParseLevel("bogus"))
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	lg := New(&buf, LevelWarn, "test")

	lg.Debugf("hidden")
	lg.Infof("hidden")
	lg.Warnf("shown warn")
	lg.Errorf("shown error")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "WARN test: shown warn")
	assert.Contains(t, out, "ERROR test: shown error")
}

func TestLogger_WithComponent(t *testing.T) {
	var buf bytes.Buffer
	lg := New(&buf, LevelInfo, "daemon")

	lg.WithComponent("voice_pipeline").Infof("transcribed file=%s", "voice_1.ogg")
	assert.Contains(t, buf.String(), "voice_pipeline: transcribed file=voice_1.ogg")
}
