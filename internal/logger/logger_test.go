package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONWritesComponentField(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LogConfig{Format: "json"})

	l.Info().Str("component", "quality").Int("score", 40).Msg("assessed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "quality", entry["component"])
	assert.Equal(t, "assessed", entry["message"])
	assert.EqualValues(t, 40, entry["score"])
}

func TestSetupRejectsUnknownLevel(t *testing.T) {
	err := Setup(LogConfig{Level: "loud", Format: "json", Output: "stderr"})
	assert.Error(t, err)
}

func TestSetupAppliesLevel(t *testing.T) {
	prev := zerolog.GlobalLevel()
	defer zerolog.SetGlobalLevel(prev)

	require.NoError(t, Setup(LogConfig{Level: "warn", Format: "json", Output: "stderr"}))
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
}
