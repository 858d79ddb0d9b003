package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.QualityGate)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.RetryDelay)
	assert.Equal(t, 2.0, cfg.RetryBackoff)
	assert.True(t, cfg.TesseractEnabled)
}

func TestBackendsDerivedFromKeys(t *testing.T) {
	t.Setenv("MICROBLINK_API_KEY", "key")
	t.Setenv("MICROBLINK_API_SECRET", "secret")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	t.Setenv("GOOGLE_CREDENTIALS", "")
	t.Setenv("GOOGLE_VISION_API_KEY", "")
	t.Setenv("TESSERACT_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)

	flags := cfg.Backends()
	assert.True(t, flags.Microblink)
	assert.False(t, flags.GoogleVision)
	assert.False(t, flags.DocumentAI)
	assert.False(t, flags.Tesseract)
}

func TestDocumentAIRequiresProcessor(t *testing.T) {
	t.Setenv("GOOGLE_CREDENTIALS", `{"type":"service_account"}`)
	t.Setenv("GOOGLE_CLOUD_PROJECT", "scan-project")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Backends().GoogleVision)
	assert.False(t, cfg.Backends().DocumentAI)

	t.Setenv("DOCUMENT_AI_ID_PROCESSOR_ID", "abc123")
	cfg, err = Load()
	require.NoError(t, err)
	assert.True(t, cfg.Backends().DocumentAI)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("OCR_QUALITY_GATE", "150")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("OCR_QUALITY_GATE", "fifty")
	_, err = Load()
	assert.Error(t, err)
}

func TestDefaultMatchesEmptyEnvironment(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.validate())
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
}
