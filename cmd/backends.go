package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"docscan/internal/config"
	"docscan/internal/ocr"
	"docscan/internal/recognizer"
	"docscan/internal/recognizer/documentai"
	"docscan/internal/recognizer/microblink"
	"docscan/internal/recognizer/tesseract"
	"docscan/internal/recognizer/vision"
	"docscan/internal/retry"
)

// loadConfig reads the environment, falling back to defaults when it is
// invalid so that commands needing no credentials still run.
func loadConfig(log zerolog.Logger) *config.Config {
	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Invalid configuration, using defaults")
		return config.Default()
	}
	return cfg
}

// newBackends registers every backend in chain order. Backends missing their
// credentials stay registered and report themselves unavailable.
func newBackends(cfg *config.Config) []recognizer.Backend {
	return []recognizer.Backend{
		microblink.New(microblink.Config{
			APIKey:    cfg.MicroblinkAPIKey,
			APISecret: cfg.MicroblinkAPISecret,
			BaseURL:   cfg.MicroblinkBaseURL,
			Timeout:   cfg.BackendTimeout,
		}, nil),
		documentai.New(documentai.Config{
			ProjectID:        cfg.GoogleCloudProject,
			Location:         cfg.GoogleCloudLocation,
			ProcessorID:      cfg.DocumentAIIDProcessorID,
			ProcessorVersion: cfg.DocumentAIProcessorVersion,
			CredentialsFile:  cfg.GoogleCredentialsFile,
			CredentialsJSON:  cfg.GoogleCredentialsJSON,
			Timeout:          cfg.BackendTimeout,
		}),
		vision.New(vision.Config{
			CredentialsFile: cfg.GoogleCredentialsFile,
			CredentialsJSON: cfg.GoogleCredentialsJSON,
			APIKey:          cfg.GoogleVisionAPIKey,
			Timeout:         cfg.BackendTimeout,
		}),
		tesseract.New(tesseract.Config{
			Enabled:  cfg.TesseractEnabled,
			DataPath: cfg.TesseractDataPath,
		}),
	}
}

// createOrchestrator wires the configured backends into the pipeline. The
// returned func releases backend clients.
func createOrchestrator(cfg *config.Config, log zerolog.Logger) (*ocr.Orchestrator, func()) {
	flags := cfg.Backends()
	log.Debug().
		Bool("microblink", flags.Microblink).
		Bool("documentai", flags.DocumentAI).
		Bool("google_vision", flags.GoogleVision).
		Bool("tesseract", flags.Tesseract).
		Msg("Recognition backends configured")
	if !flags.Microblink && !flags.DocumentAI && !flags.GoogleVision && !flags.Tesseract {
		log.Warn().Msg("No recognition backend is configured; scans will fail")
	}

	backends := newBackends(cfg)
	orchestrator := ocr.NewOrchestrator(ocr.Config{
		QualityGate: cfg.QualityGate,
		Retry: retry.Policy{
			MaxRetries: cfg.MaxRetries,
			Delay:      cfg.RetryDelay,
			Backoff:    cfg.RetryBackoff,
		},
	}, backends...)

	closeAll := func() {
		for _, b := range backends {
			if c, ok := b.(io.Closer); ok {
				if err := c.Close(); err != nil {
					log.Warn().Err(err).Str("backend", string(b.Name())).Msg("Failed to close backend")
				}
			}
		}
	}
	return orchestrator, closeAll
}

// createContextWithTimeout creates a context with timeout and signal handling
func createContextWithTimeout(timeout time.Duration, log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	// Handle interrupt signals for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, canceling scan")
			cancel()
		case <-ctx.Done():
			// Context completed normally
		}
	}()

	return ctx, cancel
}
