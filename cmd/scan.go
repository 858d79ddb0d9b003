package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"docscan/internal/fields"
	"docscan/internal/logger"
	"docscan/internal/ocr"
	"docscan/internal/pixel"
	"docscan/internal/preprocess"
	"docscan/pkg/models"
)

var scanCmd = &cobra.Command{
	Use:   "scan [image-file]",
	Short: "Recognize an identity document photo and extract its fields",
	Long: `Scan a photo of an identity document and extract the document number,
names, dates and nationality.

The image is checked for blur, brightness and resolution first; photos
scoring below OCR_QUALITY_GATE are rejected without contacting any
backend. Accepted images are deskewed, denoised and contrast-enhanced,
then sent through the recognition chain until one backend returns a
result above its confidence threshold.

Supported inputs: JPEG, PNG, GIF, BMP, TIFF, WebP, HEIC/HEIF and PDF
(first page), up to 20MB.

Backend credentials (any subset):
  MICROBLINK_API_KEY, MICROBLINK_API_SECRET    - BlinkID Cloud
  GOOGLE_CLOUD_PROJECT, DOCUMENT_AI_ID_PROCESSOR_ID
                                               - Document AI identity processor
  GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS or GOOGLE_VISION_API_KEY
                                               - Google Cloud Vision
  TESSERACT_ENABLED (default true)             - local Tesseract`,
	Example: `  # Scan a passport photo and print the fields
  docscan scan passport.jpg --type passport

  # Force Google Vision first and write JSON to a file
  docscan scan license.heic --service google --json -o result.json

  # German ID card, binarized, without deskewing
  docscan scan ausweis.png --type national_id --language de --binarize --no-deskew`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	scanCmd.Flags().StringP("language", "l", fields.DefaultLanguage,
		"Document language as a BCP 47 tag; labels are recognized in "+strings.Join(fields.SupportedLanguages(), ", "))
	scanCmd.Flags().StringP("type", "t", "", "Document type: passport, drivers_license, national_id, residence_permit, visa, insurance_card, other")
	scanCmd.Flags().StringP("service", "s", "auto", "Preferred backend: auto, microblink, documentai, google, tesseract")
	scanCmd.Flags().Bool("json", false, "Output as JSON")
	scanCmd.Flags().Int("timeout", 120, "Processing timeout in seconds")
	addPreprocessFlags(scanCmd)
}

// addPreprocessFlags registers the stage toggles shared by scan and preprocess.
func addPreprocessFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("no-deskew", false, "Skip skew correction")
	cmd.Flags().Bool("no-denoise", false, "Skip median denoising")
	cmd.Flags().Bool("no-contrast", false, "Skip contrast enhancement")
	cmd.Flags().Bool("binarize", false, "Convert to black and white before recognition")
}

func preprocessOptions(cmd *cobra.Command) preprocess.Options {
	opts := preprocess.DefaultOptions()
	noDeskew, _ := cmd.Flags().GetBool("no-deskew")
	noDenoise, _ := cmd.Flags().GetBool("no-denoise")
	noContrast, _ := cmd.Flags().GetBool("no-contrast")
	binarize, _ := cmd.Flags().GetBool("binarize")
	opts.Deskew = !noDeskew
	opts.Denoise = !noDenoise
	opts.EnhanceContrast = !noContrast
	opts.Binarize = binarize
	return opts
}

func runScan(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("scan")

	// Get flags
	outputPath, _ := cmd.Flags().GetString("output")
	language, _ := cmd.Flags().GetString("language")
	docType, _ := cmd.Flags().GetString("type")
	serviceName, _ := cmd.Flags().GetString("service")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	service, ok := models.ParseService(serviceName)
	if !ok {
		return fmt.Errorf("unknown service %q (valid: auto, microblink, documentai, google, tesseract)", serviceName)
	}
	ppOpts := preprocessOptions(cmd)

	imagePath := args[0]
	log.Info().
		Str("file", imagePath).
		Str("language", language).
		Str("type", docType).
		Str("service", string(service)).
		Int("timeout", timeoutSecs).
		Msg("Starting document scan")

	img, err := loadImage(imagePath, log)
	if err != nil {
		return err
	}

	ctx, cancel := createContextWithTimeout(time.Duration(timeoutSecs)*time.Second, log)
	defer cancel()

	orchestrator, closeBackends := createOrchestrator(loadConfig(log), log)
	defer closeBackends()

	result, err := orchestrator.PerformOCR(ctx, img, ocr.Options{
		Language:         language,
		DocumentType:     models.ParseDocumentType(docType),
		PreferredService: service,
		Preprocess:       &ppOpts,
		Progress: func(p int) {
			log.Debug().Int("progress", p).Msg("Scan progress")
		},
	})
	if err != nil {
		return handleScanError(ctx, err, log)
	}

	log.Info().
		Str("source", string(result.Source)).
		Int("confidence", result.Confidence).
		Int("fields", len(result.Fields)).
		Dur("duration", result.ProcessingDuration).
		Msg("Scan completed successfully")

	return outputResults(result, imagePath, outputPath, jsonOutput, log)
}

// loadImage validates and decodes an image file
func loadImage(path string, log zerolog.Logger) (*image.NRGBA, error) {
	fileInfo, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Error().Str("file", path).Msg("Image file not found")
			return nil, fmt.Errorf("image file not found: %s", path)
		}
		if os.IsPermission(err) {
			log.Error().Str("file", path).Msg("Permission denied accessing image file")
			return nil, fmt.Errorf("permission denied accessing image file: %s", path)
		}
		return nil, fmt.Errorf("error accessing image file: %w", err)
	}
	if !fileInfo.Mode().IsRegular() {
		return nil, fmt.Errorf("path is not a regular file: %s", path)
	}
	if fileInfo.Size() > pixel.MaxUploadBytes {
		log.Error().
			Str("file", path).
			Int64("size", fileInfo.Size()).
			Int64("max_size", pixel.MaxUploadBytes).
			Msg("Image file exceeds maximum size limit")
		return nil, fmt.Errorf("image file too large (%d bytes). Maximum size is %d bytes (20MB)",
			fileInfo.Size(), pixel.MaxUploadBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image file: %w", err)
	}

	img, err := pixel.Decode(data, "")
	if err != nil {
		log.Error().Err(err).Str("file", path).Msg("Failed to decode image")
		return nil, fmt.Errorf("%s: %w", ocr.UserMessage(err), err)
	}
	log.Debug().
		Int("width", img.Bounds().Dx()).
		Int("height", img.Bounds().Dy()).
		Msg("Image decoded")
	return img, nil
}

// handleScanError provides user-friendly error messages for scan failures
func handleScanError(ctx context.Context, err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("Document scan failed")

	var qe *ocr.QualityError
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("scan timed out. Try increasing --timeout")
	case errors.Is(err, ocr.ErrContextCanceled) || errors.Is(err, context.Canceled):
		return fmt.Errorf("scan was canceled")
	case errors.As(err, &qe):
		return fmt.Errorf("%s (score %d, minimum %d)", ocr.UserMessage(err), qe.Assessment.Score, qe.Gate)
	case errors.Is(err, ocr.ErrNoBackends):
		return fmt.Errorf("no recognition backend is configured. Set MICROBLINK_API_KEY and MICROBLINK_API_SECRET, " +
			"GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_VISION_API_KEY, or enable TESSERACT_ENABLED")
	case errors.Is(err, ocr.ErrAllBackendsExhausted):
		return fmt.Errorf("%s\n\nDetails: %w", ocr.UserMessage(err), err)
	default:
		return fmt.Errorf("scan failed: %w", err)
	}
}

// ScanOutput represents the JSON output structure when --json flag is used
type ScanOutput struct {
	*models.RecognitionResult
	FileName           string `json:"file_name"`
	ProcessingDuration string `json:"processing_duration"`
}

// outputResults formats and outputs the scan result
func outputResults(result *models.RecognitionResult, imagePath, outputPath string, jsonOutput bool, log zerolog.Logger) error {
	var outputData []byte

	if jsonOutput {
		data, err := json.MarshalIndent(ScanOutput{
			RecognitionResult:  result,
			FileName:           filepath.Base(imagePath),
			ProcessingDuration: result.ProcessingDuration.String(),
		}, "", "  ")
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal JSON output")
			return fmt.Errorf("failed to create JSON output: %w", err)
		}
		outputData = append(data, '\n')
	} else {
		outputData = []byte(formatText(result, filepath.Base(imagePath)))
	}

	if outputPath != "" {
		if err := os.WriteFile(outputPath, outputData, 0644); err != nil {
			log.Error().
				Err(err).
				Str("output_file", outputPath).
				Msg("Failed to write output file")
			return fmt.Errorf("failed to write output file: %w", err)
		}

		log.Info().
			Str("output_file", outputPath).
			Int("bytes", len(outputData)).
			Msg("Scan results written to file")
		return nil
	}

	if _, err := os.Stdout.Write(outputData); err != nil {
		log.Error().Err(err).Msg("Failed to write to stdout")
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// formatText renders a result for humans; fields are listed in a fixed order.
func formatText(result *models.RecognitionResult, fileName string) string {
	var output strings.Builder

	fmt.Fprintf(&output, "=== Scan Results for %s ===\n", fileName)
	fmt.Fprintf(&output, "Source: %s\n", result.Source)
	fmt.Fprintf(&output, "Confidence: %d%%\n", result.Confidence)
	fmt.Fprintf(&output, "Quality: %d (%s)\n", result.Quality.Score, result.Quality.Tier)
	if result.DetectedDocumentType != nil {
		fmt.Fprintf(&output, "Document type: %s (%d%%)\n", result.DetectedDocumentType.Type, result.DetectedDocumentType.Confidence)
	}
	if result.Language != "" {
		fmt.Fprintf(&output, "Language: %s\n", result.Language)
	}

	if len(result.Fields) > 0 {
		output.WriteString("\n=== Fields ===\n")
		names := make([]string, 0, len(result.Fields))
		for name := range result.Fields {
			names = append(names, name)
		}
		slices.Sort(names)
		slices.SortStableFunc(names, func(a, b string) int { return fieldRank(a) - fieldRank(b) })
		for _, name := range names {
			f := result.Fields[name]
			fmt.Fprintf(&output, "%-16s %s (%d%%)\n", name+":", f.Value, f.Confidence)
		}
	}

	if result.Text != "" {
		output.WriteString("\n=== Recognized Text ===\n\n")
		output.WriteString(result.Text)
		if !strings.HasSuffix(result.Text, "\n") {
			output.WriteString("\n")
		}
	}
	return output.String()
}

var fieldOrder = []string{
	models.FieldDocumentNumber,
	models.FieldFullName,
	models.FieldFirstName,
	models.FieldLastName,
	models.FieldDateOfBirth,
	models.FieldNationality,
	models.FieldIssueDate,
	models.FieldExpirationDate,
}

func fieldRank(name string) int {
	if i := slices.Index(fieldOrder, name); i >= 0 {
		return i
	}
	return len(fieldOrder)
}
