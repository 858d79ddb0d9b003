package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"docscan/internal/logger"
	"docscan/internal/pixel"
	"docscan/internal/preprocess"
)

var preprocessCmd = &cobra.Command{
	Use:   "preprocess [image-file]",
	Short: "Write the image the recognition backends would receive",
	Long: `Run the preprocessing pipeline (deskew, denoise, contrast enhancement and
optional binarization) and write the result as PNG or JPEG. Useful for
checking what a backend actually sees.`,
	Example: `  docscan preprocess passport.jpg -o passport-clean.png
  docscan preprocess id.heic -o id.jpg --binarize --no-denoise`,
	Args: cobra.ExactArgs(1),
	RunE: runPreprocess,
}

func init() {
	rootCmd.AddCommand(preprocessCmd)

	preprocessCmd.Flags().StringP("output", "o", "", "Output image path, .png or .jpg (required)")
	_ = preprocessCmd.MarkFlagRequired("output")
	addPreprocessFlags(preprocessCmd)
}

func runPreprocess(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("preprocess")
	outputPath, _ := cmd.Flags().GetString("output")

	format, err := pixel.ParseFormat(filepath.Ext(outputPath))
	if err != nil {
		return fmt.Errorf("output must end in .png, .jpg or .jpeg: %w", err)
	}

	img, err := loadImage(args[0], log)
	if err != nil {
		return err
	}

	opts := preprocessOptions(cmd)
	processed := preprocess.New().Process(img, opts)

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := pixel.Encode(out, processed, format); err != nil {
		out.Close()
		return fmt.Errorf("failed to encode output image: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}

	log.Info().
		Str("output_file", outputPath).
		Str("format", strings.ToUpper(string(format))).
		Int("width", processed.Bounds().Dx()).
		Int("height", processed.Bounds().Dy()).
		Msg("Preprocessed image written")
	return nil
}
