package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"docscan/internal/logger"
	"docscan/internal/ocr"
	"docscan/internal/quality"
)

var qualityCmd = &cobra.Command{
	Use:   "quality [image-file]",
	Short: "Assess whether a photo is good enough to scan",
	Long: `Score an image for blur, brightness and resolution without running any
recognition backend. Scores below OCR_QUALITY_GATE (default 50) would be
rejected by the scan command.`,
	Example: `  docscan quality passport.jpg
  docscan quality passport.jpg --json`,
	Args: cobra.ExactArgs(1),
	RunE: runQuality,
}

func init() {
	rootCmd.AddCommand(qualityCmd)

	qualityCmd.Flags().Bool("json", false, "Output as JSON")
}

func runQuality(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("quality")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	img, err := loadImage(args[0], log)
	if err != nil {
		return err
	}

	assessment := quality.New().Assess(img)
	gate := loadConfig(log).QualityGate

	if jsonOutput {
		data, err := json.MarshalIndent(assessment, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to create JSON output: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("Score: %d (%s)\n", assessment.Score, assessment.Tier)
	if len(assessment.Issues) > 0 {
		fmt.Printf("Issues: %s\n", strings.Join(assessment.Issues, "; "))
	}
	if assessment.Score < gate {
		qe := &ocr.QualityError{Assessment: assessment, Gate: gate}
		return fmt.Errorf("%s: %w", ocr.UserMessage(qe), qe)
	}
	fmt.Println("The image passes the quality gate.")
	return nil
}
