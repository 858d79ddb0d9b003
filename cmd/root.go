package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"docscan/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "docscan",
	Short: "docscan - Identity document scanning and field extraction",
	Long: `docscan reads photos of identity documents (passports, driver's
licenses, national ID cards) and returns the recognized text and
structured fields.

Each image passes a quality gate and a deterministic preprocessing
pipeline, then an ordered chain of recognition backends: ID-specialized
cloud services first, Google Cloud Vision next and the local Tesseract
engine last. Backends without credentials are skipped.`,
	Version: version,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.WithComponent("root")
		log.Info().
			Str("version", version).
			Msg("docscan executed")

		fmt.Println("Welcome to docscan!")
		fmt.Println("Use --help to see available commands and options.")
	},
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information")
}
