package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/faceproc/internal/config"
	"github.com/kozaktomas/faceproc/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "faceproc",
	Short: "Face detection post-processing and descriptor matching",
	Long: `faceproc turns raw face detector outputs into face boxes and matches
128-dimensional face descriptors against a labeled gallery.

The gallery lives in PostgreSQL (DATABASE_URL) or in a persisted matcher
JSON file (GALLERY_PATH). Detector presets ship with the binary.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// loadConfig loads the configuration and initializes the logger.
// --debug overrides LOG_DEBUG.
func loadConfig(cmd *cobra.Command) *config.Config {
	cfg := config.Load()
	if debug, err := cmd.Flags().GetBool("debug"); err == nil && debug {
		cfg.Log.Debug = true
	}
	logger.Init(cfg.Log.Debug)
	return cfg
}
