package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"labreader/internal/config"
	"labreader/internal/logger"
)

var version = "0.3.0"

var rootCmd = &cobra.Command{
	Use:   "labreader",
	Short: "LabReader - plain-language analysis of lab report images",
	Long: `LabReader accepts an image of a medical lab report, extracts its text with an
external OCR tool, flags values outside the normal range and returns a readable
report with a medical disclaimer.

Run without a subcommand to start the web server.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
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
	rootCmd.PersistentFlags().StringP("config", "c", os.Getenv("LABREADER_CONFIG"), "Path to a JSON or YAML config file (default: config.json)")
}

// loadConfig reads the config file and re-initializes logging from it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := logger.Setup(cfg.Log); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, nil
}
