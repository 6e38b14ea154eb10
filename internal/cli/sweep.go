package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"labreader/internal/janitor"
	"labreader/internal/logger"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove uploads and OCR artifacts left behind by interrupted requests",
	Args:  cobra.NoArgs,
	RunE:  runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)

	sweepCmd.Flags().Duration("older-than", 0, "Only remove files older than this (default: temp_file_ttl from config)")
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ttl, _ := cmd.Flags().GetDuration("older-than")
	if ttl <= 0 {
		ttl = time.Duration(cfg.BasicConfig.TempFileTTL) * time.Minute
	}

	db, store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	removed, err := janitor.New(store, ttl, logger.WithComponent("janitor")).Sweep(ctx)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %d stale file(s)\n", removed)
	return nil
}
