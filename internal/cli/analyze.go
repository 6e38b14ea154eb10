package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"labreader/internal/logger"
	"labreader/internal/pipeline"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run the report pipeline once on a local image",
	Long: `Run intake, OCR, analysis and report assembly on a single image file and print
the result. The image is copied into the upload directory and removed again, the
source file is never modified.`,
	Example: `  # Print the report as text
  labreader analyze --image report.jpg

  # Print the report as JSON
  labreader analyze --image report.png --json`,
	Args: cobra.NoArgs,
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringP("image", "i", "", "Path to the lab report image")
	analyzeCmd.Flags().Bool("json", false, "Output as JSON")
	_ = analyzeCmd.MarkFlagRequired("image")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	imagePath, _ := cmd.Flags().GetString("image")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := logger.WithComponent("analyze")

	f, err := os.Open(imagePath)
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat image: %w", err)
	}
	mimeType, err := detectMimeType(f, imagePath)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	log.Info().Str("image", imagePath).Str("mime_type", mimeType).Msg("analyzing image")
	report, err := a.pipeline.Process(ctx, pipeline.Upload{
		Body:     f,
		FileName: filepath.Base(imagePath),
		MimeType: mimeType,
		Size:     info.Size(),
	})
	if err != nil {
		return fmt.Errorf("%s: %w", pipeline.Kind(err), err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	fmt.Fprintln(out, report.Analysis)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Extracted text:")
	fmt.Fprintln(out, report.ExtractedText)
	return nil
}

// detectMimeType trusts the extension first and falls back to content sniffing.
func detectMimeType(f *os.File, path string) (string, error) {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); strings.HasPrefix(t, "image/") {
		return t, nil
	}
	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return "", fmt.Errorf("read image: %w", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return "", fmt.Errorf("rewind image: %w", err)
	}
	return http.DetectContentType(buf[:n]), nil
}
