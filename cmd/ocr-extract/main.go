// Command ocr-extract reads the text of an image with Tesseract and writes it as
// an OCR artifact: {"extracted_text": [...], "line_count": n}.
//
//	ocr-extract [--lang eng] <input_image_path> <output_json_path>
//
// It exits non-zero when the image cannot be read or the artifact cannot be written.
package main

import (
	"fmt"
	"os"

	"github.com/otiai10/gosseract/v2"
	"github.com/spf13/cobra"

	"labreader/internal/ocr"
)

func main() {
	cmd := &cobra.Command{
		Use:           "ocr-extract <input_image_path> <output_json_path>",
		Short:         "Extract text lines from an image into a JSON artifact",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			lang, _ := cmd.Flags().GetString("lang")
			return extract(args[0], args[1], lang)
		},
	}
	cmd.Flags().String("lang", "eng", "Tesseract language")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ocr-extract: %v\n", err)
		os.Exit(1)
	}
}

func extract(imagePath, outputPath, lang string) error {
	if _, err := os.Stat(imagePath); err != nil {
		return fmt.Errorf("image not found: %w", err)
	}

	client := gosseract.NewClient()
	defer client.Close()
	if err := client.SetLanguage(lang); err != nil {
		return fmt.Errorf("set language: %w", err)
	}
	if err := client.SetImage(imagePath); err != nil {
		return fmt.Errorf("load image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return fmt.Errorf("recognize text: %w", err)
	}

	lines := ocr.SplitLines(text)
	if err := ocr.WriteArtifact(outputPath, lines); err != nil {
		return err
	}
	if len(lines) == 0 {
		fmt.Fprintln(os.Stderr, "ocr-extract: no text found")
	}
	return nil
}
