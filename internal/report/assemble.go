package report

import (
	"fmt"
	"strings"

	"labreader/internal/models"
)

const (
	header = "LAB REPORT ANALYSIS"
	rule   = "----------------------------------------"

	disclaimerSuccess = "DISCLAIMER: This analysis was generated automatically from the text of your report " +
		"and is for general information only. It is not a medical diagnosis. Please discuss your results " +
		"with a qualified healthcare professional before making any health decisions."

	disclaimerUnavailable = "DISCLAIMER: Automated analysis could not be completed for this report. " +
		"The extracted text below may contain recognition errors. Please have your results reviewed " +
		"by a qualified healthcare professional."
)

// Assemble renders the analysis and extracted text into the report shown to the user.
func Assemble(result *models.AnalysisResult, extracted *models.ExtractedReport) *models.Report {
	successful := result != nil && result.Successful

	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n\n")

	if result != nil {
		if len(result.Findings) > 0 {
			b.WriteString("Abnormal values:\n")
			for _, f := range result.Findings {
				fmt.Fprintf(&b, "- %s: %s (%s)", f.TestName, f.Value, f.Direction)
				if f.NormalRange != "" {
					fmt.Fprintf(&b, ", normal range %s", f.NormalRange)
				}
				b.WriteString("\n")
			}
			b.WriteString("\n")
		}
		if result.Summary != "" {
			b.WriteString(result.Summary)
			b.WriteString("\n")
		}
		if len(result.Advice) > 0 {
			b.WriteString("\nAdvice:\n")
			for _, a := range result.Advice {
				b.WriteString("- ")
				b.WriteString(a)
				b.WriteString("\n")
			}
		}
	}

	b.WriteString("\n")
	b.WriteString(rule)
	b.WriteString("\n")
	if successful {
		b.WriteString(disclaimerSuccess)
	} else {
		b.WriteString(disclaimerUnavailable)
	}

	return &models.Report{
		Analysis:           b.String(),
		ExtractedText:      extracted.Text(),
		AnalysisSuccessful: successful,
	}
}
