package models

import "strings"

// ExtractedReport is the ordered text of one lab report image.
// Line order follows the physical layout and is significant to the analysis.
type ExtractedReport struct {
	Lines     []string `json:"lines"`
	LineCount int      `json:"line_count"`
}

// NewExtractedReport copies lines so callers cannot mutate the report afterwards.
func NewExtractedReport(lines []string) *ExtractedReport {
	cp := make([]string, len(lines))
	copy(cp, lines)
	return &ExtractedReport{Lines: cp, LineCount: len(cp)}
}

// Text joins the lines in order.
func (r *ExtractedReport) Text() string {
	if r == nil {
		return ""
	}
	return strings.Join(r.Lines, "\n")
}

type Direction string

const (
	DirectionHigh Direction = "High"
	DirectionLow  Direction = "Low"
)

// Finding is a single test value outside its normal range.
type Finding struct {
	TestName    string    `json:"test_name"`
	Value       string    `json:"value"`
	Direction   Direction `json:"direction"`
	NormalRange string    `json:"normal_range"`
}

// AnalysisResult is produced once per request by the selected provider.
// Successful distinguishes "nothing abnormal" from "analysis could not run".
type AnalysisResult struct {
	Findings   []Finding `json:"findings"`
	Summary    string    `json:"summary"`
	Advice     []string  `json:"advice"`
	Successful bool      `json:"successful"`
	Provider   string    `json:"provider"`
}

// Report is what the user sees.
type Report struct {
	Analysis           string `json:"analysis"`
	ExtractedText      string `json:"extractedText"`
	AnalysisSuccessful bool   `json:"analysisSuccessful"`
}
