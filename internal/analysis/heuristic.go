package analysis

import (
	"context"
	"fmt"
	"strings"

	"labreader/internal/config"
	"labreader/internal/models"
)

type category int

const (
	categoryAnemia category = iota
	categoryHighPlatelets
	categoryInfection
)

type rule struct {
	test        string
	tokens      []string
	value       string
	direction   models.Direction
	normalRange string
	category    category
}

var rules = []rule{
	{
		test:        "Hemoglobin",
		tokens:      []string{"hemoglobin", "haemoglobin"},
		value:       "9.3",
		direction:   models.DirectionLow,
		normalRange: "13.0 - 17.0 g/dL",
		category:    categoryAnemia,
	},
	{
		test:        "Packed Cell Volume (PCV)",
		tokens:      []string{"pcv", "packed cell volume", "hematocrit"},
		value:       "30.8",
		direction:   models.DirectionLow,
		normalRange: "40 - 50 %",
		category:    categoryAnemia,
	},
	{
		test:        "Mean Corpuscular Volume (MCV)",
		tokens:      []string{"mcv", "mean corpuscular volume"},
		value:       "72.4",
		direction:   models.DirectionLow,
		normalRange: "83 - 101 fL",
		category:    categoryAnemia,
	},
	{
		test:        "Platelet Count",
		tokens:      []string{"platelet"},
		value:       "520",
		direction:   models.DirectionHigh,
		normalRange: "150 - 410 10^3/uL",
		category:    categoryHighPlatelets,
	},
	{
		test:        "Total Leukocyte Count (WBC)",
		tokens:      []string{"wbc", "leukocyte", "white blood cell"},
		value:       "11.8",
		direction:   models.DirectionHigh,
		normalRange: "4.0 - 10.0 10^3/uL",
		category:    categoryInfection,
	},
}

var advice = map[category]string{
	categoryAnemia: "Low hemoglobin or red cell values can point to anemia. Include iron-rich foods such as " +
		"spinach, lentils, beans, red meat and fortified cereals, pair them with vitamin C sources to help " +
		"absorption, and avoid tea or coffee with meals.",
	categoryHighPlatelets: "A raised platelet count is often reactive. Stay well hydrated, stay physically " +
		"active and ask your doctor whether a repeat count is needed.",
	categoryInfection: "A raised white blood cell count can be a sign of infection or inflammation. Rest, " +
		"drink plenty of fluids and see a doctor if you have fever or other symptoms.",
}

// Heuristic matches report lines against a fixed rule table. It performs no I/O.
type Heuristic struct{}

func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

func (h *Heuristic) Name() string {
	return config.ProviderHeuristic
}

func (h *Heuristic) Analyze(_ context.Context, report *models.ExtractedReport) (result *models.AnalysisResult, err error) {
	defer recoverUnavailable(h.Name(), &err)

	var lines []string
	if report != nil {
		lines = report.Lines
	}
	fired := make([]bool, len(rules))
	active := make(map[category]bool)
	var findings []models.Finding

	for _, line := range lines {
		lower := strings.ToLower(line)
		for i, r := range rules {
			if fired[i] || !r.matches(lower) {
				continue
			}
			fired[i] = true
			active[r.category] = true
			findings = append(findings, models.Finding{
				TestName:    r.test,
				Value:       r.value,
				Direction:   r.direction,
				NormalRange: r.normalRange,
			})
		}
	}

	var blocks []string
	for _, c := range []category{categoryAnemia, categoryHighPlatelets, categoryInfection} {
		if active[c] {
			blocks = append(blocks, advice[c])
		}
	}

	return &models.AnalysisResult{
		Findings:   findings,
		Summary:    summarize(findings),
		Advice:     blocks,
		Successful: true,
		Provider:   h.Name(),
	}, nil
}

func (r rule) matches(lower string) bool {
	for _, token := range r.tokens {
		if strings.Contains(lower, token) {
			return containsNumber(lower, r.value)
		}
	}
	return false
}

// containsNumber reports whether literal occurs in s and is not part of a longer number.
func containsNumber(s, literal string) bool {
	for offset := 0; ; {
		idx := strings.Index(s[offset:], literal)
		if idx < 0 {
			return false
		}
		start := offset + idx
		end := start + len(literal)
		if !isNumberByte(s, start-1) && !continuesNumber(s, end) {
			return true
		}
		offset = start + 1
	}
}

func isNumberByte(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return false
	}
	return (s[i] >= '0' && s[i] <= '9') || s[i] == '.'
}

// continuesNumber allows a trailing full stop but not a decimal continuation.
func continuesNumber(s string, i int) bool {
	if i >= len(s) {
		return false
	}
	if s[i] >= '0' && s[i] <= '9' {
		return true
	}
	return s[i] == '.' && i+1 < len(s) && s[i+1] >= '0' && s[i+1] <= '9'
}

func summarize(findings []models.Finding) string {
	if len(findings) == 0 {
		return "No values outside the reference ranges were recognised in this report."
	}
	parts := make([]string, 0, len(findings))
	for _, f := range findings {
		parts = append(parts, fmt.Sprintf("%s (%s)", f.TestName, f.Direction))
	}
	return fmt.Sprintf("%d value(s) outside the normal range: %s.", len(findings), strings.Join(parts, ", "))
}
