package domain

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// ExtractedModule is one module header found in a source text. Start and End
// are character offsets of the whole header match.
type ExtractedModule struct {
	Name       string `json:"name"`
	Parameters string `json:"parameters,omitempty"`
	Ports      string `json:"ports"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
}

// StyleIssue is a single line-local lint finding.
type StyleIssue struct {
	Severity Severity `json:"severity"`
	Line     int      `json:"line"`
	Rule     string   `json:"rule"`
	Message  string   `json:"message"`
}

// AnalysisResult aggregates everything the analyzer derives from one text.
type AnalysisResult struct {
	Modules      []ExtractedModule `json:"modules"`
	ClockDomains []string          `json:"clock_domains"`
	StyleIssues  []StyleIssue      `json:"style_issues"`
	LinesOfCode  int               `json:"lines_of_code"`
}

// ModuleNames returns the module names in source order.
func (r AnalysisResult) ModuleNames() []string {
	names := make([]string, 0, len(r.Modules))
	for _, m := range r.Modules {
		names = append(names, m.Name)
	}
	return names
}
