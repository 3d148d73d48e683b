// Package analyzer produces a best-effort structural summary of Verilog and
// SystemVerilog text using regular expressions. It is not a parser: headers with
// nested parentheses, comparisons written with "==" and digits inside string
// literals all produce the false positives or misses a textual scan implies.
package analyzer

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"verilogai/internal/domain"
)

const (
	RuleBlockingInSequential = "blocking-in-sequential"
	RuleMagicNumber          = "magic-number"

	ComplexityLow    = "low"
	ComplexityMedium = "medium"
	ComplexityHigh   = "high"
)

var (
	// module <name> [#(<params>)] (<ports>);
	moduleRe = regexp.MustCompile(`(?s)\bmodule\s+(\w+)\s*(?:#\s*\(([^)]*)\)\s*)?\((.*?)\)\s*;`)

	// always_ff/always @(posedge sig) and @(negedge sig); first edge only.
	clockRe = regexp.MustCompile(`\balways(?:_ff)?\s*@\s*\(\s*(?:posedge|negedge)\s+(\w+)`)

	magicNumberRe = regexp.MustCompile(`\b\d{2,}\b`)
)

// Analyze runs every check over code.
func Analyze(code string) domain.AnalysisResult {
	return domain.AnalysisResult{
		Modules:      ExtractModules(code),
		ClockDomains: AnalyzeClockDomains(code),
		StyleIssues:  CheckCodingStyle(code),
		LinesOfCode:  CountLines(code),
	}
}

// ExtractModules returns every module header in order of appearance.
func ExtractModules(code string) []domain.ExtractedModule {
	matches := moduleRe.FindAllStringSubmatchIndex(code, -1)
	modules := make([]domain.ExtractedModule, 0, len(matches))
	offsets := runeOffsets{text: code}
	for _, m := range matches {
		mod := domain.ExtractedModule{
			Name:  code[m[2]:m[3]],
			Ports: strings.TrimSpace(code[m[6]:m[7]]),
			Start: offsets.at(m[0]),
			End:   offsets.at(m[1]),
		}
		if m[4] >= 0 {
			mod.Parameters = strings.TrimSpace(code[m[4]:m[5]])
		}
		modules = append(modules, mod)
	}
	return modules
}

// AnalyzeClockDomains returns the distinct edge-triggered signal names, sorted.
func AnalyzeClockDomains(code string) []string {
	seen := make(map[string]struct{})
	for _, m := range clockRe.FindAllStringSubmatch(code, -1) {
		seen[m[1]] = struct{}{}
	}
	domains := make([]string, 0, len(seen))
	for name := range seen {
		domains = append(domains, name)
	}
	sort.Strings(domains)
	return domains
}

// CheckCodingStyle scans code line by line and reports heuristic style issues
// in line order.
func CheckCodingStyle(code string) []domain.StyleIssue {
	issues := make([]domain.StyleIssue, 0)
	for i, line := range strings.Split(code, "\n") {
		lineNo := i + 1
		if isSequentialHeader(line) && hasBlockingAssignment(line) {
			issues = append(issues, domain.StyleIssue{
				Severity: domain.SeverityWarning,
				Line:     lineNo,
				Rule:     RuleBlockingInSequential,
				Message:  "Blocking assignment (=) in sequential block; use non-blocking (<=)",
			})
		}
		if magicNumberRe.MatchString(line) && !strings.Contains(line, "parameter") && !strings.Contains(line, "//") {
			issues = append(issues, domain.StyleIssue{
				Severity: domain.SeverityInfo,
				Line:     lineNo,
				Rule:     RuleMagicNumber,
				Message:  "Magic number; consider a parameter or localparam",
			})
		}
	}
	return issues
}

// CountLines returns the number of non-blank lines.
func CountLines(code string) int {
	n := 0
	for _, line := range strings.Split(code, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}

// Complexity buckets a line count into a coarse marker for prompts.
func Complexity(linesOfCode int) string {
	switch {
	case linesOfCode > 200:
		return ComplexityHigh
	case linesOfCode > 50:
		return ComplexityMedium
	default:
		return ComplexityLow
	}
}

func isSequentialHeader(line string) bool {
	return strings.Contains(line, "always_ff") || strings.Contains(line, "always @(posedge")
}

func hasBlockingAssignment(line string) bool {
	idx := strings.Index(line, "=")
	if idx < 0 || strings.Contains(line, "<=") {
		return false
	}
	return !strings.Contains(line[:idx], "//")
}

// runeOffsets converts increasing byte offsets into character offsets without
// rescanning the prefix each time.
type runeOffsets struct {
	text  string
	byteN int
	runeN int
}

func (r *runeOffsets) at(byteOffset int) int {
	if byteOffset < r.byteN {
		r.byteN, r.runeN = 0, 0
	}
	r.runeN += utf8.RuneCountInString(r.text[r.byteN:byteOffset])
	r.byteN = byteOffset
	return r.runeN
}
