package usecase

import (
	"fmt"
	"sort"
	"strings"

	"verilogai/internal/domain"
)

func systemBase() string {
	return "You are VerilogAI, an expert assistant for hardware design, Verilog/SystemVerilog, " +
		"FPGA development, and testbench generation. Be precise and follow synthesizable best practices."
}

func systemGenerate(language string) string {
	target := "Verilog-2001"
	if language == LanguageSystemVerilog {
		target = "SystemVerilog (IEEE 1800)"
	}
	return strings.Join([]string{
		systemBase(),
		"Rules:",
		"- Target " + target + " (synthesizable).",
		"- Use non-blocking (<=) in sequential always blocks; blocking (=) in combinational where appropriate.",
		"- Avoid latches; use complete sensitivity lists or always @(*) for combinational logic.",
		"- Provide concise comments.",
		"- No $display/$monitor unless explicitly requested.",
	}, "\n")
}

func systemDebug() string {
	return systemBase() + "\nTask: Review and fix the user's Verilog. Identify syntax, latch inference, " +
		"reset/timing issues, and non-synthesizable constructs. Return a short list of issues, then the corrected code."
}

func systemExplain() string {
	return systemBase() + "\nTask: Explain the given Verilog for a learner. Describe module I/O, regs/wires, " +
		"always blocks, and behavior step-by-step."
}

func systemOptimize() string {
	return systemBase() + "\nTask: Optimize the user's Verilog for the requested implementation target and objective. " +
		"Keep the design functionally equivalent and explain every change."
}

func systemTestbench() string {
	return systemBase() + "\nTask: Write a self-checking testbench for the given design under test. " +
		"Drive clocks and resets explicitly and report pass/fail at the end of simulation."
}

func systemAnalyze() string {
	return systemBase() + "\nTask: Review the design quality of the given Verilog using the static analysis " +
		"summary as a starting point. Rate maintainability and synthesizability and list concrete improvements."
}

func buildChatMessages(in ChatInput) []domain.ChatMessage {
	messages := []domain.ChatMessage{{Role: domain.RoleSystem, Content: systemBase()}}
	messages = append(messages, in.History...)

	prompt := in.Prompt
	if ctx := strings.TrimSpace(in.Context); ctx != "" {
		prompt = fmt.Sprintf("Context:\n%s\n\nQuestion:\n%s", ctx, in.Prompt)
	}
	return append(messages, domain.ChatMessage{Role: domain.RoleUser, Content: prompt})
}

func buildGeneratePrompt(in GenerateInput, includeAssertions, includeCoverage bool) string {
	lines := []string{
		fmt.Sprintf("Generate a synthesizable %s module from this spec.", languageLabel(in.Language)),
		"Include: clear module/ports, parameters if relevant, proper resets, and brief comments.",
		"",
		"Requirements:",
		"- Implementation target: " + in.Target,
		"- Optimization priority: " + in.Optimization,
	}
	if includeAssertions {
		lines = append(lines, "- Add SystemVerilog assertions (SVA) for key protocol and state invariants.")
	}
	if includeCoverage {
		lines = append(lines, "- Add functional coverage points for the main operating modes.")
	}
	lines = append(lines, "", "Spec:", in.Spec)
	return strings.Join(lines, "\n")
}

func buildDebugPrompt(in DebugInput, analysis domain.AnalysisResult) string {
	lines := []string{
		"Analyze and correct the following Verilog. " +
			"First list issues; then provide corrected code in a single fenced block.",
		"Review depth: " + in.AnalysisDepth + ". " + depthGuidance(in.AnalysisDepth),
	}
	if in.FileName != "" {
		lines = append(lines, "File: "+in.FileName)
	}
	lines = append(lines,
		"",
		"Static analysis:",
		formatAnalysis(analysis),
		"",
		"Code:",
		in.Code,
	)
	return strings.Join(lines, "\n")
}

func buildExplainPrompt(in ExplainInput, analysis domain.AnalysisResult) string {
	return strings.Join([]string{
		"Explain clearly for a beginner. Cover ports, signals, always blocks, and overall behavior.",
		"Detail level: " + in.AnalysisDepth + ". " + depthGuidance(in.AnalysisDepth),
		fmt.Sprintf("Design size: %d module(s), %d lines, %s complexity.",
			len(analysis.Modules), analysis.LinesOfCode, complexityOf(analysis)),
		"",
		"Code:",
		in.Code,
	}, "\n")
}

func buildOptimizePrompt(in OptimizeInput, analysis domain.AnalysisResult) string {
	lines := []string{
		fmt.Sprintf("Optimize the following Verilog for %s with a %s objective.", strings.ToUpper(in.Target), in.Objective),
		objectiveGuidance(in.Objective),
		"Return the optimized code in a single fenced block followed by a list of changes and their expected effect.",
	}
	if len(in.Constraints) > 0 {
		lines = append(lines, "", "Constraints:")
		lines = append(lines, formatConstraints(in.Constraints)...)
	}
	lines = append(lines,
		"",
		"Static analysis:",
		formatAnalysis(analysis),
		"",
		"Code:",
		in.Code,
	)
	return strings.Join(lines, "\n")
}

func buildTestbenchPrompt(in TestbenchInput, includeCoverage bool, modules []domain.ExtractedModule) string {
	lines := []string{
		fmt.Sprintf("Write a %s %s testbench for the design under test below.", in.TestType, languageLabel(in.Language)),
		testTypeGuidance(in.TestType),
	}
	if includeCoverage {
		lines = append(lines, "Include covergroups for inputs and state transitions, and report coverage at the end.")
	}
	lines = append(lines, "", "Modules under test:")
	for _, m := range modules {
		lines = append(lines, fmt.Sprintf("- %s (%s)", m.Name, collapseWhitespace(m.Ports)))
	}
	lines = append(lines, "", "DUT code:", in.DUTCode)
	return strings.Join(lines, "\n")
}

func buildAnalyzePrompt(code string, analysis domain.AnalysisResult) string {
	return strings.Join([]string{
		"Review the following Verilog design. Summarize its structure, then list risks and improvements.",
		"",
		"Static analysis:",
		formatAnalysis(analysis),
		"",
		"Code:",
		code,
	}, "\n")
}

func formatAnalysis(a domain.AnalysisResult) string {
	modules := "none"
	if names := a.ModuleNames(); len(names) > 0 {
		modules = strings.Join(names, ", ")
	}
	clocks := "none"
	if len(a.ClockDomains) > 0 {
		clocks = strings.Join(a.ClockDomains, ", ")
	}
	lines := []string{
		"- Modules: " + modules,
		"- Clock domains: " + clocks,
		fmt.Sprintf("- Lines of code: %d", a.LinesOfCode),
	}
	if len(a.StyleIssues) == 0 {
		return strings.Join(append(lines, "- Style issues: none"), "\n")
	}
	lines = append(lines, "- Style issues:")
	for _, issue := range a.StyleIssues {
		lines = append(lines, fmt.Sprintf("  - line %d [%s] %s", issue.Line, issue.Severity, issue.Message))
	}
	return strings.Join(lines, "\n")
}

func formatConstraints(constraints map[string]any) []string {
	keys := make([]string, 0, len(constraints))
	for k := range constraints {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("- %s: %v", k, constraints[k]))
	}
	return out
}

func languageLabel(language string) string {
	switch strings.ToLower(language) {
	case LanguageVerilog2001:
		return "Verilog-2001"
	case LanguageSystemVerilog:
		return "SystemVerilog"
	default:
		return language
	}
}

func depthGuidance(depth string) string {
	switch depth {
	case DepthBasic:
		return "Keep it short and focus on the most important points."
	case DepthComprehensive:
		return "Be exhaustive, including corner cases, reset behavior, and clock-domain crossings."
	default:
		return "Cover the main points with brief justification."
	}
}

func objectiveGuidance(objective string) string {
	switch objective {
	case ObjectiveArea:
		return "Minimize logic and register usage; share resources where timing allows."
	case ObjectiveTiming:
		return "Shorten critical paths; pipeline or retime where latency permits."
	case ObjectivePower:
		return "Reduce switching activity; use clock enables and operand isolation."
	default:
		return "Balance area, timing, and power without sacrificing readability."
	}
}

func testTypeGuidance(testType string) string {
	switch testType {
	case TestTypeBasic:
		return "Cover reset and a few directed smoke tests."
	case TestTypePerformance:
		return "Measure throughput and latency under sustained back-to-back traffic."
	default:
		return "Combine directed tests with constrained-random stimulus and a scoreboard."
	}
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
