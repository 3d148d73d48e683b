package usecase

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"verilogai/internal/analyzer"
	"verilogai/internal/domain"
)

const (
	LanguageVerilog2001    = "verilog2001"
	LanguageSystemVerilog  = "systemverilog"
	TargetFPGA             = "fpga"
	TargetASIC             = "asic"
	TargetGeneric          = "generic"
	OptimizationArea       = "area"
	OptimizationSpeed      = "speed"
	OptimizationPower      = "power"
	OptimizationBalanced   = "balanced"
	DepthBasic             = "basic"
	DepthStandard          = "standard"
	DepthComprehensive     = "comprehensive"
	ObjectiveArea          = "area"
	ObjectiveTiming        = "timing"
	ObjectivePower         = "power"
	ObjectiveBalanced      = "balanced"
	TestTypeBasic          = "basic"
	TestTypeComprehensive  = "comprehensive"
	TestTypePerformance    = "performance"
	previewLength          = 500
	previewEllipsis        = "..."
)

// UploadExtensions lists the accepted source file extensions.
var UploadExtensions = []string{".v", ".sv", ".vh", ".svh"}

var (
	generateLanguages = []string{LanguageVerilog2001, LanguageSystemVerilog}
	generateTargets   = []string{TargetFPGA, TargetASIC, TargetGeneric}
	optimizations     = []string{OptimizationArea, OptimizationSpeed, OptimizationPower, OptimizationBalanced}
	depths            = []string{DepthBasic, DepthStandard, DepthComprehensive}
	optimizeTargets   = []string{TargetFPGA, TargetASIC}
	objectives        = []string{ObjectiveArea, ObjectiveTiming, ObjectivePower, ObjectiveBalanced}
	testTypes         = []string{TestTypeBasic, TestTypeComprehensive, TestTypePerformance}
)

// now is replaced in tests.
var now = time.Now

type LLMClient interface {
	Send(ctx context.Context, messages []domain.ChatMessage) (string, error)
}

type ChatInput struct {
	Prompt  string
	History []domain.ChatMessage
	Context string
}

type ChatOutput struct {
	Reply     string
	Timestamp time.Time
}

// GenerateInput leaves enum fields empty and booleans nil to take the defaults.
type GenerateInput struct {
	Spec              string
	Language          string
	Target            string
	Optimization      string
	IncludeAssertions *bool
	IncludeCoverage   *bool
}

type GenerateOutput struct {
	Reply    string
	Language string
	Target   string
}

type DebugInput struct {
	Code          string
	FileName      string
	AnalysisDepth string
}

type DebugOutput struct {
	Reply    string
	Analysis domain.AnalysisResult
}

type ExplainInput struct {
	Code          string
	AnalysisDepth string
}

type ExplainOutput struct {
	Reply       string
	ModuleCount int
	Complexity  string
}

type OptimizeInput struct {
	Code        string
	Target      string
	Objective   string
	Constraints map[string]any
}

type OptimizeOutput struct {
	Reply     string
	Target    string
	Objective string
}

type TestbenchInput struct {
	DUTCode         string
	TestType        string
	Language        string
	IncludeCoverage *bool
}

type TestbenchOutput struct {
	Reply      string
	DUTModules []string
}

type AnalyzeInput struct {
	Code string
}

type AnalyzeOutput struct {
	Reply    string
	Analysis domain.AnalysisResult
}

type UploadInput struct {
	Filename string
	Content  []byte
}

type UploadOutput struct {
	Filename string
	Size     int
	Modules  []string
	Preview  string
}

// AssistantService composes prompts for each assistant operation and relays
// them to the LLM. It keeps no state between calls.
type AssistantService struct {
	llm LLMClient
}

func NewAssistantService(llm LLMClient) (*AssistantService, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	return &AssistantService{llm: llm}, nil
}

func (s *AssistantService) Chat(ctx context.Context, in ChatInput) (ChatOutput, error) {
	if strings.TrimSpace(in.Prompt) == "" {
		return ChatOutput{}, invalid("empty_prompt", "prompt is required")
	}
	history, err := normalizeHistory(in.History)
	if err != nil {
		return ChatOutput{}, err
	}
	in.History = history

	reply, err := s.send(ctx, buildChatMessages(in))
	if err != nil {
		return ChatOutput{}, err
	}
	return ChatOutput{Reply: reply, Timestamp: now().UTC()}, nil
}

func (s *AssistantService) Generate(ctx context.Context, in GenerateInput) (GenerateOutput, error) {
	if strings.TrimSpace(in.Spec) == "" {
		return GenerateOutput{}, invalid("empty_spec", "spec is required")
	}
	var err error
	if in.Language, err = enumValue("language", in.Language, LanguageSystemVerilog, generateLanguages); err != nil {
		return GenerateOutput{}, err
	}
	if in.Target, err = enumValue("target", in.Target, TargetGeneric, generateTargets); err != nil {
		return GenerateOutput{}, err
	}
	if in.Optimization, err = enumValue("optimization", in.Optimization, OptimizationBalanced, optimizations); err != nil {
		return GenerateOutput{}, err
	}
	assertions := boolValue(in.IncludeAssertions, true)
	coverage := boolValue(in.IncludeCoverage, false)

	reply, err := s.send(ctx, []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: systemGenerate(in.Language)},
		{Role: domain.RoleUser, Content: buildGeneratePrompt(in, assertions, coverage)},
	})
	if err != nil {
		return GenerateOutput{}, err
	}
	return GenerateOutput{Reply: reply, Language: in.Language, Target: in.Target}, nil
}

func (s *AssistantService) Debug(ctx context.Context, in DebugInput) (DebugOutput, error) {
	if strings.TrimSpace(in.Code) == "" {
		return DebugOutput{}, invalid("empty_code", "code is required")
	}
	var err error
	if in.AnalysisDepth, err = enumValue("analysis_depth", in.AnalysisDepth, DepthStandard, depths); err != nil {
		return DebugOutput{}, err
	}
	in.FileName = strings.TrimSpace(in.FileName)

	analysis := analyzer.Analyze(in.Code)
	reply, err := s.send(ctx, []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: systemDebug()},
		{Role: domain.RoleUser, Content: buildDebugPrompt(in, analysis)},
	})
	if err != nil {
		return DebugOutput{}, err
	}
	return DebugOutput{Reply: reply, Analysis: analysis}, nil
}

func (s *AssistantService) Explain(ctx context.Context, in ExplainInput) (ExplainOutput, error) {
	if strings.TrimSpace(in.Code) == "" {
		return ExplainOutput{}, invalid("empty_code", "code is required")
	}
	var err error
	if in.AnalysisDepth, err = enumValue("analysis_depth", in.AnalysisDepth, DepthStandard, depths); err != nil {
		return ExplainOutput{}, err
	}

	analysis := analyzer.Analyze(in.Code)
	reply, err := s.send(ctx, []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: systemExplain()},
		{Role: domain.RoleUser, Content: buildExplainPrompt(in, analysis)},
	})
	if err != nil {
		return ExplainOutput{}, err
	}
	return ExplainOutput{
		Reply:       reply,
		ModuleCount: len(analysis.Modules),
		Complexity:  complexityOf(analysis),
	}, nil
}

func (s *AssistantService) Optimize(ctx context.Context, in OptimizeInput) (OptimizeOutput, error) {
	if strings.TrimSpace(in.Code) == "" {
		return OptimizeOutput{}, invalid("empty_code", "code is required")
	}
	var err error
	if in.Target, err = enumValue("target", in.Target, TargetFPGA, optimizeTargets); err != nil {
		return OptimizeOutput{}, err
	}
	if in.Objective, err = enumValue("objective", in.Objective, ObjectiveBalanced, objectives); err != nil {
		return OptimizeOutput{}, err
	}

	analysis := analyzer.Analyze(in.Code)
	reply, err := s.send(ctx, []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: systemOptimize()},
		{Role: domain.RoleUser, Content: buildOptimizePrompt(in, analysis)},
	})
	if err != nil {
		return OptimizeOutput{}, err
	}
	return OptimizeOutput{Reply: reply, Target: in.Target, Objective: in.Objective}, nil
}

func (s *AssistantService) Testbench(ctx context.Context, in TestbenchInput) (TestbenchOutput, error) {
	if strings.TrimSpace(in.DUTCode) == "" {
		return TestbenchOutput{}, invalid("empty_dut_code", "dut_code is required")
	}
	var err error
	if in.TestType, err = enumValue("test_type", in.TestType, TestTypeComprehensive, testTypes); err != nil {
		return TestbenchOutput{}, err
	}
	// Any language is accepted here; it only labels the prompt.
	if in.Language = strings.TrimSpace(in.Language); in.Language == "" {
		in.Language = LanguageSystemVerilog
	}
	coverage := boolValue(in.IncludeCoverage, true)

	modules := analyzer.ExtractModules(in.DUTCode)
	if len(modules) == 0 {
		return TestbenchOutput{}, invalid("no_module", "no module declaration found in dut_code")
	}

	reply, err := s.send(ctx, []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: systemTestbench()},
		{Role: domain.RoleUser, Content: buildTestbenchPrompt(in, coverage, modules)},
	})
	if err != nil {
		return TestbenchOutput{}, err
	}
	names := make([]string, 0, len(modules))
	for _, m := range modules {
		names = append(names, m.Name)
	}
	return TestbenchOutput{Reply: reply, DUTModules: names}, nil
}

func (s *AssistantService) Analyze(ctx context.Context, in AnalyzeInput) (AnalyzeOutput, error) {
	if strings.TrimSpace(in.Code) == "" {
		return AnalyzeOutput{}, invalid("empty_code", "code is required")
	}

	analysis := analyzer.Analyze(in.Code)
	reply, err := s.send(ctx, []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: systemAnalyze()},
		{Role: domain.RoleUser, Content: buildAnalyzePrompt(in.Code, analysis)},
	})
	if err != nil {
		return AnalyzeOutput{}, err
	}
	return AnalyzeOutput{Reply: reply, Analysis: analysis}, nil
}

// Upload summarizes an uploaded source file without calling the LLM.
func (s *AssistantService) Upload(_ context.Context, in UploadInput) (UploadOutput, error) {
	name := filepath.Base(strings.TrimSpace(in.Filename))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return UploadOutput{}, invalid("missing_filename", "file name is required")
	}
	if !allowedExtension(name) {
		return UploadOutput{}, invalid("unsupported_extension",
			"unsupported file type %q: allowed extensions are %s", filepath.Ext(name), strings.Join(UploadExtensions, ", "))
	}
	if !utf8.Valid(in.Content) {
		return UploadOutput{}, invalid("invalid_encoding", "file must be UTF-8 encoded text")
	}

	code := string(in.Content)
	return UploadOutput{
		Filename: name,
		Size:     len(in.Content),
		Modules:  domain.AnalysisResult{Modules: analyzer.ExtractModules(code)}.ModuleNames(),
		Preview:  preview(code),
	}, nil
}

func (s *AssistantService) send(ctx context.Context, messages []domain.ChatMessage) (string, error) {
	reply, err := s.llm.Send(ctx, messages)
	if err != nil {
		return "", classifyLLMError(err)
	}
	return reply, nil
}

// normalizeHistory validates caller-supplied turns. "assistant" is accepted
// as an alias for the model role.
func normalizeHistory(history []domain.ChatMessage) ([]domain.ChatMessage, error) {
	out := make([]domain.ChatMessage, 0, len(history))
	for i, m := range history {
		role := strings.ToLower(strings.TrimSpace(m.Role))
		switch role {
		case domain.RoleSystem, domain.RoleUser, domain.RoleModel:
		case "assistant":
			role = domain.RoleModel
		default:
			return nil, invalid("invalid_history_role", "history[%d]: unsupported role %q", i, m.Role)
		}
		if strings.TrimSpace(m.Content) == "" {
			return nil, invalid("empty_history_content", "history[%d]: content is required", i)
		}
		out = append(out, domain.ChatMessage{Role: role, Content: m.Content})
	}
	return out, nil
}

func enumValue(field, value, def string, allowed []string) (string, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return def, nil
	}
	for _, a := range allowed {
		if v == a {
			return v, nil
		}
	}
	return "", invalid("invalid_"+field, "invalid %s %q: must be one of %s", field, value, strings.Join(allowed, ", "))
}

func boolValue(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func allowedExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range UploadExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// preview returns the first previewLength characters, ellipsized when longer.
func preview(code string) string {
	if utf8.RuneCountInString(code) <= previewLength {
		return code
	}
	runes := []rune(code)
	return string(runes[:previewLength]) + previewEllipsis
}

func complexityOf(a domain.AnalysisResult) string {
	return analyzer.Complexity(a.LinesOfCode)
}
