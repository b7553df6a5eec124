package parser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"smarthire-ats/internal/logger"
	"smarthire-ats/internal/types"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
)

// DefaultMaxContextLength 简历与JD预览的最大字符数
const DefaultMaxContextLength = 4000

// 评估上下文中展示的条目数量上限
const (
	contextTopChunks      = 3
	contextMatchingSkills = 20
	contextMissingSkills  = 15
)

var errEmptyEvaluation = errors.New("模型返回空内容")

// ATSEvaluator 基于 RAG 上下文调用判断模型生成定性评估
type ATSEvaluator struct {
	llmModel         model.BaseChatModel
	maxContextLength int
	systemPrompt     string
	logger           zerolog.Logger
}

// ATSEvaluatorOption 评估器选项
type ATSEvaluatorOption func(*ATSEvaluator)

// WithMaxContextLength 设置简历/JD 预览截断长度
func WithMaxContextLength(n int) ATSEvaluatorOption {
	return func(e *ATSEvaluator) {
		if n > 0 {
			e.maxContextLength = n
		}
	}
}

// WithEvaluatorSystemPrompt 覆盖默认的 system 提示词
func WithEvaluatorSystemPrompt(prompt string) ATSEvaluatorOption {
	return func(e *ATSEvaluator) {
		if prompt != "" {
			e.systemPrompt = prompt
		}
	}
}

// WithEvaluatorLogger 设置日志
func WithEvaluatorLogger(l zerolog.Logger) ATSEvaluatorOption {
	return func(e *ATSEvaluator) {
		e.logger = l
	}
}

// NewATSEvaluator 创建定性评估器，判断模型必须可用
func NewATSEvaluator(llmModel model.BaseChatModel, opts ...ATSEvaluatorOption) (*ATSEvaluator, error) {
	if llmModel == nil {
		return nil, types.NewConfigurationError("judgment", "未配置判断模型")
	}
	e := &ATSEvaluator{
		llmModel:         llmModel,
		maxContextLength: DefaultMaxContextLength,
		systemPrompt:     "You are an expert ATS (Applicant Tracking System) evaluator and HR professional.",
		logger:           logger.Component("ats_evaluator"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// BuildContext 把检索到的相似片段和技能分析整理成评估上下文，相同输入得到相同文本
func (e *ATSEvaluator) BuildContext(app *types.ApplicationRecord, sim *types.SimilarityResult, skills *types.ApplicationSkillAnalysis) string {
	var (
		candidate, jobTitle, company string
		semanticScore                float64
		topChunks                    []types.ChunkPair
		comparison                   types.SkillComparison
		resumeExp, requiredExp       int
		degrees                      []string
	)
	if app != nil {
		candidate, jobTitle, company = app.CandidateName, app.Job.Title, app.Job.Company
	}
	if sim != nil {
		semanticScore = sim.OverallScore
		topChunks = sim.TopMatches
		if len(topChunks) > contextTopChunks {
			topChunks = topChunks[:contextTopChunks]
		}
	}
	if skills != nil {
		comparison = skills.SkillComparison
		resumeExp = skills.Resume.Experience.MaxExperience
		requiredExp = skills.JobRequirements.Experience.MinExperience
		degrees = skills.Resume.Education.Degrees
	}

	alignment := "weak"
	switch {
	case semanticScore > 70:
		alignment = "strong"
	case semanticScore > 50:
		alignment = "moderate"
	}

	var sb strings.Builder
	sb.WriteString("\n# ATS EVALUATION CONTEXT\n\n")
	sb.WriteString("## Candidate Information\n")
	fmt.Fprintf(&sb, "- Name: %s\n", candidate)
	fmt.Fprintf(&sb, "- Applying for: %s at %s\n\n", jobTitle, company)

	sb.WriteString("## Semantic Similarity Analysis\n")
	fmt.Fprintf(&sb, "- Overall Similarity Score: %.2f%%\n", semanticScore)
	fmt.Fprintf(&sb, "- Analysis: The resume content shows %s semantic alignment with job requirements.\n\n", alignment)

	sb.WriteString("### Top Matching Resume Sections:\n")
	for i, p := range topChunks {
		fmt.Fprintf(&sb, "%d. Similarity: %.1f%%\n", i+1, p.Similarity*100)
		fmt.Fprintf(&sb, "   Resume: %s\n", p.ResumeText)
		fmt.Fprintf(&sb, "   JD Match: %s\n\n", p.JDText)
	}

	matching := comparison.MatchingSkills
	missing := comparison.MissingSkills
	sb.WriteString("\n## Skills Analysis\n")
	fmt.Fprintf(&sb, "- Skills Match: %.1f%% (%d/%d required skills)\n\n",
		comparison.MatchPercentage, len(matching), len(matching)+len(missing))
	sb.WriteString("### Matching Skills:\n")
	sb.WriteString(joinOrNone(matching, contextMatchingSkills))
	sb.WriteString("\n\n### Missing Critical Skills:\n")
	sb.WriteString(joinOrNone(missing, contextMissingSkills))

	sb.WriteString("\n\n## Experience & Education\n")
	fmt.Fprintf(&sb, "- Resume Experience: %d years mentioned\n", resumeExp)
	fmt.Fprintf(&sb, "- Required Experience: %d years\n", requiredExp)
	education := "Not clearly specified"
	if len(degrees) > 0 {
		education = strings.Join(degrees, ", ")
	}
	fmt.Fprintf(&sb, "- Resume Education: %s\n", education)
	return sb.String()
}

func joinOrNone(items []string, limit int) string {
	if len(items) == 0 {
		return "None"
	}
	if len(items) > limit {
		items = items[:limit]
	}
	return strings.Join(items, ", ")
}

// buildPrompt 组装用户提示词，要求模型严格返回固定 JSON 结构
func (e *ATSEvaluator) buildPrompt(evalContext, resumeText, jdText string) string {
	return fmt.Sprintf(atsPromptTemplate, evalContext,
		truncateRunes(resumeText, e.maxContextLength),
		truncateRunes(jdText, e.maxContextLength))
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

const atsPromptTemplate = `You have been provided with comprehensive analysis data about a job application.

%s

## Resume Preview:
%s

## Job Description Preview:
%s

---

Based on the provided context, semantic analysis, and skill matching data, provide a comprehensive ATS evaluation with the following structure:

1. **Overall ATS Score** (0-100): Provide a numerical score
2. **Key Strengths**: List 3-5 main strengths of this application
3. **Key Weaknesses**: List 3-5 main weaknesses or gaps
4. **Detailed Analysis**: skills alignment, experience relevance, cultural and role fit
5. **Recommendations**: for the candidate and for the recruiter
6. **Pass/Fail Decision**: PASS or FAIL with justification
7. **Interview Recommendation**: YES or NO with confidence level (HIGH/MEDIUM/LOW)

Respond in JSON format with these exact keys:
{
  "ats_score": <number 0-100>,
  "overall_assessment": "<brief summary>",
  "strengths": ["<strength1>", "<strength2>"],
  "weaknesses": ["<weakness1>", "<weakness2>"],
  "detailed_analysis": {
    "skills_alignment": "<analysis>",
    "experience_relevance": "<analysis>",
    "role_fit": "<analysis>"
  },
  "recommendations": {
    "for_candidate": ["<rec1>", "<rec2>"],
    "for_recruiter": ["<rec1>", "<rec2>"]
  },
  "decision": "PASS" or "FAIL",
  "decision_justification": "<explanation>",
  "interview_recommendation": "YES" or "NO",
  "interview_confidence": "HIGH" or "MEDIUM" or "LOW",
  "interview_focus_areas": ["<area1>", "<area2>"]
}

Be objective, professional, and data-driven in your evaluation. Consider the semantic similarity scores and skill matches provided in the context.
`

// Evaluate 调用判断模型。解析失败时返回兜底记录，调用失败时返回 CapabilityFailure 且不带评估。
func (e *ATSEvaluator) Evaluate(ctx context.Context, evalContext, resumeText, jdText string) types.EvaluationOutcome {
	messages := []*einoschema.Message{
		einoschema.SystemMessage(e.systemPrompt),
		einoschema.UserMessage(e.buildPrompt(evalContext, resumeText, jdText)),
	}

	e.logger.Debug().Int("context_len", len(evalContext)).Msg("开始LLM定性评估")

	response, err := e.llmModel.Generate(ctx, messages)
	if err != nil {
		e.logger.Error().Err(err).Msg("LLM调用失败")
		return types.EvaluationOutcome{
			Kind: types.EvaluationCapabilityFailure,
			Err:  fmt.Errorf("%w: %v", types.ErrExternalCapability, err),
		}
	}
	if response == nil || strings.TrimSpace(response.Content) == "" {
		e.logger.Warn().Msg("LLM返回空响应，使用兜底评估")
		return fallbackOutcome(errEmptyEvaluation)
	}

	evaluation, err := ParseEvaluation(response.Content)
	if err != nil {
		e.logger.Warn().Err(err).Str("raw", truncateRunes(response.Content, 500)).Msg("解析LLM评估失败，使用兜底评估")
		return fallbackOutcome(err)
	}

	e.logger.Info().
		Float64("ats_score", evaluation.ATSScore).
		Str("decision", evaluation.Decision).
		Str("interview", evaluation.InterviewRecommendation).
		Msg("LLM评估完成")
	return types.EvaluationOutcome{Kind: types.EvaluationOK, Evaluation: evaluation}
}

func fallbackOutcome(cause error) types.EvaluationOutcome {
	return types.EvaluationOutcome{
		Kind:       types.EvaluationParseFailure,
		Evaluation: FallbackEvaluation(),
		Err:        fmt.Errorf("%w: %v", types.ErrMalformedResponse, cause),
	}
}

// FallbackEvaluation 模型响应无法解析时使用的固定评估
func FallbackEvaluation() *types.QualitativeEvaluation {
	return &types.QualitativeEvaluation{
		ATSScore:          50,
		OverallAssessment: "Evaluation failed - using fallback",
		Strengths:         []string{"Could not parse LLM response"},
		Weaknesses:        []string{"Evaluation error"},
		DetailedAnalysis: types.DetailedAnalysis{
			SkillsAlignment:     "Error in evaluation",
			ExperienceRelevance: "Error in evaluation",
			RoleFit:             "Error in evaluation",
		},
		Recommendations: types.Recommendations{
			ForCandidate: []string{"Retry evaluation"},
			ForRecruiter: []string{"Retry evaluation"},
		},
		Decision:                types.DecisionFail,
		DecisionJustification:   "Evaluation error",
		InterviewRecommendation: types.InterviewNo,
		InterviewConfidence:     types.ConfidenceLow,
		InterviewFocusAreas:     []string{},
	}
}

// ParseEvaluation 从模型原始输出中解析评估。
// 支持 markdown 代码块包裹，解析失败时会尝试修复字符串内未转义的引号。
func ParseEvaluation(content string) (*types.QualitativeEvaluation, error) {
	processed := strings.TrimPrefix(content, "\uFEFF")
	processed = stripCodeFence(processed)

	jsonStr := extractJSONFromEvaluatorResponse(processed)
	if jsonStr == "" {
		return nil, fmt.Errorf("响应中没有JSON对象")
	}
	if !utf8.ValidString(jsonStr) {
		jsonStr = strings.ToValidUTF8(jsonStr, "")
	}

	var result types.QualitativeEvaluation
	// ① 正常解析
	if err := json.Unmarshal([]byte(coerceQuotedScore(jsonStr)), &result); err != nil {
		// ② 解析失败 -> 自动修复再试一次
		fixed := coerceQuotedScore(sanitizeJSON(jsonStr))
		result = types.QualitativeEvaluation{}
		if jsonErr := json.Unmarshal([]byte(fixed), &result); jsonErr != nil {
			return nil, fmt.Errorf("JSON解析失败: %w (修复后: %v)", err, jsonErr)
		}
	}

	if err := validateEvaluationResult(&result); err != nil {
		return nil, err
	}
	normalizeEvaluation(&result)
	return &result, nil
}

// coerceQuotedScore 模型常把分数写成字符串，例如 "ats_score": "82"；能解析为数字时改写为数字，否则原样返回
func coerceQuotedScore(jsonStr string) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(jsonStr), &fields); err != nil {
		return jsonStr
	}
	raw, ok := fields["ats_score"]
	if !ok || len(raw) == 0 || raw[0] != '"' {
		return jsonStr
	}
	var quoted string
	if err := json.Unmarshal(raw, &quoted); err != nil {
		return jsonStr
	}
	score, err := strconv.ParseFloat(strings.TrimSpace(quoted), 64)
	if err != nil {
		return jsonStr
	}
	fields["ats_score"] = json.RawMessage(strconv.FormatFloat(score, 'f', -1, 64))
	out, err := json.Marshal(fields)
	if err != nil {
		return jsonStr
	}
	return string(out)
}

// stripCodeFence 去掉 ```json ... ``` 包裹
func stripCodeFence(text string) string {
	if idx := strings.Index(text, "```json"); idx >= 0 {
		rest := text[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
		return strings.TrimSpace(rest)
	}
	if idx := strings.Index(text, "```"); idx >= 0 {
		rest := text[idx+3:]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
	}
	return text
}

// validateEvaluationResult 校验分数范围与枚举取值
func validateEvaluationResult(result *types.QualitativeEvaluation) error {
	if result.ATSScore < 0 || result.ATSScore > 100 {
		return fmt.Errorf("ats_score 必须在 0-100 之间, 实际为 %v", result.ATSScore)
	}
	result.Decision = strings.ToUpper(strings.TrimSpace(result.Decision))
	result.InterviewRecommendation = strings.ToUpper(strings.TrimSpace(result.InterviewRecommendation))
	result.InterviewConfidence = strings.ToUpper(strings.TrimSpace(result.InterviewConfidence))

	switch result.Decision {
	case types.DecisionPass, types.DecisionFail:
	default:
		return fmt.Errorf("decision 取值非法: %q", result.Decision)
	}
	switch result.InterviewRecommendation {
	case types.InterviewYes, types.InterviewNo:
	default:
		return fmt.Errorf("interview_recommendation 取值非法: %q", result.InterviewRecommendation)
	}
	switch result.InterviewConfidence {
	case types.ConfidenceHigh, types.ConfidenceMedium, types.ConfidenceLow:
	default:
		return fmt.Errorf("interview_confidence 取值非法: %q", result.InterviewConfidence)
	}
	return nil
}

// normalizeEvaluation 把缺失的列表字段置为空切片，保证序列化后是 [] 而不是 null
func normalizeEvaluation(result *types.QualitativeEvaluation) {
	if result.Strengths == nil {
		result.Strengths = []string{}
	}
	if result.Weaknesses == nil {
		result.Weaknesses = []string{}
	}
	if result.Recommendations.ForCandidate == nil {
		result.Recommendations.ForCandidate = []string{}
	}
	if result.Recommendations.ForRecruiter == nil {
		result.Recommendations.ForRecruiter = []string{}
	}
	if result.InterviewFocusAreas == nil {
		result.InterviewFocusAreas = []string{}
	}
}

// extractJSONFromEvaluatorResponse 从文本中提取第一个完整的JSON对象
func extractJSONFromEvaluatorResponse(text string) string {
	start := strings.Index(text, "{")
	if start == -1 {
		return ""
	}
	level := 0
	inStr := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inStr {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			level++
		case '}':
			level--
			if level == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// sanitizeJSON 将位于字符串字面量内部但并非"真正结束"的双引号写成 \"。
// 下一个非空白字符为 : , ] } 时才视为字符串结束。
func sanitizeJSON(src string) string {
	var b strings.Builder
	inStr := false
	escaped := false

	for i := 0; i < len(src); i++ {
		c := src[i]

		switch {
		case c == '"' && !escaped:
			if !inStr {
				inStr = true
				b.WriteByte(c)
				break
			}
			j := i + 1
			for j < len(src) && (src[j] == ' ' || src[j] == '\t' || src[j] == '\n' || src[j] == '\r') {
				j++
			}
			if j < len(src) && (src[j] == ':' || src[j] == ',' || src[j] == ']' || src[j] == '}') {
				inStr = false
				b.WriteByte(c)
			} else {
				b.WriteString("\\\"")
			}
			escaped = false
		case c == '\\' && !escaped:
			escaped = true
			b.WriteByte(c)
		default:
			b.WriteByte(c)
			escaped = false
		}
	}

	return b.String()
}
