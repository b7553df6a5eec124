package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"smarthire-ats/internal/logger"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
)

const (
	DefaultExperienceLevel = "MID"
	DefaultEmploymentType  = "FULL_TIME"

	defaultJDTimeout = 60 * time.Second
)

// MarketResearch JD 生成时参考的市场信息
type MarketResearch struct {
	Summary      string   `json:"summary"`
	Location     string   `json:"location"`
	Salary       string   `json:"salary"`
	MarketSkills []string `json:"market_skills"`
}

// DefaultResearch 无外部调研数据时使用的行业通用信息
func DefaultResearch() MarketResearch {
	return MarketResearch{
		Summary:      "Industry-standard expectations were applied.",
		Location:     "Remote",
		Salary:       "Competitive",
		MarketSkills: []string{"Communication", "Problem Solving", "Cloud Basics"},
	}
}

// JDRequest 生成 JD 所需的岗位信息
type JDRequest struct {
	CompanyName     string
	JobRole         string
	Location        string
	ExperienceLevel string
	EmploymentType  string
}

// JDGenerator 岗位描述生成接口
type JDGenerator interface {
	Generate(ctx context.Context, req JDRequest) (string, error)
}

const jdSystemPrompt = "You are an experienced technical recruiter who writes clear, enterprise-grade job descriptions in Markdown."

// LLMJDGenerator 基于对话模型生成 JD，模型为空时使用固定模板
type LLMJDGenerator struct {
	llmModel model.BaseChatModel
	research MarketResearch
	timeout  time.Duration
	logger   zerolog.Logger
}

// JDGeneratorOption JD 生成器配置项
type JDGeneratorOption func(*LLMJDGenerator)

// WithResearch 替换默认市场调研数据
func WithResearch(r MarketResearch) JDGeneratorOption {
	return func(g *LLMJDGenerator) {
		g.research = r
	}
}

// WithJDTimeout 设置单次模型调用超时
func WithJDTimeout(d time.Duration) JDGeneratorOption {
	return func(g *LLMJDGenerator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithJDLogger 设置日志记录器
func WithJDLogger(l zerolog.Logger) JDGeneratorOption {
	return func(g *LLMJDGenerator) {
		g.logger = l
	}
}

// NewLLMJDGenerator 创建 JD 生成器，llmModel 可以为 nil
func NewLLMJDGenerator(llmModel model.BaseChatModel, opts ...JDGeneratorOption) *LLMJDGenerator {
	g := &LLMJDGenerator{
		llmModel: llmModel,
		research: DefaultResearch(),
		timeout:  defaultJDTimeout,
		logger:   logger.Component("jd_generator"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate 生成 JD 文本。模型调用失败时返回错误，由调用方决定兜底内容
func (g *LLMJDGenerator) Generate(ctx context.Context, req JDRequest) (string, error) {
	req = normalizeJDRequest(req, g.research.Location)
	research := g.research
	research.Location = req.Location

	if g.llmModel == nil {
		g.logger.Info().Str("role", req.JobRole).Msg("未配置对话模型，使用模板生成JD")
		return TemplateJD(req, research), nil
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	resp, err := g.llmModel.Generate(callCtx, []*einoschema.Message{
		einoschema.SystemMessage(jdSystemPrompt),
		einoschema.UserMessage(buildJDPrompt(req, research)),
	})
	if err != nil {
		return "", fmt.Errorf("调用模型生成JD失败: %w", err)
	}
	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return "", fmt.Errorf("模型返回的JD为空")
	}

	g.logger.Info().
		Str("company", req.CompanyName).
		Str("role", req.JobRole).
		Dur("duration", time.Since(start)).
		Int("length", len(content)).
		Msg("JD生成完成")
	return content, nil
}

func normalizeJDRequest(req JDRequest, defaultLocation string) JDRequest {
	if req.Location == "" {
		req.Location = defaultLocation
	}
	if req.ExperienceLevel == "" {
		req.ExperienceLevel = DefaultExperienceLevel
	}
	if req.EmploymentType == "" {
		req.EmploymentType = DefaultEmploymentType
	}
	return req
}

func buildJDPrompt(req JDRequest, r MarketResearch) string {
	var sb strings.Builder
	sb.WriteString("Write an enterprise-grade Job Description.\n\n")
	fmt.Fprintf(&sb, "Company: %s\n", req.CompanyName)
	fmt.Fprintf(&sb, "Role: %s\n", req.JobRole)
	fmt.Fprintf(&sb, "Location: %s\n", req.Location)
	fmt.Fprintf(&sb, "Experience Level: %s\n", req.ExperienceLevel)
	fmt.Fprintf(&sb, "Employment Type: %s\n\n", req.EmploymentType)
	sb.WriteString("Market Research:\n")
	fmt.Fprintf(&sb, "Summary: %s\n", r.Summary)
	fmt.Fprintf(&sb, "Market Skills: %s\n", strings.Join(r.MarketSkills, ", "))
	fmt.Fprintf(&sb, "Salary Trend: %s\n\n", r.Salary)
	sb.WriteString(`STRUCTURE:
1. Role Overview
2. Responsibilities (10 bullet points)
3. Required Skills
4. Preferred Skills
5. Salary & Benefits
6. About the Company
`)
	return sb.String()
}

var templateResponsibilities = []string{
	"Work on key engineering initiatives",
	"Deliver high-quality work",
	"Collaborate with cross-functional teams",
	"Solve complex problems",
	"Improve system performance",
	"Write clean, maintainable code",
	"Participate in code reviews",
	"Support production systems",
	"Follow engineering best practices",
	"Contribute to team planning",
}

// TemplateJD 不依赖模型的固定模板 JD
func TemplateJD(req JDRequest, r MarketResearch) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s - %s\n", req.JobRole, req.CompanyName)
	fmt.Fprintf(&sb, "**Location:** %s\n", req.Location)
	fmt.Fprintf(&sb, "**Experience:** %s\n", req.ExperienceLevel)
	fmt.Fprintf(&sb, "**Employment Type:** %s\n", req.EmploymentType)
	fmt.Fprintf(&sb, "**Salary:** %s\n\n", r.Salary)

	sb.WriteString("## Role Overview\n")
	fmt.Fprintf(&sb, "%s is hiring a skilled **%s**. Market data suggests:\n%s\n\n", req.CompanyName, req.JobRole, r.Summary)

	sb.WriteString("## Responsibilities\n")
	for _, item := range templateResponsibilities {
		fmt.Fprintf(&sb, "- %s\n", item)
	}

	sb.WriteString("\n## Required Skills\n")
	fmt.Fprintf(&sb, "- %s\n", strings.Join(r.MarketSkills, ", "))

	sb.WriteString("\n## Preferred Skills\n- Cloud experience\n- Modern best practices\n- Strong teamwork and communication\n")
	sb.WriteString("\n## Salary & Benefits\n- Competitive salary\n- Growth opportunities\n- Remote flexibility\n")

	fmt.Fprintf(&sb, "\n## About %s\nA forward-thinking, innovation-driven company.\n", req.CompanyName)
	return sb.String()
}

// FailedJD JD 生成失败时写入状态的说明文本
func FailedJD(role string, err error) string {
	return fmt.Sprintf("Job Description for %s (Generation Failed: %v)", role, err)
}
