package workflow

import (
	"context"
	"fmt"
	"time"

	"smarthire-ats/internal/config"
	"smarthire-ats/internal/logger"
	"smarthire-ats/internal/processor"
	"smarthire-ats/internal/types"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("workflow")

// JobStore 招聘流程的持久化依赖
type JobStore interface {
	CreateJob(ctx context.Context, job *types.JobPosting, experienceLevel, employmentType string) error
	ListApplications(ctx context.Context) ([]types.ApplicationRecord, error)
	ListApplicationsByJob(ctx context.Context, jobID string) ([]types.ApplicationRecord, error)
	SaveInterviews(ctx context.Context, interviews []types.ScheduledInterview) error
	SaveInterviewResults(ctx context.Context, results []types.InterviewResult) error
	SaveOffers(ctx context.Context, jobID string, offers []types.Offer) error
	SaveOnboarding(ctx context.Context, records []types.OnboardingRecord) error
}

// Scorer 对一批申请执行 ATS 评分，返回结果已按分数降序
type Scorer interface {
	ProcessApplications(ctx context.Context, apps []types.ApplicationRecord) *processor.BatchSummary
}

// Stage 单个流程阶段，只读取状态并返回需要修改的字段
type Stage func(ctx context.Context, st *WorkflowState) (StateUpdate, error)

// Workflow 招聘流程编排
type Workflow struct {
	jobs   JobStore
	scorer Scorer
	jd     JDGenerator
	cfg    config.WorkflowConfig
	now    func() time.Time
	logger zerolog.Logger
}

// Option 流程配置项
type Option func(*Workflow)

// WithClock 替换时钟
func WithClock(now func() time.Time) Option {
	return func(w *Workflow) {
		if now != nil {
			w.now = now
		}
	}
}

// WithLogger 设置日志记录器
func WithLogger(l zerolog.Logger) Option {
	return func(w *Workflow) {
		w.logger = l
	}
}

// New 创建招聘流程。jd 为空时使用模板生成器
func New(jobs JobStore, scorer Scorer, jd JDGenerator, cfg config.WorkflowConfig, opts ...Option) (*Workflow, error) {
	if jobs == nil {
		return nil, types.NewConfigurationError("workflow.store", "存储未初始化")
	}
	if scorer == nil {
		return nil, types.NewConfigurationError("workflow.scorer", "评分器未初始化")
	}
	if cfg.ShortlistSize <= 0 {
		return nil, types.NewConfigurationError("workflow.shortlist_size", "必须大于0，当前为 %d", cfg.ShortlistSize)
	}
	if jd == nil {
		jd = NewLLMJDGenerator(nil)
	}
	w := &Workflow{
		jobs:   jobs,
		scorer: scorer,
		jd:     jd,
		cfg:    cfg,
		now:    time.Now,
		logger: logger.Component("workflow"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Config 返回流程配置
func (w *Workflow) Config() config.WorkflowConfig { return w.cfg }

// NewState 使用流程的默认地点创建初始状态
func (w *Workflow) NewState(req Request) *WorkflowState {
	return NewState(req, w.cfg.DefaultLocation)
}

// Run 依次执行全部阶段。阶段出错时记录到 state.Errors，出错阶段不交出未持久化的记录，后续阶段只处理已成功的部分
func (w *Workflow) Run(ctx context.Context, req Request) (*WorkflowState, error) {
	ctx, span := tracer.Start(ctx, "workflow.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("workflow.company", req.CompanyName),
		attribute.String("workflow.role", req.JobRole),
	)

	st := w.NewState(req)
	stages := []struct {
		name string
		fn   Stage
	}{
		{"generate_jd", w.GenerateJD},
		{"approve", w.Approve},
		{"post", w.Post},
		{"monitor_applications", w.MonitorApplications},
		{"shortlist", w.Shortlist},
		{"schedule_interviews", w.ScheduleInterviews},
		{"score_interviews", w.ScoreInterviews},
		{"extend_offers", w.ExtendOffers},
		{"onboard", w.Onboard},
	}

	start := w.now()
	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			st.Errors = append(st.Errors, fmt.Sprintf("%s: %v", s.name, err))
			return st, err
		}
		update, err := s.fn(ctx, st)
		st.Apply(update)
		if err != nil {
			w.logger.Warn().Err(err).Str("stage", s.name).Msg("流程阶段失败，继续执行后续阶段")
			st.Errors = append(st.Errors, fmt.Sprintf("%s: %v", s.name, err))
		}
	}

	w.logger.Info().
		Str("company", st.CompanyName).
		Str("role", st.JobRole).
		Str("job_id", st.JobID).
		Int("applications", st.ApplicationCount).
		Int("shortlisted", len(st.Shortlist)).
		Int("offers", len(st.Offers)).
		Int("errors", len(st.Errors)).
		Dur("duration", w.now().Sub(start)).
		Msg("招聘流程执行完成")
	return st, nil
}
