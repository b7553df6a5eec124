package processor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"smarthire-ats/internal/config"
	"smarthire-ats/internal/logger"
	"smarthire-ats/internal/parser"
	"smarthire-ats/internal/tracing"
	"smarthire-ats/internal/types"

	"github.com/cloudwego/eino/components/model"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("processor")

const (
	defaultWorkers         = 4
	defaultExternalTimeout = 30 * time.Second
)

// Components 聚合流水线依赖的所有组件，便于集中管理和测试替换
type Components struct {
	// 外部数据
	Source       ApplicationSource
	Store        ResultStore
	PDFExtractor PDFExtractor

	// 评分组件
	Chunker       *parser.WindowChunker
	SkillAnalyzer *parser.SkillAnalyzer
	Similarity    *SimilarityEngine
	Evaluator     QualitativeEvaluator
	Aggregator    *ScoreAggregator

	// 可选
	Locker ApplicationLocker
}

// Settings 纯配置项，不包含任何业务逻辑组件
type Settings struct {
	Workers         int
	ExternalTimeout time.Duration
	Logger          *zerolog.Logger
	Now             func() time.Time
}

// CandidateFailure 批处理中失败的候选人
type CandidateFailure struct {
	ApplicationID string                `json:"application_id"`
	CandidateName string                `json:"candidate_name"`
	Stage         PipelineState         `json:"stage"`
	Error         string                `json:"error"`
	Score         *types.CandidateScore `json:"score,omitempty"` // 仅持久化失败时保留已计算的分数
}

// BatchSummary 批处理汇总，Results 已按最终分数降序排列
type BatchSummary struct {
	Total    int                    `json:"total"`
	Results  []types.CandidateScore `json:"results"`
	Failures []CandidateFailure     `json:"failures"`
}

// ATSProcessor 候选人评分流水线
type ATSProcessor struct {
	comp Components
	set  Settings
	log  zerolog.Logger
}

// NewATSProcessor 使用明确分离的组件和设置创建处理器，缺少必需组件时返回配置错误
func NewATSProcessor(comp *Components, set *Settings, opts ...SettingOpt) (*ATSProcessor, error) {
	if comp == nil {
		return nil, types.NewConfigurationError("processor", "组件不能为空")
	}
	if set == nil {
		set = &Settings{}
	}
	for _, opt := range opts {
		opt(set)
	}

	required := []struct {
		name string
		ok   bool
	}{
		{"source", comp.Source != nil},
		{"store", comp.Store != nil},
		{"pdf_extractor", comp.PDFExtractor != nil},
		{"chunker", comp.Chunker != nil},
		{"skill_analyzer", comp.SkillAnalyzer != nil},
		{"similarity", comp.Similarity != nil},
		{"evaluator", comp.Evaluator != nil},
		{"aggregator", comp.Aggregator != nil},
	}
	for _, r := range required {
		if !r.ok {
			return nil, types.NewConfigurationError("processor."+r.name, "组件未初始化")
		}
	}

	if set.Workers <= 0 {
		set.Workers = defaultWorkers
	}
	if set.ExternalTimeout <= 0 {
		set.ExternalTimeout = defaultExternalTimeout
	}
	if set.Now == nil {
		set.Now = time.Now
	}
	l := logger.Component("ats_processor")
	if set.Logger != nil {
		l = *set.Logger
	}

	return &ATSProcessor{comp: *comp, set: *set, log: l}, nil
}

// CreateProcessor 通过选项函数组装处理器
func CreateProcessor(compOpts []ComponentOpt, setOpts []SettingOpt) (*ATSProcessor, error) {
	comp := &Components{}
	for _, opt := range compOpts {
		opt(comp)
	}
	return NewATSProcessor(comp, &Settings{}, setOpts...)
}

// Capabilities 由调用方构建的外部能力
type Capabilities struct {
	Embedder  TextEmbedder
	Judgment  model.BaseChatModel
	Extractor PDFExtractor
	JDCache   EmbeddingCache // 可选
}

// CreateProcessorFromConfig 从配置创建处理器，能力缺失时立即失败
func CreateProcessorFromConfig(cfg *config.Config, caps Capabilities, source ApplicationSource, store ResultStore, extra ...ComponentOpt) (*ATSProcessor, error) {
	if cfg == nil {
		return nil, types.NewConfigurationError("config", "配置不能为空")
	}
	if caps.Embedder == nil {
		return nil, types.NewConfigurationError("embedder", "向量化能力未配置")
	}
	if caps.Extractor == nil {
		return nil, types.NewConfigurationError("pdf_extractor", "PDF提取能力未配置")
	}
	ats := cfg.ATS

	chunker, err := parser.NewWindowChunker(ats.ChunkSize, ats.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	taxonomy := parser.DefaultTaxonomy()
	if len(ats.Taxonomy) > 0 || len(ats.AdditionalSkills) > 0 {
		taxonomy, err = parser.NewTaxonomy(ats.Taxonomy, ats.AdditionalSkills)
		if err != nil {
			return nil, err
		}
	}

	var simOpts []SimilarityOption
	if caps.JDCache != nil {
		simOpts = append(simOpts, WithEmbeddingCache(caps.JDCache))
	}
	similarity, err := NewSimilarityEngine(caps.Embedder, ats.SimilarityThreshold, ats.TopK, simOpts...)
	if err != nil {
		return nil, err
	}

	evaluator, err := parser.NewATSEvaluator(caps.Judgment, parser.WithMaxContextLength(ats.MaxContextLength))
	if err != nil {
		return nil, err
	}

	aggregator, err := NewScoreAggregator(ats.Weights, WithPersistRetry(ats.PersistMaxRetries, 200*time.Millisecond))
	if err != nil {
		return nil, err
	}

	compOpts := []ComponentOpt{
		WithcompSource(source),
		WithcompStore(store),
		WithcompPdfextractor(caps.Extractor),
		WithcompChunker(chunker),
		WithcompSkillanalyzer(parser.NewSkillAnalyzer(taxonomy)),
		WithcompSimilarity(similarity),
		WithcompEvaluator(evaluator),
		WithcompAggregator(aggregator),
	}
	compOpts = append(compOpts, extra...)

	return CreateProcessor(compOpts, []SettingOpt{
		WithsetWorkers(ats.Workers),
		WithsetExternalTimeout(config.GetDuration(ats.ExternalTimeout, defaultExternalTimeout)),
		WithsetLogger(logger.Component("ats_processor")),
	})
}

// JobVector 计算岗位描述的文档向量（分块向量均值），用于检索相似候选人
func (p *ATSProcessor) JobVector(ctx context.Context, job *types.JobPosting) ([]float64, error) {
	chunks := p.comp.Chunker.Chunk(job.Description)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: 岗位 %s 的描述为空", types.ErrRetrieval, job.JobID)
	}
	ctx, cancel := context.WithTimeout(ctx, p.set.ExternalTimeout)
	defer cancel()
	embedded, err := p.comp.Similarity.EmbedJobDescription(ctx, job.JobID, chunks)
	if err != nil {
		return nil, err
	}
	return MeanVector(embedded), nil
}

// ListActiveJobs 查询活跃岗位
func (p *ATSProcessor) ListActiveJobs(ctx context.Context) ([]types.ActiveJob, error) {
	ctx, cancel := context.WithTimeout(ctx, p.set.ExternalTimeout)
	defer cancel()
	jobs, err := p.comp.Source.ListActiveJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: 查询活跃岗位失败: %w", types.ErrRetrieval, err)
	}
	return jobs, nil
}

// ProcessApplication 处理单个申请。持久化失败时同时返回已计算的分数和错误。
func (p *ATSProcessor) ProcessApplication(ctx context.Context, applicationID string) (*types.CandidateScore, error) {
	release, err := p.lock(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	defer release()

	callCtx, cancel := context.WithTimeout(ctx, p.set.ExternalTimeout)
	app, err := p.comp.Source.GetApplication(callCtx, applicationID)
	cancel()
	if err != nil {
		return nil, NewRetrievalError(applicationID, err)
	}
	return p.evaluateIsolated(ctx, app)
}

// ProcessAll 处理全部申请
func (p *ATSProcessor) ProcessAll(ctx context.Context) (*BatchSummary, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.set.ExternalTimeout)
	apps, err := p.comp.Source.ListApplications(callCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: 查询申请列表失败: %w", types.ErrRetrieval, err)
	}
	return p.processBatch(ctx, apps), nil
}

// ProcessByJob 处理某岗位下的全部申请
func (p *ATSProcessor) ProcessByJob(ctx context.Context, jobID string) (*BatchSummary, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.set.ExternalTimeout)
	apps, err := p.comp.Source.ListApplicationsByJob(callCtx, jobID)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: 查询岗位 %s 的申请失败: %w", types.ErrRetrieval, jobID, err)
	}
	return p.processBatch(ctx, apps), nil
}

// ProcessApplications 处理调用方已检索到的申请列表
func (p *ATSProcessor) ProcessApplications(ctx context.Context, apps []types.ApplicationRecord) *BatchSummary {
	return p.processBatch(ctx, apps)
}

// PersistScore 重新持久化之前计算好的分数，不重新运行流水线
func (p *ATSProcessor) PersistScore(ctx context.Context, score *types.CandidateScore) error {
	if score == nil {
		return errors.New("score 不能为空")
	}
	if err := p.persistScore(ctx, score); err != nil {
		return NewPersistenceError(score.ApplicationID, err)
	}
	return nil
}

type candidateOutcome struct {
	score *types.CandidateScore
	err   error
}

// processBatch 每个候选人独立处理，全部结束后再排名
func (p *ATSProcessor) processBatch(ctx context.Context, apps []types.ApplicationRecord) *BatchSummary {
	outcomes := make([]candidateOutcome, len(apps))

	var g errgroup.Group
	g.SetLimit(p.set.Workers)
	for i := range apps {
		i := i
		g.Go(func() error {
			app := &apps[i]
			release, err := p.lock(ctx, app.ApplicationID)
			if err != nil {
				outcomes[i] = candidateOutcome{err: err}
				return nil
			}
			defer release()
			score, err := p.evaluateIsolated(ctx, app)
			outcomes[i] = candidateOutcome{score: score, err: err}
			return nil
		})
	}
	_ = g.Wait()

	summary := &BatchSummary{
		Total:    len(apps),
		Results:  make([]types.CandidateScore, 0, len(apps)),
		Failures: make([]CandidateFailure, 0),
	}
	for i, o := range outcomes {
		if o.err == nil {
			summary.Results = append(summary.Results, *o.score)
			continue
		}
		failure := CandidateFailure{
			ApplicationID: apps[i].ApplicationID,
			CandidateName: apps[i].CandidateName,
			Stage:         StateFailed,
			Error:         o.err.Error(),
			Score:         o.score,
		}
		if se := AsStageError(o.err); se != nil {
			failure.Stage = se.Stage
		}
		summary.Failures = append(summary.Failures, failure)
	}
	RankScores(summary.Results)

	p.log.Info().
		Int("total", summary.Total).
		Int("succeeded", len(summary.Results)).
		Int("failed", len(summary.Failures)).
		Msg("批量评分完成")
	return summary
}

// RankScores 按最终分数降序稳定排序，同分保持检索顺序
func RankScores(scores []types.CandidateScore) {
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].FinalATSScore > scores[j].FinalATSScore
	})
}

func (p *ATSProcessor) lock(ctx context.Context, applicationID string) (func(), error) {
	if p.comp.Locker == nil {
		return func() {}, nil
	}
	release, acquired, err := p.comp.Locker.Lock(ctx, applicationID)
	if err != nil {
		// 锁服务不可用时不阻塞评分
		p.log.Warn().Err(err).Str("application_id", applicationID).Msg("获取处理锁失败，继续处理")
		return func() {}, nil
	}
	if !acquired {
		return nil, &StageError{ApplicationID: applicationID, Stage: StateRetrieved, BaseErr: ErrApplicationBusy}
	}
	return release, nil
}

// evaluateIsolated 把注入组件引发的 panic 转为该候选人的 FAILED 结果
func (p *ATSProcessor) evaluateIsolated(ctx context.Context, app *types.ApplicationRecord) (score *types.CandidateScore, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().
				Str("application_id", app.ApplicationID).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("候选人处理发生 panic")
			score, err = nil, NewPanicError(app.ApplicationID, r)
		}
	}()
	return p.evaluate(ctx, app)
}

// evaluate 单个候选人的状态机：RETRIEVED → EMBEDDED → SKILLS_EXTRACTED → EVALUATED → SCORED_AND_PERSISTED
func (p *ATSProcessor) evaluate(ctx context.Context, app *types.ApplicationRecord) (score *types.CandidateScore, err error) {
	ctx, span := tracer.Start(ctx, "ATSProcessor.evaluate",
		trace.WithAttributes(
			attribute.String("application.id", app.ApplicationID),
			attribute.String("job.id", app.JobID),
			attribute.String("candidate.name", tracing.SafeAttributeValue("candidate.name", app.CandidateName, tracing.DefaultMaxLength)),
		))
	defer span.End()

	log := p.log.With().Str("application_id", app.ApplicationID).Str("job_id", app.JobID).Logger()
	state := StateRetrieved
	defer func() {
		if err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeOf(err), attribute.String("ats.stage", string(state)))
			log.Error().Err(err).Str("stage", string(state)).Msg("候选人评分失败")
			return
		}
		if score != nil {
			span.SetAttributes(attribute.Float64("ats.final_score", score.FinalATSScore))
		}
	}()

	// 检索
	resumeText, err := p.retrieveResume(ctx, app)
	if err != nil {
		return nil, NewRetrievalError(app.ApplicationID, err)
	}
	jdText := strings.TrimSpace(app.Job.Description)
	if jdText == "" {
		return nil, NewRetrievalError(app.ApplicationID, errors.New("岗位描述为空"))
	}
	log.Debug().Str("stage", string(state)).Int("resume_chars", len(resumeText)).Msg("简历与岗位描述已获取")

	// 向量化与相似度
	state = StateEmbedded
	resumeChunks := p.comp.Chunker.Chunk(resumeText)
	jdChunks := p.comp.Chunker.Chunk(jdText)
	callCtx, cancel := context.WithTimeout(ctx, p.set.ExternalTimeout)
	similarity, embedded, err := p.comp.Similarity.CompareResumeWithJD(callCtx, app.JobID, resumeChunks, jdChunks)
	cancel()
	if err != nil {
		return nil, NewCapabilityError(app.ApplicationID, StateEmbedded, err)
	}
	if err := p.comp.Aggregator.Persist(ctx, func(ctx context.Context) error {
		return p.comp.Store.UpsertResumeEmbeddings(ctx, app, embedded)
	}); err != nil {
		log.Warn().Err(err).Msg("简历分块向量写入失败，继续评分")
	}
	log.Debug().
		Str("stage", string(state)).
		Float64("overall_similarity", similarity.OverallSimilarity).
		Int("pairs", len(similarity.ChunkPairs)).
		Msg("语义相似度完成")

	// 技能分析
	state = StateSkillsExtracted
	skills := p.comp.SkillAnalyzer.AnalyzeApplication(resumeText, jdText)
	if err := p.comp.Aggregator.Persist(ctx, func(ctx context.Context) error {
		return p.comp.Store.UpsertSkillAnalysis(ctx, app.ApplicationID, &skills)
	}); err != nil {
		log.Warn().Err(err).Msg("技能分析写入失败，继续评分")
	}

	// 定性评估
	state = StateEvaluated
	evalContext := p.comp.Evaluator.BuildContext(app, similarity, &skills)
	callCtx, cancel = context.WithTimeout(ctx, p.set.ExternalTimeout)
	outcome := p.comp.Evaluator.Evaluate(callCtx, evalContext, resumeText, jdText)
	cancel()
	switch outcome.Kind {
	case types.EvaluationCapabilityFailure:
		log.Warn().Err(outcome.Err).Msg("判断模型调用失败，使用中性分数")
	case types.EvaluationParseFailure:
		log.Warn().Err(outcome.Err).Msg("判断模型响应无法解析，使用兜底评估")
	}

	// 汇总与持久化
	state = StateScoredAndPersisted
	score = p.comp.Aggregator.BuildCandidateScore(app, similarity, &skills, outcome.Evaluation, p.set.Now().UTC())
	if err := p.persistScore(ctx, score); err != nil {
		return score, NewPersistenceError(app.ApplicationID, err)
	}

	log.Info().
		Str("candidate", app.CandidateName).
		Float64("final_ats_score", score.FinalATSScore).
		Str("evaluation", string(outcome.Kind)).
		Msg("候选人评分完成")
	return score, nil
}

func (p *ATSProcessor) retrieveResume(ctx context.Context, app *types.ApplicationRecord) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.set.ExternalTimeout)
	data, err := p.comp.Source.FetchResume(callCtx, app)
	cancel()
	if err != nil {
		return "", fmt.Errorf("下载简历失败: %w", err)
	}

	callCtx, cancel = context.WithTimeout(ctx, p.set.ExternalTimeout)
	text, err := p.comp.PDFExtractor.ExtractText(callCtx, data)
	cancel()
	if err != nil {
		return "", fmt.Errorf("提取简历文本失败: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("简历文本为空")
	}
	p.log.Debug().
		Str("application_id", app.ApplicationID).
		Int("chars", len(text)).
		Str("preview", tracing.ResumePreview(text)).
		Msg("简历文本提取完成")
	return text, nil
}

func (p *ATSProcessor) persistScore(ctx context.Context, score *types.CandidateScore) error {
	return p.comp.Aggregator.Persist(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, p.set.ExternalTimeout)
		defer cancel()
		return p.comp.Store.UpsertCandidateScore(callCtx, score)
	})
}
