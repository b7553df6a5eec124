package processor

import (
	"context"
	"fmt"
	"math"
	"time"

	"smarthire-ats/internal/config"
	"smarthire-ats/internal/types"

	"github.com/sethvargo/go-retry"
)

// 离散化分项得分
const (
	ExperienceMatchedScore   = 100.0
	ExperienceUnmatchedScore = 50.0
	EducationFoundScore      = 75.0
	EducationMissingScore    = 50.0
	NeutralLLMScore          = 50.0
)

// ScoreAggregator 按权重合成最终得分并负责持久化重试
type ScoreAggregator struct {
	weights      config.ScoreWeights
	maxRetries   uint64
	retryBackoff time.Duration
}

// AggregatorOption 聚合器选项
type AggregatorOption func(*ScoreAggregator)

// WithPersistRetry 设置持久化最大重试次数与 Fibonacci 退避基准
func WithPersistRetry(maxRetries int, backoff time.Duration) AggregatorOption {
	return func(a *ScoreAggregator) {
		if maxRetries >= 0 {
			a.maxRetries = uint64(maxRetries)
		}
		if backoff > 0 {
			a.retryBackoff = backoff
		}
	}
}

// NewScoreAggregator 校验权重后创建聚合器
func NewScoreAggregator(weights config.ScoreWeights, opts ...AggregatorOption) (*ScoreAggregator, error) {
	if err := config.ValidateWeights(weights); err != nil {
		return nil, err
	}
	a := &ScoreAggregator{
		weights:      weights,
		maxRetries:   3,
		retryBackoff: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Weights 当前权重
func (a *ScoreAggregator) Weights() config.ScoreWeights { return a.weights }

// ComponentScoresFrom 从各阶段结果计算分项得分。
// 年限与学历为二值证据，分别离散为 100/50 与 75/50；没有定性评估时取中性分50。
func ComponentScoresFrom(sim *types.SimilarityResult, skills *types.ApplicationSkillAnalysis, eval *types.QualitativeEvaluation) types.ComponentScores {
	scores := types.ComponentScores{
		ExperienceMatch: ExperienceUnmatchedScore,
		EducationMatch:  EducationMissingScore,
		LLMScore:        NeutralLLMScore,
	}
	if sim != nil {
		scores.SemanticSimilarity = sim.OverallScore
	}
	if skills != nil {
		scores.SkillMatch = skills.SkillComparison.MatchPercentage
		if skills.ExperienceMatch {
			scores.ExperienceMatch = ExperienceMatchedScore
		}
		if len(skills.Resume.Education.Degrees) > 0 {
			scores.EducationMatch = EducationFoundScore
		}
	}
	if eval != nil {
		scores.LLMScore = eval.ATSScore
	}
	return scores
}

// Aggregate 加权求和并保留两位小数
func (a *ScoreAggregator) Aggregate(s types.ComponentScores) float64 {
	w := a.weights
	total := s.SemanticSimilarity*w.SemanticSimilarity +
		s.SkillMatch*w.SkillMatch +
		s.ExperienceMatch*w.ExperienceMatch +
		s.EducationMatch*w.EducationMatch +
		s.LLMScore*w.Qualitative
	return RoundScore(total)
}

// RoundScore 四舍五入到两位小数
func RoundScore(v float64) float64 {
	return math.Round(v*100) / 100
}

// BuildCandidateScore 组装最终评分记录
func (a *ScoreAggregator) BuildCandidateScore(app *types.ApplicationRecord, sim *types.SimilarityResult, skills *types.ApplicationSkillAnalysis, eval *types.QualitativeEvaluation, computedAt time.Time) *types.CandidateScore {
	components := ComponentScoresFrom(sim, skills, eval)
	score := &types.CandidateScore{
		ApplicationID:         app.ApplicationID,
		JobID:                 app.JobID,
		CandidateName:         app.CandidateName,
		CandidateEmail:        app.CandidateEmail,
		JobTitle:              app.Job.Title,
		Company:               app.Job.Company,
		FinalATSScore:         a.Aggregate(components),
		ComponentScores:       components,
		QualitativeEvaluation: eval,
		ComputedAt:            computedAt,
	}
	if sim != nil {
		score.SemanticAnalysisSummary = types.SemanticSummary{
			OverallScore:          RoundScore(sim.OverallScore),
			HighSimilarityCount:   sim.HighSimilarityCount,
			MediumSimilarityCount: sim.MediumSimilarityCount,
		}
	}
	if skills != nil {
		score.SkillAnalysisSummary = types.SkillSummary{
			MatchPercentage: RoundScore(skills.SkillComparison.MatchPercentage),
			MatchingSkills:  skills.SkillComparison.MatchingSkills,
			MissingSkills:   skills.SkillComparison.MissingSkills,
			ExperienceMatch: skills.ExperienceMatch,
		}
	}
	return score
}

// Persist 带重试地执行一次写操作，超过重试次数后返回 types.ErrPersistence
func (a *ScoreAggregator) Persist(ctx context.Context, write func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(a.maxRetries, retry.NewFibonacci(a.retryBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := write(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrPersistence, err)
	}
	return nil
}

// PersistScore 幂等写入候选人评分
func (a *ScoreAggregator) PersistScore(ctx context.Context, store ResultStore, score *types.CandidateScore) error {
	return a.Persist(ctx, func(ctx context.Context) error {
		return store.UpsertCandidateScore(ctx, score)
	})
}
