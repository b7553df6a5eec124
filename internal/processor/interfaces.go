package processor

import (
	"context"

	"smarthire-ats/internal/types"

	"github.com/cloudwego/eino/components/embedding"
)

//
// 外部能力接口
//

// TextEmbedder 文本向量化接口 (符合 cloudwego/eino 规范)
type TextEmbedder interface {
	// EmbedStrings 将文本转换为向量表示
	EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error)

	// GetDimensions 返回嵌入向量的维度
	GetDimensions() int
}

// PDFExtractor PDF文本提取接口，空文本应视为失败
type PDFExtractor interface {
	ExtractText(ctx context.Context, data []byte) (string, error)
}

// QualitativeEvaluator 定性评估接口
type QualitativeEvaluator interface {
	// BuildContext 生成确定性的评估上下文
	BuildContext(app *types.ApplicationRecord, similarity *types.SimilarityResult, skills *types.ApplicationSkillAnalysis) string

	// Evaluate 调用判断模型，永远不返回解析错误
	Evaluate(ctx context.Context, evalContext, resumeText, jdText string) types.EvaluationOutcome
}

//
// 存储相关接口
//

// ApplicationSource 申请与岗位的检索
type ApplicationSource interface {
	// GetApplication 按ID查询申请（含岗位信息），不存在时返回 types.ErrRetrieval
	GetApplication(ctx context.Context, applicationID string) (*types.ApplicationRecord, error)

	// ListApplications 查询全部有简历的申请，按申请时间升序
	ListApplications(ctx context.Context) ([]types.ApplicationRecord, error)

	// ListApplicationsByJob 查询某岗位下的申请，按申请时间升序
	ListApplicationsByJob(ctx context.Context, jobID string) ([]types.ApplicationRecord, error)

	// FetchResume 下载简历原文件
	FetchResume(ctx context.Context, app *types.ApplicationRecord) ([]byte, error)

	// ListActiveJobs 查询活跃岗位及申请数量
	ListActiveJobs(ctx context.Context) ([]types.ActiveJob, error)
}

// ResultStore 按申请ID幂等写入的结果存储
type ResultStore interface {
	UpsertResumeEmbeddings(ctx context.Context, app *types.ApplicationRecord, chunks []types.EmbeddedChunk) error
	UpsertSkillAnalysis(ctx context.Context, applicationID string, analysis *types.ApplicationSkillAnalysis) error
	UpsertCandidateScore(ctx context.Context, score *types.CandidateScore) error
}

// EmbeddingCache JD 分块向量缓存，未命中时返回 ok=false
type EmbeddingCache interface {
	GetEmbeddings(ctx context.Context, key string) (chunks []types.EmbeddedChunk, ok bool, err error)
	SetEmbeddings(ctx context.Context, key string, chunks []types.EmbeddedChunk) error
}

// ApplicationLocker 防止同一申请被并发处理，acquired=false 表示已被占用
type ApplicationLocker interface {
	Lock(ctx context.Context, applicationID string) (release func(), acquired bool, err error)
}
