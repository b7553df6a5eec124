package processor

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math"
	"sort"

	"smarthire-ats/internal/logger"
	"smarthire-ats/internal/types"

	"github.com/rs/zerolog"
)

// 语义相似度分档阈值
const (
	HighSimilarityThreshold   = 0.8
	MediumSimilarityThreshold = 0.6

	// 配对结果中保留的文本预览长度（字符）
	pairPreviewLength = 100
)

// SimilarityEngine 负责分块向量化与相似度计算
type SimilarityEngine struct {
	embedder  TextEmbedder
	threshold float64
	topK      int
	cache     EmbeddingCache
	logger    zerolog.Logger
}

// SimilarityOption 相似度引擎选项
type SimilarityOption func(*SimilarityEngine)

// WithEmbeddingCache 设置 JD 向量缓存
func WithEmbeddingCache(cache EmbeddingCache) SimilarityOption {
	return func(e *SimilarityEngine) {
		e.cache = cache
	}
}

// WithSimilarityLogger 设置日志
func WithSimilarityLogger(l zerolog.Logger) SimilarityOption {
	return func(e *SimilarityEngine) {
		e.logger = l
	}
}

// NewSimilarityEngine 创建相似度引擎，embedder 必须可用
func NewSimilarityEngine(embedder TextEmbedder, threshold float64, topK int, opts ...SimilarityOption) (*SimilarityEngine, error) {
	if embedder == nil {
		return nil, types.NewConfigurationError("embedder", "未配置向量化能力")
	}
	if topK <= 0 {
		return nil, types.NewConfigurationError("top_k", "必须大于0，当前为 %d", topK)
	}
	e := &SimilarityEngine{
		embedder:  embedder,
		threshold: threshold,
		topK:      topK,
		logger:    logger.Component("similarity"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Embed 为分块生成向量，返回数量或维度异常时视为外部能力错误
func (e *SimilarityEngine) Embed(ctx context.Context, chunks []types.Chunk) ([]types.EmbeddedChunk, error) {
	if len(chunks) == 0 {
		return []types.EmbeddedChunk{}, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := e.embedder.EmbedStrings(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: 向量化失败: %v", types.ErrExternalCapability, err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("%w: 向量数量 %d 与分块数量 %d 不一致", types.ErrExternalCapability, len(vectors), len(chunks))
	}

	dim := e.embedder.GetDimensions()
	if dim <= 0 {
		dim = len(vectors[0])
	}
	embedded := make([]types.EmbeddedChunk, len(chunks))
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: 第 %d 个向量维度 %d 与预期 %d 不一致", types.ErrExternalCapability, i, len(v), dim)
		}
		embedded[i] = types.EmbeddedChunk{Chunk: chunks[i], Embedding: v}
	}
	return embedded, nil
}

// EmbedJobDescription 为 JD 分块生成向量，优先读取缓存。缓存故障只记录日志。
func (e *SimilarityEngine) EmbedJobDescription(ctx context.Context, jobID string, chunks []types.Chunk) ([]types.EmbeddedChunk, error) {
	if e.cache == nil || len(chunks) == 0 {
		return e.Embed(ctx, chunks)
	}

	key := jdCacheKey(jobID, chunks)
	cached, ok, err := e.cache.GetEmbeddings(ctx, key)
	if err != nil {
		e.logger.Warn().Err(err).Str("job_id", jobID).Msg("读取JD向量缓存失败，重新计算")
	} else if ok && len(cached) == len(chunks) {
		return cached, nil
	}

	embedded, err := e.Embed(ctx, chunks)
	if err != nil {
		return nil, err
	}
	if err := e.cache.SetEmbeddings(ctx, key, embedded); err != nil {
		e.logger.Warn().Err(err).Str("job_id", jobID).Msg("写入JD向量缓存失败")
	}
	return embedded, nil
}

// jdCacheKey 由岗位ID与分块内容生成，JD 修改后自动失效
func jdCacheKey(jobID string, chunks []types.Chunk) string {
	h := md5.New()
	for _, c := range chunks {
		h.Write([]byte(c.Text))
		h.Write([]byte{0})
	}
	return jobID + ":" + hex.EncodeToString(h.Sum(nil))
}

// CosineSimilarity 余弦相似度，任一向量范数为0或长度不一致时返回0
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// MeanVector 分块向量的算术平均，作为文档向量
func MeanVector(chunks []types.EmbeddedChunk) []float64 {
	if len(chunks) == 0 {
		return nil
	}
	mean := make([]float64, len(chunks[0].Embedding))
	for _, c := range chunks {
		for i := range mean {
			if i < len(c.Embedding) {
				mean[i] += c.Embedding[i]
			}
		}
	}
	n := float64(len(chunks))
	for i := range mean {
		mean[i] /= n
	}
	return mean
}

// DocumentSimilarity 计算简历与JD的分块级和文档级相似度
func (e *SimilarityEngine) DocumentSimilarity(resume, jd []types.EmbeddedChunk) types.SimilarityResult {
	result := types.SimilarityResult{
		ChunkPairs:       []types.ChunkPair{},
		TopMatches:       []types.ChunkPair{},
		ResumeChunkCount: len(resume),
		JDChunkCount:     len(jd),
	}

	for _, r := range resume {
		for _, j := range jd {
			sim := CosineSimilarity(r.Embedding, j.Embedding)
			if sim <= e.threshold {
				continue
			}
			result.ChunkPairs = append(result.ChunkPairs, types.ChunkPair{
				ResumeChunkID: r.ChunkID,
				JDChunkID:     j.ChunkID,
				Similarity:    sim,
				ResumeText:    preview(r.Text),
				JDText:        preview(j.Text),
			})
		}
	}

	sort.SliceStable(result.ChunkPairs, func(i, k int) bool {
		return result.ChunkPairs[i].Similarity > result.ChunkPairs[k].Similarity
	})

	for _, p := range result.ChunkPairs {
		switch {
		case p.Similarity > HighSimilarityThreshold:
			result.HighSimilarityCount++
		case p.Similarity > MediumSimilarityThreshold:
			result.MediumSimilarityCount++
		}
	}

	top := e.topK
	if top > len(result.ChunkPairs) {
		top = len(result.ChunkPairs)
	}
	result.TopMatches = append(result.TopMatches, result.ChunkPairs[:top]...)

	result.OverallSimilarity = CosineSimilarity(MeanVector(resume), MeanVector(jd))
	result.OverallScore = result.OverallSimilarity * 100
	return result
}

// CompareResumeWithJD 向量化并计算相似度，返回两侧带向量的分块便于后续持久化
func (e *SimilarityEngine) CompareResumeWithJD(ctx context.Context, jobID string, resumeChunks, jdChunks []types.Chunk) (*types.SimilarityResult, []types.EmbeddedChunk, error) {
	resumeEmb, err := e.Embed(ctx, resumeChunks)
	if err != nil {
		return nil, nil, err
	}
	jdEmb, err := e.EmbedJobDescription(ctx, jobID, jdChunks)
	if err != nil {
		return nil, nil, err
	}
	result := e.DocumentSimilarity(resumeEmb, jdEmb)
	return &result, resumeEmb, nil
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) > pairPreviewLength {
		runes = runes[:pairPreviewLength]
	}
	return string(runes) + "..."
}
