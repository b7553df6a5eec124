package processor

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"smarthire-ats/internal/types"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1},
		{"scaled", []float64{1, 2, 3}, []float64{2, 4, 6}, 1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"opposite", []float64{1, 1}, []float64{-1, -1}, -1},
		{"zero vector", []float64{0, 0}, []float64{1, 1}, 0},
		{"length mismatch", []float64{1, 2}, []float64{1, 2, 3}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestCosineSimilaritySymmetricAndBounded(t *testing.T) {
	vectors := [][]float64{{0.3, -1.2, 4}, {7, 0.1, -2}, {1, 1, 1}, {-5, 2, 0.5}}
	for _, a := range vectors {
		for _, b := range vectors {
			ab := CosineSimilarity(a, b)
			assert.InDelta(t, ab, CosineSimilarity(b, a), 1e-12)
			assert.LessOrEqual(t, math.Abs(ab), 1+1e-12)
		}
	}
}

func TestMeanVector(t *testing.T) {
	chunks := []types.EmbeddedChunk{
		{Embedding: []float64{1, 2}},
		{Embedding: []float64{3, 6}},
	}
	assert.Equal(t, []float64{2, 4}, MeanVector(chunks))
	assert.Nil(t, MeanVector(nil))
}

func embedded(id int, text string, v ...float64) types.EmbeddedChunk {
	return types.EmbeddedChunk{Chunk: types.Chunk{ChunkID: id, Text: text}, Embedding: v}
}

func TestDocumentSimilarityPairsAndCounts(t *testing.T) {
	e, err := NewSimilarityEngine(&keywordEmbedder{}, 0.7, 2)
	require.NoError(t, err)

	resume := []types.EmbeddedChunk{
		embedded(0, "r0", 1, 0, 0),
		embedded(1, strings.Repeat("x", 150), 1, 1, 0),
	}
	jd := []types.EmbeddedChunk{
		embedded(0, "j0", 1, 0, 0),
		embedded(1, "j1", 1, 0.9, 0),
		embedded(2, "j2", 0, 0, 1),
	}

	result := e.DocumentSimilarity(resume, jd)

	for _, p := range result.ChunkPairs {
		assert.Greater(t, p.Similarity, 0.7)
	}
	for i := 1; i < len(result.ChunkPairs); i++ {
		assert.GreaterOrEqual(t, result.ChunkPairs[i-1].Similarity, result.ChunkPairs[i].Similarity)
	}
	require.Len(t, result.ChunkPairs, 4)
	assert.Equal(t, 2, result.HighSimilarityCount)
	assert.Equal(t, 2, result.MediumSimilarityCount)

	require.Len(t, result.TopMatches, 2)
	assert.Equal(t, result.ChunkPairs[:2], result.TopMatches)
	assert.InDelta(t, 1.0, result.TopMatches[0].Similarity, 1e-9)

	for _, p := range result.ChunkPairs {
		if p.ResumeChunkID == 1 {
			assert.Equal(t, 103, len([]rune(p.ResumeText)), "预览保留100个字符加省略号")
			assert.True(t, strings.HasSuffix(p.ResumeText, "..."))
		}
	}

	assert.Equal(t, 2, result.ResumeChunkCount)
	assert.Equal(t, 3, result.JDChunkCount)
	assert.InDelta(t, result.OverallSimilarity*100, result.OverallScore, 1e-9)
}

func TestDocumentSimilarityEmpty(t *testing.T) {
	e, err := NewSimilarityEngine(&keywordEmbedder{}, 0.7, 5)
	require.NoError(t, err)

	result := e.DocumentSimilarity(nil, []types.EmbeddedChunk{embedded(0, "j", 1)})
	assert.Empty(t, result.ChunkPairs)
	assert.Empty(t, result.TopMatches)
	assert.Zero(t, result.OverallScore)
}

func TestNewSimilarityEngineValidation(t *testing.T) {
	_, err := NewSimilarityEngine(nil, 0.7, 5)
	assert.ErrorIs(t, err, types.ErrConfiguration)

	_, err = NewSimilarityEngine(&keywordEmbedder{}, 0.7, 0)
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestEmbedRejectsCountMismatch(t *testing.T) {
	e, err := NewSimilarityEngine(shortEmbedder{}, 0.7, 5)
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), []types.Chunk{{Text: "a"}, {Text: "b"}})
	assert.ErrorIs(t, err, types.ErrExternalCapability)
}

// shortEmbedder 总是只返回一个向量
type shortEmbedder struct{}

func (shortEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	return [][]float64{{1, 0}}, nil
}

func (shortEmbedder) GetDimensions() int { return 2 }

type mapCache struct {
	data   map[string][]types.EmbeddedChunk
	getErr error
}

func (c *mapCache) GetEmbeddings(ctx context.Context, key string) ([]types.EmbeddedChunk, bool, error) {
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *mapCache) SetEmbeddings(ctx context.Context, key string, chunks []types.EmbeddedChunk) error {
	c.data[key] = chunks
	return nil
}

func TestEmbedJobDescriptionUsesCache(t *testing.T) {
	emb := &keywordEmbedder{}
	cache := &mapCache{data: map[string][]types.EmbeddedChunk{}}
	e, err := NewSimilarityEngine(emb, 0.7, 5, WithEmbeddingCache(cache))
	require.NoError(t, err)

	chunks := []types.Chunk{{Text: "go python"}}
	first, err := e.EmbedJobDescription(context.Background(), "job-1", chunks)
	require.NoError(t, err)
	second, err := e.EmbedJobDescription(context.Background(), "job-1", chunks)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, emb.calls, "第二次应命中缓存")

	// JD 内容变化后缓存键不同
	_, err = e.EmbedJobDescription(context.Background(), "job-1", []types.Chunk{{Text: "sales"}})
	require.NoError(t, err)
	assert.Equal(t, 2, emb.calls)

	// 缓存故障时退化为直接计算
	cache.getErr = errors.New("redis down")
	_, err = e.EmbedJobDescription(context.Background(), "job-1", chunks)
	require.NoError(t, err)
	assert.Equal(t, 3, emb.calls)
}
