package parser_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"smarthire-ats/internal/config"
	"smarthire-ats/internal/parser"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newEmbeddingServer 模拟 DashScope 兼容接口，倒序返回 data 以验证排序
func newEmbeddingServer(t *testing.T, calls *int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req parser.AliyunOpenAIEmbeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := parser.AliyunOpenAIEmbeddingResponse{Object: "list", Model: req.Model}
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, parser.AliyunOpenAIDataEntry{
				Object:    "embedding",
				Index:     i,
				Embedding: []float64{float64(len(req.Input[i])), 1, 0},
			})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestAliyunEmbedder_EmbedStrings_BatchesAndOrders(t *testing.T) {
	var calls int32
	srv := newEmbeddingServer(t, &calls)
	defer srv.Close()

	embedder, err := parser.NewAliyunEmbedder("test-key", config.EmbeddingConfig{BaseURL: srv.URL, Dimensions: 3},
		parser.WithEmbeddingBatchSize(2))
	require.NoError(t, err)

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	embeddings, err := embedder.EmbedStrings(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, embeddings, len(texts))
	for i, emb := range embeddings {
		assert.Equal(t, float64(len(texts[i])), emb[0], "第 %d 个向量顺序错误", i)
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, 3, embedder.GetDimensions())
}

func TestAliyunEmbedder_EmbedStrings_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"throttling","code":"429"}}`))
	}))
	defer srv.Close()

	embedder, err := parser.NewAliyunEmbedder("test-key", config.EmbeddingConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = embedder.EmbedStrings(context.Background(), []string{"hello"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

// TestAliyunEmbedder_EmbedStrings_EmptyInput 空输入返回空切片且不发请求
func TestAliyunEmbedder_EmbedStrings_EmptyInput(t *testing.T) {
	var calls int32
	srv := newEmbeddingServer(t, &calls)
	defer srv.Close()

	embedder, err := parser.NewAliyunEmbedder("test-key", config.EmbeddingConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	embeddings, err := embedder.EmbedStrings(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, embeddings)
	require.Empty(t, embeddings)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestAliyunEmbedder_NewAliyunEmbedder_NoAPIKey(t *testing.T) {
	_, err := parser.NewAliyunEmbedder("", config.EmbeddingConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API密钥不能为空")
}

// TestAliyunEmbedder_Live 需要真实的 ALIYUN_API_KEY
func TestAliyunEmbedder_Live(t *testing.T) {
	apiKey := os.Getenv("ALIYUN_API_KEY")
	if apiKey == "" {
		t.Skip("未设置 ALIYUN_API_KEY，跳过真实接口测试")
	}
	embedder, err := parser.NewAliyunEmbedder(apiKey, config.EmbeddingConfig{Dimensions: 1024})
	require.NoError(t, err)

	embeddings, err := embedder.EmbedStrings(context.Background(), []string{"你好，世界！", "这是一个测试文本。"})
	require.NoError(t, err)
	require.Len(t, embeddings, 2)
	for _, emb := range embeddings {
		assert.Len(t, emb, 1024)
	}
}
