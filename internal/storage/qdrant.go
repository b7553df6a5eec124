package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"smarthire-ats/internal/config"
	"smarthire-ats/internal/logger"
	"smarthire-ats/internal/processor"
	"smarthire-ats/internal/tracing"
	"smarthire-ats/internal/types"

	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var qdrantTracer = otel.Tracer("smarthire-ats/storage/qdrant")

// QdrantPointIDNamespace 用于生成确定性的点ID，同一申请同一分块总是得到相同ID
var QdrantPointIDNamespace = uuid.Must(uuid.FromString("fd6c72c2-5a33-4b53-8e7c-8298f3f5a7e1"))

// 点类型，document 为整份简历的均值向量
const (
	PointKindChunk    = "chunk"
	PointKindDocument = "document"
)

// Qdrant 通过 REST API 访问向量数据库
type Qdrant struct {
	endpoint       string
	collectionName string
	vectorSize     int
	distanceMetric string
	apiKey         string
	searchLimit    int
	httpClient     *http.Client
	logger         zerolog.Logger
}

// SearchResult 表示一个搜索结果项
type SearchResult struct {
	ID      string
	Score   float32
	Payload map[string]interface{}
}

// SimilarCandidate 与岗位语义最接近的候选人
type SimilarCandidate struct {
	ApplicationID string  `json:"application_id"`
	JobID         string  `json:"job_id"`
	CandidateName string  `json:"candidate_name"`
	Score         float32 `json:"score"`
}

// QdrantOption 定义Qdrant构造函数选项
type QdrantOption func(*Qdrant)

// WithDistanceMetric 设置距离度量
func WithDistanceMetric(metric string) QdrantOption {
	return func(q *Qdrant) {
		q.distanceMetric = metric
	}
}

// WithHttpTimeout 设置HTTP客户端超时
func WithHttpTimeout(timeout time.Duration) QdrantOption {
	return func(q *Qdrant) {
		q.httpClient = &http.Client{Timeout: timeout}
	}
}

// NewQdrant 创建Qdrant客户端并确保集合存在
func NewQdrant(ctx context.Context, cfg *config.QdrantConfig, opts ...QdrantOption) (*Qdrant, error) {
	if cfg == nil {
		return nil, fmt.Errorf("qdrant配置不能为空")
	}

	q := &Qdrant{
		endpoint:       cfg.Endpoint,
		collectionName: cfg.Collection,
		vectorSize:     cfg.Dimension,
		distanceMetric: "Cosine",
		apiKey:         cfg.APIKey,
		searchLimit:    cfg.DefaultSearchLimit,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		logger:         logger.Component("qdrant"),
	}
	if q.endpoint == "" {
		q.endpoint = "http://localhost:6333"
	}
	if q.collectionName == "" {
		q.collectionName = "ats_resume_chunks"
	}
	if q.vectorSize <= 0 {
		q.vectorSize = 1024
	}
	if q.searchLimit <= 0 {
		q.searchLimit = 10
	}
	for _, opt := range opts {
		opt(q)
	}

	if err := q.ensureCollectionExists(ctx); err != nil {
		return nil, fmt.Errorf("确保集合 '%s' 存在失败: %w", q.collectionName, err)
	}
	q.logger.Info().Str("endpoint", q.endpoint).Str("collection", q.collectionName).Msg("Qdrant 已连接")
	return q, nil
}

// ensureCollectionExists 集合不存在时创建，配置不一致时只告警
func (q *Qdrant) ensureCollectionExists(ctx context.Context) error {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.EnsureCollectionExists",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "qdrant"),
			attribute.String("db.collection", q.collectionName),
			attribute.Int("db.vector_size", q.vectorSize),
		))
	defer span.End()

	var collectionInfo struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size     int    `json:"size"`
						Distance string `json:"distance"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}

	status, err := q.doRequestStatus(ctx, http.MethodGet, "/collections/"+q.collectionName, nil, &collectionInfo)
	if status == http.StatusNotFound {
		span.AddEvent("collection_not_found")
		return q.createCollection(ctx)
	}
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return err
	}

	vectors := collectionInfo.Result.Config.Params.Vectors
	if vectors.Size != q.vectorSize || vectors.Distance != q.distanceMetric {
		q.logger.Warn().
			Int("existing_size", vectors.Size).
			Str("existing_distance", vectors.Distance).
			Int("expected_size", q.vectorSize).
			Str("expected_distance", q.distanceMetric).
			Msg("现有集合配置与当前配置不匹配")
		span.AddEvent("collection_config_mismatch")
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

func (q *Qdrant) createCollection(ctx context.Context) error {
	body := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     q.vectorSize,
			"distance": q.distanceMetric,
		},
		"optimizers_config": map[string]interface{}{
			"default_segment_number": 2,
		},
	}
	if err := q.doRequest(ctx, http.MethodPut, "/collections/"+q.collectionName, body, nil); err != nil {
		return fmt.Errorf("创建集合失败: %w", err)
	}
	// application_id 与 kind 上的 payload 索引用于过滤
	for _, field := range []string{"application_id", "job_id", "kind"} {
		idx := map[string]interface{}{"field_name": field, "field_schema": "keyword"}
		if err := q.doRequest(ctx, http.MethodPut, fmt.Sprintf("/collections/%s/index?wait=true", q.collectionName), idx, nil); err != nil {
			q.logger.Warn().Err(err).Str("field", field).Msg("创建 payload 索引失败")
		}
	}
	q.logger.Info().Str("collection", q.collectionName).Int("dimension", q.vectorSize).Msg("已创建Qdrant集合")
	return nil
}

// ChunkPointID 申请分块的确定性点ID
func ChunkPointID(applicationID string, chunkID int) string {
	return uuid.NewV5(QdrantPointIDNamespace, applicationID+"_chunk_"+strconv.Itoa(chunkID)).String()
}

// DocumentPointID 申请文档向量的确定性点ID
func DocumentPointID(applicationID string) string {
	return uuid.NewV5(QdrantPointIDNamespace, applicationID+"_document").String()
}

type qdrantPoint struct {
	ID      string                 `json:"id"`
	Vector  []float64              `json:"vector"`
	Payload map[string]interface{} `json:"payload"`
}

// UpsertApplicationChunks 写入简历分块向量与整份简历的均值向量。
// 先按 application_id 删除旧点，分块数量变化后不会残留旧分块。
func (q *Qdrant) UpsertApplicationChunks(ctx context.Context, app *types.ApplicationRecord, chunks []types.EmbeddedChunk) error {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.UpsertApplicationChunks",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "qdrant"),
			attribute.String("db.collection", q.collectionName),
			attribute.String("application.id", app.ApplicationID),
			attribute.Int("vectors.count", len(chunks)),
		))
	defer span.End()

	if err := q.DeleteApplication(ctx, app.ApplicationID); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	points := make([]qdrantPoint, 0, len(chunks)+1)
	for _, c := range chunks {
		if len(c.Embedding) != q.vectorSize {
			err := fmt.Errorf("分块 %d 向量维度(%d)与配置维度(%d)不匹配", c.ChunkID, len(c.Embedding), q.vectorSize)
			tracing.RecordError(span, err, tracing.ErrorTypeValidation)
			return err
		}
		points = append(points, qdrantPoint{
			ID:     ChunkPointID(app.ApplicationID, c.ChunkID),
			Vector: c.Embedding,
			Payload: map[string]interface{}{
				"kind":            PointKindChunk,
				"application_id":  app.ApplicationID,
				"job_id":          app.JobID,
				"candidate_name":  app.CandidateName,
				"chunk_id":        c.ChunkID,
				"word_count":      c.WordCount,
				"content_preview": tracing.TruncateString(c.Text, 200),
			},
		})
	}
	points = append(points, qdrantPoint{
		ID:     DocumentPointID(app.ApplicationID),
		Vector: processor.MeanVector(chunks),
		Payload: map[string]interface{}{
			"kind":           PointKindDocument,
			"application_id": app.ApplicationID,
			"job_id":         app.JobID,
			"candidate_name": app.CandidateName,
			"chunk_count":    len(chunks),
		},
	})

	body := map[string]interface{}{"points": points}
	if err := q.doRequest(ctx, http.MethodPut, fmt.Sprintf("/collections/%s/points?wait=true", q.collectionName), body, nil); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return fmt.Errorf("写入向量点失败: %w", err)
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// DeleteApplication 删除某申请的全部向量点
func (q *Qdrant) DeleteApplication(ctx context.Context, applicationID string) error {
	body := map[string]interface{}{
		"filter": matchFilter(map[string]string{"application_id": applicationID}),
	}
	if err := q.doRequest(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/delete?wait=true", q.collectionName), body, nil); err != nil {
		return fmt.Errorf("删除申请 %s 的向量点失败: %w", applicationID, err)
	}
	return nil
}

// Search 按向量检索，filter 为 payload 字段的精确匹配
func (q *Qdrant) Search(ctx context.Context, queryVector []float64, limit int, filter map[string]string) ([]SearchResult, error) {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.Search",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "qdrant"),
			attribute.String("db.collection", q.collectionName),
			attribute.Int("search.limit", limit),
		))
	defer span.End()

	if len(queryVector) != q.vectorSize {
		err := fmt.Errorf("查询向量维度(%d)与配置维度(%d)不匹配", len(queryVector), q.vectorSize)
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, err
	}
	if limit <= 0 {
		limit = q.searchLimit
	}

	req := map[string]interface{}{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	}
	if len(filter) > 0 {
		req["filter"] = matchFilter(filter)
	}

	var result struct {
		Result []struct {
			ID      interface{}            `json:"id"`
			Score   float32                `json:"score"`
			Payload map[string]interface{} `json:"payload"`
		} `json:"result"`
		Status string  `json:"status"`
		Time   float64 `json:"time"`
	}
	if err := q.doRequest(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/search", q.collectionName), req, &result); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return nil, err
	}

	out := make([]SearchResult, 0, len(result.Result))
	for _, p := range result.Result {
		out = append(out, SearchResult{ID: fmt.Sprint(p.ID), Score: p.Score, Payload: p.Payload})
	}
	span.SetAttributes(attribute.Int("search.results.count", len(out)))
	span.SetStatus(codes.Ok, "")
	return out, nil
}

// SearchSimilarCandidates 用岗位向量检索最接近的候选人文档向量，jobID 非空时只检索该岗位的申请
func (q *Qdrant) SearchSimilarCandidates(ctx context.Context, jobVector []float64, jobID string, limit int) ([]SimilarCandidate, error) {
	filter := map[string]string{"kind": PointKindDocument}
	if jobID != "" {
		filter["job_id"] = jobID
	}
	results, err := q.Search(ctx, jobVector, limit, filter)
	if err != nil {
		return nil, err
	}
	candidates := make([]SimilarCandidate, 0, len(results))
	for _, r := range results {
		candidates = append(candidates, SimilarCandidate{
			ApplicationID: payloadString(r.Payload, "application_id"),
			JobID:         payloadString(r.Payload, "job_id"),
			CandidateName: payloadString(r.Payload, "candidate_name"),
			Score:         r.Score,
		})
	}
	return candidates, nil
}

// CountPoints 获取集合中的点数量
func (q *Qdrant) CountPoints(ctx context.Context) (int64, error) {
	var result struct {
		Result struct {
			Count int64 `json:"count"`
		} `json:"result"`
	}
	body := map[string]interface{}{"exact": true}
	if err := q.doRequest(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/count", q.collectionName), body, &result); err != nil {
		return 0, err
	}
	return result.Result.Count, nil
}

func matchFilter(fields map[string]string) map[string]interface{} {
	must := make([]map[string]interface{}, 0, len(fields))
	for k, v := range fields {
		must = append(must, map[string]interface{}{
			"key":   k,
			"match": map[string]interface{}{"value": v},
		})
	}
	return map[string]interface{}{"must": must}
}

func payloadString(payload map[string]interface{}, key string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}

func (q *Qdrant) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	_, err := q.doRequestStatus(ctx, method, path, body, result)
	return err
}

// doRequestStatus 发送请求并返回HTTP状态码，非2xx时返回错误
func (q *Qdrant) doRequestStatus(ctx context.Context, method, path string, body interface{}, result interface{}) (int, error) {
	ctx, span := qdrantTracer.Start(ctx, fmt.Sprintf("%s %s", method, path),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("net.peer.name", q.endpoint),
			attribute.String("db.system", "qdrant"),
			attribute.String("db.operation", path),
		))
	defer span.End()

	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
			return 0, err
		}
		reader = bytes.NewReader(jsonBody)
		span.SetAttributes(attribute.Int("http.request.body.size", len(jsonBody)))
	}

	req, err := http.NewRequestWithContext(ctx, method, q.endpoint+path, reader)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := q.httpClient.Do(req)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeHTTP)
		return 0, err
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeHTTP)
		return resp.StatusCode, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err = fmt.Errorf("qdrant API error: status=%d, body=%s", resp.StatusCode, tracing.TruncateString(string(respBody), 512))
		tracing.RecordHTTPError(span, err, resp.StatusCode)
		return resp.StatusCode, err
	}

	if result != nil && len(respBody) > 0 {
		if err = json.Unmarshal(respBody, result); err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
			return resp.StatusCode, err
		}
	}
	span.SetStatus(codes.Ok, "")
	return resp.StatusCode, nil
}
