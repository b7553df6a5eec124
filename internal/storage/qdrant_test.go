package storage_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"smarthire-ats/internal/config"
	"smarthire-ats/internal/storage"
	"smarthire-ats/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const collectionInfo = `{"result": {"config": {"params": {"vectors": {"size": 3, "distance": "Cosine"}}}}}`

type qdrantRecorder struct {
	mu       sync.Mutex
	requests []string
	upserted []map[string]interface{}
	search   map[string]interface{}
}

func newQdrantServer(t *testing.T, rec *qdrantRecorder, searchResponse string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.mu.Lock()
		rec.requests = append(rec.requests, r.Method+" "+r.URL.Path)
		rec.mu.Unlock()

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/collections/test_collection":
			_, _ = w.Write([]byte(collectionInfo))
		case r.Method == http.MethodPost && r.URL.Path == "/collections/test_collection/points/delete":
			_, _ = w.Write([]byte(`{"result": {"status": "completed"}}`))
		case r.Method == http.MethodPut && r.URL.Path == "/collections/test_collection/points":
			var body struct {
				Points []map[string]interface{} `json:"points"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			rec.mu.Lock()
			rec.upserted = body.Points
			rec.mu.Unlock()
			_, _ = w.Write([]byte(`{"result": {"operation_id": 1, "status": "completed"}}`))
		case r.Method == http.MethodPost && r.URL.Path == "/collections/test_collection/points/search":
			rec.mu.Lock()
			require.NoError(t, json.NewDecoder(r.Body).Decode(&rec.search))
			rec.mu.Unlock()
			_, _ = w.Write([]byte(searchResponse))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newTestQdrant(t *testing.T, url string) *storage.Qdrant {
	t.Helper()
	client, err := storage.NewQdrant(context.Background(), &config.QdrantConfig{
		Endpoint:   url,
		Collection: "test_collection",
		Dimension:  3,
	}, storage.WithDistanceMetric("Cosine"), storage.WithHttpTimeout(5*time.Second))
	require.NoError(t, err)
	return client
}

func TestQdrantCreatesMissingCollection(t *testing.T) {
	var created bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/test_collection":
			created = true
			_, _ = w.Write([]byte(`{"result": true}`))
		default:
			_, _ = w.Write([]byte(`{"result": {}}`))
		}
	}))
	defer server.Close()

	newTestQdrant(t, server.URL)
	assert.True(t, created)
}

func TestQdrantUpsertApplicationChunks(t *testing.T) {
	rec := &qdrantRecorder{}
	server := newQdrantServer(t, rec, `{"result": []}`)
	defer server.Close()
	client := newTestQdrant(t, server.URL)

	app := &types.ApplicationRecord{ApplicationID: "app-1", JobID: "job-1", CandidateName: "Alice"}
	chunks := []types.EmbeddedChunk{
		{Chunk: types.Chunk{ChunkID: 0, Text: "go developer"}, Embedding: []float64{1, 0, 0}},
		{Chunk: types.Chunk{ChunkID: 1, Text: "kubernetes"}, Embedding: []float64{0, 1, 0}},
	}
	require.NoError(t, client.UpsertApplicationChunks(context.Background(), app, chunks))

	assert.Contains(t, rec.requests, "POST /collections/test_collection/points/delete", "先删除旧点")
	require.Len(t, rec.upserted, 3, "两个分块加一个文档向量")
	assert.Equal(t, storage.ChunkPointID("app-1", 0), rec.upserted[0]["id"])
	assert.Equal(t, storage.DocumentPointID("app-1"), rec.upserted[2]["id"])

	doc := rec.upserted[2]
	assert.Equal(t, []interface{}{0.5, 0.5, 0.0}, doc["vector"])
	payload := doc["payload"].(map[string]interface{})
	assert.Equal(t, storage.PointKindDocument, payload["kind"])
	assert.Equal(t, "job-1", payload["job_id"])
}

func TestQdrantPointIDsAreDeterministic(t *testing.T) {
	assert.Equal(t, storage.ChunkPointID("app-1", 2), storage.ChunkPointID("app-1", 2))
	assert.NotEqual(t, storage.ChunkPointID("app-1", 2), storage.ChunkPointID("app-2", 2))
	assert.NotEqual(t, storage.ChunkPointID("app-1", 0), storage.DocumentPointID("app-1"))
}

func TestQdrantRejectsWrongDimension(t *testing.T) {
	rec := &qdrantRecorder{}
	server := newQdrantServer(t, rec, `{"result": []}`)
	defer server.Close()
	client := newTestQdrant(t, server.URL)

	app := &types.ApplicationRecord{ApplicationID: "app-1"}
	err := client.UpsertApplicationChunks(context.Background(), app, []types.EmbeddedChunk{{Embedding: []float64{1}}})
	assert.Error(t, err)

	_, err = client.Search(context.Background(), []float64{1, 2}, 5, nil)
	assert.Error(t, err)
}

func TestQdrantSearchSimilarCandidates(t *testing.T) {
	rec := &qdrantRecorder{}
	server := newQdrantServer(t, rec, `{
		"result": [
			{"id": "5c1d0c4e-4e0f-5b53-9d0e-111111111111", "score": 0.93, "payload": {"kind": "document", "application_id": "app-1", "job_id": "job-1", "candidate_name": "Alice"}},
			{"id": "5c1d0c4e-4e0f-5b53-9d0e-222222222222", "score": 0.71, "payload": {"kind": "document", "application_id": "app-2", "job_id": "job-1", "candidate_name": "Bob"}}
		],
		"time": 0.001
	}`)
	defer server.Close()
	client := newTestQdrant(t, server.URL)

	got, err := client.SearchSimilarCandidates(context.Background(), []float64{1, 0, 0}, "job-1", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "app-1", got[0].ApplicationID)
	assert.Equal(t, "Alice", got[0].CandidateName)
	assert.InDelta(t, 0.93, float64(got[0].Score), 1e-6)

	assert.EqualValues(t, 10, rec.search["limit"], "未指定时使用默认条数")
	filter := rec.search["filter"].(map[string]interface{})
	assert.Len(t, filter["must"], 2)
}
