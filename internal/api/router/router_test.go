package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"smarthire-ats/internal/api/handler"
	"smarthire-ats/internal/api/router"
	"smarthire-ats/internal/config"
	"smarthire-ats/internal/processor"
	"smarthire-ats/internal/storage"
	"smarthire-ats/internal/types"
	"smarthire-ats/internal/workflow"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "test-key"

// fakeBackend 同时充当评分、岗位与评分查询服务
type fakeBackend struct {
	scores     map[string]*types.CandidateScore
	persistErr map[string]bool
	jobs       map[string]*types.JobPosting
	active     []types.ActiveJob
}

func newFakeBackend() *fakeBackend {
	eval := &types.QualitativeEvaluation{
		ATSScore:          88,
		OverallAssessment: "Strong backend profile",
		Strengths:         []string{"Go"},
		Decision:          types.DecisionPass,
	}
	return &fakeBackend{
		scores: map[string]*types.CandidateScore{
			"app-1": {ApplicationID: "app-1", CandidateName: "Alice", JobTitle: "Go Developer", FinalATSScore: 87.5, QualitativeEvaluation: eval},
			"app-2": {ApplicationID: "app-2", CandidateName: "Bob", FinalATSScore: 61},
		},
		persistErr: map[string]bool{"app-2": true},
		jobs:       map[string]*types.JobPosting{"job-1": {JobID: "job-1", Title: "Go Developer", Description: "go kubernetes"}},
		active:     []types.ActiveJob{{JobPosting: types.JobPosting{JobID: "job-1", Title: "Go Developer"}, ApplicationCount: 2}},
	}
}

func (b *fakeBackend) ProcessApplication(_ context.Context, id string) (*types.CandidateScore, error) {
	score, ok := b.scores[id]
	if !ok {
		return nil, processor.NewRetrievalError(id, errors.New("not found"))
	}
	if b.persistErr[id] {
		return score, processor.NewPersistenceError(id, errors.New("db down"))
	}
	return score, nil
}

func (b *fakeBackend) ProcessAll(context.Context) (*processor.BatchSummary, error) {
	return &processor.BatchSummary{Total: 2, Results: []types.CandidateScore{*b.scores["app-1"], *b.scores["app-2"]}}, nil
}

func (b *fakeBackend) ProcessByJob(_ context.Context, jobID string) (*processor.BatchSummary, error) {
	if _, ok := b.jobs[jobID]; !ok {
		return nil, fmt.Errorf("%w: 岗位不存在", types.ErrRetrieval)
	}
	return &processor.BatchSummary{Total: 1, Results: []types.CandidateScore{*b.scores["app-1"]}}, nil
}

func (b *fakeBackend) ListActiveJobs(context.Context) ([]types.ActiveJob, error) {
	return b.active, nil
}

func (b *fakeBackend) JobVector(_ context.Context, job *types.JobPosting) ([]float64, error) {
	return []float64{1, 0, 0}, nil
}

func (b *fakeBackend) GetJob(_ context.Context, jobID string) (*types.JobPosting, error) {
	job, ok := b.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("查询岗位 %s 失败: %w", jobID, storage.ErrRecordNotFound)
	}
	return job, nil
}

func (b *fakeBackend) GetCandidateScore(_ context.Context, id string) (*types.CandidateScore, error) {
	score, ok := b.scores[id]
	if !ok {
		return nil, fmt.Errorf("查询评分 %s 失败: %w", id, storage.ErrRecordNotFound)
	}
	return score, nil
}

func (b *fakeBackend) ResumeURL(_ context.Context, id string, expiry time.Duration) (string, error) {
	switch id {
	case "app-1":
		return fmt.Sprintf("https://minio.local/resumes/%s.pdf?X-Amz-Expires=%d", id, int(expiry.Seconds())), nil
	case "no-storage":
		return "", storage.ErrNoObjectStorage
	default:
		return "", fmt.Errorf("查询申请 %s 失败: %w", id, storage.ErrRecordNotFound)
	}
}

type fakeSearcher struct{}

func (fakeSearcher) SearchSimilarCandidates(_ context.Context, _ []float64, jobID string, limit int) ([]storage.SimilarCandidate, error) {
	return []storage.SimilarCandidate{{ApplicationID: "app-1", JobID: jobID, CandidateName: "Alice", Score: 0.93}}, nil
}

type fakeHealth map[string]error

func (f fakeHealth) Health(context.Context) map[string]error { return f }

// workflow 依赖的存储与评分
type nopJobStore struct{}

func (nopJobStore) CreateJob(_ context.Context, job *types.JobPosting, _, _ string) error {
	job.JobID = "job-9"
	return nil
}
func (nopJobStore) ListApplications(context.Context) ([]types.ApplicationRecord, error) {
	return nil, nil
}
func (nopJobStore) ListApplicationsByJob(context.Context, string) ([]types.ApplicationRecord, error) {
	return nil, nil
}
func (nopJobStore) SaveInterviews(context.Context, []types.ScheduledInterview) error { return nil }
func (nopJobStore) SaveInterviewResults(context.Context, []types.InterviewResult) error {
	return nil
}
func (nopJobStore) SaveOffers(context.Context, string, []types.Offer) error            { return nil }
func (nopJobStore) SaveOnboarding(context.Context, []types.OnboardingRecord) error     { return nil }

type nopScorer struct{}

func (nopScorer) ProcessApplications(_ context.Context, apps []types.ApplicationRecord) *processor.BatchSummary {
	return &processor.BatchSummary{Total: len(apps)}
}

func newTestServer(t *testing.T, searcher handler.CandidateSearcher, health fakeHealth) *server.Hertz {
	t.Helper()
	backend := newFakeBackend()
	wf, err := workflow.New(nopJobStore{}, nopScorer{}, nil, config.WorkflowConfig{
		ShortlistSize:    3,
		MinApplications:  5,
		PassThreshold:    80,
		ApprovalKeywords: []string{"ai", "ml", "data", "engineer", "developer"},
		OfferSalary:      "$120,000 USD (Simulated)",
		InterviewBaseURL: "ws://localhost:8080",
		DefaultLocation:  "Remote",
	})
	require.NoError(t, err)

	h := server.New(server.WithHostPorts("127.0.0.1:0"))
	router.RegisterRoutes(h, router.Handlers{
		ATS:      handler.NewATSHandler(backend),
		Scores:   handler.NewScoreHandler(backend),
		Jobs:     handler.NewJobHandler(backend, backend, searcher),
		Workflow: handler.NewWorkflowHandler(wf),
		Health:   handler.NewHealthHandler(health),
		Resumes:  handler.NewResumeHandler(backend),
	}, []string{testKey})
	return h
}

func perform(h *server.Hertz, method, path string, body interface{}, withKey bool) (int, map[string]interface{}) {
	var raw []byte
	if body != nil {
		raw, _ = json.Marshal(body)
	}
	headers := []ut.Header{{Key: "Content-Type", Value: "application/json"}}
	if withKey {
		headers = append(headers, ut.Header{Key: router.APIKeyHeader, Value: testKey})
	}
	w := ut.PerformRequest(h.Engine, method, path, &ut.Body{Body: bytes.NewReader(raw), Len: len(raw)}, headers...)
	resp := w.Result()
	out := map[string]interface{}{}
	_ = json.Unmarshal(resp.Body(), &out)
	return resp.StatusCode(), out
}

func TestHealthIsPublic(t *testing.T) {
	h := newTestServer(t, nil, fakeHealth{"mysql": nil})
	status, body := perform(h, consts.MethodGet, "/health", nil, false)
	assert.Equal(t, consts.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	h = newTestServer(t, nil, fakeHealth{"mysql": nil, "redis": errors.New("connection refused")})
	status, body = perform(h, consts.MethodGet, "/health", nil, false)
	assert.Equal(t, consts.StatusServiceUnavailable, status)
	assert.Equal(t, "degraded", body["status"])
}

func TestAPIRequiresKey(t *testing.T) {
	h := newTestServer(t, nil, nil)
	status, _ := perform(h, consts.MethodGet, "/api/v1/jobs/active", nil, false)
	assert.Equal(t, consts.StatusUnauthorized, status)

	status, body := perform(h, consts.MethodGet, "/api/v1/jobs/active", nil, true)
	assert.Equal(t, consts.StatusOK, status)
	assert.EqualValues(t, 1, body["count"])
}

func TestProcessApplicationRoutes(t *testing.T) {
	h := newTestServer(t, nil, nil)

	status, body := perform(h, consts.MethodPost, "/api/v1/ats/process/app-1", nil, true)
	assert.Equal(t, consts.StatusOK, status)
	assert.Equal(t, true, body["persisted"])

	status, body = perform(h, consts.MethodPost, "/api/v1/ats/process/app-2", nil, true)
	assert.Equal(t, consts.StatusAccepted, status, "持久化失败时返回已计算的分数")
	assert.Equal(t, false, body["persisted"])
	assert.NotNil(t, body["score"])
	assert.Equal(t, "SCORED_AND_PERSISTED", body["stage"])
	assert.Equal(t, "app-2", body["application_id"])
	assert.Equal(t, "db down", body["cause"])

	status, body = perform(h, consts.MethodPost, "/api/v1/ats/process/missing", nil, true)
	assert.Equal(t, consts.StatusNotFound, status)
	assert.Equal(t, "RETRIEVED", body["stage"])
	assert.Equal(t, "missing", body["application_id"])
	assert.Equal(t, "not found", body["cause"])
	assert.Equal(t, types.ErrRetrieval.Error(), body["category"])
	assert.NotEmpty(t, body["error"])
}

func TestProcessBatchRoutes(t *testing.T) {
	h := newTestServer(t, nil, nil)

	status, body := perform(h, consts.MethodPost, "/api/v1/ats/process", nil, true)
	assert.Equal(t, consts.StatusOK, status)
	assert.EqualValues(t, 2, body["total"])

	status, body = perform(h, consts.MethodPost, "/api/v1/ats/process/job/job-1", nil, true)
	assert.Equal(t, consts.StatusOK, status)
	assert.EqualValues(t, 1, body["total"])

	status, _ = perform(h, consts.MethodPost, "/api/v1/ats/process/job/job-x", nil, true)
	assert.Equal(t, consts.StatusNotFound, status)
}

func TestScoreAndReport(t *testing.T) {
	h := newTestServer(t, nil, nil)

	status, body := perform(h, consts.MethodGet, "/api/v1/scores/app-1", nil, true)
	assert.Equal(t, consts.StatusOK, status)
	assert.Equal(t, 87.5, body["final_ats_score"])

	status, body = perform(h, consts.MethodGet, "/api/v1/scores/app-1/report", nil, true)
	assert.Equal(t, consts.StatusOK, status)
	assert.Contains(t, body["report"], "Alice")

	status, _ = perform(h, consts.MethodGet, "/api/v1/scores/app-2/report", nil, true)
	assert.Equal(t, consts.StatusNotFound, status, "无定性评估时没有报告")

	status, _ = perform(h, consts.MethodGet, "/api/v1/scores/nope", nil, true)
	assert.Equal(t, consts.StatusNotFound, status)
}

func TestSimilarCandidates(t *testing.T) {
	h := newTestServer(t, nil, nil)
	status, _ := perform(h, consts.MethodGet, "/api/v1/jobs/job-1/similar", nil, true)
	assert.Equal(t, consts.StatusServiceUnavailable, status)

	h = newTestServer(t, fakeSearcher{}, nil)
	status, body := perform(h, consts.MethodGet, "/api/v1/jobs/job-1/similar?limit=5", nil, true)
	assert.Equal(t, consts.StatusOK, status)
	assert.EqualValues(t, 1, body["count"])

	status, _ = perform(h, consts.MethodGet, "/api/v1/jobs/job-404/similar", nil, true)
	assert.Equal(t, consts.StatusNotFound, status)
}

func TestWorkflowJD(t *testing.T) {
	h := newTestServer(t, nil, nil)

	status, body := perform(h, consts.MethodPost, "/api/v1/workflow/jd", workflow.Request{CompanyName: "Acme", JobRole: "Data Engineer"}, true)
	assert.Equal(t, consts.StatusOK, status)
	assert.Equal(t, true, body["approved"])
	assert.Contains(t, body["job_description"], "Data Engineer - Acme")
	assert.Equal(t, "Remote", body["location"])

	status, _ = perform(h, consts.MethodPost, "/api/v1/workflow/jd", workflow.Request{CompanyName: "Acme"}, true)
	assert.Equal(t, consts.StatusBadRequest, status)
}

func TestWorkflowRun(t *testing.T) {
	h := newTestServer(t, nil, nil)
	status, body := perform(h, consts.MethodPost, "/api/v1/workflow/run", workflow.Request{CompanyName: "Acme", JobRole: "Sales Lead"}, true)
	assert.Equal(t, consts.StatusOK, status)
	assert.Equal(t, false, body["approved"])
	assert.Equal(t, workflow.RejectedPostingResult, body["posting_result"])
}

func TestWorkflowScheduleAndScore(t *testing.T) {
	h := newTestServer(t, nil, nil)

	status, body := perform(h, consts.MethodPost, "/api/v1/workflow/schedule", handler.ScheduleRequest{
		JobRole: "Go Developer",
		Shortlist: []types.ShortlistEntry{
			{ApplicationID: "app-1", CandidateName: "Alice", FinalScore: 87.5},
			{ApplicationID: "app-2", CandidateName: "Bob", FinalScore: 61},
		},
	}, true)
	require.Equal(t, consts.StatusOK, status)
	assert.EqualValues(t, 2, body["count"])

	raw, _ := json.Marshal(body["interviews"])
	var interviews []types.ScheduledInterview
	require.NoError(t, json.Unmarshal(raw, &interviews))

	status, body = perform(h, consts.MethodPost, "/api/v1/workflow/interviews/score", handler.ScoreInterviewsRequest{Interviews: interviews}, true)
	require.Equal(t, consts.StatusOK, status)
	assert.EqualValues(t, 2, body["total"])
	assert.EqualValues(t, 1, body["passed"])
}

func TestResumeURL(t *testing.T) {
	h := newTestServer(t, nil, nil)

	status, body := perform(h, consts.MethodGet, "/api/v1/applications/app-1/resume?expires=1h", nil, true)
	assert.Equal(t, consts.StatusOK, status)
	assert.EqualValues(t, 3600, body["expires_in"])
	assert.Contains(t, body["url"], "X-Amz-Expires=3600")

	status, body = perform(h, consts.MethodGet, "/api/v1/applications/app-1/resume?expires=72h", nil, true)
	assert.Equal(t, consts.StatusOK, status)
	assert.EqualValues(t, 86400, body["expires_in"], "链接有效期上限为24小时")

	status, _ = perform(h, consts.MethodGet, "/api/v1/applications/app-1/resume?expires=soon", nil, true)
	assert.Equal(t, consts.StatusBadRequest, status)

	status, _ = perform(h, consts.MethodGet, "/api/v1/applications/no-storage/resume", nil, true)
	assert.Equal(t, consts.StatusServiceUnavailable, status)

	status, _ = perform(h, consts.MethodGet, "/api/v1/applications/missing/resume", nil, true)
	assert.Equal(t, consts.StatusNotFound, status)
}
