package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"smarthire-ats/internal/config"
	"smarthire-ats/internal/parser"
	"smarthire-ats/internal/types"

	einoParser "github.com/cloudwego/eino/components/document/parser"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// keywordEmbedder 按关键词计数生成确定性向量
type keywordEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

var embedVocabulary = []string{"go", "python", "kubernetes", "sales", "marketing"}

func (e *keywordEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v := make([]float64, len(embedVocabulary)+1)
		for _, w := range strings.Fields(strings.ToLower(t)) {
			w = strings.Trim(w, ".,;:")
			for k, term := range embedVocabulary {
				if w == term {
					v[k]++
				}
			}
		}
		v[len(embedVocabulary)] = 1
		out[i] = v
	}
	return out, nil
}

func (e *keywordEmbedder) GetDimensions() int { return len(embedVocabulary) + 1 }

type fakeSource struct {
	apps       []types.ApplicationRecord
	resumes    map[string]string
	failFetch  map[string]bool
	listErr    error
	activeJobs []types.ActiveJob
}

func (s *fakeSource) GetApplication(ctx context.Context, id string) (*types.ApplicationRecord, error) {
	for i := range s.apps {
		if s.apps[i].ApplicationID == id {
			app := s.apps[i]
			return &app, nil
		}
	}
	return nil, fmt.Errorf("%w: 申请 %s 不存在", types.ErrRetrieval, id)
}

func (s *fakeSource) ListApplications(ctx context.Context) ([]types.ApplicationRecord, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]types.ApplicationRecord(nil), s.apps...), nil
}

func (s *fakeSource) ListApplicationsByJob(ctx context.Context, jobID string) ([]types.ApplicationRecord, error) {
	var out []types.ApplicationRecord
	for _, a := range s.apps {
		if a.JobID == jobID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *fakeSource) FetchResume(ctx context.Context, app *types.ApplicationRecord) ([]byte, error) {
	if s.failFetch[app.ApplicationID] {
		return nil, errors.New("object not found")
	}
	return []byte(s.resumes[app.ApplicationID]), nil
}

func (s *fakeSource) ListActiveJobs(ctx context.Context) ([]types.ActiveJob, error) {
	return s.activeJobs, nil
}

type textExtractor struct{}

func (textExtractor) ExtractText(ctx context.Context, data []byte) (string, error) {
	return string(data), nil
}

type memoryStore struct {
	mu            sync.Mutex
	scores        map[string]types.CandidateScore
	skills        map[string]types.ApplicationSkillAnalysis
	embeddings    map[string]int
	scoreWrites   int
	failScoreN    int // 前 N 次写分数失败
	alwaysFail    bool
	embeddingsErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		scores:     map[string]types.CandidateScore{},
		skills:     map[string]types.ApplicationSkillAnalysis{},
		embeddings: map[string]int{},
	}
}

func (s *memoryStore) UpsertResumeEmbeddings(ctx context.Context, app *types.ApplicationRecord, chunks []types.EmbeddedChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.embeddingsErr != nil {
		return s.embeddingsErr
	}
	s.embeddings[app.ApplicationID] = len(chunks)
	return nil
}

func (s *memoryStore) UpsertSkillAnalysis(ctx context.Context, id string, analysis *types.ApplicationSkillAnalysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skills[id] = *analysis
	return nil
}

func (s *memoryStore) UpsertCandidateScore(ctx context.Context, score *types.CandidateScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scoreWrites++
	if s.alwaysFail || s.scoreWrites <= s.failScoreN {
		return errors.New("connection refused")
	}
	s.scores[score.ApplicationID] = *score
	return nil
}

type fixedEvaluator struct {
	outcome types.EvaluationOutcome
}

func (f fixedEvaluator) BuildContext(app *types.ApplicationRecord, sim *types.SimilarityResult, skills *types.ApplicationSkillAnalysis) string {
	return "context for " + app.ApplicationID
}

func (f fixedEvaluator) Evaluate(ctx context.Context, evalContext, resumeText, jdText string) types.EvaluationOutcome {
	return f.outcome
}

type busyLocker struct{ busy map[string]bool }

func (l busyLocker) Lock(ctx context.Context, id string) (func(), bool, error) {
	if l.busy[id] {
		return nil, false, nil
	}
	return func() {}, true, nil
}

const testJD = "We need a Go engineer with Kubernetes and Python experience. 3+ years of experience required. Bachelor degree preferred."

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testApplications() []types.ApplicationRecord {
	job := types.JobPosting{JobID: "job-1", Title: "Backend Engineer", Company: "Acme", Description: testJD}
	return []types.ApplicationRecord{
		{ApplicationID: "app-1", JobID: "job-1", CandidateName: "Alice", Job: job},
		{ApplicationID: "app-2", JobID: "job-1", CandidateName: "Bob", Job: job},
		{ApplicationID: "app-3", JobID: "job-1", CandidateName: "Carol", Job: job},
	}
}

func testResumes() map[string]string {
	return map[string]string{
		"app-1": "Senior Go developer. 6 years of experience with Go, Kubernetes and Python. Master of Science.",
		"app-2": "Go and Python engineer with 4 years of experience.",
		"app-3": "Sales and marketing manager. 2 years of experience in sales.",
	}
}

type fixture struct {
	source    *fakeSource
	store     *memoryStore
	embedder  *keywordEmbedder
	extractor PDFExtractor
	eval      QualitativeEvaluator
	locker    ApplicationLocker
}

func newFixture() *fixture {
	return &fixture{
		source:    &fakeSource{apps: testApplications(), resumes: testResumes(), failFetch: map[string]bool{}},
		store:     newMemoryStore(),
		embedder:  &keywordEmbedder{},
		extractor: textExtractor{},
		eval: fixedEvaluator{outcome: types.EvaluationOutcome{
			Kind:       types.EvaluationOK,
			Evaluation: &types.QualitativeEvaluation{ATSScore: 80, Decision: types.DecisionPass},
		}},
	}
}

func (f *fixture) build(t *testing.T) *ATSProcessor {
	t.Helper()
	chunker, err := parser.NewWindowChunker(512, 50)
	require.NoError(t, err)
	sim, err := NewSimilarityEngine(f.embedder, 0.7, 5)
	require.NoError(t, err)
	agg, err := NewScoreAggregator(config.DefaultWeights(), WithPersistRetry(3, time.Millisecond))
	require.NoError(t, err)

	compOpts := []ComponentOpt{
		WithcompSource(f.source),
		WithcompStore(f.store),
		WithcompPdfextractor(f.extractor),
		WithcompChunker(chunker),
		WithcompSkillanalyzer(parser.NewSkillAnalyzer(parser.DefaultTaxonomy())),
		WithcompSimilarity(sim),
		WithcompEvaluator(f.eval),
		WithcompAggregator(agg),
	}
	if f.locker != nil {
		compOpts = append(compOpts, WithcompLocker(f.locker))
	}
	p, err := CreateProcessor(compOpts, []SettingOpt{
		WithsetWorkers(2),
		WithsetExternalTimeout(time.Second),
		WithsetLogger(zerolog.Nop()),
		WithsetClock(func() time.Time { return fixedNow }),
	})
	require.NoError(t, err)
	return p
}

func TestNewATSProcessorRequiresComponents(t *testing.T) {
	_, err := NewATSProcessor(&Components{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrConfiguration)

	var cfgErr *types.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "processor.source", cfgErr.Field)
}

func TestCreateProcessorFromConfigFailsFast(t *testing.T) {
	cfg := &config.Config{}
	cfg.ApplyDefaults()

	_, err := CreateProcessorFromConfig(cfg, Capabilities{Extractor: textExtractor{}}, &fakeSource{}, newMemoryStore())
	assert.ErrorIs(t, err, types.ErrConfiguration)

	_, err = CreateProcessorFromConfig(cfg, Capabilities{Embedder: &keywordEmbedder{}, Extractor: textExtractor{}}, &fakeSource{}, newMemoryStore())
	assert.ErrorIs(t, err, types.ErrConfiguration, "缺少判断模型应在构建时失败")
}

func TestProcessAllIsolatesFailures(t *testing.T) {
	f := newFixture()
	f.source.failFetch["app-2"] = true
	p := f.build(t)

	summary, err := p.ProcessAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	require.Len(t, summary.Results, 2)
	require.Len(t, summary.Failures, 1)

	failure := summary.Failures[0]
	assert.Equal(t, "app-2", failure.ApplicationID)
	assert.Equal(t, "Bob", failure.CandidateName)
	assert.Equal(t, StateRetrieved, failure.Stage)
	assert.Contains(t, failure.Error, "object not found")
	assert.Nil(t, failure.Score)

	assert.Equal(t, "app-1", summary.Results[0].ApplicationID, "匹配度更高的候选人排在前面")
	assert.Equal(t, "app-3", summary.Results[1].ApplicationID)
	assert.GreaterOrEqual(t, summary.Results[0].FinalATSScore, summary.Results[1].FinalATSScore)

	_, persisted := f.store.scores["app-2"]
	assert.False(t, persisted)
	assert.Len(t, f.store.scores, 2)
}

func TestProcessByJobFiltersApplications(t *testing.T) {
	f := newFixture()
	f.source.apps[2].JobID = "job-2"
	p := f.build(t)

	summary, err := p.ProcessByJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)
	assert.Len(t, summary.Results, 2)
}

func TestProcessAllListFailure(t *testing.T) {
	f := newFixture()
	f.source.listErr = errors.New("db down")
	p := f.build(t)

	_, err := p.ProcessAll(context.Background())
	assert.ErrorIs(t, err, types.ErrRetrieval)
}

func TestProcessApplicationIsIdempotent(t *testing.T) {
	f := newFixture()
	p := f.build(t)

	first, err := p.ProcessApplication(context.Background(), "app-1")
	require.NoError(t, err)
	second, err := p.ProcessApplication(context.Background(), "app-1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, f.store.scores, 1)
	assert.Equal(t, *second, f.store.scores["app-1"])
	assert.Equal(t, fixedNow, second.ComputedAt)
}

func TestProcessApplicationScoreComposition(t *testing.T) {
	f := newFixture()
	p := f.build(t)

	score, err := p.ProcessApplication(context.Background(), "app-1")
	require.NoError(t, err)

	c := score.ComponentScores
	assert.Equal(t, ExperienceMatchedScore, c.ExperienceMatch)
	assert.Equal(t, EducationFoundScore, c.EducationMatch)
	assert.Equal(t, 80.0, c.LLMScore)

	expected := RoundScore(c.SemanticSimilarity*0.30 + c.SkillMatch*0.25 + c.ExperienceMatch*0.20 + c.EducationMatch*0.15 + c.LLMScore*0.10)
	assert.Equal(t, expected, score.FinalATSScore)
	assert.GreaterOrEqual(t, score.FinalATSScore, 0.0)
	assert.LessOrEqual(t, score.FinalATSScore, 100.0)

	assert.Equal(t, "Backend Engineer", score.JobTitle)
	assert.Equal(t, "Acme", score.Company)
	assert.Contains(t, f.store.skills, "app-1")
	assert.Positive(t, f.store.embeddings["app-1"])
}

func TestProcessApplicationUnknownID(t *testing.T) {
	p := newFixture().build(t)

	_, err := p.ProcessApplication(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrRetrieval)
	se := AsStageError(err)
	require.NotNil(t, se)
	assert.Equal(t, StateRetrieved, se.Stage)
}

func TestProcessApplicationEmptyResume(t *testing.T) {
	f := newFixture()
	f.source.resumes["app-1"] = "   "
	p := f.build(t)

	_, err := p.ProcessApplication(context.Background(), "app-1")
	assert.ErrorIs(t, err, types.ErrRetrieval)
}

func TestEmbeddingFailureFailsCandidateAtEmbedded(t *testing.T) {
	f := newFixture()
	f.embedder.err = errors.New("embedding service unavailable")
	p := f.build(t)

	score, err := p.ProcessApplication(context.Background(), "app-1")
	require.Error(t, err)
	assert.Nil(t, score)
	assert.ErrorIs(t, err, types.ErrExternalCapability)

	se := AsStageError(err)
	require.NotNil(t, se)
	assert.Equal(t, StateEmbedded, se.Stage)
	assert.Empty(t, f.store.scores)
}

func TestJudgmentFailureUsesNeutralScore(t *testing.T) {
	f := newFixture()
	f.eval = fixedEvaluator{outcome: types.EvaluationOutcome{
		Kind: types.EvaluationCapabilityFailure,
		Err:  fmt.Errorf("%w: timeout", types.ErrExternalCapability),
	}}
	p := f.build(t)

	score, err := p.ProcessApplication(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Equal(t, NeutralLLMScore, score.ComponentScores.LLMScore)
	assert.Nil(t, score.QualitativeEvaluation)
}

func TestParseFailureUsesFallbackEvaluation(t *testing.T) {
	f := newFixture()
	f.eval = fixedEvaluator{outcome: types.EvaluationOutcome{
		Kind:       types.EvaluationParseFailure,
		Evaluation: parser.FallbackEvaluation(),
		Err:        types.ErrMalformedResponse,
	}}
	p := f.build(t)

	score, err := p.ProcessApplication(context.Background(), "app-1")
	require.NoError(t, err)
	require.NotNil(t, score.QualitativeEvaluation)
	assert.Equal(t, 50.0, score.ComponentScores.LLMScore)
	assert.Equal(t, types.DecisionFail, score.QualitativeEvaluation.Decision)
}

func TestPersistenceRetriesThenSucceeds(t *testing.T) {
	f := newFixture()
	f.store.failScoreN = 2
	p := f.build(t)

	score, err := p.ProcessApplication(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Equal(t, 3, f.store.scoreWrites)
	assert.Equal(t, *score, f.store.scores["app-1"])
}

func TestPersistenceFailureKeepsScore(t *testing.T) {
	f := newFixture()
	f.store.alwaysFail = true
	p := f.build(t)

	score, err := p.ProcessApplication(context.Background(), "app-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrPersistence)
	require.NotNil(t, score, "持久化失败时保留已计算的分数")
	assert.Equal(t, 4, f.store.scoreWrites, "首次写入加3次重试")

	// 存储恢复后无需重跑流水线
	f.store.alwaysFail = false
	require.NoError(t, p.PersistScore(context.Background(), score))
	assert.Equal(t, *score, f.store.scores["app-1"])
}

func TestBatchPersistenceFailureRecordsScore(t *testing.T) {
	f := newFixture()
	f.store.alwaysFail = true
	p := f.build(t)

	summary, err := p.ProcessAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, summary.Results)
	require.Len(t, summary.Failures, 3)
	for _, fl := range summary.Failures {
		assert.Equal(t, StateScoredAndPersisted, fl.Stage)
		assert.NotNil(t, fl.Score)
	}
}

func TestAuxiliaryPersistenceFailureDoesNotFailCandidate(t *testing.T) {
	f := newFixture()
	f.store.embeddingsErr = errors.New("qdrant down")
	p := f.build(t)

	_, err := p.ProcessApplication(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Contains(t, f.store.scores, "app-1")
}

func TestBusyApplicationIsRejected(t *testing.T) {
	f := newFixture()
	f.locker = busyLocker{busy: map[string]bool{"app-1": true}}
	p := f.build(t)

	_, err := p.ProcessApplication(context.Background(), "app-1")
	assert.ErrorIs(t, err, ErrApplicationBusy)

	summary, err := p.ProcessAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, summary.Results, 2)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "app-1", summary.Failures[0].ApplicationID)
}

func TestRankScoresStableForTies(t *testing.T) {
	scores := []types.CandidateScore{
		{ApplicationID: "a", FinalATSScore: 70},
		{ApplicationID: "b", FinalATSScore: 85},
		{ApplicationID: "c", FinalATSScore: 70},
		{ApplicationID: "d", FinalATSScore: 85},
	}
	RankScores(scores)

	var order []string
	for _, s := range scores {
		order = append(order, s.ApplicationID)
	}
	assert.Equal(t, []string{"b", "d", "a", "c"}, order)
}

func TestListActiveJobs(t *testing.T) {
	f := newFixture()
	f.source.activeJobs = []types.ActiveJob{{JobPosting: types.JobPosting{JobID: "job-1"}, ApplicationCount: 3}}
	p := f.build(t)

	jobs, err := p.ListActiveJobs(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, int64(3), jobs[0].ApplicationCount)
}

func TestJobVector(t *testing.T) {
	f := newFixture()
	p := f.build(t)

	vec, err := p.JobVector(context.Background(), &types.JobPosting{JobID: "job-1", Description: testJD})
	require.NoError(t, err)
	assert.Len(t, vec, f.embedder.GetDimensions())

	_, err = p.JobVector(context.Background(), &types.JobPosting{JobID: "job-2", Description: "   "})
	assert.ErrorIs(t, err, types.ErrRetrieval)
}

// hangingDocParser 对包含 HANG 的文档永不返回，且不检查 ctx
type hangingDocParser struct{ release chan struct{} }

func (p hangingDocParser) Parse(ctx context.Context, r io.Reader, opts ...einoParser.Option) ([]*schema.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if strings.Contains(string(data), "HANG") {
		<-p.release
	}
	return []*schema.Document{{Content: string(data)}}, nil
}

func TestProcessAllContinuesWhenPDFParserHangs(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	extractor, err := parser.NewEinoPDFTextExtractor(context.Background(),
		parser.WithDocumentParser(hangingDocParser{release: release}))
	require.NoError(t, err)

	f := newFixture()
	f.source.resumes["app-2"] = "HANG BT /F1 12 Tf ( Tj ET"
	f.extractor = extractor
	p := f.build(t)

	done := make(chan *BatchSummary, 1)
	go func() {
		summary, err := p.ProcessAll(context.Background())
		assert.NoError(t, err)
		done <- summary
	}()

	var summary *BatchSummary
	select {
	case summary = <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("批量评分被卡住的PDF解析阻塞")
	}

	require.Len(t, summary.Results, 2)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "app-2", summary.Failures[0].ApplicationID)
	assert.Equal(t, StateRetrieved, summary.Failures[0].Stage)
}

// panickingEvaluator 对指定申请在评估时 panic
type panickingEvaluator struct {
	fixedEvaluator
	panicFor string
}

func (e panickingEvaluator) BuildContext(app *types.ApplicationRecord, sim *types.SimilarityResult, skills *types.ApplicationSkillAnalysis) string {
	if app.ApplicationID == e.panicFor {
		panic("nil map in judgment client")
	}
	return e.fixedEvaluator.BuildContext(app, sim, skills)
}

func TestProcessAllRecoversCandidatePanic(t *testing.T) {
	f := newFixture()
	f.eval = panickingEvaluator{
		fixedEvaluator: fixedEvaluator{outcome: types.EvaluationOutcome{
			Kind:       types.EvaluationOK,
			Evaluation: &types.QualitativeEvaluation{ATSScore: 80, Decision: types.DecisionPass},
		}},
		panicFor: "app-1",
	}
	p := f.build(t)

	summary, err := p.ProcessAll(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Results, 2)
	require.Len(t, summary.Failures, 1)

	failure := summary.Failures[0]
	assert.Equal(t, "app-1", failure.ApplicationID)
	assert.Equal(t, StateFailed, failure.Stage)
	assert.Contains(t, failure.Error, "nil map in judgment client")
	_, persisted := f.store.scores["app-1"]
	assert.False(t, persisted)

	_, err = p.ProcessApplication(context.Background(), "app-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCandidatePanic)
	assert.Equal(t, StateFailed, AsStageError(err).Stage)
}
