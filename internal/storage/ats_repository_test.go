package storage

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"smarthire-ats/internal/config"
	"smarthire-ats/internal/storage/models"
	"smarthire-ats/internal/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleScore(withEval bool) *types.CandidateScore {
	score := &types.CandidateScore{
		ApplicationID:  "app-1",
		JobID:          "job-1",
		CandidateName:  "Alice",
		CandidateEmail: "alice@example.com",
		JobTitle:       "Backend Engineer",
		Company:        "Acme",
		FinalATSScore:  78.4,
		ComponentScores: types.ComponentScores{
			SemanticSimilarity: 70, SkillMatch: 80, ExperienceMatch: 100, EducationMatch: 75, LLMScore: 50,
		},
		SemanticAnalysisSummary: types.SemanticSummary{OverallScore: 70, HighSimilarityCount: 2},
		SkillAnalysisSummary:    types.SkillSummary{MatchPercentage: 80, MatchingSkills: []string{"go"}, MissingSkills: []string{"rust"}},
		ComputedAt:              time.Date(2025, 5, 6, 7, 8, 9, 0, time.UTC),
	}
	if withEval {
		score.QualitativeEvaluation = &types.QualitativeEvaluation{ATSScore: 88, Decision: types.DecisionPass}
	}
	return score
}

func TestScoreModelConversion(t *testing.T) {
	for _, withEval := range []bool{true, false} {
		t.Run(strconv.FormatBool(withEval), func(t *testing.T) {
			in := sampleScore(withEval)
			row, err := ScoreToModel(in)
			require.NoError(t, err)
			if !withEval {
				assert.Nil(t, row.QualitativeEvaluation, "无评估时存储 NULL")
			}

			out, err := ScoreFromModel(row)
			require.NoError(t, err)
			assert.Equal(t, in, out)
		})
	}
}

func TestApplicationFromModel(t *testing.T) {
	applied := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m := &models.Application{
		ApplicationID: "app-1",
		JobID:         "job-1",
		CandidateName: "Alice",
		ResumeObject:  "resumes/app-1.pdf",
		AppliedAt:     applied,
	}
	rec := ApplicationFromModel(m)
	assert.Equal(t, "job-1", rec.Job.JobID)
	assert.Empty(t, rec.Job.Title)

	m.Job = &models.Job{JobID: "job-1", Title: "Data Engineer", Company: "Initech", Description: "python spark"}
	rec = ApplicationFromModel(m)
	assert.Equal(t, "Data Engineer", rec.Job.Title)
	assert.Equal(t, "python spark", rec.Job.Description)
	assert.Equal(t, applied, rec.AppliedAt)
}

func TestResumeObjectName(t *testing.T) {
	assert.Equal(t, "resumes/app-1.pdf", ResumeObjectName("app-1", "CV.PDF"))
	assert.Equal(t, "resumes/app-2.pdf", ResumeObjectName("app-2", "resume"))
	assert.Equal(t, "resumes/app-3.docx", ResumeObjectName("app-3", "cv.docx"))
}

// 需要真实 MySQL，设置 MYSQL_TEST_HOST 后运行
func TestATSRepositoryLive(t *testing.T) {
	host := os.Getenv("MYSQL_TEST_HOST")
	if host == "" {
		t.Skip("MYSQL_TEST_HOST 未设置，跳过 MySQL 集成测试")
	}
	db, err := NewMySQL(&config.MySQLConfig{
		Host:                  host,
		Port:                  3306,
		Username:              os.Getenv("MYSQL_TEST_USER"),
		Password:              os.Getenv("MYSQL_TEST_PASSWORD"),
		Database:              os.Getenv("MYSQL_TEST_DATABASE"),
		MaxIdleConns:          2,
		MaxOpenConns:          4,
		ConnectTimeoutSeconds: 5,
		ReadTimeoutSeconds:    5,
		WriteTimeoutSeconds:   5,
		LogLevel:              1,
	})
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	repo := NewATSRepository(db.DB(), nil, nil, EventRouting{Exchange: "ats.events"})

	job := &types.JobPosting{Title: "Go Developer", Company: "Acme", Description: "go kubernetes"}
	require.NoError(t, repo.CreateJob(ctx, job, "MID", "FULL_TIME"))
	require.NotEmpty(t, job.JobID)

	appID := uuid.NewString()
	require.NoError(t, db.DB().Create(&models.Application{
		ApplicationID: appID,
		JobID:         job.JobID,
		CandidateName: "Alice",
		ResumeObject:  ResumeObjectName(appID, "cv.pdf"),
	}).Error)

	got, err := repo.GetApplication(ctx, appID)
	require.NoError(t, err)
	assert.Equal(t, "Go Developer", got.Job.Title)

	_, err = repo.GetApplication(ctx, uuid.NewString())
	assert.ErrorIs(t, err, types.ErrRetrieval)

	score := sampleScore(true)
	score.ApplicationID = appID
	score.JobID = job.JobID
	require.NoError(t, repo.UpsertCandidateScore(ctx, score))
	score.FinalATSScore = 91
	require.NoError(t, repo.UpsertCandidateScore(ctx, score), "重复写入应覆盖")

	stored, err := repo.GetCandidateScore(ctx, appID)
	require.NoError(t, err)
	assert.Equal(t, 91.0, stored.FinalATSScore)

	var outbox int64
	require.NoError(t, db.DB().Model(&models.OutboxMessage{}).Where("aggregate_id = ?", appID).Count(&outbox).Error)
	assert.EqualValues(t, 2, outbox)

	jobs, err := repo.ListActiveJobs(ctx)
	require.NoError(t, err)
	for _, j := range jobs {
		if j.JobID == job.JobID {
			assert.EqualValues(t, 1, j.ApplicationCount)
		}
	}
}
