package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"smarthire-ats/internal/constants"
	"smarthire-ats/internal/logger"
	"smarthire-ats/internal/storage/models"
	"smarthire-ats/internal/types"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrRecordNotFound 记录不存在
var ErrRecordNotFound = gorm.ErrRecordNotFound

// ResumeObjects 简历原文件的对象存储，由 MinIO 实现
type ResumeObjects interface {
	// PutResume 上传简历原文件，返回对象名
	PutResume(ctx context.Context, applicationID, filename string, reader io.Reader, size int64) (string, error)

	// GetResume 下载简历原文件
	GetResume(ctx context.Context, objectName string) ([]byte, error)

	// GetPresignedURL 获取预签名下载URL
	GetPresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error)
}

// ErrNoObjectStorage 未配置对象存储
var ErrNoObjectStorage = errors.New("未配置对象存储")

// VectorIndex 简历分块向量索引，由 Qdrant 实现
type VectorIndex interface {
	UpsertApplicationChunks(ctx context.Context, app *types.ApplicationRecord, chunks []types.EmbeddedChunk) error
}

// EventRouting outbox 事件的目标交换机与路由键，Exchange 为空时不写 outbox
type EventRouting struct {
	Exchange            string
	ScoredRoutingKey    string
	JobPostedRoutingKey string
}

// ATSRepository 基于 MySQL 的申请检索与评分结果存储
type ATSRepository struct {
	db      *gorm.DB
	objects ResumeObjects
	vectors VectorIndex
	routing EventRouting
	now     func() time.Time
	logger  zerolog.Logger
}

// NewATSRepository 创建仓储，objects 与 vectors 可以为 nil
func NewATSRepository(db *gorm.DB, objects ResumeObjects, vectors VectorIndex, routing EventRouting) *ATSRepository {
	return &ATSRepository{
		db:      db,
		objects: objects,
		vectors: vectors,
		routing: routing,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger.Component("ats-repository"),
	}
}

// GetApplication 按ID查询申请（含岗位信息）
func (r *ATSRepository) GetApplication(ctx context.Context, applicationID string) (*types.ApplicationRecord, error) {
	var m models.Application
	err := r.db.WithContext(ctx).Preload("Job").First(&m, "application_id = ?", applicationID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: 申请 %s 不存在: %w", types.ErrRetrieval, applicationID, err)
	}
	if err != nil {
		return nil, fmt.Errorf("查询申请 %s 失败: %w", applicationID, err)
	}
	record := ApplicationFromModel(&m)
	return &record, nil
}

// ListApplications 查询全部有简历的申请，按申请时间升序
func (r *ATSRepository) ListApplications(ctx context.Context) ([]types.ApplicationRecord, error) {
	return r.listApplications(ctx, r.db.WithContext(ctx))
}

// ListApplicationsByJob 查询某岗位下有简历的申请，按申请时间升序
func (r *ATSRepository) ListApplicationsByJob(ctx context.Context, jobID string) ([]types.ApplicationRecord, error) {
	return r.listApplications(ctx, r.db.WithContext(ctx).Where("job_id = ?", jobID))
}

func (r *ATSRepository) listApplications(ctx context.Context, q *gorm.DB) ([]types.ApplicationRecord, error) {
	var rows []models.Application
	err := q.Preload("Job").
		Where("resume_object <> ''").
		Order("applied_at asc").
		Order("application_id asc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查询申请列表失败: %w", err)
	}
	records := make([]types.ApplicationRecord, 0, len(rows))
	for i := range rows {
		records = append(records, ApplicationFromModel(&rows[i]))
	}
	return records, nil
}

// FetchResume 从对象存储下载简历原文件
func (r *ATSRepository) FetchResume(ctx context.Context, app *types.ApplicationRecord) ([]byte, error) {
	if r.objects == nil {
		return nil, ErrNoObjectStorage
	}
	if app.ResumeObject == "" {
		return nil, fmt.Errorf("申请 %s 没有简历文件", app.ApplicationID)
	}
	return r.objects.GetResume(ctx, app.ResumeObject)
}

// AttachResume 上传简历原文件并回写申请的 resume_object，申请不存在时不上传
func (r *ATSRepository) AttachResume(ctx context.Context, applicationID, filename string, reader io.Reader, size int64) (string, error) {
	if r.objects == nil {
		return "", ErrNoObjectStorage
	}
	var m models.Application
	if err := r.db.WithContext(ctx).Select("application_id").First(&m, "application_id = ?", applicationID).Error; err != nil {
		return "", fmt.Errorf("查询申请 %s 失败: %w", applicationID, err)
	}

	objectName, err := r.objects.PutResume(ctx, applicationID, filename, reader, size)
	if err != nil {
		return "", err
	}
	err = r.db.WithContext(ctx).Model(&models.Application{}).
		Where("application_id = ?", applicationID).
		Updates(map[string]interface{}{"resume_object": objectName, "resume_filename": filepath.Base(filename)}).Error
	if err != nil {
		return "", fmt.Errorf("更新申请 %s 简历信息失败: %w", applicationID, err)
	}
	r.logger.Info().Str("application_id", applicationID).Str("object", objectName).Msg("简历已上传")
	return objectName, nil
}

// ResumeURL 生成申请简历的预签名下载链接
func (r *ATSRepository) ResumeURL(ctx context.Context, applicationID string, expiry time.Duration) (string, error) {
	if r.objects == nil {
		return "", ErrNoObjectStorage
	}
	var m models.Application
	if err := r.db.WithContext(ctx).Select("application_id", "resume_object").First(&m, "application_id = ?", applicationID).Error; err != nil {
		return "", fmt.Errorf("查询申请 %s 失败: %w", applicationID, err)
	}
	if m.ResumeObject == "" {
		return "", fmt.Errorf("申请 %s 没有简历文件: %w", applicationID, gorm.ErrRecordNotFound)
	}
	return r.objects.GetPresignedURL(ctx, m.ResumeObject, expiry)
}

// ListActiveJobs 查询已发布岗位及其申请数量，按创建时间倒序
func (r *ATSRepository) ListActiveJobs(ctx context.Context) ([]types.ActiveJob, error) {
	var jobs []models.Job
	if err := r.db.WithContext(ctx).
		Where("status = ?", constants.JobStatusPublished).
		Order("created_at desc").
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("查询岗位失败: %w", err)
	}
	if len(jobs) == 0 {
		return []types.ActiveJob{}, nil
	}

	ids := make([]string, 0, len(jobs))
	for _, j := range jobs {
		ids = append(ids, j.JobID)
	}
	var counts []struct {
		JobID string
		Total int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.Application{}).
		Select("job_id, COUNT(*) AS total").
		Where("job_id IN ?", ids).
		Group("job_id").
		Scan(&counts).Error; err != nil {
		return nil, fmt.Errorf("统计岗位申请数量失败: %w", err)
	}
	byJob := make(map[string]int64, len(counts))
	for _, c := range counts {
		byJob[c.JobID] = c.Total
	}

	active := make([]types.ActiveJob, 0, len(jobs))
	for i := range jobs {
		active = append(active, types.ActiveJob{
			JobPosting:       JobFromModel(&jobs[i]),
			ApplicationCount: byJob[jobs[i].JobID],
		})
	}
	return active, nil
}

// GetJob 按ID查询岗位
func (r *ATSRepository) GetJob(ctx context.Context, jobID string) (*types.JobPosting, error) {
	var m models.Job
	if err := r.db.WithContext(ctx).First(&m, "job_id = ?", jobID).Error; err != nil {
		return nil, fmt.Errorf("查询岗位 %s 失败: %w", jobID, err)
	}
	job := JobFromModel(&m)
	return &job, nil
}

// UpsertResumeEmbeddings 写入简历分块向量，未配置向量库时跳过
func (r *ATSRepository) UpsertResumeEmbeddings(ctx context.Context, app *types.ApplicationRecord, chunks []types.EmbeddedChunk) error {
	if r.vectors == nil {
		r.logger.Debug().Str("application_id", app.ApplicationID).Msg("未配置向量库，跳过简历向量写入")
		return nil
	}
	return r.vectors.UpsertApplicationChunks(ctx, app, chunks)
}

// UpsertSkillAnalysis 按申请ID覆盖写入技能分析
func (r *ATSRepository) UpsertSkillAnalysis(ctx context.Context, applicationID string, analysis *types.ApplicationSkillAnalysis) error {
	raw, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("序列化技能分析失败: %w", err)
	}
	row := models.SkillAnalysis{
		ApplicationID:   applicationID,
		MatchPercentage: analysis.SkillComparison.MatchPercentage,
		ExperienceMatch: analysis.ExperienceMatch,
		Analysis:        raw,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
}

// scoredEvent candidate.scored 事件内容
type scoredEvent struct {
	ApplicationID string    `json:"application_id"`
	JobID         string    `json:"job_id"`
	CandidateName string    `json:"candidate_name"`
	FinalATSScore float64   `json:"final_ats_score"`
	Decision      string    `json:"decision,omitempty"`
	ComputedAt    time.Time `json:"computed_at"`
}

// UpsertCandidateScore 覆盖写入最终评分，同一事务内更新申请状态并写入 candidate.scored 事件
func (r *ATSRepository) UpsertCandidateScore(ctx context.Context, score *types.CandidateScore) error {
	row, err := ScoreToModel(score)
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error; err != nil {
			return fmt.Errorf("写入评分失败: %w", err)
		}
		if err := tx.Model(&models.Application{}).
			Where("application_id = ?", score.ApplicationID).
			Update("status", constants.ApplicationStatusScored).Error; err != nil {
			return fmt.Errorf("更新申请状态失败: %w", err)
		}

		event := scoredEvent{
			ApplicationID: score.ApplicationID,
			JobID:         score.JobID,
			CandidateName: score.CandidateName,
			FinalATSScore: score.FinalATSScore,
			ComputedAt:    score.ComputedAt,
		}
		if score.QualitativeEvaluation != nil {
			event.Decision = score.QualitativeEvaluation.Decision
		}
		return r.enqueue(tx, score.ApplicationID, constants.EventCandidateScored, r.routing.ScoredRoutingKey, event)
	})
}

// GetCandidateScore 查询已持久化的评分
func (r *ATSRepository) GetCandidateScore(ctx context.Context, applicationID string) (*types.CandidateScore, error) {
	var row models.CandidateScore
	if err := r.db.WithContext(ctx).First(&row, "application_id = ?", applicationID).Error; err != nil {
		return nil, fmt.Errorf("查询评分 %s 失败: %w", applicationID, err)
	}
	return ScoreFromModel(&row)
}

// CreateJob 发布岗位并写入 job.posted 事件，JobID 为空时自动生成
func (r *ATSRepository) CreateJob(ctx context.Context, job *types.JobPosting, experienceLevel, employmentType string) error {
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	job.Status = constants.JobStatusPublished
	row := models.Job{
		JobID:           job.JobID,
		Title:           job.Title,
		Company:         job.Company,
		Location:        job.Location,
		ExperienceLevel: experienceLevel,
		EmploymentType:  employmentType,
		Description:     job.Description,
		Status:          job.Status,
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("写入岗位失败: %w", err)
		}
		return r.enqueue(tx, job.JobID, constants.EventJobPosted, r.routing.JobPostedRoutingKey, job)
	})
}

// SaveInterviews 写入面试安排
func (r *ATSRepository) SaveInterviews(ctx context.Context, interviews []types.ScheduledInterview) error {
	if len(interviews) == 0 {
		return nil
	}
	rows := make([]models.Interview, 0, len(interviews))
	for _, iv := range interviews {
		rows = append(rows, models.Interview{
			InterviewID:    iv.InterviewID,
			ApplicationID:  iv.ApplicationID,
			JobID:          iv.JobID,
			CandidateName:  iv.CandidateName,
			CandidateEmail: iv.CandidateEmail,
			ScheduledAt:    iv.ScheduledAt,
			InterviewLink:  iv.InterviewLink,
			ATSScore:       iv.ATSScore,
			Status:         types.InterviewStatusScheduled,
		})
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&rows).Error
}

// SaveInterviewResults 更新面试结果
func (r *ATSRepository) SaveInterviewResults(ctx context.Context, results []types.InterviewResult) error {
	if len(results) == 0 {
		return nil
	}
	completedAt := r.now()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, res := range results {
			score := res.FinalInterviewScore
			err := tx.Model(&models.Interview{}).
				Where("interview_id = ?", res.InterviewID).
				Updates(map[string]interface{}{
					"status":          res.Status,
					"interview_score": &score,
					"recommendation":  res.Recommendation,
					"completed_at":    &completedAt,
				}).Error
			if err != nil {
				return fmt.Errorf("更新面试 %s 结果失败: %w", res.InterviewID, err)
			}
		}
		return nil
	})
}

// SaveOffers 写入录用通知
func (r *ATSRepository) SaveOffers(ctx context.Context, jobID string, offers []types.Offer) error {
	if len(offers) == 0 {
		return nil
	}
	rows := make([]models.Offer, 0, len(offers))
	for _, o := range offers {
		rows = append(rows, models.Offer{
			ApplicationID:  o.ApplicationID,
			JobID:          jobID,
			CandidateName:  o.CandidateName,
			CandidateEmail: o.Email,
			JobTitle:       o.Role,
			Salary:         o.Salary,
			Status:         o.Status,
			OfferedAt:      o.OfferDate,
		})
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&rows).Error
}

// SaveOnboarding 写入入职记录
func (r *ATSRepository) SaveOnboarding(ctx context.Context, records []types.OnboardingRecord) error {
	if len(records) == 0 {
		return nil
	}
	onboardedAt := r.now()
	rows := make([]models.Onboarding, 0, len(records))
	for _, rec := range records {
		rows = append(rows, models.Onboarding{
			ApplicationID: rec.ApplicationID,
			HRSystemID:    rec.HRSystemID,
			EmployeeName:  rec.EmployeeName,
			EmployeeEmail: rec.Email,
			JobTitle:      rec.Role,
			Status:        rec.Status,
			StartDate:     rec.StartDate,
			OnboardedAt:   onboardedAt,
		})
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&rows).Error
}

// enqueue 在当前事务内写入一条 outbox 消息
func (r *ATSRepository) enqueue(tx *gorm.DB, aggregateID, eventType, routingKey string, payload interface{}) error {
	if r.routing.Exchange == "" {
		return nil
	}
	if routingKey == "" {
		routingKey = eventType
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化 %s 事件失败: %w", eventType, err)
	}
	msg := models.OutboxMessage{
		AggregateID:      aggregateID,
		EventType:        eventType,
		Payload:          datatypes.JSON(raw),
		TargetExchange:   r.routing.Exchange,
		TargetRoutingKey: routingKey,
		Status:           constants.OutboxStatusPending,
	}
	if err := tx.Create(&msg).Error; err != nil {
		return fmt.Errorf("写入 outbox 消息失败: %w", err)
	}
	return nil
}

// JobFromModel 转换岗位模型
func JobFromModel(m *models.Job) types.JobPosting {
	return types.JobPosting{
		JobID:       m.JobID,
		Title:       m.Title,
		Company:     m.Company,
		Description: m.Description,
		Location:    m.Location,
		Status:      m.Status,
	}
}

// ApplicationFromModel 转换申请模型，未加载岗位时 Job 只有 JobID
func ApplicationFromModel(m *models.Application) types.ApplicationRecord {
	record := types.ApplicationRecord{
		ApplicationID:  m.ApplicationID,
		JobID:          m.JobID,
		CandidateName:  m.CandidateName,
		CandidateEmail: m.CandidateEmail,
		Phone:          m.Phone,
		ResumeFilename: m.ResumeFilename,
		ResumeObject:   m.ResumeObject,
		Status:         m.Status,
		AppliedAt:      m.AppliedAt,
		Job:            types.JobPosting{JobID: m.JobID},
	}
	if m.Job != nil {
		record.Job = JobFromModel(m.Job)
	}
	return record
}

// ScoreToModel 将评分转换为数据库行
func ScoreToModel(score *types.CandidateScore) (*models.CandidateScore, error) {
	components, err := models.ToJSON(score.ComponentScores)
	if err != nil {
		return nil, fmt.Errorf("序列化分项得分失败: %w", err)
	}
	semantic, err := models.ToJSON(score.SemanticAnalysisSummary)
	if err != nil {
		return nil, fmt.Errorf("序列化语义摘要失败: %w", err)
	}
	skills, err := models.ToJSON(score.SkillAnalysisSummary)
	if err != nil {
		return nil, fmt.Errorf("序列化技能摘要失败: %w", err)
	}
	row := &models.CandidateScore{
		ApplicationID:           score.ApplicationID,
		JobID:                   score.JobID,
		CandidateName:           score.CandidateName,
		CandidateEmail:          score.CandidateEmail,
		JobTitle:                score.JobTitle,
		Company:                 score.Company,
		FinalATSScore:           score.FinalATSScore,
		ComponentScores:         components,
		SemanticAnalysisSummary: semantic,
		SkillAnalysisSummary:    skills,
		ComputedAt:              score.ComputedAt,
	}
	if score.QualitativeEvaluation != nil {
		row.QualitativeEvaluation, err = models.ToJSON(score.QualitativeEvaluation)
		if err != nil {
			return nil, fmt.Errorf("序列化定性评估失败: %w", err)
		}
	}
	return row, nil
}

// ScoreFromModel 将数据库行还原为评分
func ScoreFromModel(row *models.CandidateScore) (*types.CandidateScore, error) {
	score := &types.CandidateScore{
		ApplicationID:  row.ApplicationID,
		JobID:          row.JobID,
		CandidateName:  row.CandidateName,
		CandidateEmail: row.CandidateEmail,
		JobTitle:       row.JobTitle,
		Company:        row.Company,
		FinalATSScore:  row.FinalATSScore,
		ComputedAt:     row.ComputedAt,
	}
	if err := unmarshalJSON(row.ComponentScores, &score.ComponentScores); err != nil {
		return nil, fmt.Errorf("解析分项得分失败: %w", err)
	}
	if err := unmarshalJSON(row.SemanticAnalysisSummary, &score.SemanticAnalysisSummary); err != nil {
		return nil, fmt.Errorf("解析语义摘要失败: %w", err)
	}
	if err := unmarshalJSON(row.SkillAnalysisSummary, &score.SkillAnalysisSummary); err != nil {
		return nil, fmt.Errorf("解析技能摘要失败: %w", err)
	}
	if len(row.QualitativeEvaluation) > 0 && string(row.QualitativeEvaluation) != "null" {
		score.QualitativeEvaluation = &types.QualitativeEvaluation{}
		if err := json.Unmarshal(row.QualitativeEvaluation, score.QualitativeEvaluation); err != nil {
			return nil, fmt.Errorf("解析定性评估失败: %w", err)
		}
	}
	return score, nil
}

func unmarshalJSON(raw []byte, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}
