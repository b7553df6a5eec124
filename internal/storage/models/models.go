package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Job 岗位信息表
type Job struct {
	JobID           string    `gorm:"type:char(36);primaryKey"`
	Title           string    `gorm:"type:varchar(255);not null"`
	Company         string    `gorm:"type:varchar(255)"`
	Location        string    `gorm:"type:varchar(255)"`
	ExperienceLevel string    `gorm:"type:varchar(100)"`
	EmploymentType  string    `gorm:"type:varchar(100)"`
	Description     string    `gorm:"type:text;not null"`
	Status          string    `gorm:"type:varchar(50);default:'DRAFT';index:idx_jobs_status"`
	CreatedAt       time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt       time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (Job) TableName() string {
	return "jobs"
}

// Application 候选人申请表，ResumeObject 指向 MinIO 中的简历原文件
type Application struct {
	ApplicationID  string    `gorm:"type:char(36);primaryKey"`
	JobID          string    `gorm:"type:char(36);not null;index:idx_applications_job_applied,priority:1"`
	CandidateName  string    `gorm:"type:varchar(255)"`
	CandidateEmail string    `gorm:"type:varchar(255)"`
	Phone          string    `gorm:"type:varchar(50)"`
	ResumeFilename string    `gorm:"type:varchar(255)"`
	ResumeObject   string    `gorm:"type:varchar(1024)"`
	Status         string    `gorm:"type:varchar(50);default:'APPLIED';index:idx_applications_status"`
	AppliedAt      time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);index:idx_applications_job_applied,priority:2"`
	UpdatedAt      time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`

	Job *Job `gorm:"foreignKey:JobID;references:JobID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (Application) TableName() string {
	return "applications"
}

// CandidateScore 最终评分表，每个申请一行
type CandidateScore struct {
	ApplicationID           string         `gorm:"type:char(36);primaryKey"`
	JobID                   string         `gorm:"type:char(36);not null;index:idx_scores_job_final,priority:1"`
	CandidateName           string         `gorm:"type:varchar(255)"`
	CandidateEmail          string         `gorm:"type:varchar(255)"`
	JobTitle                string         `gorm:"type:varchar(255)"`
	Company                 string         `gorm:"type:varchar(255)"`
	FinalATSScore           float64        `gorm:"type:double;index:idx_scores_job_final,priority:2"`
	ComponentScores         datatypes.JSON `gorm:"type:json"`
	SemanticAnalysisSummary datatypes.JSON `gorm:"type:json"`
	SkillAnalysisSummary    datatypes.JSON `gorm:"type:json"`
	QualitativeEvaluation   datatypes.JSON `gorm:"type:json"`
	ComputedAt              time.Time      `gorm:"type:datetime(6)"`
	UpdatedAt               time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (CandidateScore) TableName() string {
	return "candidate_scores"
}

// SkillAnalysis 技能分析结果表
type SkillAnalysis struct {
	ApplicationID   string         `gorm:"type:char(36);primaryKey"`
	MatchPercentage float64        `gorm:"type:double"`
	ExperienceMatch bool           `gorm:"default:false"`
	Analysis        datatypes.JSON `gorm:"type:json"`
	UpdatedAt       time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (SkillAnalysis) TableName() string {
	return "skill_analyses"
}

// Interview 面试安排与结果
type Interview struct {
	InterviewID    string     `gorm:"type:varchar(64);primaryKey"`
	ApplicationID  string     `gorm:"type:char(36);index:idx_interviews_application"`
	JobID          string     `gorm:"type:char(36);index:idx_interviews_job"`
	CandidateName  string     `gorm:"type:varchar(255)"`
	CandidateEmail string     `gorm:"type:varchar(255)"`
	ScheduledAt    time.Time  `gorm:"type:datetime(6)"`
	InterviewLink  string     `gorm:"type:varchar(1024)"`
	ATSScore       float64    `gorm:"type:double"`
	Status         string     `gorm:"type:varchar(50);default:'SCHEDULED'"`
	InterviewScore *float64   `gorm:"type:double"`
	Recommendation string     `gorm:"type:varchar(50)"`
	CompletedAt    *time.Time `gorm:"type:datetime(6)"`
	CreatedAt      time.Time  `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt      time.Time  `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (Interview) TableName() string {
	return "interviews"
}

// Offer 录用通知
type Offer struct {
	ApplicationID  string    `gorm:"type:char(36);primaryKey"`
	JobID          string    `gorm:"type:char(36);index:idx_offers_job"`
	CandidateName  string    `gorm:"type:varchar(255)"`
	CandidateEmail string    `gorm:"type:varchar(255)"`
	JobTitle       string    `gorm:"type:varchar(255)"`
	Salary         string    `gorm:"type:varchar(100)"`
	Status         string    `gorm:"type:varchar(50)"`
	OfferedAt      time.Time `gorm:"type:datetime(6)"`
	CreatedAt      time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
}

func (Offer) TableName() string {
	return "offers"
}

// Onboarding 入职记录
type Onboarding struct {
	ApplicationID  string    `gorm:"type:char(36);primaryKey"`
	HRSystemID     string    `gorm:"type:varchar(20)"`
	EmployeeName   string    `gorm:"type:varchar(255)"`
	EmployeeEmail  string    `gorm:"type:varchar(255)"`
	JobTitle       string    `gorm:"type:varchar(255)"`
	Status         string    `gorm:"type:varchar(50)"`
	StartDate      time.Time `gorm:"type:datetime(6)"`
	OnboardedAt    time.Time `gorm:"type:datetime(6)"`
	CreatedAt      time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
}

func (Onboarding) TableName() string {
	return "onboardings"
}

// ToJSON 将任意值序列化为 datatypes.JSON，nil 返回 NULL
func ToJSON(v interface{}) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	bytes, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bytes, nil
}
