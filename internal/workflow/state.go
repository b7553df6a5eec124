package workflow

import (
	"smarthire-ats/internal/types"
)

// Request 启动一次招聘流程的输入
type Request struct {
	CompanyName     string `json:"company_name"`
	JobRole         string `json:"job_role"`
	Location        string `json:"location,omitempty"`
	ExperienceLevel string `json:"experience_level,omitempty"`
	EmploymentType  string `json:"employment_type,omitempty"`
}

// WorkflowState 贯穿招聘各阶段的状态，阶段只返回自己修改的字段
type WorkflowState struct {
	CompanyName     string `json:"company_name"`
	JobRole         string `json:"job_role"`
	Location        string `json:"location"`
	ExperienceLevel string `json:"experience_level"`
	EmploymentType  string `json:"employment_type"`

	JobDescription string `json:"job_description"`
	JobID          string `json:"job_id,omitempty"`
	Approved       bool   `json:"approved"`
	PostingResult  string `json:"posting_result"`

	Applications       []types.ApplicationRecord `json:"applications"`
	ApplicationCount   int                       `json:"application_count"`
	DaysMonitoring     int                       `json:"days_monitoring"`
	EnoughApplications bool                      `json:"enough_applications"`

	Shortlist          []types.ShortlistEntry     `json:"shortlist"`
	Interviews         []types.ScheduledInterview `json:"interviews"`
	InterviewResults   []types.InterviewResult    `json:"interview_results"`
	OfferCandidates    []types.InterviewResult    `json:"offer_candidates"`
	Offers             []types.Offer              `json:"offers"`
	OnboardedEmployees []types.OnboardingRecord   `json:"onboarded_employees"`

	Errors []string `json:"errors,omitempty"`
}

// NewState 由请求创建初始状态，缺省字段使用默认值
func NewState(req Request, defaultLocation string) *WorkflowState {
	st := &WorkflowState{
		CompanyName:     req.CompanyName,
		JobRole:         req.JobRole,
		Location:        req.Location,
		ExperienceLevel: req.ExperienceLevel,
		EmploymentType:  req.EmploymentType,
	}
	if st.Location == "" {
		st.Location = defaultLocation
	}
	if st.ExperienceLevel == "" {
		st.ExperienceLevel = DefaultExperienceLevel
	}
	if st.EmploymentType == "" {
		st.EmploymentType = DefaultEmploymentType
	}
	return st
}

// StateUpdate 阶段产生的部分更新，nil 字段表示不修改
type StateUpdate struct {
	JobDescription *string
	JobID          *string
	Approved       *bool
	PostingResult  *string

	Applications       *[]types.ApplicationRecord
	ApplicationCount   *int
	DaysMonitoring     *int
	EnoughApplications *bool

	Shortlist          *[]types.ShortlistEntry
	Interviews         *[]types.ScheduledInterview
	InterviewResults   *[]types.InterviewResult
	OfferCandidates    *[]types.InterviewResult
	Offers             *[]types.Offer
	OnboardedEmployees *[]types.OnboardingRecord
}

// Apply 合并部分更新，未设置的字段保持原值
func (s *WorkflowState) Apply(u StateUpdate) {
	if u.JobDescription != nil {
		s.JobDescription = *u.JobDescription
	}
	if u.JobID != nil {
		s.JobID = *u.JobID
	}
	if u.Approved != nil {
		s.Approved = *u.Approved
	}
	if u.PostingResult != nil {
		s.PostingResult = *u.PostingResult
	}
	if u.Applications != nil {
		s.Applications = *u.Applications
	}
	if u.ApplicationCount != nil {
		s.ApplicationCount = *u.ApplicationCount
	}
	if u.DaysMonitoring != nil {
		s.DaysMonitoring = *u.DaysMonitoring
	}
	if u.EnoughApplications != nil {
		s.EnoughApplications = *u.EnoughApplications
	}
	if u.Shortlist != nil {
		s.Shortlist = *u.Shortlist
	}
	if u.Interviews != nil {
		s.Interviews = *u.Interviews
	}
	if u.InterviewResults != nil {
		s.InterviewResults = *u.InterviewResults
	}
	if u.OfferCandidates != nil {
		s.OfferCandidates = *u.OfferCandidates
	}
	if u.Offers != nil {
		s.Offers = *u.Offers
	}
	if u.OnboardedEmployees != nil {
		s.OnboardedEmployees = *u.OnboardedEmployees
	}
}

func ptr[T any](v T) *T { return &v }
