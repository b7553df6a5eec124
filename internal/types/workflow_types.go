package types

import "time"

// 面试、录用与入职状态
const (
	InterviewStatusScheduled = "SCHEDULED"
	InterviewStatusCompleted = "COMPLETED"
	InterviewStatusFailed    = "FAILED"

	RecommendationProceedToOffer = "PROCEED_TO_OFFER"
	RecommendationRejected       = "REJECTED"

	OfferStatusOffered = "OFFERED"

	OnboardingStatusInProgress = "ONBOARDING_IN_PROGRESS"
)

// ShortlistEntry 入围候选人
type ShortlistEntry struct {
	ApplicationID  string   `json:"application_id"`
	JobID          string   `json:"job_id"`
	CandidateName  string   `json:"candidate_name"`
	CandidateEmail string   `json:"candidate_email,omitempty"`
	FinalScore     float64  `json:"final_score"`
	Explanations   []string `json:"explanations"`
}

// ScheduledInterview 已安排的面试
type ScheduledInterview struct {
	InterviewID    string    `json:"interview_id"`
	ApplicationID  string    `json:"application_id"`
	JobID          string    `json:"job_id,omitempty"`
	CandidateName  string    `json:"candidate_name"`
	CandidateEmail string    `json:"candidate_email,omitempty"`
	ScheduledAt    time.Time `json:"scheduled_at"`
	Time           string    `json:"time"` // 2006-01-02 15:04 UTC
	InterviewLink  string    `json:"interview_link"`
	ATSScore       float64   `json:"ats_score"`
}

// InterviewResult 面试评分结果
type InterviewResult struct {
	InterviewID         string  `json:"interview_id"`
	ApplicationID       string  `json:"application_id"`
	CandidateName       string  `json:"candidate_name"`
	CandidateEmail      string  `json:"candidate_email,omitempty"`
	Status              string  `json:"status"`
	Recommendation      string  `json:"recommendation"`
	FinalInterviewScore float64 `json:"final_interview_score"`
}

// Passed 是否进入录用阶段
func (r InterviewResult) Passed() bool {
	return r.Status == InterviewStatusCompleted && r.Recommendation == RecommendationProceedToOffer
}

// Offer 录用通知
type Offer struct {
	ApplicationID string    `json:"application_id"`
	CandidateName string    `json:"candidate_name"`
	Email         string    `json:"email"`
	Role          string    `json:"role"`
	Company       string    `json:"company"`
	Status        string    `json:"status"`
	Salary        string    `json:"salary"`
	OfferDate     time.Time `json:"offer_date"`
	StartDate     time.Time `json:"start_date"`
}

// OnboardingRecord 入职记录
type OnboardingRecord struct {
	ApplicationID string    `json:"application_id"`
	EmployeeName  string    `json:"employee_name"`
	Email         string    `json:"email"`
	Role          string    `json:"role"`
	Status        string    `json:"status"`
	HRSystemID    string    `json:"hr_system_id"`
	StartDate     time.Time `json:"start_date"`
}
