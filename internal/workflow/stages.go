package workflow

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"smarthire-ats/internal/types"
)

const (
	// RejectedPostingResult 未通过审批时的发布结果
	RejectedPostingResult = "JD rejected, not posted."
	// DefaultOfferEmail 候选人没有邮箱时使用的占位地址
	DefaultOfferEmail = "mock_email@example.com"

	interviewTimeLayout = "2006-01-02 15:04 UTC"
	onboardingLeadTime  = 30 * 24 * time.Hour

	passInterviewScore = 95
	failInterviewScore = 40
)

// GenerateJD 生成岗位描述。生成失败时写入失败说明并返回错误
func (w *Workflow) GenerateJD(ctx context.Context, st *WorkflowState) (StateUpdate, error) {
	jd, err := w.jd.Generate(ctx, JDRequest{
		CompanyName:     st.CompanyName,
		JobRole:         st.JobRole,
		Location:        st.Location,
		ExperienceLevel: st.ExperienceLevel,
		EmploymentType:  st.EmploymentType,
	})
	if err != nil {
		return StateUpdate{JobDescription: ptr(FailedJD(st.JobRole, err))}, err
	}
	return StateUpdate{JobDescription: &jd}, nil
}

// Approve 岗位名称包含任一审批关键字时通过
func (w *Workflow) Approve(_ context.Context, st *WorkflowState) (StateUpdate, error) {
	return StateUpdate{Approved: ptr(IsApproved(st.JobRole, w.cfg.ApprovalKeywords))}, nil
}

// IsApproved 不区分大小写的子串匹配
func IsApproved(role string, keywords []string) bool {
	lower := strings.ToLower(role)
	for _, k := range keywords {
		if k != "" && strings.Contains(lower, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

// Post 发布已审批的岗位，写入岗位并投递 job.posted 事件
func (w *Workflow) Post(ctx context.Context, st *WorkflowState) (StateUpdate, error) {
	if !st.Approved {
		return StateUpdate{PostingResult: ptr(RejectedPostingResult)}, nil
	}

	job := &types.JobPosting{
		Title:       st.JobRole,
		Company:     st.CompanyName,
		Description: st.JobDescription,
		Location:    st.Location,
	}
	if err := w.jobs.CreateJob(ctx, job, st.ExperienceLevel, st.EmploymentType); err != nil {
		return StateUpdate{PostingResult: ptr(fmt.Sprintf("Post failed: %v", err))}, fmt.Errorf("保存岗位失败: %w", err)
	}

	w.logger.Info().Str("job_id", job.JobID).Str("role", job.Title).Msg("岗位已发布")
	return StateUpdate{
		JobID:         ptr(job.JobID),
		PostingResult: ptr(fmt.Sprintf("Posted successfully. Job ID: %s", job.JobID)),
	}, nil
}

// MonitorApplications 收集已投递的申请。有岗位ID时只查询该岗位；JD 未通过审批时查询全部；
// 已审批但发布失败时没有可监控的申请
func (w *Workflow) MonitorApplications(ctx context.Context, st *WorkflowState) (StateUpdate, error) {
	var (
		apps []types.ApplicationRecord
		err  error
	)
	switch {
	case st.JobID != "":
		apps, err = w.jobs.ListApplicationsByJob(ctx, st.JobID)
	case !st.Approved:
		apps, err = w.jobs.ListApplications(ctx)
	default:
		w.logger.Warn().Str("role", st.JobRole).Msg("岗位未发布，跳过申请监控")
	}
	if err != nil {
		return StateUpdate{}, fmt.Errorf("查询申请失败: %w", err)
	}
	if apps == nil {
		apps = []types.ApplicationRecord{}
	}

	return StateUpdate{
		Applications:       &apps,
		ApplicationCount:   ptr(len(apps)),
		DaysMonitoring:     ptr(1),
		EnoughApplications: ptr(len(apps) >= w.cfg.MinApplications),
	}, nil
}

// Shortlist 对所有申请评分并保留前 N 名。单个候选人失败不影响其他人
func (w *Workflow) Shortlist(ctx context.Context, st *WorkflowState) (StateUpdate, error) {
	if len(st.Applications) == 0 {
		return StateUpdate{Shortlist: ptr([]types.ShortlistEntry{})}, nil
	}

	summary := w.scorer.ProcessApplications(ctx, st.Applications)
	for _, f := range summary.Failures {
		w.logger.Warn().
			Str("application_id", f.ApplicationID).
			Str("stage", string(f.Stage)).
			Str("error", f.Error).
			Msg("候选人评分失败，未进入候选名单")
	}

	shortlist := BuildShortlist(summary.Results, w.cfg.ShortlistSize)
	return StateUpdate{Shortlist: &shortlist}, nil
}

// BuildShortlist 取已排序结果的前 size 名并附上说明
func BuildShortlist(ranked []types.CandidateScore, size int) []types.ShortlistEntry {
	if size > len(ranked) {
		size = len(ranked)
	}
	out := make([]types.ShortlistEntry, 0, size)
	for _, s := range ranked[:size] {
		out = append(out, types.ShortlistEntry{
			ApplicationID:  s.ApplicationID,
			JobID:          s.JobID,
			CandidateName:  s.CandidateName,
			CandidateEmail: s.CandidateEmail,
			FinalScore:     s.FinalATSScore,
			Explanations:   explain(s),
		})
	}
	return out
}

func explain(s types.CandidateScore) []string {
	decision, interview := "N/A", "N/A"
	if ev := s.QualitativeEvaluation; ev != nil {
		if ev.Decision != "" {
			decision = ev.Decision
		}
		if ev.InterviewRecommendation != "" {
			interview = ev.InterviewRecommendation
		}
	}
	return []string{
		fmt.Sprintf("Skill Match: %.1f%%", s.SkillAnalysisSummary.MatchPercentage),
		"Decision: " + decision,
		"Interview: " + interview,
	}
}

// ScheduleInterviews 从明天起按小时为入围者安排面试。保存失败时不保留面试安排，后续阶段不会为其打分
func (w *Workflow) ScheduleInterviews(ctx context.Context, st *WorkflowState) (StateUpdate, error) {
	interviews := w.BuildInterviews(st.Shortlist)
	if len(interviews) == 0 {
		return StateUpdate{Interviews: &interviews}, nil
	}
	if err := w.jobs.SaveInterviews(ctx, interviews); err != nil {
		return StateUpdate{Interviews: ptr([]types.ScheduledInterview{})}, fmt.Errorf("保存面试安排失败: %w", err)
	}
	return StateUpdate{Interviews: &interviews}, nil
}

// BuildInterviews 生成面试时间、ID 与链接
func (w *Workflow) BuildInterviews(shortlist []types.ShortlistEntry) []types.ScheduledInterview {
	start := w.now().UTC().Add(24 * time.Hour)
	base := strings.TrimRight(w.cfg.InterviewBaseURL, "/")

	out := make([]types.ScheduledInterview, 0, len(shortlist))
	for i, c := range shortlist {
		slot := start.Add(time.Duration(i) * time.Hour)
		id := fmt.Sprintf("int_%d_%d", slot.Unix(), i)
		out = append(out, types.ScheduledInterview{
			InterviewID:    id,
			ApplicationID:  c.ApplicationID,
			JobID:          c.JobID,
			CandidateName:  c.CandidateName,
			CandidateEmail: c.CandidateEmail,
			ScheduledAt:    slot,
			Time:           slot.Format(interviewTimeLayout),
			InterviewLink:  base + "/ws/interview/" + id,
			ATSScore:       c.FinalScore,
		})
	}
	return out
}

// ScoreInterviews 按 ATS 分数判定面试结果，通过者进入录用候选
func (w *Workflow) ScoreInterviews(ctx context.Context, st *WorkflowState) (StateUpdate, error) {
	results, passed := ScoreInterviewResults(st.Interviews, w.cfg.PassThreshold)
	update := StateUpdate{InterviewResults: &results, OfferCandidates: &passed}
	if len(results) == 0 {
		return update, nil
	}
	if err := w.jobs.SaveInterviewResults(ctx, results); err != nil {
		return StateUpdate{
			InterviewResults: ptr([]types.InterviewResult{}),
			OfferCandidates:  ptr([]types.InterviewResult{}),
		}, fmt.Errorf("保存面试结果失败: %w", err)
	}
	return update, nil
}

// ScoreInterviewResults 分数不低于 threshold 为通过
func ScoreInterviewResults(interviews []types.ScheduledInterview, threshold float64) (results, passed []types.InterviewResult) {
	results = make([]types.InterviewResult, 0, len(interviews))
	passed = []types.InterviewResult{}
	for _, iv := range interviews {
		if iv.InterviewID == "" {
			continue
		}
		r := types.InterviewResult{
			InterviewID:         iv.InterviewID,
			ApplicationID:       iv.ApplicationID,
			CandidateName:       iv.CandidateName,
			CandidateEmail:      iv.CandidateEmail,
			Status:              types.InterviewStatusFailed,
			Recommendation:      types.RecommendationRejected,
			FinalInterviewScore: failInterviewScore,
		}
		if iv.ATSScore >= threshold {
			r.Status = types.InterviewStatusCompleted
			r.Recommendation = types.RecommendationProceedToOffer
			r.FinalInterviewScore = passInterviewScore
		}
		results = append(results, r)
		if r.Passed() {
			passed = append(passed, r)
		}
	}
	return results, passed
}

// ExtendOffers 向通过面试的候选人发出录用通知。保存失败时视为未发出
func (w *Workflow) ExtendOffers(ctx context.Context, st *WorkflowState) (StateUpdate, error) {
	now := w.now().UTC()
	offers := make([]types.Offer, 0, len(st.OfferCandidates))
	for _, c := range st.OfferCandidates {
		email := c.CandidateEmail
		if email == "" {
			email = DefaultOfferEmail
		}
		offers = append(offers, types.Offer{
			ApplicationID: c.ApplicationID,
			CandidateName: c.CandidateName,
			Email:         email,
			Role:          st.JobRole,
			Company:       st.CompanyName,
			Status:        types.OfferStatusOffered,
			Salary:        w.cfg.OfferSalary,
			OfferDate:     now,
			StartDate:     now.Add(onboardingLeadTime),
		})
	}
	if len(offers) == 0 {
		return StateUpdate{Offers: &offers}, nil
	}
	if err := w.jobs.SaveOffers(ctx, st.JobID, offers); err != nil {
		return StateUpdate{Offers: ptr([]types.Offer{})}, fmt.Errorf("保存录用通知失败: %w", err)
	}
	for _, o := range offers {
		w.logger.Info().Str("application_id", o.ApplicationID).Str("role", o.Role).Msg("已发出录用通知")
	}
	return StateUpdate{Offers: &offers}, nil
}

// Onboard 为已发出的录用通知启动入职
func (w *Workflow) Onboard(ctx context.Context, st *WorkflowState) (StateUpdate, error) {
	start := w.now().UTC().Add(onboardingLeadTime)
	records := make([]types.OnboardingRecord, 0, len(st.Offers))
	for _, o := range st.Offers {
		records = append(records, types.OnboardingRecord{
			ApplicationID: o.ApplicationID,
			EmployeeName:  o.CandidateName,
			Email:         o.Email,
			Role:          o.Role,
			Status:        types.OnboardingStatusInProgress,
			HRSystemID:    HRSystemID(o.CandidateName),
			StartDate:     start,
		})
	}
	if len(records) == 0 {
		return StateUpdate{OnboardedEmployees: &records}, nil
	}
	if err := w.jobs.SaveOnboarding(ctx, records); err != nil {
		return StateUpdate{OnboardedEmployees: ptr([]types.OnboardingRecord{})}, fmt.Errorf("保存入职记录失败: %w", err)
	}
	return StateUpdate{OnboardedEmployees: &records}, nil
}

// HRSystemID 由姓名派生的稳定 HR 编号
func HRSystemID(name string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return fmt.Sprintf("HR%d", h.Sum32()%1000)
}
