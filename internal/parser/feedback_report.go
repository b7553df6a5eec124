package parser

import (
	"fmt"
	"strconv"
	"strings"

	"smarthire-ats/internal/types"
)

const (
	reportRule    = "───────────────────────────────────────────────────────────────"
	reportEndRule = "═══════════════════════════════════════════════════════════════"
)

// GenerateFeedbackReport 生成给招聘方阅读的文本评估报告
func GenerateFeedbackReport(eval *types.QualitativeEvaluation, candidateName, jobTitle string) string {
	if eval == nil {
		eval = FallbackEvaluation()
	}

	var sb strings.Builder
	sb.WriteString("\n╔══════════════════════════════════════════════════════════════╗\n")
	sb.WriteString("║              ATS EVALUATION REPORT                           ║\n")
	sb.WriteString("╚══════════════════════════════════════════════════════════════╝\n\n")
	fmt.Fprintf(&sb, "Candidate: %s\n", candidateName)
	fmt.Fprintf(&sb, "Position: %s\n", jobTitle)
	fmt.Fprintf(&sb, "ATS Score: %s/100\n", strconv.FormatFloat(eval.ATSScore, 'f', -1, 64))
	fmt.Fprintf(&sb, "Decision: %s\n", eval.Decision)

	section(&sb, "OVERALL ASSESSMENT")
	sb.WriteString(eval.OverallAssessment)
	sb.WriteString("\n")

	section(&sb, "KEY STRENGTHS")
	numbered(&sb, eval.Strengths)

	section(&sb, "KEY WEAKNESSES")
	numbered(&sb, eval.Weaknesses)

	section(&sb, "DETAILED ANALYSIS")
	fmt.Fprintf(&sb, "Skills Alignment: %s\n\n", eval.DetailedAnalysis.SkillsAlignment)
	fmt.Fprintf(&sb, "Experience Relevance: %s\n\n", eval.DetailedAnalysis.ExperienceRelevance)
	fmt.Fprintf(&sb, "Role Fit: %s\n", eval.DetailedAnalysis.RoleFit)

	section(&sb, "RECOMMENDATIONS")
	sb.WriteString("For Candidate:\n")
	numbered(&sb, eval.Recommendations.ForCandidate)
	sb.WriteString("\nFor Recruiter:\n")
	numbered(&sb, eval.Recommendations.ForRecruiter)

	section(&sb, "INTERVIEW RECOMMENDATION")
	fmt.Fprintf(&sb, "Recommendation: %s\n", eval.InterviewRecommendation)
	fmt.Fprintf(&sb, "Confidence: %s\n", eval.InterviewConfidence)
	fmt.Fprintf(&sb, "Decision Justification: %s\n\n", eval.DecisionJustification)
	sb.WriteString("Focus Areas for Interview:\n")
	numbered(&sb, eval.InterviewFocusAreas)

	sb.WriteString("\n")
	sb.WriteString(reportEndRule)
	sb.WriteString("\n")
	return sb.String()
}

func section(sb *strings.Builder, title string) {
	sb.WriteString("\n")
	sb.WriteString(reportRule)
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(reportRule)
	sb.WriteString("\n")
}

func numbered(sb *strings.Builder, items []string) {
	for i, item := range items {
		fmt.Fprintf(sb, "%d. %s\n", i+1, item)
	}
}
