package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"smarthire-ats/internal/processor"
	"smarthire-ats/internal/types"
)

func printSummary(w io.Writer, summary *processor.BatchSummary, top int, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	results := summary.Results
	if top > 0 && top < len(results) {
		results = results[:top]
	}

	fmt.Fprintf(w, "共 %d 份申请，成功 %d，失败 %d\n\n", summary.Total, len(summary.Results), len(summary.Failures))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tAPPLICATION\tCANDIDATE\tJOB\tFINAL\tSEMANTIC\tSKILL\tEXP\tEDU\tLLM\tDECISION")
	for i, s := range results {
		decision := "N/A"
		if s.QualitativeEvaluation != nil && s.QualitativeEvaluation.Decision != "" {
			decision = s.QualitativeEvaluation.Decision
		}
		c := s.ComponentScores
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%.2f\t%.1f\t%.1f\t%.1f\t%.1f\t%.1f\t%s\n",
			i+1, s.ApplicationID, s.CandidateName, s.JobTitle, s.FinalATSScore,
			c.SemanticSimilarity, c.SkillMatch, c.ExperienceMatch, c.EducationMatch, c.LLMScore, decision)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(summary.Failures) > 0 {
		fmt.Fprintln(w, "\n失败:")
		for _, f := range summary.Failures {
			fmt.Fprintf(w, "  %s (%s) 阶段 %s: %s\n", f.ApplicationID, f.CandidateName, f.Stage, f.Error)
		}
	}
	return nil
}

func printScore(w io.Writer, s *types.CandidateScore, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
	c := s.ComponentScores
	fmt.Fprintf(w, "%s (%s) -> %s\n", s.CandidateName, s.ApplicationID, s.JobTitle)
	fmt.Fprintf(w, "最终得分: %.2f\n", s.FinalATSScore)
	fmt.Fprintf(w, "  语义相似度 %.1f | 技能 %.1f | 经验 %.1f | 学历 %.1f | LLM %.1f\n",
		c.SemanticSimilarity, c.SkillMatch, c.ExperienceMatch, c.EducationMatch, c.LLMScore)
	if len(s.SkillAnalysisSummary.MissingSkills) > 0 {
		fmt.Fprintf(w, "  缺失技能: %v\n", s.SkillAnalysisSummary.MissingSkills)
	}
	return nil
}

func printJobs(w io.Writer, jobs []types.ActiveJob) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB_ID\tTITLE\tCOMPANY\tAPPLICATIONS")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", j.JobID, j.Title, j.Company, j.ApplicationCount)
	}
	return tw.Flush()
}
