package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"smarthire-ats/internal/agent"
	"smarthire-ats/internal/config"
	"smarthire-ats/internal/parser"
	"smarthire-ats/internal/processor"
	"smarthire-ats/internal/storage"
)

type app struct {
	storage *storage.Storage
	repo    *storage.ATSRepository
	proc    *processor.ATSProcessor
}

// newApp 初始化存储与评分流水线。CLI 不启动 outbox 中继，事件由服务进程发布
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	st, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("初始化存储失败: %w", err)
	}
	repo := st.Repository(storage.EventRouting{
		Exchange:            cfg.RabbitMQ.ATSEventsExchange,
		ScoredRoutingKey:    cfg.RabbitMQ.ScoredRoutingKey,
		JobPostedRoutingKey: cfg.RabbitMQ.JobPostedRoutingKey,
	})

	embedder, err := parser.NewAliyunEmbedder(cfg.Aliyun.APIKey, cfg.Aliyun.Embedding)
	if err != nil {
		st.Close()
		return nil, err
	}
	extractor, err := parser.NewPDFExtractorFromConfig(ctx, cfg.ATS)
	if err != nil {
		st.Close()
		return nil, err
	}
	judgment, err := agent.NewChatModel(ctx, cfg, agent.PurposeJudgment)
	if err != nil {
		st.Close()
		return nil, err
	}

	caps := processor.Capabilities{Embedder: embedder, Judgment: judgment, Extractor: extractor}
	var extra []processor.ComponentOpt
	if st.Redis != nil {
		caps.JDCache = st.Redis
		extra = append(extra, processor.WithcompLocker(st.Redis))
	}
	proc, err := processor.CreateProcessorFromConfig(cfg, caps, repo, repo, extra...)
	if err != nil {
		st.Close()
		return nil, err
	}
	return &app{storage: st, repo: repo, proc: proc}, nil
}

func (a *app) Close() {
	a.storage.Close()
}

func (a *app) processAll(ctx context.Context) error {
	summary, err := a.proc.ProcessAll(ctx)
	if err != nil {
		return err
	}
	return printSummary(os.Stdout, summary, *topN, *asJSON)
}

func (a *app) processJob(ctx context.Context, jobID string) error {
	summary, err := a.proc.ProcessByJob(ctx, jobID)
	if err != nil {
		return err
	}
	return printSummary(os.Stdout, summary, *topN, *asJSON)
}

func (a *app) processOne(ctx context.Context, applicationID string) error {
	score, err := a.proc.ProcessApplication(ctx, applicationID)
	if score != nil {
		if perr := printScore(os.Stdout, score, *asJSON); perr != nil {
			return perr
		}
	}
	return err
}

func (a *app) listJobs(ctx context.Context) error {
	jobs, err := a.proc.ListActiveJobs(ctx)
	if err != nil {
		return err
	}
	if *asJSON {
		return writeJSON(os.Stdout, jobs)
	}
	return printJobs(os.Stdout, jobs)
}

func (a *app) report(ctx context.Context, applicationID string) error {
	score, err := a.repo.GetCandidateScore(ctx, applicationID)
	if err != nil {
		return err
	}
	if score.QualitativeEvaluation == nil {
		return fmt.Errorf("申请 %s 没有定性评估结果", applicationID)
	}
	fmt.Fprintln(os.Stdout, parser.GenerateFeedbackReport(score.QualitativeEvaluation, score.CandidateName, score.JobTitle))
	return nil
}

func (a *app) attachResume(ctx context.Context, applicationID, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("打开简历文件失败: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	objectName, err := a.repo.AttachResume(ctx, applicationID, path, f, info.Size())
	if err != nil {
		return err
	}
	fmt.Printf("已上传 %s -> %s\n", path, objectName)
	return nil
}

// handleAnalyze 只使用本地能力：PDF 提取与技能词表
func handleAnalyze(ctx context.Context, pdfPath, jdPath string) error {
	data, err := os.ReadFile(pdfPath)
	if err != nil {
		return fmt.Errorf("读取PDF失败: %w", err)
	}
	extractor, err := parser.NewEinoPDFTextExtractor(ctx)
	if err != nil {
		return err
	}
	text, err := extractor.ExtractText(ctx, data)
	if err != nil {
		return err
	}

	analyzer := parser.NewSkillAnalyzer(parser.DefaultTaxonomy())
	if jdPath == "" {
		profile := analyzer.Extract(text)
		if *asJSON {
			return writeJSON(os.Stdout, profile)
		}
		fmt.Printf("技能(%d): %v\n", profile.Skills.TotalSkills, profile.Skills.Skills)
		fmt.Printf("最高学历: %s, 最长工作年限: %d\n", valueOr(profile.Education.HighestDegree, "未识别"), profile.Experience.MaxExperience)
		return nil
	}

	jd, err := os.ReadFile(jdPath)
	if err != nil {
		return fmt.Errorf("读取岗位描述失败: %w", err)
	}
	analysis := analyzer.AnalyzeApplication(text, string(jd))
	if *asJSON {
		return writeJSON(os.Stdout, analysis)
	}
	cmp := analysis.SkillComparison
	fmt.Printf("技能匹配: %.1f%% (%d/%d)\n", cmp.MatchPercentage, cmp.MatchCount, cmp.RequiredCount)
	fmt.Printf("匹配: %v\n缺失: %v\n额外: %v\n", cmp.MatchingSkills, cmp.MissingSkills, cmp.ExtraSkills)
	fmt.Printf("工作年限满足要求: %t\n", analysis.ExperienceMatch)
	return nil
}

func writeJSON(w *os.File, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
