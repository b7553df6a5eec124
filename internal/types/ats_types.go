package types

import "time"

// Chunk 表示文本按词窗口切分后的一个分块
type Chunk struct {
	Text      string `json:"text"`
	ChunkID   int    `json:"chunk_id"`   // 从0开始，按生成顺序递增
	StartWord int    `json:"start_word"` // 起始词下标（含）
	EndWord   int    `json:"end_word"`   // 结束词下标（不含）
	WordCount int    `json:"word_count"`
}

// EmbeddedChunk 带向量的分块
type EmbeddedChunk struct {
	Chunk
	Embedding []float64 `json:"embedding"`
}

// ChunkPair 简历分块与JD分块的相似度配对
type ChunkPair struct {
	ResumeChunkID int     `json:"resume_chunk_id"`
	JDChunkID     int     `json:"jd_chunk_id"`
	Similarity    float64 `json:"similarity"`
	ResumeText    string  `json:"resume_text"`
	JDText        string  `json:"jd_text"`
}

// SimilarityResult 文档级语义相似度结果
type SimilarityResult struct {
	OverallSimilarity     float64     `json:"overall_similarity"`
	OverallScore          float64     `json:"overall_score"`
	ChunkPairs            []ChunkPair `json:"chunk_pairs"`
	HighSimilarityCount   int         `json:"high_similarity_count"`
	MediumSimilarityCount int         `json:"medium_similarity_count"`
	TopMatches            []ChunkPair `json:"top_matches"`
	ResumeChunkCount      int         `json:"resume_chunk_count"`
	JDChunkCount          int         `json:"jd_chunk_count"`
}

// SkillProfile 从文本中抽取的技能画像
type SkillProfile struct {
	TotalSkills       int                 `json:"total_skills"`
	Skills            []string            `json:"skills"` // 已排序、去重
	CategorizedSkills map[string][]string `json:"categorized_skills"`
	SkillFrequency    map[string]int      `json:"skill_frequency"`
}

// ExperienceProfile 工作年限画像，列表为空时统计值均为0
type ExperienceProfile struct {
	MentionedExperiences []int   `json:"mentioned_experiences"`
	MaxExperience        int     `json:"max_experience"`
	MinExperience        int     `json:"min_experience"`
	AvgExperience        float64 `json:"avg_experience"`
}

// 学历等级标签
const (
	DegreePhD       = "phd"
	DegreeMasters   = "masters"
	DegreeBachelors = "bachelors"
	DegreeDiploma   = "diploma"
)

// EducationProfile 学历画像，HighestDegree 为空表示未识别到学历
type EducationProfile struct {
	Degrees       []string `json:"degrees"`
	HighestDegree string   `json:"highest_degree,omitempty"`
}

// TextProfile 单个文本的完整抽取结果
type TextProfile struct {
	Skills     SkillProfile      `json:"skills"`
	Experience ExperienceProfile `json:"experience"`
	Education  EducationProfile  `json:"education"`
}

// SkillComparison 简历技能与岗位要求技能的对比
type SkillComparison struct {
	MatchingSkills  []string `json:"matching_skills"`
	MissingSkills   []string `json:"missing_skills"`
	ExtraSkills     []string `json:"extra_skills"`
	MatchCount      int      `json:"match_count"`
	RequiredCount   int      `json:"required_count"`
	MatchPercentage float64  `json:"match_percentage"`
}

// ApplicationSkillAnalysis 单个候选人的技能分析结果
type ApplicationSkillAnalysis struct {
	Resume          TextProfile     `json:"resume_analysis"`
	JobRequirements TextProfile     `json:"job_requirements"`
	SkillComparison SkillComparison `json:"skill_comparison"`
	ExperienceMatch bool            `json:"experience_match"`
}

// 评估枚举值
const (
	DecisionPass = "PASS"
	DecisionFail = "FAIL"

	InterviewYes = "YES"
	InterviewNo  = "NO"

	ConfidenceHigh   = "HIGH"
	ConfidenceMedium = "MEDIUM"
	ConfidenceLow    = "LOW"
)

// DetailedAnalysis 定性评估的分项分析
type DetailedAnalysis struct {
	SkillsAlignment     string `json:"skills_alignment"`
	ExperienceRelevance string `json:"experience_relevance"`
	RoleFit             string `json:"role_fit"`
}

// Recommendations 给候选人与招聘方的建议
type Recommendations struct {
	ForCandidate []string `json:"for_candidate"`
	ForRecruiter []string `json:"for_recruiter"`
}

// QualitativeEvaluation LLM 返回的固定结构评估
type QualitativeEvaluation struct {
	ATSScore                float64          `json:"ats_score"`
	OverallAssessment       string           `json:"overall_assessment"`
	Strengths               []string         `json:"strengths"`
	Weaknesses              []string         `json:"weaknesses"`
	DetailedAnalysis        DetailedAnalysis `json:"detailed_analysis"`
	Recommendations         Recommendations  `json:"recommendations"`
	Decision                string           `json:"decision"`
	DecisionJustification   string           `json:"decision_justification"`
	InterviewRecommendation string           `json:"interview_recommendation"`
	InterviewConfidence     string           `json:"interview_confidence"`
	InterviewFocusAreas     []string         `json:"interview_focus_areas"`
}

// ComponentScores 各分项得分，取值均为 0-100
type ComponentScores struct {
	SemanticSimilarity float64 `json:"semantic_similarity"`
	SkillMatch         float64 `json:"skill_match"`
	ExperienceMatch    float64 `json:"experience_match"`
	EducationMatch     float64 `json:"education_match"`
	LLMScore           float64 `json:"llm_score"`
}

// SemanticSummary 持久化时保留的语义分析摘要
type SemanticSummary struct {
	OverallScore          float64 `json:"overall_score"`
	HighSimilarityCount   int     `json:"high_similarity_count"`
	MediumSimilarityCount int     `json:"medium_similarity_count"`
}

// SkillSummary 持久化时保留的技能分析摘要
type SkillSummary struct {
	MatchPercentage float64  `json:"match_percentage"`
	MatchingSkills  []string `json:"matching_skills"`
	MissingSkills   []string `json:"missing_skills"`
	ExperienceMatch bool     `json:"experience_match"`
}

// CandidateScore 候选人最终ATS评分，按 ApplicationID 幂等覆盖
type CandidateScore struct {
	ApplicationID           string                 `json:"application_id"`
	JobID                   string                 `json:"job_id"`
	CandidateName           string                 `json:"candidate_name"`
	CandidateEmail          string                 `json:"candidate_email,omitempty"`
	JobTitle                string                 `json:"job_title"`
	Company                 string                 `json:"company"`
	FinalATSScore           float64                `json:"final_ats_score"`
	ComponentScores         ComponentScores        `json:"component_scores"`
	SemanticAnalysisSummary SemanticSummary        `json:"semantic_analysis_summary"`
	SkillAnalysisSummary    SkillSummary           `json:"skill_analysis_summary"`
	QualitativeEvaluation   *QualitativeEvaluation `json:"qualitative_evaluation,omitempty"`
	ComputedAt              time.Time              `json:"computed_at"`
}

// JobPosting 岗位信息
type JobPosting struct {
	JobID       string `json:"job_id"`
	Title       string `json:"title"`
	Company     string `json:"company"`
	Description string `json:"description"`
	Location    string `json:"location,omitempty"`
	Status      string `json:"status,omitempty"`
}

// ApplicationRecord 检索阶段得到的申请信息（含简历原文件）
type ApplicationRecord struct {
	ApplicationID  string     `json:"application_id"`
	JobID          string     `json:"job_id"`
	CandidateName  string     `json:"candidate_name"`
	CandidateEmail string     `json:"candidate_email"`
	Phone          string     `json:"phone,omitempty"`
	ResumeFilename string     `json:"resume_filename,omitempty"`
	ResumeObject   string     `json:"resume_object,omitempty"`
	Status         string     `json:"status"`
	AppliedAt      time.Time  `json:"applied_at"`
	Job            JobPosting `json:"job"`
}

// ActiveJob 活跃岗位及其申请数量
type ActiveJob struct {
	JobPosting
	ApplicationCount int64 `json:"application_count"`
}

// EvaluationKind 定性评估结果类型
type EvaluationKind string

const (
	// EvaluationOK 模型正常返回且通过校验
	EvaluationOK EvaluationKind = "OK"
	// EvaluationParseFailure 模型返回无法解析，Evaluation 为兜底记录
	EvaluationParseFailure EvaluationKind = "PARSE_FAILURE"
	// EvaluationCapabilityFailure 模型调用失败，Evaluation 为 nil
	EvaluationCapabilityFailure EvaluationKind = "CAPABILITY_FAILURE"
)

// EvaluationOutcome 定性评估的带标签结果
type EvaluationOutcome struct {
	Kind       EvaluationKind         `json:"kind"`
	Evaluation *QualitativeEvaluation `json:"evaluation,omitempty"`
	Err        error                  `json:"-"`
}
