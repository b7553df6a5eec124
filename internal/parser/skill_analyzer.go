package parser

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"smarthire-ats/internal/types"
)

// 年限抽取规则，宁可多报不可漏报，结果只能当作参考证据
var experiencePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\d+)\+?\s*(?:years?|yrs?)\s*(?:of)?\s*(?:experience|exp)`),
	regexp.MustCompile(`experience.*?(\d+)\+?\s*(?:years?|yrs?)`),
	regexp.MustCompile(`(\d+)\+?\s*(?:years?|yrs?)`),
}

// degreeKeywords 学历关键字，按优先级从高到低
var degreeKeywords = []struct {
	level    string
	keywords []string
}{
	{types.DegreePhD, []string{"phd", "ph.d", "doctorate", "doctoral"}},
	{types.DegreeMasters, []string{"master", "m.s", "m.sc", "mca", "mba", "m.tech", "m.e"}},
	{types.DegreeBachelors, []string{"bachelor", "b.s", "b.sc", "bca", "b.tech", "b.e", "bba"}},
	{types.DegreeDiploma, []string{"diploma", "associate"}},
}

// SkillAnalyzer 基于词表的技能、年限、学历抽取与对比
type SkillAnalyzer struct {
	taxonomy *Taxonomy
}

// NewSkillAnalyzer 创建分析器，taxonomy 为 nil 时使用内置词表
func NewSkillAnalyzer(taxonomy *Taxonomy) *SkillAnalyzer {
	if taxonomy == nil {
		taxonomy = DefaultTaxonomy()
	}
	return &SkillAnalyzer{taxonomy: taxonomy}
}

// Taxonomy 返回当前词表
func (a *SkillAnalyzer) Taxonomy() *Taxonomy { return a.taxonomy }

// ExtractSkills 抽取文本中出现的技能（大小写不敏感、整词匹配）
func (a *SkillAnalyzer) ExtractSkills(text string) types.SkillProfile {
	lower := strings.ToLower(text)
	profile := types.SkillProfile{
		Skills:            []string{},
		CategorizedSkills: make(map[string][]string),
		SkillFrequency:    make(map[string]int),
	}

	for _, e := range a.taxonomy.entries {
		matches := e.pattern.FindAllStringIndex(lower, -1)
		if len(matches) == 0 {
			continue
		}
		profile.Skills = append(profile.Skills, e.skill)
		profile.CategorizedSkills[e.category] = append(profile.CategorizedSkills[e.category], e.skill)
		profile.SkillFrequency[e.skill] = len(matches)
	}

	sort.Strings(profile.Skills)
	for _, skills := range profile.CategorizedSkills {
		sort.Strings(skills)
	}
	profile.TotalSkills = len(profile.Skills)
	return profile
}

// ExtractExperience 抽取所有年限数字，三条规则的结果全部保留（包括重复）
func (a *SkillAnalyzer) ExtractExperience(text string) types.ExperienceProfile {
	lower := strings.ToLower(text)
	profile := types.ExperienceProfile{MentionedExperiences: []int{}}

	for _, re := range experiencePatterns {
		for _, m := range re.FindAllStringSubmatch(lower, -1) {
			years, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			profile.MentionedExperiences = append(profile.MentionedExperiences, years)
		}
	}

	if len(profile.MentionedExperiences) == 0 {
		return profile
	}

	sum := 0
	profile.MaxExperience = profile.MentionedExperiences[0]
	profile.MinExperience = profile.MentionedExperiences[0]
	for _, y := range profile.MentionedExperiences {
		sum += y
		if y > profile.MaxExperience {
			profile.MaxExperience = y
		}
		if y < profile.MinExperience {
			profile.MinExperience = y
		}
	}
	profile.AvgExperience = float64(sum) / float64(len(profile.MentionedExperiences))
	return profile
}

// ExtractEducation 按关键字子串识别学历，最高学历按 phd>masters>bachelors>diploma 取第一个
func (a *SkillAnalyzer) ExtractEducation(text string) types.EducationProfile {
	lower := strings.ToLower(text)
	profile := types.EducationProfile{Degrees: []string{}}

	for _, d := range degreeKeywords {
		for _, kw := range d.keywords {
			if strings.Contains(lower, kw) {
				profile.Degrees = append(profile.Degrees, d.level)
				break
			}
		}
	}
	if len(profile.Degrees) > 0 {
		profile.HighestDegree = profile.Degrees[0]
	}
	return profile
}

// Extract 对单个文本做完整抽取
func (a *SkillAnalyzer) Extract(text string) types.TextProfile {
	return types.TextProfile{
		Skills:     a.ExtractSkills(text),
		Experience: a.ExtractExperience(text),
		Education:  a.ExtractEducation(text),
	}
}

// Compare 对比简历技能与要求技能。要求为空时匹配率为0。
func (a *SkillAnalyzer) Compare(resumeSkills, requiredSkills []string) types.SkillComparison {
	resumeSet := toSet(resumeSkills)
	requiredSet := toSet(requiredSkills)

	cmp := types.SkillComparison{
		MatchingSkills: []string{},
		MissingSkills:  []string{},
		ExtraSkills:    []string{},
	}
	for skill := range requiredSet {
		if resumeSet[skill] {
			cmp.MatchingSkills = append(cmp.MatchingSkills, skill)
		} else {
			cmp.MissingSkills = append(cmp.MissingSkills, skill)
		}
	}
	for skill := range resumeSet {
		if !requiredSet[skill] {
			cmp.ExtraSkills = append(cmp.ExtraSkills, skill)
		}
	}
	sort.Strings(cmp.MatchingSkills)
	sort.Strings(cmp.MissingSkills)
	sort.Strings(cmp.ExtraSkills)

	cmp.MatchCount = len(cmp.MatchingSkills)
	cmp.RequiredCount = len(requiredSet)
	if cmp.RequiredCount > 0 {
		cmp.MatchPercentage = float64(cmp.MatchCount) / float64(cmp.RequiredCount) * 100
	}
	return cmp
}

// AnalyzeApplication 对简历与JD分别抽取并对比
func (a *SkillAnalyzer) AnalyzeApplication(resumeText, jdText string) types.ApplicationSkillAnalysis {
	resume := a.Extract(resumeText)
	job := a.Extract(jdText)

	required := job.Experience.MinExperience
	return types.ApplicationSkillAnalysis{
		Resume:          resume,
		JobRequirements: job,
		SkillComparison: a.Compare(resume.Skills.Skills, job.Skills.Skills),
		ExperienceMatch: required == 0 || resume.Experience.MaxExperience >= required,
	}
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		if item = strings.ToLower(strings.TrimSpace(item)); item != "" {
			set[item] = true
		}
	}
	return set
}
