package parser

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"smarthire-ats/internal/types"
)

// CategoryOther 附加技能所属的分类
const CategoryOther = "other"

// defaultSkillCategories 内置技能分类词表
var defaultSkillCategories = map[string][]string{
	"programming": {"python", "java", "javascript", "typescript", "c++", "go", "rust"},
	"web":         {"react", "angular", "vue", "node.js", "express", "django", "flask", "fastapi"},
	"database":    {"mongodb", "postgresql", "mysql", "redis", "elasticsearch"},
	"cloud":       {"aws", "azure", "gcp", "docker", "kubernetes"},
	"ml_ai":       {"machine learning", "deep learning", "nlp", "computer vision", "tensorflow", "pytorch"},
	"tools":       {"git", "jenkins", "ci/cd", "agile", "scrum"},
}

// defaultAdditionalSkills 归入 other 分类的补充技能
var defaultAdditionalSkills = []string{
	"c#", "php", "ruby", "swift", "kotlin", "scala", "r", "matlab",
	"html", "css", "sass", "less", "webpack", "vite",
	"next.js", "nuxt.js", "spring boot", "laravel", "ruby on rails", "asp.net",
	"react native", "flutter", "ios", "android", "xamarin",
	"terraform", "ansible", "puppet", "chef", "gitlab ci", "github actions",
	"jest", "pytest", "selenium", "cypress", "junit", "mocha",
	"pandas", "numpy", "scipy", "matplotlib", "seaborn", "tableau", "power bi",
	"hadoop", "spark", "kafka", "airflow", "databricks",
	"rest api", "graphql", "microservices", "oauth", "jwt", "websockets",
}

// taxonomyEntry 一个规范技能名及其匹配正则
type taxonomyEntry struct {
	skill    string
	category string
	pattern  *regexp.Regexp
}

// Taxonomy 不可变的技能词表，构造后可在多个 goroutine 间共享
type Taxonomy struct {
	categories []string
	entries    []taxonomyEntry
}

// DefaultTaxonomy 返回内置词表
func DefaultTaxonomy() *Taxonomy {
	t, err := NewTaxonomy(defaultSkillCategories, defaultAdditionalSkills)
	if err != nil {
		panic(err) // 内置词表一定合法
	}
	return t
}

// NewTaxonomy 根据分类表与附加技能构建词表。
// 技能名统一转为小写；同一技能只保留第一次出现的分类（分类按名称排序，other 最后）。
func NewTaxonomy(categories map[string][]string, additional []string) (*Taxonomy, error) {
	names := make([]string, 0, len(categories))
	for name := range categories {
		names = append(names, name)
	}
	sort.Strings(names)

	t := &Taxonomy{}
	seen := make(map[string]bool)
	add := func(category, skill string) error {
		skill = strings.ToLower(strings.TrimSpace(skill))
		if skill == "" || seen[skill] {
			return nil
		}
		re, err := regexp.Compile(skillPattern(skill))
		if err != nil {
			return types.NewConfigurationError("taxonomy", "技能 %q 无法编译为正则: %v", skill, err)
		}
		seen[skill] = true
		t.entries = append(t.entries, taxonomyEntry{skill: skill, category: category, pattern: re})
		return nil
	}

	for _, category := range names {
		t.categories = append(t.categories, category)
		for _, skill := range categories[category] {
			if err := add(category, skill); err != nil {
				return nil, err
			}
		}
	}
	if len(additional) > 0 {
		if _, exists := categories[CategoryOther]; !exists {
			t.categories = append(t.categories, CategoryOther)
		}
		for _, skill := range additional {
			if err := add(CategoryOther, skill); err != nil {
				return nil, err
			}
		}
	}
	if len(t.entries) == 0 {
		return nil, types.NewConfigurationError("taxonomy", "技能词表为空")
	}
	return t, nil
}

// skillPattern 生成整词匹配正则。
// 技能名首尾为单词字符时才加 \b，否则 "c++"、"c#" 这类技能永远无法命中。
func skillPattern(skill string) string {
	quoted := regexp.QuoteMeta(skill)
	if isWordChar(skill[0]) {
		quoted = `\b` + quoted
	}
	if isWordChar(skill[len(skill)-1]) {
		quoted += `\b`
	}
	return quoted
}

func isWordChar(b byte) bool {
	return b == '_' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// Categories 返回分类名（有序）
func (t *Taxonomy) Categories() []string {
	out := make([]string, len(t.categories))
	copy(out, t.categories)
	return out
}

// Size 词表中的技能数
func (t *Taxonomy) Size() int { return len(t.entries) }

// CategoryOf 返回技能所属分类
func (t *Taxonomy) CategoryOf(skill string) (string, bool) {
	skill = strings.ToLower(skill)
	for _, e := range t.entries {
		if e.skill == skill {
			return e.category, true
		}
	}
	return "", false
}

func (t *Taxonomy) String() string {
	return fmt.Sprintf("Taxonomy{categories=%d, skills=%d}", len(t.categories), len(t.entries))
}
