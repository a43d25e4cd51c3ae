package parser

import (
	"regexp"
	"strconv"
	"strings"

	"adequa-rag/internal/types"
)

// MaxMetadataLength 字符串元数据的最大长度，超出部分截断并加 "..."
const MaxMetadataLength = 800

// 技能关键词，按整词匹配
var skillKeywords = []string{
	"python", "java", "javascript", "typescript", "go", "golang", "sql", "react", "node",
	"docker", "kubernetes", "aws", "azure", "gcp", "git", "agile", "scrum",
}

var (
	skillRes = func() map[string]*regexp.Regexp {
		out := make(map[string]*regexp.Regexp, len(skillKeywords))
		for _, k := range skillKeywords {
			out[k] = regexp.MustCompile(`(?i)(^|[^\pL\pN])` + regexp.QuoteMeta(k) + `($|[^\pL\pN])`)
		}
		return out
	}()

	educationRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(bachelor|master|phd|mba|degree)\s+(?:of|in|degree)?\s*[A-Za-z ]+`),
		regexp.MustCompile(`(?i)\b(university|college)\s+of\s+[A-Za-z ]+`),
		regexp.MustCompile(`(?i)(bacharelado|bacharel|mestrado|doutorado|graduação|graduacao|pós-graduação|tecnólogo)\s+(?:em|de)\s+[\pL ]+`),
		regexp.MustCompile(`(?i)universidade\s+(?:federal\s+|estadual\s+)?(?:de|do|da)\s+[\pL ]+`),
	}

	experienceRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(\d+)\+?\s*years?\s+(?:of\s+)?experience`),
		regexp.MustCompile(`(?i)(\d+)\+?\s*anos\s+de\s+experi[êe]ncia`),
	}
)

// Transform 从文本中抽取技能、学历和工作年限写入元数据，并截断过长的字符串元数据
// 返回新的文档切片，不修改入参
func Transform(docs []types.Document) []types.Document {
	out := make([]types.Document, len(docs))
	for i, doc := range docs {
		md := doc.Metadata.Clone()
		text := strings.TrimSpace(doc.Text)

		if skills := extractSkills(text); len(skills) > 0 {
			md[types.MetaSkills] = strings.Join(skills, ", ")
		}
		if edu := extractEducation(text); edu != "" {
			md[types.MetaEducation] = edu
		}
		if years, ok := extractExperienceYears(text); ok {
			md[types.MetaExperience] = years
		}
		truncateMetadata(md)

		out[i] = types.Document{Text: text, Metadata: md}
	}
	return out
}

func extractSkills(text string) []string {
	var found []string
	for _, k := range skillKeywords {
		if skillRes[k].MatchString(text) {
			found = append(found, k)
		}
	}
	return found
}

func extractEducation(text string) string {
	for _, re := range educationRes {
		if m := re.FindString(text); m != "" {
			return strings.TrimSpace(m)
		}
	}
	return ""
}

func extractExperienceYears(text string) (int, bool) {
	for _, re := range experienceRes {
		if m := re.FindStringSubmatch(text); len(m) == 2 {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

func truncateMetadata(md types.Metadata) {
	for k, v := range md {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if r := []rune(s); len(r) > MaxMetadataLength {
			md[k] = string(r[:MaxMetadataLength]) + "..."
		}
	}
}
