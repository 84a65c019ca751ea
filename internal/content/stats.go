// Package content 汇总文章正文的派生统计：字数、图片数、阅读时长与预览摘要。
// 文档、版本与导出逻辑都依赖这里的实现，保证各处结果一致。
package content

import (
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// WordsPerMinute 是阅读时长估算使用的速度。
const WordsPerMinute = 200

// Metadata 是根据正文计算出的派生字段。
type Metadata struct {
	WordCount         int `json:"wordCount"`
	ImageCount        int `json:"imageCount"`
	EstimatedReadTime int `json:"estimatedReadTime"`
}

var (
	imagePattern      = regexp.MustCompile(`!\[[^\]]*]\([^)]*\)`)
	fencedCodePattern = regexp.MustCompile("(?s)```.*?```")
	inlineCodePattern = regexp.MustCompile("`[^`\n]*`")
	linkPattern       = regexp.MustCompile(`\[([^\]]*)]\([^)]*\)`)
	headingPattern    = regexp.MustCompile(`(?m)^[ \t]*#{1,6}[ \t]+`)
	bulletPattern     = regexp.MustCompile(`(?m)^[ \t]*[-*+][ \t]+`)
	numberedPattern   = regexp.MustCompile(`(?m)^[ \t]*\d+\.[ \t]+`)
	quotePattern      = regexp.MustCompile(`(?m)^[ \t]*>[ \t]?`)
	strongPattern     = regexp.MustCompile(`(\*\*|__)(.+?)(\*\*|__)`)
	emphasisPattern   = regexp.MustCompile(`(\*|_)(.+?)(\*|_)`)
	spacePattern      = regexp.MustCompile(`\s+`)
)

// Analyze 计算正文的全部派生统计。
func Analyze(markdown string) Metadata {
	words := WordCount(markdown)
	return Metadata{
		WordCount:         words,
		ImageCount:        ImageCount(markdown),
		EstimatedReadTime: ReadTime(words),
	}
}

// ImageCount 统计原始正文中的 Markdown 图片语法数量。
func ImageCount(markdown string) int {
	return len(imagePattern.FindAllStringIndex(markdown, -1))
}

// ReadTime 以每分钟 200 字估算阅读分钟数，至少 1 分钟。
func ReadTime(words int) int {
	minutes := int(math.Ceil(float64(words) / WordsPerMinute))
	if minutes < 1 {
		return 1
	}
	return minutes
}

// WordCount 去除 Markdown 标记后统计字数：每个汉字计 1，
// 长度大于 1 的拉丁单词计 1。
func WordCount(markdown string) int {
	text := StripMarkdown(markdown)
	if text == "" {
		return 0
	}

	cjk := 0
	var rest strings.Builder
	rest.Grow(len(text))
	for _, r := range text {
		if isCJK(r) {
			cjk++
			rest.WriteByte(' ')
			continue
		}
		rest.WriteRune(r)
	}

	latin := 0
	for _, token := range strings.Fields(rest.String()) {
		if utf8.RuneCountInString(token) > 1 && hasLatinLetter(token) {
			latin++
		}
	}
	return cjk + latin
}

// StripMarkdown 去除代码、图片、链接、标题、列表、引用与强调标记并折叠空白。
func StripMarkdown(markdown string) string {
	text := fencedCodePattern.ReplaceAllString(markdown, "")
	text = inlineCodePattern.ReplaceAllString(text, "")
	text = imagePattern.ReplaceAllString(text, "")
	text = linkPattern.ReplaceAllString(text, "$1")
	text = headingPattern.ReplaceAllString(text, "")
	text = bulletPattern.ReplaceAllString(text, "")
	text = numberedPattern.ReplaceAllString(text, "")
	text = quotePattern.ReplaceAllString(text, "")
	text = strongPattern.ReplaceAllString(text, "$2")
	text = emphasisPattern.ReplaceAllString(text, "$2")
	text = spacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

func isCJK(r rune) bool {
	return r >= 0x4e00 && r <= 0x9fa5
}

func hasLatinLetter(token string) bool {
	for _, r := range token {
		if r < utf8.RuneSelf && unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
