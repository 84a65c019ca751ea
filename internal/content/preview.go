package content

import (
	"bytes"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// PreviewLength 是预览摘要的最大字符数（含省略号）。
const PreviewLength = 200

var (
	previewRenderer = goldmark.New(goldmark.WithExtensions(extension.GFM))
	previewPolicy   = bluemonday.StrictPolicy()

	blockBoundaryPattern = regexp.MustCompile(`</(?:p|h[1-6]|li|blockquote|pre|tr|td|th)>|<(?:br|hr)\s*/?>`)
)

// Preview 将 Markdown 渲染为纯文本并截取前 200 个字符。
func Preview(markdown string) string {
	return truncate(PlainText(markdown), PreviewLength)
}

// PlainText 渲染 Markdown 后剥离所有标签，返回折叠空白的纯文本。
// 渲染失败时退回正则剥离。
func PlainText(markdown string) string {
	if strings.TrimSpace(markdown) == "" {
		return ""
	}

	withoutImages := imagePattern.ReplaceAllString(markdown, "")
	var buf bytes.Buffer
	if err := previewRenderer.Convert([]byte(withoutImages), &buf); err != nil {
		return StripMarkdown(markdown)
	}

	// 块级标签之后补空格，避免段落文字粘连
	rendered := blockBoundaryPattern.ReplaceAllString(buf.String(), "$0 ")
	text := html.UnescapeString(previewPolicy.Sanitize(rendered))
	text = spacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

func truncate(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:limit-1])) + "…"
}
