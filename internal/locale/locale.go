package locale

import (
	"sort"
	"strconv"
	"strings"
)

// 编辑器支持的提示语言，默认中文。
const (
	Chinese = "zh"
	English = "en"
	Default = Chinese
)

// Normalize 把 zh-CN、en_US 之类的标记归一为 zh 或 en，无法识别时返回空串。
func Normalize(raw string) string {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case trimmed == "":
		return ""
	case strings.HasPrefix(trimmed, "zh"), trimmed == "cn":
		return Chinese
	case strings.HasPrefix(trimmed, "en"):
		return English
	}
	return ""
}

// FromCountry 按地区代码推断语言，CN 以外一律英文。
func FromCountry(code string) string {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	switch trimmed {
	case "":
		return ""
	case "CN":
		return Chinese
	}
	return English
}

// FromAcceptLanguage 取 q 值最高的可支持语言，q 相同时按出现顺序。
func FromAcceptLanguage(header string) string {
	type weighted struct {
		language string
		q        float64
	}
	var candidates []weighted
	for _, part := range strings.Split(header, ",") {
		fields := strings.Split(part, ";")
		language := Normalize(fields[0])
		if language == "" {
			continue
		}
		q := 1.0
		for _, param := range fields[1:] {
			value, ok := strings.CutPrefix(strings.TrimSpace(param), "q=")
			if !ok {
				continue
			}
			if parsed, err := strconv.ParseFloat(value, 64); err == nil {
				q = parsed
			}
		}
		if q <= 0 {
			continue
		}
		candidates = append(candidates, weighted{language: language, q: q})
	}
	if len(candidates) == 0 {
		return ""
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].q > candidates[j].q
	})
	return candidates[0].language
}

// Signals 是请求里能说明语言偏好的线索。
type Signals struct {
	Query          string
	Cookie         string
	AcceptLanguage string
	Country        string
}

// Detect 依次参考 lang 参数、Cookie、Accept-Language 与地区代码。
// explicit 为 true 表示语言来自 lang 参数，调用方应写回 Cookie。
func Detect(s Signals) (language string, explicit bool) {
	if language := Normalize(s.Query); language != "" {
		return language, true
	}
	if language := Normalize(s.Cookie); language != "" {
		return language, false
	}
	if language := FromAcceptLanguage(s.AcceptLanguage); language != "" {
		return language, false
	}
	if language := FromCountry(s.Country); language != "" {
		return language, false
	}
	return Default, false
}

// ContentLanguage 返回响应头 Content-Language 的取值。
func ContentLanguage(language string) string {
	if Normalize(language) == English {
		return "en-US"
	}
	return "zh-CN"
}
