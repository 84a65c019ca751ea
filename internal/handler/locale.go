package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wechatpad/internal/locale"
)

const (
	languageContextKey = "wp.language"
	languageCookieName = "wp_lang"
	languageCookieTTL  = 365 * 24 * time.Hour
)

var countryHeaders = []string{"CF-IPCountry", "X-Geo-Country", "X-Country-Code"}

// LocaleMiddleware 确定提示语言并写入 Content-Language 与 Vary。
func (a *API) LocaleMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		language := a.language(c)
		c.Header("Content-Language", locale.ContentLanguage(language))
		vary := []string{"Accept-Language"}
		if _, err := c.Cookie(languageCookieName); err == nil || c.Query("lang") != "" {
			vary = append(vary, "Cookie")
		}
		appendVaryHeader(c, vary...)
		c.Next()
	}
}

// language 返回本次请求的语言，结果缓存在 gin.Context 中。
func (a *API) language(c *gin.Context) string {
	if cached := c.GetString(languageContextKey); cached != "" {
		return cached
	}
	cookie, _ := c.Cookie(languageCookieName)
	language, explicit := locale.Detect(locale.Signals{
		Query:          c.Query("lang"),
		Cookie:         cookie,
		AcceptLanguage: c.GetHeader("Accept-Language"),
		Country:        countryHeader(c),
	})
	if explicit {
		rememberLanguage(c, language)
	}
	c.Set(languageContextKey, language)
	return language
}

func rememberLanguage(c *gin.Context, language string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     languageCookieName,
		Value:    language,
		Path:     "/",
		HttpOnly: true,
		Secure:   requestIsHTTPS(c),
		MaxAge:   int(languageCookieTTL / time.Second),
		SameSite: http.SameSiteLaxMode,
	})
}

func requestIsHTTPS(c *gin.Context) bool {
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		first, _, _ := strings.Cut(proto, ",")
		return strings.EqualFold(strings.TrimSpace(first), "https")
	}
	return c.Request != nil && c.Request.TLS != nil
}

func countryHeader(c *gin.Context) string {
	for _, header := range countryHeaders {
		first, _, _ := strings.Cut(c.GetHeader(header), ",")
		if value := strings.TrimSpace(first); value != "" {
			return value
		}
	}
	return ""
}

func appendVaryHeader(c *gin.Context, headers ...string) {
	seen := make(map[string]bool)
	var merged []string
	for _, token := range append(strings.Split(c.Writer.Header().Get("Vary"), ","), headers...) {
		token = strings.TrimSpace(token)
		if token == "" || seen[token] {
			continue
		}
		seen[token] = true
		merged = append(merged, token)
	}
	if len(merged) > 0 {
		c.Header("Vary", strings.Join(merged, ", "))
	}
}
