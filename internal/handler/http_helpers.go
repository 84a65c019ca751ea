package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wechatpad/internal/locale"
	"github.com/wechatpad/internal/service"
)

func statusForKind(kind service.Kind) int {
	switch kind {
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindConflict:
		return http.StatusConflict
	case service.KindQuota:
		return http.StatusInsufficientStorage
	case service.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

// fail 按错误类别返回状态码与本地化提示。4xx 附带原始原因，5xx 只写日志。
func (a *API) fail(c *gin.Context, err error) {
	kind := service.Classify(err)
	status := statusForKind(kind)
	body := gin.H{
		"error": locale.ErrorMessage(string(kind), a.language(c)),
		"kind":  kind,
	}
	if status < http.StatusInternalServerError {
		body["detail"] = err.Error()
	} else {
		a.logger.Error("request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"kind", kind,
			"error", err,
		)
	}
	c.AbortWithStatusJSON(status, body)
}

func (a *API) say(c *gin.Context, message locale.Message) string {
	return message.In(a.language(c))
}

func (a *API) bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, http.StatusBadRequest, a.say(c, locale.InvalidBody))
		return false
	}
	return true
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func queryBool(c *gin.Context, key string, fallback bool) bool {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}

func queryTime(c *gin.Context, key string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, raw, time.UTC)
	if err != nil {
		return nil, service.ValidationError(err)
	}
	return &t, nil
}

// queryList 同时接受重复参数与逗号分隔的值。
func queryList(c *gin.Context, key string) []string {
	var out []string
	for _, raw := range c.QueryArray(key) {
		for _, part := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}
