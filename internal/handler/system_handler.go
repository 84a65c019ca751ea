package handler

import (
	"net/http"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/wechatpad/internal/locale"
	"github.com/wechatpad/internal/store"
)

// HealthCheck 检查当前命名空间的数据库是否可用。
func (a *API) HealthCheck(c *gin.Context) {
	adapter, err := a.source.Acquire(c.Request.Context())
	if err != nil || !adapter.IsAvailable() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "error",
			"message": "database unavailable",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"database":  "up",
		"namespace": a.namespace(),
		"sessions":  a.editors.Len(),
	})
}

// GetSettings 返回全部编辑器设置。
func (a *API) GetSettings(c *gin.Context) {
	settings, err := a.settings.All(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

// UpdateSettings 保存编辑器设置，返回更新后的全部设置。
func (a *API) UpdateSettings(c *gin.Context) {
	var payload map[string]string
	if !a.bindJSON(c, &payload) {
		return
	}

	settings, err := a.settings.Update(c.Request.Context(), payload)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  a.say(c, locale.SettingsSaved),
		"settings": settings,
	})
}

// StorageQuota 返回存储配额估算，无法估算时各项为零。
func (a *API) StorageQuota(c *gin.Context) {
	info := a.quota.CheckStorageQuota(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"quota":     info,
		"usageText": humanize.Bytes(uint64(info.Usage)),
		"quotaText": humanize.Bytes(uint64(info.Quota)),
	})
}

func (a *API) StorageStats(c *gin.Context) {
	adapter, err := a.source.Acquire(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	stats, err := store.CollectStats(c.Request.Context(), adapter)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"stats":     stats,
		"totalText": humanize.Bytes(uint64(stats.TotalBytes)),
	})
}
