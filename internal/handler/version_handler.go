package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wechatpad/internal/service"
)

type snapshotRequest struct {
	Reason string `json:"reason"`
}

// ListVersions 返回文档的版本历史，最新的在前。
func (a *API) ListVersions(c *gin.Context) {
	result, err := a.versions.ListVersions(
		c.Request.Context(),
		c.Param("id"),
		queryInt(c, "page", 1),
		queryInt(c, "limit", 20),
	)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// CreateSnapshot 以文档当前内容创建手动版本。请求体可以为空。
func (a *API) CreateSnapshot(c *gin.Context) {
	var payload snapshotRequest
	if c.Request.ContentLength > 0 && !a.bindJSON(c, &payload) {
		return
	}

	result, err := a.versions.CreateSnapshot(c.Request.Context(), c.Param("id"), payload.Reason)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// CreateAutoVersion 记录一次自动保存版本。
func (a *API) CreateAutoVersion(c *gin.Context) {
	var snapshot service.Snapshot
	if !a.bindJSON(c, &snapshot) {
		return
	}

	version, err := a.versions.CreateAutoVersion(c.Request.Context(), c.Param("id"), snapshot)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"version": version})
}

func (a *API) GetVersion(c *gin.Context) {
	version, err := a.versions.GetVersionDetail(c.Request.Context(), c.Param("id"), c.Param("versionId"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"version": version})
}

func (a *API) DeleteVersion(c *gin.Context) {
	result, err := a.versions.DeleteVersion(c.Request.Context(), c.Param("id"), c.Param("versionId"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// RestoreVersion 将文档恢复到指定版本，恢复前会自动备份当前内容。
func (a *API) RestoreVersion(c *gin.Context) {
	result, err := a.versions.RestoreToVersion(c.Request.Context(), c.Param("id"), c.Param("versionId"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
