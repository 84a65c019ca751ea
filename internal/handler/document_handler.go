package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wechatpad/internal/locale"
	"github.com/wechatpad/internal/service"
	"github.com/wechatpad/internal/store"
)

// ListDocuments 返回分页的文档列表，支持搜索、状态过滤与排序。
func (a *API) ListDocuments(c *gin.Context) {
	filter := service.DocumentFilter{
		Search:    c.Query("search"),
		Status:    c.Query("status"),
		SortBy:    c.Query("sortBy"),
		Direction: store.Direction(c.DefaultQuery("direction", string(store.Desc))),
		Page:      queryInt(c, "page", 1),
		PerPage:   queryInt(c, "perPage", queryInt(c, "limit", 10)),
	}

	result, err := a.documents.List(c.Request.Context(), filter)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetDocument 获取单篇文档
func (a *API) GetDocument(c *gin.Context) {
	doc, err := a.documents.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"document": doc})
}

// CreateDocument 创建新文档
func (a *API) CreateDocument(c *gin.Context) {
	var input service.DocumentInput
	if !a.bindJSON(c, &input) {
		return
	}

	doc, err := a.documents.Create(c.Request.Context(), input)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":  a.say(c, locale.DocumentCreated),
		"document": doc,
	})
}

// UpdateDocument 部分更新文档，未提供的字段保持不变。
func (a *API) UpdateDocument(c *gin.Context) {
	var input service.DocumentInput
	if !a.bindJSON(c, &input) {
		return
	}

	doc, err := a.documents.Update(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  a.say(c, locale.DocumentUpdated),
		"document": doc,
	})
}

// DeleteDocument 删除文档及其全部版本。
func (a *API) DeleteDocument(c *gin.Context) {
	result, err := a.documents.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (a *API) DuplicateDocument(c *gin.Context) {
	doc, err := a.documents.Duplicate(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"document": doc})
}

// SaveCurrentContent 保存编辑器当前内容，documentId 为空时新建文档。
func (a *API) SaveCurrentContent(c *gin.Context) {
	var input service.SaveContentInput
	if !a.bindJSON(c, &input) {
		return
	}

	doc, err := a.documents.SaveCurrentContent(c.Request.Context(), input)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"document": doc})
}

// RebuildMetadata 为缺少元数据的旧文档补算字数与阅读时间。
func (a *API) RebuildMetadata(c *gin.Context) {
	result, err := a.documents.BatchUpdateMetadata(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
