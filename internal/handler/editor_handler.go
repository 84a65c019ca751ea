package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wechatpad/internal/autosave"
	"github.com/wechatpad/internal/service"
	"gorm.io/datatypes"
)

var errEditorSessionNotFound = fmt.Errorf("editor session: %w", service.ErrNotFound)

type openEditorRequest struct {
	DocumentID        string         `json:"documentId"`
	Title             string         `json:"title"`
	Content           string         `json:"content"`
	TemplateID        string         `json:"templateId"`
	TemplateVariables datatypes.JSON `json:"templateVariables"`
}

type editRequest struct {
	Title             string         `json:"title"`
	Content           string         `json:"content"`
	TemplateID        *string        `json:"templateId"`
	TemplateVariables datatypes.JSON `json:"templateVariables"`
}

// OpenEditorSession 打开自动保存会话。指定 documentId 时从已有文档开始编辑。
func (a *API) OpenEditorSession(c *gin.Context) {
	var payload openEditorRequest
	if c.Request.ContentLength > 0 && !a.bindJSON(c, &payload) {
		return
	}

	opts := autosave.SessionOptions{
		Title:             payload.Title,
		Content:           payload.Content,
		TemplateID:        payload.TemplateID,
		TemplateVariables: payload.TemplateVariables,
	}
	if payload.DocumentID != "" {
		doc, err := a.documents.Get(c.Request.Context(), payload.DocumentID)
		if err != nil {
			a.fail(c, err)
			return
		}
		opts.DocumentID = doc.ID
		opts.Title = doc.Title
		opts.Content = doc.Content
		opts.TemplateID = doc.TemplateID
		opts.TemplateVariables = doc.TemplateVariables
	}

	session := a.editors.Open(opts)
	c.JSON(http.StatusCreated, gin.H{"session": session.Snapshot()})
}

func (a *API) editorSession(c *gin.Context) (*autosave.Session, bool) {
	session, ok := a.editors.Get(c.Param("sid"))
	if !ok {
		a.fail(c, errEditorSessionNotFound)
		return nil, false
	}
	return session, true
}

func (a *API) GetEditorSession(c *gin.Context) {
	session, ok := a.editorSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session.Snapshot()})
}

// EditorEdit 记录一次编辑，写入由会话按防抖规则异步完成。
func (a *API) EditorEdit(c *gin.Context) {
	session, ok := a.editorSession(c)
	if !ok {
		return
	}
	var payload editRequest
	if !a.bindJSON(c, &payload) {
		return
	}

	if payload.TemplateID != nil {
		session.SetTemplate(*payload.TemplateID, payload.TemplateVariables)
	}
	c.JSON(http.StatusOK, gin.H{"session": session.Edit(payload.Title, payload.Content)})
}

// EditorSave 立即保存，等同于编辑器中的手动保存。
func (a *API) EditorSave(c *gin.Context) {
	session, ok := a.editorSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session.Save()})
}

// CloseEditorSession 写入未保存的内容并关闭会话。
func (a *API) CloseEditorSession(c *gin.Context) {
	snapshot, ok := a.editors.Close(c.Param("sid"))
	if !ok {
		a.fail(c, errEditorSessionNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": snapshot})
}
