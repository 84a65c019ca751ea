package handler

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/wechatpad/internal/locale"
	"github.com/wechatpad/internal/service"
)

const sessionUserKey = "username"

type loginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// Login 校验本地账号并切换到该账号的数据库。
func (a *API) Login(c *gin.Context) {
	if a.accounts == nil {
		respondError(c, http.StatusNotFound, a.say(c, locale.AccountsDisabled))
		return
	}
	var payload loginRequest
	if err := c.ShouldBind(&payload); err != nil {
		respondError(c, http.StatusBadRequest, a.say(c, locale.CredentialsMissing))
		return
	}

	// 切换数据库前写入旧命名空间中的编辑会话
	a.editors.CloseAll()
	account, err := a.accounts.Login(c.Request.Context(), payload.Username, payload.Password)
	if err != nil {
		if service.Classify(err) == service.KindValidation {
			respondError(c, http.StatusUnauthorized, a.say(c, locale.CredentialsInvalid))
			return
		}
		a.fail(c, err)
		return
	}

	session := sessions.Default(c)
	session.Set(sessionUserKey, account.Username)
	if err := session.Save(); err != nil {
		respondError(c, http.StatusInternalServerError, a.say(c, locale.SessionSaveFailed))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"username":  account.Username,
		"namespace": a.accounts.Namespace(),
	})
}

// Logout 清除会话并切回默认数据库。
func (a *API) Logout(c *gin.Context) {
	a.editors.CloseAll()
	if a.accounts != nil {
		if err := a.accounts.Logout(c.Request.Context()); err != nil {
			a.fail(c, err)
			return
		}
	}

	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		a.logger.Warn("clear session failed", "error", err)
	}
	c.JSON(http.StatusOK, gin.H{"namespace": a.namespace()})
}

// SessionStatus 返回当前登录用户与命名空间。
func (a *API) SessionStatus(c *gin.Context) {
	username, _ := sessions.Default(c).Get(sessionUserKey).(string)
	c.JSON(http.StatusOK, gin.H{
		"username":  username,
		"namespace": a.namespace(),
	})
}
