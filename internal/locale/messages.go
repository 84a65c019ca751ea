package locale

// Message 是同一条提示的中英文版本。
type Message struct {
	English string
	Chinese string
}

// In 返回指定语言的文本，缺少译文时使用另一种语言。
func (m Message) In(language string) string {
	if Normalize(language) == English {
		if m.English != "" {
			return m.English
		}
		return m.Chinese
	}
	if m.Chinese != "" {
		return m.Chinese
	}
	return m.English
}

// 接口返回的提示文本。
var (
	DocumentCreated    = Message{"Document created", "文档创建成功"}
	DocumentUpdated    = Message{"Document updated", "文档更新成功"}
	ImageMissing       = Message{"No image was uploaded", "未找到上传的图片"}
	ImageUploaded      = Message{"Upload succeeded", "上传成功"}
	ImageDeleted       = Message{"Image deleted", "图片已删除"}
	SettingsSaved      = Message{"Settings saved", "设置已保存"}
	InvalidBody        = Message{"Invalid request body", "请求数据格式错误"}
	ImportRejected     = Message{"The import file did not pass validation", "导入文件未通过校验"}
	AccountsDisabled   = Message{"Accounts are not enabled", "未启用本地账号"}
	CredentialsMissing = Message{"Please enter username and password", "请输入用户名和密码"}
	CredentialsInvalid = Message{"Invalid username or password", "用户名或密码错误"}
	SessionSaveFailed  = Message{"Failed to save session", "会话保存失败"}
)

// 错误类别对应的提示，键与 service.Kind 的取值一致。
var errorMessages = map[string]Message{
	"not_found":           {"The requested item does not exist", "请求的内容不存在"},
	"validation":          {"The request is invalid", "请求内容不合法"},
	"conflict":            {"The document was changed elsewhere, reload before saving", "文档已在其他地方被修改，请刷新后再保存"},
	"quota_exceeded":      {"Not enough local storage space", "本地存储空间不足"},
	"storage_unavailable": {"Local storage is not available", "本地存储不可用"},
	"storage":             {"Local storage operation failed", "本地存储操作失败"},
}

// ErrorMessage 返回错误类别的提示，未知类别按存储失败处理。
func ErrorMessage(kind, language string) string {
	message, ok := errorMessages[kind]
	if !ok {
		message = errorMessages["storage"]
	}
	return message.In(language)
}
