package handler

import (
	"log/slog"

	"github.com/wechatpad/internal/autosave"
	"github.com/wechatpad/internal/db"
	"github.com/wechatpad/internal/service"
	"github.com/wechatpad/internal/transfer"
)

// Options 是构造 API 时的可选依赖与参数。
type Options struct {
	// Accounts 为空时登录接口不可用，始终使用默认命名空间。
	Accounts        *service.AccountService
	Images          service.ImageOptions
	QuotaLimit      int64
	PersistenceMode string
	Autosave        autosave.RegistryOptions
	Logger          *slog.Logger
}

// API bundles shared dependencies for HTTP handlers.
type API struct {
	source    db.Source
	documents *service.DocumentService
	versions  *service.VersionService
	images    *service.ImageService
	settings  *service.SettingService
	quota     *service.QuotaService
	accounts  *service.AccountService
	transfer  *transfer.Service
	editors   *autosave.Registry
	logger    *slog.Logger
}

// NewAPI constructs a handler set with shared services.
func NewAPI(source db.Source, opts Options) *API {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	quota := service.NewQuotaService(source, opts.QuotaLimit, logger)
	imageOpts := opts.Images
	if imageOpts.Quota == nil {
		imageOpts.Quota = quota
	}
	documents := service.NewDocumentService(source, logger)
	versions := service.NewVersionService(source, logger)
	settings := service.NewSettingService(source)

	a := &API{
		source:    source,
		documents: documents,
		versions:  versions,
		images:    service.NewImageService(source, imageOpts, logger),
		settings:  settings,
		quota:     quota,
		accounts:  opts.Accounts,
		logger:    logger,
	}
	a.transfer = transfer.NewService(source, transfer.Options{
		Quota:     quota,
		Namespace: a.namespace,
		Logger:    logger,
	})

	saver := &autosave.StoreSaver{
		Documents: documents,
		Versions:  versions,
		Modes:     settings,
		Mode:      opts.PersistenceMode,
		Logger:    logger,
	}
	registryOpts := opts.Autosave
	if registryOpts.Logger == nil {
		registryOpts.Logger = logger
	}
	a.editors = autosave.NewRegistry(saver, registryOpts)
	return a
}

// Close 写入所有编辑会话中未保存的内容。
func (a *API) Close() {
	a.editors.CloseAll()
}

func (a *API) namespace() string {
	if a.accounts != nil {
		return a.accounts.Namespace()
	}
	return db.DefaultNamespace
}
