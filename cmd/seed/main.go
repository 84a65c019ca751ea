package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/wechatpad/internal/config"
	"github.com/wechatpad/internal/db"
	"github.com/wechatpad/internal/service"
	"github.com/wechatpad/internal/store"
)

type sampleDocument struct {
	title    string
	content  string
	status   string
	revision string
}

var sampleDocuments = []sampleDocument{
	{
		title:    "公众号排版入门",
		content:  "## 为什么要排版\n\n好的排版让读者更愿意读完一篇文章。本文介绍标题、段落与引用的常见用法。\n\n> 留白是排版中最容易被忽略的部分。",
		status:   db.DocumentStatusPublished,
		revision: "\n\n## 小结\n\n先把结构理清，再考虑样式。",
	},
	{
		title:   "本周技术周报",
		content: "1. Go 1.24 发布\n2. SQLite 的 WAL 模式实践\n3. 图片压缩与 WebP 兼容性\n\n本周重点关注本地存储的可靠性。",
		status:  db.DocumentStatusDraft,
	},
	{
		title:    "Writing in English and 中文",
		content:  "Mixed language articles are common. 中英文混排时，字数统计按中文字符与英文单词分别计算。",
		status:   db.DocumentStatusDraft,
		revision: "\n\nThe preview strips markdown before truncating.",
	},
	{
		title:   "去年的活动回顾",
		content: "活动已经结束，这篇文章仅作归档保存。",
		status:  db.DocumentStatusArchived,
	},
}

type seedSummary struct {
	Documents int
	Versions  int
}

// seed 写入示例文档与版本，已有文档时跳过，reset 为 true 时先清空文档与版本。
func seed(ctx context.Context, source db.Source, reset bool, logger *slog.Logger) (seedSummary, error) {
	var summary seedSummary
	adapter, err := source.Acquire(ctx)
	if err != nil {
		return summary, err
	}

	if reset {
		if err := store.Clear[db.DocumentVersion](ctx, adapter, db.CollectionVersions); err != nil {
			return summary, err
		}
		if err := store.Clear[db.Document](ctx, adapter, db.CollectionDocuments); err != nil {
			return summary, err
		}
	}

	count, err := store.Count(ctx, adapter, db.CollectionDocuments)
	if err != nil {
		return summary, err
	}
	if count > 0 {
		logger.Info("documents already exist, skipping", "count", count)
		return summary, nil
	}

	documents := service.NewDocumentService(source, logger)
	versions := service.NewVersionService(source, logger)
	for _, sample := range sampleDocuments {
		title, content, status := sample.title, sample.content, sample.status
		doc, err := documents.Create(ctx, service.DocumentInput{Title: &title, Content: &content, Status: &status})
		if err != nil {
			return summary, fmt.Errorf("create %q: %w", sample.title, err)
		}
		summary.Documents++

		if _, err := versions.CreateSnapshot(ctx, doc.ID, "初始版本"); err != nil {
			return summary, fmt.Errorf("snapshot %q: %w", sample.title, err)
		}
		summary.Versions++

		if sample.revision == "" {
			continue
		}
		revised := content + sample.revision
		if _, err := documents.Update(ctx, doc.ID, service.DocumentInput{Content: &revised}); err != nil {
			return summary, fmt.Errorf("revise %q: %w", sample.title, err)
		}
		if _, err := versions.CreateAutoVersion(ctx, doc.ID, service.Snapshot{Title: title, Content: revised}); err != nil {
			return summary, fmt.Errorf("auto version %q: %w", sample.title, err)
		}
		summary.Versions++
	}
	return summary, nil
}

// 示例数据生成器
func main() {
	namespace := flag.String("namespace", "", "namespace to seed, defaults to DEFAULT_NAMESPACE")
	reset := flag.Bool("reset", false, "remove existing documents and versions first")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *namespace == "" {
		*namespace = cfg.DefaultNamespace
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	provider := db.NewProvider(db.Options{Dir: cfg.DataDir, Logger: logger}, *namespace)
	defer provider.Close()

	summary, err := seed(context.Background(), provider, *reset, logger)
	if err != nil {
		log.Fatalf("failed to seed data: %v", err)
	}
	fmt.Printf("示例数据生成完成: %d 篇文档, %d 个版本\n", summary.Documents, summary.Versions)
}
