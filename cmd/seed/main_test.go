package main

import (
	"context"
	"log/slog"
	"testing"

	"github.com/wechatpad/internal/db"
	"github.com/wechatpad/internal/store"
)

func TestSeedCreatesSampleDocuments(t *testing.T) {
	adapter, err := db.Open(context.Background(), db.Options{Memory: true, Name: "seed"})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	defer adapter.Close()
	ctx := context.Background()

	summary, err := seed(ctx, adapter, false, slog.Default())
	if err != nil {
		t.Fatalf("seed returned error: %v", err)
	}
	if summary.Documents != len(sampleDocuments) {
		t.Fatalf("expected %d documents, got %d", len(sampleDocuments), summary.Documents)
	}
	if summary.Versions != 6 {
		t.Fatalf("expected 6 versions, got %d", summary.Versions)
	}

	archived, err := store.CountByIndex(ctx, adapter, db.CollectionDocuments, "status", db.DocumentStatusArchived)
	if err != nil {
		t.Fatalf("CountByIndex returned error: %v", err)
	}
	if archived != 1 {
		t.Fatalf("expected one archived document, got %d", archived)
	}

	again, err := seed(ctx, adapter, false, slog.Default())
	if err != nil || again.Documents != 0 {
		t.Fatalf("expected second run to skip, got %+v, %v", again, err)
	}

	reseeded, err := seed(ctx, adapter, true, slog.Default())
	if err != nil || reseeded.Documents != len(sampleDocuments) {
		t.Fatalf("expected reset run to reseed, got %+v, %v", reseeded, err)
	}
	total, _ := store.Count(ctx, adapter, db.CollectionVersions)
	if total != 6 {
		t.Fatalf("expected versions to be cleared before reseeding, got %d", total)
	}
}
