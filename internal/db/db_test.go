package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func setupTestAdapter(t *testing.T) *Adapter {
	t.Helper()

	adapter, err := Open(context.Background(), Options{Name: "dbtest", Memory: true})
	if err != nil {
		t.Fatalf("failed to open adapter: %v", err)
	}
	t.Cleanup(func() { adapter.Close() })
	return adapter
}

func TestAdapterAvailability(t *testing.T) {
	adapter := NewAdapter(Options{Name: "lazy", Memory: true})
	if adapter.IsAvailable() {
		t.Fatalf("expected adapter to be unavailable before initialize")
	}
	if _, err := adapter.Acquire(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	err := adapter.ExecuteTransaction(context.Background(), []string{CollectionDocuments}, ReadOnly, func(*Tx) error { return nil })
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable from transaction, got %v", err)
	}

	if err := adapter.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if !adapter.IsAvailable() {
		t.Fatalf("expected adapter to be available")
	}
	if err := adapter.Initialize(context.Background()); err != nil {
		t.Fatalf("second initialize should be a no-op: %v", err)
	}

	adapter.Close()
	if adapter.IsAvailable() {
		t.Fatalf("expected adapter to be unavailable after close")
	}
}

func TestTransactionCommitAndRollback(t *testing.T) {
	adapter := setupTestAdapter(t)
	ctx := context.Background()

	insert := func(id string) func(tx *Tx) error {
		return func(tx *Tx) error {
			q, err := tx.Collection(CollectionDocuments, true)
			if err != nil {
				return err
			}
			doc := Document{ID: id, Title: id, Status: DocumentStatusDraft}
			doc.Stamp(tx.Now(), false)
			return q.Create(&doc).Error
		}
	}

	if err := adapter.ExecuteTransaction(ctx, []string{CollectionDocuments}, ReadWrite, insert("kept")); err != nil {
		t.Fatalf("commit: %v", err)
	}

	boom := errors.New("boom")
	err := adapter.ExecuteTransaction(ctx, []string{CollectionDocuments}, ReadWrite, func(tx *Tx) error {
		if err := insert("rolled-back")(tx); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected operation error to be returned as-is, got %v", err)
	}

	err = adapter.ExecuteTransaction(ctx, []string{CollectionDocuments}, ReadWrite, func(tx *Tx) error {
		if err := insert("panicked")(tx); err != nil {
			return err
		}
		panic("engine abort")
	})
	if !errors.Is(err, ErrTransaction) {
		t.Fatalf("expected panic to surface as ErrTransaction, got %v", err)
	}

	var ids []string
	err = adapter.ExecuteTransaction(ctx, []string{CollectionDocuments}, ReadOnly, func(tx *Tx) error {
		q, err := tx.Collection(CollectionDocuments, false)
		if err != nil {
			return err
		}
		return q.Order("id").Pluck("id", &ids).Error
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(ids) != 1 || ids[0] != "kept" {
		t.Fatalf("expected only committed row, got %v", ids)
	}
}

func TestTransactionScopeAndMode(t *testing.T) {
	adapter := setupTestAdapter(t)
	ctx := context.Background()

	err := adapter.ExecuteTransaction(ctx, []string{CollectionDocuments}, ReadOnly, func(tx *Tx) error {
		if _, err := tx.Collection(CollectionVersions, false); !errors.Is(err, ErrOutOfScope) {
			t.Errorf("expected ErrOutOfScope, got %v", err)
		}
		if _, err := tx.Collection(CollectionDocuments, true); !errors.Is(err, ErrReadOnly) {
			t.Errorf("expected ErrReadOnly, got %v", err)
		}
		if err := tx.ExecuteTransaction(ctx, []string{CollectionDocuments}, ReadWrite, func(*Tx) error { return nil }); !errors.Is(err, ErrReadOnly) {
			t.Errorf("expected nested read-write to fail, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = adapter.ExecuteTransaction(ctx, []string{"unknown"}, ReadOnly, func(*Tx) error { return nil })
	if !errors.Is(err, ErrUnknownCollection) {
		t.Fatalf("expected ErrUnknownCollection, got %v", err)
	}
}

func TestSavepointRollsBackOnlyInnerWork(t *testing.T) {
	adapter := setupTestAdapter(t)
	ctx := context.Background()

	err := adapter.ExecuteTransaction(ctx, []string{CollectionDocuments, CollectionVersions}, ReadWrite, func(tx *Tx) error {
		docs, _ := tx.Collection(CollectionDocuments, true)
		doc := Document{ID: "outer", Title: "outer"}
		doc.Stamp(tx.Now(), false)
		if err := docs.Create(&doc).Error; err != nil {
			return err
		}

		inner := tx.Savepoint(func(sp *Tx) error {
			versions, _ := sp.Collection(CollectionVersions, true)
			v := DocumentVersion{ID: "inner", DocumentID: "outer", ChangeType: ChangeTypeAutoSave}
			v.Stamp(sp.Now(), false)
			if err := versions.Create(&v).Error; err != nil {
				return err
			}
			return errors.New("inner failure")
		})
		if inner == nil {
			t.Errorf("expected savepoint error")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("outer transaction should commit: %v", err)
	}

	var docCount, versionCount int64
	adapter.ExecuteTransaction(ctx, Collections(), ReadOnly, func(tx *Tx) error {
		docs, _ := tx.Collection(CollectionDocuments, false)
		docs.Count(&docCount)
		versions, _ := tx.Collection(CollectionVersions, false)
		versions.Count(&versionCount)
		return nil
	})
	if docCount != 1 || versionCount != 0 {
		t.Fatalf("expected 1 document and 0 versions, got %d and %d", docCount, versionCount)
	}
}

func TestFileAdapterWritesSchemaVersion(t *testing.T) {
	dir := t.TempDir()
	adapter, err := Open(context.Background(), Options{Dir: dir, Name: "ondisk"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer adapter.Close()

	if adapter.Path() != filepath.Join(dir, "ondisk.db") {
		t.Fatalf("unexpected path %s", adapter.Path())
	}

	var version int
	adapter.ExecuteTransaction(context.Background(), []string{CollectionDocuments}, ReadOnly, func(tx *Tx) error {
		return tx.db.Raw("PRAGMA user_version").Scan(&version).Error
	})
	if version != SchemaVersion {
		t.Fatalf("expected schema version %d, got %d", SchemaVersion, version)
	}
}

func TestTimestampRoundTrip(t *testing.T) {
	moment := time.Date(2024, 3, 9, 8, 7, 6, 5, time.FixedZone("CST", 8*3600))
	stamp := At(moment)

	raw, err := stamp.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if raw != "2024-03-09T00:07:06.000000005Z" {
		t.Fatalf("unexpected stored form %v", raw)
	}

	var back Timestamp
	if err := back.Scan(raw); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !back.Equal(moment) {
		t.Fatalf("expected %v, got %v", moment, back.Time)
	}
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	adapter := setupTestAdapter(t)

	unlock := adapter.Lock("doc")
	acquired := make(chan struct{})
	go func() {
		release := adapter.Lock("doc")
		close(acquired)
		release()
	}()

	other := adapter.Lock("other")
	other()

	select {
	case <-acquired:
		t.Fatalf("second lock on the same key should wait")
	case <-time.After(20 * time.Millisecond):
	}
	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatalf("lock was not released")
	}
}
