package db

import (
	"context"
	"strings"
	"testing"
)

func TestDatabaseNameIsStablePerNamespace(t *testing.T) {
	if DatabaseName("Alice") != DatabaseName(" alice ") {
		t.Fatalf("expected namespace to be normalized")
	}
	if DatabaseName("alice") == DatabaseName("bob") {
		t.Fatalf("expected different namespaces to produce different names")
	}
	if DatabaseName("") != DatabaseName(DefaultNamespace) {
		t.Fatalf("expected empty namespace to map to default")
	}
	if name := DatabaseName("alice"); !strings.HasPrefix(name, "wechatpad-") || strings.Contains(name, "alice") {
		t.Fatalf("unexpected database name %s", name)
	}
}

func TestProviderResetSwitchesDatabase(t *testing.T) {
	ctx := context.Background()
	provider := NewProvider(Options{Dir: t.TempDir()}, "")
	defer provider.Close()

	first, err := provider.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	again, _ := provider.Acquire(ctx)
	if first != again {
		t.Fatalf("expected the same adapter until reset")
	}
	if first.Name() != DatabaseName(DefaultNamespace) {
		t.Fatalf("unexpected database %s", first.Name())
	}

	if err := provider.Reset("alice"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if first.IsAvailable() {
		t.Fatalf("expected previous adapter to be closed")
	}
	if provider.Namespace() != "alice" {
		t.Fatalf("expected namespace alice, got %s", provider.Namespace())
	}

	second, err := provider.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire after reset: %v", err)
	}
	if second == first || second.Name() != DatabaseName("alice") {
		t.Fatalf("expected a fresh adapter for alice")
	}

	provider.Reset("")
	if provider.Namespace() != DefaultNamespace {
		t.Fatalf("expected reset to default namespace")
	}
}

func TestRegistryAccounts(t *testing.T) {
	ctx := context.Background()
	registry, err := OpenRegistry("", true)
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}
	defer registry.Close()

	if err := registry.EnsureAccount(ctx, "editor", "secret"); err != nil {
		t.Fatalf("ensure account: %v", err)
	}
	if err := registry.EnsureAccount(ctx, "editor", "other"); err != nil {
		t.Fatalf("ensure existing account: %v", err)
	}

	account, err := registry.Find(ctx, "editor")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if account.PasswordHash == "secret" {
		t.Fatalf("expected password to be hashed")
	}

	if _, err := registry.Find(ctx, "missing"); err != ErrAccountNotFound {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}
