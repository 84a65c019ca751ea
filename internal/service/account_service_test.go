package service

import (
	"context"
	"errors"
	"testing"

	"github.com/wechatpad/internal/db"
)

func setupAccountService(t *testing.T) (*AccountService, *db.Provider) {
	t.Helper()

	registry, err := db.OpenRegistry("", true)
	if err != nil {
		t.Fatalf("failed to open registry: %v", err)
	}
	t.Cleanup(func() { registry.Close() })
	if err := registry.EnsureAccount(context.Background(), "Editor", "s3cret"); err != nil {
		t.Fatalf("failed to create account: %v", err)
	}

	provider := db.NewProvider(db.Options{Dir: t.TempDir()}, "")
	t.Cleanup(func() { provider.Close() })
	return NewAccountService(registry, provider, nil), provider
}

func TestLoginSwitchesNamespace(t *testing.T) {
	svc, provider := setupAccountService(t)
	ctx := context.Background()

	docs := NewDocumentService(provider, nil)
	if _, err := docs.Create(ctx, DocumentInput{Title: strPtr("本地文档")}); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	account, err := svc.Login(ctx, " Editor ", "s3cret")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if account.Username != "Editor" {
		t.Fatalf("unexpected account %s", account.Username)
	}
	if svc.Namespace() != "editor" {
		t.Fatalf("expected namespace editor, got %s", svc.Namespace())
	}

	list, err := docs.List(ctx, DocumentFilter{})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(list.Documents) != 0 {
		t.Fatalf("expected a separate database after login, got %d documents", len(list.Documents))
	}

	if err := svc.Logout(ctx); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}
	if svc.Namespace() != db.DefaultNamespace {
		t.Fatalf("expected default namespace after logout, got %s", svc.Namespace())
	}
	list, _ = docs.List(ctx, DocumentFilter{})
	if len(list.Documents) != 1 {
		t.Fatalf("expected local documents to be visible again, got %d", len(list.Documents))
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, _ := setupAccountService(t)
	ctx := context.Background()

	for _, creds := range [][2]string{{"Editor", "wrong"}, {"nobody", "s3cret"}, {"", "s3cret"}, {"Editor", ""}} {
		if _, err := svc.Login(ctx, creds[0], creds[1]); !errors.Is(err, ErrInvalidLogin) {
			t.Fatalf("expected ErrInvalidLogin for %q, got %v", creds[0], err)
		}
	}
	if svc.Namespace() != db.DefaultNamespace {
		t.Fatalf("expected namespace unchanged, got %s", svc.Namespace())
	}
}
