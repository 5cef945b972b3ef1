package core

import (
	"context"
	"path/filepath"
	"testing"

	"ratecore/internal/infra/persistence/memory"
	"ratecore/pkg/domain"
)

func TestOpenPersistentStoreMemory(t *testing.T) {
	t.Setenv("RATECORE_STORAGE_DRIVER", string(StorageMemory))
	store, err := OpenPersistentStore(NewDefaultRulesEngine())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
}

func TestOpenPersistentStoreSQLiteDefault(t *testing.T) {
	t.Setenv("RATECORE_STORAGE_DRIVER", "")
	t.Setenv("RATECORE_SQLITE_PATH", filepath.Join(t.TempDir(), "ratecore.db"))
	store, err := OpenPersistentStore(NewDefaultRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	if _, _, err := NewService(store).CreateProduct(context.Background(), domain.Product{Name: "auto"}); err != nil {
		t.Fatalf("create product: %v", err)
	}
}

func TestOpenPersistentStoreUnknownDriver(t *testing.T) {
	t.Setenv("RATECORE_STORAGE_DRIVER", "nosuch")
	if _, err := OpenPersistentStore(nil); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
