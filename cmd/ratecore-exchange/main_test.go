package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ratecore/internal/core"
	"ratecore/internal/infra/persistence/sqlite"
	"ratecore/pkg/domain"
)

func seedSQLite(t *testing.T, path string) domain.Product {
	t.Helper()
	store, err := sqlite.NewStore(path, core.NewDefaultRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	var product domain.Product
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		product, err = tx.CreateProduct(domain.Product{Name: "Auto"})
		if err != nil {
			return err
		}
		value := 100.0
		_, err = tx.CreateStep(domain.Step{ProductID: product.ID, Kind: domain.StepFactor, Order: 1, Name: "Base Rate", Coverages: []string{"Collision"}, Value: &value})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return product
}

func TestRunExportImportCycle(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "ratecore.db")
	t.Setenv("RATECORE_STORAGE_DRIVER", "sqlite")
	t.Setenv("RATECORE_SQLITE_PATH", dbPath)

	product := seedSQLite(t, dbPath)

	workbook := filepath.Join(dir, "steps.csv")
	var stdout, stderr bytes.Buffer
	if code := run([]string{"-product", product.ID, "-export", workbook}, &stdout, &stderr); code != 0 {
		t.Fatalf("export failed (%d): %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "exported") {
		t.Fatalf("unexpected output: %s", stdout.String())
	}

	coverages := filepath.Join(dir, "coverages.json")
	payload, _ := json.Marshal([]domain.Coverage{{ID: "1", Name: "Collision", CoverageCode: "COLL"}})
	if err := os.WriteFile(coverages, payload, 0o644); err != nil {
		t.Fatalf("write coverages: %v", err)
	}

	// re-importing our own export is idempotent
	stdout.Reset()
	stderr.Reset()
	if code := run([]string{"-product", product.ID, "-import", workbook, "-coverages", coverages, "-atomic"}, &stdout, &stderr); code != 0 {
		t.Fatalf("import failed (%d): %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "nothing to import") {
		t.Fatalf("expected idempotent import, got: %s", stdout.String())
	}
}

func TestRunFlagValidation(t *testing.T) {
	t.Setenv("RATECORE_STORAGE_DRIVER", "memory")
	var stdout, stderr bytes.Buffer
	if code := run(nil, &stdout, &stderr); code != 2 {
		t.Fatalf("expected usage error, got %d", code)
	}
	if code := run([]string{"-product", "missing", "-export", "x.csv"}, &stdout, &stderr); code != 1 {
		t.Fatalf("expected unknown product exit, got %d", code)
	}
	if code := run([]string{"-list-products"}, &stdout, &stderr); code != 0 {
		t.Fatalf("list-products should succeed, got %d", code)
	}
}
