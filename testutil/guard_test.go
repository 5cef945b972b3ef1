package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInternalImportsPredicate(t *testing.T) {
	if !InternalImports("ratecore/internal/core") {
		t.Fatalf("internal path should match")
	}
	if InternalImports("ratecore/pkg/domain") {
		t.Fatalf("domain path should not match")
	}
}

func TestDomainImportsPredicate(t *testing.T) {
	if !DomainImports("ratecore/pkg/domain") {
		t.Fatalf("domain path should match")
	}
	if DomainImports("ratecore/internal/blob") {
		t.Fatalf("blob path should not match")
	}
}

func TestAssertPackageImportsFlagsViolation(t *testing.T) {
	dir := t.TempDir()
	src := "package fixture\n\nimport _ \"example.com/internal/hidden\"\n"
	if err := os.WriteFile(filepath.Join(dir, "fixture.go"), []byte(src), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	probe := &probeT{TB: t}
	AssertPackageImports(probe, dir, ImportRule{Forbidden: InternalImports, Reason: "fixture boundary"})
	if !probe.failed {
		t.Fatalf("expected violation to be reported")
	}
}

func TestAssertPackageImportsSkipsTestFiles(t *testing.T) {
	dir := t.TempDir()
	src := "package fixture\n\nimport _ \"example.com/internal/hidden\"\n"
	if err := os.WriteFile(filepath.Join(dir, "fixture_test.go"), []byte(src), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	probe := &probeT{TB: t}
	AssertPackageImports(probe, dir, ImportRule{Forbidden: InternalImports, Reason: "fixture boundary"})
	if probe.failed {
		t.Fatalf("test files must not be scanned")
	}
}

func TestAssertTransitiveDepsUsesStubbedList(t *testing.T) {
	old := goListDeps
	goListDeps = func(string) ([]byte, error) {
		return []byte("ratecore/pkg/domain\nratecore/internal/core\n"), nil
	}
	defer func() { goListDeps = old }()

	probe := &probeT{TB: t}
	AssertTransitiveDeps(probe, "./...", ImportRule{Forbidden: InternalImports, Reason: "closure boundary"})
	if !probe.failed {
		t.Fatalf("expected closure violation")
	}
}

// probeT records failures instead of failing the real test.
type probeT struct {
	testing.TB
	failed bool
	last   string
}

func (p *probeT) Helper() {}

func (p *probeT) Errorf(format string, args ...any) {
	p.failed = true
	p.last = format
}

func (p *probeT) Fatalf(format string, args ...any) {
	p.failed = true
	p.last = format
}
