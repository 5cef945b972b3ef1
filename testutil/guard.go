// Package testutil provides reusable testing helpers for enforcing
// architectural boundary invariants across the repository.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// ImportRule pairs a forbidden-import predicate with the reason reported on
// failure.
type ImportRule struct {
	Forbidden func(importPath string) bool
	Reason    string
}

// InternalImports matches any import path reaching into an internal tree.
func InternalImports(path string) bool {
	return strings.Contains(path, "/internal/")
}

// DomainImports matches any import path pointing at the domain package.
func DomainImports(path string) bool {
	return strings.HasSuffix(path, "/pkg/domain") || strings.Contains(path, "/pkg/domain@")
}

// AssertPackageImports parses every non-test .go file in dir (typically "."
// from within the package under test) and fails the test when an import
// violates the rule. Build tags are not evaluated.
func AssertPackageImports(t testing.TB, dir string, rule ImportRule) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir %s: %v", dir, err)
	}
	fset := token.NewFileSet()
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		parsed, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			t.Fatalf("parse %s: %v", name, err)
		}
		for _, imp := range parsed.Imports {
			path := strings.Trim(imp.Path.Value, "\"")
			if rule.Forbidden(path) {
				t.Errorf("%s: forbidden import %s (%s)", name, path, rule.Reason)
			}
		}
	}
}

var goListDeps = func(pattern string) ([]byte, error) {
	return exec.Command("go", "list", "-deps", pattern).CombinedOutput()
}

// AssertTransitiveDeps resolves the full dependency closure of pattern via
// `go list -deps` and fails when any path in the closure violates the rule.
// Unlike AssertPackageImports this also catches indirect coupling.
func AssertTransitiveDeps(t testing.TB, pattern string, rule ImportRule) {
	t.Helper()
	out, err := goListDeps(pattern)
	if err != nil {
		t.Fatalf("go list %s: %v\n%s", pattern, err, out)
	}
	var violations []string
	for _, line := range strings.Split(string(out), "\n") {
		dep := strings.TrimSpace(line)
		if dep == "" {
			continue
		}
		if rule.Forbidden(dep) {
			violations = append(violations, dep)
		}
	}
	if len(violations) > 0 {
		t.Fatalf("forbidden transitive dependency (%s):\n%s", rule.Reason, strings.Join(violations, "\n"))
	}
}
