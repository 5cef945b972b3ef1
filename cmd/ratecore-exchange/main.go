// Command ratecore-exchange exports and imports pricing step workbooks
// against the configured persistent store.
//
// Usage:
//
//	ratecore-exchange -product <id> -export steps.csv
//	ratecore-exchange -product <id> -import steps.csv -coverages coverages.json [-atomic]
//	ratecore-exchange -list-products
//
// Storage selection follows the RATECORE_STORAGE_* environment variables.
// The coverages file holds a JSON array of {id, name, coverage_code}.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"ratecore/internal/adapters/exchange"
	"ratecore/internal/core"
	"ratecore/pkg/domain"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ratecore-exchange", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		productID     = fs.String("product", "", "product id to operate on")
		exportPath    = fs.String("export", "", "write the product's step workbook to this path")
		importPath    = fs.String("import", "", "import a step workbook from this path")
		coveragesPath = fs.String("coverages", "", "JSON file with the coverage catalog (required for -import)")
		atomic        = fs.Bool("atomic", false, "apply the import as a single transaction instead of the sequential ladder")
		listProducts  = fs.Bool("list-products", false, "list known products and exit")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	store, err := core.OpenPersistentStore(core.NewDefaultRulesEngine())
	if err != nil {
		fmt.Fprintf(stderr, "open store: %v\n", err)
		return 1
	}

	if *listProducts {
		for _, product := range store.ListProducts() {
			fmt.Fprintf(stdout, "%s\t%s\n", product.ID, product.Name)
		}
		return 0
	}

	if *productID == "" {
		fmt.Fprintln(stderr, "-product is required")
		fs.Usage()
		return 2
	}
	product, ok := store.GetProduct(*productID)
	if !ok {
		fmt.Fprintf(stderr, "product %s not found\n", *productID)
		return 1
	}

	switch {
	case *exportPath != "":
		return runExport(stdout, stderr, store, product, *exportPath)
	case *importPath != "":
		return runImport(stdout, stderr, store, product, *importPath, *coveragesPath, *atomic)
	default:
		fmt.Fprintln(stderr, "one of -export or -import is required")
		fs.Usage()
		return 2
	}
}

func runExport(stdout, stderr io.Writer, store domain.PersistentStore, product domain.Product, path string) int {
	doc, err := exchange.ExportDocument(exchange.ExportMeta{
		ProductName: product.Name,
		GeneratedAt: time.Now().UTC(),
	}, store.ListSteps(product.ID))
	if err != nil {
		fmt.Fprintf(stderr, "export: %v\n", err)
		return 1
	}
	if err := os.WriteFile(path, doc, 0o644); err != nil {
		fmt.Fprintf(stderr, "write %s: %v\n", path, err)
		return 1
	}
	fmt.Fprintf(stdout, "exported %d steps to %s\n", len(store.ListSteps(product.ID)), path)
	return 0
}

func runImport(stdout, stderr io.Writer, store domain.PersistentStore, product domain.Product, path, coveragesPath string, atomic bool) int {
	if coveragesPath == "" {
		fmt.Fprintln(stderr, "-coverages is required for -import")
		return 2
	}
	coverages, err := loadCoverages(coveragesPath)
	if err != nil {
		fmt.Fprintf(stderr, "load coverages: %v\n", err)
		return 1
	}
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(stderr, "read %s: %v\n", path, err)
		return 1
	}

	plan, err := exchange.ParseDocument(data, product.ID, coverages, store.ListSteps(product.ID))
	if err != nil {
		var batch *exchange.BatchError
		if errors.As(err, &batch) {
			fmt.Fprintf(stderr, "%v\n", batch)
			return 1
		}
		fmt.Fprintf(stderr, "parse: %v\n", err)
		return 1
	}
	if plan.Empty() {
		fmt.Fprintln(stdout, "nothing to import")
		return 0
	}

	ctx := context.Background()
	if atomic {
		err = plan.ApplyAtomic(ctx, store)
	} else {
		err = plan.Apply(ctx, store)
	}
	if err != nil {
		fmt.Fprintf(stderr, "import: %v (%d of %d steps committed)\n", err, plan.Cursor(), len(plan.Pending()))
		return 1
	}
	fmt.Fprintf(stdout, "imported %d steps\n", plan.Cursor())
	return 0
}

func loadCoverages(path string) ([]domain.Coverage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var coverages []domain.Coverage
	if err := json.Unmarshal(data, &coverages); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return coverages, nil
}
