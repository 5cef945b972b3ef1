package domain

import (
	"context"
	"errors"
)

// ErrStaleVersion is returned when a reorder commit is based on an outdated
// steps-collection version, indicating a concurrent editor changed the
// sequence since the caller loaded it.
var ErrStaleVersion = errors.New("step collection version is stale")

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateProduct(Product) (Product, error)
	UpdateProduct(id string, mutator func(*Product) error) (Product, error)
	DeleteProduct(id string) error
	CreateStep(Step) (Step, error)
	UpdateStep(id string, mutator func(*Step) error) (Step, error)
	DeleteStep(id string) error
	FindProduct(id string) (Product, bool)
	FindStep(id string) (Step, bool)
	ListSteps(productID string) []Step
	// StepsVersion reports the committed version of the product's step
	// collection as seen by this transaction's snapshot.
	StepsVersion(productID string) uint64
}

// TransactionView provides read-only access to snapshot data for rules and
// previews.
type TransactionView interface {
	ListProducts() []Product
	ListSteps(productID string) []Step
	FindProduct(id string) (Product, bool)
	FindStep(id string) (Step, bool)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers. ListSteps
// returns the sequence in ascending order. StepsVersion reports the
// monotonically increasing version of a product's step collection, bumped on
// every committed step mutation; reorders use it as an optimistic guard.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetProduct(id string) (Product, bool)
	ListProducts() []Product
	GetStep(id string) (Step, bool)
	ListSteps(productID string) []Step
	StepsVersion(productID string) uint64
}
