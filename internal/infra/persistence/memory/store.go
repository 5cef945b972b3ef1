// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"ratecore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Product aliases domain.Product for in-memory persistence operations.
	Product = domain.Product
	// Step aliases domain.Step.
	Step = domain.Step
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
	// PersistentStore aliases domain.PersistentStore abstraction.
	PersistentStore = domain.PersistentStore
)

type memoryState struct {
	products map[string]Product
	steps    map[string]Step
	// versions holds the per-product steps-collection version, bumped on
	// every committed step mutation. Reorders use it as an optimistic guard.
	versions map[string]uint64
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Products map[string]Product `json:"products"`
	Steps    map[string]Step    `json:"steps"`
	Versions map[string]uint64  `json:"versions"`
}

func newMemoryState() memoryState {
	return memoryState{
		products: make(map[string]Product),
		steps:    make(map[string]Step),
		versions: make(map[string]uint64),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Products: make(map[string]Product, len(state.products)),
		Steps:    make(map[string]Step, len(state.steps)),
		Versions: make(map[string]uint64, len(state.versions)),
	}
	for k, v := range state.products {
		s.Products[k] = v
	}
	for k, v := range state.steps {
		s.Steps[k] = cloneStep(v)
	}
	for k, v := range state.versions {
		s.Versions[k] = v
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Products {
		state.products[k] = v
	}
	for k, v := range s.Steps {
		state.steps[k] = cloneStep(v)
	}
	for k, v := range s.Versions {
		state.versions[k] = v
	}
	return state
}

// migrateSnapshot repairs snapshots written by older builds: nil buckets,
// steps orphaned from deleted products, and missing version counters.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Products == nil {
		snapshot.Products = map[string]Product{}
	}
	if snapshot.Steps == nil {
		snapshot.Steps = map[string]Step{}
	}
	if snapshot.Versions == nil {
		snapshot.Versions = map[string]uint64{}
	}
	for id, step := range snapshot.Steps {
		if step.ProductID == "" {
			delete(snapshot.Steps, id)
			continue
		}
		if _, ok := snapshot.Products[step.ProductID]; !ok {
			delete(snapshot.Steps, id)
			continue
		}
		snapshot.Steps[id] = step
	}
	for _, step := range snapshot.Steps {
		if _, ok := snapshot.Versions[step.ProductID]; !ok {
			snapshot.Versions[step.ProductID] = 1
		}
	}
	return snapshot
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.products {
		cloned.products[k] = v
	}
	for k, v := range s.steps {
		cloned.steps[k] = cloneStep(v)
	}
	for k, v := range s.versions {
		cloned.versions[k] = v
	}
	return cloned
}

func cloneStep(s Step) Step {
	cp := s
	if len(s.Coverages) != 0 {
		cp.Coverages = append([]string(nil), s.Coverages...)
	}
	cp.Applicability = s.Applicability.Clone()
	if s.Value != nil {
		v := *s.Value
		cp.Value = &v
	}
	return cp
}

func stepsForProduct(state *memoryState, productID string) []Step {
	out := make([]Step, 0, len(state.steps))
	for _, step := range state.steps {
		if step.ProductID == productID {
			out = append(out, cloneStep(step))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// SetNowFunc overrides the time provider, primarily for tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
	touched map[string]struct{} // product IDs whose step collection changed
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) transactionView {
	return transactionView{state: state}
}

// ListProducts returns all products within the transaction snapshot.
func (v transactionView) ListProducts() []Product {
	out := make([]Product, 0, len(v.state.products))
	for _, p := range v.state.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListSteps returns the product's steps in ascending order.
func (v transactionView) ListSteps(productID string) []Step {
	return stepsForProduct(v.state, productID)
}

// ListAllSteps returns every step across products, grouped by product and
// ordered within each group.
func (v transactionView) ListAllSteps() []Step {
	out := make([]Step, 0, len(v.state.steps))
	for _, step := range v.state.steps {
		out = append(out, cloneStep(step))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductID != out[j].ProductID {
			return out[i].ProductID < out[j].ProductID
		}
		return out[i].Order < out[j].Order
	})
	return out
}

// FindProduct retrieves a product by ID from the snapshot.
func (v transactionView) FindProduct(id string) (Product, bool) {
	p, ok := v.state.products[id]
	return p, ok
}

// FindStep retrieves a step by ID from the snapshot.
func (v transactionView) FindStep(id string) (Step, bool) {
	s, ok := v.state.steps[id]
	if !ok {
		return Step{}, false
	}
	return cloneStep(s), true
}

// RunInTransaction executes fn within a transactional copy of the store state.
// Rule evaluation runs against the mutated copy; blocking violations discard
// the copy and surface a RuleViolationError, leaving committed state intact.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store:   s,
		state:   s.state.clone(),
		now:     s.nowFn(),
		touched: make(map[string]struct{}),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	for productID := range tx.touched {
		tx.state.versions[productID]++
	}
	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

func (tx *transaction) touchSteps(productID string) {
	tx.touched[productID] = struct{}{}
}

// Snapshot exposes the transactional state as a read-only view.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindProduct retrieves a product within the transaction.
func (tx *transaction) FindProduct(id string) (Product, bool) {
	p, ok := tx.state.products[id]
	return p, ok
}

// FindStep retrieves a step within the transaction.
func (tx *transaction) FindStep(id string) (Step, bool) {
	s, ok := tx.state.steps[id]
	if !ok {
		return Step{}, false
	}
	return cloneStep(s), true
}

// ListSteps returns the product's steps in ascending order within the transaction.
func (tx *transaction) ListSteps(productID string) []Step {
	return stepsForProduct(&tx.state, productID)
}

// StepsVersion reports the committed step collection version visible to the
// transaction snapshot. Pending bumps from this transaction are not included.
func (tx *transaction) StepsVersion(productID string) uint64 {
	return tx.state.versions[productID]
}

// CreateProduct stores a new product.
func (tx *transaction) CreateProduct(p Product) (Product, error) {
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	if _, exists := tx.state.products[p.ID]; exists {
		return Product{}, fmt.Errorf("product %q already exists", p.ID)
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.products[p.ID] = p
	tx.recordChange(Change{Entity: domain.EntityProduct, Action: domain.ActionCreate, After: p})
	return p, nil
}

// UpdateProduct mutates a product using the provided mutator function.
func (tx *transaction) UpdateProduct(id string, mutator func(*Product) error) (Product, error) {
	current, ok := tx.state.products[id]
	if !ok {
		return Product{}, fmt.Errorf("product %q not found", id)
	}
	before := current
	if err := mutator(&current); err != nil {
		return Product{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.products[id] = current
	tx.recordChange(Change{Entity: domain.EntityProduct, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteProduct removes a product and is rejected while steps still reference it.
func (tx *transaction) DeleteProduct(id string) error {
	current, ok := tx.state.products[id]
	if !ok {
		return fmt.Errorf("product %q not found", id)
	}
	for _, step := range tx.state.steps {
		if step.ProductID == id {
			return fmt.Errorf("product %q still referenced by step %q", id, step.ID)
		}
	}
	delete(tx.state.products, id)
	delete(tx.state.versions, id)
	tx.recordChange(Change{Entity: domain.EntityProduct, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateStep stores a new step. The caller assigns Order; rules enforce its
// uniqueness within the product at commit.
func (tx *transaction) CreateStep(step Step) (Step, error) {
	if step.ProductID == "" {
		return Step{}, fmt.Errorf("step requires a product id")
	}
	if _, ok := tx.state.products[step.ProductID]; !ok {
		return Step{}, fmt.Errorf("product %q not found", step.ProductID)
	}
	if step.ID == "" {
		step.ID = tx.store.newID()
	}
	if _, exists := tx.state.steps[step.ID]; exists {
		return Step{}, fmt.Errorf("step %q already exists", step.ID)
	}
	step.CreatedAt = tx.now
	step.UpdatedAt = tx.now
	tx.state.steps[step.ID] = cloneStep(step)
	tx.touchSteps(step.ProductID)
	tx.recordChange(Change{Entity: domain.EntityStep, Action: domain.ActionCreate, After: cloneStep(step)})
	return cloneStep(step), nil
}

// UpdateStep mutates a step using the provided mutator function.
func (tx *transaction) UpdateStep(id string, mutator func(*Step) error) (Step, error) {
	current, ok := tx.state.steps[id]
	if !ok {
		return Step{}, fmt.Errorf("step %q not found", id)
	}
	before := cloneStep(current)
	if err := mutator(&current); err != nil {
		return Step{}, err
	}
	current.ID = id
	current.ProductID = before.ProductID
	current.UpdatedAt = tx.now
	tx.state.steps[id] = cloneStep(current)
	tx.touchSteps(current.ProductID)
	tx.recordChange(Change{Entity: domain.EntityStep, Action: domain.ActionUpdate, Before: before, After: cloneStep(current)})
	return cloneStep(current), nil
}

// DeleteStep removes a step immediately and permanently.
func (tx *transaction) DeleteStep(id string) error {
	current, ok := tx.state.steps[id]
	if !ok {
		return fmt.Errorf("step %q not found", id)
	}
	delete(tx.state.steps, id)
	tx.touchSteps(current.ProductID)
	tx.recordChange(Change{Entity: domain.EntityStep, Action: domain.ActionDelete, Before: cloneStep(current)})
	return nil
}

// GetProduct retrieves a committed product by ID.
func (s *Store) GetProduct(id string) (Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.products[id]
	return p, ok
}

// ListProducts returns all committed products.
func (s *Store) ListProducts() []Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Product, 0, len(s.state.products))
	for _, p := range s.state.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetStep retrieves a committed step by ID.
func (s *Store) GetStep(id string) (Step, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	step, ok := s.state.steps[id]
	if !ok {
		return Step{}, false
	}
	return cloneStep(step), true
}

// ListSteps returns the product's committed steps in ascending order.
func (s *Store) ListSteps(productID string) []Step {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return stepsForProduct(&s.state, productID)
}

// StepsVersion reports the current version of the product's step collection.
// A product with no committed step mutations reports zero.
func (s *Store) StepsVersion(productID string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.versions[productID]
}
