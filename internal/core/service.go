package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ratecore/pkg/domain"
)

// CoverageProvider supplies the coverage list for the surrounding product
// screens. The service fetches once and caches; callers treat the list as
// immutable for the session.
type CoverageProvider interface {
	Coverages(ctx context.Context) ([]Coverage, error)
}

// UpstreamCodeCatalog supplies reference codes offered for factor selection.
// Codes are offered only; the core never validates a step's code against the
// catalog.
type UpstreamCodeCatalog interface {
	UpstreamCodes(ctx context.Context) ([]UpstreamCode, error)
}

// MoveDirection selects which neighbor a step swaps order with.
type MoveDirection string

const (
	MoveUp   MoveDirection = "up"   // toward the front of the sequence
	MoveDown MoveDirection = "down" // toward the tail
)

// FactorInput carries the caller-editable fields of a factor step.
type FactorInput struct {
	Name          string
	Coverages     []string
	Applicability Applicability
	Value         *float64
	Rounding      Rounding
	TableRef      string
	UpstreamCode  string
}

// Service exposes the transactional pricing-step operations. All mutations
// run through the rules engine of the underlying store; blocking violations
// roll the transaction back.
type Service struct {
	store   domain.PersistentStore
	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
	audit   AuditSink
	nowFn   func() time.Time

	coverageProvider CoverageProvider
	codeCatalog      UpstreamCodeCatalog

	coverageOnce sync.Once
	coverages    []Coverage
	coverageErr  error
	codesOnce    sync.Once
	codes        []UpstreamCode
	codesErr     error
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		logger: noopLogger{},
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithCoverageProvider injects the coverage source consulted by Coverages.
func WithCoverageProvider(p CoverageProvider) ServiceOption {
	return func(s *Service) { s.coverageProvider = p }
}

// WithUpstreamCodeCatalog injects the reference code source.
func WithUpstreamCodeCatalog(c UpstreamCodeCatalog) ServiceOption {
	return func(s *Service) { s.codeCatalog = c }
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore {
	return s.store
}

// CreateProduct persists a new product.
func (s *Service) CreateProduct(ctx context.Context, product Product) (Product, Result, error) {
	ctx, done := s.observe(ctx, "create_product")
	var created Product
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateProduct(product)
		return err
	})
	done(err)
	s.recordAudit(ctx, "create_product", created.ID, "", err)
	return created, res, err
}

// DeleteProduct removes a product without steps.
func (s *Service) DeleteProduct(ctx context.Context, id string) (Result, error) {
	ctx, done := s.observe(ctx, "delete_product")
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.DeleteProduct(id)
	})
	done(err)
	s.recordAudit(ctx, "delete_product", id, "", err)
	return res, err
}

// CreateFactorStep appends a factor at the tail of the product's sequence.
func (s *Service) CreateFactorStep(ctx context.Context, productID string, input FactorInput) (Step, Result, error) {
	ctx, done := s.observe(ctx, "create_factor_step")
	var created Step
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateStep(Step{
			ProductID:     productID,
			Kind:          StepFactor,
			Order:         nextOrder(tx, productID),
			Name:          input.Name,
			Coverages:     append([]string(nil), input.Coverages...),
			Applicability: input.Applicability,
			Value:         input.Value,
			Rounding:      input.Rounding,
			TableRef:      input.TableRef,
			UpstreamCode:  input.UpstreamCode,
		})
		return err
	})
	done(err)
	s.recordAudit(ctx, "create_factor_step", productID, created.ID, err)
	return created, res, err
}

// CreateOperandStep appends an operand at the tail of the product's sequence.
func (s *Service) CreateOperandStep(ctx context.Context, productID string, symbol OperandSymbol, applicability Applicability) (Step, Result, error) {
	ctx, done := s.observe(ctx, "create_operand_step")
	var created Step
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateStep(Step{
			ProductID:     productID,
			Kind:          StepOperand,
			Order:         nextOrder(tx, productID),
			Applicability: applicability,
			Symbol:        symbol,
		})
		return err
	})
	done(err)
	s.recordAudit(ctx, "create_operand_step", productID, created.ID, err)
	return created, res, err
}

// UpdateStep mutates a step using the provided mutator. The step's identity
// and product binding are preserved regardless of what the mutator writes.
func (s *Service) UpdateStep(ctx context.Context, id string, mutator func(*Step) error) (Step, Result, error) {
	ctx, done := s.observe(ctx, "update_step")
	var updated Step
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		updated, err = tx.UpdateStep(id, mutator)
		return err
	})
	done(err)
	s.recordAudit(ctx, "update_step", updated.ProductID, id, err)
	return updated, res, err
}

// SetStepValue edits a factor's value in place, the inline grid edit.
func (s *Service) SetStepValue(ctx context.Context, id string, value float64) (Step, Result, error) {
	return s.UpdateStep(ctx, id, func(step *Step) error {
		if step.Kind != StepFactor {
			return fmt.Errorf("step %s is not a factor", id)
		}
		step.Value = &value
		return nil
	})
}

// DeleteStep removes a step immediately and permanently. The remaining
// sequence keeps its order values; no renumbering occurs.
func (s *Service) DeleteStep(ctx context.Context, id string) (Result, error) {
	ctx, done := s.observe(ctx, "delete_step")
	var productID string
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if step, ok := tx.FindStep(id); ok {
			productID = step.ProductID
		}
		return tx.DeleteStep(id)
	})
	done(err)
	s.recordAudit(ctx, "delete_step", productID, id, err)
	return res, err
}

// MoveStep swaps the step's order value with its neighbor in the given
// direction. At the boundary of the sequence the call is a no-op. The
// baseVersion guard rejects the move with domain.ErrStaleVersion when the
// product's step collection changed since the caller loaded it.
func (s *Service) MoveStep(ctx context.Context, id string, direction MoveDirection, baseVersion uint64) ([]Step, Result, error) {
	ctx, done := s.observe(ctx, "move_step")
	var (
		productID string
		after     []Step
	)
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		step, ok := tx.FindStep(id)
		if !ok {
			return fmt.Errorf("step %s not found", id)
		}
		productID = step.ProductID
		if tx.StepsVersion(productID) != baseVersion {
			return domain.ErrStaleVersion
		}
		steps := tx.ListSteps(productID)
		idx := -1
		for i, st := range steps {
			if st.ID == id {
				idx = i
				break
			}
		}
		neighbor := idx - 1
		if direction == MoveDown {
			neighbor = idx + 1
		}
		if neighbor < 0 || neighbor >= len(steps) {
			after = steps
			return nil
		}
		orderA, orderB := steps[idx].Order, steps[neighbor].Order
		if _, err := tx.UpdateStep(steps[idx].ID, func(st *Step) error {
			st.Order = orderB
			return nil
		}); err != nil {
			return err
		}
		if _, err := tx.UpdateStep(steps[neighbor].ID, func(st *Step) error {
			st.Order = orderA
			return nil
		}); err != nil {
			return err
		}
		after = tx.ListSteps(productID)
		return nil
	})
	done(err)
	s.recordAudit(ctx, "move_step", productID, id, err)
	return after, res, err
}

// Steps returns the product's sequence in ascending order.
func (s *Service) Steps(productID string) []Step {
	return s.store.ListSteps(productID)
}

// StepsVersion reports the optimistic-concurrency token callers pass back to
// MoveStep.
func (s *Service) StepsVersion(productID string) uint64 {
	return s.store.StepsVersion(productID)
}

// Products lists all products.
func (s *Service) Products() []Product {
	return s.store.ListProducts()
}

// FilteredSteps returns the product's sequence narrowed to the scenario. A
// zero scenario returns the full sequence.
func (s *Service) FilteredSteps(ctx context.Context, productID string, scenario Scenario) ([]Step, error) {
	ctx, done := s.observe(ctx, "filtered_steps")
	var out []Step
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		out = domain.FilterSteps(view.ListSteps(productID), scenario)
		return nil
	})
	done(err)
	return out, err
}

// PremiumPreview evaluates the product's sequence under the scenario and
// returns the resulting premium. An empty effective sequence yields an
// undefined premium.
func (s *Service) PremiumPreview(ctx context.Context, productID string, scenario Scenario) (Premium, error) {
	ctx, done := s.observe(ctx, "premium_preview")
	var premium Premium
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		steps := domain.FilterSteps(view.ListSteps(productID), scenario)
		premium = domain.EvaluatePremium(steps)
		return nil
	})
	done(err)
	return premium, err
}

// Coverages returns the coverage list from the injected provider, fetching
// at most once per service instance.
func (s *Service) Coverages(ctx context.Context) ([]Coverage, error) {
	if s.coverageProvider == nil {
		return nil, nil
	}
	s.coverageOnce.Do(func() {
		s.coverages, s.coverageErr = s.coverageProvider.Coverages(ctx)
	})
	if s.coverageErr != nil {
		return nil, s.coverageErr
	}
	return append([]Coverage(nil), s.coverages...), nil
}

// UpstreamCodes returns the reference code catalog, fetching at most once.
func (s *Service) UpstreamCodes(ctx context.Context) ([]UpstreamCode, error) {
	if s.codeCatalog == nil {
		return nil, nil
	}
	s.codesOnce.Do(func() {
		s.codes, s.codesErr = s.codeCatalog.UpstreamCodes(ctx)
	})
	if s.codesErr != nil {
		return nil, s.codesErr
	}
	return append([]UpstreamCode(nil), s.codes...), nil
}

func (s *Service) observe(ctx context.Context, operation string) (context.Context, func(error)) {
	start := time.Now()
	var span TraceSpan
	if s.tracer != nil {
		ctx, span = s.tracer.Start(ctx, operation)
	}
	return ctx, func(err error) {
		duration := time.Since(start)
		if s.metrics != nil {
			s.metrics.Observe(ctx, operation, err == nil, duration)
		}
		if span != nil {
			span.End(err)
		}
		if err != nil {
			s.logger.Error("operation failed", "operation", operation, "error", err)
		} else {
			s.logger.Debug("operation completed", "operation", operation, "duration_ms", float64(duration)/float64(time.Millisecond))
		}
	}
}

func (s *Service) recordAudit(ctx context.Context, operation, productID, stepID string, err error) {
	if s.audit == nil {
		return
	}
	entry := AuditEntry{
		Operation:  operation,
		ProductID:  productID,
		StepID:     stepID,
		OccurredAt: s.nowFn(),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}

func nextOrder(tx domain.Transaction, productID string) int {
	steps := tx.ListSteps(productID)
	if len(steps) == 0 {
		return 1
	}
	return steps[len(steps)-1].Order + 1
}
