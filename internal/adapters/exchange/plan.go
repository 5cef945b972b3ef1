package exchange

import (
	"context"
	"fmt"

	"ratecore/pkg/domain"
)

// ImportPlan is the ordered log of pending appends produced by
// ParseDocument. A cursor tracks how far Apply has progressed so a
// partially applied batch can be inspected and resumed.
type ImportPlan struct {
	productID string
	pending   []domain.Step
	cursor    int
}

// ProductID returns the product the plan appends to.
func (p *ImportPlan) ProductID() string { return p.productID }

// Pending returns a copy of the full ordered append log.
func (p *ImportPlan) Pending() []domain.Step {
	return append([]domain.Step(nil), p.pending...)
}

// Remaining returns the suffix of the log not yet applied.
func (p *ImportPlan) Remaining() []domain.Step {
	return append([]domain.Step(nil), p.pending[p.cursor:]...)
}

// Cursor reports how many pending steps have been committed.
func (p *ImportPlan) Cursor() int { return p.cursor }

// Empty reports whether the plan has nothing to append.
func (p *ImportPlan) Empty() bool { return len(p.pending) == 0 }

// Apply commits the pending appends as a sequential ladder of individual
// transactions, one per step, preserving file order. The first failure stops
// the ladder; the cursor marks the committed prefix and Remaining() supports
// a resume. This mirrors the historical write behavior.
func (p *ImportPlan) Apply(ctx context.Context, store domain.PersistentStore) error {
	for p.cursor < len(p.pending) {
		step := p.pending[p.cursor]
		if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			_, err := tx.CreateStep(step)
			return err
		}); err != nil {
			return fmt.Errorf("apply import step %d of %d: %w", p.cursor+1, len(p.pending), err)
		}
		p.cursor++
	}
	return nil
}

// ApplyAtomic commits every pending append in a single transaction. Either
// the whole batch lands or none of it does.
func (p *ImportPlan) ApplyAtomic(ctx context.Context, store domain.PersistentStore) error {
	if p.cursor == len(p.pending) {
		return nil
	}
	if p.cursor > 0 {
		return fmt.Errorf("plan partially applied at cursor %d; use Apply to resume", p.cursor)
	}
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		for _, step := range p.pending {
			if _, err := tx.CreateStep(step); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return fmt.Errorf("apply import batch: %w", err)
	}
	p.cursor = len(p.pending)
	return nil
}
