package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// CounterRepository allocates monotonically increasing sequence numbers, one
// counter per ID prefix. Allocation is a single atomic upsert-increment so
// concurrent callers never observe the same value.
type CounterRepository struct {
	db *sqlx.DB
}

// NewCounterRepository constructs the repository.
func NewCounterRepository(db *sqlx.DB) *CounterRepository {
	return &CounterRepository{db: db}
}

// Next increments and returns the sequence for the given prefix. Sequences
// start at 1 and only ever grow; freed values are never reused.
func (r *CounterRepository) Next(ctx context.Context, prefix string) (int64, error) {
	const query = `INSERT INTO id_counters (prefix, seq) VALUES ($1, 1)
        ON CONFLICT (prefix) DO UPDATE SET seq = id_counters.seq + 1
        RETURNING seq`
	var seq int64
	if err := r.db.GetContext(ctx, &seq, query, prefix); err != nil {
		return 0, fmt.Errorf("increment counter %s: %w", prefix, err)
	}
	return seq, nil
}
