package runsink

import (
	"context"
	"errors"

	"mediachain/internal/chain"
)

// Persister is implemented by every sink in this package.
type Persister interface {
	Persist(ctx context.Context, record chain.Record) error
}

// Multi persists a record to every sink, continuing past failures.
type Multi []Persister

func (m Multi) Persist(ctx context.Context, record chain.Record) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Persist(ctx, record); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
