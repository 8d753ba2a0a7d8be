package utils

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// IndexedFunc is for ForEachParallel.
type IndexedFunc func(ctx context.Context, i int) error

// ForEachParallel runs f for every index in [0, n) in parallel and waits for all of them.
// A failing index does not cancel the others. Errors are combined in index order.
func ForEachParallel(ctx context.Context, n int, f IndexedFunc) error {
	errs := make([]error, n)

	var wg sync.WaitGroup
	helper := func(i int) {
		defer func() {
			if thePanic := recover(); thePanic != nil {
				errs[i] = errors.Errorf("got panic running index %d in parallel: %v", i, thePanic)
			}
			wg.Done()
		}()
		errs[i] = f(ctx, i)
	}

	for i := 0; i < n; i++ {
		wg.Add(1)
		go helper(i)
	}

	wg.Wait()
	return multierr.Combine(errs...)
}
