package store

import (
	"context"

	"github.com/roach88/billsync/internal/ir"
)

// WatchProductsWithPurchases streams the presentation view. The current view
// is sent first, then a fresh view after every committed write. Bursts of
// writes may coalesce into one emission.
//
// The channel is closed when ctx is cancelled. A failed re-query is logged
// and skipped.
func (s *Store) WatchProductsWithPurchases(ctx context.Context) <-chan []ir.ProductWithPurchases {
	out := make(chan []ir.ProductWithPurchases)
	signal := make(chan struct{}, 1)
	signal <- struct{}{} // initial emission

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = signal
	s.mu.Unlock()

	go func() {
		defer close(out)
		defer func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case <-signal:
			}

			view, err := s.ProductsWithPurchases(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Error("watch products with purchases", "error", err)
				continue
			}

			select {
			case <-ctx.Done():
				return
			case out <- view:
			}
		}
	}()

	return out
}

// notify wakes every watcher without blocking. The buffer of 1 coalesces
// multiple signals.
func (s *Store) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, signal := range s.watchers {
		select {
		case signal <- struct{}{}:
		default:
		}
	}
}
