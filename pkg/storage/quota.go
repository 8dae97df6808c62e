package storage

import (
	"context"
	"sync"
)

// QuotaGuard enforces per-namespace size ceilings before any bytes are
// written. Checks for a namespace are serialized behind one mutex, with an
// optimistic reservation counter for writes still in flight, so two
// concurrent saves cannot both squeeze under the same ceiling.
type QuotaGuard struct {
	catalog  *CatalogReader
	ceilings map[Namespace]int64

	mu       sync.Mutex
	reserved map[Namespace]int64
}

// NewQuotaGuard creates a quota guard. A ceiling of zero means the
// namespace is unlimited.
func NewQuotaGuard(catalog *CatalogReader, ceilings map[Namespace]int64) *QuotaGuard {
	if ceilings == nil {
		ceilings = make(map[Namespace]int64)
	}
	return &QuotaGuard{
		catalog:  catalog,
		ceilings: ceilings,
		reserved: make(map[Namespace]int64),
	}
}

// Ceiling returns the configured ceiling for a namespace (0 = unlimited).
func (qg *QuotaGuard) Ceiling(ns Namespace) int64 {
	return qg.ceilings[ns]
}

// Reserve checks that incoming bytes fit under the namespace ceiling and
// reserves them against concurrent checks. On success the caller must call
// Release once the write has completed (whether or not it succeeded, since
// a completed write is counted by the catalog and a failed one occupies
// nothing).
func (qg *QuotaGuard) Reserve(ctx context.Context, ns Namespace, incoming int64) error {
	ceiling := qg.Ceiling(ns)
	if ceiling <= 0 {
		return nil
	}

	qg.mu.Lock()
	defer qg.mu.Unlock()

	stats, err := qg.catalog.Stats(ctx, ns)
	if err != nil {
		return err
	}

	projected := stats.TotalBytes + qg.reserved[ns] + incoming
	if projected > ceiling {
		return NewError(KindStorageFull, "namespace ceiling would be exceeded", nil).
			WithDetail("namespace", string(ns)).
			WithDetail("ceiling_bytes", ceiling).
			WithDetail("current_bytes", stats.TotalBytes).
			WithDetail("reserved_bytes", qg.reserved[ns]).
			WithDetail("incoming_bytes", incoming)
	}

	qg.reserved[ns] += incoming
	return nil
}

// Release returns a reservation made by Reserve.
func (qg *QuotaGuard) Release(ns Namespace, n int64) {
	if qg.Ceiling(ns) <= 0 {
		return
	}
	qg.mu.Lock()
	defer qg.mu.Unlock()
	qg.reserved[ns] -= n
	if qg.reserved[ns] < 0 {
		qg.reserved[ns] = 0
	}
}
