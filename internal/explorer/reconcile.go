package explorer

import (
	"fmt"

	"leadboard/internal/core"
)

// Reconciler patches cached buckets after a remote write was acknowledged.
// It never moves a record to a different bucket.
type Reconciler struct {
	cache *Cache
}

func NewReconciler(cache *Cache) *Reconciler {
	return &Reconciler{cache: cache}
}

// ApplyCreate appends a created record to its bucket, creating a
// one-element bucket when the leaf was never fetched.
func (r *Reconciler) ApplyCreate(m core.LeadMetric) error {
	return r.cache.update(KeyOf(m), func(old []core.LeadMetric, _ bool) ([]core.LeadMetric, error) {
		next := make([]core.LeadMetric, len(old), len(old)+1)
		copy(next, old)
		return append(next, m), nil
	})
}

// ApplyEdit replaces the first record with m's id in bucket k, keeping its
// position. k is the key of the record as it was before the edit.
func (r *Reconciler) ApplyEdit(k Key, m core.LeadMetric) error {
	return r.cache.update(k, func(old []core.LeadMetric, ok bool) ([]core.LeadMetric, error) {
		if !ok {
			return nil, fmt.Errorf("%w: bucket %s not cached for metric %d", ErrReconcile, k, m.ID)
		}
		for i := range old {
			if old[i].ID != m.ID {
				continue
			}
			next := make([]core.LeadMetric, len(old))
			copy(next, old)
			// keep the bucket's triple even if the payload re-sent another one
			m.WeekID, m.SourceID, m.CategoryID = k.Week(), k.Source(), k.Category()
			next[i] = m
			return next, nil
		}
		return nil, fmt.Errorf("%w: metric %d not found in bucket %s", ErrReconcile, m.ID, k)
	})
}
