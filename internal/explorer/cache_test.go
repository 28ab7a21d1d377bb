package explorer

import (
	"errors"
	"testing"

	"leadboard/internal/core"
)

func TestCache_AbsentVersusEmpty(t *testing.T) {
	c := NewCache()
	k := LeafKey(1, 2, 3)

	if _, ok := c.Lookup(k); ok {
		t.Fatal("new cache should have no entry")
	}

	if err := c.Store(k, nil); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	items, ok := c.Lookup(k)
	if !ok {
		t.Fatal("fetched-and-empty bucket should be present")
	}
	if items == nil || len(items) != 0 {
		t.Errorf("bucket = %#v, want empty non-nil slice", items)
	}
}

func TestCache_LookupIsIdempotent(t *testing.T) {
	c := NewCache()
	k := LeafKey(1, 2, 3)
	_ = c.Store(k, []core.LeadMetric{metric(1, 1, 2, 3, 10, 1), metric(2, 1, 2, 3, 20, 2)})

	a, _ := c.Lookup(k)
	b, _ := c.Lookup(k)
	if &a[0] != &b[0] || len(a) != len(b) {
		t.Error("repeated lookups should return the same bucket")
	}
}

func TestCache_StoreCopiesInput(t *testing.T) {
	c := NewCache()
	k := LeafKey(1, 2, 3)
	in := []core.LeadMetric{metric(1, 1, 2, 3, 10, 1)}
	_ = c.Store(k, in)

	in[0].Amount = 999
	got, _ := c.Lookup(k)
	if got[0].Amount != 10 {
		t.Errorf("cached amount = %d, want 10", got[0].Amount)
	}
}

func TestCache_StoreKeepsLocallyCreatedRecords(t *testing.T) {
	c := NewCache()
	k := LeafKey(1, 2, 3)
	r := NewReconciler(c)

	// created while the fetch was in flight
	if err := r.ApplyCreate(metric(7, 1, 2, 3, 70, 7)); err != nil {
		t.Fatal(err)
	}

	_ = c.Store(k, []core.LeadMetric{metric(1, 1, 2, 3, 10, 1)})
	got, _ := c.Lookup(k)
	if len(got) != 2 || got[0].ID != 1 || got[1].ID != 7 {
		t.Errorf("bucket = %+v, want ids [1 7]", got)
	}

	// a server list that already includes the record does not duplicate it
	_ = c.Store(k, []core.LeadMetric{metric(1, 1, 2, 3, 10, 1), metric(7, 1, 2, 3, 70, 7)})
	got, _ = c.Lookup(k)
	if len(got) != 2 {
		t.Errorf("bucket has %d records, want 2", len(got))
	}
}

func TestCache_RejectsNonLeafKeys(t *testing.T) {
	c := NewCache()
	if err := c.Store(SourceKey(1, 2), nil); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Store(source key) error = %v, want ErrInvalidKey", err)
	}
	if c.Len() != 0 {
		t.Error("nothing should be stored")
	}
}

func TestCache_Drop(t *testing.T) {
	c := NewCache()
	_ = c.Store(LeafKey(1, 2, 3), nil)
	_ = c.Store(LeafKey(1, 5, 3), nil)
	_ = c.Store(LeafKey(2, 2, 4), nil)

	n := c.Drop(func(k Key) bool { return k.References(core.EntitySource, 2) })
	if n != 2 {
		t.Errorf("Drop() = %d, want 2", n)
	}
	if !c.Has(LeafKey(1, 5, 3)) {
		t.Error("unrelated bucket should survive")
	}

	c.Reset()
	if c.Len() != 0 {
		t.Errorf("Len() after Reset = %d, want 0", c.Len())
	}
}
