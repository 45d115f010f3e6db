package catalog

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/whizzbang/audience-builder/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLite(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func mustInsert(t *testing.T, store *SQLiteStore, recs ...domain.ProductRecord) {
	t.Helper()
	for _, r := range recs {
		if err := store.Insert(context.Background(), r); err != nil {
			t.Fatalf("Insert(%s) failed: %v", r.SKU, err)
		}
	}
}

func TestQueryRankingOrder(t *testing.T) {
	store := newTestStore(t)
	mustInsert(t, store,
		rec("sub", "Salted Kettle Chips Multipack", "Snacking", "Crisps"),
		rec("exact", "Kettle Chips", "Snacking", "Crisps"),
		rec("prefix", "Kettle Chips 150g", "Snacking", "Crisps"),
	)

	records, err := store.Query(context.Background(), "Kettle Chips")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}

	// Exact match outranks prefix, which outranks substring.
	if records[0].SKU != "exact" {
		t.Errorf("rank 0 = %s, want exact", records[0].SKU)
	}
	if records[1].SKU != "prefix" {
		t.Errorf("rank 1 = %s, want prefix", records[1].SKU)
	}
	if records[2].SKU != "sub" {
		t.Errorf("rank 2 = %s, want sub", records[2].SKU)
	}
}

func TestQueryStableWithinRank(t *testing.T) {
	store := newTestStore(t)
	mustInsert(t, store,
		rec("p1", "Kettle Chips Sea Salt", "Snacking", "Crisps"),
		rec("p2", "Kettle Chips Vinegar", "Snacking", "Crisps"),
		rec("p3", "Kettle Chips Chilli", "Snacking", "Crisps"),
	)

	records, err := store.Query(context.Background(), "Kettle Chips")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	want := []string{"p1", "p2", "p3"}
	for i, w := range want {
		if records[i].SKU != w {
			t.Errorf("rank %d = %s, want %s (insertion order within equal rank)", i, records[i].SKU, w)
		}
	}
}

func TestQueryLimit(t *testing.T) {
	store := newTestStore(t)
	for i := 0; i < 15; i++ {
		mustInsert(t, store, rec(
			fmt.Sprintf("sku-%02d", i),
			fmt.Sprintf("Kettle Chips Variant %02d", i),
			"Snacking", "Crisps",
		))
	}

	records, err := store.Query(context.Background(), "Kettle Chips")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(records) != MaxResults {
		t.Errorf("got %d records, want %d", len(records), MaxResults)
	}
}

func TestQueryExcludesSentinel(t *testing.T) {
	store := newTestStore(t)
	mustInsert(t, store,
		rec("ok", "Kettle Chips", "Snacking", "Crisps"),
		rec("bad1", "Kettle Chips Promo", SentinelNotInUse, "Crisps"),
		rec("bad2", "Kettle Chips Legacy", "Snacking", SentinelNotInUse),
	)

	records, err := store.Query(context.Background(), "Kettle Chips")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(records) != 1 || records[0].SKU != "ok" {
		t.Errorf("sentinel records not excluded: %+v", records)
	}
}

func TestQueryNotFound(t *testing.T) {
	store := newTestStore(t)
	mustInsert(t, store, rec("1", "Kettle Chips", "Snacking", "Crisps"))

	_, err := store.Query(context.Background(), "Granola")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestInsertUpsertsOnSKU(t *testing.T) {
	store := newTestStore(t)
	mustInsert(t, store, rec("1", "Old Name", "Snacking", "Crisps"))
	mustInsert(t, store, rec("1", "New Name", "Snacking", "Crisps"))

	records, err := store.Query(context.Background(), "New Name")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(records) != 1 || records[0].Name != "New Name" {
		t.Errorf("upsert did not replace record: %+v", records)
	}
}
