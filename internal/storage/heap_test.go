package storage

import (
	"path/filepath"
	"testing"

	"github.com/oursql/oursql/internal/errs"
)

func newTestHeap(t *testing.T) *HeapFile {
	t.Helper()
	pager, err := NewPager(filepath.Join(t.TempDir(), "heap.db"))
	if err != nil {
		t.Fatalf("NewPager failed: %v", err)
	}
	t.Cleanup(func() { pager.Close() })
	return NewHeapFile(pager)
}

func TestHeapFileInsertGet(t *testing.T) {
	h := newTestHeap(t)

	rid, err := h.Insert(map[string]any{"id": float64(1), "name": "Alice"})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	row, err := h.Get(rid)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if row["name"] != "Alice" {
		t.Errorf("expected name Alice, got %v", row["name"])
	}
}

func TestHeapFileDeleteThenGetNotFound(t *testing.T) {
	h := newTestHeap(t)

	rid, err := h.Insert(map[string]any{"id": float64(1)})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := h.Delete(rid); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := h.Get(rid); !errs.Of(err, errs.KindNotFound) {
		t.Errorf("expected NotFound after delete, got %v", err)
	}
}

func TestHeapFileUpdateInPlace(t *testing.T) {
	h := newTestHeap(t)

	rid, err := h.Insert(map[string]any{"id": float64(1), "name": "Bob"})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := h.Update(rid, map[string]any{"id": float64(1), "name": "B"}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	row, err := h.Get(rid)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if row["name"] != "B" {
		t.Errorf("expected name B, got %v", row["name"])
	}
}

func TestHeapFileUpdateTooLarge(t *testing.T) {
	h := newTestHeap(t)

	rid, err := h.Insert(map[string]any{"id": float64(1), "name": "B"})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	err = h.Update(rid, map[string]any{"id": float64(1), "name": "a very much longer name than before"})
	if !errs.Of(err, errs.KindRowTooLarge) {
		t.Errorf("expected RowTooLarge, got %v", err)
	}
}

func TestHeapFileScanSkipsTombstones(t *testing.T) {
	h := newTestHeap(t)

	var rids []RID
	for i := 0; i < 5; i++ {
		rid, err := h.Insert(map[string]any{"id": float64(i)})
		if err != nil {
			t.Fatalf("Insert %d failed: %v", i, err)
		}
		rids = append(rids, rid)
	}
	if err := h.Delete(rids[1]); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := h.Delete(rids[3]); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	var seen []float64
	err := h.Scan(func(rid RID, row map[string]any) error {
		seen = append(seen, row["id"].(float64))
		return nil
	})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(seen) != 3 {
		t.Fatalf("expected 3 live rows, got %d", len(seen))
	}
}

func TestHeapFileInsertAcrossPages(t *testing.T) {
	h := newTestHeap(t)

	big := make([]byte, 500)
	for i := range big {
		big[i] = 'x'
	}
	count := 0
	for i := 0; i < 50; i++ {
		if _, err := h.Insert(map[string]any{"id": float64(i), "blob": string(big)}); err != nil {
			t.Fatalf("Insert %d failed: %v", i, err)
		}
		count++
	}

	if h.pager.PageCount() < 2 {
		t.Errorf("expected inserts to span multiple pages, got %d pages", h.pager.PageCount())
	}

	seen := 0
	err := h.Scan(func(RID, map[string]any) error {
		seen++
		return nil
	})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if seen != count {
		t.Errorf("expected %d rows, saw %d", count, seen)
	}
}
