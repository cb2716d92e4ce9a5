package storage

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/oursql/oursql/internal/errs"
)

func newTestBTree(t *testing.T, order int) *PageBTree {
	t.Helper()
	pager, err := NewPager(filepath.Join(t.TempDir(), "pk.idx"))
	if err != nil {
		t.Fatalf("NewPager failed: %v", err)
	}
	t.Cleanup(func() { pager.Close() })
	bt, err := NewPageBTree(pager, order)
	if err != nil {
		t.Fatalf("NewPageBTree failed: %v", err)
	}
	return bt
}

func TestPageBTreeInsertSearch(t *testing.T) {
	bt := newTestBTree(t, DefaultOrder)

	if err := bt.Insert(10, RID{PageID: 1, SlotID: 0}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := bt.Insert(20, RID{PageID: 1, SlotID: 1}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	rid, ok, err := bt.Search(10)
	if err != nil || !ok {
		t.Fatalf("expected to find key 10, ok=%v err=%v", ok, err)
	}
	if rid != (RID{PageID: 1, SlotID: 0}) {
		t.Errorf("unexpected rid for key 10: %+v", rid)
	}

	if _, ok, err := bt.Search(99); err != nil || ok {
		t.Fatalf("expected key 99 absent, ok=%v err=%v", ok, err)
	}
}

func TestPageBTreeDuplicateKey(t *testing.T) {
	bt := newTestBTree(t, DefaultOrder)

	if err := bt.Insert(1, RID{PageID: 1, SlotID: 0}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	err := bt.Insert(1, RID{PageID: 1, SlotID: 1})
	if !errs.Of(err, errs.KindDuplicateKey) {
		t.Errorf("expected DuplicateKey, got %v", err)
	}
}

func TestPageBTreeSplitsAndFindsAll(t *testing.T) {
	bt := newTestBTree(t, 4) // maxKeys = 7

	const n = 500
	for i := 0; i < n; i++ {
		key := int64(i)
		rid := RID{PageID: uint32(i / 10), SlotID: uint16(i % 10)}
		if err := bt.Insert(key, rid); err != nil {
			t.Fatalf("Insert(%d) failed: %v", key, err)
		}
	}

	for i := 0; i < n; i++ {
		rid, ok, err := bt.Search(int64(i))
		if err != nil || !ok {
			t.Fatalf("Search(%d): ok=%v err=%v", i, ok, err)
		}
		want := RID{PageID: uint32(i / 10), SlotID: uint16(i % 10)}
		if rid != want {
			t.Errorf("Search(%d) = %+v, want %+v", i, rid, want)
		}
	}
}

func TestPageBTreeRangeScan(t *testing.T) {
	bt := newTestBTree(t, 4)

	for i := 0; i < 100; i++ {
		if err := bt.Insert(int64(i), RID{PageID: uint32(i)}); err != nil {
			t.Fatalf("Insert(%d) failed: %v", i, err)
		}
	}

	lo, hi := int64(20), int64(29)
	keys, rids, err := bt.RangeScan(&lo, &hi, true, true)
	if err != nil {
		t.Fatalf("RangeScan failed: %v", err)
	}
	if len(keys) != 10 {
		t.Fatalf("expected 10 keys in [20,29], got %d: %v", len(keys), keys)
	}
	for i, k := range keys {
		if k != int64(20+i) {
			t.Errorf("keys[%d] = %d, want %d", i, k, 20+i)
		}
		if rids[i] != (RID{PageID: uint32(k)}) {
			t.Errorf("rids[%d] = %+v, want PageID %d", i, rids[i], k)
		}
	}
}

func TestPageBTreeRangeScanExclusiveBounds(t *testing.T) {
	bt := newTestBTree(t, 4)
	for i := 0; i < 10; i++ {
		if err := bt.Insert(int64(i), RID{PageID: uint32(i)}); err != nil {
			t.Fatalf("Insert(%d) failed: %v", i, err)
		}
	}

	lo, hi := int64(2), int64(7)
	keys, _, err := bt.RangeScan(&lo, &hi, false, false)
	if err != nil {
		t.Fatalf("RangeScan failed: %v", err)
	}
	want := []int64{3, 4, 5, 6}
	if len(keys) != len(want) {
		t.Fatalf("expected %v, got %v", want, keys)
	}
	for i, k := range keys {
		if k != want[i] {
			t.Errorf("keys[%d] = %d, want %d", i, k, want[i])
		}
	}
}

func TestPageBTreeFullScanViaNilBounds(t *testing.T) {
	bt := newTestBTree(t, 4)
	for i := 0; i < 50; i++ {
		if err := bt.Insert(int64(i), RID{PageID: uint32(i)}); err != nil {
			t.Fatalf("Insert(%d) failed: %v", i, err)
		}
	}
	keys, _, err := bt.RangeScan(nil, nil, true, true)
	if err != nil {
		t.Fatalf("RangeScan failed: %v", err)
	}
	if len(keys) != 50 {
		t.Fatalf("expected 50 keys, got %d", len(keys))
	}
	for i, k := range keys {
		if k != int64(i) {
			t.Fatalf("keys out of order at %d: %d", i, k)
		}
	}
}

func TestPageBTreeDeleteThenSearch(t *testing.T) {
	bt := newTestBTree(t, DefaultOrder)

	for i := 0; i < 20; i++ {
		if err := bt.Insert(int64(i), RID{PageID: uint32(i)}); err != nil {
			t.Fatalf("Insert(%d) failed: %v", i, err)
		}
	}

	if err := bt.Delete(10); err != nil {
		t.Fatalf("Delete(10) failed: %v", err)
	}
	if _, ok, err := bt.Search(10); err != nil || ok {
		t.Fatalf("expected key 10 gone after delete, ok=%v err=%v", ok, err)
	}

	err := bt.Delete(10)
	if !errs.Of(err, errs.KindNotFound) {
		t.Errorf("expected NotFound on second delete, got %v", err)
	}

	for i := 0; i < 20; i++ {
		if i == 10 {
			continue
		}
		if _, ok, err := bt.Search(int64(i)); err != nil || !ok {
			t.Fatalf("Search(%d) after unrelated delete: ok=%v err=%v", i, ok, err)
		}
	}
}

func TestPageBTreeDeleteAllDescending(t *testing.T) {
	bt := newTestBTree(t, 4)

	const n = 300
	for i := 0; i < n; i++ {
		if err := bt.Insert(int64(i), RID{PageID: uint32(i)}); err != nil {
			t.Fatalf("Insert(%d) failed: %v", i, err)
		}
	}

	for i := n - 1; i >= 0; i-- {
		if err := bt.Delete(int64(i)); err != nil {
			t.Fatalf("Delete(%d) failed: %v", i, err)
		}
		if _, ok, err := bt.Search(int64(i)); err != nil || ok {
			t.Fatalf("key %d still found after delete", i)
		}
		if i > 0 {
			if _, ok, err := bt.Search(int64(i - 1)); err != nil || !ok {
				t.Fatalf("key %d unexpectedly missing mid-deletion, ok=%v err=%v", i-1, ok, err)
			}
		}
	}

	keys, _, err := bt.RangeScan(nil, nil, true, true)
	if err != nil {
		t.Fatalf("RangeScan on empty tree failed: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("expected empty tree, got %d keys", len(keys))
	}
}

func TestPageBTreeDeleteCausesMergeAndRedistribute(t *testing.T) {
	bt := newTestBTree(t, 4) // t=4: minKeys=3, maxKeys=7

	const n = 100
	for i := 0; i < n; i++ {
		if err := bt.Insert(int64(i), RID{PageID: uint32(i)}); err != nil {
			t.Fatalf("Insert(%d) failed: %v", i, err)
		}
	}

	// delete every third key, forcing a mix of redistribution and merging
	// across leaves and internal nodes.
	var deleted []int64
	for i := 0; i < n; i += 3 {
		if err := bt.Delete(int64(i)); err != nil {
			t.Fatalf("Delete(%d) failed: %v", i, err)
		}
		deleted = append(deleted, int64(i))
	}

	deletedSet := make(map[int64]bool)
	for _, k := range deleted {
		deletedSet[k] = true
	}

	keys, _, err := bt.RangeScan(nil, nil, true, true)
	if err != nil {
		t.Fatalf("RangeScan failed: %v", err)
	}

	var want []int64
	for i := 0; i < n; i++ {
		if !deletedSet[int64(i)] {
			want = append(want, int64(i))
		}
	}
	if len(keys) != len(want) {
		t.Fatalf("expected %d surviving keys, got %d", len(want), len(keys))
	}
	for i, k := range keys {
		if k != want[i] {
			t.Fatalf("mismatch at index %d: got %d, want %d", i, k, want[i])
		}
	}
}

func TestPageBTreeLoadPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pk.idx")
	pager, err := NewPager(path)
	if err != nil {
		t.Fatalf("NewPager failed: %v", err)
	}
	bt, err := NewPageBTree(pager, 4)
	if err != nil {
		t.Fatalf("NewPageBTree failed: %v", err)
	}
	for i := 0; i < 50; i++ {
		if err := bt.Insert(int64(i), RID{PageID: uint32(i)}); err != nil {
			t.Fatalf("Insert(%d) failed: %v", i, err)
		}
	}
	if err := pager.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	pager2, err := NewPager(path)
	if err != nil {
		t.Fatalf("reopen NewPager failed: %v", err)
	}
	defer pager2.Close()
	bt2, err := LoadPageBTree(pager2)
	if err != nil {
		t.Fatalf("LoadPageBTree failed: %v", err)
	}

	for i := 0; i < 50; i++ {
		rid, ok, err := bt2.Search(int64(i))
		if err != nil || !ok {
			t.Fatalf("Search(%d) after reopen: ok=%v err=%v", i, ok, err)
		}
		if rid.PageID != uint32(i) {
			t.Errorf("Search(%d) = %+v after reopen", i, rid)
		}
	}
}

func TestPageBTreeChildIndexDescendsRightOnEquality(t *testing.T) {
	keys := []int64{10, 20, 30}
	cases := []struct {
		key  int64
		want int
	}{
		{5, 0},
		{10, 1}, // equal key descends right
		{15, 1},
		{20, 2},
		{25, 2},
		{30, 3},
		{35, 3},
	}
	for _, c := range cases {
		got := childIndex(keys, c.key)
		if got != c.want {
			t.Errorf(fmt.Sprintf("childIndex(%v, %d) = %d, want %d", keys, c.key, got, c.want))
		}
	}
}
