// Package storage - PageBTree component
//
// EDUCATIONAL NOTES:
// ------------------
// PageBTree is a disk-resident B+Tree: every node, including the root,
// lives in exactly one page. Keys are 64-bit signed integers; leaf values
// are RIDs pointing into a HeapFile; internal nodes hold child page ids.
// Leaves are linked left-to-right so a range scan only needs one descent
// to find the starting leaf and can then walk sideways.
//
// Node layout (little-endian), for every page except the meta page:
//
//	offset 0: uint8  isLeaf (0/1)
//	offset 1: uint8  reserved
//	offset 2: uint16 numKeys
//	offset 4: uint32 nextLeaf (leaf only; 0 = none)
//	offset 8: numKeys * int64 keys
//	then, leaf:     numKeys * RID (uint32 pageID + uint16 slotID, 6 bytes)
//	      internal: (numKeys+1) * uint32 child page ids
//
// Page 0 of the index file is reserved as a meta page holding the root
// page id and the branching factor t.
//
// Splits and merges are implemented as iterative descent that records the
// path from root to leaf, then unwinds that path to propagate structural
// changes upward. This avoids recursion depth tied to tree height and is
// the natural shape for a paged store, where every step is "read a page,
// maybe write a page".

package storage

import (
	"encoding/binary"
	"sort"

	"github.com/oursql/oursql/internal/errs"
)

// DefaultOrder is the branching factor used when NewPageBTree is given a
// non-positive order, or when a meta page records none.
const DefaultOrder = 4

const (
	metaPageID = 0

	nodeHeaderSize = 8 // isLeaf(1) + reserved(1) + numKeys(2) + nextLeaf(4)
	keySize        = 8
	ridSize        = 6 // pageID(4) + slotID(2)
	childSize      = 4

	minInt64 = -1 << 63
)

// bnode is the in-memory representation of one B+Tree node.
type bnode struct {
	pageID   uint32
	isLeaf   bool
	keys     []int64
	rids     []RID    // leaf only, len(rids) == len(keys)
	children []uint32 // internal only, len(children) == len(keys)+1
	nextLeaf uint32   // leaf only, 0 = none
}

func decodeNode(pageID uint32, page []byte) *bnode {
	n := &bnode{
		pageID:   pageID,
		isLeaf:   page[0] == 1,
		nextLeaf: binary.LittleEndian.Uint32(page[4:8]),
	}
	numKeys := int(binary.LittleEndian.Uint16(page[2:4]))
	off := nodeHeaderSize
	n.keys = make([]int64, numKeys)
	for i := 0; i < numKeys; i++ {
		n.keys[i] = int64(binary.LittleEndian.Uint64(page[off : off+keySize]))
		off += keySize
	}
	if n.isLeaf {
		n.rids = make([]RID, numKeys)
		for i := 0; i < numKeys; i++ {
			n.rids[i] = RID{
				PageID: binary.LittleEndian.Uint32(page[off : off+4]),
				SlotID: binary.LittleEndian.Uint16(page[off+4 : off+6]),
			}
			off += ridSize
		}
	} else {
		n.children = make([]uint32, numKeys+1)
		for i := 0; i < numKeys+1; i++ {
			n.children[i] = binary.LittleEndian.Uint32(page[off : off+4])
			off += childSize
		}
	}
	return n
}

func (n *bnode) encode() []byte {
	page := make([]byte, PageSize)
	if n.isLeaf {
		page[0] = 1
	}
	binary.LittleEndian.PutUint16(page[2:4], uint16(len(n.keys)))
	binary.LittleEndian.PutUint32(page[4:8], n.nextLeaf)

	off := nodeHeaderSize
	for _, k := range n.keys {
		binary.LittleEndian.PutUint64(page[off:off+keySize], uint64(k))
		off += keySize
	}
	if n.isLeaf {
		for _, r := range n.rids {
			binary.LittleEndian.PutUint32(page[off:off+4], r.PageID)
			binary.LittleEndian.PutUint16(page[off+4:off+6], r.SlotID)
			off += ridSize
		}
	} else {
		for _, c := range n.children {
			binary.LittleEndian.PutUint32(page[off:off+4], c)
			off += childSize
		}
	}
	return page
}

// PageBTree is a disk-resident B+Tree keyed by int64, storing RID values
// in its leaves. Every node is one page of the backing Pager.
type PageBTree struct {
	pager *Pager
	root  uint32
	t     int
}

// NewPageBTree creates a fresh, empty tree: a meta page followed by a
// single empty leaf root.
func NewPageBTree(pager *Pager, t int) (*PageBTree, error) {
	if t <= 0 {
		t = DefaultOrder
	}
	metaID, _, err := pager.AllocatePage()
	if err != nil {
		return nil, err
	}
	if metaID != metaPageID {
		return nil, errs.New(errs.KindIoError, "expected meta page to be page 0, got %d", metaID)
	}

	rootID, _, err := pager.AllocatePage()
	if err != nil {
		return nil, err
	}
	root := &bnode{pageID: rootID, isLeaf: true}
	if err := pager.WritePage(rootID, root.encode()); err != nil {
		return nil, err
	}

	bt := &PageBTree{pager: pager, root: rootID, t: t}
	if err := bt.writeMeta(); err != nil {
		return nil, err
	}
	return bt, nil
}

// LoadPageBTree reopens a tree from an existing index file, reading its
// meta page for the root id and branching factor.
func LoadPageBTree(pager *Pager) (*PageBTree, error) {
	page, err := pager.ReadPage(metaPageID)
	if err != nil {
		return nil, err
	}
	root := binary.LittleEndian.Uint32(page[0:4])
	t := int(binary.LittleEndian.Uint16(page[4:6]))
	if t <= 0 {
		t = DefaultOrder
	}
	return &PageBTree{pager: pager, root: root, t: t}, nil
}

func (bt *PageBTree) writeMeta() error {
	page := make([]byte, PageSize)
	binary.LittleEndian.PutUint32(page[0:4], bt.root)
	binary.LittleEndian.PutUint16(page[4:6], uint16(bt.t))
	return bt.pager.WritePage(metaPageID, page)
}

func (bt *PageBTree) readNode(pageID uint32) (*bnode, error) {
	page, err := bt.pager.ReadPage(pageID)
	if err != nil {
		return nil, err
	}
	return decodeNode(pageID, page), nil
}

func (bt *PageBTree) writeNode(n *bnode) error {
	return bt.pager.WritePage(n.pageID, n.encode())
}

// maxKeys returns 2t-1, the maximum number of keys a persisted node holds.
func (bt *PageBTree) maxKeys() int { return 2*bt.t - 1 }

// minKeys returns t-1, the minimum number of keys a non-root node holds.
func (bt *PageBTree) minKeys() int { return bt.t - 1 }

// childIndex performs the upper-bound search used both by Search's
// internal-node descent and by Insert: the smallest index i such that
// keys[i] > key. Equal keys therefore descend into the child to their
// right, matching the "first key of right is copied up" split convention.
func childIndex(keys []int64, key int64) int {
	return sort.Search(len(keys), func(i int) bool { return keys[i] > key })
}

// Search returns the RID stored under key, or ok=false if key is absent.
func (bt *PageBTree) Search(key int64) (RID, bool, error) {
	pageID := bt.root
	for {
		n, err := bt.readNode(pageID)
		if err != nil {
			return RID{}, false, err
		}
		if n.isLeaf {
			i := sort.Search(len(n.keys), func(i int) bool { return n.keys[i] >= key })
			if i < len(n.keys) && n.keys[i] == key {
				return n.rids[i], true, nil
			}
			return RID{}, false, nil
		}
		pageID = n.children[childIndex(n.keys, key)]
	}
}

// pathFrame records one internal node visited while descending, and the
// child index followed from it, so Insert/Delete can unwind and repair
// ancestors after a split or merge.
type pathFrame struct {
	node     *bnode
	childIdx int
}

// descend walks from the root to the leaf that would contain key,
// recording every internal node visited along the way.
func (bt *PageBTree) descend(key int64) ([]pathFrame, *bnode, error) {
	var path []pathFrame
	pageID := bt.root
	for {
		n, err := bt.readNode(pageID)
		if err != nil {
			return nil, nil, err
		}
		if n.isLeaf {
			return path, n, nil
		}
		ci := childIndex(n.keys, key)
		path = append(path, pathFrame{node: n, childIdx: ci})
		pageID = n.children[ci]
	}
}

// Insert adds key -> rid. Fails with DuplicateKey if key is already
// present.
func (bt *PageBTree) Insert(key int64, rid RID) error {
	path, leaf, err := bt.descend(key)
	if err != nil {
		return err
	}

	i := sort.Search(len(leaf.keys), func(i int) bool { return leaf.keys[i] >= key })
	if i < len(leaf.keys) && leaf.keys[i] == key {
		return errs.New(errs.KindDuplicateKey, "key %d already exists", key)
	}

	leaf.keys = insertInt64(leaf.keys, i, key)
	leaf.rids = insertRID(leaf.rids, i, rid)

	if len(leaf.keys) <= bt.maxKeys() {
		return bt.writeNode(leaf)
	}

	return bt.splitAndPropagate(path, leaf)
}

// splitAndPropagate splits an overflowing node (leaf or internal) and
// walks the recorded path upward, inserting the promoted separator into
// each ancestor and splitting it in turn if it also overflows.
func (bt *PageBTree) splitAndPropagate(path []pathFrame, n *bnode) error {
	sepKey, sibling, err := bt.split(n)
	if err != nil {
		return err
	}

	if len(path) == 0 {
		return bt.newRoot(sepKey, n.pageID, sibling.pageID)
	}

	parent := path[len(path)-1].node
	ci := path[len(path)-1].childIdx

	parent.keys = insertInt64(parent.keys, ci, sepKey)
	parent.children = insertUint32(parent.children, ci+1, sibling.pageID)

	if len(parent.keys) <= bt.maxKeys() {
		return bt.writeNode(parent)
	}
	return bt.splitAndPropagate(path[:len(path)-1], parent)
}

// split splits an overflowing node in place: n keeps the left half under
// its existing page id, a freshly allocated sibling holds the right half.
// It returns the key to promote to the parent and the sibling node
// (already written to disk, as is the mutated left half n).
func (bt *PageBTree) split(n *bnode) (int64, *bnode, error) {
	siblingID, _, err := bt.pager.AllocatePage()
	if err != nil {
		return 0, nil, err
	}

	if n.isLeaf {
		t := bt.t
		m := (2*t + 1) / 2 // ceil(2t/2)
		sibling := &bnode{
			pageID:   siblingID,
			isLeaf:   true,
			keys:     append([]int64(nil), n.keys[m:]...),
			rids:     append([]RID(nil), n.rids[m:]...),
			nextLeaf: n.nextLeaf,
		}
		sepKey := n.keys[m]

		n.keys = n.keys[:m]
		n.rids = n.rids[:m]
		n.nextLeaf = siblingID

		if err := bt.writeNode(n); err != nil {
			return 0, nil, err
		}
		if err := bt.writeNode(sibling); err != nil {
			return 0, nil, err
		}
		return sepKey, sibling, nil
	}

	m := bt.t - 1
	sepKey := n.keys[m]
	sibling := &bnode{
		pageID:   siblingID,
		isLeaf:   false,
		keys:     append([]int64(nil), n.keys[m+1:]...),
		children: append([]uint32(nil), n.children[m+1:]...),
	}
	n.keys = n.keys[:m]
	n.children = n.children[:m+1]

	if err := bt.writeNode(n); err != nil {
		return 0, nil, err
	}
	if err := bt.writeNode(sibling); err != nil {
		return 0, nil, err
	}
	return sepKey, sibling, nil
}

// newRoot allocates a new root page above the split former root, then
// updates the persisted meta page to point to it.
func (bt *PageBTree) newRoot(sepKey int64, leftID, rightID uint32) error {
	rootID, _, err := bt.pager.AllocatePage()
	if err != nil {
		return err
	}
	root := &bnode{
		pageID:   rootID,
		isLeaf:   false,
		keys:     []int64{sepKey},
		children: []uint32{leftID, rightID},
	}
	if err := bt.writeNode(root); err != nil {
		return err
	}
	bt.root = rootID
	return bt.writeMeta()
}

// Delete removes key. Returns NotFound if key is absent.
func (bt *PageBTree) Delete(key int64) error {
	path, leaf, err := bt.descend(key)
	if err != nil {
		return err
	}

	i := sort.Search(len(leaf.keys), func(i int) bool { return leaf.keys[i] >= key })
	if i >= len(leaf.keys) || leaf.keys[i] != key {
		return errs.New(errs.KindNotFound, "key %d not found", key)
	}

	leaf.keys = removeInt64(leaf.keys, i)
	leaf.rids = removeRID(leaf.rids, i)

	if len(path) == 0 {
		// Leaf is the root: underflow is allowed, including becoming empty.
		return bt.writeNode(leaf)
	}
	if len(leaf.keys) >= bt.minKeys() {
		return bt.writeNode(leaf)
	}

	return bt.fixUnderflow(path, leaf)
}

// fixUnderflow repairs a node that has fallen below minKeys by borrowing
// from a sibling (redistribute) or combining with one (merge), recursing
// up the path if the merge causes the parent to underflow in turn.
func (bt *PageBTree) fixUnderflow(path []pathFrame, n *bnode) error {
	parent := path[len(path)-1].node
	ci := path[len(path)-1].childIdx

	var leftSib, rightSib *bnode
	var err error
	if ci > 0 {
		leftSib, err = bt.readNode(parent.children[ci-1])
		if err != nil {
			return err
		}
	}
	if ci < len(parent.children)-1 {
		rightSib, err = bt.readNode(parent.children[ci+1])
		if err != nil {
			return err
		}
	}

	switch {
	case leftSib != nil && len(leftSib.keys) > bt.minKeys():
		bt.redistributeFromLeft(parent, ci, leftSib, n)
		if err := bt.writeNode(leftSib); err != nil {
			return err
		}
		if err := bt.writeNode(n); err != nil {
			return err
		}
		return bt.writeNode(parent)

	case rightSib != nil && len(rightSib.keys) > bt.minKeys():
		bt.redistributeFromRight(parent, ci, n, rightSib)
		if err := bt.writeNode(n); err != nil {
			return err
		}
		if err := bt.writeNode(rightSib); err != nil {
			return err
		}
		return bt.writeNode(parent)

	case leftSib != nil:
		bt.mergeInto(parent, ci-1, leftSib, n)
		if err := bt.writeNode(leftSib); err != nil {
			return err
		}
		return bt.afterParentShrink(path, parent)

	default:
		bt.mergeInto(parent, ci, n, rightSib)
		if err := bt.writeNode(n); err != nil {
			return err
		}
		return bt.afterParentShrink(path, parent)
	}
}

// afterParentShrink persists parent after it has lost one key and one
// child to a merge, collapsing the root if it became empty, or recursing
// the underflow fix one level up otherwise.
func (bt *PageBTree) afterParentShrink(path []pathFrame, parent *bnode) error {
	grandparentPath := path[:len(path)-1]

	if len(grandparentPath) == 0 {
		// parent is the root.
		if !parent.isLeaf && len(parent.keys) == 0 {
			bt.root = parent.children[0]
			return bt.writeMeta()
		}
		return bt.writeNode(parent)
	}

	if len(parent.keys) >= bt.minKeys() {
		return bt.writeNode(parent)
	}
	return bt.fixUnderflow(grandparentPath, parent)
}

// redistributeFromLeft borrows the left sibling's last entry into n
// (n is the child at index ci in parent; left is at ci-1).
func (bt *PageBTree) redistributeFromLeft(parent *bnode, ci int, left, n *bnode) {
	if n.isLeaf {
		lastIdx := len(left.keys) - 1
		borrowKey, borrowRID := left.keys[lastIdx], left.rids[lastIdx]
		left.keys, left.rids = left.keys[:lastIdx], left.rids[:lastIdx]

		n.keys = insertInt64(n.keys, 0, borrowKey)
		n.rids = insertRID(n.rids, 0, borrowRID)
		parent.keys[ci-1] = n.keys[0]
		return
	}

	lastIdx := len(left.keys) - 1
	borrowKey := left.keys[lastIdx]
	borrowChild := left.children[len(left.children)-1]
	left.keys = left.keys[:lastIdx]
	left.children = left.children[:len(left.children)-1]

	n.keys = insertInt64(n.keys, 0, parent.keys[ci-1])
	n.children = insertUint32(n.children, 0, borrowChild)
	parent.keys[ci-1] = borrowKey
}

// redistributeFromRight borrows the right sibling's first entry into n
// (n is the child at index ci in parent; right is at ci+1).
func (bt *PageBTree) redistributeFromRight(parent *bnode, ci int, n, right *bnode) {
	if n.isLeaf {
		borrowKey, borrowRID := right.keys[0], right.rids[0]
		right.keys = removeInt64(right.keys, 0)
		right.rids = removeRID(right.rids, 0)

		n.keys = append(n.keys, borrowKey)
		n.rids = append(n.rids, borrowRID)
		parent.keys[ci] = right.keys[0]
		return
	}

	borrowKey := right.keys[0]
	borrowChild := right.children[0]
	right.keys = removeInt64(right.keys, 0)
	right.children = removeUint32(right.children, 0)

	n.keys = append(n.keys, parent.keys[ci])
	n.children = append(n.children, borrowChild)
	parent.keys[ci] = borrowKey
}

// mergeInto combines left and right into left (left keeps its page id;
// right's page id is abandoned, never reclaimed in this phase), and
// removes the separator between them (parent.keys[sepIdx]) plus the
// now-redundant child slot from parent.
func (bt *PageBTree) mergeInto(parent *bnode, sepIdx int, left, right *bnode) {
	if left.isLeaf {
		left.keys = append(left.keys, right.keys...)
		left.rids = append(left.rids, right.rids...)
		left.nextLeaf = right.nextLeaf
	} else {
		left.keys = append(left.keys, parent.keys[sepIdx])
		left.keys = append(left.keys, right.keys...)
		left.children = append(left.children, right.children...)
	}
	parent.keys = removeInt64(parent.keys, sepIdx)
	parent.children = removeUint32(parent.children, sepIdx+1)
}

// RangeScan returns every (key, RID) pair with lo <= key <= hi (bounds
// applied per the inclusive flags), walking the leaf linked list starting
// from the leaf that would contain the smallest qualifying key. A nil lo
// means "from the beginning"; a nil hi means "to the end".
func (bt *PageBTree) RangeScan(lo, hi *int64, loInclusive, hiInclusive bool) ([]int64, []RID, error) {
	startKey := int64(minInt64)
	if lo != nil {
		startKey = *lo
	}

	_, leaf, err := bt.descend(startKey)
	if err != nil {
		return nil, nil, err
	}

	var keys []int64
	var rids []RID

	inLower := func(k int64) bool {
		if lo == nil {
			return true
		}
		if loInclusive {
			return k >= *lo
		}
		return k > *lo
	}
	inUpper := func(k int64) bool {
		if hi == nil {
			return true
		}
		if hiInclusive {
			return k <= *hi
		}
		return k < *hi
	}

	current := leaf
	for {
		for i, k := range current.keys {
			if !inLower(k) {
				continue
			}
			if !inUpper(k) {
				return keys, rids, nil
			}
			keys = append(keys, k)
			rids = append(rids, current.rids[i])
		}
		if current.nextLeaf == 0 {
			break
		}
		current, err = bt.readNode(current.nextLeaf)
		if err != nil {
			return nil, nil, err
		}
	}

	return keys, rids, nil
}

func insertInt64(s []int64, i int, v int64) []int64 {
	s = append(s, 0)
	copy(s[i+1:], s[i:len(s)-1])
	s[i] = v
	return s
}

func removeInt64(s []int64, i int) []int64 {
	return append(s[:i], s[i+1:]...)
}

func insertRID(s []RID, i int, v RID) []RID {
	s = append(s, RID{})
	copy(s[i+1:], s[i:len(s)-1])
	s[i] = v
	return s
}

func removeRID(s []RID, i int) []RID {
	return append(s[:i], s[i+1:]...)
}

func insertUint32(s []uint32, i int, v uint32) []uint32 {
	s = append(s, 0)
	copy(s[i+1:], s[i:len(s)-1])
	s[i] = v
	return s
}

func removeUint32(s []uint32, i int) []uint32 {
	return append(s[:i], s[i+1:]...)
}
