// Package storage - HeapFile component
//
// EDUCATIONAL NOTES:
// ------------------
// A HeapFile is a sequence of slotted pages. Each page holds a small
// directory of (offset, length) slots followed by free space, with row
// payloads packed from the tail of the page backward. This is the classic
// "slotted page" layout used by real row stores: the directory gives every
// row a stable position (its slot id) even though the payload bytes can
// move around within the page as rows are inserted, updated, or deleted.
//
// Page layout (little-endian):
//
//	offset 0:  uint16 numSlots
//	offset 2:  uint16 reserved
//	offset 4:  numSlots * slotEntry{offset uint32, length uint32}
//	...        free space
//	tail:      row payloads, growing from the end of the page backward
//
// A slot with offset=0, length=0 is a tombstone: its row has been deleted,
// but the slot id is never reused by a later insert in this phase (see
// DESIGN.md's Open Question resolution).

package storage

import (
	"encoding/binary"
	"encoding/json"

	"github.com/oursql/oursql/internal/errs"
)

const (
	slotHeaderSize = 4 // numSlots (2) + reserved (2)
	slotEntrySize  = 8 // offset (4) + length (4)
)

// RID is a stable row identifier: the page holding the row and the slot
// within that page.
type RID struct {
	PageID uint32
	SlotID uint16
}

type slot struct {
	offset uint32
	length uint32
}

func (s slot) isTombstone() bool {
	return s.offset == 0 && s.length == 0
}

// HeapFile is a slotted-page row store over a Pager.
type HeapFile struct {
	pager *Pager
}

// NewHeapFile opens a HeapFile backed by pager.
func NewHeapFile(pager *Pager) *HeapFile {
	return &HeapFile{pager: pager}
}

func readSlotDirLen(page []byte) uint16 {
	return binary.LittleEndian.Uint16(page[0:2])
}

func writeSlotDirLen(page []byte, n uint16) {
	binary.LittleEndian.PutUint16(page[0:2], n)
}

func slotAt(page []byte, i uint16) slot {
	off := slotHeaderSize + int(i)*slotEntrySize
	return slot{
		offset: binary.LittleEndian.Uint32(page[off : off+4]),
		length: binary.LittleEndian.Uint32(page[off+4 : off+8]),
	}
}

func putSlotAt(page []byte, i uint16, s slot) {
	off := slotHeaderSize + int(i)*slotEntrySize
	binary.LittleEndian.PutUint32(page[off:off+4], s.offset)
	binary.LittleEndian.PutUint32(page[off+4:off+8], s.length)
}

// freeSpace returns the number of bytes available between the end of the
// slot directory and the lowest live payload offset in the page.
func freeSpace(page []byte, numSlots uint16) int {
	dirEnd := slotHeaderSize + int(numSlots)*slotEntrySize
	lowest := PageSize
	for i := uint16(0); i < numSlots; i++ {
		s := slotAt(page, i)
		if s.isTombstone() {
			continue
		}
		if int(s.offset) < lowest {
			lowest = int(s.offset)
		}
	}
	return lowest - dirEnd
}

func serializeRow(row map[string]any) ([]byte, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return nil, errs.Wrap(errs.KindIoError, err, "serialize row")
	}
	return data, nil
}

func deserializeRow(data []byte) (map[string]any, error) {
	row := make(map[string]any)
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, errs.Wrap(errs.KindIoError, err, "deserialize row")
	}
	return row, nil
}

// Insert serializes row, finds the first page with enough free space (or
// allocates a new one), and appends a new slot. Tombstoned slots are never
// reclaimed in this phase: every insert gets a fresh slot id.
func (h *HeapFile) Insert(row map[string]any) (RID, error) {
	payload, err := serializeRow(row)
	if err != nil {
		return RID{}, err
	}
	needed := len(payload) + slotEntrySize

	pageCount := h.pager.PageCount()
	for pid := uint32(0); pid < pageCount; pid++ {
		page, err := h.pager.ReadPage(pid)
		if err != nil {
			return RID{}, err
		}
		numSlots := readSlotDirLen(page)
		if freeSpace(page, numSlots) < needed {
			continue
		}
		rid, newPage := h.appendSlot(page, pid, numSlots, payload)
		if err := h.pager.WritePage(pid, newPage); err != nil {
			return RID{}, err
		}
		return rid, nil
	}

	pid, page, err := h.pager.AllocatePage()
	if err != nil {
		return RID{}, err
	}
	rid, newPage := h.appendSlot(page, pid, 0, payload)
	if err := h.pager.WritePage(pid, newPage); err != nil {
		return RID{}, err
	}
	return rid, nil
}

// appendSlot writes payload at the tail of page and appends a new slot
// directory entry, returning the resulting RID and the mutated page bytes.
func (h *HeapFile) appendSlot(page []byte, pageID uint32, numSlots uint16, payload []byte) (RID, []byte) {
	out := make([]byte, PageSize)
	copy(out, page)

	tail := PageSize
	for i := uint16(0); i < numSlots; i++ {
		s := slotAt(out, i)
		if !s.isTombstone() && int(s.offset) < tail {
			tail = int(s.offset)
		}
	}

	newOffset := tail - len(payload)
	copy(out[newOffset:newOffset+len(payload)], payload)

	slotID := numSlots
	writeSlotDirLen(out, numSlots+1)
	putSlotAt(out, slotID, slot{offset: uint32(newOffset), length: uint32(len(payload))})

	return RID{PageID: pageID, SlotID: slotID}, out
}

// Get decodes the row at rid, or returns NotFound if the slot is
// tombstoned or out of range.
func (h *HeapFile) Get(rid RID) (map[string]any, error) {
	page, err := h.pager.ReadPage(rid.PageID)
	if err != nil {
		return nil, err
	}
	numSlots := readSlotDirLen(page)
	if rid.SlotID >= numSlots {
		return nil, errs.New(errs.KindNotFound, "rid %+v: slot out of range", rid)
	}
	s := slotAt(page, rid.SlotID)
	if s.isTombstone() {
		return nil, errs.New(errs.KindNotFound, "rid %+v: tombstoned", rid)
	}
	return deserializeRow(page[s.offset : s.offset+s.length])
}

// Update overwrites the row at rid in place. If the new encoding is
// larger than the old slot's length, it fails with RowTooLarge: this
// phase only supports in-place updates.
func (h *HeapFile) Update(rid RID, row map[string]any) error {
	page, err := h.pager.ReadPage(rid.PageID)
	if err != nil {
		return err
	}
	numSlots := readSlotDirLen(page)
	if rid.SlotID >= numSlots {
		return errs.New(errs.KindNotFound, "rid %+v: slot out of range", rid)
	}
	s := slotAt(page, rid.SlotID)
	if s.isTombstone() {
		return errs.New(errs.KindNotFound, "rid %+v: tombstoned", rid)
	}

	payload, err := serializeRow(row)
	if err != nil {
		return err
	}
	if len(payload) > int(s.length) {
		return errs.New(errs.KindRowTooLarge, "rid %+v: new row %d bytes exceeds slot capacity %d", rid, len(payload), s.length)
	}

	copy(page[s.offset:s.offset+uint32(len(payload))], payload)
	putSlotAt(page, rid.SlotID, slot{offset: s.offset, length: uint32(len(payload))})

	return h.pager.WritePage(rid.PageID, page)
}

// Delete tombstones the slot at rid. The payload bytes are left in place.
func (h *HeapFile) Delete(rid RID) error {
	page, err := h.pager.ReadPage(rid.PageID)
	if err != nil {
		return err
	}
	numSlots := readSlotDirLen(page)
	if rid.SlotID >= numSlots {
		return errs.New(errs.KindNotFound, "rid %+v: slot out of range", rid)
	}
	s := slotAt(page, rid.SlotID)
	if s.isTombstone() {
		return errs.New(errs.KindNotFound, "rid %+v: already deleted", rid)
	}
	putSlotAt(page, rid.SlotID, slot{})
	return h.pager.WritePage(rid.PageID, page)
}

// Scan iterates every page and slot in order, invoking fn for every
// non-tombstoned row. It stops early if fn returns an error.
func (h *HeapFile) Scan(fn func(RID, map[string]any) error) error {
	pageCount := h.pager.PageCount()
	for pid := uint32(0); pid < pageCount; pid++ {
		page, err := h.pager.ReadPage(pid)
		if err != nil {
			return err
		}
		numSlots := readSlotDirLen(page)
		for sid := uint16(0); sid < numSlots; sid++ {
			s := slotAt(page, sid)
			if s.isTombstone() {
				continue
			}
			row, err := deserializeRow(page[s.offset : s.offset+s.length])
			if err != nil {
				return err
			}
			if err := fn(RID{PageID: pid, SlotID: sid}, row); err != nil {
				return err
			}
		}
	}
	return nil
}
