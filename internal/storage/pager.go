// Package storage - Pager component
//
// EDUCATIONAL NOTES:
// ------------------
// The Pager is responsible for managing one database file and reading and
// writing fixed-size pages against it. Every higher-level structure
// (HeapFile, PageBTree) goes through a Pager instead of touching the file
// directly.
//
// Phase scope keeps this deliberately simple: no dirty-page lifecycle, no
// buffer pool eviction. Every WritePage call goes straight to disk. If a
// cache is added later it must stay write-through, per spec.

package storage

import (
	"os"
	"sync"

	"github.com/oursql/oursql/internal/errs"
)

// Pager manages fixed-size page I/O against a single open file.
type Pager struct {
	file      *os.File
	pageCount uint32

	mu sync.RWMutex
}

// NewPager opens (creating if necessary) the file at path and returns a
// Pager positioned at its current page count.
func NewPager(path string) (*Pager, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errs.Wrap(errs.KindIoError, err, "open %s", path)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, errs.Wrap(errs.KindIoError, err, "stat %s", path)
	}

	return &Pager{
		file:      file,
		pageCount: uint32(stat.Size() / PageSize),
	}, nil
}

// PageCount returns the number of pages currently in the file.
func (p *Pager) PageCount() uint32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pageCount
}

// ReadPage returns the raw bytes of page id.
func (p *Pager) ReadPage(id uint32) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if id >= p.pageCount {
		return nil, errs.New(errs.KindOutOfRange, "page %d does not exist (have %d pages)", id, p.pageCount)
	}

	buf := make([]byte, PageSize)
	n, err := p.file.ReadAt(buf, int64(id)*PageSize)
	if err != nil {
		return nil, errs.Wrap(errs.KindIoError, err, "read page %d", id)
	}
	if n != PageSize {
		return nil, errs.New(errs.KindIoError, "short read for page %d: got %d bytes", id, n)
	}
	return buf, nil
}

// WritePage writes exactly PageSize bytes at page id's offset.
func (p *Pager) WritePage(id uint32, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writePageLocked(id, data)
}

func (p *Pager) writePageLocked(id uint32, data []byte) error {
	if len(data) != PageSize {
		return errs.New(errs.KindIoError, "write page %d: expected %d bytes, got %d", id, PageSize, len(data))
	}
	if id >= p.pageCount {
		return errs.New(errs.KindOutOfRange, "page %d does not exist (have %d pages)", id, p.pageCount)
	}

	n, err := p.file.WriteAt(data, int64(id)*PageSize)
	if err != nil {
		return errs.Wrap(errs.KindIoError, err, "write page %d", id)
	}
	if n != PageSize {
		return errs.New(errs.KindIoError, "short write for page %d: wrote %d bytes", id, n)
	}
	return nil
}

// AllocatePage extends the file by one zero-filled page and returns its
// id along with its (zeroed) contents.
func (p *Pager) AllocatePage() (uint32, []byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.pageCount
	zero := make([]byte, PageSize)
	n, err := p.file.WriteAt(zero, int64(id)*PageSize)
	if err != nil {
		return 0, nil, errs.Wrap(errs.KindIoError, err, "allocate page %d", id)
	}
	if n != PageSize {
		return 0, nil, errs.New(errs.KindIoError, "short write allocating page %d: wrote %d bytes", id, n)
	}
	p.pageCount++

	return id, zero, nil
}

// Flush forces any OS-level buffering to durable storage on a best-effort
// basis. Phase scope does not require fsync-strength durability.
func (p *Pager) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.file.Sync(); err != nil {
		return errs.Wrap(errs.KindIoError, err, "flush")
	}
	return nil
}

// Close flushes and closes the underlying file.
func (p *Pager) Close() error {
	if err := p.Flush(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.file.Close(); err != nil {
		return errs.Wrap(errs.KindIoError, err, "close")
	}
	return nil
}
