package page

import (
	"container/list"
	"fmt"
	"sync"
)

const DefaultPoolSize = 256

// Pool is a buffer pool of page frames with LRU replacement. Only unpinned
// frames are eviction candidates; a dirty frame is written back before its
// frame is reused.
type Pool struct {
	dm *DiskManager

	mu       sync.Mutex
	capacity int
	frames   map[PageID]*frame
	lru      *list.List // unpinned frames, least recently used first
}

type frame struct {
	pg    *Page
	dirty bool
	elem  *list.Element // non-nil while unpinned
}

func NewPool(dm *DiskManager, capacity int) *Pool {
	if capacity <= 0 {
		capacity = DefaultPoolSize
	}
	return &Pool{
		dm:       dm,
		capacity: capacity,
		frames:   map[PageID]*frame{},
		lru:      list.New(),
	}
}

func (pl *Pool) DiskManager() *DiskManager {
	return pl.dm
}

// victim frees up a frame slot; pl.mu must be held.
func (pl *Pool) victim() error {
	if len(pl.frames) < pl.capacity {
		return nil
	}

	elem := pl.lru.Front()
	if elem == nil {
		return fmt.Errorf("page: buffer pool full: %d pages pinned", len(pl.frames))
	}
	fr := elem.Value.(*frame)
	pl.lru.Remove(elem)
	if fr.dirty {
		err := pl.dm.WritePage(fr.pg.id, fr.pg.data[:])
		if err != nil {
			return err
		}
	}
	delete(pl.frames, fr.pg.id)
	return nil
}

// FetchPage returns the page pinned; pair every call with UnpinPage.
func (pl *Pool) FetchPage(pid PageID) (*Page, error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	fr, ok := pl.frames[pid]
	if ok {
		if fr.elem != nil {
			pl.lru.Remove(fr.elem)
			fr.elem = nil
		}
		fr.pg.pins += 1
		return fr.pg, nil
	}

	err := pl.victim()
	if err != nil {
		return nil, err
	}

	pg := &Page{id: pid, pins: 1}
	err = pl.dm.ReadPage(pid, pg.data[:])
	if err != nil {
		return nil, err
	}
	pl.frames[pid] = &frame{pg: pg}
	return pg, nil
}

// NewPage allocates the next page of the file and returns it pinned and
// zeroed.
func (pl *Pool) NewPage(fileID uint32) (*Page, error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	err := pl.victim()
	if err != nil {
		return nil, err
	}

	pageNo, err := pl.dm.AllocPage(fileID)
	if err != nil {
		return nil, err
	}
	pg := &Page{id: PageID{FileID: fileID, PageNo: pageNo}, pins: 1}
	pl.frames[pg.id] = &frame{pg: pg, dirty: true}
	return pg, nil
}

func (pl *Pool) UnpinPage(pid PageID, dirty bool) error {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	fr, ok := pl.frames[pid]
	if !ok {
		return fmt.Errorf("page: unpin of page %d of file %d not in pool", pid.PageNo,
			pid.FileID)
	}
	if fr.pg.pins == 0 {
		return fmt.Errorf("page: unpin of unpinned page %d of file %d", pid.PageNo, pid.FileID)
	}
	if dirty {
		fr.dirty = true
	}
	fr.pg.pins -= 1
	if fr.pg.pins == 0 {
		fr.elem = pl.lru.PushBack(fr)
	}
	return nil
}

// FlushFile writes back every dirty frame of the file.
func (pl *Pool) FlushFile(fileID uint32) error {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	for pid, fr := range pl.frames {
		if pid.FileID != fileID || !fr.dirty {
			continue
		}
		err := pl.dm.WritePage(pid, fr.pg.data[:])
		if err != nil {
			return err
		}
		fr.dirty = false
	}
	return nil
}

// DropFile discards every frame of the file without writing it back; used
// when the file itself is being removed.
func (pl *Pool) DropFile(fileID uint32) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	for pid, fr := range pl.frames {
		if pid.FileID != fileID {
			continue
		}
		if fr.elem != nil {
			pl.lru.Remove(fr.elem)
		}
		delete(pl.frames, pid)
	}
}
