package heap

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/leftmike/keel/storage/page"
)

const (
	// NoPage marks the end of the free page chain and a scan at end.
	NoPage = int32(-1)

	firstRecordPage = int32(1)

	fileHeaderSize = 20
	pageHeaderSize = 8
)

type Rid struct {
	PageNo int32
	SlotNo int32
}

func (rid Rid) String() string {
	return fmt.Sprintf("(%d,%d)", rid.PageNo, rid.SlotNo)
}

// Record is the opaque fixed width byte buffer of one tuple.
type Record []byte

type PageNotExistError struct {
	PageNo int32
}

func (err *PageNotExistError) Error() string {
	return fmt.Sprintf("heap: page %d does not exist", err.PageNo)
}

type RecordNotFoundError struct {
	Rid Rid
}

func (err *RecordNotFoundError) Error() string {
	return fmt.Sprintf("heap: no record at %s", err.Rid)
}

// Locker is how record operations take record locks; a nil Locker skips
// locking entirely.
type Locker interface {
	LockShared(fileID uint32, rid Rid) error
	LockExclusive(fileID uint32, rid Rid) error
}

// fileHeader is persisted little endian at the start of page zero.
type fileHeader struct {
	recordSize        int32
	numRecordsPerPage int32
	bitmapSize        int32
	numPages          int32
	firstFreePageNo   int32
}

func (hdr *fileHeader) encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:], uint32(hdr.recordSize))
	binary.LittleEndian.PutUint32(buf[4:], uint32(hdr.numRecordsPerPage))
	binary.LittleEndian.PutUint32(buf[8:], uint32(hdr.bitmapSize))
	binary.LittleEndian.PutUint32(buf[12:], uint32(hdr.numPages))
	binary.LittleEndian.PutUint32(buf[16:], uint32(hdr.firstFreePageNo))
}

func (hdr *fileHeader) decode(buf []byte) {
	hdr.recordSize = int32(binary.LittleEndian.Uint32(buf[0:]))
	hdr.numRecordsPerPage = int32(binary.LittleEndian.Uint32(buf[4:]))
	hdr.bitmapSize = int32(binary.LittleEndian.Uint32(buf[8:]))
	hdr.numPages = int32(binary.LittleEndian.Uint32(buf[12:]))
	hdr.firstFreePageNo = int32(binary.LittleEndian.Uint32(buf[16:]))
}

// Data pages are a page header, the slot occupancy bitmap, and then the fixed
// width slot array.
type pageHandle struct {
	pg  *page.Page
	hdr *fileHeader
}

func (ph pageHandle) numRecords() int32 {
	return int32(binary.LittleEndian.Uint32(ph.pg.Data()[0:]))
}

func (ph pageHandle) setNumRecords(n int32) {
	binary.LittleEndian.PutUint32(ph.pg.Data()[0:], uint32(n))
}

func (ph pageHandle) nextFreePageNo() int32 {
	return int32(binary.LittleEndian.Uint32(ph.pg.Data()[4:]))
}

func (ph pageHandle) setNextFreePageNo(pageNo int32) {
	binary.LittleEndian.PutUint32(ph.pg.Data()[4:], uint32(pageNo))
}

func (ph pageHandle) bitmap() []byte {
	return ph.pg.Data()[pageHeaderSize : pageHeaderSize+ph.hdr.bitmapSize]
}

func (ph pageHandle) slot(slotNo int32) []byte {
	off := pageHeaderSize + ph.hdr.bitmapSize + slotNo*ph.hdr.recordSize
	return ph.pg.Data()[off : off+ph.hdr.recordSize]
}

func (ph pageHandle) full() bool {
	return ph.numRecords() == ph.hdr.numRecordsPerPage
}

// FileHandle is an open heap file of fixed width records addressed by Rid.
type FileHandle struct {
	pool   *page.Pool
	fileID uint32

	mu  sync.Mutex
	hdr fileHeader
}

func slotsPerPage(recordSize int) int {
	n := ((page.Size - pageHeaderSize) * 8) / (recordSize*8 + 1)
	for pageHeaderSize+(n+7)/8+n*recordSize > page.Size {
		n -= 1
	}
	return n
}

// Create makes a new heap file at path holding records of exactly recordSize
// bytes.
func Create(pool *page.Pool, path string, recordSize int) (*FileHandle, error) {
	if recordSize <= 0 || recordSize > page.Size-pageHeaderSize-1 {
		return nil, fmt.Errorf("heap: bad record size: %d", recordSize)
	}

	fileID, err := pool.DiskManager().OpenFile(path)
	if err != nil {
		return nil, err
	}

	n := slotsPerPage(recordSize)
	fh := &FileHandle{
		pool:   pool,
		fileID: fileID,
		hdr: fileHeader{
			recordSize:        int32(recordSize),
			numRecordsPerPage: int32(n),
			bitmapSize:        int32((n + 7) / 8),
			numPages:          1,
			firstFreePageNo:   NoPage,
		},
	}

	pg, err := pool.NewPage(fileID)
	if err != nil {
		return nil, err
	}
	fh.hdr.encode(pg.Data())
	err = pool.UnpinPage(pg.ID(), true)
	if err != nil {
		return nil, err
	}
	return fh, nil
}

// Open opens an existing heap file at path.
func Open(pool *page.Pool, path string) (*FileHandle, error) {
	fileID, err := pool.DiskManager().OpenFile(path)
	if err != nil {
		return nil, err
	}

	fh := &FileHandle{
		pool:   pool,
		fileID: fileID,
	}
	pg, err := pool.FetchPage(page.PageID{FileID: fileID, PageNo: 0})
	if err != nil {
		return nil, err
	}
	fh.hdr.decode(pg.Data())
	err = pool.UnpinPage(pg.ID(), false)
	if err != nil {
		return nil, err
	}
	if fh.hdr.recordSize <= 0 {
		return nil, fmt.Errorf("heap: %s: corrupted file header", path)
	}
	return fh, nil
}

func (fh *FileHandle) FileID() uint32 {
	return fh.fileID
}

func (fh *FileHandle) RecordSize() int {
	return int(fh.hdr.recordSize)
}

// Close writes the file header back and flushes the file.
func (fh *FileHandle) Close() error {
	fh.mu.Lock()
	err := fh.writeHeader()
	fh.mu.Unlock()
	if err != nil {
		return err
	}
	err = fh.pool.FlushFile(fh.fileID)
	if err != nil {
		return err
	}
	return fh.pool.DiskManager().CloseFile(fh.fileID)
}

// writeHeader persists fh.hdr to page zero; fh.mu must be held.
func (fh *FileHandle) writeHeader() error {
	pg, err := fh.pool.FetchPage(page.PageID{FileID: fh.fileID, PageNo: 0})
	if err != nil {
		return err
	}
	fh.hdr.encode(pg.Data())
	return fh.pool.UnpinPage(pg.ID(), true)
}

// fetchPage pins the data page; the rid addressing it must name an existing
// page.
func (fh *FileHandle) fetchPage(pageNo int32) (pageHandle, error) {
	if pageNo < firstRecordPage || pageNo >= fh.hdr.numPages {
		return pageHandle{}, &PageNotExistError{PageNo: pageNo}
	}
	pg, err := fh.pool.FetchPage(page.PageID{FileID: fh.fileID, PageNo: pageNo})
	if err != nil {
		return pageHandle{}, err
	}
	return pageHandle{pg: pg, hdr: &fh.hdr}, nil
}

func (fh *FileHandle) unpin(ph pageHandle, dirty bool) error {
	return fh.pool.UnpinPage(ph.pg.ID(), dirty)
}

// newPage allocates a fresh data page and links it at the head of the free
// chain, pointing at the previous head so the chain is never truncated;
// fh.mu must be held.
func (fh *FileHandle) newPage() (pageHandle, error) {
	pg, err := fh.pool.NewPage(fh.fileID)
	if err != nil {
		return pageHandle{}, err
	}
	ph := pageHandle{pg: pg, hdr: &fh.hdr}
	ph.setNumRecords(0)
	for idx := range ph.bitmap() {
		ph.bitmap()[idx] = 0
	}
	ph.setNextFreePageNo(fh.hdr.firstFreePageNo)
	fh.hdr.firstFreePageNo = pg.ID().PageNo
	fh.hdr.numPages += 1
	return ph, nil
}

// freePage returns a pinned page with at least one free slot, following the
// free chain and unlinking any page that turns out to be full; fh.mu must be
// held.
func (fh *FileHandle) freePage() (pageHandle, error) {
	for fh.hdr.firstFreePageNo != NoPage {
		ph, err := fh.fetchPage(fh.hdr.firstFreePageNo)
		if err != nil {
			return pageHandle{}, err
		}
		if !ph.full() {
			return ph, nil
		}
		fh.hdr.firstFreePageNo = ph.nextFreePageNo()
		err = fh.unpin(ph, false)
		if err != nil {
			return pageHandle{}, err
		}
	}
	return fh.newPage()
}

// Get copies the record at rid, taking a shared record lock.
func (fh *FileHandle) Get(rid Rid, lkr Locker) (Record, error) {
	if lkr != nil {
		err := lkr.LockShared(fh.fileID, rid)
		if err != nil {
			return nil, err
		}
	}

	fh.mu.Lock()
	defer fh.mu.Unlock()

	ph, err := fh.fetchPage(rid.PageNo)
	if err != nil {
		return nil, err
	}
	if rid.SlotNo < 0 || rid.SlotNo >= fh.hdr.numRecordsPerPage ||
		!bitmapGet(ph.bitmap(), int(rid.SlotNo)) {

		fh.unpin(ph, false)
		return nil, &RecordNotFoundError{Rid: rid}
	}

	rec := make(Record, fh.hdr.recordSize)
	copy(rec, ph.slot(rid.SlotNo))
	err = fh.unpin(ph, false)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Insert places buf in the first free slot, taking an exclusive record lock
// on the chosen rid, and returns the rid.
func (fh *FileHandle) Insert(buf []byte, lkr Locker) (Rid, error) {
	if len(buf) != int(fh.hdr.recordSize) {
		return Rid{}, fmt.Errorf("heap: record of %d bytes; want %d", len(buf),
			fh.hdr.recordSize)
	}

	fh.mu.Lock()
	defer fh.mu.Unlock()

	ph, err := fh.freePage()
	if err != nil {
		return Rid{}, err
	}
	slotNo := int32(bitmapFirstClear(ph.bitmap(), int(fh.hdr.numRecordsPerPage)))
	rid := Rid{PageNo: ph.pg.ID().PageNo, SlotNo: slotNo}

	if lkr != nil {
		err = lkr.LockExclusive(fh.fileID, rid)
		if err != nil {
			fh.unpin(ph, false)
			return Rid{}, err
		}
	}

	bitmapSet(ph.bitmap(), int(slotNo))
	ph.setNumRecords(ph.numRecords() + 1)
	copy(ph.slot(slotNo), buf)
	if ph.full() {
		fh.hdr.firstFreePageNo = ph.nextFreePageNo()
	}

	err = fh.unpin(ph, true)
	if err != nil {
		return Rid{}, err
	}
	err = fh.writeHeader()
	if err != nil {
		return Rid{}, err
	}
	return rid, nil
}

// InsertAt places buf at exactly rid; the slot must be free. It is how a
// rolled back delete restores its record.
func (fh *FileHandle) InsertAt(rid Rid, buf []byte) error {
	if len(buf) != int(fh.hdr.recordSize) {
		return fmt.Errorf("heap: record of %d bytes; want %d", len(buf), fh.hdr.recordSize)
	}

	fh.mu.Lock()
	defer fh.mu.Unlock()

	for rid.PageNo >= fh.hdr.numPages {
		ph, err := fh.newPage()
		if err != nil {
			return err
		}
		err = fh.unpin(ph, true)
		if err != nil {
			return err
		}
	}

	ph, err := fh.fetchPage(rid.PageNo)
	if err != nil {
		return err
	}
	if rid.SlotNo < 0 || rid.SlotNo >= fh.hdr.numRecordsPerPage {
		fh.unpin(ph, false)
		return &RecordNotFoundError{Rid: rid}
	}
	if bitmapGet(ph.bitmap(), int(rid.SlotNo)) {
		fh.unpin(ph, false)
		return fmt.Errorf("heap: slot %s is occupied", rid)
	}

	bitmapSet(ph.bitmap(), int(rid.SlotNo))
	ph.setNumRecords(ph.numRecords() + 1)
	copy(ph.slot(rid.SlotNo), buf)
	if ph.full() && fh.hdr.firstFreePageNo == rid.PageNo {
		fh.hdr.firstFreePageNo = ph.nextFreePageNo()
	}

	err = fh.unpin(ph, true)
	if err != nil {
		return err
	}
	return fh.writeHeader()
}

// Delete clears the slot at rid, taking an exclusive record lock. A page
// going from full to not full is relinked at the head of the free chain.
func (fh *FileHandle) Delete(rid Rid, lkr Locker) error {
	if lkr != nil {
		err := lkr.LockExclusive(fh.fileID, rid)
		if err != nil {
			return err
		}
	}

	fh.mu.Lock()
	defer fh.mu.Unlock()

	ph, err := fh.fetchPage(rid.PageNo)
	if err != nil {
		return err
	}
	if rid.SlotNo < 0 || rid.SlotNo >= fh.hdr.numRecordsPerPage ||
		!bitmapGet(ph.bitmap(), int(rid.SlotNo)) {

		fh.unpin(ph, false)
		return &RecordNotFoundError{Rid: rid}
	}

	wasFull := ph.full()
	bitmapClear(ph.bitmap(), int(rid.SlotNo))
	ph.setNumRecords(ph.numRecords() - 1)
	if wasFull {
		ph.setNextFreePageNo(fh.hdr.firstFreePageNo)
		fh.hdr.firstFreePageNo = rid.PageNo
	}

	err = fh.unpin(ph, true)
	if err != nil {
		return err
	}
	return fh.writeHeader()
}

// Update overwrites the record at rid in place, taking an exclusive record
// lock; records are fixed width so the rid never changes.
func (fh *FileHandle) Update(rid Rid, buf []byte, lkr Locker) error {
	if len(buf) != int(fh.hdr.recordSize) {
		return fmt.Errorf("heap: record of %d bytes; want %d", len(buf), fh.hdr.recordSize)
	}
	if lkr != nil {
		err := lkr.LockExclusive(fh.fileID, rid)
		if err != nil {
			return err
		}
	}

	fh.mu.Lock()
	defer fh.mu.Unlock()

	ph, err := fh.fetchPage(rid.PageNo)
	if err != nil {
		return err
	}
	if rid.SlotNo < 0 || rid.SlotNo >= fh.hdr.numRecordsPerPage ||
		!bitmapGet(ph.bitmap(), int(rid.SlotNo)) {

		fh.unpin(ph, false)
		return &RecordNotFoundError{Rid: rid}
	}

	copy(ph.slot(rid.SlotNo), buf)
	return fh.unpin(ph, true)
}
