package page

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// DiskManager reads and writes pages of the open files. Page numbers are
// allocated densely per file; a freshly allocated page exists on disk once it
// is first written.
type DiskManager struct {
	mu         sync.Mutex
	files      map[uint32]*diskFile
	nextFileID uint32
}

type diskFile struct {
	f          *os.File
	path       string
	nextPageNo int32
}

func NewDiskManager() *DiskManager {
	return &DiskManager{
		files: map[uint32]*diskFile{},
	}
}

// OpenFile opens or creates the file at path and returns the file id used to
// address its pages.
func (dm *DiskManager) OpenFile(path string) (uint32, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return 0, fmt.Errorf("page: %s: %s", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return 0, fmt.Errorf("page: %s: %s", path, err)
	}

	dm.mu.Lock()
	defer dm.mu.Unlock()

	fileID := dm.nextFileID
	dm.nextFileID += 1
	dm.files[fileID] = &diskFile{
		f:          f,
		path:       path,
		nextPageNo: int32(fi.Size() / Size),
	}
	return fileID, nil
}

func (dm *DiskManager) CloseFile(fileID uint32) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	df, ok := dm.files[fileID]
	if !ok {
		return fmt.Errorf("page: file %d not open", fileID)
	}
	delete(dm.files, fileID)
	return df.f.Close()
}

// RemoveFile closes the file and deletes it from disk.
func (dm *DiskManager) RemoveFile(fileID uint32) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	df, ok := dm.files[fileID]
	if !ok {
		return fmt.Errorf("page: file %d not open", fileID)
	}
	delete(dm.files, fileID)
	df.f.Close()
	return os.Remove(df.path)
}

func (dm *DiskManager) file(fileID uint32) (*diskFile, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	df, ok := dm.files[fileID]
	if !ok {
		return nil, fmt.Errorf("page: file %d not open", fileID)
	}
	return df, nil
}

// AllocPage reserves the next page number of the file.
func (dm *DiskManager) AllocPage(fileID uint32) (int32, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	df, ok := dm.files[fileID]
	if !ok {
		return NoPage, fmt.Errorf("page: file %d not open", fileID)
	}
	pageNo := df.nextPageNo
	df.nextPageNo += 1
	return pageNo, nil
}

func (dm *DiskManager) ReadPage(pid PageID, buf []byte) error {
	df, err := dm.file(pid.FileID)
	if err != nil {
		return err
	}
	n, err := df.f.ReadAt(buf, int64(pid.PageNo)*Size)
	if err == io.EOF {
		// An allocated page that was never written back reads as zeroes.
		for idx := n; idx < len(buf); idx++ {
			buf[idx] = 0
		}
	} else if err != nil {
		return fmt.Errorf("page: read page %d of %s: %s", pid.PageNo, df.path, err)
	}
	return nil
}

func (dm *DiskManager) WritePage(pid PageID, buf []byte) error {
	df, err := dm.file(pid.FileID)
	if err != nil {
		return err
	}
	_, err = df.f.WriteAt(buf, int64(pid.PageNo)*Size)
	if err != nil {
		return fmt.Errorf("page: write page %d of %s: %s", pid.PageNo, df.path, err)
	}
	return nil
}
