package page_test

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/leftmike/keel/storage/page"
)

func testDir(t *testing.T) string {
	t.Helper()

	dir, err := ioutil.TempDir("", "page_test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		os.RemoveAll(dir)
	})
	return dir
}

func TestPoolReadWrite(t *testing.T) {
	dir := testDir(t)
	dm := page.NewDiskManager()
	fileID, err := dm.OpenFile(filepath.Join(dir, "t.dat"))
	if err != nil {
		t.Fatalf("OpenFile failed with %s", err)
	}
	pl := page.NewPool(dm, 4)

	var pids []page.PageID
	for idx := 0; idx < 3; idx++ {
		pg, err := pl.NewPage(fileID)
		if err != nil {
			t.Fatalf("NewPage failed with %s", err)
		}
		pg.Data()[0] = byte(idx + 1)
		pids = append(pids, pg.ID())
		err = pl.UnpinPage(pg.ID(), true)
		if err != nil {
			t.Fatalf("UnpinPage failed with %s", err)
		}
	}

	for idx, pid := range pids {
		if pid.PageNo != int32(idx) {
			t.Errorf("NewPage got page %d want %d", pid.PageNo, idx)
		}
		pg, err := pl.FetchPage(pid)
		if err != nil {
			t.Fatalf("FetchPage(%d) failed with %s", pid.PageNo, err)
		}
		if pg.Data()[0] != byte(idx+1) {
			t.Errorf("page %d got %d want %d", pid.PageNo, pg.Data()[0], idx+1)
		}
		pl.UnpinPage(pid, false)
	}
}

func TestPoolEviction(t *testing.T) {
	dir := testDir(t)
	dm := page.NewDiskManager()
	fileID, err := dm.OpenFile(filepath.Join(dir, "t.dat"))
	if err != nil {
		t.Fatalf("OpenFile failed with %s", err)
	}
	pl := page.NewPool(dm, 2)

	// Fill pages beyond the pool capacity; each must survive eviction.
	for idx := 0; idx < 6; idx++ {
		pg, err := pl.NewPage(fileID)
		if err != nil {
			t.Fatalf("NewPage failed with %s", err)
		}
		for bdx := 0; bdx < page.Size; bdx++ {
			pg.Data()[bdx] = byte(idx)
		}
		err = pl.UnpinPage(pg.ID(), true)
		if err != nil {
			t.Fatalf("UnpinPage failed with %s", err)
		}
	}

	want := make([]byte, page.Size)
	for idx := 0; idx < 6; idx++ {
		pid := page.PageID{FileID: fileID, PageNo: int32(idx)}
		pg, err := pl.FetchPage(pid)
		if err != nil {
			t.Fatalf("FetchPage(%d) failed with %s", idx, err)
		}
		for bdx := 0; bdx < page.Size; bdx++ {
			want[bdx] = byte(idx)
		}
		if !bytes.Equal(pg.Data(), want) {
			t.Errorf("page %d did not round trip through eviction", idx)
		}
		pl.UnpinPage(pid, false)
	}
}

func TestPoolPinned(t *testing.T) {
	dir := testDir(t)
	dm := page.NewDiskManager()
	fileID, err := dm.OpenFile(filepath.Join(dir, "t.dat"))
	if err != nil {
		t.Fatalf("OpenFile failed with %s", err)
	}
	pl := page.NewPool(dm, 2)

	pg1, err := pl.NewPage(fileID)
	if err != nil {
		t.Fatalf("NewPage failed with %s", err)
	}
	pg2, err := pl.NewPage(fileID)
	if err != nil {
		t.Fatalf("NewPage failed with %s", err)
	}

	// Every frame is pinned: allocation must fail rather than evict.
	_, err = pl.NewPage(fileID)
	if err == nil {
		t.Error("NewPage with all frames pinned did not fail")
	}

	pl.UnpinPage(pg1.ID(), false)
	pl.UnpinPage(pg2.ID(), false)

	if _, err = pl.NewPage(fileID); err != nil {
		t.Errorf("NewPage after unpin failed with %s", err)
	}

	if err = pl.UnpinPage(pg1.ID(), false); err == nil {
		t.Error("UnpinPage of evicted or unpinned page did not fail")
	}
}
