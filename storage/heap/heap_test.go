package heap_test

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/leftmike/keel/storage/heap"
	"github.com/leftmike/keel/storage/page"
)

func testFile(t *testing.T, recordSize int) *heap.FileHandle {
	t.Helper()

	dir, err := ioutil.TempDir("", "heap_test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		os.RemoveAll(dir)
	})

	pool := page.NewPool(page.NewDiskManager(), 16)
	fh, err := heap.Create(pool, filepath.Join(dir, "t.dat"), recordSize)
	if err != nil {
		t.Fatalf("Create failed with %s", err)
	}
	return fh
}

func record(size int, b byte) []byte {
	buf := make([]byte, size)
	for idx := range buf {
		buf[idx] = b
	}
	return buf
}

func TestInsertGet(t *testing.T) {
	fh := testFile(t, 16)

	rid, err := fh.Insert(record(16, 1), nil)
	if err != nil {
		t.Fatalf("Insert failed with %s", err)
	}
	if rid.PageNo != 1 || rid.SlotNo != 0 {
		t.Errorf("Insert got %s want (1,0)", rid)
	}

	rec, err := fh.Get(rid, nil)
	if err != nil {
		t.Fatalf("Get(%s) failed with %s", rid, err)
	}
	if !bytes.Equal(rec, record(16, 1)) {
		t.Errorf("Get(%s) did not round trip", rid)
	}

	if _, err = fh.Get(heap.Rid{PageNo: 9, SlotNo: 0}, nil); err == nil {
		t.Error("Get of missing page did not fail")
	} else if _, ok := err.(*heap.PageNotExistError); !ok {
		t.Errorf("Get of missing page failed with %s; want PageNotExistError", err)
	}
	if _, err = fh.Get(heap.Rid{PageNo: 1, SlotNo: 1}, nil); err == nil {
		t.Error("Get of empty slot did not fail")
	} else if _, ok := err.(*heap.RecordNotFoundError); !ok {
		t.Errorf("Get of empty slot failed with %s; want RecordNotFoundError", err)
	}

	if _, err = fh.Insert(record(8, 1), nil); err == nil {
		t.Error("Insert of short record did not fail")
	}
}

func TestDeleteReuse(t *testing.T) {
	fh := testFile(t, 16)

	var rids []heap.Rid
	for idx := 0; idx < 3; idx++ {
		rid, err := fh.Insert(record(16, byte(idx+1)), nil)
		if err != nil {
			t.Fatalf("Insert failed with %s", err)
		}
		rids = append(rids, rid)
	}

	err := fh.Delete(rids[1], nil)
	if err != nil {
		t.Fatalf("Delete(%s) failed with %s", rids[1], err)
	}
	if _, err = fh.Get(rids[1], nil); err == nil {
		t.Errorf("Get(%s) after delete did not fail", rids[1])
	}
	if err = fh.Delete(rids[1], nil); err == nil {
		t.Errorf("Delete(%s) twice did not fail", rids[1])
	}

	// The freed slot is the first free slot again.
	rid, err := fh.Insert(record(16, 4), nil)
	if err != nil {
		t.Fatalf("Insert failed with %s", err)
	}
	if rid != rids[1] {
		t.Errorf("Insert got %s want reused %s", rid, rids[1])
	}
}

func TestUpdateKeepsRid(t *testing.T) {
	fh := testFile(t, 16)

	rid, err := fh.Insert(record(16, 1), nil)
	if err != nil {
		t.Fatalf("Insert failed with %s", err)
	}
	err = fh.Update(rid, record(16, 9), nil)
	if err != nil {
		t.Fatalf("Update(%s) failed with %s", rid, err)
	}
	rec, err := fh.Get(rid, nil)
	if err != nil {
		t.Fatalf("Get(%s) failed with %s", rid, err)
	}
	if !bytes.Equal(rec, record(16, 9)) {
		t.Errorf("Get(%s) after update got %v", rid, rec[:4])
	}
}

func TestPageFill(t *testing.T) {
	// 1000 byte records give four slots per 4096 byte page.
	fh := testFile(t, 1000)

	var rids []heap.Rid
	for idx := 0; idx < 9; idx++ {
		rid, err := fh.Insert(record(1000, byte(idx+1)), nil)
		if err != nil {
			t.Fatalf("Insert failed with %s", err)
		}
		rids = append(rids, rid)
	}

	// Four slots per page: pages 1 and 2 full, page 3 holds one record.
	want := []heap.Rid{{1, 0}, {1, 1}, {1, 2}, {1, 3}, {2, 0}, {2, 1}, {2, 2}, {2, 3}, {3, 0}}
	for idx, rid := range rids {
		if rid != want[idx] {
			t.Fatalf("Insert %d got %s want %s", idx, rid, want[idx])
		}
	}

	// Deleting from the full page 1 relinks it; the next insert reuses the
	// freed slot rather than extending page 3.
	err := fh.Delete(heap.Rid{PageNo: 1, SlotNo: 2}, nil)
	if err != nil {
		t.Fatalf("Delete failed with %s", err)
	}
	rid, err := fh.Insert(record(1000, 10), nil)
	if err != nil {
		t.Fatalf("Insert failed with %s", err)
	}
	if (rid != heap.Rid{PageNo: 1, SlotNo: 2}) {
		t.Errorf("Insert got %s want (1,2)", rid)
	}

	// Page 1 is full again; the chain falls back to page 3.
	rid, err = fh.Insert(record(1000, 11), nil)
	if err != nil {
		t.Fatalf("Insert failed with %s", err)
	}
	if (rid != heap.Rid{PageNo: 3, SlotNo: 1}) {
		t.Errorf("Insert got %s want (3,1)", rid)
	}
}

func TestInsertAt(t *testing.T) {
	fh := testFile(t, 16)

	rid, err := fh.Insert(record(16, 1), nil)
	if err != nil {
		t.Fatalf("Insert failed with %s", err)
	}
	err = fh.Delete(rid, nil)
	if err != nil {
		t.Fatalf("Delete failed with %s", err)
	}

	err = fh.InsertAt(rid, record(16, 2))
	if err != nil {
		t.Fatalf("InsertAt(%s) failed with %s", rid, err)
	}
	rec, err := fh.Get(rid, nil)
	if err != nil {
		t.Fatalf("Get(%s) failed with %s", rid, err)
	}
	if !bytes.Equal(rec, record(16, 2)) {
		t.Errorf("Get(%s) after InsertAt did not round trip", rid)
	}

	if err = fh.InsertAt(rid, record(16, 3)); err == nil {
		t.Error("InsertAt of occupied slot did not fail")
	}

	// InsertAt extends the file when the page does not exist yet.
	far := heap.Rid{PageNo: 3, SlotNo: 5}
	err = fh.InsertAt(far, record(16, 4))
	if err != nil {
		t.Fatalf("InsertAt(%s) failed with %s", far, err)
	}
	rec, err = fh.Get(far, nil)
	if err != nil {
		t.Fatalf("Get(%s) failed with %s", far, err)
	}
	if !bytes.Equal(rec, record(16, 4)) {
		t.Errorf("Get(%s) after InsertAt did not round trip", far)
	}
}

func TestScan(t *testing.T) {
	fh := testFile(t, 16)

	scan, err := fh.NewScan()
	if err != nil {
		t.Fatalf("NewScan failed with %s", err)
	}
	if !scan.IsEnd() {
		t.Error("scan of empty file is not at end")
	}

	inserted := map[heap.Rid]byte{}
	for idx := 0; idx < 5; idx++ {
		rid, err := fh.Insert(record(16, byte(idx+1)), nil)
		if err != nil {
			t.Fatalf("Insert failed with %s", err)
		}
		inserted[rid] = byte(idx + 1)
	}
	err = fh.Delete(heap.Rid{PageNo: 1, SlotNo: 2}, nil)
	if err != nil {
		t.Fatalf("Delete failed with %s", err)
	}
	delete(inserted, heap.Rid{PageNo: 1, SlotNo: 2})

	scan, err = fh.NewScan()
	if err != nil {
		t.Fatalf("NewScan failed with %s", err)
	}
	seen := map[heap.Rid]byte{}
	for !scan.IsEnd() {
		rec, err := fh.Get(scan.Rid(), nil)
		if err != nil {
			t.Fatalf("Get(%s) failed with %s", scan.Rid(), err)
		}
		seen[scan.Rid()] = rec[0]
		err = scan.Next()
		if err != nil {
			t.Fatalf("Next failed with %s", err)
		}
	}

	if len(seen) != len(inserted) {
		t.Fatalf("scan saw %d records want %d", len(seen), len(inserted))
	}
	for rid, b := range inserted {
		if seen[rid] != b {
			t.Errorf("scan at %s got %d want %d", rid, seen[rid], b)
		}
	}
}

func TestOpen(t *testing.T) {
	dir, err := ioutil.TempDir("", "heap_test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "t.dat")
	pool := page.NewPool(page.NewDiskManager(), 16)
	fh, err := heap.Create(pool, path, 16)
	if err != nil {
		t.Fatalf("Create failed with %s", err)
	}
	rid, err := fh.Insert(record(16, 7), nil)
	if err != nil {
		t.Fatalf("Insert failed with %s", err)
	}
	err = fh.Close()
	if err != nil {
		t.Fatalf("Close failed with %s", err)
	}

	fh, err = heap.Open(page.NewPool(page.NewDiskManager(), 16), path)
	if err != nil {
		t.Fatalf("Open failed with %s", err)
	}
	rec, err := fh.Get(rid, nil)
	if err != nil {
		t.Fatalf("Get(%s) failed with %s", rid, err)
	}
	if !bytes.Equal(rec, record(16, 7)) {
		t.Errorf("Get(%s) after reopen did not round trip", rid)
	}
}
