package catalog_test

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/leftmike/keel/catalog"
	"github.com/leftmike/keel/sql"
	"github.com/leftmike/keel/storage/page"
)

func testDir(t *testing.T) string {
	t.Helper()

	dir, err := ioutil.TempDir("", "catalog_test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		os.RemoveAll(dir)
	})
	return dir
}

var testDefs = []catalog.ColumnDef{
	{Name: "id", Type: sql.IntegerType},
	{Name: "name", Type: sql.StringType, Width: 8},
	{Name: "score", Type: sql.FloatType},
}

func TestCreateTable(t *testing.T) {
	dir := testDir(t)
	cm, err := catalog.Open(dir, page.NewPool(page.NewDiskManager(), 32))
	if err != nil {
		t.Fatalf("Open failed with %s", err)
	}
	defer cm.Close()

	tm, err := cm.CreateTable("t", testDefs, [][]string{{"id"}})
	if err != nil {
		t.Fatalf("CreateTable failed with %s", err)
	}
	if tm.RecordSize != 24 {
		t.Errorf("RecordSize got %d want 24", tm.RecordSize)
	}
	if tm.Cols[1].Offset != 8 || tm.Cols[1].Len != 8 {
		t.Errorf("column name got offset %d len %d want 8 8", tm.Cols[1].Offset,
			tm.Cols[1].Len)
	}
	if len(tm.Indexes) != 1 || tm.Indexes[0].ColTotLen != 8 {
		t.Fatalf("indexes got %#v", tm.Indexes)
	}

	if _, err = cm.CreateTable("t", testDefs, nil); err == nil {
		t.Error("CreateTable of existing table did not fail")
	}
	if _, err = cm.Table("missing"); err == nil {
		t.Error("Table(missing) did not fail")
	}
	if _, err = cm.FileHandle("t"); err != nil {
		t.Errorf("FileHandle(t) failed with %s", err)
	}
	if _, err = cm.Index(tm.Indexes[0].Name); err != nil {
		t.Errorf("Index(%s) failed with %s", tm.Indexes[0].Name, err)
	}
}

func TestReopen(t *testing.T) {
	dir := testDir(t)
	cm, err := catalog.Open(dir, page.NewPool(page.NewDiskManager(), 32))
	if err != nil {
		t.Fatalf("Open failed with %s", err)
	}

	tm, err := cm.CreateTable("t", testDefs, [][]string{{"id"}})
	if err != nil {
		t.Fatalf("CreateTable failed with %s", err)
	}
	fh, err := cm.FileHandle("t")
	if err != nil {
		t.Fatalf("FileHandle failed with %s", err)
	}

	rows := [][]sql.Value{
		{sql.Int64Value(1), sql.StringValue("a"), sql.Float64Value(1.5)},
		{sql.Int64Value(2), sql.StringValue("b"), sql.Float64Value(2.5)},
	}
	for _, row := range rows {
		buf, err := tm.EncodeRow(row)
		if err != nil {
			t.Fatalf("EncodeRow failed with %s", err)
		}
		if _, err = fh.Insert(buf, nil); err != nil {
			t.Fatalf("Insert failed with %s", err)
		}
	}
	err = cm.Close()
	if err != nil {
		t.Fatalf("Close failed with %s", err)
	}

	cm, err = catalog.Open(dir, page.NewPool(page.NewDiskManager(), 32))
	if err != nil {
		t.Fatalf("reopen failed with %s", err)
	}
	defer cm.Close()

	tm2, err := cm.Table("t")
	if err != nil {
		t.Fatalf("Table(t) failed with %s", err)
	}
	if tm2.RecordSize != tm.RecordSize || len(tm2.Cols) != len(tm.Cols) {
		t.Errorf("reopened table got %#v want %#v", tm2, tm)
	}

	// The index is rebuilt from the heap.
	ih, err := cm.Index(tm.Indexes[0].Name)
	if err != nil {
		t.Fatalf("Index failed with %s", err)
	}
	if ih.Len() != 2 {
		t.Errorf("rebuilt index got %d entries want 2", ih.Len())
	}

	key := make([]byte, 8)
	err = sql.EncodeField(key, sql.IntegerType, sql.Int64Value(2))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := ih.Search(key); !ok {
		t.Error("rebuilt index missing key 2")
	}

	err = cm.DropTable("t")
	if err != nil {
		t.Fatalf("DropTable failed with %s", err)
	}
	if _, err = cm.Table("t"); err == nil {
		t.Error("Table(t) after drop did not fail")
	}
}

func TestDecodeRow(t *testing.T) {
	dir := testDir(t)
	cm, err := catalog.Open(dir, page.NewPool(page.NewDiskManager(), 32))
	if err != nil {
		t.Fatalf("Open failed with %s", err)
	}
	defer cm.Close()

	tm, err := cm.CreateTable("t", testDefs, nil)
	if err != nil {
		t.Fatalf("CreateTable failed with %s", err)
	}

	row := []sql.Value{sql.Int64Value(7), sql.StringValue("zz"), sql.Float64Value(-1.25)}
	buf, err := tm.EncodeRow(row)
	if err != nil {
		t.Fatalf("EncodeRow failed with %s", err)
	}
	vals := tm.DecodeRow(buf)
	for vdx, v := range vals {
		if cmp, err := v.Compare(row[vdx]); err != nil || cmp != 0 {
			t.Errorf("DecodeRow[%d] got %s want %s", vdx, sql.Format(v),
				sql.Format(row[vdx]))
		}
	}

	if _, err = tm.EncodeRow(row[:2]); err == nil {
		t.Error("EncodeRow with missing values did not fail")
	}
}
