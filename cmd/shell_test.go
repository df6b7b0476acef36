package cmd

import (
	"bytes"
	"io/ioutil"
	"os"
	"strings"
	"testing"

	"github.com/andreyvit/diff"

	"github.com/leftmike/keel/catalog"
	"github.com/leftmike/keel/engine"
	"github.com/leftmike/keel/sql"
)

func startEngine(t *testing.T, dir string) *engine.Engine {
	t.Helper()

	e, err := engine.Start(dir, 64)
	if err != nil {
		t.Fatalf("Start failed with %s", err)
	}
	return e
}

func TestDispatch(t *testing.T) {
	dir, err := ioutil.TempDir("", "shell_test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	e := startEngine(t, dir)
	_, err = e.Catalog().CreateTable("t",
		[]catalog.ColumnDef{
			{Name: "id", Type: sql.IntegerType},
			{Name: "name", Type: sql.StringType, Width: 8},
		}, nil)
	if err != nil {
		t.Fatalf("CreateTable failed with %s", err)
	}

	var buf bytes.Buffer
	for _, line := range []string{
		"insert t 1 a",
		"insert t 2 b",
	} {
		done, err := dispatch(e, line, &buf)
		if done || err != nil {
			t.Fatalf("dispatch(%q) got %t, %s", line, done, err)
		}
	}
	if !strings.Contains(buf.String(), "inserted at (1,0)") {
		t.Errorf("insert output got %q", buf.String())
	}

	buf.Reset()
	done, err := dispatch(e, "scan t", &buf)
	if done || err != nil {
		t.Fatalf("dispatch(scan t) got %t, %s", done, err)
	}
	scanned := buf.String()
	for _, s := range []string{"ID", "NAME", "1", "a", "2", "b"} {
		if !strings.Contains(scanned, s) {
			t.Errorf("scan output missing %q:\n%s", s, scanned)
		}
	}

	buf.Reset()
	done, err = dispatch(e, "tables", &buf)
	if done || err != nil {
		t.Fatalf("dispatch(tables) got %t, %s", done, err)
	}
	if !strings.Contains(buf.String(), "t") {
		t.Errorf("tables output got %q", buf.String())
	}

	if _, err = dispatch(e, "scan missing", &buf); err == nil {
		t.Error("dispatch(scan missing) did not fail")
	}
	if _, err = dispatch(e, "insert t 1", &buf); err == nil {
		t.Error("dispatch(insert with missing values) did not fail")
	}
	if _, err = dispatch(e, "insert t x a", &buf); err == nil {
		t.Error("dispatch(insert with bad integer) did not fail")
	}
	if _, err = dispatch(e, "bogus", &buf); err == nil {
		t.Error("dispatch(bogus) did not fail")
	}

	done, err = dispatch(e, "quit", &buf)
	if !done || err != nil {
		t.Errorf("dispatch(quit) got %t, %s", done, err)
	}
	if done, err = dispatch(e, "", &buf); done || err != nil {
		t.Errorf("dispatch of empty line got %t, %s", done, err)
	}

	// The table reads back the same after a restart.
	err = e.Close()
	if err != nil {
		t.Fatalf("Close failed with %s", err)
	}
	e = startEngine(t, dir)
	defer e.Close()

	buf.Reset()
	done, err = dispatch(e, "scan t", &buf)
	if done || err != nil {
		t.Fatalf("dispatch(scan t) after restart got %t, %s", done, err)
	}
	if buf.String() != scanned {
		t.Errorf("scan after restart differs:\n%s", diff.LineDiff(scanned, buf.String()))
	}
}
