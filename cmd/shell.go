package cmd

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/leftmike/keel/catalog"
	"github.com/leftmike/keel/engine"
	"github.com/leftmike/keel/evaluate"
	"github.com/leftmike/keel/sql"
)

// dispatch runs one shell command against the engine; it reports whether the
// shell should exit. Each scan and insert runs in its own transaction.
func dispatch(e *engine.Engine, line string, w io.Writer) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	switch fields[0] {
	case "exit", "quit":
		return true, nil
	case "tables":
		return false, showTables(e, w)
	case "scan":
		if len(fields) != 2 {
			return false, fmt.Errorf("keel: scan <table>")
		}
		return false, scanTable(e, fields[1], w)
	case "insert":
		if len(fields) < 3 {
			return false, fmt.Errorf("keel: insert <table> <value> ...")
		}
		return false, insertRow(e, fields[1], fields[2:], w)
	}

	return false, fmt.Errorf("keel: unknown command: %s", fields[0])
}

func showTables(e *engine.Engine, w io.Writer) error {
	names := e.Catalog().Tables()
	sort.Strings(names)

	tw := tablewriter.NewWriter(w)
	tw.SetHeader([]string{"table"})
	for _, name := range names {
		tw.Append([]string{name})
	}
	tw.Render()
	return nil
}

func scanTable(e *engine.Engine, tblName string, w io.Writer) error {
	tm, err := e.Catalog().Table(tblName)
	if err != nil {
		return err
	}

	txn, ctx := e.Begin()
	ss, err := evaluate.NewSeqScan(e.Catalog(), tblName, nil, ctx)
	if err != nil {
		e.Abort(txn)
		return err
	}

	var header []string
	for _, col := range tm.Cols {
		header = append(header, col.Name)
	}
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(header)

	err = ss.Begin()
	for err == nil && !ss.IsEnd() {
		var rec []byte
		rec, err = ss.Current()
		if err != nil {
			break
		}
		var row []string
		for _, v := range tm.DecodeRow(rec) {
			row = append(row, strings.Trim(v.String(), "'"))
		}
		tw.Append(row)
		err = ss.Next()
	}
	if err != nil {
		e.Abort(txn)
		return err
	}

	err = e.Commit(txn)
	if err != nil {
		return err
	}
	tw.Render()
	return nil
}

func parseValue(col *catalog.ColMeta, s string) (sql.Value, error) {
	switch col.Type {
	case sql.IntegerType:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("keel: column %s: %s", col.Name, err)
		}
		return sql.Int64Value(i), nil
	case sql.FloatType:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("keel: column %s: %s", col.Name, err)
		}
		return sql.Float64Value(f), nil
	case sql.StringType:
		return sql.StringValue(strings.Trim(s, "'\"")), nil
	}

	return nil, fmt.Errorf("keel: column %s: unexpected type", col.Name)
}

func insertRow(e *engine.Engine, tblName string, args []string, w io.Writer) error {
	tm, err := e.Catalog().Table(tblName)
	if err != nil {
		return err
	}
	if len(args) != len(tm.Cols) {
		return fmt.Errorf("keel: table %s: got %d values; want %d", tblName, len(args),
			len(tm.Cols))
	}

	vals := make([]sql.Value, len(args))
	for adx := range args {
		vals[adx], err = parseValue(&tm.Cols[adx], args[adx])
		if err != nil {
			return err
		}
	}

	txn, ctx := e.Begin()
	in, err := evaluate.NewInsert(e.Catalog(), tblName, vals, ctx)
	if err != nil {
		e.Abort(txn)
		return err
	}
	err = in.Begin()
	if err != nil {
		e.Abort(txn)
		return err
	}
	err = e.Commit(txn)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "inserted at %s\n", in.Rid())
	return nil
}
