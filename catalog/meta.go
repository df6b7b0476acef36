package catalog

import (
	"fmt"
	"strings"

	"github.com/leftmike/keel/sql"
)

// ColMeta describes one fixed width column of a table's tuple layout;
// immutable once the table is created.
type ColMeta struct {
	Name   string
	Type   sql.DataType
	Len    int
	Offset int
}

// IndexMeta describes one index: the indexed columns in order and the total
// width of the encoded key.
type IndexMeta struct {
	Name      string
	Cols      []ColMeta
	ColTotLen int
}

// Key extracts the index key bytes from an encoded tuple.
func (im *IndexMeta) Key(rec []byte) []byte {
	key := make([]byte, 0, im.ColTotLen)
	for _, col := range im.Cols {
		key = append(key, rec[col.Offset:col.Offset+col.Len]...)
	}
	return key
}

type TableMeta struct {
	Name       string
	Cols       []ColMeta
	Indexes    []IndexMeta
	RecordSize int
}

func (tm *TableMeta) Column(name string) (*ColMeta, error) {
	for cdx := range tm.Cols {
		if tm.Cols[cdx].Name == name {
			return &tm.Cols[cdx], nil
		}
	}
	return nil, fmt.Errorf("catalog: table %s: column %s not found", tm.Name, name)
}

// EncodeRow encodes one value per column into a tuple buffer.
func (tm *TableMeta) EncodeRow(vals []sql.Value) ([]byte, error) {
	if len(vals) != len(tm.Cols) {
		return nil, fmt.Errorf("catalog: table %s: got %d values; want %d", tm.Name,
			len(vals), len(tm.Cols))
	}

	buf := make([]byte, tm.RecordSize)
	for cdx, col := range tm.Cols {
		err := sql.EncodeField(buf[col.Offset:col.Offset+col.Len], col.Type, vals[cdx])
		if err != nil {
			return nil, fmt.Errorf("catalog: table %s: column %s: %s", tm.Name, col.Name, err)
		}
	}
	return buf, nil
}

// DecodeRow decodes a tuple buffer back into one value per column.
func (tm *TableMeta) DecodeRow(rec []byte) []sql.Value {
	vals := make([]sql.Value, len(tm.Cols))
	for cdx, col := range tm.Cols {
		vals[cdx] = sql.DecodeField(rec[col.Offset:col.Offset+col.Len], col.Type)
	}
	return vals
}

// ColumnDef is the column description given to CreateTable; Width matters
// only for CHAR columns.
type ColumnDef struct {
	Name  string
	Type  sql.DataType
	Width int
}

func indexName(tblName string, cols []string) string {
	return tblName + "_" + strings.Join(cols, "_")
}
