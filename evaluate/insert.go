package evaluate

import (
	"github.com/leftmike/keel/catalog"
	"github.com/leftmike/keel/engine"
	"github.com/leftmike/keel/sql"
	"github.com/leftmike/keel/storage/heap"
)

// Insert adds one row: the record first, then every index entry, then the
// write record for rollback.
type Insert struct {
	dmlExecutor
	vals []sql.Value
	rid  heap.Rid
}

func NewInsert(cat *catalog.Manager, tblName string, vals []sql.Value,
	ctx *engine.Context) (*Insert, error) {

	ref, err := resolveTable(cat, tblName, ctx)
	if err != nil {
		return nil, err
	}
	return &Insert{
		dmlExecutor: dmlExecutor{ref: ref, ctx: ctx},
		vals:        vals,
	}, nil
}

func (in *Insert) Begin() error {
	if in.done {
		return nil
	}
	in.done = true

	buf, err := in.ref.tab.EncodeRow(in.vals)
	if err != nil {
		return err
	}

	rid, err := in.ref.fh.Insert(buf, in.ctx.Locker())
	if err != nil {
		return err
	}
	in.rid = rid

	for idx := range in.ref.tab.Indexes {
		im := &in.ref.tab.Indexes[idx]
		err = in.ref.ihs[idx].InsertEntry(im.Key(buf), rid)
		if err != nil {
			// Unwind the partial insert so the caller's rollback sees a
			// consistent table.
			for udx := 0; udx < idx; udx += 1 {
				in.ref.ihs[udx].DeleteEntry(in.ref.tab.Indexes[udx].Key(buf))
			}
			in.ref.fh.Delete(rid, in.ctx.Locker())
			return err
		}
	}

	if in.ctx != nil {
		in.ctx.Txn.AppendWrite(engine.WriteRecord{
			Kind:  engine.InsertWrite,
			Table: in.ref.tab.Name,
			Rid:   rid,
		})
	}
	return nil
}

// Rid returns the rid the row was inserted at.
func (in *Insert) Rid() heap.Rid {
	return in.rid
}
