package evaluate

import (
	"github.com/leftmike/keel/catalog"
	"github.com/leftmike/keel/engine"
	"github.com/leftmike/keel/sql"
	"github.com/leftmike/keel/storage/heap"
)

// SetClause assigns a literal to one column.
type SetClause struct {
	Col string
	Val sql.Value
}

// Update mutates the pre-resolved rids in place: for each rid the index
// entries keyed by the current on disk tuple are removed, the set clauses
// apply to the tuple buffer, the record is overwritten, and the index entries
// keyed by the new tuple are added. The rid never changes.
type Update struct {
	dmlExecutor
	sets []SetClause
	rids []heap.Rid
}

func NewUpdate(cat *catalog.Manager, tblName string, sets []SetClause, rids []heap.Rid,
	ctx *engine.Context) (*Update, error) {

	ref, err := resolveTable(cat, tblName, ctx)
	if err != nil {
		return nil, err
	}
	return &Update{
		dmlExecutor: dmlExecutor{ref: ref, ctx: ctx},
		sets:        sets,
		rids:        rids,
	}, nil
}

func (up *Update) updateRow(rid heap.Rid) error {
	tab := up.ref.tab
	rec, err := up.ref.fh.Get(rid, up.ctx.Locker())
	if err != nil {
		return err
	}
	before := make(heap.Record, len(rec))
	copy(before, rec)

	// Old index keys come from the tuple as it is on disk, before any set
	// clause applies.
	for idx := range tab.Indexes {
		err = up.ref.ihs[idx].DeleteEntry(tab.Indexes[idx].Key(before))
		if err != nil {
			return err
		}
	}

	for sdx := range up.sets {
		col, err := tab.Column(up.sets[sdx].Col)
		if err != nil {
			return err
		}
		err = sql.EncodeField(rec[col.Offset:col.Offset+col.Len], col.Type, up.sets[sdx].Val)
		if err != nil {
			return err
		}
	}

	err = up.ref.fh.Update(rid, rec, up.ctx.Locker())
	if err != nil {
		return err
	}

	for idx := range tab.Indexes {
		err = up.ref.ihs[idx].InsertEntry(tab.Indexes[idx].Key(rec), rid)
		if err != nil {
			// Put the row and its index entries back the way they were.
			for udx := 0; udx < idx; udx += 1 {
				up.ref.ihs[udx].DeleteEntry(tab.Indexes[udx].Key(rec))
			}
			for udx := range tab.Indexes {
				up.ref.ihs[udx].InsertEntry(tab.Indexes[udx].Key(before), rid)
			}
			up.ref.fh.Update(rid, before, up.ctx.Locker())
			return err
		}
	}

	if up.ctx != nil {
		up.ctx.Txn.AppendWrite(engine.WriteRecord{
			Kind:   engine.UpdateWrite,
			Table:  tab.Name,
			Rid:    rid,
			Before: before,
		})
	}
	return nil
}

func (up *Update) Begin() error {
	if up.done {
		return nil
	}
	up.done = true

	for _, rid := range up.rids {
		err := up.updateRow(rid)
		if err != nil {
			return err
		}
	}
	return nil
}
