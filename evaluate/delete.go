package evaluate

import (
	"github.com/leftmike/keel/catalog"
	"github.com/leftmike/keel/engine"
	"github.com/leftmike/keel/storage/heap"
)

// Delete removes the pre-resolved rids: for each rid the before image is
// captured, every index entry keyed by it is removed, the record is deleted,
// and a write record carries the before image for rollback.
type Delete struct {
	dmlExecutor
	rids []heap.Rid
}

func NewDelete(cat *catalog.Manager, tblName string, rids []heap.Rid,
	ctx *engine.Context) (*Delete, error) {

	ref, err := resolveTable(cat, tblName, ctx)
	if err != nil {
		return nil, err
	}
	return &Delete{
		dmlExecutor: dmlExecutor{ref: ref, ctx: ctx},
		rids:        rids,
	}, nil
}

func (de *Delete) deleteRow(rid heap.Rid) error {
	tab := de.ref.tab
	rec, err := de.ref.fh.Get(rid, de.ctx.Locker())
	if err != nil {
		return err
	}

	for idx := range tab.Indexes {
		err = de.ref.ihs[idx].DeleteEntry(tab.Indexes[idx].Key(rec))
		if err != nil {
			return err
		}
	}

	err = de.ref.fh.Delete(rid, de.ctx.Locker())
	if err != nil {
		return err
	}

	if de.ctx != nil {
		de.ctx.Txn.AppendWrite(engine.WriteRecord{
			Kind:   engine.DeleteWrite,
			Table:  tab.Name,
			Rid:    rid,
			Before: rec,
		})
	}
	return nil
}

func (de *Delete) Begin() error {
	if de.done {
		return nil
	}
	de.done = true

	for _, rid := range de.rids {
		err := de.deleteRow(rid)
		if err != nil {
			return err
		}
	}
	return nil
}
