package evaluate

import (
	"fmt"

	"github.com/leftmike/keel/catalog"
	"github.com/leftmike/keel/engine"
	"github.com/leftmike/keel/index"
	"github.com/leftmike/keel/storage/heap"
)

// tableRef is a resolved table: metadata, the heap file, and the open index
// per IndexMeta.
type tableRef struct {
	tab *catalog.TableMeta
	fh  *heap.FileHandle
	ihs []*index.Index
}

// resolveTable looks the table up and takes IX on it; every DML executor
// starts here.
func resolveTable(cat *catalog.Manager, tblName string, ctx *engine.Context) (tableRef, error) {
	tab, err := cat.Table(tblName)
	if err != nil {
		return tableRef{}, err
	}
	fh, err := cat.FileHandle(tblName)
	if err != nil {
		return tableRef{}, err
	}

	ihs := make([]*index.Index, len(tab.Indexes))
	for idx := range tab.Indexes {
		ihs[idx], err = cat.Index(tab.Indexes[idx].Name)
		if err != nil {
			return tableRef{}, err
		}
	}

	if ctx != nil {
		err = ctx.Locks.LockIXOnTable(ctx.Txn, fh.FileID())
		if err != nil {
			return tableRef{}, err
		}
	}

	return tableRef{tab: tab, fh: fh, ihs: ihs}, nil
}

// dmlExecutor is the shared shape of Insert, Update, and Delete: the mutation
// runs in Begin and the executor is immediately at the end.
type dmlExecutor struct {
	ref  tableRef
	ctx  *engine.Context
	done bool
}

func (de *dmlExecutor) Next() error {
	return nil
}

func (de *dmlExecutor) Current() (heap.Record, error) {
	return nil, fmt.Errorf("evaluate: no current tuple")
}

func (de *dmlExecutor) IsEnd() bool {
	return true
}

func (de *dmlExecutor) Cols() []catalog.ColMeta {
	return de.ref.tab.Cols
}

func (de *dmlExecutor) TupleLen() int {
	return de.ref.tab.RecordSize
}

func (de *dmlExecutor) Rid() heap.Rid {
	return heap.Rid{}
}
