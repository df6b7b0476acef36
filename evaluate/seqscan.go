package evaluate

import (
	"github.com/leftmike/keel/catalog"
	"github.com/leftmike/keel/engine"
	"github.com/leftmike/keel/storage/heap"
)

// SeqScan walks every occupied slot of a table, skipping tuples that fail its
// predicate list.
type SeqScan struct {
	tab   *catalog.TableMeta
	fh    *heap.FileHandle
	conds []Condition
	ctx   *engine.Context

	scan *heap.Scan
	rid  heap.Rid
}

// NewSeqScan builds the scan and takes an IS lock on the table so the file
// does not change shape under the cursor.
func NewSeqScan(cat *catalog.Manager, tblName string, conds []Condition,
	ctx *engine.Context) (*SeqScan, error) {

	tab, err := cat.Table(tblName)
	if err != nil {
		return nil, err
	}
	fh, err := cat.FileHandle(tblName)
	if err != nil {
		return nil, err
	}
	if ctx != nil {
		err = ctx.Locks.LockISOnTable(ctx.Txn, fh.FileID())
		if err != nil {
			return nil, err
		}
	}

	return &SeqScan{
		tab:   tab,
		fh:    fh,
		conds: conds,
		ctx:   ctx,
	}, nil
}

// advance moves the underlying scan forward until the predicate holds.
func (ss *SeqScan) advance() error {
	for !ss.scan.IsEnd() {
		ss.rid = ss.scan.Rid()
		rec, err := ss.fh.Get(ss.rid, ss.ctx.Locker())
		if err != nil {
			return err
		}
		ok, err := evalConds(ss.tab.Cols, ss.conds, rec)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		err = ss.scan.Next()
		if err != nil {
			return err
		}
	}
	return nil
}

func (ss *SeqScan) Begin() error {
	scan, err := ss.fh.NewScan()
	if err != nil {
		return err
	}
	ss.scan = scan
	return ss.advance()
}

func (ss *SeqScan) Next() error {
	err := ss.scan.Next()
	if err != nil {
		return err
	}
	return ss.advance()
}

func (ss *SeqScan) Current() (heap.Record, error) {
	return ss.fh.Get(ss.rid, ss.ctx.Locker())
}

func (ss *SeqScan) IsEnd() bool {
	return ss.scan == nil || ss.scan.IsEnd()
}

func (ss *SeqScan) Cols() []catalog.ColMeta {
	return ss.tab.Cols
}

func (ss *SeqScan) TupleLen() int {
	return ss.tab.RecordSize
}

func (ss *SeqScan) Rid() heap.Rid {
	return ss.rid
}
