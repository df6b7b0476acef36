package engine

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/leftmike/keel/catalog"
	"github.com/leftmike/keel/engine/fatlock"
)

// TxnManager hands out transactions and finishes them: commit frees the write
// set and releases locks; abort walks the write set in reverse, applying the
// inverse of each recorded mutation, and then releases locks.
type TxnManager struct {
	lockMgr *fatlock.Manager
	cat     *catalog.Manager

	mu       sync.Mutex
	nextTxn  uint64
	nextTS   uint64
	txns     map[uint64]*Transaction
}

func NewTxnManager(lockMgr *fatlock.Manager, cat *catalog.Manager) *TxnManager {
	return &TxnManager{
		lockMgr: lockMgr,
		cat:     cat,
		nextTxn: 1,
		nextTS:  1,
		txns:    map[uint64]*Transaction{},
	}
}

func (tm *TxnManager) Begin() *Transaction {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	txn := &Transaction{
		id:      tm.nextTxn,
		startTS: tm.nextTS,
	}
	tm.nextTxn += 1
	tm.nextTS += 1
	txn.lockerState.State = fatlock.Growing
	tm.txns[txn.id] = txn

	log.WithField("txn", txn.id).Debug("begin")
	return txn
}

// Transaction looks up a live transaction by id.
func (tm *TxnManager) Transaction(id uint64) (*Transaction, bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	txn, ok := tm.txns[id]
	return txn, ok
}

// Commit frees the write set and releases every lock. Committing twice is a
// no-op; committing an aborted transaction fails.
func (tm *TxnManager) Commit(txn *Transaction) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	switch txn.State() {
	case fatlock.Committed:
		return nil
	case fatlock.Aborted:
		return fmt.Errorf("engine: transaction %d already aborted", txn.id)
	}

	txn.writes = nil
	tm.lockMgr.ReleaseAll(txn)
	txn.lockerState.State = fatlock.Committed
	delete(tm.txns, txn.id)

	log.WithField("txn", txn.id).Debug("commit")
	return nil
}

// Abort rolls the transaction back by replaying the write set in reverse
// insertion order, then releases every lock. Aborting twice is a no-op.
func (tm *TxnManager) Abort(txn *Transaction) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	switch txn.State() {
	case fatlock.Aborted:
		return nil
	case fatlock.Committed:
		return fmt.Errorf("engine: transaction %d already committed", txn.id)
	}

	ctx := &Context{Txn: txn, Locks: tm.lockMgr}
	for wdx := len(txn.writes) - 1; wdx >= 0; wdx -= 1 {
		err := tm.undo(ctx, &txn.writes[wdx])
		if err != nil {
			return fmt.Errorf("engine: transaction %d: rollback: %s", txn.id, err)
		}
	}

	txn.writes = nil
	tm.lockMgr.ReleaseAll(txn)
	txn.lockerState.State = fatlock.Aborted
	delete(tm.txns, txn.id)

	log.WithField("txn", txn.id).Debug("abort")
	return nil
}

// undo applies the inverse of one write record. The transaction still holds
// its record locks, so the locking done by the record operations is a
// self-request.
func (tm *TxnManager) undo(ctx *Context, wr *WriteRecord) error {
	tbl, err := tm.cat.Table(wr.Table)
	if err != nil {
		return err
	}
	fh, err := tm.cat.FileHandle(wr.Table)
	if err != nil {
		return err
	}

	switch wr.Kind {
	case InsertWrite:
		// The slot still holds the inserted tuple: key the index deletes by
		// it, then delete the record.
		rec, err := fh.Get(wr.Rid, ctx)
		if err != nil {
			return err
		}
		for idx := range tbl.Indexes {
			im := &tbl.Indexes[idx]
			ih, err := tm.cat.Index(im.Name)
			if err != nil {
				return err
			}
			err = ih.DeleteEntry(im.Key(rec))
			if err != nil {
				return err
			}
		}
		return fh.Delete(wr.Rid, ctx)

	case DeleteWrite:
		// Restore the record at its original rid, then its index entries.
		err = fh.InsertAt(wr.Rid, wr.Before)
		if err != nil {
			return err
		}
		for idx := range tbl.Indexes {
			im := &tbl.Indexes[idx]
			ih, err := tm.cat.Index(im.Name)
			if err != nil {
				return err
			}
			err = ih.InsertEntry(im.Key(wr.Before), wr.Rid)
			if err != nil {
				return err
			}
		}
		return nil

	case UpdateWrite:
		// Key the index deletes by the current on disk tuple, reinsert keyed
		// by the before image, then restore the tuple.
		rec, err := fh.Get(wr.Rid, ctx)
		if err != nil {
			return err
		}
		for idx := range tbl.Indexes {
			im := &tbl.Indexes[idx]
			ih, err := tm.cat.Index(im.Name)
			if err != nil {
				return err
			}
			err = ih.DeleteEntry(im.Key(rec))
			if err != nil {
				return err
			}
			err = ih.InsertEntry(im.Key(wr.Before), wr.Rid)
			if err != nil {
				return err
			}
		}
		return fh.Update(wr.Rid, wr.Before, ctx)
	}

	return fmt.Errorf("unexpected write record kind: %d", wr.Kind)
}
