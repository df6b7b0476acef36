package engine

import (
	"github.com/leftmike/keel/engine/fatlock"
	"github.com/leftmike/keel/storage/heap"
)

type WriteKind int

const (
	InsertWrite WriteKind = iota + 1
	DeleteWrite
	UpdateWrite
)

// WriteRecord is one entry of a transaction's write set: enough to invert the
// mutation on abort. Before is the before image for deletes and updates; an
// insert needs none.
type WriteRecord struct {
	Kind   WriteKind
	Table  string
	Rid    heap.Rid
	Before heap.Record
}

type Transaction struct {
	id          uint64
	startTS     uint64
	lockerState fatlock.LockerState
	writes      []WriteRecord
}

func (txn *Transaction) TxnID() uint64 {
	return txn.id
}

func (txn *Transaction) StartTS() uint64 {
	return txn.startTS
}

func (txn *Transaction) LockerState() *fatlock.LockerState {
	return &txn.lockerState
}

func (txn *Transaction) State() fatlock.TxnState {
	return txn.lockerState.State
}

func (txn *Transaction) AppendWrite(wr WriteRecord) {
	txn.writes = append(txn.writes, wr)
}

// Context threads a transaction and the lock manager through every record
// operation; it is the heap.Locker the storage layer locks with.
type Context struct {
	Txn   *Transaction
	Locks *fatlock.Manager
}

func (ctx *Context) LockShared(fileID uint32, rid heap.Rid) error {
	return ctx.Locks.LockSharedOnRecord(ctx.Txn, fileID, rid)
}

func (ctx *Context) LockExclusive(fileID uint32, rid heap.Rid) error {
	return ctx.Locks.LockExclusiveOnRecord(ctx.Txn, fileID, rid)
}

// Locker converts a possibly nil context into the heap locking interface; a
// nil context means unlocked access.
func (ctx *Context) Locker() heap.Locker {
	if ctx == nil {
		return nil
	}
	return ctx
}
