// Package fatlock is a hierarchical multi-granularity lock manager with
// strict two phase locking. Conflicting requests never wait: the requester is
// aborted immediately, so deadlock is prevented rather than detected.
package fatlock

import (
	"fmt"
	"sync"

	"github.com/leftmike/keel/storage/heap"
)

type Mode int

const (
	NonLock Mode = iota // empty queue group mode
	IS
	IX
	S
	SIX
	X
)

var modeNames = map[Mode]string{
	NonLock: "-",
	IS:      "IS",
	IX:      "IX",
	S:       "S",
	SIX:     "SIX",
	X:       "X",
}

func (md Mode) String() string {
	return modeNames[md]
}

// join is the least upper bound under the lattice IS <= IX <= SIX <= X,
// IS <= S <= SIX <= X.
func join(md1, md2 Mode) Mode {
	if md1 == md2 {
		return md1
	}
	if md1 == NonLock {
		return md2
	}
	if md2 == NonLock {
		return md1
	}
	if md1 == X || md2 == X {
		return X
	}
	if md1 == IS {
		return md2
	}
	if md2 == IS {
		return md1
	}
	// Distinct modes from {IX, S, SIX}.
	return SIX
}

// conflicts reports whether a request of mode md may not join a queue whose
// granted group mode is group.
func conflicts(md, group Mode) bool {
	switch md {
	case IS:
		return group == X
	case IX:
		return group == S || group == SIX || group == X
	case S:
		return group == IX || group == SIX || group == X
	case SIX:
		return group == IX || group == S || group == SIX || group == X
	case X:
		return group != NonLock
	}

	panic(fmt.Sprintf("fatlock: unexpected lock mode: %d", md))
}

type TxnState int

const (
	Default TxnState = iota
	Growing
	Shrinking
	Committed
	Aborted
)

var stateNames = map[TxnState]string{
	Default:   "default",
	Growing:   "growing",
	Shrinking: "shrinking",
	Committed: "committed",
	Aborted:   "aborted",
}

func (ts TxnState) String() string {
	return stateNames[ts]
}

type AbortReason int

const (
	LockOnShrinking AbortReason = iota + 1
	DeadlockPrevention
	UpgradeConflict
)

var reasonNames = map[AbortReason]string{
	LockOnShrinking:    "lock request while shrinking",
	DeadlockPrevention: "conflicting lock request",
	UpgradeConflict:    "conflicting lock upgrade",
}

// AbortError means the transaction must be rolled back; it is returned from
// lock acquisition and caught at the transaction boundary.
type AbortError struct {
	Txn    uint64
	Reason AbortReason
}

func (err *AbortError) Error() string {
	return fmt.Sprintf("fatlock: transaction %d aborted: %s", err.Txn, reasonNames[err.Reason])
}

type DataType int

const (
	TableData DataType = iota + 1
	RecordData
)

// DataID names a lockable: a whole table file or one record of it.
type DataID struct {
	FileID uint32
	Rid    heap.Rid
	Typ    DataType
}

func TableID(fileID uint32) DataID {
	return DataID{FileID: fileID, Typ: TableData}
}

func RecordID(fileID uint32, rid heap.Rid) DataID {
	return DataID{FileID: fileID, Rid: rid, Typ: RecordData}
}

func (did DataID) String() string {
	if did.Typ == TableData {
		return fmt.Sprintf("table %d", did.FileID)
	}
	return fmt.Sprintf("record %d%s", did.FileID, did.Rid)
}

type Locker interface {
	TxnID() uint64
	LockerState() *LockerState
}

// LockerState is embedded in every transaction: its two phase locking state
// and the set of data ids it holds granted requests on. All fields are
// guarded by the owning Manager's latch.
type LockerState struct {
	State TxnState
	locks map[DataID]struct{}
}

// HeldLocks returns the data ids the locker holds; order is unspecified.
func (ls *LockerState) HeldLocks() []DataID {
	dids := make([]DataID, 0, len(ls.locks))
	for did := range ls.locks {
		dids = append(dids, did)
	}
	return dids
}

type request struct {
	txn     uint64
	mode    Mode
	granted bool
}

type queue struct {
	requests []*request
	group    Mode
	counts   [X + 1]int
}

type Manager struct {
	latch     sync.Mutex
	lockTable map[DataID]*queue
}

func NewManager() *Manager {
	return &Manager{
		lockTable: map[DataID]*queue{},
	}
}

// ensureCanLock enforces strict two phase locking: the first acquisition
// moves the transaction to growing; once shrinking (or terminal) no more
// locks may be taken.
func ensureCanLock(lkr Locker) error {
	ls := lkr.LockerState()
	switch ls.State {
	case Shrinking, Committed, Aborted:
		return &AbortError{Txn: lkr.TxnID(), Reason: LockOnShrinking}
	case Default:
		ls.State = Growing
	}
	return nil
}

// getQueue returns the request queue for did, creating it on first use; the
// latch must be held.
func (lm *Manager) getQueue(did DataID) *queue {
	q, ok := lm.lockTable[did]
	if !ok {
		q = &queue{}
		lm.lockTable[did] = q
	}
	return q
}

// grant appends a granted request and records it in the locker's lock set;
// the latch must be held.
func (lm *Manager) grant(lkr Locker, q *queue, did DataID, md Mode) {
	q.requests = append(q.requests, &request{txn: lkr.TxnID(), mode: md, granted: true})
	q.counts[md] += 1
	q.group = join(q.group, md)

	ls := lkr.LockerState()
	if ls.locks == nil {
		ls.locks = map[DataID]struct{}{}
	}
	ls.locks[did] = struct{}{}
}

// upgrade rewrites the mode of an existing granted request; the latch must be
// held.
func (q *queue) upgrade(req *request, md Mode) {
	q.counts[req.mode] -= 1
	req.mode = md
	q.counts[md] += 1

	group := NonLock
	for _, req := range q.requests {
		group = join(group, req.mode)
	}
	q.group = group
}

func (q *queue) find(txn uint64) *request {
	for _, req := range q.requests {
		if req.txn == txn {
			return req
		}
	}
	return nil
}

// LockSharedOnRecord takes a shared lock on one record, first taking IS on
// the owning table.
func (lm *Manager) LockSharedOnRecord(lkr Locker, fileID uint32, rid heap.Rid) error {
	lm.latch.Lock()
	defer lm.latch.Unlock()

	err := ensureCanLock(lkr)
	if err != nil {
		return err
	}
	err = lm.lockISOnTable(lkr, fileID)
	if err != nil {
		return err
	}

	did := RecordID(fileID, rid)
	q := lm.getQueue(did)
	if q.find(lkr.TxnID()) != nil {
		// S is the weakest record lock; whatever is held dominates it.
		return nil
	}
	if conflicts(S, q.group) {
		return &AbortError{Txn: lkr.TxnID(), Reason: DeadlockPrevention}
	}
	lm.grant(lkr, q, did, S)
	return nil
}

// LockExclusiveOnRecord takes an exclusive lock on one record, first taking
// IX on the owning table. An S held by the same transaction upgrades to X
// only when it is the sole request in the queue.
func (lm *Manager) LockExclusiveOnRecord(lkr Locker, fileID uint32, rid heap.Rid) error {
	lm.latch.Lock()
	defer lm.latch.Unlock()

	err := ensureCanLock(lkr)
	if err != nil {
		return err
	}
	err = lm.lockIXOnTable(lkr, fileID)
	if err != nil {
		return err
	}

	did := RecordID(fileID, rid)
	q := lm.getQueue(did)
	if req := q.find(lkr.TxnID()); req != nil {
		if req.mode == X {
			return nil
		}
		if req.mode == S && len(q.requests) == 1 {
			q.upgrade(req, X)
			return nil
		}
		return &AbortError{Txn: lkr.TxnID(), Reason: UpgradeConflict}
	}
	if conflicts(X, q.group) {
		return &AbortError{Txn: lkr.TxnID(), Reason: DeadlockPrevention}
	}
	lm.grant(lkr, q, did, X)
	return nil
}

// LockSharedOnTable takes a table level shared lock.
func (lm *Manager) LockSharedOnTable(lkr Locker, fileID uint32) error {
	lm.latch.Lock()
	defer lm.latch.Unlock()

	err := ensureCanLock(lkr)
	if err != nil {
		return err
	}

	did := TableID(fileID)
	q := lm.getQueue(did)
	if req := q.find(lkr.TxnID()); req != nil {
		switch req.mode {
		case S, SIX, X:
			return nil
		case IX:
			if q.counts[IX] == 1 {
				q.upgrade(req, SIX)
				return nil
			}
		case IS:
			if q.counts[IX] == 0 && q.counts[SIX] == 0 {
				q.upgrade(req, S)
				return nil
			}
		}
		return &AbortError{Txn: lkr.TxnID(), Reason: DeadlockPrevention}
	}
	if conflicts(S, q.group) {
		return &AbortError{Txn: lkr.TxnID(), Reason: DeadlockPrevention}
	}
	lm.grant(lkr, q, did, S)
	return nil
}

// LockExclusiveOnTable takes a table level exclusive lock; any held mode
// upgrades to X only when the queue holds no other request.
func (lm *Manager) LockExclusiveOnTable(lkr Locker, fileID uint32) error {
	lm.latch.Lock()
	defer lm.latch.Unlock()

	err := ensureCanLock(lkr)
	if err != nil {
		return err
	}

	did := TableID(fileID)
	q := lm.getQueue(did)
	if req := q.find(lkr.TxnID()); req != nil {
		if req.mode == X {
			return nil
		}
		if len(q.requests) == 1 {
			q.upgrade(req, X)
			return nil
		}
		return &AbortError{Txn: lkr.TxnID(), Reason: DeadlockPrevention}
	}
	if conflicts(X, q.group) {
		return &AbortError{Txn: lkr.TxnID(), Reason: DeadlockPrevention}
	}
	lm.grant(lkr, q, did, X)
	return nil
}

// LockISOnTable takes a table level intention shared lock.
func (lm *Manager) LockISOnTable(lkr Locker, fileID uint32) error {
	lm.latch.Lock()
	defer lm.latch.Unlock()

	err := ensureCanLock(lkr)
	if err != nil {
		return err
	}
	return lm.lockISOnTable(lkr, fileID)
}

// LockIXOnTable takes a table level intention exclusive lock.
func (lm *Manager) LockIXOnTable(lkr Locker, fileID uint32) error {
	lm.latch.Lock()
	defer lm.latch.Unlock()

	err := ensureCanLock(lkr)
	if err != nil {
		return err
	}
	return lm.lockIXOnTable(lkr, fileID)
}

// lockISOnTable does the IS work; the latch must be held.
func (lm *Manager) lockISOnTable(lkr Locker, fileID uint32) error {
	did := TableID(fileID)
	q := lm.getQueue(did)
	if q.find(lkr.TxnID()) != nil {
		// IS is the weakest table lock; whatever is held dominates it.
		return nil
	}
	if conflicts(IS, q.group) {
		return &AbortError{Txn: lkr.TxnID(), Reason: DeadlockPrevention}
	}
	lm.grant(lkr, q, did, IS)
	return nil
}

// lockIXOnTable does the IX work; the latch must be held.
func (lm *Manager) lockIXOnTable(lkr Locker, fileID uint32) error {
	did := TableID(fileID)
	q := lm.getQueue(did)
	if req := q.find(lkr.TxnID()); req != nil {
		switch req.mode {
		case IX, SIX, X:
			return nil
		case S:
			if q.counts[S] == 1 {
				q.upgrade(req, SIX)
				return nil
			}
		case IS:
			if q.counts[S] == 0 && q.counts[SIX] == 0 {
				q.upgrade(req, IX)
				return nil
			}
		}
		return &AbortError{Txn: lkr.TxnID(), Reason: DeadlockPrevention}
	}
	if conflicts(IX, q.group) {
		return &AbortError{Txn: lkr.TxnID(), Reason: DeadlockPrevention}
	}
	lm.grant(lkr, q, did, IX)
	return nil
}

// Unlock releases the locker's request on did. The first release moves the
// transaction from growing to shrinking. It returns false, and releases
// nothing, when the transaction has already committed or aborted; otherwise it
// returns true.
func (lm *Manager) Unlock(lkr Locker, did DataID) bool {
	lm.latch.Lock()
	defer lm.latch.Unlock()

	ls := lkr.LockerState()
	if ls.State == Committed || ls.State == Aborted {
		return false
	}
	if ls.State == Growing {
		ls.State = Shrinking
	}
	lm.unlock(lkr, did)
	return true
}

// unlock removes the locker's request on did; the latch must be held.
func (lm *Manager) unlock(lkr Locker, did DataID) {
	q, ok := lm.lockTable[did]
	if !ok {
		return
	}
	for idx, req := range q.requests {
		if req.txn != lkr.TxnID() {
			continue
		}
		q.counts[req.mode] -= 1
		q.requests = append(q.requests[:idx], q.requests[idx+1:]...)
		break
	}
	delete(lkr.LockerState().locks, did)

	if len(q.requests) == 0 {
		delete(lm.lockTable, did)
		return
	}
	group := NonLock
	for _, req := range q.requests {
		group = join(group, req.mode)
	}
	q.group = group
}

// ReleaseAll releases every lock the locker holds; used at commit and abort.
// It does not move the transaction to shrinking: the caller sets the terminal
// state afterward.
func (lm *Manager) ReleaseAll(lkr Locker) {
	lm.latch.Lock()
	defer lm.latch.Unlock()

	ls := lkr.LockerState()
	for did := range ls.locks {
		lm.unlock(lkr, did)
	}
}

// Lock describes one granted request for introspection and tests.
type Lock struct {
	DataID DataID
	Txn    uint64
	Mode   Mode
}

// Locks returns every request in the lock table; order is unspecified.
func (lm *Manager) Locks() []Lock {
	lm.latch.Lock()
	defer lm.latch.Unlock()

	var lks []Lock
	for did, q := range lm.lockTable {
		for _, req := range q.requests {
			lks = append(lks, Lock{DataID: did, Txn: req.txn, Mode: req.mode})
		}
	}
	return lks
}

// GroupMode returns the aggregate mode of the queue for did, NonLock if the
// queue is empty.
func (lm *Manager) GroupMode(did DataID) Mode {
	lm.latch.Lock()
	defer lm.latch.Unlock()

	q, ok := lm.lockTable[did]
	if !ok {
		return NonLock
	}
	return q.group
}
