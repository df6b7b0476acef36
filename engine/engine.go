// Package engine wires the storage, catalog, lock manager, and transaction
// manager together behind one handle.
package engine

import (
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/leftmike/keel/catalog"
	"github.com/leftmike/keel/engine/fatlock"
	"github.com/leftmike/keel/storage/page"
)

type Engine struct {
	pool    *page.Pool
	cat     *catalog.Manager
	lockMgr *fatlock.Manager
	txnMgr  *TxnManager
}

func Start(dataDir string, poolSize int) (*Engine, error) {
	err := os.MkdirAll(dataDir, 0777)
	if err != nil {
		return nil, err
	}

	pool := page.NewPool(page.NewDiskManager(), poolSize)
	cat, err := catalog.Open(dataDir, pool)
	if err != nil {
		return nil, err
	}

	lockMgr := fatlock.NewManager()
	e := &Engine{
		pool:    pool,
		cat:     cat,
		lockMgr: lockMgr,
		txnMgr:  NewTxnManager(lockMgr, cat),
	}

	log.WithField("data", dataDir).Info("engine started")
	return e, nil
}

func (e *Engine) Catalog() *catalog.Manager {
	return e.cat
}

func (e *Engine) LockManager() *fatlock.Manager {
	return e.lockMgr
}

func (e *Engine) Begin() (*Transaction, *Context) {
	txn := e.txnMgr.Begin()
	return txn, &Context{Txn: txn, Locks: e.lockMgr}
}

func (e *Engine) Commit(txn *Transaction) error {
	return e.txnMgr.Commit(txn)
}

func (e *Engine) Abort(txn *Transaction) error {
	return e.txnMgr.Abort(txn)
}

func (e *Engine) Close() error {
	err := e.cat.Close()
	log.Info("engine stopped")
	return err
}
