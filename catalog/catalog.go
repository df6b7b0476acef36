// Package catalog owns table metadata, the open heap file per table, and the
// open index per IndexMeta. Schemas persist in a bbolt store under the data
// directory; indexes are rebuilt from the heap when a table is opened.
package catalog

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"
	"go.etcd.io/bbolt"

	"github.com/leftmike/keel/index"
	"github.com/leftmike/keel/sql"
	"github.com/leftmike/keel/storage/heap"
	"github.com/leftmike/keel/storage/page"
)

var (
	tablesBucket = []byte("tables")
)

type Manager struct {
	dataDir string
	pool    *page.Pool
	db      *bbolt.DB

	mu     sync.Mutex
	tables map[string]*TableMeta
	fhs    map[string]*heap.FileHandle
	ihs    map[string]*index.Index
}

func Open(dataDir string, pool *page.Pool) (*Manager, error) {
	db, err := bbolt.Open(filepath.Join(dataDir, "catalog.db"), 0666, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: %s", err)
	}

	cm := &Manager{
		dataDir: dataDir,
		pool:    pool,
		db:      db,
		tables:  map[string]*TableMeta{},
		fhs:     map[string]*heap.FileHandle{},
		ihs:     map[string]*index.Index{},
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists(tablesBucket)
		if err != nil {
			return err
		}
		return bkt.ForEach(func(key, val []byte) error {
			var tm TableMeta
			err := json.Unmarshal(val, &tm)
			if err != nil {
				return fmt.Errorf("table %s: %s", key, err)
			}
			cm.tables[tm.Name] = &tm
			return nil
		})
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: %s", err)
	}

	for name, tm := range cm.tables {
		err = cm.openTable(tm)
		if err != nil {
			cm.Close()
			return nil, fmt.Errorf("catalog: table %s: %s", name, err)
		}
	}

	log.WithFields(log.Fields{
		"data":   dataDir,
		"tables": len(cm.tables),
	}).Info("catalog open")
	return cm, nil
}

func (cm *Manager) tablePath(name string) string {
	return filepath.Join(cm.dataDir, name+".dat")
}

// openTable opens the heap file and rebuilds the table's indexes by scanning
// it.
func (cm *Manager) openTable(tm *TableMeta) error {
	fh, err := heap.Open(cm.pool, cm.tablePath(tm.Name))
	if err != nil {
		return err
	}
	cm.fhs[tm.Name] = fh

	for idx := range tm.Indexes {
		cm.ihs[tm.Indexes[idx].Name] = index.New()
	}
	scan, err := fh.NewScan()
	if err != nil {
		return err
	}
	for !scan.IsEnd() {
		rec, err := fh.Get(scan.Rid(), nil)
		if err != nil {
			return err
		}
		for idx := range tm.Indexes {
			im := &tm.Indexes[idx]
			err = cm.ihs[im.Name].InsertEntry(im.Key(rec), scan.Rid())
			if err != nil {
				return err
			}
		}
		err = scan.Next()
		if err != nil {
			return err
		}
	}
	return nil
}

// CreateTable creates a heap file for the table and an empty index per index
// column list, and persists the schema.
func (cm *Manager) CreateTable(name string, defs []ColumnDef, indexes [][]string) (*TableMeta,
	error) {

	if len(defs) == 0 {
		return nil, fmt.Errorf("catalog: table %s: no columns", name)
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, ok := cm.tables[name]; ok {
		return nil, fmt.Errorf("catalog: table %s already exists", name)
	}

	tm := &TableMeta{Name: name}
	offset := 0
	for _, def := range defs {
		w := sql.FieldWidth(def.Type, def.Width)
		if w <= 0 {
			return nil, fmt.Errorf("catalog: table %s: column %s: bad width %d", name,
				def.Name, def.Width)
		}
		tm.Cols = append(tm.Cols, ColMeta{
			Name:   def.Name,
			Type:   def.Type,
			Len:    w,
			Offset: offset,
		})
		offset += w
	}
	tm.RecordSize = offset

	for _, colNames := range indexes {
		im := IndexMeta{Name: indexName(name, colNames)}
		for _, colName := range colNames {
			col, err := tm.Column(colName)
			if err != nil {
				return nil, err
			}
			im.Cols = append(im.Cols, *col)
			im.ColTotLen += col.Len
		}
		tm.Indexes = append(tm.Indexes, im)
	}

	buf, err := json.Marshal(tm)
	if err != nil {
		return nil, fmt.Errorf("catalog: table %s: %s", name, err)
	}
	err = cm.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(tablesBucket).Put([]byte(name), buf)
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: table %s: %s", name, err)
	}

	fh, err := heap.Create(cm.pool, cm.tablePath(name), tm.RecordSize)
	if err != nil {
		return nil, err
	}

	cm.tables[name] = tm
	cm.fhs[name] = fh
	for idx := range tm.Indexes {
		cm.ihs[tm.Indexes[idx].Name] = index.New()
	}

	log.WithFields(log.Fields{
		"table":   name,
		"columns": len(tm.Cols),
		"indexes": len(tm.Indexes),
	}).Info("table created")
	return tm, nil
}

func (cm *Manager) DropTable(name string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	tm, ok := cm.tables[name]
	if !ok {
		return fmt.Errorf("catalog: table %s not found", name)
	}

	err := cm.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(tablesBucket).Delete([]byte(name))
	})
	if err != nil {
		return fmt.Errorf("catalog: table %s: %s", name, err)
	}

	fh := cm.fhs[name]
	cm.pool.DropFile(fh.FileID())
	err = cm.pool.DiskManager().RemoveFile(fh.FileID())
	if err != nil {
		return err
	}

	for idx := range tm.Indexes {
		delete(cm.ihs, tm.Indexes[idx].Name)
	}
	delete(cm.fhs, name)
	delete(cm.tables, name)

	log.WithField("table", name).Info("table dropped")
	return nil
}

func (cm *Manager) Table(name string) (*TableMeta, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	tm, ok := cm.tables[name]
	if !ok {
		return nil, fmt.Errorf("catalog: table %s not found", name)
	}
	return tm, nil
}

func (cm *Manager) Tables() []string {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	var names []string
	for name := range cm.tables {
		names = append(names, name)
	}
	return names
}

func (cm *Manager) FileHandle(name string) (*heap.FileHandle, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	fh, ok := cm.fhs[name]
	if !ok {
		return nil, fmt.Errorf("catalog: table %s not open", name)
	}
	return fh, nil
}

func (cm *Manager) Index(name string) (*index.Index, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	ih, ok := cm.ihs[name]
	if !ok {
		return nil, fmt.Errorf("catalog: index %s not open", name)
	}
	return ih, nil
}

func (cm *Manager) Close() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	for name, fh := range cm.fhs {
		err := fh.Close()
		if err != nil {
			return fmt.Errorf("catalog: table %s: %s", name, err)
		}
	}
	cm.fhs = map[string]*heap.FileHandle{}
	return cm.db.Close()
}
