// Package index is an ordered index from encoded key bytes to record ids,
// kept in memory and rebuilt from the heap when a table is opened.
package index

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/google/btree"

	"github.com/leftmike/keel/storage/heap"
)

type DuplicateKeyError struct {
	Key []byte
}

func (err *DuplicateKeyError) Error() string {
	return fmt.Sprintf("index: duplicate key: %v", err.Key)
}

type KeyNotFoundError struct {
	Key []byte
}

func (err *KeyNotFoundError) Error() string {
	return fmt.Sprintf("index: key not found: %v", err.Key)
}

type indexItem struct {
	key []byte
	rid heap.Rid
}

func (ii indexItem) Less(item btree.Item) bool {
	return bytes.Compare(ii.key, item.(indexItem).key) < 0
}

type Index struct {
	mu   sync.Mutex
	tree *btree.BTree
}

func New() *Index {
	return &Index{
		tree: btree.New(16),
	}
}

// InsertEntry adds key -> rid; keys are unique.
func (idx *Index) InsertEntry(key []byte, rid heap.Rid) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.tree.Has(indexItem{key: key}) {
		return &DuplicateKeyError{Key: key}
	}
	k := make([]byte, len(key))
	copy(k, key)
	idx.tree.ReplaceOrInsert(indexItem{key: k, rid: rid})
	return nil
}

func (idx *Index) DeleteEntry(key []byte) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.tree.Delete(indexItem{key: key}) == nil {
		return &KeyNotFoundError{Key: key}
	}
	return nil
}

func (idx *Index) Search(key []byte) (heap.Rid, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	item := idx.tree.Get(indexItem{key: key})
	if item == nil {
		return heap.Rid{}, false
	}
	return item.(indexItem).rid, true
}

// Ascend visits entries with key >= minKey in key order until fn returns
// false.
func (idx *Index) Ascend(minKey []byte, fn func(key []byte, rid heap.Rid) bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.tree.AscendGreaterOrEqual(indexItem{key: minKey},
		func(item btree.Item) bool {
			ii := item.(indexItem)
			return fn(ii.key, ii.rid)
		})
}

func (idx *Index) Len() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	return idx.tree.Len()
}
