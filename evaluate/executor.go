// Package evaluate is the pull based executor tree: every operator positions
// a cursor with Begin, advances it with Next, and hands out the tuple at the
// cursor with Current. Operators compose by tuple concatenation; tuples are
// opaque fixed width byte buffers described by the column metadata.
package evaluate

import (
	"github.com/leftmike/keel/catalog"
	"github.com/leftmike/keel/storage/heap"
)

type Executor interface {
	// Begin positions the cursor at the first output tuple, or at the end.
	Begin() error

	// Next advances past the current tuple.
	Next() error

	// Current returns the tuple at the cursor.
	Current() (heap.Record, error)

	IsEnd() bool

	Cols() []catalog.ColMeta
	TupleLen() int

	// Rid is meaningful for scan like operators and for Insert, which returns
	// the rid it inserted at; others return the zero Rid.
	Rid() heap.Rid
}
