package evaluate

import (
	"github.com/leftmike/keel/catalog"
	"github.com/leftmike/keel/storage/heap"
)

// Projection narrows its child to the selected columns, recomputing offsets
// densely left to right.
type Projection struct {
	child   Executor
	cols    []catalog.ColMeta
	selIdxs []int
	len     int
}

func NewProjection(child Executor, selCols []string) (*Projection, error) {
	childCols := child.Cols()

	pr := &Projection{child: child}
	offset := 0
	for _, name := range selCols {
		col, err := findCol(childCols, name)
		if err != nil {
			return nil, err
		}
		for cdx := range childCols {
			if &childCols[cdx] == col {
				pr.selIdxs = append(pr.selIdxs, cdx)
				break
			}
		}
		out := *col
		out.Offset = offset
		offset += out.Len
		pr.cols = append(pr.cols, out)
	}
	pr.len = offset
	return pr, nil
}

func (pr *Projection) Begin() error {
	return pr.child.Begin()
}

func (pr *Projection) Next() error {
	return pr.child.Next()
}

func (pr *Projection) Current() (heap.Record, error) {
	childRec, err := pr.child.Current()
	if err != nil {
		return nil, err
	}

	childCols := pr.child.Cols()
	rec := make(heap.Record, pr.len)
	for pdx, col := range pr.cols {
		childCol := childCols[pr.selIdxs[pdx]]
		copy(rec[col.Offset:col.Offset+col.Len],
			childRec[childCol.Offset:childCol.Offset+childCol.Len])
	}
	return rec, nil
}

func (pr *Projection) IsEnd() bool {
	return pr.child.IsEnd()
}

func (pr *Projection) Cols() []catalog.ColMeta {
	return pr.cols
}

func (pr *Projection) TupleLen() int {
	return pr.len
}

func (pr *Projection) Rid() heap.Rid {
	return heap.Rid{}
}
