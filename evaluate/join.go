package evaluate

import (
	"github.com/leftmike/keel/catalog"
	"github.com/leftmike/keel/storage/heap"
)

// NestedLoopJoin is the classic cartesian walk: outer loop over the left
// child, inner loop over the right, restarting the right every time the left
// advances. The output tuple is the left tuple followed by the right tuple;
// an empty predicate list makes the full cross product.
type NestedLoopJoin struct {
	left  Executor
	right Executor
	conds []Condition
	cols  []catalog.ColMeta
	len   int
}

func NewNestedLoopJoin(left, right Executor, conds []Condition) *NestedLoopJoin {
	cols := append([]catalog.ColMeta{}, left.Cols()...)
	for _, col := range right.Cols() {
		col.Offset += left.TupleLen()
		cols = append(cols, col)
	}

	return &NestedLoopJoin{
		left:  left,
		right: right,
		conds: conds,
		cols:  cols,
		len:   left.TupleLen() + right.TupleLen(),
	}
}

func (jn *NestedLoopJoin) current() (heap.Record, error) {
	leftRec, err := jn.left.Current()
	if err != nil {
		return nil, err
	}
	rightRec, err := jn.right.Current()
	if err != nil {
		return nil, err
	}

	rec := make(heap.Record, jn.len)
	copy(rec, leftRec)
	copy(rec[jn.left.TupleLen():], rightRec)
	return rec, nil
}

// advance walks pairs starting from the current one until the join predicate
// holds or the left child ends.
func (jn *NestedLoopJoin) advance() error {
	for !jn.left.IsEnd() {
		if jn.right.IsEnd() {
			err := jn.left.Next()
			if err != nil {
				return err
			}
			if jn.left.IsEnd() {
				return nil
			}
			err = jn.right.Begin()
			if err != nil {
				return err
			}
			continue
		}

		rec, err := jn.current()
		if err != nil {
			return err
		}
		ok, err := evalConds(jn.cols, jn.conds, rec)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		err = jn.right.Next()
		if err != nil {
			return err
		}
	}
	return nil
}

func (jn *NestedLoopJoin) Begin() error {
	err := jn.left.Begin()
	if err != nil {
		return err
	}
	if jn.left.IsEnd() {
		return nil
	}
	err = jn.right.Begin()
	if err != nil {
		return err
	}
	return jn.advance()
}

func (jn *NestedLoopJoin) Next() error {
	err := jn.right.Next()
	if err != nil {
		return err
	}
	return jn.advance()
}

func (jn *NestedLoopJoin) Current() (heap.Record, error) {
	return jn.current()
}

func (jn *NestedLoopJoin) IsEnd() bool {
	return jn.left.IsEnd()
}

func (jn *NestedLoopJoin) Cols() []catalog.ColMeta {
	return jn.cols
}

func (jn *NestedLoopJoin) TupleLen() int {
	return jn.len
}

func (jn *NestedLoopJoin) Rid() heap.Rid {
	return heap.Rid{}
}
