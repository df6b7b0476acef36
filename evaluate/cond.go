package evaluate

import (
	"fmt"

	"github.com/leftmike/keel/catalog"
	"github.com/leftmike/keel/sql"
)

type CompOp int

const (
	EqualOp CompOp = iota + 1
	NotEqualOp
	LessThanOp
	GreaterThanOp
	LessEqualOp
	GreaterEqualOp
)

var compOpNames = map[CompOp]string{
	EqualOp:        "=",
	NotEqualOp:     "<>",
	LessThanOp:     "<",
	GreaterThanOp:  ">",
	LessEqualOp:    "<=",
	GreaterEqualOp: ">=",
}

func (op CompOp) String() string {
	return compOpNames[op]
}

// Condition compares the Lhs column against either another column or a typed
// literal. A condition list is a conjunction; an empty list is vacuously
// true.
type Condition struct {
	Lhs    string
	Op     CompOp
	RhsCol string
	RhsVal sql.Value
}

func findCol(cols []catalog.ColMeta, name string) (*catalog.ColMeta, error) {
	for cdx := range cols {
		if cols[cdx].Name == name {
			return &cols[cdx], nil
		}
	}
	return nil, fmt.Errorf("evaluate: column %s not found", name)
}

func compare(op CompOp, cmp int) (bool, error) {
	switch op {
	case EqualOp:
		return cmp == 0, nil
	case NotEqualOp:
		return cmp != 0, nil
	case LessThanOp:
		return cmp < 0, nil
	case GreaterThanOp:
		return cmp > 0, nil
	case LessEqualOp:
		return cmp <= 0, nil
	case GreaterEqualOp:
		return cmp >= 0, nil
	}
	return false, fmt.Errorf("evaluate: unexpected comparison operator: %d", op)
}

// evalConds evaluates a conjunction of conditions against one encoded tuple,
// short circuiting on the first failure. Comparison is byte wise under the
// left hand column's declared type.
func evalConds(cols []catalog.ColMeta, conds []Condition, rec []byte) (bool, error) {
	for cdx := range conds {
		cond := &conds[cdx]
		lhs, err := findCol(cols, cond.Lhs)
		if err != nil {
			return false, err
		}
		lhsData := rec[lhs.Offset : lhs.Offset+lhs.Len]

		var rhsData []byte
		if cond.RhsVal != nil {
			rhsData = make([]byte, lhs.Len)
			err = sql.EncodeField(rhsData, lhs.Type, cond.RhsVal)
			if err != nil {
				return false, err
			}
		} else {
			rhs, err := findCol(cols, cond.RhsCol)
			if err != nil {
				return false, err
			}
			rhsData = rec[rhs.Offset : rhs.Offset+rhs.Len]
		}

		ok, err := compare(cond.Op, sql.CompareFields(lhsData, rhsData, lhs.Type))
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
