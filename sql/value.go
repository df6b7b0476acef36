package sql

import (
	"fmt"
	"strings"
)

type Value interface {
	fmt.Stringer

	// return -1 if v1 < v2
	// return 0 if v1 == v2
	// return 1 if v1 > v2
	Compare(v2 Value) (int, error)
}

type Int64Value int64

func (i Int64Value) String() string {
	return fmt.Sprintf("%v", int64(i))
}

func (i1 Int64Value) Compare(v2 Value) (int, error) {
	switch v2 := v2.(type) {
	case Int64Value:
		if i1 < v2 {
			return -1, nil
		} else if i1 > v2 {
			return 1, nil
		}
		return 0, nil
	case Float64Value:
		if Float64Value(i1) < v2 {
			return -1, nil
		} else if Float64Value(i1) > v2 {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("sql: want number got %v", v2)
}

type Float64Value float64

func (d Float64Value) String() string {
	return fmt.Sprintf("%v", float64(d))
}

func (d1 Float64Value) Compare(v2 Value) (int, error) {
	switch v2 := v2.(type) {
	case Int64Value:
		if d1 < Float64Value(v2) {
			return -1, nil
		} else if d1 > Float64Value(v2) {
			return 1, nil
		}
		return 0, nil
	case Float64Value:
		if d1 < v2 {
			return -1, nil
		} else if d1 > v2 {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("sql: want number got %v", v2)
}

type StringValue string

func (s StringValue) String() string {
	return fmt.Sprintf("'%s'", string(s))
}

func (s1 StringValue) Compare(v2 Value) (int, error) {
	if s2, ok := v2.(StringValue); ok {
		return strings.Compare(string(s1), string(s2)), nil
	}
	return 0, fmt.Errorf("sql: want string got %v", v2)
}

func Format(v Value) string {
	if v == nil {
		return "NULL"
	}

	return v.String()
}

// ValueType returns the data type a value encodes as.
func ValueType(v Value) (DataType, error) {
	switch v.(type) {
	case Int64Value:
		return IntegerType, nil
	case Float64Value:
		return FloatType, nil
	case StringValue:
		return StringType, nil
	}
	return 0, fmt.Errorf("sql: unexpected value %s", Format(v))
}
