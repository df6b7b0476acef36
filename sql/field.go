package sql

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Fields are stored as fixed width little endian byte strings: integers as 8
// byte two's complement, floats as 8 byte IEEE 754, and strings as exactly
// their declared width, NUL padded.

const (
	IntegerWidth = 8
	FloatWidth   = 8
)

func FieldWidth(dt DataType, width int) int {
	switch dt {
	case IntegerType:
		return IntegerWidth
	case FloatType:
		return FloatWidth
	case StringType:
		return width
	}

	panic(fmt.Sprintf("sql: unexpected data type: %d", dt))
}

func EncodeField(dst []byte, dt DataType, v Value) error {
	switch dt {
	case IntegerType:
		i, ok := v.(Int64Value)
		if !ok {
			return fmt.Errorf("sql: want integer got %s", Format(v))
		}
		binary.LittleEndian.PutUint64(dst, uint64(i))
	case FloatType:
		var f Float64Value
		switch v := v.(type) {
		case Float64Value:
			f = v
		case Int64Value:
			f = Float64Value(v)
		default:
			return fmt.Errorf("sql: want float got %s", Format(v))
		}
		binary.LittleEndian.PutUint64(dst, math.Float64bits(float64(f)))
	case StringType:
		s, ok := v.(StringValue)
		if !ok {
			return fmt.Errorf("sql: want string got %s", Format(v))
		}
		if len(s) > len(dst) {
			return fmt.Errorf("sql: string %s too long for field of %d bytes", Format(v),
				len(dst))
		}
		copy(dst, s)
		for idx := len(s); idx < len(dst); idx++ {
			dst[idx] = 0
		}
	default:
		return fmt.Errorf("sql: unexpected data type: %d", dt)
	}

	return nil
}

func DecodeField(src []byte, dt DataType) Value {
	switch dt {
	case IntegerType:
		return Int64Value(binary.LittleEndian.Uint64(src))
	case FloatType:
		return Float64Value(math.Float64frombits(binary.LittleEndian.Uint64(src)))
	case StringType:
		return StringValue(bytes.TrimRight(src, "\x00"))
	}

	panic(fmt.Sprintf("sql: unexpected data type: %d", dt))
}

// CompareFields compares two encoded fields of the same declared type and
// width: integers and floats as their native scalar, strings byte wise over
// the full width.
func CompareFields(b1, b2 []byte, dt DataType) int {
	switch dt {
	case IntegerType:
		i1 := int64(binary.LittleEndian.Uint64(b1))
		i2 := int64(binary.LittleEndian.Uint64(b2))
		if i1 < i2 {
			return -1
		} else if i1 > i2 {
			return 1
		}
		return 0
	case FloatType:
		f1 := math.Float64frombits(binary.LittleEndian.Uint64(b1))
		f2 := math.Float64frombits(binary.LittleEndian.Uint64(b2))
		if f1 < f2 {
			return -1
		} else if f1 > f2 {
			return 1
		}
		return 0
	case StringType:
		return bytes.Compare(b1, b2)
	}

	panic(fmt.Sprintf("sql: unexpected data type: %d", dt))
}
