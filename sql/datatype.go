package sql

type DataType int

const (
	IntegerType DataType = iota + 1
	FloatType
	StringType
)

func (dt DataType) String() string {
	switch dt {
	case IntegerType:
		return "INT"
	case FloatType:
		return "FLOAT"
	case StringType:
		return "CHAR"
	}

	return ""
}
