package sql_test

import (
	"testing"

	"github.com/leftmike/keel/sql"
)

func TestEncodeDecodeField(t *testing.T) {
	cases := []struct {
		dt    sql.DataType
		width int
		val   sql.Value
	}{
		{sql.IntegerType, 0, sql.Int64Value(0)},
		{sql.IntegerType, 0, sql.Int64Value(123)},
		{sql.IntegerType, 0, sql.Int64Value(-456)},
		{sql.FloatType, 0, sql.Float64Value(1.5)},
		{sql.FloatType, 0, sql.Float64Value(-0.25)},
		{sql.StringType, 8, sql.StringValue("")},
		{sql.StringType, 8, sql.StringValue("abc")},
		{sql.StringType, 8, sql.StringValue("abcdefgh")},
	}

	for _, c := range cases {
		buf := make([]byte, sql.FieldWidth(c.dt, c.width))
		err := sql.EncodeField(buf, c.dt, c.val)
		if err != nil {
			t.Errorf("EncodeField(%s) failed with %s", sql.Format(c.val), err)
			continue
		}
		v := sql.DecodeField(buf, c.dt)
		if cmp, err := v.Compare(c.val); err != nil || cmp != 0 {
			t.Errorf("DecodeField(EncodeField(%s)) got %s", sql.Format(c.val), sql.Format(v))
		}
	}

	buf := make([]byte, 4)
	if err := sql.EncodeField(buf, sql.StringType, sql.StringValue("abcde")); err == nil {
		t.Error("EncodeField('abcde') into 4 bytes did not fail")
	}
	if err := sql.EncodeField(buf, sql.IntegerType, sql.StringValue("abc")); err == nil {
		t.Error("EncodeField(INT, 'abc') did not fail")
	}
}

func TestCompareFields(t *testing.T) {
	cases := []struct {
		dt     sql.DataType
		width  int
		v1, v2 sql.Value
		cmp    int
	}{
		{sql.IntegerType, 0, sql.Int64Value(1), sql.Int64Value(2), -1},
		{sql.IntegerType, 0, sql.Int64Value(2), sql.Int64Value(2), 0},
		{sql.IntegerType, 0, sql.Int64Value(3), sql.Int64Value(-3), 1},
		{sql.FloatType, 0, sql.Float64Value(1.25), sql.Float64Value(1.5), -1},
		{sql.FloatType, 0, sql.Float64Value(-1.0), sql.Float64Value(-2.0), 1},
		{sql.StringType, 4, sql.StringValue("ab"), sql.StringValue("ab"), 0},
		{sql.StringType, 4, sql.StringValue("ab"), sql.StringValue("ac"), -1},
		{sql.StringType, 4, sql.StringValue("b"), sql.StringValue("ab"), 1},
	}

	for _, c := range cases {
		b1 := make([]byte, sql.FieldWidth(c.dt, c.width))
		b2 := make([]byte, sql.FieldWidth(c.dt, c.width))
		if err := sql.EncodeField(b1, c.dt, c.v1); err != nil {
			t.Fatalf("EncodeField(%s) failed with %s", sql.Format(c.v1), err)
		}
		if err := sql.EncodeField(b2, c.dt, c.v2); err != nil {
			t.Fatalf("EncodeField(%s) failed with %s", sql.Format(c.v2), err)
		}
		if cmp := sql.CompareFields(b1, b2, c.dt); cmp != c.cmp {
			t.Errorf("CompareFields(%s, %s) got %d want %d", sql.Format(c.v1),
				sql.Format(c.v2), cmp, c.cmp)
		}
	}
}
