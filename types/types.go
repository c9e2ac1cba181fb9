package types

import (
	"fmt"

	"github.com/apache/arrow/go/v11/arrow/decimal128"
	"github.com/spirit-labs/docfetch/errors"
)

// ColumnTypeID identifies a column type on the wire.
type ColumnTypeID uint8

const (
	ColumnTypeIDInt ColumnTypeID = iota + 1
	ColumnTypeIDFloat
	ColumnTypeIDBool
	ColumnTypeIDDecimal
	ColumnTypeIDString
	ColumnTypeIDBytes
	ColumnTypeIDTimestamp
)

// ColumnType is the type of a document column. Values of each type are held in rows as int64, float64, bool,
// Decimal, string, []byte and Timestamp respectively.
type ColumnType interface {
	ID() ColumnTypeID
	String() string
}

type scalarType ColumnTypeID

func (s scalarType) ID() ColumnTypeID {
	return ColumnTypeID(s)
}

func (s scalarType) String() string {
	return scalarNames[ColumnTypeID(s)]
}

var (
	ColumnTypeInt       ColumnType = scalarType(ColumnTypeIDInt)
	ColumnTypeFloat     ColumnType = scalarType(ColumnTypeIDFloat)
	ColumnTypeBool      ColumnType = scalarType(ColumnTypeIDBool)
	ColumnTypeString    ColumnType = scalarType(ColumnTypeIDString)
	ColumnTypeBytes     ColumnType = scalarType(ColumnTypeIDBytes)
	ColumnTypeTimestamp ColumnType = scalarType(ColumnTypeIDTimestamp)
)

var scalarNames = map[ColumnTypeID]string{
	ColumnTypeIDInt:       "int",
	ColumnTypeIDFloat:     "float",
	ColumnTypeIDBool:      "bool",
	ColumnTypeIDString:    "string",
	ColumnTypeIDBytes:     "bytes",
	ColumnTypeIDTimestamp: "timestamp",
}

// DecimalType is the only parameterized type.
type DecimalType struct {
	Precision int
	Scale     int
}

func (d *DecimalType) ID() ColumnTypeID {
	return ColumnTypeIDDecimal
}

func (d *DecimalType) String() string {
	return fmt.Sprintf("decimal(%d,%d)", d.Precision, d.Scale)
}

// ColumnTypeForID returns the scalar type with the given id. A decimal can't be created from its id alone.
func ColumnTypeForID(id ColumnTypeID) (ColumnType, error) {
	if _, ok := scalarNames[id]; !ok {
		return nil, errors.Errorf("no scalar column type with id %d", id)
	}
	return scalarType(id), nil
}

// ColumnTypeIDOf returns the id of the column type a value belongs to, or 0 for nil and values of any other Go type.
func ColumnTypeIDOf(v any) ColumnTypeID {
	switch v.(type) {
	case int64:
		return ColumnTypeIDInt
	case float64:
		return ColumnTypeIDFloat
	case bool:
		return ColumnTypeIDBool
	case Decimal:
		return ColumnTypeIDDecimal
	case string:
		return ColumnTypeIDString
	case []byte:
		return ColumnTypeIDBytes
	case Timestamp:
		return ColumnTypeIDTimestamp
	default:
		return 0
	}
}

// ColumnTypeOf returns the column type of a non-nil value.
func ColumnTypeOf(v any) (ColumnType, error) {
	if dec, ok := v.(Decimal); ok {
		return &DecimalType{Precision: dec.Precision, Scale: dec.Scale}, nil
	}
	id := ColumnTypeIDOf(v)
	if id == 0 {
		return nil, errors.Errorf("value %v of type %T has no column type", v, v)
	}
	return scalarType(id), nil
}

func ColumnTypesEqual(ct1 ColumnType, ct2 ColumnType) bool {
	d1, ok1 := ct1.(*DecimalType)
	d2, ok2 := ct2.(*DecimalType)
	if ok1 && ok2 {
		return *d1 == *d2
	}
	return ct1.ID() == ct2.ID() && !ok1 && !ok2
}

// Timestamp is milliseconds since the epoch.
type Timestamp struct {
	Val int64
}

func NewTimestamp(val int64) Timestamp {
	return Timestamp{Val: val}
}

// Decimal is a 128 bit fixed point value.
type Decimal struct {
	Num       decimal128.Num
	Precision int
	Scale     int
}

func NewDecimalFromInt64(val int64, precision int, scale int) Decimal {
	return Decimal{
		Num:       decimal128.FromI64(val).IncreaseScaleBy(int32(scale)),
		Precision: precision,
		Scale:     scale,
	}
}

func NewDecimalFromString(val string, precision int, scale int) (Decimal, error) {
	num, err := decimal128.FromString(val, int32(precision), int32(scale))
	if err != nil {
		return Decimal{}, errors.WithStack(err)
	}
	return Decimal{Num: num, Precision: precision, Scale: scale}, nil
}

// Equals compares values, so 1.50 equals 1.5 whatever the precision.
func (d *Decimal) Equals(other *Decimal) bool {
	switch {
	case d.Scale > other.Scale:
		return d.Num == other.Num.IncreaseScaleBy(int32(d.Scale-other.Scale))
	case d.Scale < other.Scale:
		return other.Num == d.Num.IncreaseScaleBy(int32(other.Scale-d.Scale))
	default:
		return d.Num == other.Num
	}
}

func (d Decimal) String() string {
	return d.Num.ToString(int32(d.Scale))
}
