package encoding

import (
	"fmt"

	"github.com/spirit-labs/docfetch/types"
)

// EncodeRow appends row to buff. Each column starts with a byte which is 0 for null and 1 otherwise. Values must have
// the Go type of their column type, anything else is a programming error and panics.
func EncodeRow(buff []byte, row []any, schema []types.ColumnType) []byte {
	if len(row) != len(schema) {
		panic(fmt.Sprintf("row has %d columns, schema has %d", len(row), len(schema)))
	}
	for i, ct := range schema {
		if row[i] == nil {
			buff = append(buff, 0)
			continue
		}
		if id := types.ColumnTypeIDOf(row[i]); id != ct.ID() {
			panic(fmt.Sprintf("column %d of type %s has value of type %T", i, ct, row[i]))
		}
		buff = append(buff, 1)
		switch v := row[i].(type) {
		case int64:
			buff = AppendUint64(buff, uint64(v))
		case float64:
			buff = AppendFloat64(buff, v)
		case bool:
			buff = AppendBool(buff, v)
		case types.Decimal:
			buff = AppendDecimal(buff, v)
		case string:
			buff = AppendString(buff, v)
		case []byte:
			buff = AppendBytes(buff, v)
		case types.Timestamp:
			buff = AppendUint64(buff, uint64(v.Val))
		}
	}
	return buff
}

// DecodeRow reads a row written by EncodeRow with the same schema. Decoding stops at the first error, which is
// left in r.
func DecodeRow(r *Reader, schema []types.ColumnType) []any {
	row := make([]any, len(schema))
	for i, ct := range schema {
		if r.ReadUint8() == 0 {
			continue
		}
		switch ct.ID() {
		case types.ColumnTypeIDInt:
			row[i] = int64(r.ReadUint64())
		case types.ColumnTypeIDFloat:
			row[i] = r.ReadFloat64()
		case types.ColumnTypeIDBool:
			row[i] = r.ReadBool()
		case types.ColumnTypeIDDecimal:
			row[i] = r.ReadDecimal(ct.(*types.DecimalType))
		case types.ColumnTypeIDString:
			row[i] = r.ReadString()
		case types.ColumnTypeIDBytes:
			row[i] = r.ReadBytes()
		case types.ColumnTypeIDTimestamp:
			row[i] = types.NewTimestamp(int64(r.ReadUint64()))
		default:
			panic(fmt.Sprintf("unexpected column type %s", ct))
		}
		if r.Err() != nil {
			return nil
		}
	}
	if r.Err() != nil {
		return nil
	}
	return row
}
