// Copyright 2024 The Tektite Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package fetchsvc

import (
	"fmt"

	"github.com/spirit-labs/docfetch/encoding"
	"github.com/spirit-labs/docfetch/errors"
	"github.com/spirit-labs/docfetch/fetch"
	"github.com/spirit-labs/docfetch/types"
)

const (
	FetchHandlerID       = 1
	ListReadersHandlerID = 2
)

/*
All integers are little-endian.

Fetch request:
  reader id      u32
  doc count      u32
  doc ids        u32 * doc count

Fetch response:
  column count   u32
  column types   per column a type id (u8), decimals follow it with precision (u8) and scale (u8)
  row count      u32
  rows           encoding.EncodeRow, in the order of the requested doc ids

List readers response:
  reader count   u32
  per reader     reader id (u32), doc count (u32), partition value count (u32), column types as above, then the
                 partition values encoded as one row
*/

type FetchRequest struct {
	ReaderID fetch.ReaderID
	DocIDs   []fetch.DocID
}

func (f *FetchRequest) Serialize(buff []byte) []byte {
	buff = encoding.AppendUint32(buff, uint32(f.ReaderID))
	buff = encoding.AppendUint32(buff, uint32(len(f.DocIDs)))
	for _, docID := range f.DocIDs {
		buff = encoding.AppendUint32(buff, uint32(docID))
	}
	return buff
}

func (f *FetchRequest) Deserialize(buff []byte) error {
	r := encoding.NewReader(buff)
	f.ReaderID = fetch.ReaderID(r.ReadUint32())
	count := int(r.ReadUint32())
	if r.Err() != nil {
		return malformed("fetch request", "%v", r.Err())
	}
	if r.Remaining() != 4*count {
		return malformed("fetch request", "%d doc ids need %d bytes, got %d", count, 4*count, r.Remaining())
	}
	f.DocIDs = make([]fetch.DocID, count)
	for i := range f.DocIDs {
		f.DocIDs[i] = fetch.DocID(r.ReadUint32())
	}
	return nil
}

type FetchResponse struct {
	Schema []types.ColumnType
	Rows   []fetch.Row
}

func (f *FetchResponse) Serialize(buff []byte) []byte {
	buff = appendSchema(buff, f.Schema)
	buff = encoding.AppendUint32(buff, uint32(len(f.Rows)))
	for _, row := range f.Rows {
		buff = encoding.EncodeRow(buff, row, f.Schema)
	}
	return buff
}

// Deserialize decodes buff into f. A response to a request for n docs never holds more than n rows, so maxRows bounds
// the row count before anything is allocated. Decoded strings and byte slices point into buff, which must not be
// modified afterwards.
func (f *FetchResponse) Deserialize(buff []byte, maxRows int) error {
	r := encoding.NewReader(buff)
	schema, err := readSchema(r)
	if err != nil {
		return err
	}
	count := int(r.ReadUint32())
	if r.Err() != nil {
		return malformed("fetch response", "%v", r.Err())
	}
	if count > maxRows {
		return malformed("fetch response", "%d rows, at most %d expected", count, maxRows)
	}
	// every row takes at least one byte per column
	if len(schema) > 0 && count > r.Remaining() {
		return malformed("fetch response", "bad row count %d", count)
	}
	rows := make([]fetch.Row, count)
	for i := range rows {
		rows[i] = encoding.DecodeRow(r, schema)
	}
	if r.Err() != nil {
		return malformed("fetch response", "%v", r.Err())
	}
	if r.Remaining() != 0 {
		return malformed("fetch response", "%d trailing bytes", r.Remaining())
	}
	f.Schema = schema
	f.Rows = rows
	return nil
}

type ReaderInfo struct {
	ReaderID        fetch.ReaderID
	NumDocs         int
	PartitionValues fetch.Row
}

type ListReadersResponse struct {
	Readers []ReaderInfo
}

func (l *ListReadersResponse) Serialize(buff []byte) ([]byte, error) {
	buff = encoding.AppendUint32(buff, uint32(len(l.Readers)))
	for _, info := range l.Readers {
		buff = encoding.AppendUint32(buff, uint32(info.ReaderID))
		buff = encoding.AppendUint32(buff, uint32(info.NumDocs))
		schema, err := schemaOf(info.PartitionValues)
		if err != nil {
			return nil, errors.Wrapf(err, "partition values of reader %d", info.ReaderID)
		}
		buff = appendSchema(buff, schema)
		buff = encoding.EncodeRow(buff, info.PartitionValues, schema)
	}
	return buff, nil
}

func (l *ListReadersResponse) Deserialize(buff []byte) error {
	r := encoding.NewReader(buff)
	count := int(r.ReadUint32())
	// a reader takes at least 12 bytes
	if r.Err() != nil || count > r.Remaining()/12 {
		return malformed("list readers response", "bad reader count %d", count)
	}
	readers := make([]ReaderInfo, count)
	for i := range readers {
		readers[i].ReaderID = fetch.ReaderID(r.ReadUint32())
		readers[i].NumDocs = int(r.ReadUint32())
		schema, err := readSchema(r)
		if err != nil {
			return err
		}
		if pv := encoding.DecodeRow(r, schema); len(pv) > 0 {
			readers[i].PartitionValues = pv
		}
	}
	if r.Err() != nil {
		return malformed("list readers response", "%v", r.Err())
	}
	if r.Remaining() != 0 {
		return malformed("list readers response", "%d trailing bytes", r.Remaining())
	}
	l.Readers = readers
	return nil
}

func appendSchema(buff []byte, schema []types.ColumnType) []byte {
	buff = encoding.AppendUint32(buff, uint32(len(schema)))
	for _, ct := range schema {
		buff = append(buff, byte(ct.ID()))
		if decType, ok := ct.(*types.DecimalType); ok {
			buff = append(buff, byte(decType.Precision), byte(decType.Scale))
		}
	}
	return buff
}

func readSchema(r *encoding.Reader) ([]types.ColumnType, error) {
	numCols := int(r.ReadUint32())
	if r.Err() != nil || numCols > r.Remaining() {
		return nil, malformed("schema", "bad column count %d", numCols)
	}
	schema := make([]types.ColumnType, numCols)
	for i := range schema {
		id := types.ColumnTypeID(r.ReadUint8())
		if id == types.ColumnTypeIDDecimal {
			schema[i] = &types.DecimalType{Precision: int(r.ReadUint8()), Scale: int(r.ReadUint8())}
			continue
		}
		ct, err := types.ColumnTypeForID(id)
		if err != nil {
			return nil, malformed("schema", "column %d: %v", i, err)
		}
		schema[i] = ct
	}
	if r.Err() != nil {
		return nil, malformed("schema", "%v", r.Err())
	}
	return schema, nil
}

// schemaOf works out the column types of a row of values, nil values are sent as nullable strings.
func schemaOf(row fetch.Row) ([]types.ColumnType, error) {
	schema := make([]types.ColumnType, len(row))
	for i, v := range row {
		if v == nil {
			schema[i] = types.ColumnTypeString
			continue
		}
		ct, err := types.ColumnTypeOf(v)
		if err != nil {
			return nil, err
		}
		schema[i] = ct
	}
	return schema, nil
}

// malformed is a consistency violation, the two sides of the connection disagree on the protocol.
func malformed(what string, format string, args ...any) error {
	return errors.NewConsistencyViolationf("malformed %s: %s", what, fmt.Sprintf(format, args...))
}
