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
package docstore

import (
	"sync"

	"github.com/google/btree"
	"github.com/spirit-labs/docfetch/errors"
	"github.com/spirit-labs/docfetch/fetch"
	"github.com/spirit-labs/docfetch/types"
)

const docIndexDegree = 32

type docItem struct {
	docID fetch.DocID
	row   fetch.Row
}

func (d *docItem) Less(than btree.Item) bool {
	return d.docID < than.(*docItem).docID
}

// Reader is an in-memory reader: a schema, the partition values shared by all of its docs, and the docs themselves
// indexed by id.
type Reader struct {
	lock            sync.RWMutex
	id              fetch.ReaderID
	schema          []types.ColumnType
	partitionValues fetch.Row
	docs            *btree.BTree
}

func NewReader(id fetch.ReaderID, schema []types.ColumnType, partitionValues fetch.Row) *Reader {
	return &Reader{
		id:              id,
		schema:          schema,
		partitionValues: partitionValues,
		docs:            btree.New(docIndexDegree),
	}
}

func (r *Reader) ID() fetch.ReaderID {
	return r.id
}

func (r *Reader) Schema() []types.ColumnType {
	return r.schema
}

func (r *Reader) PartitionValues() fetch.Row {
	return r.partitionValues
}

// Put stores row under docID, replacing any previous row. The row must match the schema.
func (r *Reader) Put(docID fetch.DocID, row fetch.Row) error {
	if err := CheckRow(r.schema, row); err != nil {
		return errors.Wrapf(err, "reader %d doc %d", r.id, docID)
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	r.docs.ReplaceOrInsert(&docItem{docID: docID, row: row})
	return nil
}

// Read returns the rows for docIDs in the order they were asked for. Ids may repeat.
func (r *Reader) Read(docIDs []fetch.DocID) ([]fetch.Row, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	rows := make([]fetch.Row, len(docIDs))
	key := &docItem{}
	for i, docID := range docIDs {
		key.docID = docID
		item := r.docs.Get(key)
		if item == nil {
			return nil, errors.NewFetchErrorf(errors.UnknownDocument, "reader %d has no doc %d", r.id, docID)
		}
		rows[i] = item.(*docItem).row
	}
	return rows, nil
}

func (r *Reader) NumDocs() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.docs.Len()
}

// DocIDs returns every doc id in ascending order.
func (r *Reader) DocIDs() []fetch.DocID {
	r.lock.RLock()
	defer r.lock.RUnlock()
	ids := make([]fetch.DocID, 0, r.docs.Len())
	r.docs.Ascend(func(i btree.Item) bool {
		ids = append(ids, i.(*docItem).docID)
		return true
	})
	return ids
}

// CheckRow verifies that every non-nil value of row has the Go type the encoder expects for its column.
func CheckRow(schema []types.ColumnType, row fetch.Row) error {
	if len(row) != len(schema) {
		return errors.Errorf("row has %d columns, schema has %d", len(row), len(schema))
	}
	for i, ct := range schema {
		v := row[i]
		if v == nil {
			continue
		}
		ok := types.ColumnTypeIDOf(v) == ct.ID()
		if !ok {
			return errors.Errorf("column %d has type %s, value is %T", i, ct.String(), v)
		}
	}
	return nil
}
