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
package fetch

// ReaderID identifies an independently queryable partition of the data, e.g. one shard. It is the unit of fetch
// batching.
type ReaderID int32

// DocID is a reader local identifier for a physical row.
type DocID int32

// Row is an ordered array of column values.
type Row []any

// DocRef is produced by the scatter phase for one relation of an output row candidate. FetchRequired and
// PartitionValues are properties of the reader, every reference to the same reader must carry the same values.
type DocRef struct {
	ReaderID        ReaderID
	DocID           DocID
	FetchRequired   bool
	PartitionValues Row
}

// ScatterRow is one output row candidate. Refs holds one reference per relation that needs deferred columns, e.g.
// both sides of a join. Inline holds the values that were already produced by the scatter phase.
type ScatterRow struct {
	Refs   []DocRef
	Inline Row
}

// Slot holds the state of a required document, either pending or materialized. It is a tagged value so a
// materialized row whose columns are all nil is not mistaken for a pending one.
type Slot struct {
	row          Row
	materialized bool
}

func Pending() Slot {
	return Slot{}
}

func Materialized(row Row) Slot {
	return Slot{row: row, materialized: true}
}

func (s Slot) IsPending() bool {
	return !s.materialized
}

// Row returns the materialized row, ok is false while the slot is pending.
func (s Slot) Row() (row Row, ok bool) {
	return s.row, s.materialized
}
