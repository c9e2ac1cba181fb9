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

import (
	"github.com/spirit-labs/docfetch/errors"
)

type SourceKind uint8

const (
	SourceInline SourceKind = iota + 1
	SourceFetched
	SourcePartition
)

func (k SourceKind) String() string {
	switch k {
	case SourceInline:
		return "inline"
	case SourceFetched:
		return "fetched"
	case SourcePartition:
		return "partition"
	default:
		return "unknown"
	}
}

// ColumnSource says where one output column comes from. For SourceInline, Index is a position in ScatterRow.Inline.
// For SourceFetched and SourcePartition, Ref picks the reference in ScatterRow.Refs and Index is a position in the
// materialized row, or in the partition values of the reader, respectively.
type ColumnSource struct {
	Kind  SourceKind
	Ref   int
	Index int
}

// Layout describes the output row, one ColumnSource per output column.
type Layout []ColumnSource

func InlineColumn(index int) ColumnSource {
	return ColumnSource{Kind: SourceInline, Index: index}
}

func FetchedColumn(ref int, index int) ColumnSource {
	return ColumnSource{Kind: SourceFetched, Ref: ref, Index: index}
}

func PartitionColumn(ref int, index int) ColumnSource {
	return ColumnSource{Kind: SourcePartition, Ref: ref, Index: index}
}

// InlineLayout passes the first n inline values through.
func InlineLayout(n int) Layout {
	layout := make(Layout, n)
	for i := range layout {
		layout[i] = InlineColumn(i)
	}
	return layout
}

func (l Layout) Validate() error {
	for i, source := range l {
		switch source.Kind {
		case SourceInline, SourceFetched, SourcePartition:
		default:
			return errors.NewConsistencyViolationf("column %d has invalid source kind %d", i, source.Kind)
		}
		if source.Ref < 0 || source.Index < 0 {
			return errors.NewConsistencyViolationf("column %d has negative position (ref %d, index %d)", i,
				source.Ref, source.Index)
		}
	}
	return nil
}

/*
Reassociate builds the final output rows from the scatter rows once every fetch has been absorbed.

Exactly one output row is emitted per scatter row, in the same order. A document referenced by several scatter rows
contributes the same materialized values to each of them. Partition values are read from the reader bucket here and
nowhere else.

Output rows are cut from a single freshly allocated array, they never alias the rows held by the registry, so callers
can keep them after the registry is released.
*/
func Reassociate(registry *Registry, rows []ScatterRow, layout Layout) ([]Row, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	width := len(layout)
	values := make([]any, len(rows)*width)
	out := make([]Row, len(rows))
	for i, scatterRow := range rows {
		outRow := Row(values[i*width : (i+1)*width : (i+1)*width])
		for col, source := range layout {
			v, err := resolveColumn(registry, scatterRow, source)
			if err != nil {
				return nil, errors.Wrapf(err, "row %d column %d", i, col)
			}
			outRow[col] = v
		}
		out[i] = outRow
	}
	return out, nil
}

func resolveColumn(registry *Registry, row ScatterRow, source ColumnSource) (any, error) {
	if source.Kind == SourceInline {
		if source.Index >= len(row.Inline) {
			return nil, errors.NewConsistencyViolationf("inline index %d out of range, row has %d inline values",
				source.Index, len(row.Inline))
		}
		return row.Inline[source.Index], nil
	}
	if source.Ref >= len(row.Refs) {
		return nil, errors.NewConsistencyViolationf("reference %d out of range, row has %d references",
			source.Ref, len(row.Refs))
	}
	ref := row.Refs[source.Ref]
	bucket, err := registry.mustGetBucket(ref.ReaderID)
	if err != nil {
		return nil, err
	}
	if source.Kind == SourcePartition {
		pv := bucket.PartitionValues()
		if source.Index >= len(pv) {
			return nil, errors.NewConsistencyViolationf("partition index %d out of range, reader %d has %d partition values",
				source.Index, ref.ReaderID, len(pv))
		}
		return pv[source.Index], nil
	}
	if !bucket.FetchRequired() {
		return nil, errors.NewConsistencyViolationf("fetched column requested from reader %d which does not require fetch",
			ref.ReaderID)
	}
	slot, err := bucket.Get(ref.DocID)
	if err != nil {
		return nil, err
	}
	materialized, ok := slot.Row()
	if !ok {
		return nil, errors.NewConsistencyViolationf("doc %d of reader %d is still pending", ref.DocID, ref.ReaderID)
	}
	if source.Index >= len(materialized) {
		return nil, errors.NewConsistencyViolationf("fetched index %d out of range, doc %d of reader %d has %d columns",
			source.Index, ref.DocID, ref.ReaderID, len(materialized))
	}
	return materialized[source.Index], nil
}
