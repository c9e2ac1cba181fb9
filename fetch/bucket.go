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

type docEntry struct {
	docID DocID
	slot  Slot
}

/*
ReaderBucket tracks the documents of one reader that must be materialized, and holds them once they have been.

Documents are kept in an insertion ordered map, a slice of entries plus an index from doc id to position. The order
matters: the coordinator sends the ids to the fetch executor in this order and the executor returns rows in request
order, so the i-th registered document receives the i-th returned row.

Partition values are constant for every document of the reader. They are stored once here and only spliced into
output rows during re-association.
*/
type ReaderBucket struct {
	readerID        ReaderID
	fetchRequired   bool
	partitionValues Row
	entries         []docEntry
	index           map[DocID]int
	absorbed        bool
	released        bool
}

func newReaderBucket(readerID ReaderID, fetchRequired bool, partitionValues Row) *ReaderBucket {
	return &ReaderBucket{
		readerID:        readerID,
		fetchRequired:   fetchRequired,
		partitionValues: partitionValues,
		index:           map[DocID]int{},
	}
}

// Require registers that docID must be materialized. Registering the same id again is a no-op.
func (b *ReaderBucket) Require(docID DocID) {
	if _, exists := b.index[docID]; exists {
		return
	}
	b.index[docID] = len(b.entries)
	b.entries = append(b.entries, docEntry{docID: docID, slot: Pending()})
}

// Get returns the slot for docID. Asking for an id that was never required is a consistency violation.
func (b *ReaderBucket) Get(docID DocID) (Slot, error) {
	if b.released {
		return Slot{}, errors.NewConsistencyViolationf("reader %d was released", b.readerID)
	}
	pos, ok := b.index[docID]
	if !ok {
		return Slot{}, errors.NewConsistencyViolationf("doc %d was never required from reader %d", docID, b.readerID)
	}
	return b.entries[pos].slot, nil
}

/*
Absorb materializes every registered document from rows, positionally, in registration order.

rows must contain exactly one row per registered document. Anything else means the fetch executor answered a
different request than the one it was sent, which is a protocol desync and not a recoverable failure. The check
happens before any slot is touched so a rejected response never leaves the bucket partly filled.
*/
func (b *ReaderBucket) Absorb(rows []Row) error {
	if b.released {
		return errors.NewConsistencyViolationf("reader %d was released", b.readerID)
	}
	if b.absorbed {
		return errors.NewConsistencyViolationf("reader %d has already absorbed a fetch response", b.readerID)
	}
	if len(rows) != len(b.entries) {
		return errors.NewConsistencyViolationf("reader %d fetch response has %d rows, %d docs were requested",
			b.readerID, len(rows), len(b.entries))
	}
	for i := range b.entries {
		b.entries[i].slot = Materialized(rows[i])
	}
	b.absorbed = true
	return nil
}

func (b *ReaderBucket) ReaderID() ReaderID {
	return b.readerID
}

func (b *ReaderBucket) FetchRequired() bool {
	return b.fetchRequired
}

func (b *ReaderBucket) PartitionValues() Row {
	return b.partitionValues
}

// DocIDs returns the registered ids in registration order. This is the payload of the fetch request.
func (b *ReaderBucket) DocIDs() []DocID {
	ids := make([]DocID, len(b.entries))
	for i, entry := range b.entries {
		ids[i] = entry.docID
	}
	return ids
}

func (b *ReaderBucket) NumDocs() int {
	return len(b.entries)
}

func (b *ReaderBucket) NumPending() int {
	pending := 0
	for _, entry := range b.entries {
		if entry.slot.IsPending() {
			pending++
		}
	}
	return pending
}

func (b *ReaderBucket) Absorbed() bool {
	return b.absorbed
}

func (b *ReaderBucket) release() {
	b.entries = nil
	b.index = nil
	b.partitionValues = nil
	b.released = true
}
