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
	"reflect"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/google/uuid"
	"github.com/spirit-labs/docfetch/errors"
)

// Registry owns the reader buckets of a single query. It is not safe for concurrent use: registration happens while
// the scatter results are scanned, the coordinator absorbs responses after every fetch has returned and
// re-association runs last, so the phases never overlap.
type Registry struct {
	queryID      uuid.UUID
	buckets      *linkedhashmap.Map
	requireCalls int
	released     bool
}

type RegistryStats struct {
	Readers              int
	FetchRequiredReaders int
	DistinctDocs         int
	RequireCalls         int
}

func NewRegistry(queryID uuid.UUID) *Registry {
	return &Registry{
		queryID: queryID,
		buckets: linkedhashmap.New(),
	}
}

func (r *Registry) QueryID() uuid.UUID {
	return r.queryID
}

// Require registers docID of readerID for materialization, creating the reader's bucket on first use. The flag and
// partition values are fixed when the bucket is created, a later call that disagrees with them is a consistency
// violation.
func (r *Registry) Require(readerID ReaderID, docID DocID, fetchRequired bool, partitionValues Row) error {
	if r.released {
		return errors.NewConsistencyViolationf("registry for query %s was released", r.queryID)
	}
	r.requireCalls++
	bucket, ok := r.getBucket(readerID)
	if !ok {
		bucket = newReaderBucket(readerID, fetchRequired, partitionValues)
		r.buckets.Put(readerID, bucket)
	} else {
		if bucket.fetchRequired != fetchRequired {
			return errors.NewConsistencyViolationf("reader %d registered with fetch required %t, now %t",
				readerID, bucket.fetchRequired, fetchRequired)
		}
		if !partitionValuesEqual(bucket.partitionValues, partitionValues) {
			return errors.NewConsistencyViolationf("reader %d registered with partition values %v, now %v",
				readerID, bucket.partitionValues, partitionValues)
		}
		if bucket.absorbed {
			return errors.NewConsistencyViolationf("reader %d already fetched, cannot require doc %d", readerID, docID)
		}
	}
	bucket.Require(docID)
	return nil
}

// RegisterAll registers every reference of every row.
func (r *Registry) RegisterAll(rows []ScatterRow) error {
	for _, row := range rows {
		for _, ref := range row.Refs {
			if err := r.Require(ref.ReaderID, ref.DocID, ref.FetchRequired, ref.PartitionValues); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Registry) Get(readerID ReaderID, docID DocID) (Slot, error) {
	bucket, err := r.mustGetBucket(readerID)
	if err != nil {
		return Slot{}, err
	}
	return bucket.Get(docID)
}

func (r *Registry) Bucket(readerID ReaderID) (*ReaderBucket, bool) {
	if r.released {
		return nil, false
	}
	return r.getBucket(readerID)
}

// PendingFetches returns the buckets that still need a fetch round-trip, in the order their readers were first seen.
func (r *Registry) PendingFetches() []*ReaderBucket {
	var pending []*ReaderBucket
	for _, v := range r.buckets.Values() {
		bucket := v.(*ReaderBucket)
		if bucket.fetchRequired && bucket.NumDocs() > 0 && !bucket.absorbed {
			pending = append(pending, bucket)
		}
	}
	return pending
}

func (r *Registry) Stats() RegistryStats {
	stats := RegistryStats{RequireCalls: r.requireCalls}
	for _, v := range r.buckets.Values() {
		bucket := v.(*ReaderBucket)
		stats.Readers++
		if bucket.fetchRequired {
			stats.FetchRequiredReaders++
		}
		stats.DistinctDocs += bucket.NumDocs()
	}
	return stats
}

// Release drops every bucket and the rows they hold. The registry can't be used afterwards. Calling Release more than
// once is fine.
func (r *Registry) Release() {
	if r.released {
		return
	}
	for _, v := range r.buckets.Values() {
		v.(*ReaderBucket).release()
	}
	r.buckets.Clear()
	r.released = true
}

func (r *Registry) Released() bool {
	return r.released
}

func (r *Registry) getBucket(readerID ReaderID) (*ReaderBucket, bool) {
	v, ok := r.buckets.Get(readerID)
	if !ok {
		return nil, false
	}
	return v.(*ReaderBucket), true
}

func (r *Registry) mustGetBucket(readerID ReaderID) (*ReaderBucket, error) {
	if r.released {
		return nil, errors.NewConsistencyViolationf("registry for query %s was released", r.queryID)
	}
	bucket, ok := r.getBucket(readerID)
	if !ok {
		return nil, errors.NewConsistencyViolationf("reader %d was never registered", readerID)
	}
	return bucket, nil
}

func partitionValuesEqual(pv1 Row, pv2 Row) bool {
	if len(pv1) == 0 && len(pv2) == 0 {
		return true
	}
	return reflect.DeepEqual(pv1, pv2)
}
