package fetch

import (
	"testing"

	"github.com/google/uuid"
	"github.com/spirit-labs/docfetch/errors"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *Registry {
	return NewRegistry(uuid.New())
}

func TestRegistryCreatesBucketsLazily(t *testing.T) {
	registry := newTestRegistry()
	_, ok := registry.Bucket(1)
	require.False(t, ok)

	require.NoError(t, registry.Require(1, 10, true, Row{"eu"}))
	bucket, ok := registry.Bucket(1)
	require.True(t, ok)
	require.True(t, bucket.FetchRequired())
	require.Equal(t, Row{"eu"}, bucket.PartitionValues())
	require.Equal(t, []DocID{10}, bucket.DocIDs())
}

func TestRegistryMismatchedFetchRequired(t *testing.T) {
	registry := newTestRegistry()
	require.NoError(t, registry.Require(1, 10, true, nil))
	err := registry.Require(1, 11, false, nil)
	require.Error(t, err)
	require.True(t, errors.IsConsistencyViolation(err))
	// the rejected doc was not registered
	bucket, _ := registry.Bucket(1)
	require.Equal(t, []DocID{10}, bucket.DocIDs())
}

func TestRegistryMismatchedPartitionValues(t *testing.T) {
	registry := newTestRegistry()
	require.NoError(t, registry.Require(1, 10, true, Row{"eu", int64(3)}))
	require.NoError(t, registry.Require(1, 11, true, Row{"eu", int64(3)}))
	err := registry.Require(1, 12, true, Row{"us", int64(3)})
	require.True(t, errors.IsConsistencyViolation(err))
	err = registry.Require(1, 12, true, nil)
	require.True(t, errors.IsConsistencyViolation(err))
}

func TestRegistryEmptyPartitionValuesAreEqual(t *testing.T) {
	registry := newTestRegistry()
	require.NoError(t, registry.Require(1, 10, true, nil))
	require.NoError(t, registry.Require(1, 11, true, Row{}))
}

func TestRegistryPendingFetchesInFirstSeenOrder(t *testing.T) {
	registry := newTestRegistry()
	require.NoError(t, registry.Require(7, 1, true, nil))
	require.NoError(t, registry.Require(2, 1, false, nil))
	require.NoError(t, registry.Require(4, 1, true, nil))
	require.NoError(t, registry.Require(7, 2, true, nil))
	require.NoError(t, registry.Require(1, 1, true, nil))

	var readers []ReaderID
	for _, bucket := range registry.PendingFetches() {
		readers = append(readers, bucket.ReaderID())
	}
	require.Equal(t, []ReaderID{7, 4, 1}, readers)

	bucket, _ := registry.Bucket(4)
	require.NoError(t, bucket.Absorb([]Row{{"x"}}))
	readers = nil
	for _, bucket := range registry.PendingFetches() {
		readers = append(readers, bucket.ReaderID())
	}
	require.Equal(t, []ReaderID{7, 1}, readers)
}

func TestRegistryRequireAfterAbsorb(t *testing.T) {
	registry := newTestRegistry()
	require.NoError(t, registry.Require(1, 1, true, nil))
	bucket, _ := registry.Bucket(1)
	require.NoError(t, bucket.Absorb([]Row{{"x"}}))
	err := registry.Require(1, 2, true, nil)
	require.True(t, errors.IsConsistencyViolation(err))
}

func TestRegistryGet(t *testing.T) {
	registry := newTestRegistry()
	require.NoError(t, registry.Require(1, 1, true, nil))
	slot, err := registry.Get(1, 1)
	require.NoError(t, err)
	require.True(t, slot.IsPending())

	_, err = registry.Get(2, 1)
	require.True(t, errors.IsConsistencyViolation(err))
	_, err = registry.Get(1, 2)
	require.True(t, errors.IsConsistencyViolation(err))
}

func TestRegistryRegisterAllAndStats(t *testing.T) {
	registry := newTestRegistry()
	rows := []ScatterRow{
		{Refs: []DocRef{{ReaderID: 1, DocID: 5, FetchRequired: true}, {ReaderID: 2, DocID: 1}}},
		{Refs: []DocRef{{ReaderID: 1, DocID: 3, FetchRequired: true}, {ReaderID: 2, DocID: 1}}},
		{Refs: []DocRef{{ReaderID: 1, DocID: 5, FetchRequired: true}, {ReaderID: 2, DocID: 2}}},
	}
	require.NoError(t, registry.RegisterAll(rows))
	require.Equal(t, RegistryStats{
		Readers:              2,
		FetchRequiredReaders: 1,
		DistinctDocs:         4,
		RequireCalls:         6,
	}, registry.Stats())
}

func TestRegistryRelease(t *testing.T) {
	registry := newTestRegistry()
	require.NoError(t, registry.Require(1, 1, true, nil))
	bucket, _ := registry.Bucket(1)
	require.NoError(t, bucket.Absorb([]Row{{"x"}}))

	registry.Release()
	registry.Release()
	require.True(t, registry.Released())
	_, ok := registry.Bucket(1)
	require.False(t, ok)
	_, err := registry.Get(1, 1)
	require.True(t, errors.IsConsistencyViolation(err))
	require.True(t, errors.IsConsistencyViolation(registry.Require(1, 2, true, nil)))
	require.Empty(t, registry.PendingFetches())
	// rows held by the bucket are dropped
	require.Equal(t, 0, bucket.NumDocs())
}
