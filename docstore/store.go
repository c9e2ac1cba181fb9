package docstore

import (
	"context"
	"sort"
	"sync"

	"github.com/spirit-labs/docfetch/errors"
	"github.com/spirit-labs/docfetch/fetch"
	"github.com/spirit-labs/docfetch/types"
)

// Store holds the readers served by one node.
type Store struct {
	lock    sync.RWMutex
	readers map[fetch.ReaderID]*Reader
}

func NewStore() *Store {
	return &Store{readers: map[fetch.ReaderID]*Reader{}}
}

func (s *Store) AddReader(reader *Reader) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, exists := s.readers[reader.ID()]; exists {
		return errors.Errorf("reader %d already exists", reader.ID())
	}
	s.readers[reader.ID()] = reader
	return nil
}

func (s *Store) RemoveReader(readerID fetch.ReaderID) {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.readers, readerID)
}

func (s *Store) GetReader(readerID fetch.ReaderID) (*Reader, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	reader, ok := s.readers[readerID]
	return reader, ok
}

// ReaderIDs returns the ids of all readers in ascending order.
func (s *Store) ReaderIDs() []fetch.ReaderID {
	s.lock.RLock()
	defer s.lock.RUnlock()
	ids := make([]fetch.ReaderID, 0, len(s.readers))
	for id := range s.readers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Fetch reads directly from the local readers. It lets a Store act as the fetcher when every reader is in process.
func (s *Store) Fetch(_ context.Context, readerID fetch.ReaderID, docIDs []fetch.DocID) ([]fetch.Row, error) {
	reader, ok := s.GetReader(readerID)
	if !ok {
		return nil, errors.NewFetchErrorf(errors.UnknownReader, "no reader %d", readerID)
	}
	return reader.Read(docIDs)
}

// ReadDocs returns the schema of readerID along with the rows for docIDs in request order.
func (s *Store) ReadDocs(readerID fetch.ReaderID, docIDs []fetch.DocID) ([]types.ColumnType, []fetch.Row, error) {
	reader, ok := s.GetReader(readerID)
	if !ok {
		return nil, nil, errors.NewFetchErrorf(errors.UnknownReader, "no reader %d", readerID)
	}
	rows, err := reader.Read(docIDs)
	if err != nil {
		return nil, nil, err
	}
	return reader.Schema(), rows, nil
}

func (s *Store) DescribeReader(readerID fetch.ReaderID) (numDocs int, partitionValues fetch.Row, ok bool) {
	reader, ok := s.GetReader(readerID)
	if !ok {
		return 0, nil, false
	}
	return reader.NumDocs(), reader.PartitionValues(), true
}
