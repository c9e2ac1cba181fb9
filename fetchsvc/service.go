package fetchsvc

import (
	"github.com/spirit-labs/docfetch/common"
	"github.com/spirit-labs/docfetch/errors"
	"github.com/spirit-labs/docfetch/fetch"
	log "github.com/spirit-labs/docfetch/logger"
	"github.com/spirit-labs/docfetch/transport"
	"github.com/spirit-labs/docfetch/types"
)

// ReaderStore is the storage a Service reads documents from.
type ReaderStore interface {
	// ReadDocs returns rows in the order of docIDs, along with the schema they are encoded with
	ReadDocs(readerID fetch.ReaderID, docIDs []fetch.DocID) ([]types.ColumnType, []fetch.Row, error)
	ReaderIDs() []fetch.ReaderID
	DescribeReader(readerID fetch.ReaderID) (numDocs int, partitionValues fetch.Row, ok bool)
}

// Service is the remote fetch executor. It answers fetch requests for the readers held by its store.
type Service struct {
	store  ReaderStore
	logger *log.NamedLogger
}

func NewService(store ReaderStore) (*Service, error) {
	logger, err := log.GetLogger("fetch-service")
	if err != nil {
		return nil, err
	}
	return &Service{store: store, logger: logger}, nil
}

func (s *Service) RegisterHandlers(server transport.Server) error {
	if !server.RegisterHandler(FetchHandlerID, s.handleFetch) {
		return errors.Errorf("handler %d already registered on %s", FetchHandlerID, server.Address())
	}
	if !server.RegisterHandler(ListReadersHandlerID, s.handleListReaders) {
		return errors.Errorf("handler %d already registered on %s", ListReadersHandlerID, server.Address())
	}
	return nil
}

func (s *Service) handleFetch(request []byte, responseBuff []byte) ([]byte, error) {
	var req FetchRequest
	if err := req.Deserialize(request); err != nil {
		return nil, err
	}
	schema, rows, err := s.store.ReadDocs(req.ReaderID, req.DocIDs)
	if err != nil {
		return nil, s.maybeInternalError(err)
	}
	if s.logger.DebugEnabled() {
		s.logger.Debugf("serving %d docs from reader %d", len(req.DocIDs), req.ReaderID)
	}
	resp := FetchResponse{Schema: schema, Rows: rows}
	return resp.Serialize(responseBuff), nil
}

func (s *Service) handleListReaders(_ []byte, responseBuff []byte) ([]byte, error) {
	var resp ListReadersResponse
	for _, readerID := range s.store.ReaderIDs() {
		numDocs, pv, ok := s.store.DescribeReader(readerID)
		if !ok {
			// removed since ReaderIDs was called
			continue
		}
		resp.Readers = append(resp.Readers, ReaderInfo{ReaderID: readerID, NumDocs: numDocs, PartitionValues: pv})
	}
	buff, err := resp.Serialize(responseBuff)
	if err != nil {
		return nil, s.maybeInternalError(err)
	}
	return buff, nil
}

// maybeInternalError keeps coded errors as they are. Anything else is logged here and the caller only gets a
// reference to the log line.
func (s *Service) maybeInternalError(err error) error {
	var ferr errors.FetchError
	if errors.As(err, &ferr) {
		return ferr
	}
	return common.LogInternalError(err)
}
