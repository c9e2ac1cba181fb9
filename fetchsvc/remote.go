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
	"context"

	"github.com/spirit-labs/docfetch/common"
	"github.com/spirit-labs/docfetch/errors"
	"github.com/spirit-labs/docfetch/fetch"
	"github.com/spirit-labs/docfetch/transport"
)

// ReaderLocator knows the address of the node serving each reader.
type ReaderLocator interface {
	Locate(readerID fetch.ReaderID) (string, error)
}

// StaticLocator is a fixed reader to address mapping.
type StaticLocator map[fetch.ReaderID]string

func (s StaticLocator) Locate(readerID fetch.ReaderID) (string, error) {
	address, ok := s[readerID]
	if !ok {
		return "", errors.NewFetchErrorf(errors.UnknownReader, "no address known for reader %d", readerID)
	}
	return address, nil
}

/*
RemoteFetcher is a fetch.Fetcher that sends each request to the node serving the reader, one RPC per call.

SendRPC can't be interrupted, so the RPC runs on its own goroutine and Fetch returns as soon as ctx is done. A
response that arrives after that is dropped.
*/
type RemoteFetcher struct {
	connCaches *transport.ConnCaches
	locator    ReaderLocator
}

var _ fetch.Fetcher = (*RemoteFetcher)(nil)

func NewRemoteFetcher(connCaches *transport.ConnCaches, locator ReaderLocator) *RemoteFetcher {
	return &RemoteFetcher{
		connCaches: connCaches,
		locator:    locator,
	}
}

type rpcResult struct {
	response []byte
	err      error
}

func (r *RemoteFetcher) Fetch(ctx context.Context, readerID fetch.ReaderID, docIDs []fetch.DocID) ([]fetch.Row, error) {
	address, err := r.locator.Locate(readerID)
	if err != nil {
		return nil, err
	}
	req := FetchRequest{ReaderID: readerID, DocIDs: docIDs}
	respBuff, err := r.sendRPC(ctx, address, FetchHandlerID, req.Serialize(nil))
	if err != nil {
		return nil, err
	}
	var resp FetchResponse
	if err := resp.Deserialize(respBuff, len(docIDs)); err != nil {
		return nil, err
	}
	if len(resp.Rows) != len(docIDs) {
		return nil, errors.NewConsistencyViolationf("reader %d at %s returned %d rows, %d docs were requested",
			readerID, address, len(resp.Rows), len(docIDs))
	}
	return resp.Rows, nil
}

// ListReaders asks the node at address which readers it serves.
func (r *RemoteFetcher) ListReaders(ctx context.Context, address string) ([]ReaderInfo, error) {
	respBuff, err := r.sendRPC(ctx, address, ListReadersHandlerID, nil)
	if err != nil {
		return nil, err
	}
	var resp ListReadersResponse
	if err := resp.Deserialize(respBuff); err != nil {
		return nil, err
	}
	return resp.Readers, nil
}

func (r *RemoteFetcher) sendRPC(ctx context.Context, address string, handlerID int, request []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, contextError(err, address)
	}
	conn, err := r.connCaches.GetConnection(address)
	if err != nil {
		return nil, err
	}
	ch := make(chan rpcResult, 1)
	common.Go(func() {
		resp, err := conn.SendRPC(handlerID, request)
		ch <- rpcResult{response: resp, err: err}
	})
	select {
	case <-ctx.Done():
		return nil, contextError(ctx.Err(), address)
	case res := <-ch:
		return res.response, res.err
	}
}

// contextError maps a done context to an error code. A deadline is a failed fetch, anything else means the caller
// gave up.
func contextError(err error, address string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.NewFetchErrorf(errors.Unavailable, "rpc to %s timed out", address)
	}
	return errors.NewFetchErrorf(errors.Cancelled, "rpc to %s cancelled", address)
}
