package transport

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/spirit-labs/docfetch/errors"
	"github.com/stretchr/testify/require"
)

type serverFactory func(t *testing.T) Server

// transportSuite runs the same behaviour checks against each transport implementation.
type transportSuite struct {
	newServer serverFactory
	connect   ConnectionFactory
}

func (ts transportSuite) run(t *testing.T) {
	t.Run("rpc", ts.testRPC)
	t.Run("fetchErrorKeepsCode", ts.testFetchErrorKeepsCode)
	t.Run("otherErrorBecomesInternal", ts.testOtherErrorBecomesInternal)
	t.Run("unknownHandler", ts.testUnknownHandler)
	t.Run("duplicateHandler", ts.testDuplicateHandler)
	t.Run("concurrentRPCs", ts.testConcurrentRPCs)
	t.Run("requestIsPrivateCopy", ts.testRequestIsPrivateCopy)
}

func (ts transportSuite) startServer(t *testing.T) Server {
	server := ts.newServer(t)
	t.Cleanup(func() {
		require.NoError(t, server.Stop())
	})
	return server
}

func (ts transportSuite) connectTo(t *testing.T, server Server) Connection {
	conn, err := ts.connect(server.Address())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, conn.Close())
	})
	return conn
}

func (ts transportSuite) testRPC(t *testing.T) {
	numServers := 3
	numHandlers := 4
	var servers []Server
	for i := 0; i < numServers; i++ {
		server := ts.startServer(t)
		for j := 0; j < numHandlers; j++ {
			prefix := fmt.Sprintf("server-%d-handler-%d:", i, j)
			require.True(t, server.RegisterHandler(j, func(request []byte, responseBuff []byte) ([]byte, error) {
				responseBuff = append(responseBuff, prefix...)
				return append(responseBuff, request...), nil
			}))
		}
		servers = append(servers, server)
	}
	for i, server := range servers {
		conn := ts.connectTo(t, server)
		for j := 0; j < numHandlers; j++ {
			for k := 0; k < 5; k++ {
				request := fmt.Sprintf("reader-%d", k)
				resp, err := conn.SendRPC(j, []byte(request))
				require.NoError(t, err)
				require.Equal(t, fmt.Sprintf("server-%d-handler-%d:%s", i, j, request), string(resp))
			}
		}
	}
}

func (ts transportSuite) testFetchErrorKeepsCode(t *testing.T) {
	server := ts.startServer(t)
	server.RegisterHandler(1, func(request []byte, _ []byte) ([]byte, error) {
		return nil, errors.NewFetchErrorf(errors.UnknownReader, "no reader %s", string(request))
	})
	conn := ts.connectTo(t, server)
	resp, err := conn.SendRPC(1, []byte("12"))
	require.Nil(t, resp)
	require.Equal(t, errors.NewFetchError(errors.UnknownReader, "no reader 12"), err)
}

func (ts transportSuite) testOtherErrorBecomesInternal(t *testing.T) {
	server := ts.startServer(t)
	server.RegisterHandler(1, func(_ []byte, _ []byte) ([]byte, error) {
		return nil, errors.New("disk on fire")
	})
	conn := ts.connectTo(t, server)
	_, err := conn.SendRPC(1, nil)
	require.Equal(t, errors.NewFetchError(errors.InternalError, "disk on fire"), err)
}

func (ts transportSuite) testUnknownHandler(t *testing.T) {
	server := ts.startServer(t)
	conn := ts.connectTo(t, server)
	_, err := conn.SendRPC(1234, []byte("foo"))
	require.True(t, errors.IsUnavailableError(err))
}

func (ts transportSuite) testDuplicateHandler(t *testing.T) {
	server := ts.startServer(t)
	handler := func(_ []byte, responseBuff []byte) ([]byte, error) {
		return responseBuff, nil
	}
	require.True(t, server.RegisterHandler(7, handler))
	require.False(t, server.RegisterHandler(7, handler))
}

func (ts transportSuite) testConcurrentRPCs(t *testing.T) {
	server := ts.startServer(t)
	var lock sync.Mutex
	arrived := 0
	numRequests := 50
	server.RegisterHandler(1, func(request []byte, responseBuff []byte) ([]byte, error) {
		lock.Lock()
		arrived++
		lock.Unlock()
		time.Sleep(5 * time.Millisecond)
		return append(append(responseBuff, request...), "-response"...), nil
	})
	conn := ts.connectTo(t, server)
	type rpcResult struct {
		resp []byte
		err  error
	}
	chans := make([]chan rpcResult, numRequests)
	for i := 0; i < numRequests; i++ {
		request := fmt.Sprintf("request-%d", numRequests-i)
		ch := make(chan rpcResult, 1)
		chans[i] = ch
		go func() {
			resp, err := conn.SendRPC(1, []byte(request))
			ch <- rpcResult{resp, err}
		}()
	}
	for i, ch := range chans {
		res := <-ch
		require.NoError(t, res.err)
		require.Equal(t, fmt.Sprintf("request-%d-response", numRequests-i), string(res.resp))
	}
	lock.Lock()
	defer lock.Unlock()
	require.Equal(t, numRequests, arrived)
}

func (ts transportSuite) testRequestIsPrivateCopy(t *testing.T) {
	server := ts.startServer(t)
	server.RegisterHandler(1, func(request []byte, responseBuff []byte) ([]byte, error) {
		resp := append(responseBuff, request...)
		request[0] = 'x'
		return resp, nil
	})
	conn := ts.connectTo(t, server)
	request := []byte("abc")
	resp, err := conn.SendRPC(1, request)
	require.NoError(t, err)
	require.Equal(t, "abc", string(resp))
	require.Equal(t, "abc", string(request))
}
