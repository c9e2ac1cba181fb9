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

package transport

import (
	"net"
	"sync"
	"time"

	"github.com/spirit-labs/docfetch/common"
	"github.com/spirit-labs/docfetch/errors"
	log "github.com/spirit-labs/docfetch/logger"
	"github.com/spirit-labs/docfetch/sockserver"
)

const (
	responseBuffInitialSize = 4 * 1024
	dialTimeout             = 5 * time.Second
	defaultWriteTimeout     = 5 * time.Second
)

var _ Server = (*SocketTransportServer)(nil)

// SocketTransportServer is a Server reached over TCP. Each request is handled on its own goroutine so a slow fetch
// does not hold up other requests on the same connection.
type SocketTransportServer struct {
	handlerRegistry
	socketServer *sockserver.SocketServer
}

func NewSocketTransportServer(address string) *SocketTransportServer {
	server := &SocketTransportServer{}
	server.socketServer = sockserver.NewSocketServer(address, server.newConnection)
	return server
}

func (s *SocketTransportServer) Start() error {
	if err := s.socketServer.Start(); err != nil {
		return err
	}
	log.Infof("socket transport listening on %s", s.socketServer.Address())
	return nil
}

func (s *SocketTransportServer) Stop() error {
	return s.socketServer.Stop()
}

func (s *SocketTransportServer) Address() string {
	return s.socketServer.Address()
}

func (s *SocketTransportServer) newConnection(conn net.Conn) sockserver.FrameHandler {
	sc := &socketServerConn{server: s, conn: conn}
	return sc.handleFrame
}

type socketServerConn struct {
	server    *SocketTransportServer
	conn      net.Conn
	writeLock sync.Mutex
}

func (c *socketServerConn) handleFrame(frame []byte) error {
	req, err := decodeRequestFrame(frame)
	if err != nil {
		return err
	}
	handler, err := c.server.handler(req.handlerID)
	if err != nil {
		return c.write(appendErrorFrame(nil, req.correlationID, wireError(err)))
	}
	// the frame buffer is reused as soon as we return
	request := common.ByteSliceCopy(req.body)
	common.Go(func() {
		c.serve(req.correlationID, req.handlerID, handler, request)
	})
	return nil
}

func (c *socketServerConn) serve(correlationID uint64, handlerID int, handler RequestHandler, request []byte) {
	var frame []byte
	resp, err := handler(request, make([]byte, 0, responseBuffInitialSize))
	if err != nil {
		log.Debugf("handler %d failed: %v", handlerID, err)
		frame = appendErrorFrame(nil, correlationID, wireError(err))
	} else {
		frame = appendResponseFrame(make([]byte, 0, 4+responseHeaderSize+len(resp)), correlationID, resp)
	}
	if err := c.write(frame); err != nil {
		log.Debugf("failed to write response to %s: %v", c.conn.RemoteAddr(), err)
	}
}

func (c *socketServerConn) write(frame []byte) error {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	_, err := c.conn.Write(frame)
	return err
}

// SocketConnection multiplexes concurrent RPCs over one TCP connection. Responses are matched to callers by
// correlation id.
type SocketConnection struct {
	conn         net.Conn
	writeTimeout time.Duration
	writeLock    sync.Mutex
	lock         sync.Mutex
	nextID       uint64
	pending      map[uint64]chan responseFrame
	// set once the connection can no longer be used
	closeErr     error
	readLoopDone chan struct{}
}

var _ Connection = (*SocketConnection)(nil)

func (c *SocketConnection) readLoop() {
	defer close(c.readLoopDone)
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("malformed response: %v", r)
		}
		c.failPending(err)
	}()
	err = sockserver.ReadFrames(c.conn, c.handleResponse)
	if err == nil {
		err = errors.New("connection closed by peer")
	}
}

func (c *SocketConnection) handleResponse(frame []byte) error {
	resp, err := decodeResponseFrame(frame)
	if err != nil {
		return err
	}
	c.lock.Lock()
	ch, ok := c.pending[resp.correlationID]
	delete(c.pending, resp.correlationID)
	c.lock.Unlock()
	if !ok {
		return errors.Errorf("response for unknown correlation id %d", resp.correlationID)
	}
	// frame is reused by the read loop
	resp.body = common.ByteSliceCopy(resp.body)
	ch <- resp
	return nil
}

// failPending fails every RPC still waiting for a response, without this a caller whose server went away would wait
// forever.
func (c *SocketConnection) failPending(cause error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.closeErr == nil {
		log.Debugf("connection to %s failed: %v", c.conn.RemoteAddr(), cause)
		c.closeErr = unavailable(cause)
	}
	for id, ch := range c.pending {
		ch <- responseFrame{err: c.closeErr}
		delete(c.pending, id)
	}
	if err := c.conn.Close(); err != nil {
		// Ignore
	}
}

func (c *SocketConnection) SendRPC(handlerID int, request []byte) ([]byte, error) {
	id, ch, err := c.register()
	if err != nil {
		return nil, err
	}
	frame := appendRequestFrame(make([]byte, 0, 4+requestHeaderSize+len(request)), id, handlerID, request)
	if err := c.write(frame); err != nil {
		c.lock.Lock()
		delete(c.pending, id)
		c.lock.Unlock()
		return nil, err
	}
	resp := <-ch
	if resp.err != nil {
		return nil, resp.err
	}
	return resp.body, nil
}

func (c *SocketConnection) register() (uint64, chan responseFrame, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.closeErr != nil {
		return 0, nil, c.closeErr
	}
	id := c.nextID
	c.nextID++
	ch := make(chan responseFrame, 1)
	c.pending[id] = ch
	return id, ch, nil
}

func (c *SocketConnection) write(frame []byte) error {
	// the read loop needs c.lock to deliver responses while we are blocked here
	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	// a peer that vanished without closing the socket would otherwise block the write indefinitely
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return unavailable(err)
	}
	if _, err := c.conn.Write(frame); err != nil {
		return unavailable(err)
	}
	return nil
}

func (c *SocketConnection) Close() error {
	c.lock.Lock()
	if c.closeErr == nil {
		c.closeErr = errors.NewFetchErrorf(errors.Unavailable, "connection to %s is closed", c.conn.RemoteAddr())
	}
	c.lock.Unlock()
	if err := c.conn.Close(); err != nil {
		// Ignore, the read loop may have closed it already
	}
	<-c.readLoopDone
	return nil
}

// unavailable turns a network failure into an Unavailable error, the caller may retry on another connection.
func unavailable(err error) error {
	return errors.NewFetchErrorf(errors.Unavailable, "transport error: %v", err)
}

type SocketClient struct {
	writeTimeout time.Duration
}

func NewSocketClient() *SocketClient {
	return &SocketClient{writeTimeout: defaultWriteTimeout}
}

func (s *SocketClient) CreateConnection(address string) (Connection, error) {
	dialer := net.Dialer{Timeout: dialTimeout, KeepAlive: 15 * time.Second}
	netConn, err := dialer.Dial("tcp", address)
	if err != nil {
		return nil, unavailable(err)
	}
	if err := netConn.(*net.TCPConn).SetNoDelay(true); err != nil {
		_ = netConn.Close()
		return nil, errors.WithStack(err)
	}
	conn := &SocketConnection{
		conn:         netConn,
		writeTimeout: s.writeTimeout,
		pending:      map[uint64]chan responseFrame{},
		readLoopDone: make(chan struct{}),
	}
	common.Go(conn.readLoop)
	return conn, nil
}
