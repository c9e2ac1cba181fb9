package transport

import (
	"sync"

	"github.com/spirit-labs/docfetch/common"
	"github.com/spirit-labs/docfetch/errors"
)

// LocalTransports connects clients and servers in the same process. Handlers see a private copy of each request and
// errors are reduced to what would survive a socket, so code tested over it behaves the same over TCP. It backs the
// single process shell and most tests.
type LocalTransports struct {
	lock    sync.RWMutex
	servers map[string]*LocalServer
}

func NewLocalTransports() *LocalTransports {
	return &LocalTransports{servers: map[string]*LocalServer{}}
}

func (lt *LocalTransports) NewLocalServer(address string) (*LocalServer, error) {
	lt.lock.Lock()
	defer lt.lock.Unlock()
	if _, exists := lt.servers[address]; exists {
		return nil, errors.Errorf("local server already exists for address %s", address)
	}
	server := &LocalServer{address: address}
	lt.servers[address] = server
	return server, nil
}

// RemoveLocalServer makes address unreachable. Requests sent to it from then on fail as they would for a node that
// went away.
func (lt *LocalTransports) RemoveLocalServer(address string) {
	lt.lock.Lock()
	defer lt.lock.Unlock()
	delete(lt.servers, address)
}

// CreateConnection never fails, an unknown address is only reported when a request is sent.
func (lt *LocalTransports) CreateConnection(address string) (Connection, error) {
	return &LocalConnection{transports: lt, address: address}, nil
}

func (lt *LocalTransports) lookup(address string, handlerID int) (RequestHandler, error) {
	lt.lock.RLock()
	server, ok := lt.servers[address]
	lt.lock.RUnlock()
	if !ok {
		return nil, errors.NewFetchErrorf(errors.Unavailable, "no server listening on address %s", address)
	}
	return server.handler(handlerID)
}

type LocalServer struct {
	handlerRegistry
	address string
}

var _ Server = (*LocalServer)(nil)

func (l *LocalServer) Address() string {
	return l.address
}

func (l *LocalServer) Start() error {
	return nil
}

func (l *LocalServer) Stop() error {
	return nil
}

type LocalConnection struct {
	transports *LocalTransports
	address    string
	lock       sync.Mutex
	closed     bool
}

var _ Connection = (*LocalConnection)(nil)

func (l *LocalConnection) SendRPC(handlerID int, request []byte) ([]byte, error) {
	l.lock.Lock()
	closed := l.closed
	l.lock.Unlock()
	if closed {
		return nil, errors.NewFetchErrorf(errors.Unavailable, "connection to %s is closed", l.address)
	}
	handler, err := l.transports.lookup(l.address, handlerID)
	if err != nil {
		return nil, err
	}
	resp, err := handler(common.ByteSliceCopy(request), nil)
	if err != nil {
		return nil, wireError(err)
	}
	return resp, nil
}

func (l *LocalConnection) Close() error {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.closed = true
	return nil
}
