package transport

import (
	"sync"

	"github.com/spirit-labs/docfetch/errors"
)

// Server dispatches requests to the handlers registered with it. A handler is identified by an int which the client
// sends with each request.
type Server interface {
	RegisterHandler(handlerID int, handler RequestHandler) bool
	Address() string
	Start() error
	Stop() error
}

// Connection is the client side of a connection to a Server.
type Connection interface {
	// SendRPC blocks until the response arrives or the connection fails.
	SendRPC(handlerID int, request []byte) ([]byte, error)
	Close() error
}

type ConnectionFactory func(address string) (Connection, error)

// RequestHandler answers one request. It may build the response by appending to responseBuff. request is only valid
// until the handler returns. Handlers for different requests can run concurrently.
type RequestHandler func(request []byte, responseBuff []byte) ([]byte, error)

type handlerRegistry struct {
	lock     sync.RWMutex
	handlers map[int]RequestHandler
}

func (h *handlerRegistry) RegisterHandler(handlerID int, handler RequestHandler) bool {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.handlers == nil {
		h.handlers = map[int]RequestHandler{}
	}
	if _, exists := h.handlers[handlerID]; exists {
		return false
	}
	h.handlers[handlerID] = handler
	return true
}

func (h *handlerRegistry) handler(handlerID int) (RequestHandler, error) {
	h.lock.RLock()
	defer h.lock.RUnlock()
	handler, ok := h.handlers[handlerID]
	if !ok {
		return nil, errors.NewFetchErrorf(errors.Unavailable, "no handler registered with id %d", handlerID)
	}
	return handler, nil
}

// wireError is the error a client receives for a failed request. Only the code and message of a FetchError cross
// the transport, any other error becomes an InternalError with the same message.
func wireError(err error) errors.FetchError {
	var ferr errors.FetchError
	if errors.As(err, &ferr) {
		return ferr
	}
	return errors.NewFetchError(errors.InternalError, err.Error())
}
