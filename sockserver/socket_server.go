package sockserver

import (
	"bufio"
	"encoding/binary"
	"io"
	"net"
	"sync"

	"github.com/spirit-labs/docfetch/common"
	"github.com/spirit-labs/docfetch/errors"
	log "github.com/spirit-labs/docfetch/logger"
)

// FrameHandler is called with each frame read from a connection. The frame is only valid until the handler returns.
// Returning an error closes the connection.
type FrameHandler func(frame []byte) error

// ConnectionFactory returns the FrameHandler for a newly accepted connection.
type ConnectionFactory func(conn net.Conn) FrameHandler

const (
	readBuffSize = 8 * 1024
	// MaxFrameSize bounds the length prefix we accept. Anything larger means the peer is not speaking our protocol.
	MaxFrameSize = 64 * 1024 * 1024
)

/*
SocketServer accepts TCP connections and reads frames from each of them on its own goroutine. A frame is prefixed with
its length as a big-endian uint32.
*/
type SocketServer struct {
	address     string
	connFactory ConnectionFactory
	lock        sync.Mutex
	listener    net.Listener
	conns       map[net.Conn]struct{}
	loops       sync.WaitGroup
}

func NewSocketServer(address string, connFactory ConnectionFactory) *SocketServer {
	return &SocketServer{
		address:     address,
		connFactory: connFactory,
		conns:       map[net.Conn]struct{}{},
	}
}

func (s *SocketServer) Start() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.listener != nil {
		return nil
	}
	listener, err := common.Listen("tcp", s.address)
	if err != nil {
		return errors.WithStack(err)
	}
	s.listener = listener
	s.loops.Add(1)
	common.Go(func() {
		s.acceptLoop(listener)
	})
	return nil
}

// Stop closes the listener and every open connection, then waits for their loops to exit.
func (s *SocketServer) Stop() error {
	s.lock.Lock()
	if s.listener == nil {
		s.lock.Unlock()
		return nil
	}
	if err := s.listener.Close(); err != nil {
		log.Debugf("failed to close listener on %s: %v", s.address, err)
	}
	s.listener = nil
	for conn := range s.conns {
		if err := conn.Close(); err != nil {
			// Ignore
		}
	}
	s.lock.Unlock()
	s.loops.Wait()
	return nil
}

func (s *SocketServer) Address() string {
	return s.address
}

func (s *SocketServer) NumConnections() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.conns)
}

func (s *SocketServer) acceptLoop(listener net.Listener) {
	defer s.loops.Done()
	for {
		conn, err := listener.Accept()
		if err != nil {
			// closed
			return
		}
		if !s.track(listener, conn) {
			return
		}
		handler := s.connFactory(conn)
		common.Go(func() {
			s.readLoop(conn, handler)
		})
	}
}

// track registers conn unless the server was stopped after Accept returned.
func (s *SocketServer) track(listener net.Listener, conn net.Conn) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.listener != listener {
		if err := conn.Close(); err != nil {
			// Ignore
		}
		return false
	}
	s.conns[conn] = struct{}{}
	s.loops.Add(1)
	return true
}

func (s *SocketServer) untrack(conn net.Conn) {
	s.lock.Lock()
	delete(s.conns, conn)
	s.lock.Unlock()
	if err := conn.Close(); err != nil {
		// Ignore
	}
}

func (s *SocketServer) readLoop(conn net.Conn, handler FrameHandler) {
	defer s.loops.Done()
	defer s.untrack(conn)
	defer func() {
		// a malformed frame can make a handler index past the end of its buffer, that must not take the server down
		if r := recover(); r != nil {
			log.Errorf("dropping connection from %s after panic: %v", conn.RemoteAddr(), r)
		}
	}()
	if err := ReadFrames(conn, handler); err != nil && !errors.Is(err, net.ErrClosed) {
		log.Warnf("closing connection from %s: %v", conn.RemoteAddr(), err)
	}
}

// ReadFrames reads length prefixed frames from r and passes each one to handler. The buffer holding a frame is reused
// for the next one. It returns nil when r reaches EOF on a frame boundary.
func ReadFrames(r io.Reader, handler FrameHandler) error {
	reader := bufio.NewReaderSize(r, readBuffSize)
	var header [4]byte
	buff := make([]byte, readBuffSize)
	for {
		if _, err := io.ReadFull(reader, header[:]); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		size := binary.BigEndian.Uint32(header[:])
		if size > MaxFrameSize {
			return errors.Errorf("frame size %d exceeds maximum %d", size, MaxFrameSize)
		}
		if int(size) > cap(buff) {
			buff = make([]byte, size)
		}
		frame := buff[:size]
		if _, err := io.ReadFull(reader, frame); err != nil {
			return err
		}
		if err := handler(frame); err != nil {
			return err
		}
	}
}
