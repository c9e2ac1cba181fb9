package common

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/spirit-labs/docfetch/errors"
)

var (
	testPortsEnabled atomic.Bool
	reservedLock     sync.Mutex
	reserved         = map[string]*reservedListener{}
)

// EnableTestPorts makes AddressWithPort keep the listener it opened, and Listen hand it out. Tests then never race
// another process for a free port.
func EnableTestPorts() {
	testPortsEnabled.Store(true)
}

// AddressWithPort returns host joined with a currently free port.
func AddressWithPort(host string) (string, error) {
	l, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return "", errors.WithStack(err)
	}
	address := l.Addr().String()
	if !testPortsEnabled.Load() {
		return address, errors.WithStack(l.Close())
	}
	reservedLock.Lock()
	defer reservedLock.Unlock()
	reserved[address] = &reservedListener{Listener: l, address: address}
	return address, nil
}

// Listen opens a tcp listener on address. With test ports enabled only addresses from AddressWithPort can be
// listened on.
func Listen(network, address string) (net.Listener, error) {
	if network != "tcp" {
		return nil, errors.Errorf("unsupported network %s", network)
	}
	if !testPortsEnabled.Load() {
		return net.Listen(network, address)
	}
	reservedLock.Lock()
	defer reservedLock.Unlock()
	l, ok := reserved[address]
	if !ok {
		return nil, errors.Errorf("no test port reserved for address %s", address)
	}
	return l, nil
}

type reservedListener struct {
	net.Listener
	address string
}

// Close releases the reservation along with the port.
func (r *reservedListener) Close() error {
	reservedLock.Lock()
	if reserved[r.address] == r {
		delete(reserved, r.address)
	}
	reservedLock.Unlock()
	return r.Listener.Close()
}
