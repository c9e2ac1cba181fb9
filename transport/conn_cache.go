package transport

import (
	"sync"

	"github.com/spirit-labs/docfetch/errors"
	log "github.com/spirit-labs/docfetch/logger"
)

// ConnCaches keeps up to maxConnectionsPerAddress connections to each address and hands them out round robin. A
// connection whose RPC fails with Unavailable leaves its pool, the next caller to land on that slot dials again.
type ConnCaches struct {
	maxConnectionsPerAddress int
	connFactory              ConnectionFactory
	lock                     sync.Mutex
	pools                    map[string]*connPool
}

func NewConnCaches(maxConnectionsPerAddress int, connFactory ConnectionFactory) *ConnCaches {
	if maxConnectionsPerAddress < 1 {
		maxConnectionsPerAddress = 1
	}
	return &ConnCaches{
		maxConnectionsPerAddress: maxConnectionsPerAddress,
		connFactory:              connFactory,
		pools:                    map[string]*connPool{},
	}
}

func (c *ConnCaches) GetConnection(address string) (Connection, error) {
	return c.pool(address, true).get(c.connFactory)
}

// NumConnections returns the number of open connections to address.
func (c *ConnCaches) NumConnections(address string) int {
	pool := c.pool(address, false)
	if pool == nil {
		return 0
	}
	return pool.size()
}

// Close closes every cached connection. The caches can still be used afterwards.
func (c *ConnCaches) Close() {
	c.lock.Lock()
	pools := c.pools
	c.pools = map[string]*connPool{}
	c.lock.Unlock()
	for _, pool := range pools {
		pool.closeAll()
	}
}

func (c *ConnCaches) pool(address string, create bool) *connPool {
	c.lock.Lock()
	defer c.lock.Unlock()
	pool, ok := c.pools[address]
	if !ok && create {
		pool = &connPool{address: address, slots: make([]*pooledConnection, c.maxConnectionsPerAddress)}
		c.pools[address] = pool
	}
	return pool
}

type connPool struct {
	address string
	lock    sync.Mutex
	slots   []*pooledConnection
	next    int
}

func (p *connPool) get(connFactory ConnectionFactory) (Connection, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	index := p.next
	p.next = (p.next + 1) % len(p.slots)
	if pc := p.slots[index]; pc != nil {
		return pc, nil
	}
	conn, err := connFactory(p.address)
	if err != nil {
		return nil, err
	}
	pc := &pooledConnection{pool: p, index: index, conn: conn}
	p.slots[index] = pc
	return pc, nil
}

func (p *connPool) size() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	n := 0
	for _, pc := range p.slots {
		if pc != nil {
			n++
		}
	}
	return n
}

// release empties the slot of pc. The slot may already hold a newer connection.
func (p *connPool) release(pc *pooledConnection) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.slots[pc.index] == pc {
		p.slots[pc.index] = nil
	}
}

func (p *connPool) closeAll() {
	p.lock.Lock()
	slots := p.slots
	p.slots = make([]*pooledConnection, len(slots))
	p.lock.Unlock()
	for _, pc := range slots {
		if pc == nil {
			continue
		}
		if err := pc.conn.Close(); err != nil {
			log.Warnf("failed to close connection to %s: %v", p.address, err)
		}
	}
}

type pooledConnection struct {
	pool  *connPool
	index int
	conn  Connection
}

func (pc *pooledConnection) SendRPC(handlerID int, request []byte) ([]byte, error) {
	resp, err := pc.conn.SendRPC(handlerID, request)
	if err != nil && errors.IsUnavailableError(err) {
		log.Debugf("dropping connection to %s: %v", pc.pool.address, err)
		if err := pc.Close(); err != nil {
			// Ignore
		}
	}
	return resp, err
}

func (pc *pooledConnection) Close() error {
	pc.pool.release(pc)
	return pc.conn.Close()
}
