package transport

import (
	"fmt"
	"net"
	"sync"

	"github.com/ocx/ddscore/internal/circuitbreaker"
)

// tcpConn wraps one TCP stream with the mutex ddsi_tcp.c's m_mutex
// protects: writes from multiple threads must not interleave on the same
// socket, and the connection is reference counted by the cache entries
// that point at it plus any in-flight senders.
type tcpConn struct {
	mu       sync.Mutex
	conn     net.Conn
	peerAddr string // cache key: remote "ip:port"
	server   bool   // accepted inbound, not dialed — never evicted on send error
	closed   bool
}

func (c *tcpConn) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("transport: tcp connection to %s is closed", c.peerAddr)
	}
	_, err := c.conn.Write(data)
	return err
}

func (c *tcpConn) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// Cache is the TCP connection cache, grounded on ddsi_tcp.c's
// ddsi_tcp_cache_add/_remove/_find: a map keyed by peer address standing
// in for the C implementation's AVL tree (Go's builtin map already gives
// O(1) average lookup; the AVL tree was a C-specific necessity there, not
// a property this design needs to preserve).
type Cache struct {
	mu       sync.Mutex
	byPeer   map[string]*tcpConn
	dial     func(peerAddr string) (net.Conn, error)
	breakers *circuitbreaker.Manager
}

// NewCache constructs an empty cache. dial is invoked on a cache miss to
// establish a new outbound connection; tests can substitute an in-memory
// dialer. Each peer address gets its own circuit breaker, so a peer that
// keeps refusing connections stops being redialed on every single sample
// once three consecutive dials have failed (see
// circuitbreaker.DialBreakerConfig).
func NewCache(dial func(peerAddr string) (net.Conn, error)) *Cache {
	return &Cache{
		byPeer:   make(map[string]*tcpConn),
		dial:     dial,
		breakers: circuitbreaker.NewManager(nil),
	}
}

// Find returns the cached connection to peerAddr, dialing and caching a
// new one on a miss. Mirrors ddsi_tcp_cache_find.
func (c *Cache) Find(peerAddr string) (*tcpConn, error) {
	c.mu.Lock()
	if existing, ok := c.byPeer[peerAddr]; ok && !existing.closed {
		c.mu.Unlock()
		return existing, nil
	}
	c.mu.Unlock()

	breaker := c.breakers.GetOrCreate(peerAddr, circuitbreaker.DialBreakerConfig(peerAddr))
	connAny, err := breaker.Execute(func() (interface{}, error) {
		return c.dial(peerAddr)
	})
	if err != nil {
		return nil, fmt.Errorf("transport: tcp dial %s: %w", peerAddr, err)
	}
	conn := connAny.(net.Conn)
	tc := &tcpConn{conn: conn, peerAddr: peerAddr}

	c.mu.Lock()
	defer c.mu.Unlock()
	// another goroutine may have raced us to the dial; keep whichever
	// connection is already cached and close our redundant one.
	if existing, ok := c.byPeer[peerAddr]; ok && !existing.closed {
		tc.close()
		return existing, nil
	}
	c.byPeer[peerAddr] = tc
	return tc, nil
}

// Add registers an accepted server-side connection under peerAddr,
// replacing whatever was previously cached for that peer. Mirrors
// ddsi_tcp_cache_add's "replace connection in cache" branch: an inbound
// accept on a peer we already hold a client connection to wins, since the
// accepting side's connection can also carry reply traffic back
// (bidirectional reuse).
func (c *Cache) Add(peerAddr string, conn net.Conn) *tcpConn {
	tc := &tcpConn{conn: conn, peerAddr: peerAddr, server: true}

	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.byPeer[peerAddr]; ok {
		old.close()
	}
	c.byPeer[peerAddr] = tc
	return tc
}

// Remove evicts the cached connection for peerAddr, if it is still the
// one presented by the caller (a newer connection may have replaced it
// already). Mirrors ddsi_tcp_cache_remove, invoked on a write/read error.
// An accepted (server) connection is closed but stays cached; Find treats
// the closed entry as a miss and replaces it.
func (c *Cache) Remove(peerAddr string, conn *tcpConn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if current, ok := c.byPeer[peerAddr]; ok && current == conn && !conn.server {
		delete(c.byPeer, peerAddr)
	}
	conn.close()
}

// Len reports the number of cached connections.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byPeer)
}

// Purge removes and closes every cached connection whose peer address is
// owned by the given proxy participant, per ddsi_tcp.c's
// purge_proxy_participants hook invoked when a proxy participant's lease
// expires and its connections should not linger.
func (c *Cache) Purge(match func(peerAddr string) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for peer, conn := range c.byPeer {
		if match(peer) {
			conn.close()
			delete(c.byPeer, peer)
		}
	}
}
