package transport

import (
	"context"
	"fmt"
	"net"

	"github.com/ocx/ddscore/internal/wire"
)

// TCPFactory constructs connections and listeners backed by a shared
// connection cache, the way a single ddsi_tran_factory owns one
// ddsi_tcp_cache_g for the whole process.
type TCPFactory struct {
	cache *Cache
}

func NewTCPFactory() *TCPFactory {
	f := &TCPFactory{}
	f.cache = NewCache(func(peerAddr string) (net.Conn, error) {
		return net.Dial("tcp4", peerAddr)
	})
	return f
}

func (f *TCPFactory) Kind() int32 { return wire.LocatorKindTCPv4 }

func locatorToTCPAddr(l wire.Locator) string {
	ip := net.IP(l.Address[12:16])
	return fmt.Sprintf("%s:%d", ip.String(), l.Port)
}

func (f *TCPFactory) NewConnection(locator wire.Locator) (Connection, error) {
	peer := locatorToTCPAddr(locator)
	tc, err := f.cache.Find(peer)
	if err != nil {
		return nil, err
	}
	return &tcpConnection{cache: f.cache, peer: peer, tc: tc}, nil
}

func (f *TCPFactory) NewListener(port uint32) (Listener, error) {
	ln, err := net.Listen("tcp4", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("transport: tcp listen on %d: %w", port, err)
	}
	return &tcpListener{ln: ln, cache: f.cache}, nil
}

// tcpConnection is the Connection-interface facade over one cached
// tcpConn. Sending on a connection that has failed re-dials through the
// cache, mirroring ddsi_tcp_cache_find's cache-miss-creates-new-entry path.
type tcpConnection struct {
	cache *Cache
	peer  string
	tc    *tcpConn
}

func (c *tcpConnection) Send(ctx context.Context, dst wire.Locator, data []byte) error {
	if err := c.tc.write(data); err != nil {
		c.cache.Remove(c.peer, c.tc)
		fresh, dialErr := c.cache.Find(c.peer)
		if dialErr != nil {
			return fmt.Errorf("transport: tcp resend to %s: %w", c.peer, dialErr)
		}
		c.tc = fresh
		return c.tc.write(data)
	}
	return nil
}

func (c *tcpConnection) LocalLocator() wire.Locator {
	return addrToTCPLocator(c.tc.conn.LocalAddr())
}

func (c *tcpConnection) Close() error {
	c.cache.Remove(c.peer, c.tc)
	return nil
}

type tcpListener struct {
	ln    net.Listener
	cache *Cache
}

func (l *tcpListener) Accept(ctx context.Context, handler func(src wire.Locator, data []byte)) error {
	go func() {
		<-ctx.Done()
		l.ln.Close()
	}()
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				return fmt.Errorf("transport: tcp accept: %w", err)
			}
		}
		peer := conn.RemoteAddr().String()
		tc := l.cache.Add(peer, conn)
		go readLoop(tc, peer, l.cache, func(data []byte) {
			handler(addrToTCPLocator(conn.RemoteAddr()), data)
		})
	}
}

func readLoop(tc *tcpConn, peer string, cache *Cache, deliver func([]byte)) {
	buf := make([]byte, 64*1024)
	for {
		n, err := tc.conn.Read(buf)
		if err != nil {
			cache.Remove(peer, tc)
			return
		}
		msg := make([]byte, n)
		copy(msg, buf[:n])
		deliver(msg)
	}
}

func (l *tcpListener) LocalLocator() wire.Locator {
	return addrToTCPLocator(l.ln.Addr())
}

func (l *tcpListener) Close() error { return l.ln.Close() }

func addrToTCPLocator(addr net.Addr) wire.Locator {
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return wire.Locator{Kind: wire.LocatorKindInvalid}
	}
	loc := wire.Locator{Kind: wire.LocatorKindTCPv4, Port: uint32(tcpAddr.Port)}
	ip4 := tcpAddr.IP.To4()
	if ip4 != nil {
		copy(loc.Address[12:], ip4)
	}
	return loc
}
