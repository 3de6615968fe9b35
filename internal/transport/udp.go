package transport

import (
	"context"
	"fmt"
	"net"

	"github.com/ocx/ddscore/internal/wire"
)

// UDPFactory constructs best-effort UDP connections and listeners, used
// for SPDP multicast and ordinary unicast user traffic.
type UDPFactory struct{}

func (UDPFactory) Kind() int32 { return wire.LocatorKindUDPv4 }

func localeToUDPAddr(l wire.Locator) *net.UDPAddr {
	ip := make(net.IP, 4)
	copy(ip, l.Address[12:16])
	return &net.UDPAddr{IP: ip, Port: int(l.Port)}
}

func (UDPFactory) NewConnection(locator wire.Locator) (Connection, error) {
	conn, err := net.DialUDP("udp4", nil, localeToUDPAddr(locator))
	if err != nil {
		return nil, fmt.Errorf("transport: udp dial %v: %w", locator, err)
	}
	return &udpConnection{conn: conn}, nil
}

func (UDPFactory) NewListener(port uint32) (Listener, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: int(port)})
	if err != nil {
		return nil, fmt.Errorf("transport: udp listen on %d: %w", port, err)
	}
	return &udpListener{conn: conn}, nil
}

type udpConnection struct {
	conn *net.UDPConn
}

func (c *udpConnection) Send(_ context.Context, _ wire.Locator, data []byte) error {
	_, err := c.conn.Write(data)
	return err
}

func (c *udpConnection) LocalLocator() wire.Locator {
	return addrToLocator(c.conn.LocalAddr())
}

func (c *udpConnection) Close() error { return c.conn.Close() }

type udpListener struct {
	conn *net.UDPConn
}

func (l *udpListener) Accept(ctx context.Context, handler func(src wire.Locator, data []byte)) error {
	buf := make([]byte, 64*1024)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		n, addr, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				return fmt.Errorf("transport: udp read: %w", err)
			}
		}
		src := addrToLocator(addr)
		msg := make([]byte, n)
		copy(msg, buf[:n])
		handler(src, msg)
	}
}

func (l *udpListener) LocalLocator() wire.Locator {
	return addrToLocator(l.conn.LocalAddr())
}

func (l *udpListener) Close() error { return l.conn.Close() }

func addrToLocator(addr net.Addr) wire.Locator {
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return wire.Locator{Kind: wire.LocatorKindInvalid}
	}
	loc := wire.Locator{Kind: wire.LocatorKindUDPv4, Port: uint32(udpAddr.Port)}
	ip4 := udpAddr.IP.To4()
	if ip4 != nil {
		copy(loc.Address[12:], ip4)
	}
	return loc
}
