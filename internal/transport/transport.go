// Package transport implements the locator-addressed datagram and stream
// transports used to exchange RTPS messages (spec.md section 4.D): UDP
// multicast/unicast, and TCP with the connection cache Cyclone DDS's
// ddsi_tcp.c uses to reuse outbound connections and accept bidirectional
// traffic on them.
package transport

import (
	"context"
	"fmt"

	"github.com/ocx/ddscore/internal/wire"
)

// Connection sends and receives whole RTPS messages over one transport
// instance. A Connection does not know about submessage framing; it deals
// in already-marshaled byte slices.
type Connection interface {
	// Send transmits data to dst. For UDP this is a single datagram write;
	// for TCP it writes to the cached stream connection for dst, dialing
	// one if none is cached yet.
	Send(ctx context.Context, dst wire.Locator, data []byte) error
	// LocalLocator returns the locator other participants should use to
	// reach this connection (as advertised in SPDP).
	LocalLocator() wire.Locator
	Close() error
}

// Listener accepts inbound messages on a transport-specific address and
// delivers each to handler. Receiving is not itself concurrent across
// messages; the caller (internal/domain's receive thread pool) decides
// how much fan-out to apply.
type Listener interface {
	Accept(ctx context.Context, handler func(src wire.Locator, data []byte)) error
	LocalLocator() wire.Locator
	Close() error
}

// Factory constructs connections and listeners for one locator kind.
type Factory interface {
	Kind() int32
	NewConnection(locator wire.Locator) (Connection, error)
	NewListener(port uint32) (Listener, error)
}

// ErrUnsupportedLocatorKind is returned when no registered factory handles
// a locator's kind.
var ErrUnsupportedLocatorKind = fmt.Errorf("transport: unsupported locator kind")
