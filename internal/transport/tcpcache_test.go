package transport

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipeDialer(t *testing.T) (dial func(string) (net.Conn, error), serverEnds chan net.Conn) {
	t.Helper()
	serverEnds = make(chan net.Conn, 8)
	dial = func(string) (net.Conn, error) {
		client, server := net.Pipe()
		serverEnds <- server
		return client, nil
	}
	return dial, serverEnds
}

func TestCacheFindCachesConnection(t *testing.T) {
	dial, _ := pipeDialer(t)
	c := NewCache(dial)

	tc1, err := c.Find("10.0.0.1:7400")
	require.NoError(t, err)
	tc2, err := c.Find("10.0.0.1:7400")
	require.NoError(t, err)

	assert.Same(t, tc1, tc2)
	assert.Equal(t, 1, c.Len())
}

func TestCacheFindDialsSeparatelyPerPeer(t *testing.T) {
	dial, _ := pipeDialer(t)
	c := NewCache(dial)

	_, err := c.Find("10.0.0.1:7400")
	require.NoError(t, err)
	_, err = c.Find("10.0.0.2:7400")
	require.NoError(t, err)

	assert.Equal(t, 2, c.Len())
}

func TestCacheAddReplacesExistingEntry(t *testing.T) {
	dial, _ := pipeDialer(t)
	c := NewCache(dial)

	client, original := net.Pipe()
	defer client.Close()
	c.byPeer["10.0.0.1:7400"] = &tcpConn{conn: original, peerAddr: "10.0.0.1:7400"}

	_, accepted := net.Pipe()
	replaced := c.Add("10.0.0.1:7400", accepted)

	assert.Equal(t, 1, c.Len())
	got, err := c.Find("10.0.0.1:7400")
	require.NoError(t, err)
	assert.Same(t, replaced, got)
}

func TestCacheRemoveEvictsOnlyMatchingEntry(t *testing.T) {
	dial, _ := pipeDialer(t)
	c := NewCache(dial)

	tc, err := c.Find("10.0.0.1:7400")
	require.NoError(t, err)

	c.Remove("10.0.0.1:7400", tc)
	assert.Equal(t, 0, c.Len())
}

func TestCacheRemoveIgnoresStaleConnection(t *testing.T) {
	dial, _ := pipeDialer(t)
	c := NewCache(dial)

	stale, err := c.Find("10.0.0.1:7400")
	require.NoError(t, err)

	_, accepted := net.Pipe()
	fresh := c.Add("10.0.0.1:7400", accepted)

	// removing with the stale handle must not evict the connection that
	// replaced it.
	c.Remove("10.0.0.1:7400", stale)
	assert.Equal(t, 1, c.Len())

	got, err := c.Find("10.0.0.1:7400")
	require.NoError(t, err)
	assert.Same(t, fresh, got)
}

func TestCachePurgeMatchesByPeerPredicate(t *testing.T) {
	dial, _ := pipeDialer(t)
	c := NewCache(dial)

	_, err := c.Find("10.0.0.1:7400")
	require.NoError(t, err)
	_, err = c.Find("10.0.0.2:7400")
	require.NoError(t, err)

	c.Purge(func(peer string) bool { return peer == "10.0.0.1:7400" })
	assert.Equal(t, 1, c.Len())

	_, err = c.Find("10.0.0.2:7400")
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())
}
