package debug

import (
	"net"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/locator/logger"
)

func TestBroadcastDoesNotWaitForSlowClients(t *testing.T) {
	h := newHub(logger.NewNoopLogger())

	// Nothing ever reads the peer end, so every write blocks.
	conn, peer := net.Pipe()
	defer peer.Close()
	h.add(conn, []byte("snapshot"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 4 * clientQueue {
			h.broadcast([]byte("event"))
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a client that does not read")
	}
	assert.Positive(t, h.dropped.Load())

	h.closeAll()
	assert.Zero(t, h.count())
}

func TestClientReceivesFramesInOrder(t *testing.T) {
	h := newHub(logger.NewNoopLogger())
	conn, peer := net.Pipe()
	defer peer.Close()
	c := h.add(conn, []byte("snapshot"))

	h.broadcast([]byte("one"))
	h.broadcast([]byte("two"))
	require.True(t, h.enqueue(c, frame{op: ws.OpPong, data: []byte("ping")}))

	for _, want := range []string{"snapshot", "one", "two"} {
		data, err := wsutil.ReadServerText(peer)
		require.NoError(t, err)
		assert.Equal(t, want, string(data))
	}

	hdr, err := ws.ReadHeader(peer)
	require.NoError(t, err)
	assert.Equal(t, ws.OpPong, hdr.OpCode)
	assert.Equal(t, int64(4), hdr.Length)

	h.remove(conn)
	assert.Zero(t, h.count())
}
