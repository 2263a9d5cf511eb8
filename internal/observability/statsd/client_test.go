package statsd

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// udpSink binds a local UDP socket and collects every line written to it.
func udpSink(t *testing.T) (addr string, lines <-chan string) {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = pc.Close() })

	ch := make(chan string, 16)
	go func() {
		buf := make([]byte, 1024)
		for {
			n, _, readErr := pc.ReadFrom(buf)
			if readErr != nil {
				close(ch)
				return
			}
			ch <- string(buf[:n])
		}
	}()
	return pc.LocalAddr().String(), ch
}

func recv(t *testing.T, lines <-chan string) string {
	t.Helper()
	select {
	case line := <-lines:
		return line
	case <-time.After(2 * time.Second):
		t.Fatal("no metric line arrived")
		return ""
	}
}

func TestClient_EmitsMetricLines(t *testing.T) {
	addr, lines := udpSink(t)
	c, err := NewClient(Config{
		Enabled:    true,
		Address:    addr,
		Prefix:     "jobforge.",
		GlobalTags: map[string]string{"env": "test"},
	})
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	c.Count("runs.completed", 3, map[string]string{"status": "completed"})
	assert.Equal(t, "jobforge.runs.completed:3|c|#env:test,status:completed", recv(t, lines))

	c.Gauge("queue.depth", 12, nil)
	assert.Equal(t, "jobforge.queue.depth:12|g|#env:test", recv(t, lines))

	c.Timing("tick.duration", 1500*time.Millisecond, nil)
	assert.Equal(t, "jobforge.tick.duration:1500|ms|#env:test", recv(t, lines))
}

func TestClient_QualifiesNames(t *testing.T) {
	addr, lines := udpSink(t)
	c, err := NewClient(Config{Enabled: true, Address: addr})
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	c.Count("hooks dispatched/total", 1, nil)
	assert.Equal(t, "hooks_dispatched_total:1|c", recv(t, lines))
}

func TestClient_DisabledIsNoop(t *testing.T) {
	c, err := NewClient(Config{Enabled: false, Address: "localhost:8125"})
	require.NoError(t, err)

	// Must not panic or block without a connection.
	c.Count("anything", 1, nil)
	c.Gauge("anything", 1, nil)
	c.Timing("anything", time.Second, nil)
	assert.NoError(t, c.Close())

	var nilClient *Client
	nilClient.Count("anything", 1, nil)
	assert.NoError(t, nilClient.Close())
}

func TestClient_EnabledWithoutAddressIsNoop(t *testing.T) {
	c, err := NewClient(Config{Enabled: true, Address: "   "})
	require.NoError(t, err)
	c.Count("anything", 1, nil)
	assert.NoError(t, c.Close())
}
