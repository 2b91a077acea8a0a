package espnow

import (
	"context"
	"errors"
	"io"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedPort serves fixed content, then io.EOF.
type scriptedPort struct {
	io.Reader
	mu     sync.Mutex
	closed bool
}

func (p *scriptedPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// scriptedOpener hands out one port per call from contents; an empty
// string entry fails that open.
type scriptedOpener struct {
	mu       sync.Mutex
	contents []string
	calls    int
	ports    []*scriptedPort
}

func (o *scriptedOpener) open(string, int) (io.ReadCloser, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	i := o.calls
	o.calls++
	if i >= len(o.contents) || o.contents[i] == "" {
		return nil, errors.New("no such device")
	}
	p := &scriptedPort{Reader: strings.NewReader(o.contents[i])}
	o.ports = append(o.ports, p)
	return p, nil
}

func newScriptedTransport(t *testing.T, opener *scriptedOpener, onReconnect func()) *SerialTransport {
	t.Helper()
	tr, err := NewSerialTransport(SerialOptions{
		Port:         "/dev/ttyTEST",
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Open:         opener.open,
		OnReconnect:  onReconnect,
	})
	require.NoError(t, err)
	return tr
}

func TestNewSerialTransport_Defaults(t *testing.T) {
	_, err := NewSerialTransport(SerialOptions{})
	assert.Error(t, err)

	tr, err := NewSerialTransport(SerialOptions{Port: "/dev/ttyUSB0"})
	require.NoError(t, err)
	assert.Equal(t, DefaultBaud, tr.opts.Baud)
	assert.Equal(t, defaultInitialDelay, tr.opts.InitialDelay)
	assert.Equal(t, defaultMaxDelay, tr.opts.MaxDelay)
	assert.False(t, tr.IsConnected())
}

func TestSerialTransport_ReadsLinesAndReopens(t *testing.T) {
	opener := &scriptedOpener{contents: []string{"first\r\n\n   second  \n", "third\n"}}
	reconnects := 0
	tr := newScriptedTransport(t, opener, func() { reconnects++ })
	ctx := context.Background()

	for _, want := range []string{"first", "second", "third"} {
		line, err := tr.ReadLine(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, string(line))
	}

	assert.Equal(t, 1, reconnects, "reopen after EOF counts as reconnect")
	st := tr.Status()
	assert.True(t, st.Connected)
	assert.Equal(t, uint64(3), st.LinesRead)
	assert.Equal(t, uint64(1), st.Reconnects)
	assert.Equal(t, "/dev/ttyTEST", st.Port)
	assert.True(t, opener.ports[0].closed)
}

func TestSerialTransport_RetriesFailedOpen(t *testing.T) {
	opener := &scriptedOpener{contents: []string{"", "", `{"MAC":"AA"}` + "\n"}}
	tr := newScriptedTransport(t, opener, nil)

	line, err := tr.ReadLine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"MAC":"AA"}`, string(line))
	assert.Equal(t, 3, opener.calls)
	assert.Equal(t, uint64(2), tr.Status().Reconnects)
}

func TestSerialTransport_DropsOverlongLines(t *testing.T) {
	opener := &scriptedOpener{contents: []string{strings.Repeat("x", maxLineLength+1) + "\nok\n"}}
	tr := newScriptedTransport(t, opener, nil)

	line, err := tr.ReadLine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", string(line))
}

// failingPort opens fine and fails every read.
type failingPort struct{}

func (failingPort) Read([]byte) (int, error) { return 0, errors.New("device reports error") }
func (failingPort) Close() error               { return nil }

func TestSerialTransport_BacksOffAfterReadErrors(t *testing.T) {
	var mu sync.Mutex
	opens := 0
	tr, err := NewSerialTransport(SerialOptions{
		Port:         "/dev/ttyTEST",
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
		Open: func(string, int) (io.ReadCloser, error) {
			mu.Lock()
			defer mu.Unlock()
			opens++
			return failingPort{}, nil
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err = tr.ReadLine(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	mu.Lock()
	defer mu.Unlock()
	// 50ms +/- 50% between reopens: at most nine opens fit in 200ms.
	assert.GreaterOrEqual(t, opens, 2)
	assert.LessOrEqual(t, opens, 9)
}

// zeroStream yields n bytes of 'x' without allocating, then tail.
type zeroStream struct {
	n    int
	tail *strings.Reader
}

func (z *zeroStream) Read(p []byte) (int, error) {
	if z.n == 0 {
		return z.tail.Read(p)
	}
	k := min(len(p), z.n)
	for i := range p[:k] {
		p[i] = 'x'
	}
	z.n -= k
	return k, nil
}

func (z *zeroStream) Close() error { return nil }

func TestSerialTransport_OverlongLineMemoryBounded(t *testing.T) {
	const runaway = 64 << 20
	tr, err := NewSerialTransport(SerialOptions{
		Port: "/dev/ttyTEST",
		Open: func(string, int) (io.ReadCloser, error) {
			return &zeroStream{n: runaway, tail: strings.NewReader("\nok\n")}, nil
		},
	})
	require.NoError(t, err)

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	line, err := tr.ReadLine(context.Background())
	runtime.ReadMemStats(&after)

	require.NoError(t, err)
	assert.Equal(t, "ok", string(line))
	assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(8<<20))
}

// idlePort times out every read until closed.
type idlePort struct {
	mu     sync.Mutex
	closed bool
}

func (p *idlePort) Read([]byte) (int, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return 0, io.ErrClosedPipe
	}
	time.Sleep(time.Millisecond)
	return 0, nil
}

func (p *idlePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *idlePort) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func TestSerialTransport_CloseUnblocksReadAndClosesPort(t *testing.T) {
	port := &idlePort{}
	tr, err := NewSerialTransport(SerialOptions{
		Port: "/dev/ttyTEST",
		Open: func(string, int) (io.ReadCloser, error) { return port, nil },
	})
	require.NoError(t, err)

	result := make(chan error, 1)
	go func() {
		_, err := tr.ReadLine(context.Background())
		result <- err
	}()
	require.Eventually(t, tr.IsConnected, time.Second, time.Millisecond)

	require.NoError(t, tr.Close())
	select {
	case err := <-result:
		assert.ErrorIs(t, err, ErrBridgeStopped)
	case <-time.After(time.Second):
		t.Fatal("ReadLine did not return after Close")
	}
	assert.True(t, port.isClosed())
	assert.False(t, tr.IsConnected())
}

func TestSerialTransport_ContextCancelled(t *testing.T) {
	opener := &scriptedOpener{}
	tr := newScriptedTransport(t, opener, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := tr.ReadLine(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, tr.IsConnected())
}

func TestSerialTransport_Closed(t *testing.T) {
	opener := &scriptedOpener{contents: []string{"a\n"}}
	tr := newScriptedTransport(t, opener, nil)
	require.NoError(t, tr.Close())

	_, err := tr.ReadLine(context.Background())
	assert.ErrorIs(t, err, ErrBridgeStopped)
	assert.Equal(t, 0, opener.calls)
}
