package serial

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeConn reads from an io.Pipe and records writes.
type pipeConn struct {
	r *io.PipeReader

	mu     sync.Mutex
	out    bytes.Buffer
	closed bool
	err    error
}

func newPipeConn() (*pipeConn, *io.PipeWriter) {
	r, w := io.Pipe()
	return &pipeConn{r: r}, w
}

func (p *pipeConn) Read(b []byte) (int, error) { return p.r.Read(b) }

func (p *pipeConn) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return 0, p.err
	}
	return p.out.Write(b)
}

func (p *pipeConn) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return p.r.Close()
}

func (p *pipeConn) written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.String()
}

func recv(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case s, ok := <-ch:
		require.True(t, ok, "channel closed")
		return s
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for command")
		return ""
	}
}

func TestLinkReadsTrimmedCommands(t *testing.T) {
	conn, w := newPipeConn()
	l := NewLink("test", conn)
	defer l.Close()

	go func() {
		_, _ = io.WriteString(w, "help\r\n\n  get ppsFastShift  \nstats\n")
	}()

	assert.Equal(t, "help", recv(t, l.Commands()))
	assert.Equal(t, "get ppsFastShift", recv(t, l.Commands()))
	assert.Equal(t, "stats", recv(t, l.Commands()))
}

func TestLinkWriteLines(t *testing.T) {
	conn, _ := newPipeConn()
	l := NewLink("test", conn)
	defer l.Close()

	require.NoError(t, l.WriteLine("HDR,16Mhz"))
	require.NoError(t, l.WriteLines([]string{"a", "b"}))
	assert.Equal(t, "HDR,16Mhz\na\nb\n", conn.written())
}

func TestLinkWriteError(t *testing.T) {
	conn, _ := newPipeConn()
	conn.err = errors.New("boom")
	l := NewLink("test", conn)
	defer l.Close()

	err := l.WriteLine("x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestLinkCloseEndsCommands(t *testing.T) {
	conn, _ := newPipeConn()
	l := NewLink("test", conn)

	require.NoError(t, l.Close())
	assert.True(t, conn.closed)

	_, ok := <-l.Commands()
	assert.False(t, ok)

	assert.Error(t, l.WriteLine("late"))
	assert.NoError(t, l.Close(), "second close is a no-op")
}

func TestLinkStreamEndClosesCommands(t *testing.T) {
	conn, w := newPipeConn()
	l := NewLink("test", conn)
	defer l.Close()

	go func() {
		_, _ = io.WriteString(w, "stats\n")
		_ = w.Close()
	}()

	assert.Equal(t, "stats", recv(t, l.Commands()))
	select {
	case _, ok := <-l.Commands():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("commands channel not closed at EOF")
	}
}
