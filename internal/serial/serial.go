// Package serial carries the line protocol over a UART link to the host
// board: CSV data and status lines out, command lines in.
package serial

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	bugserial "go.bug.st/serial"
)

// DefaultBaudRate matches the host board's console setting.
const DefaultBaudRate = 115200

// commandBuffer bounds unread command lines before new ones are dropped.
const commandBuffer = 16

// Link is a line-oriented duplex connection.
type Link struct {
	name string
	conn io.ReadWriteCloser

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	cmds   chan string
	closed bool
}

// Open opens a serial port and starts reading command lines from it.
func Open(port string, baud int) (*Link, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	conn, err := bugserial.Open(port, &bugserial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", port, err)
	}
	log.Printf("serial: opened %s at %d baud", port, baud)
	return NewLink(port, conn), nil
}

// NewLink wraps an already open stream. The reader goroutine starts
// immediately.
func NewLink(name string, conn io.ReadWriteCloser) *Link {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Link{
		name:   name,
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
		cmds:   make(chan string, commandBuffer),
	}
	go l.readCommands()
	return l
}

// Commands yields trimmed, non-empty input lines. The channel is closed
// when the link is closed or the stream ends.
func (l *Link) Commands() <-chan string {
	return l.cmds
}

// WriteLine writes s followed by a newline.
func (l *Link) WriteLine(s string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return fmt.Errorf("serial %s: link closed", l.name)
	}
	if _, err := io.WriteString(l.conn, s+"\n"); err != nil {
		return fmt.Errorf("serial %s: write: %w", l.name, err)
	}
	return nil
}

// WriteLines writes each line in order, stopping at the first error.
func (l *Link) WriteLines(lines []string) error {
	for _, s := range lines {
		if err := l.WriteLine(s); err != nil {
			return err
		}
	}
	return nil
}

// Close stops the reader and closes the underlying stream. The commands
// channel closes once the pending read returns.
func (l *Link) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	l.cancel()
	if err := l.conn.Close(); err != nil {
		return fmt.Errorf("serial %s: close: %w", l.name, err)
	}
	return nil
}

func (l *Link) readCommands() {
	defer close(l.cmds)

	scanner := bufio.NewScanner(l.conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		select {
		case l.cmds <- line:
		case <-l.ctx.Done():
			return
		default:
			log.Printf("serial: command queue full, dropping %q", line)
		}
	}
	if err := scanner.Err(); err != nil && l.ctx.Err() == nil {
		log.Printf("serial: read error on %s: %v", l.name, err)
	}
}
