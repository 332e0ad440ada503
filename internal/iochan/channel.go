// Package iochan implements the I/O Channel: the sole conduit between a
// connected socket and the HTTP Connection above it. It delivers inbound
// bytes to a read handler invoked serially, and accepts outbound write
// jobs on a strict FIFO queue, each with a completion callback invoked
// exactly once.
//
// Grounded on the background-read goroutine and condition-variable
// handshake of badu-http's conn_reader.go (backgroundRead/abortPendingRead),
// generalized from "read one byte to detect pipelining" to "read handler
// called on every fragment, serialized against every write completion".
// The nonblocking-signal vocabulary (retry/wouldblock) follows the shape of
// hayabusa-cloud-framer's Options.RetryDelay, though this channel always
// blocks its two dedicated I/O goroutines rather than spinning.
package iochan

import (
	"errors"
	"io"
	"net"
	"sync"
)

// ErrChannelClosed is the error passed to every write completion still
// pending when the channel is closed.
var ErrChannelClosed = errors.New("iochan: channel closed")

// ReadHandler receives inbound bytes, or a non-nil err on read failure. End
// of stream is reported as a final call with b == nil and err == nil,
// after which the handler is never invoked again.
type ReadHandler func(b []byte, err error)

// WriteCompletion is invoked exactly once per Write call. unwritten is
// non-empty only when the channel tore down with bytes still queued.
type WriteCompletion func(unwritten []byte, err error)

type writeJob struct {
	data     []byte
	complete WriteCompletion
}

// readEvent and writeDoneEvent flow from the two I/O goroutines into the
// single serial executor goroutine, which is the only place read handlers
// and write completions are invoked from — this is what gives the channel
// its "no two callbacks run concurrently" guarantee.
type readEvent struct {
	b   []byte
	err error
}

type writeDoneEvent struct {
	job       writeJob
	unwritten []byte
	err       error
}

// Channel owns one connected net.Conn for its lifetime.
type Channel struct {
	conn      net.Conn
	onCleanup func()
	chunkSize int

	reads  chan readEvent
	writes chan writeJob
	done   chan writeDoneEvent

	mu        sync.Mutex
	handler   ReadHandler
	closed    bool
	closeOnce sync.Once
	pending   []writeJob // jobs submitted but not yet handed to the writer goroutine's select
	stopWrite chan struct{}
	loopDone  chan struct{}
}

// Option configures a Channel at construction.
type Option func(*Channel)

// WithReadChunkSize overrides the default 32KiB read buffer size.
func WithReadChunkSize(n int) Option {
	return func(c *Channel) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

// New takes ownership of an already-connected socket. onCleanup runs
// exactly once, after Close has stopped reads and failed pending writes.
func New(conn net.Conn, onCleanup func(), opts ...Option) *Channel {
	c := &Channel{
		conn:      conn,
		onCleanup: onCleanup,
		chunkSize: 32 * 1024,
		reads:     make(chan readEvent, 1),
		writes:    make(chan writeJob, 64),
		done:      make(chan writeDoneEvent, 1),
		stopWrite: make(chan struct{}),
		loopDone:  make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	go c.readLoop()
	go c.writeLoop()
	go c.serialExecutor()
	return c
}

// SetReadHandler installs the callback invoked serially whenever bytes
// arrive or a read error occurs. It may be called once, before the first
// byte is expected; callers needing to change handlers mid-stream should
// close and replace the Channel instead — that matches the Connection's
// one-parser-per-socket lifetime in spec.md §4.3.
func (c *Channel) SetReadHandler(h ReadHandler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// Write enqueues a write job. Jobs are drained in strict FIFO order and
// each completion is called exactly once, from the same serial executor
// that calls the read handler.
func (c *Channel) Write(b []byte, complete WriteCompletion) {
	if complete == nil {
		complete = func([]byte, error) {}
	}
	job := writeJob{data: b, complete: complete}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		complete(b, ErrChannelClosed)
		return
	}
	c.mu.Unlock()

	select {
	case c.writes <- job:
	case <-c.stopWrite:
		complete(b, ErrChannelClosed)
	}
}

// Close stops reads, fails all pending write completions with
// ErrChannelClosed, then runs onCleanup. Idempotent.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		close(c.stopWrite)
		c.conn.Close()
		<-c.loopDone

		if c.onCleanup != nil {
			c.onCleanup()
		}
	})
}

func (c *Channel) readLoop() {
	buf := make([]byte, c.chunkSize)
	for {
		n, err := c.conn.Read(buf)
		var chunk []byte
		if n > 0 {
			chunk = make([]byte, n)
			copy(chunk, buf[:n])
		}
		if err == io.EOF {
			if chunk != nil {
				c.reads <- readEvent{b: chunk, err: nil}
			}
			c.reads <- readEvent{b: nil, err: nil}
			return
		}
		if err != nil {
			c.reads <- readEvent{b: chunk, err: err}
			return
		}
		c.reads <- readEvent{b: chunk, err: nil}
	}
}

func (c *Channel) writeLoop() {
	for {
		select {
		case job := <-c.writes:
			unwritten, err := c.writeAll(job.data)
			c.done <- writeDoneEvent{job: job, unwritten: unwritten, err: err}
			if err != nil {
				return
			}
		case <-c.stopWrite:
			return
		}
	}
}

func (c *Channel) writeAll(b []byte) ([]byte, error) {
	for len(b) > 0 {
		n, err := c.conn.Write(b)
		b = b[n:]
		if err != nil {
			return b, err
		}
	}
	return nil, nil
}

// serialExecutor is the only goroutine that ever invokes a read handler or
// a write completion, which is what makes those invocations mutually
// exclusive regardless of how reads and writes interleave on the wire.
func (c *Channel) serialExecutor() {
	defer close(c.loopDone)
	readDone := false
	for {
		select {
		case ev, ok := <-c.reads:
			if !ok {
				readDone = true
				continue
			}
			c.invokeHandler(ev.b, ev.err)
			if ev.err != nil || (ev.b == nil && ev.err == nil) {
				readDone = true
			}
		case ev := <-c.done:
			ev.job.complete(ev.unwritten, ev.err)
		case <-c.stopWrite:
			c.drainPendingWrites()
			return
		}
		_ = readDone
	}
}

func (c *Channel) invokeHandler(b []byte, err error) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h != nil {
		h(b, err)
	}
}

// drainPendingWrites fails every write job still sitting in the channel's
// internal queue once Close has fired, so no completion is ever dropped.
func (c *Channel) drainPendingWrites() {
	for {
		select {
		case job := <-c.writes:
			job.complete(job.data, ErrChannelClosed)
		default:
			return
		}
	}
}
