// Package conn implements the HTTP Connection of spec.md §4.3: it owns
// one socket's Reader, Parser and serial Response Operation queue, and
// drives zero or more request/response cycles on it, honoring keep-alive
// and pipelining.
//
// Grounded on the read/dispatch/respond loop of badu-http's conn.go
// serve method, reshaped from a blocking per-request loop into an
// event-driven one: the iochan.Channel's read handler feeds bytes in,
// and a dedicated connection goroutine drains parsed requests and runs
// Response Operations, so that an Operation's synthetic-synchronous
// write_all (which waits for a channel write completion) never blocks
// the channel's own serial executor — the goroutine that would otherwise
// need to deliver that very completion.
package conn

import (
	"net"
	"sync"
	"time"

	"github.com/AlanQuatermain/SimpleHTTPServer/internal/iochan"
	"github.com/AlanQuatermain/SimpleHTTPServer/internal/parser"
	"github.com/AlanQuatermain/SimpleHTTPServer/internal/reader"
	"github.com/AlanQuatermain/SimpleHTTPServer/mimetype"
	"github.com/AlanQuatermain/SimpleHTTPServer/request"
	"github.com/AlanQuatermain/SimpleHTTPServer/respop"
	"github.com/AlanQuatermain/SimpleHTTPServer/serverlog"
	"github.com/AlanQuatermain/SimpleHTTPServer/srverr"
)

// Option configures a Connection at construction.
type Option func(*Connection)

// WithLogger attaches a session logger; Connection derives a further
// Session per operation.
func WithLogger(l serverlog.Logger) Option {
	return func(c *Connection) { c.log = l }
}

// WithObserver attaches a completion observer shared by every Operation
// this connection runs.
func WithObserver(o respop.Observer) Option {
	return func(c *Connection) { c.obs = o }
}

// WithPipelining overrides supports_pipelining(); the default is true.
// Embedders whose connection subclass cannot honor out-of-order-safe
// pipelined writes (spec.md §4.2's "supports_pipelining") pass false,
// and the core closes the connection after one response.
func WithPipelining(supported bool) Option {
	return func(c *Connection) { c.pipelining = supported }
}

// WithLimits overrides the parser's request-line/header size bounds.
func WithLimits(l parser.Limits) Option {
	return func(c *Connection) { c.limits = l }
}

// WithMIMELookup overrides the default extension table used by every
// Operation this connection runs.
func WithMIMELookup(l mimetype.Lookup) Option {
	return func(c *Connection) { c.mime = l }
}

// Connection drives one TCP peer through zero or more request/response
// cycles, per spec.md §4.3.
type Connection struct {
	fp         respop.FileProvider
	log        serverlog.Logger
	obs        respop.Observer
	mime       mimetype.Lookup
	pipelining bool
	limits     parser.Limits
	onClosed   func(*Connection)

	ch     *iochan.Channel
	buf    *reader.Buffer
	parse  *parser.Parser
	wake   chan struct{}
	stop   chan struct{}
	closed sync.Once

	mu           sync.Mutex
	queue        []*request.Request
	eof          bool
	readErr      error
	parseErr     *srverr.Error
	current      *respop.Operation
	lastActivity time.Time
}

// New takes ownership of netConn and begins serving it immediately: it
// registers the channel's read handler and starts the connection's
// dispatch goroutine.
func New(netConn net.Conn, fp respop.FileProvider, onClosed func(*Connection), opts ...Option) *Connection {
	c := &Connection{
		fp:           fp,
		log:          serverlog.NewNop(),
		obs:          noopObserver{},
		pipelining:   true,
		limits:       parser.DefaultLimits(),
		onClosed:     onClosed,
		buf:          &reader.Buffer{},
		wake:         make(chan struct{}, 1),
		stop:         make(chan struct{}),
		lastActivity: time.Now(),
	}
	for _, o := range opts {
		o(c)
	}
	c.parse = parser.New(c.buf, c.limits)
	c.ch = iochan.New(netConn, func() {})
	c.ch.SetReadHandler(c.onRead)
	go c.run()
	return c
}

type noopObserver struct{}

func (noopObserver) Observe(string, string, int, int64) {}

// SupportsPipelining reports whether this connection honors HTTP
// pipelining; when false, the core closes the connection after a single
// response regardless of Connection: keep-alive.
func (c *Connection) SupportsPipelining() bool { return c.pipelining }

// CancelCurrent cancels whichever Operation is presently Running, if any.
// Used by the embedder-facing server to enforce an idle/activity timeout
// without reaching into iochan directly.
func (c *Connection) CancelCurrent() {
	c.mu.Lock()
	op := c.current
	c.mu.Unlock()
	if op != nil {
		op.Cancel()
	}
}

// LastActivity reports when this connection last received bytes from its
// peer, so an embedder's idle reaper can measure actual inactivity rather
// than time since the connection was accepted.
func (c *Connection) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// onRead is invoked serially by the channel. It must never block: it only
// appends bytes, advances the parser, and wakes the dispatch goroutine.
func (c *Connection) onRead(b []byte, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastActivity = time.Now()

	if err != nil {
		c.readErr = err
		c.signalLocked()
		return
	}
	if b == nil {
		c.eof = true
		c.signalLocked()
		return
	}

	c.buf.Append(b)
	for {
		req, perr := c.parse.Next()
		if perr != nil {
			if se, ok := perr.(*srverr.Error); ok {
				c.parseErr = se
			}
			break
		}
		if req == nil {
			break
		}
		c.queue = append(c.queue, req)
	}
	c.signalLocked()
}

// signalLocked wakes the dispatch goroutine; c.mu must be held.
func (c *Connection) signalLocked() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// run is the connection's single-threaded cooperative execution context:
// it owns the response-operation queue and is the only goroutine that
// calls Operation.Run, so a Running operation always finishes writing
// before the next one starts (spec.md §4.3's response queue).
func (c *Connection) run() {
	for {
		select {
		case <-c.wake:
		case <-c.stop:
			return
		}

		for {
			req, parseErr, shouldClose, shouldWait := c.nextRequest()
			if shouldWait {
				break
			}
			if parseErr != nil {
				_ = respop.WriteCannedError(c.ch, parseErr.Status)
				c.Close()
				return
			}
			if shouldClose {
				c.Close()
				return
			}

			opts := []respop.Option{
				respop.WithLogger(c.log),
				respop.WithObserver(c.obs),
			}
			if c.mime != nil {
				opts = append(opts, respop.WithMIMELookup(c.mime))
			}
			op := respop.New(req, c.ch, c.fp, opts...)
			c.mu.Lock()
			c.current = op
			c.mu.Unlock()

			op.Run()

			c.mu.Lock()
			c.current = nil
			c.mu.Unlock()

			if op.Failed() || !req.KeepAliveRequested() || !c.pipelining {
				c.Close()
				return
			}
		}
	}
}

// nextRequest pops the next queued request. If the queue is empty it
// reports why: a sticky parse error (the wire can no longer be trusted, so
// the caller writes a canned response and closes), a read error or EOF
// with nothing pending (close silently), or simply "wait for more bytes".
func (c *Connection) nextRequest() (req *request.Request, parseErr *srverr.Error, shouldClose, shouldWait bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.queue) > 0 {
		req = c.queue[0]
		c.queue = c.queue[1:]
		return req, nil, false, false
	}
	if c.parseErr != nil {
		return nil, c.parseErr, false, false
	}
	if c.readErr != nil || c.eof {
		return nil, nil, true, false
	}
	return nil, nil, false, true
}

// Close tears the connection down exactly once, per spec.md §4.3's
// connection delegate contract: on_connection_closed is called exactly
// once when the connection transitions to Closed.
func (c *Connection) Close() {
	c.closed.Do(func() {
		close(c.stop)
		c.ch.Close()
		if c.onClosed != nil {
			c.onClosed(c)
		}
		c.log.Debug("connection closed")
	})
}
