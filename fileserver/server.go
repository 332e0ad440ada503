// Package fileserver is the embedder-facing Server object spec.md §1 names
// as an external collaborator: it owns the document root, the accept
// loop, and the connection-class factory, and turns every accepted
// net.Conn into a conn.Connection.
//
// Shutdown follows the errgroup.WithContext pattern docker-compose's
// compose.go uses for fan-out work: the group runs a goroutine that closes
// the listener when the context is cancelled, plus the optional idle
// reaper. Accepted connections run on goroutines that conn.New starts,
// outside the group.
package fileserver

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/AlanQuatermain/SimpleHTTPServer/conn"
	"github.com/AlanQuatermain/SimpleHTTPServer/fsroot"
	"github.com/AlanQuatermain/SimpleHTTPServer/mimetype"
	"github.com/AlanQuatermain/SimpleHTTPServer/respop"
	"github.com/AlanQuatermain/SimpleHTTPServer/serverlog"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// NewConnFunc is the injectable connection-class factory spec.md §6 calls
// out as an out-of-core collaborator: given an accepted socket, it
// constructs (and starts) whatever owns that socket's lifetime. The
// default, DefaultNewConn, builds a conn.Connection; embedders needing a
// connection subclass that can't honor pipelining supply their own and
// set WithPipelining(false) inside it.
type NewConnFunc func(netConn net.Conn, fp respop.FileProvider, onClosed func(*conn.Connection), opts ...conn.Option) *conn.Connection

// DefaultNewConn is the Server's default connection-class factory.
func DefaultNewConn(netConn net.Conn, fp respop.FileProvider, onClosed func(*conn.Connection), opts ...conn.Option) *conn.Connection {
	return conn.New(netConn, fp, onClosed, opts...)
}

// Option configures a Server at construction.
type Option func(*Server)

// WithLogger attaches a session logger; the Server derives a per-connection
// Session from it.
func WithLogger(l serverlog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithObserver attaches a completion observer shared by every connection.
func WithObserver(o respop.Observer) Option {
	return func(s *Server) { s.obs = o }
}

// WithMIMELookup overrides the default extension table.
func WithMIMELookup(l mimetype.Lookup) Option {
	return func(s *Server) { s.mime = l }
}

// WithNewConn overrides the connection-class factory.
func WithNewConn(f NewConnFunc) Option {
	return func(s *Server) { s.newConn = f }
}

// WithConnLifecycle registers callbacks invoked when a connection is
// accepted and when it closes, in addition to the Observer's per-response
// accounting. metrics.Metrics.ConnectionOpened/ConnectionClosed are the
// intended use.
func WithConnLifecycle(opened, closed func()) Option {
	return func(s *Server) {
		if opened != nil {
			s.onOpened = opened
		}
		if closed != nil {
			s.onClosedHook = closed
		}
	}
}

// WithIdleTimeout sets the duration of read inactivity after which a
// connection's Running Operation, if any, is cancelled. A connection with
// no Operation Running is left open. Zero (the
// default) disables the idle timeout, matching spec.md §5's silence on an
// idle-reaper — the original implementation exposes this as an optional
// embedder knob (see SPEC_FULL.md §5.6).
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Server) { s.idleTimeout = d }
}

// Server holds the document root and accept loop; it is the thing an
// embedder actually constructs and runs. It is not part of the
// spec-defined core (Reader, Channel, Connection, Response Operation) but
// the minimum glue needed to run that core over real sockets.
type Server struct {
	root *fsroot.Root

	log         serverlog.Logger
	obs         respop.Observer
	mime        mimetype.Lookup
	newConn      NewConnFunc
	idleTimeout  time.Duration
	onOpened     func()
	onClosedHook func()

	mu          sync.Mutex
	connections map[*conn.Connection]struct{}
}

// New constructs a Server rooted at dir.
func New(dir string, opts ...Option) (*Server, error) {
	root, err := fsroot.New(dir)
	if err != nil {
		return nil, err
	}
	s := &Server{
		root:        root,
		log:         serverlog.NewNop(),
		obs:         noopObserver{},
		newConn:     DefaultNewConn,
		connections: make(map[*conn.Connection]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

type noopObserver struct{}

func (noopObserver) Observe(string, string, int, int64) {}

// Root returns the server's document root.
func (s *Server) Root() *fsroot.Root { return s.root }

// Serve accepts connections from ln until ctx is cancelled or Accept
// returns a permanent error. Each accepted connection is handed to the
// connection-class factory and tracked until it reports itself closed.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		<-ctx.Done()
		return ln.Close()
	})

	if s.idleTimeout > 0 {
		group.Go(func() error {
			s.reapIdle(ctx)
			return nil
		})
	}

	for {
		netConn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.log.Error("accept failed", zap.Error(err))
				return err
			}
		}

		c := s.newConn(netConn, s.root, s.onConnectionClosed, s.connOptions()...)
		s.track(c)
		if s.onOpened != nil {
			s.onOpened()
		}
	}
}

func (s *Server) connOptions() []conn.Option {
	opts := []conn.Option{
		conn.WithLogger(s.log.Session("conn")),
		conn.WithObserver(s.obs),
	}
	if s.mime != nil {
		opts = append(opts, conn.WithMIMELookup(s.mime))
	}
	return opts
}

func (s *Server) track(c *conn.Connection) {
	s.mu.Lock()
	s.connections[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) onConnectionClosed(c *conn.Connection) {
	s.mu.Lock()
	delete(s.connections, c)
	s.mu.Unlock()
	if s.onClosedHook != nil {
		s.onClosedHook()
	}
}

// reapIdle periodically cancels the Running operation, if any, of every
// connection that has received no bytes from its peer for longer than
// idleTimeout. It is a coarse embedder convenience, not part of spec.md's
// core: the core's own notion of "suspension point" has no wall-clock
// component.
func (s *Server) reapIdle(ctx context.Context) {
	ticker := time.NewTicker(s.idleTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for c := range s.connections {
				if now.Sub(c.LastActivity()) > s.idleTimeout {
					c.CancelCurrent()
				}
			}
			s.mu.Unlock()
		}
	}
}
