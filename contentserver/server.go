// Package contentserver serves one swarm's files over HTTP: a listing page at the root, and each
// file by index with range support, CORS and DLNA streaming headers.
package contentserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/anacrolix/chansync"
	"github.com/anacrolix/log"
	"github.com/anacrolix/sync"

	"github.com/anacrolix/swarmedge/swarm"
)

// Long enough that slow media players pausing a stream don't lose their connection.
const DefaultIdleTimeout = 10 * time.Hour

var ErrClosed = errors.New("content server closed")

// The swarm operations the server needs. *swarm.Swarm implements it.
type Content interface {
	Name() string
	// Closed when Info becomes non-nil.
	GotInfo() <-chan struct{}
	Info() *swarm.Info
	NewFileReader(ctx context.Context, fileIndex int, off, n int64) (io.ReadCloser, error)
}

var _ Content = (*swarm.Swarm)(nil)

type pendingReady struct {
	cancelled chansync.SetOnce
}

type Server struct {
	Logger      log.Logger
	IdleTimeout time.Duration

	mu           sync.Mutex
	content      Content
	pendingReady map[*pendingReady]struct{}
	conns        map[net.Conn]struct{}
	httpServer   *http.Server
	listener     net.Listener
	closed       chansync.SetOnce
}

func New(content Content) *Server {
	return &Server{
		Logger:       log.Default.WithNames("contentserver"),
		IdleTimeout:  DefaultIdleTimeout,
		content:      content,
		pendingReady: make(map[*pendingReady]struct{}),
		conns:        make(map[net.Conn]struct{}),
	}
}

func (s *Server) ListenAndServe(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %q: %w", addr, err)
	}
	return s.Serve(l)
}

// Serves HTTP on l until Close, after which ErrClosed is returned.
func (s *Server) Serve(l net.Listener) error {
	hs := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: s.IdleTimeout,
		IdleTimeout:       s.IdleTimeout,
		ConnState:         s.connState,
	}
	s.mu.Lock()
	if s.closed.IsSet() {
		s.mu.Unlock()
		l.Close()
		return ErrClosed
	}
	if s.httpServer != nil {
		s.mu.Unlock()
		l.Close()
		return errors.New("content server already serving")
	}
	s.httpServer = hs
	s.listener = l
	s.mu.Unlock()
	s.Logger.Levelf(log.Debug, "serving http on %v", l.Addr())
	err := hs.Serve(l)
	if s.closed.IsSet() {
		return ErrClosed
	}
	s.Logger.Levelf(log.Error, "serving http on %v: %v", l.Addr(), err)
	return err
}

// Returns nil if the server isn't serving.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) connState(c net.Conn, state http.ConnState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch state {
	case http.StateNew:
		acceptedConns.Add(1)
		if s.conns == nil {
			c.Close()
			return
		}
		s.conns[c] = struct{}{}
	case http.StateClosed, http.StateHijacked:
		if s.conns != nil {
			delete(s.conns, c)
		}
	}
}

func (s *Server) NumConns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Requests waiting on the swarm's metadata.
func (s *Server) NumPendingReady() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pendingReady)
}

// Returns the content once it has metadata. False means the server was closed, or the request
// was abandoned, while waiting.
func (s *Server) awaitReady(ctx context.Context) (Content, bool) {
	s.mu.Lock()
	c := s.content
	if c == nil {
		s.mu.Unlock()
		return nil, false
	}
	select {
	case <-c.GotInfo():
		s.mu.Unlock()
		return c, true
	default:
	}
	pr := &pendingReady{}
	s.pendingReady[pr] = struct{}{}
	s.mu.Unlock()
	requestsAwaitingReady.Add(1)
	select {
	case <-c.GotInfo():
	case <-pr.cancelled.Done():
	case <-ctx.Done():
	}
	// Whoever removes the entry decides its fate. Close removes entries it cancels.
	return c, s.removePendingReady(pr) && c.Info() != nil
}

func (s *Server) removePendingReady(pr *pendingReady) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingReady == nil {
		return false
	}
	if _, ok := s.pendingReady[pr]; !ok {
		return false
	}
	delete(s.pendingReady, pr)
	return true
}

func (s *Server) Closed() <-chan struct{} {
	return s.closed.Done()
}

// Destroys every connection, abandons requests waiting on metadata and stops listening. Calling
// Close again does nothing and returns nil.
func (s *Server) Close() error {
	s.mu.Lock()
	if !s.closed.Set() {
		s.mu.Unlock()
		return nil
	}
	conns := s.conns
	s.conns = nil
	pending := s.pendingReady
	s.pendingReady = nil
	s.content = nil
	hs := s.httpServer
	s.mu.Unlock()
	for c := range conns {
		c.Close()
	}
	for pr := range pending {
		pr.cancelled.Set()
	}
	if hs == nil {
		return nil
	}
	// Closes the listener and anything that slipped past the set above.
	return hs.Close()
}
