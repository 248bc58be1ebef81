// Package router lets many swarms share one listening socket. Each inbound connection is held
// until its handshake names an info hash, and is then handed to the swarm registered for it.
package router

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/anacrolix/chansync"
	g "github.com/anacrolix/generics"
	"github.com/anacrolix/log"
	"github.com/anacrolix/sync"

	pp "github.com/anacrolix/swarmedge/peer_protocol"
)

const DefaultHandshakeTimeout = 20 * time.Second

type Router struct {
	// Sent to peers when we complete their handshake.
	PeerID     pp.PeerID
	Extensions pp.PeerExtensionBits
	// Bounds how long a connection may stay pending. Zero means only the transport's own timeouts
	// apply.
	HandshakeTimeout time.Duration
	Logger           log.Logger

	registry Registry

	mu       sync.Mutex
	listener net.Listener
	pending  map[net.Conn]struct{}
	closed   chansync.SetOnce
	// Tracks connection goroutines so Close returns after they're done with the registry.
	conns sync.WaitGroup
}

func New(registry Registry, peerID pp.PeerID) *Router {
	return &Router{
		PeerID:           peerID,
		HandshakeTimeout: DefaultHandshakeTimeout,
		Logger:           log.Default.WithNames("router"),
		registry:         registry,
		pending:          make(map[net.Conn]struct{}),
	}
}

// Binds addr and serves on it until Close. A failure to bind is returned immediately.
func (r *Router) ListenAndServe(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %q: %w", addr, err)
	}
	return r.Serve(l)
}

// Accepts connections from l until Close, which makes Serve return ErrClosed. Any other accept
// error is fatal to the router and is returned after tearing it down.
func (r *Router) Serve(l net.Listener) error {
	if err := r.setListener(l); err != nil {
		l.Close()
		return err
	}
	r.Logger.Levelf(log.Debug, "accepting connections on %v", l.Addr())
	for {
		c, err := l.Accept()
		if err != nil {
			if r.closed.IsSet() {
				return ErrClosed
			}
			r.Logger.Levelf(log.Error, "error accepting on %v: %v", l.Addr(), err)
			r.Close()
			return fmt.Errorf("accepting: %w", err)
		}
		r.handleConn(c)
	}
}

func (r *Router) setListener(l net.Listener) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed.IsSet() {
		return ErrClosed
	}
	if r.listener != nil {
		return errors.New("router already has a listener")
	}
	r.listener = l
	return nil
}

// Returns nil if the router isn't serving.
func (r *Router) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

func (r *Router) NumPending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// A connection accepted just as the remote closed can come out of the transport without an
// address. It's a known race, not something to report.
func remoteAddrResolvable(c net.Conn) bool {
	switch a := c.RemoteAddr().(type) {
	case nil:
		return false
	case *net.TCPAddr:
		return a != nil && a.IP != nil
	case *net.UDPAddr:
		return a != nil && a.IP != nil
	default:
		return a.String() != ""
	}
}

func (r *Router) handleConn(c net.Conn) {
	acceptedConns.Add(1)
	if !remoteAddrResolvable(c) {
		unresolvableConns.Add(1)
		r.Logger.Levelf(log.Debug, "discarding accepted connection without remote address")
		c.Close()
		return
	}
	if !r.addPending(c) {
		c.Close()
		return
	}
	go func() {
		defer r.conns.Done()
		r.runConn(c)
	}()
}

// Also accounts for the connection's goroutine, so that Close can't miss it.
func (r *Router) addPending(c net.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending == nil {
		return false
	}
	r.pending[c] = struct{}{}
	r.conns.Add(1)
	return true
}

// Reports whether c was still pending. If it wasn't, Close has already destroyed it.
func (r *Router) removePending(c net.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending == nil {
		return false
	}
	if _, ok := r.pending[c]; !ok {
		return false
	}
	delete(r.pending, c)
	return true
}

// Exactly one of these describes what happened to a pending connection: it either sent a
// handshake, or it ended first.
type handshakeOutcome struct {
	handshake g.Option[pp.HandshakeResult]
	closedErr error
}

func (r *Router) awaitHandshake(c net.Conn) (ret handshakeOutcome) {
	if r.HandshakeTimeout != 0 {
		c.SetDeadline(time.Now().Add(r.HandshakeTimeout))
	}
	hs, err := pp.ReadHandshake(c)
	if err != nil {
		ret.closedErr = err
		return
	}
	ret.handshake = g.Some(hs)
	return
}

func (r *Router) runConn(c net.Conn) {
	outcome := r.awaitHandshake(c)
	if !outcome.handshake.Ok {
		if r.removePending(c) {
			preHandshakeDrops.Add(1)
			r.Logger.Levelf(log.Debug, "%v closed before handshake: %v", c.RemoteAddr(), outcome.closedErr)
			c.Close()
		}
		return
	}
	hs := outcome.handshake.Value
	err := r.route(c, hs)
	if err != nil {
		level := log.Debug
		if errors.Is(err, ErrUnexpectedInfoHash) {
			level = log.Warning
		}
		r.Logger.Levelf(level, "dropping %v: %v", c.RemoteAddr(), err)
		// Close the connection if teardown hasn't already.
		if r.removePending(c) {
			c.Close()
		}
	}
}

func (r *Router) route(c net.Conn, hs pp.HandshakeResult) error {
	s, ok := r.registry.Lookup(hs.InfoHash)
	if !ok {
		unexpectedInfoHashes.Add(1)
		return UnexpectedInfoHashError{hs.InfoHash}
	}
	if !r.removePending(c) {
		return ErrClosed
	}
	// The remote only sees a completed handshake once the swarm has taken the connection.
	err := s.AddIncomingPeer(c, hs)
	if err != nil {
		c.Close()
		return fmt.Errorf("adding peer to swarm %v: %w", hs.InfoHash, err)
	}
	// The handshake deadline still bounds the reply.
	err = pp.WriteHandshake(c, hs.InfoHash, r.PeerID, r.Extensions)
	if err != nil {
		c.Close()
		return fmt.Errorf("completing handshake: %w", err)
	}
	c.SetDeadline(time.Time{})
	routedConns.Add(1)
	r.Logger.Levelf(log.Debug, "routed %v to swarm %v", c.RemoteAddr(), hs.InfoHash)
	return nil
}

// Destroys all pending connections without waiting for them, then closes the listener. Calling
// Close again does nothing and returns nil.
func (r *Router) Close() error {
	r.mu.Lock()
	if !r.closed.Set() {
		r.mu.Unlock()
		return nil
	}
	pending := r.pending
	r.pending = nil
	l := r.listener
	r.mu.Unlock()
	for c := range pending {
		c.Close()
	}
	var err error
	if l != nil {
		err = l.Close()
	}
	r.conns.Wait()
	return err
}

func (r *Router) Closed() <-chan struct{} {
	return r.closed.Done()
}
