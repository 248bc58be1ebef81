package webseed

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/anacrolix/chansync"
	"github.com/anacrolix/log"
	"github.com/anacrolix/sync"

	pp "github.com/anacrolix/swarmedge/peer_protocol"
	"github.com/anacrolix/swarmedge/types/infohash"
)

// Requests larger than this are refused rather than fetched.
const MaxRequestLength = 1 << 17

type peerState int

const (
	awaitingHandshake peerState = iota
	active
	destroyed
)

func (s peerState) String() string {
	switch s {
	case awaitingHandshake:
		return "awaiting handshake"
	case active:
		return "active"
	case destroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("peerState(%d)", int(s))
	}
}

// Speaks the wire protocol on behalf of a webseed. It answers the swarm's handshake, advertises
// every piece the client can serve, and fulfils requests by fetching from the client.
type Peer struct {
	Logger     log.Logger
	Extensions pp.PeerExtensionBits

	peerID pp.PeerID

	mu       sync.Mutex
	client   *Client
	conn     net.Conn
	state    peerState
	fast     bool
	inFlight map[pp.RequestSpec]context.CancelFunc
	closed   chansync.SetOnce
	fetches  sync.WaitGroup

	writeMu sync.Mutex
}

// Stable for a given URL, so the swarm sees the same webseed as the same peer.
func PeerIDForURL(url string) pp.PeerID {
	return pp.PeerID(infohash.HashBytes([]byte(url)))
}

func NewPeer(client *Client) *Peer {
	return &Peer{
		Logger:     client.Logger.WithNames("peer"),
		Extensions: pp.NewPeerExtensionBytes(pp.ExtensionBitFast),
		peerID:     PeerIDForURL(client.Url),
		client:     client,
		inFlight:   make(map[pp.RequestSpec]context.CancelFunc),
	}
}

func (p *Peer) PeerID() pp.PeerID {
	return p.peerID
}

// Returns a connection that behaves like one to a remote peer serving the client's content, along
// with the Peer serving it. The Peer stops when either end is closed.
func Pipe(client *Client) (net.Conn, *Peer) {
	local, remote := net.Pipe()
	p := NewPeer(client)
	go func() {
		err := p.Serve(remote)
		if err != nil {
			p.Logger.Levelf(log.Debug, "webseed peer for %q ended: %v", client.Url, err)
		}
	}()
	return local, p
}

func (p *Peer) setConn(c net.Conn) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == destroyed {
		return ErrClosed
	}
	if p.conn != nil {
		return errors.New("peer already has a connection")
	}
	p.conn = c
	return nil
}

// Serves the wire protocol on c until it fails or the Peer is closed. The Peer is closed when
// Serve returns.
func (p *Peer) Serve(c net.Conn) error {
	if err := p.setConn(c); err != nil {
		c.Close()
		return err
	}
	defer p.Close()
	hs, err := pp.ReadHandshake(c)
	if err != nil {
		return fmt.Errorf("reading handshake: %w", err)
	}
	client, bitfield, err := p.activate(hs)
	if err != nil {
		return err
	}
	p.Logger.Levelf(log.Debug, "handshook %v for %v", hs.InfoHash, client.Url)
	if err := p.write(func(w io.Writer) error {
		return pp.WriteHandshake(w, hs.InfoHash, p.peerID, p.Extensions)
	}); err != nil {
		return err
	}
	if err := p.writeMessage(pp.Message{Type: pp.Bitfield, Bitfield: bitfield}); err != nil {
		return err
	}
	return p.readLoop(c)
}

func (p *Peer) activate(hs pp.HandshakeResult) (client *Client, bitfield []bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != awaitingHandshake {
		return nil, nil, fmt.Errorf("%w: peer %v", ErrClosed, p.state)
	}
	info := p.client.Info()
	if info == nil {
		return nil, nil, ErrNoInfo
	}
	bitfield = make([]bool, info.NumPieces())
	it := p.client.Pieces().Iterator()
	for it.HasNext() {
		i := int(it.Next())
		if i < len(bitfield) {
			bitfield[i] = true
		}
	}
	p.fast = hs.SupportsFast() && p.Extensions.SupportsFast()
	p.state = active
	return p.client, bitfield, nil
}

func (p *Peer) readLoop(c net.Conn) error {
	d := pp.Decoder{
		R:         bufio.NewReader(c),
		MaxLength: 256 * 1024,
	}
	for {
		var msg pp.Message
		err := d.Decode(&msg)
		var unknown pp.UnknownMessageTypeError
		if errors.As(err, &unknown) {
			// Suggest, AllowedFast, extended messages and the like mean nothing to a seed.
			p.Logger.Levelf(log.Debug, "skipping %v", err)
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) || p.closed.IsSet() {
				return nil
			}
			return fmt.Errorf("decoding message: %w", err)
		}
		if msg.Keepalive {
			continue
		}
		switch msg.Type {
		case pp.Interested:
			// We never choke.
			requestsUnchoked.Add(1)
			err = p.writeMessage(pp.Message{Type: pp.Unchoke})
		case pp.Request:
			p.onRequest(msg.RequestSpec())
		case pp.Cancel:
			err = p.onCancel(msg.RequestSpec())
		case pp.Piece:
			p.Logger.Levelf(log.Debug, "ignoring unrequested piece %v", msg.RequestSpec())
		default:
			// The remote's own state doesn't matter to a peer that has everything and wants
			// nothing.
		}
		if err != nil {
			return err
		}
	}
}

func (p *Peer) onRequest(r pp.RequestSpec) {
	p.mu.Lock()
	if p.state != active {
		p.mu.Unlock()
		return
	}
	if _, ok := p.inFlight[r]; ok {
		p.mu.Unlock()
		return
	}
	if r.Length > MaxRequestLength {
		fast := p.fast
		p.mu.Unlock()
		p.Logger.Levelf(log.Warning, "refusing oversized request %v", r)
		if fast {
			p.writeMessage(pp.MakeRejectMessage(r))
		}
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.inFlight[r] = cancel
	client := p.client
	p.fetches.Add(1)
	p.mu.Unlock()
	go func() {
		defer p.fetches.Done()
		defer cancel()
		b, err := client.Fetch(ctx, BlockRange{
			Index:  r.Index.Int64(),
			Begin:  r.Begin.Int64(),
			Length: r.Length.Int64(),
		})
		p.mu.Lock()
		_, wanted := p.inFlight[r]
		delete(p.inFlight, r)
		fast := p.fast
		p.mu.Unlock()
		if !wanted {
			return
		}
		if err != nil {
			p.Logger.Levelf(log.Warning, "fetching %v: %v", r, err)
			if fast {
				p.writeMessage(pp.MakeRejectMessage(r))
			}
			return
		}
		piecesServed.Add(1)
		p.writeMessage(pp.Message{
			Type:  pp.Piece,
			Index: r.Index,
			Begin: r.Begin,
			Piece: b,
		})
	}()
}

func (p *Peer) onCancel(r pp.RequestSpec) error {
	p.mu.Lock()
	cancel, ok := p.inFlight[r]
	delete(p.inFlight, r)
	fast := p.fast
	p.mu.Unlock()
	if !ok {
		return nil
	}
	requestsCancelled.Add(1)
	cancel()
	// With the fast extension every request gets exactly one response.
	if fast {
		return p.writeMessage(pp.MakeRejectMessage(r))
	}
	return nil
}

func (p *Peer) write(f func(io.Writer) error) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	p.mu.Lock()
	c := p.conn
	dead := p.state == destroyed
	p.mu.Unlock()
	if dead {
		return ErrClosed
	}
	return f(c)
}

func (p *Peer) writeMessage(msg pp.Message) error {
	return p.write(func(w io.Writer) error {
		_, err := msg.WriteTo(w)
		return err
	})
}

// Number of requests being fetched.
func (p *Peer) NumInFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inFlight)
}

// Abandons outstanding fetches, drops the client and destroys the connection. Calling Close again
// does nothing and returns nil.
func (p *Peer) Close() error {
	p.mu.Lock()
	if !p.closed.Set() {
		p.mu.Unlock()
		return nil
	}
	p.state = destroyed
	for _, cancel := range p.inFlight {
		cancel()
	}
	p.inFlight = nil
	p.client = nil
	c := p.conn
	p.mu.Unlock()
	var err error
	if c != nil {
		err = c.Close()
	}
	p.fetches.Wait()
	return err
}

func (p *Peer) Closed() <-chan struct{} {
	return p.closed.Done()
}
