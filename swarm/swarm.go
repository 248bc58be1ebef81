package swarm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/anacrolix/chansync"
	"github.com/anacrolix/log"
	"github.com/anacrolix/sync"
	"go.uber.org/multierr"

	pp "github.com/anacrolix/swarmedge/peer_protocol"
	"github.com/anacrolix/swarmedge/types/infohash"
)

var (
	ErrClosed = errors.New("swarm closed")
	ErrNoInfo = errors.New("swarm info not available")
)

// A peer connection handed to the swarm after a completed handshake.
type IncomingPeer struct {
	Conn      net.Conn
	Handshake pp.HandshakeResult
}

// The swarm state shared by the edge components: identity, metadata readiness, peers that were
// routed to it, and read access to its files.
type Swarm struct {
	infoHash infohash.T
	storage  Storage
	logger   log.Logger

	mu      sync.Mutex
	info    *Info
	gotInfo chansync.SetOnce
	closed  chansync.SetOnce
	peers   []IncomingPeer
}

func New(ih infohash.T, storage Storage) *Swarm {
	return &Swarm{
		infoHash: ih,
		storage:  storage,
		logger:   log.Default.WithNames("swarm", ih.HexString()[:8]),
	}
}

func (s *Swarm) InfoHash() infohash.T {
	return s.infoHash
}

// Makes the metadata available. Only the first call has any effect.
func (s *Swarm) SetInfo(info Info) error {
	if err := info.Validate(); err != nil {
		return fmt.Errorf("validating info: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.info != nil {
		return nil
	}
	s.info = &info
	s.gotInfo.Set()
	s.logger.Levelf(log.Debug, "got info: %d files, %d pieces", len(info.Files), info.NumPieces())
	return nil
}

// Closed when metadata becomes available.
func (s *Swarm) GotInfo() <-chan struct{} {
	return s.gotInfo.Done()
}

func (s *Swarm) HaveInfo() bool {
	return s.gotInfo.IsSet()
}

// Returns nil until SetInfo.
func (s *Swarm) Info() *Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// The display name, which is the info hash until metadata arrives.
func (s *Swarm) Name() string {
	if info := s.Info(); info != nil && info.Name != "" {
		return info.Name
	}
	return s.infoHash.HexString()
}

func (s *Swarm) AddIncomingPeer(conn net.Conn, hs pp.HandshakeResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.IsSet() {
		return ErrClosed
	}
	s.peers = append(s.peers, IncomingPeer{conn, hs})
	s.logger.Levelf(log.Debug, "added incoming peer %v from %v", hs.PeerID, conn.RemoteAddr())
	return nil
}

func (s *Swarm) Peers() []IncomingPeer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]IncomingPeer(nil), s.peers...)
}

func (s *Swarm) NumPeers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

type sectionReadCloser struct {
	*io.SectionReader
	io.Closer
}

// Returns a reader over n bytes of the file starting at off.
func (s *Swarm) NewFileReader(ctx context.Context, fileIndex int, off, n int64) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info := s.Info()
	if info == nil {
		return nil, ErrNoInfo
	}
	if s.closed.IsSet() {
		return nil, ErrClosed
	}
	if fileIndex < 0 || fileIndex >= len(info.Files) {
		return nil, fmt.Errorf("file index %v out of range", fileIndex)
	}
	f := info.Files[fileIndex]
	if off < 0 || n < 0 || off+n > f.Length {
		return nil, fmt.Errorf("range [%v, %v) outside file of length %v", off, off+n, f.Length)
	}
	fh, err := s.storage.OpenFile(f)
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", f.Path, err)
	}
	return sectionReadCloser{io.NewSectionReader(fh, off, n), fh}, nil
}

func (s *Swarm) Closed() <-chan struct{} {
	return s.closed.Done()
}

// Disconnects all peers. Safe to call more than once.
func (s *Swarm) Close() (err error) {
	s.mu.Lock()
	if !s.closed.Set() {
		s.mu.Unlock()
		return nil
	}
	peers := s.peers
	s.peers = nil
	s.mu.Unlock()
	for _, p := range peers {
		err = multierr.Append(err, p.Conn.Close())
	}
	return
}
