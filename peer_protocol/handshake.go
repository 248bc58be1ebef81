package peer_protocol

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/anacrolix/missinggo/v2/panicif"

	"github.com/anacrolix/swarmedge/types/infohash"
)

type ExtensionBit uint

// https://www.bittorrent.org/beps/bep_0004.html
const (
	ExtensionBitDht  = 0 // http://www.bittorrent.org/beps/bep_0005.html
	ExtensionBitFast = 2 // http://www.bittorrent.org/beps/bep_0006.html
	// LibTorrent Extension Protocol, http://www.bittorrent.org/beps/bep_0010.html
	ExtensionBitLtep = 20
)

const HandshakeLen = len(Protocol) + 8 + infohash.Size + 20

type (
	PeerExtensionBits [8]byte
	PeerID            [20]byte
)

func (me PeerID) String() string {
	return fmt.Sprintf("%q", me[:])
}

var bitTags = []struct {
	bit ExtensionBit
	tag string
}{
	// Ordered by their bit position left to right.
	{ExtensionBitLtep, "ltep"},
	{ExtensionBitFast, "fast"},
	{ExtensionBitDht, "dht"},
}

func (pex PeerExtensionBits) String() string {
	var tags []string
	for _, bt := range bitTags {
		if pex.GetBit(bt.bit) {
			tags = append(tags, bt.tag)
		}
	}
	return fmt.Sprintf("%v (%s)", hex.EncodeToString(pex[:]), strings.Join(tags, ", "))
}

func NewPeerExtensionBytes(bits ...ExtensionBit) (ret PeerExtensionBits) {
	for _, b := range bits {
		ret.SetBit(b, true)
	}
	return
}

func (pex PeerExtensionBits) SupportsFast() bool {
	return pex.GetBit(ExtensionBitFast)
}

func (pex *PeerExtensionBits) SetBit(bit ExtensionBit, on bool) {
	if on {
		pex[7-bit/8] |= 1 << (bit % 8)
	} else {
		pex[7-bit/8] &^= 1 << (bit % 8)
	}
}

func (pex PeerExtensionBits) GetBit(bit ExtensionBit) bool {
	return pex[7-bit/8]&(1<<(bit%8)) != 0
}

type HandshakeResult struct {
	PeerExtensionBits
	PeerID
	InfoHash infohash.T
}

// Reads a complete handshake from the remote end. Nothing is written, so the caller can decide
// what to do with the connection based on the info hash before revealing anything about itself.
func ReadHandshake(r io.Reader) (res HandshakeResult, err error) {
	// Read in one hit to avoid potential overhead in underlying reader.
	b := make([]byte, HandshakeLen)
	_, err = io.ReadFull(r, b)
	if err != nil {
		return res, fmt.Errorf("while reading: %w", err)
	}
	p := b[:len(Protocol)]
	if string(p) != Protocol {
		return res, fmt.Errorf("unexpected protocol string %q", string(p))
	}
	b = b[len(p):]
	read := func(dst []byte) {
		n := copy(dst, b)
		panicif.NotEq(n, len(dst))
		b = b[n:]
	}
	read(res.PeerExtensionBits[:])
	read(res.InfoHash[:])
	read(res.PeerID[:])
	panicif.NotEq(len(b), 0)
	return
}

func AppendHandshake(b []byte, ih infohash.T, peerID PeerID, extensions PeerExtensionBits) []byte {
	b = append(b, protocolBytes()...)
	b = append(b, extensions[:]...)
	b = append(b, ih[:]...)
	return append(b, peerID[:]...)
}

// Writes our side of the handshake as a single frame.
func WriteHandshake(w io.Writer, ih infohash.T, peerID PeerID, extensions PeerExtensionBits) error {
	_, err := w.Write(AppendHandshake(make([]byte, 0, HandshakeLen), ih, peerID, extensions))
	if err != nil {
		return fmt.Errorf("error writing: %w", err)
	}
	return nil
}

type deadliner interface {
	SetDeadline(time.Time) error
}

// The initiating side of a handshake: we know the info hash we want, so we send first and then
// wait for the reply. If sock supports deadlines, cancelling ctx unblocks the exchange.
func Handshake(
	ctx context.Context,
	sock io.ReadWriter,
	ih infohash.T,
	peerID PeerID,
	extensions PeerExtensionBits,
) (
	res HandshakeResult, err error,
) {
	if d, ok := sock.(deadliner); ok {
		stop := context.AfterFunc(ctx, func() {
			d.SetDeadline(time.Unix(1, 0))
		})
		defer func() {
			if stop() {
				d.SetDeadline(time.Time{})
			}
		}()
	}
	// Writing and reading concurrently stops synchronous transports like net.Pipe deadlocking
	// when both ends write first.
	writeErr := make(chan error, 1)
	go func() {
		writeErr <- WriteHandshake(sock, ih, peerID, extensions)
	}()
	res, err = ReadHandshake(sock)
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", context.Cause(ctx), err)
		}
		return
	}
	err = <-writeErr
	if err != nil {
		return
	}
	if res.InfoHash != ih {
		err = fmt.Errorf("peer replied with info hash %v, wanted %v", res.InfoHash, ih)
	}
	return
}
