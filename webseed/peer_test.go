package webseed

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-quicktest/qt"

	pp "github.com/anacrolix/swarmedge/peer_protocol"
	"github.com/anacrolix/swarmedge/swarm"
	"github.com/anacrolix/swarmedge/types/infohash"
)

type testEngine struct {
	t    *testing.T
	conn net.Conn
	d    pp.Decoder
}

func newTestEngine(t *testing.T, conn net.Conn) *testEngine {
	conn.SetDeadline(time.Now().Add(10 * time.Second))
	return &testEngine{
		t:    t,
		conn: conn,
		d: pp.Decoder{
			R:         bufio.NewReader(conn),
			MaxLength: 1 << 20,
		},
	}
}

func (me *testEngine) send(msg pp.Message) {
	_, err := msg.WriteTo(me.conn)
	qt.Assert(me.t, qt.IsNil(err))
}

func (me *testEngine) recv() (msg pp.Message) {
	qt.Assert(me.t, qt.IsNil(me.d.Decode(&msg)))
	return
}

func (me *testEngine) handshake(ih infohash.T, ext pp.PeerExtensionBits) pp.HandshakeResult {
	res, err := pp.Handshake(context.Background(), me.conn, ih, pp.PeerID{'e'}, ext)
	qt.Assert(me.t, qt.IsNil(err))
	// The handshake reader doesn't buffer, so the decoder picks up right after it.
	return res
}

func newPeerTestClient(t *testing.T, files map[string][]byte, fail map[string]int) *Client {
	fs, s := newFileServer(t, files)
	for k, v := range fail {
		fs.fail[k] = v
	}
	c := NewClient(s.URL + "/f")
	// Three pieces, the last one short.
	c.SetInfo(swarm.NewInfo("f", 16, []swarm.FileLength{{Length: 40}}))
	return c
}

func TestPeerServesBlocks(t *testing.T) {
	content := testContent(40)
	c := newPeerTestClient(t, map[string][]byte{"/f": content}, nil)
	conn, p := Pipe(c)
	defer p.Close()
	e := newTestEngine(t, conn)
	ih := infohash.HashBytes([]byte("swarm"))
	res := e.handshake(ih, pp.NewPeerExtensionBytes(pp.ExtensionBitFast))
	qt.Check(t, qt.Equals(res.PeerID, PeerIDForURL(c.Url)))
	qt.Check(t, qt.Equals(res.InfoHash, ih))
	qt.Check(t, qt.IsTrue(res.SupportsFast()))

	bf := e.recv()
	qt.Assert(t, qt.Equals(bf.Type, pp.Bitfield))
	// Padded to a whole byte, with exactly the three pieces set.
	qt.Check(t, qt.DeepEquals(bf.Bitfield, []bool{true, true, true, false, false, false, false, false}))

	e.send(pp.Message{Type: pp.Interested})
	qt.Check(t, qt.Equals(e.recv().Type, pp.Unchoke))

	e.send(pp.MakeRequestMessage(pp.RequestSpec{Index: 2, Begin: 2, Length: 6}))
	piece := e.recv()
	qt.Assert(t, qt.Equals(piece.Type, pp.Piece))
	qt.Check(t, qt.Equals(piece.Index, pp.Integer(2)))
	qt.Check(t, qt.Equals(piece.Begin, pp.Integer(2)))
	qt.Check(t, qt.DeepEquals(piece.Piece, content[34:40]))
}

func TestPeerSkipsUnknownMessages(t *testing.T) {
	c := newPeerTestClient(t, map[string][]byte{"/f": testContent(40)}, nil)
	conn, p := Pipe(c)
	defer p.Close()
	e := newTestEngine(t, conn)
	e.handshake(infohash.T{1}, pp.NewPeerExtensionBytes(pp.ExtensionBitFast))
	e.recv()
	for _, raw := range [][]byte{
		// AllowedFast and Suggest for piece 0.
		{0, 0, 0, 5, 0x11, 0, 0, 0, 0},
		{0, 0, 0, 5, 0x0d, 0, 0, 0, 0},
		// Port.
		{0, 0, 0, 3, 9, 0x1a, 0xe1},
		// An extended handshake with an empty payload.
		{0, 0, 0, 2, 20, 0},
	} {
		_, err := conn.Write(raw)
		qt.Assert(t, qt.IsNil(err))
	}
	e.send(pp.Message{Type: pp.Interested})
	qt.Check(t, qt.Equals(e.recv().Type, pp.Unchoke))
	qt.Check(t, qt.IsFalse(p.closed.IsSet()))
}

func TestPeerRejectsFailedFetch(t *testing.T) {
	c := newPeerTestClient(t, map[string][]byte{"/f": testContent(40)}, map[string]int{"/f": http.StatusNotFound})
	conn, p := Pipe(c)
	defer p.Close()
	e := newTestEngine(t, conn)
	e.handshake(infohash.T{1}, pp.NewPeerExtensionBytes(pp.ExtensionBitFast))
	e.recv()
	r := pp.RequestSpec{Index: 0, Begin: 0, Length: 16}
	e.send(pp.MakeRequestMessage(r))
	msg := e.recv()
	qt.Check(t, qt.Equals(msg.Type, pp.Reject))
	qt.Check(t, qt.Equals(msg.RequestSpec(), r))
}

func TestPeerCancel(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer s.Close()
	c := NewClient(s.URL + "/f")
	c.SetInfo(swarm.NewInfo("f", 16, []swarm.FileLength{{Length: 40}}))
	conn, p := Pipe(c)
	defer p.Close()
	e := newTestEngine(t, conn)
	e.handshake(infohash.T{1}, pp.NewPeerExtensionBytes(pp.ExtensionBitFast))
	e.recv()
	r := pp.RequestSpec{Index: 1, Begin: 0, Length: 16}
	e.send(pp.MakeRequestMessage(r))
	for p.NumInFlight() == 0 {
		time.Sleep(time.Millisecond)
	}
	e.send(pp.Message{Type: pp.Cancel, Index: r.Index, Begin: r.Begin, Length: r.Length})
	msg := e.recv()
	qt.Check(t, qt.Equals(msg.Type, pp.Reject))
	qt.Check(t, qt.Equals(msg.RequestSpec(), r))
	qt.Check(t, qt.Equals(p.NumInFlight(), 0))
}

func TestPeerCloseIdempotent(t *testing.T) {
	c := newPeerTestClient(t, nil, nil)
	conn, p := Pipe(c)
	e := newTestEngine(t, conn)
	e.handshake(infohash.T{1}, pp.PeerExtensionBits{})
	e.recv()
	qt.Assert(t, qt.IsNil(p.Close()))
	<-p.Closed()
	_, err := conn.Read(make([]byte, 1))
	qt.Check(t, qt.IsNotNil(err))
	qt.Check(t, qt.IsNil(p.Close()))
}

func TestPeerWithoutInfo(t *testing.T) {
	local, remote := net.Pipe()
	defer local.Close()
	p := NewPeer(NewClient("http://localhost/"))
	served := make(chan error, 1)
	go func() {
		served <- p.Serve(remote)
	}()
	go pp.WriteHandshake(local, infohash.T{}, pp.PeerID{}, pp.PeerExtensionBits{})
	qt.Check(t, qt.ErrorIs(<-served, ErrNoInfo))
}

func TestPeerIDForURLStable(t *testing.T) {
	qt.Check(t, qt.Equals(PeerIDForURL("http://a/"), PeerIDForURL("http://a/")))
	qt.Check(t, qt.Not(qt.Equals(PeerIDForURL("http://a/"), PeerIDForURL("http://b/"))))
}
