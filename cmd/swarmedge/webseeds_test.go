package main

import (
	"bufio"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pp "github.com/anacrolix/swarmedge/peer_protocol"
	"github.com/anacrolix/swarmedge/swarm"
	"github.com/anacrolix/swarmedge/types/infohash"
	"github.com/anacrolix/swarmedge/webseed"
)

func TestAddWebseedPeers(t *testing.T) {
	content := []byte("0123456789abcdefghijklmnopqrstuvwxyz!?")
	hs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "f", time.Time{}, bytes.NewReader(content))
	}))
	defer hs.Close()
	s := swarm.New(infohash.HashBytes([]byte("seeded")), swarm.MapStorage{})
	defer s.Close()
	require.NoError(t, s.SetInfo(swarm.NewInfo("f", 16, []swarm.FileLength{{Length: int64(len(content))}})))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, addWebseedPeers(ctx, s, []string{hs.URL}, newPeerID()))

	peers := s.Peers()
	require.Len(t, peers, 1)
	assert.Equal(t, webseed.PeerIDForURL(hs.URL), peers[0].Handshake.PeerID)
	assert.True(t, peers[0].Handshake.SupportsFast())

	conn := peers[0].Conn
	conn.SetDeadline(time.Now().Add(10 * time.Second))
	d := pp.Decoder{R: bufio.NewReader(conn), MaxLength: 1 << 20}
	var msg pp.Message
	require.NoError(t, d.Decode(&msg))
	assert.Equal(t, pp.Bitfield, msg.Type)
	_, err := pp.MakeRequestMessage(pp.RequestSpec{Index: 1, Begin: 4, Length: 8}).WriteTo(conn)
	require.NoError(t, err)
	require.NoError(t, d.Decode(&msg))
	require.Equal(t, pp.Piece, msg.Type)
	assert.Equal(t, content[20:28], msg.Piece)
}

func TestAddWebseedPeersNeedsInfo(t *testing.T) {
	s := swarm.New(infohash.T{3}, swarm.MapStorage{})
	assert.Error(t, addWebseedPeers(context.Background(), s, []string{"http://localhost/"}, newPeerID()))
	assert.Zero(t, s.NumPeers())
}
