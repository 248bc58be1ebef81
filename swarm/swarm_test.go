package swarm

import (
	"context"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pp "github.com/anacrolix/swarmedge/peer_protocol"
	"github.com/anacrolix/swarmedge/types/infohash"
)

func testInfo() Info {
	return NewInfo("album", 16, []FileLength{
		{"a.txt", 10},
		{"sub/b.txt", 20},
		{"c.txt", 5},
	})
}

func TestNewInfoLayout(t *testing.T) {
	info := testInfo()
	require.NoError(t, info.Validate())
	assert.Equal(t, []File{
		{Name: "a.txt", Path: "album/a.txt", Length: 10, Offset: 0},
		{Name: "b.txt", Path: "album/sub/b.txt", Length: 20, Offset: 10},
		{Name: "c.txt", Path: "album/c.txt", Length: 5, Offset: 30},
	}, info.Files)
	assert.EqualValues(t, 35, info.TotalLength())
	assert.Equal(t, 3, info.NumPieces())
	assert.True(t, info.IsMultiFile())
}

func TestSingleFileInfo(t *testing.T) {
	info := NewInfo("movie.mkv", 1<<18, []FileLength{{"", 1000}})
	assert.Equal(t, "movie.mkv", info.Files[0].Path)
	assert.Equal(t, "movie.mkv", info.Files[0].Name)
	assert.False(t, info.IsMultiFile())
	assert.Equal(t, 1, info.NumPieces())
}

func TestValidateRejectsGaps(t *testing.T) {
	info := testInfo()
	info.Files[1].Offset++
	assert.Error(t, info.Validate())
	info = testInfo()
	info.PieceLength = 0
	assert.Error(t, info.Validate())
}

func TestReadinessAndFileReader(t *testing.T) {
	s := New(infohash.HashBytes([]byte("album")), MapStorage{
		"album/a.txt":     []byte("0123456789"),
		"album/sub/b.txt": []byte("abcdefghijklmnopqrst"),
		"album/c.txt":     []byte("vwxyz"),
	})
	select {
	case <-s.GotInfo():
		t.Fatal("ready before info")
	default:
	}
	assert.Nil(t, s.Info())
	assert.Equal(t, s.InfoHash().HexString(), s.Name())
	_, err := s.NewFileReader(context.Background(), 0, 0, 1)
	assert.ErrorIs(t, err, ErrNoInfo)

	require.NoError(t, s.SetInfo(testInfo()))
	<-s.GotInfo()
	assert.Equal(t, "album", s.Name())

	r, err := s.NewFileReader(context.Background(), 1, 5, 10)
	require.NoError(t, err)
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "fghijklmno", string(b))

	_, err = s.NewFileReader(context.Background(), 2, 3, 5)
	assert.Error(t, err)
	_, err = s.NewFileReader(context.Background(), 3, 0, 1)
	assert.Error(t, err)
}

func TestSetInfoOnce(t *testing.T) {
	s := New(infohash.T{}, MapStorage{})
	require.NoError(t, s.SetInfo(testInfo()))
	require.NoError(t, s.SetInfo(NewInfo("other", 1, nil)))
	assert.Equal(t, "album", s.Name())
}

func TestCloseDisconnectsPeers(t *testing.T) {
	s := New(infohash.T{}, MapStorage{})
	a, b := net.Pipe()
	defer b.Close()
	require.NoError(t, s.AddIncomingPeer(a, pp.HandshakeResult{}))
	assert.Equal(t, 1, s.NumPeers())
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 0, s.NumPeers())
	_, err := a.Write([]byte{0})
	assert.Error(t, err)
	c, d := net.Pipe()
	defer c.Close()
	defer d.Close()
	assert.ErrorIs(t, s.AddIncomingPeer(c, pp.HandshakeResult{}), ErrClosed)
}

func TestRegistry(t *testing.T) {
	var r Registry
	ih := infohash.HashBytes([]byte("x"))
	_, ok := r.Lookup(ih)
	assert.False(t, ok)
	s := New(ih, MapStorage{})
	require.NoError(t, r.Add(s))
	assert.Error(t, r.Add(s))
	got, ok := r.Lookup(ih)
	require.True(t, ok)
	assert.Same(t, s, got)
	assert.Len(t, r.List(), 1)
	_, ok = r.Remove(ih)
	assert.True(t, ok)
	_, ok = r.Lookup(ih)
	assert.False(t, ok)
	require.NoError(t, r.Add(s))
	require.NoError(t, r.Close())
	<-s.Closed()
}
