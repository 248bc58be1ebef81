package main

import (
	"expvar"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anacrolix/swarmedge/version"
)

func TestPrometheusName(t *testing.T) {
	assert.Equal(t, "swarmedge_router_routed_conns", prometheusName("routerRoutedConns"))
	assert.Equal(t, "swarmedge_webseed_http_sub_requests", prometheusName("webseedHttpSubRequests"))
}

var testCounter = expvar.NewInt("cmdTestCounter")

func TestMetricsHandlerExportsExpvars(t *testing.T) {
	testCounter.Set(3)
	rec := httptest.NewRecorder()
	newMetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "swarmedge_cmd_test_counter 3")
}

func TestNthHttpAddr(t *testing.T) {
	addr, err := nthHttpAddr("localhost:8080", 2)
	require.NoError(t, err)
	assert.Equal(t, "localhost:8082", addr)
	addr, err = nthHttpAddr("127.0.0.1:0", 5)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:0", addr)
	_, err = nthHttpAddr("nope", 0)
	assert.Error(t, err)
}

func TestNewPeerID(t *testing.T) {
	a, b := newPeerID(), newPeerID()
	assert.True(t, strings.HasPrefix(string(a[:]), version.DefaultBep20Prefix))
	assert.NotEqual(t, a, b)
}

func writeTestTorrent(t *testing.T) (path string, mi metainfo.MetaInfo) {
	dir := t.TempDir()
	info := metainfo.Info{
		Name:        "album",
		PieceLength: 16,
		Files: []metainfo.FileInfo{
			{Path: []string{"a"}, Length: 20},
			{Path: []string{"b", "c"}, Length: 5},
		},
		Pieces: make([]byte, 20*2),
	}
	mi = metainfo.MetaInfo{
		InfoBytes: bencode.MustMarshal(info),
		UrlList:   []string{"http://example.com/"},
	}
	path = filepath.Join(dir, "album.torrent")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, mi.Write(f))
	require.NoError(t, f.Close())
	return
}

func TestLoadTorrent(t *testing.T) {
	path, mi := writeTestTorrent(t)
	lt, err := loadTorrent(path)
	require.NoError(t, err)
	assert.Equal(t, mi.HashInfoBytes().Bytes(), lt.InfoHash.Bytes())
	assert.Equal(t, []string{"http://example.com/"}, lt.UrlList)
	require.Len(t, lt.Info.Files, 2)
	assert.Equal(t, "album/b/c", lt.Info.Files[1].Path)
	assert.EqualValues(t, 20, lt.Info.Files[1].Offset)
	assert.Equal(t, 2, lt.Info.NumPieces())
}

func TestListFiles(t *testing.T) {
	path, _ := writeTestTorrent(t)
	var buf strings.Builder
	require.NoError(t, listFiles(&buf, &ListFilesCmd{TorrentPath: path}))
	assert.Equal(t, "0\t20 B\talbum/a\n1\t5 B\talbum/b/c\n", buf.String())

	buf.Reset()
	require.NoError(t, listFiles(&buf, &ListFilesCmd{TorrentPath: path, Dump: true}))
	assert.Contains(t, buf.String(), `"album/b/c"`)
	assert.Contains(t, buf.String(), "PieceLength: (int64) 16")
}
