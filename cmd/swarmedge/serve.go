package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/anacrolix/log"
	"go.uber.org/multierr"
	"golang.org/x/net/netutil"

	"github.com/anacrolix/swarmedge/contentserver"
	pp "github.com/anacrolix/swarmedge/peer_protocol"
	"github.com/anacrolix/swarmedge/router"
	"github.com/anacrolix/swarmedge/swarm"
	"github.com/anacrolix/swarmedge/version"
)

type ServeCmd struct {
	ListenAddr   string   `default:":42069" help:"peer protocol listen addr shared by all swarms"`
	HttpAddr     string   `default:"localhost:8080" help:"content server addr for the first torrent, later torrents take the following ports"`
	DataDir      string   `default:"." help:"directory containing the torrents' data"`
	MetricsAddr  string   `help:"serve prometheus metrics on this addr"`
	Mmap         bool     `help:"memory-map torrent data"`
	MaxHttpConns int      `help:"limit concurrent connections per content server, 0 for no limit"`
	NoWebseeds   bool     `help:"don't add the torrents' url-list web seeds to their swarms"`
	Torrent      []string `arity:"+" help:"torrent file path" arg:"positional"`
}

func newPeerID() (ret pp.PeerID) {
	n := copy(ret[:], version.DefaultBep20Prefix)
	rand.Read(ret[n:])
	return
}

// Content servers after the first take successive ports, unless the port is 0.
func nthHttpAddr(addr string, n int) (string, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", fmt.Errorf("parsing port in %q: %w", addr, err)
	}
	if port != 0 {
		port += n
	}
	return net.JoinHostPort(host, strconv.Itoa(port)), nil
}

func (cmd *ServeCmd) storage() swarm.Storage {
	if cmd.Mmap {
		return swarm.NewMMapStorage(cmd.DataDir)
	}
	return swarm.NewDirStorage(cmd.DataDir)
}

func (cmd *ServeCmd) httpListen(addr string) (net.Listener, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if cmd.MaxHttpConns > 0 {
		l = netutil.LimitListener(l, cmd.MaxHttpConns)
	}
	return l, nil
}

func serve(ctx context.Context, cmd *ServeCmd) (err error) {
	var reg swarm.Registry
	defer func() {
		err = multierr.Append(err, reg.Close())
	}()
	peerID := newPeerID()
	var swarms []*swarm.Swarm
	for _, path := range cmd.Torrent {
		t, err := loadTorrent(path)
		if err != nil {
			return err
		}
		s := swarm.New(t.InfoHash, cmd.storage())
		if err := s.SetInfo(t.Info); err != nil {
			return fmt.Errorf("setting info for %q: %w", path, err)
		}
		if err := reg.Add(s); err != nil {
			return fmt.Errorf("adding %q: %w", path, err)
		}
		if !cmd.NoWebseeds {
			if err := addWebseedPeers(ctx, s, t.UrlList, peerID); err != nil {
				return fmt.Errorf("web seeds for %q: %w", path, err)
			}
		}
		swarms = append(swarms, s)
	}

	// Every component reports here when it stops serving.
	errs := make(chan error, len(swarms)+2)
	r := router.New(router.SwarmRegistry(&reg), peerID)
	defer r.Close()
	go func() {
		errs <- r.ListenAndServe(cmd.ListenAddr)
	}()
	for i, s := range swarms {
		addr, err := nthHttpAddr(cmd.HttpAddr, i)
		if err != nil {
			return fmt.Errorf("http addr for %q: %w", s.Name(), err)
		}
		l, err := cmd.httpListen(addr)
		if err != nil {
			return fmt.Errorf("content server for %q: %w", s.Name(), err)
		}
		srv := contentserver.New(s)
		defer srv.Close()
		go func() {
			errs <- srv.Serve(l)
		}()
		log.Printf("serving %q (%v) on http://%v", s.Name(), s.InfoHash(), l.Addr())
	}
	if cmd.MetricsAddr != "" {
		ms, err := serveMetrics(cmd.MetricsAddr, errs)
		if err != nil {
			return err
		}
		defer ms.Close()
	}
	log.Printf("routing peer connections for %v swarms on %v", len(swarms), cmd.ListenAddr)

	select {
	case <-ctx.Done():
		log.Printf("close signal received: %v", context.Cause(ctx))
		return nil
	case err := <-errs:
		if errors.Is(err, router.ErrClosed) || errors.Is(err, contentserver.ErrClosed) {
			return nil
		}
		return err
	}
}
