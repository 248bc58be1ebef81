package main

import (
	"context"
	"fmt"

	pp "github.com/anacrolix/swarmedge/peer_protocol"
	"github.com/anacrolix/swarmedge/swarm"
	"github.com/anacrolix/swarmedge/version"
	"github.com/anacrolix/swarmedge/webseed"
)

// Each url joins the swarm as a peer that has every piece, exactly as if it had connected through
// the router. The swarm's Close ends them.
func addWebseedPeers(ctx context.Context, s *swarm.Swarm, urls []string, peerID pp.PeerID) error {
	info := s.Info()
	if info == nil {
		return fmt.Errorf("swarm %v has no info for web seeds", s.InfoHash())
	}
	for _, url := range urls {
		c := webseed.NewClient(url)
		c.UserAgent = version.DefaultHttpUserAgent
		c.SetInfo(*info)
		conn, p := webseed.Pipe(c)
		hs, err := pp.Handshake(ctx, conn, s.InfoHash(), peerID, pp.NewPeerExtensionBytes(pp.ExtensionBitFast))
		if err != nil {
			p.Close()
			return fmt.Errorf("handshaking web seed %q: %w", url, err)
		}
		err = s.AddIncomingPeer(conn, hs)
		if err != nil {
			p.Close()
			return fmt.Errorf("adding web seed %q: %w", url, err)
		}
		c.Logger.Printf("web seed %q joined swarm %v", url, s.InfoHash())
	}
	return nil
}
