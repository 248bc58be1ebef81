package router

import (
	"net"

	pp "github.com/anacrolix/swarmedge/peer_protocol"
	"github.com/anacrolix/swarmedge/swarm"
	"github.com/anacrolix/swarmedge/types/infohash"
)

// What the router needs from a swarm: somewhere to put a peer once its handshake is done.
type Swarm interface {
	AddIncomingPeer(net.Conn, pp.HandshakeResult) error
}

type Registry interface {
	Lookup(infohash.T) (Swarm, bool)
}

type RegistryFunc func(infohash.T) (Swarm, bool)

func (f RegistryFunc) Lookup(ih infohash.T) (Swarm, bool) {
	return f(ih)
}

// Adapts a swarm.Registry. The conversion guards against handing back a typed nil.
func SwarmRegistry(r *swarm.Registry) Registry {
	return RegistryFunc(func(ih infohash.T) (Swarm, bool) {
		s, ok := r.Lookup(ih)
		if !ok {
			return nil, false
		}
		return s, true
	})
}
