package swarm

import (
	"fmt"

	"github.com/anacrolix/sync"
	"go.uber.org/multierr"

	"github.com/anacrolix/swarmedge/types/infohash"
)

// Swarms by info hash. This is what lets many swarms share a listener.
type Registry struct {
	mu     sync.RWMutex
	swarms map[infohash.T]*Swarm
}

func (r *Registry) Add(s *Swarm) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.swarms[s.InfoHash()]; ok {
		return fmt.Errorf("swarm %v already registered", s.InfoHash())
	}
	if r.swarms == nil {
		r.swarms = make(map[infohash.T]*Swarm)
	}
	r.swarms[s.InfoHash()] = s
	return nil
}

func (r *Registry) Remove(ih infohash.T) (s *Swarm, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok = r.swarms[ih]
	delete(r.swarms, ih)
	return
}

func (r *Registry) Lookup(ih infohash.T) (s *Swarm, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok = r.swarms[ih]
	return
}

func (r *Registry) List() (ret []*Swarm) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.swarms {
		ret = append(ret, s)
	}
	return
}

// Closes and removes every swarm.
func (r *Registry) Close() (err error) {
	r.mu.Lock()
	swarms := r.swarms
	r.swarms = nil
	r.mu.Unlock()
	for _, s := range swarms {
		err = multierr.Append(err, s.Close())
	}
	return
}
