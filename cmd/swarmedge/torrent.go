package main

import (
	"fmt"

	"github.com/anacrolix/torrent/metainfo"

	"github.com/anacrolix/swarmedge/swarm"
	"github.com/anacrolix/swarmedge/types/infohash"
)

type loadedTorrent struct {
	InfoHash infohash.T
	Info     swarm.Info
	UrlList  []string
}

func loadTorrent(path string) (ret loadedTorrent, err error) {
	mi, err := metainfo.LoadFromFile(path)
	if err != nil {
		return ret, fmt.Errorf("loading torrent file %q: %w", path, err)
	}
	info, err := mi.UnmarshalInfo()
	if err != nil {
		return ret, fmt.Errorf("unmarshalling info from metainfo at %q: %w", path, err)
	}
	ret.InfoHash = infohash.T(mi.HashInfoBytes())
	ret.Info = swarm.InfoFromMetainfo(&info)
	ret.UrlList = mi.UrlList
	err = ret.Info.Validate()
	if err != nil {
		return ret, fmt.Errorf("validating info from %q: %w", path, err)
	}
	return
}
