package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/anacrolix/tagflag"
	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"

	"github.com/anacrolix/swarmedge/version"
	"github.com/anacrolix/swarmedge/webseed"
)

type FetchCmd struct {
	Piece                   int64          `arg:"required" help:"piece index"`
	Begin                   int64          `help:"offset within the piece"`
	Length                  tagflag.Bytes  `default:"16KiB" help:"block length"`
	Webseed                 string         `help:"webseed URL, defaults to the first in the torrent's url-list"`
	DownloadRate            *tagflag.Bytes `help:"max bytes per second down from the webseed"`
	SameOriginRedirectsOnly bool           `help:"resolve cross-origin redirects with a HEAD request and retry"`
	Torrent                 string         `arg:"positional,required" help:"torrent file path"`
}

func fetch(ctx context.Context, cmd *FetchCmd) error {
	t, err := loadTorrent(cmd.Torrent)
	if err != nil {
		return err
	}
	url := cmd.Webseed
	if url == "" {
		if len(t.UrlList) == 0 {
			return errors.New("torrent has no webseeds and none was given")
		}
		url = t.UrlList[0]
	}
	c := webseed.NewClient(url)
	c.UserAgent = version.DefaultHttpUserAgent
	c.SameOriginRedirectsOnly = cmd.SameOriginRedirectsOnly
	if cmd.DownloadRate != nil {
		c.ResponseBodyRateLimiter = rate.NewLimiter(rate.Limit(*cmd.DownloadRate), 1<<20)
	}
	c.SetInfo(t.Info)
	b, err := c.Fetch(ctx, webseed.BlockRange{
		Index:  cmd.Piece,
		Begin:  cmd.Begin,
		Length: cmd.Length.Int64(),
	})
	if err != nil {
		return fmt.Errorf("fetching from %q: %w", url, err)
	}
	c.Logger.Printf("fetched %v from %q", humanize.Bytes(uint64(len(b))), url)
	_, err = os.Stdout.Write(b)
	return err
}
