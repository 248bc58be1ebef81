package main

import (
	"fmt"
	"io"

	"github.com/davecgh/go-spew/spew"
	"github.com/dustin/go-humanize"
)

type ListFilesCmd struct {
	Dump        bool   `help:"dump the swarm info the edge would serve instead of listing files"`
	TorrentPath string `arg:"positional"`
}

// File indexes are what the content server serves each file at.
func listFiles(w io.Writer, cmd *ListFilesCmd) error {
	t, err := loadTorrent(cmd.TorrentPath)
	if err != nil {
		return err
	}
	if cmd.Dump {
		spew.Fdump(w, t)
		return nil
	}
	for i, f := range t.Info.Files {
		fmt.Fprintf(w, "%d\t%s\t%s\n", i, humanize.IBytes(uint64(f.Length)), f.Path)
	}
	return nil
}
