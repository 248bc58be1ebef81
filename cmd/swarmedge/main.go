// Runs swarmedge components from the command-line.
//
// Example run:
// $ swarmedge serve --listen-addr :42069 --http-addr localhost:8080 --data-dir ~/media album.torrent
// $ swarmedge fetch --piece 2 --begin 10 --length 100 album.torrent | xxd
package main

import (
	"context"
	"fmt"
	stdLog "log"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexflint/go-arg"
	"github.com/anacrolix/envpprof"
	"github.com/anacrolix/log"

	"github.com/anacrolix/swarmedge/version"
)

var flags struct {
	Debug bool `help:"log at debug level"`

	*ServeCmd     `arg:"subcommand:serve"`
	*FetchCmd     `arg:"subcommand:fetch"`
	*ListFilesCmd `arg:"subcommand:list-files"`
	*VersionCmd   `arg:"subcommand:version"`
}

type VersionCmd struct{}

func main() {
	defer envpprof.Stop()
	if err := mainErr(); err != nil {
		log.Printf("error in main: %v", err)
		os.Exit(1)
	}
}

func mainErr() error {
	stdLog.SetFlags(stdLog.Flags() | stdLog.Lshortfile)
	p := arg.MustParse(&flags)
	if flags.Debug {
		log.Default = log.Default.FilterLevel(log.Debug)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	switch {
	case flags.ServeCmd != nil:
		return serve(ctx, flags.ServeCmd)
	case flags.FetchCmd != nil:
		return fetch(ctx, flags.FetchCmd)
	case flags.ListFilesCmd != nil:
		return listFiles(os.Stdout, flags.ListFilesCmd)
	case flags.VersionCmd != nil:
		fmt.Printf("Module version: %q\n", version.ModuleVersion)
		fmt.Printf("HTTP User-Agent: %q\n", version.DefaultHttpUserAgent)
		fmt.Printf("Peer ID prefix: %q\n", version.DefaultBep20Prefix)
		return nil
	default:
		p.Fail(fmt.Sprintf("unexpected subcommand: %v", p.Subcommand()))
		panic("unreachable")
	}
}
