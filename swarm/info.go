package swarm

import (
	"fmt"
	"iter"
	"path"
	"strings"

	"github.com/anacrolix/torrent/metainfo"

	"github.com/anacrolix/swarmedge/segments"
)

// A file within a swarm's content. Path is slash-separated and relative to the content root. For
// multi-file swarms it begins with the swarm name, as it would on disk and under a BEP 19 web seed.
type File struct {
	Name   string
	Path   string
	Length int64
	// Absolute position of the file's first byte in the swarm's content.
	Offset int64
}

func (f File) Extent() segments.Extent {
	return segments.Extent{Start: f.Offset, Length: f.Length}
}

func (f File) PathComponents() []string {
	return strings.Split(f.Path, "/")
}

// Metadata needed to address a swarm's content. Files are ordered by offset and contiguous.
type Info struct {
	Name        string
	PieceLength int64
	Files       []File
}

type FileLength struct {
	// Slash-separated, relative to the swarm root (so not including Info.Name).
	Path   string
	Length int64
}

// Lays out files end to end. A single file without a path is the whole content, named by name.
func NewInfo(name string, pieceLength int64, files []FileLength) (ret Info) {
	ret.Name = name
	ret.PieceLength = pieceLength
	var offset int64
	for _, fl := range files {
		p := name
		if fl.Path != "" {
			p = path.Join(name, fl.Path)
		}
		ret.Files = append(ret.Files, File{
			Name:   path.Base(p),
			Path:   p,
			Length: fl.Length,
			Offset: offset,
		})
		offset += fl.Length
	}
	return
}

// Converts a parsed info dictionary. Padding files are kept so that offsets stay consistent with
// piece boundaries.
func InfoFromMetainfo(mi *metainfo.Info) Info {
	var files []FileLength
	if mi.IsDir() {
		for _, fi := range mi.UpvertedFiles() {
			files = append(files, FileLength{
				Path:   strings.Join(fi.BestPath(), "/"),
				Length: fi.Length,
			})
		}
	} else {
		files = append(files, FileLength{Length: mi.TotalLength()})
	}
	return NewInfo(mi.BestName(), mi.PieceLength, files)
}

func (me *Info) TotalLength() (ret int64) {
	if len(me.Files) == 0 {
		return 0
	}
	last := me.Files[len(me.Files)-1]
	return last.Offset + last.Length
}

func (me *Info) NumPieces() int {
	if me.PieceLength <= 0 {
		return 0
	}
	return int((me.TotalLength() + me.PieceLength - 1) / me.PieceLength)
}

func (me *Info) IsMultiFile() bool {
	return len(me.Files) > 1
}

func (me *Info) fileLengths() iter.Seq[segments.Length] {
	return func(yield func(segments.Length) bool) {
		for _, f := range me.Files {
			if !yield(f.Length) {
				return
			}
		}
	}
}

func (me *Info) FileSegmentsIndex() segments.Index {
	return segments.NewIndex(me.fileLengths())
}

// Checks the ordering and contiguity invariants of the file list.
func (me *Info) Validate() error {
	if me.PieceLength <= 0 {
		return fmt.Errorf("bad piece length %v", me.PieceLength)
	}
	var next int64
	for i, f := range me.Files {
		if f.Length < 0 {
			return fmt.Errorf("file %d has negative length", i)
		}
		if f.Offset != next {
			return fmt.Errorf("file %d (%q) has offset %v, expected %v", i, f.Path, f.Offset, next)
		}
		next += f.Length
	}
	return nil
}
