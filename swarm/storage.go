package swarm

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
)

type FileHandle interface {
	io.ReaderAt
	io.Closer
}

// Where a swarm's file data lives. Piece storage proper is the engine's concern; the edge only
// needs to read complete files.
type Storage interface {
	OpenFile(f File) (FileHandle, error)
}

type dirStorage struct {
	dir string
}

// Files are found at their Path beneath dir.
func NewDirStorage(dir string) Storage {
	return dirStorage{dir}
}

func (me dirStorage) OpenFile(f File) (FileHandle, error) {
	return os.Open(filepath.Join(me.dir, filepath.FromSlash(f.Path)))
}

// In-memory storage keyed by File.Path.
type MapStorage map[string][]byte

type nopCloserReaderAt struct {
	*bytes.Reader
}

func (nopCloserReaderAt) Close() error {
	return nil
}

func (me MapStorage) OpenFile(f File) (FileHandle, error) {
	b, ok := me[f.Path]
	if !ok {
		return nil, &os.PathError{Op: "open", Path: f.Path, Err: os.ErrNotExist}
	}
	return nopCloserReaderAt{bytes.NewReader(b)}, nil
}
