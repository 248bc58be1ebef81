package swarm

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/edsrzf/mmap-go"
)

type mmapStorage struct {
	dir string
}

// Like NewDirStorage, but maps files into memory instead of reading them through the file
// descriptor.
func NewMMapStorage(dir string) Storage {
	return mmapStorage{dir}
}

type mmapHandle struct {
	*bytes.Reader
	m mmap.MMap
}

func (me mmapHandle) Close() error {
	if me.m == nil {
		return nil
	}
	return me.m.Unmap()
}

func (me mmapStorage) OpenFile(f File) (FileHandle, error) {
	osFile, err := os.Open(filepath.Join(me.dir, filepath.FromSlash(f.Path)))
	if err != nil {
		return nil, err
	}
	// The mapping stays valid after the descriptor is closed.
	defer osFile.Close()
	fi, err := osFile.Stat()
	if err != nil {
		return nil, err
	}
	if fi.Size() < f.Length {
		return nil, fmt.Errorf("%q is %v bytes, expected %v", f.Path, fi.Size(), f.Length)
	}
	if f.Length == 0 {
		// Empty regions can't be mapped.
		return mmapHandle{Reader: bytes.NewReader(nil)}, nil
	}
	m, err := mmap.MapRegion(osFile, int(f.Length), mmap.RDONLY, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("mapping %q: %w", f.Path, err)
	}
	return mmapHandle{bytes.NewReader(m), m}, nil
}
