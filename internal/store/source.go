package store

import "fmt"

// Source names the container to work on: either a file path or a handle the
// caller already holds.
type Source interface {
	open() (*File, func() error, error)
}

// PathSource opens the container at a path. The returned close func closes it.
type PathSource string

func (p PathSource) open() (*File, func() error, error) {
	f, err := Open(string(p))
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", string(p), err)
	}
	return f, f.Close, nil
}

// HandleSource reuses an open container. The returned close func is a no-op;
// the owner of the handle closes it.
type HandleSource struct {
	File *File
}

func (h HandleSource) open() (*File, func() error, error) {
	if h.File == nil {
		return nil, nil, fmt.Errorf("store: nil file handle")
	}
	return h.File, func() error { return nil }, nil
}

// OpenSource resolves src to an open container. Callers must call the
// returned func when done.
func OpenSource(src Source) (*File, func() error, error) {
	if src == nil {
		return nil, nil, fmt.Errorf("store: nil source")
	}
	return src.open()
}
