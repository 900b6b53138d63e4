package pages

import (
	"bytes"
	"io"
	"os"
)

// Source is an external page image: a file picked by the user, a camera
// capture, or bytes already in memory.
type Source interface {
	Open() (io.ReadCloser, error)
	String() string
}

// FileSource is a path on the local filesystem, outside the storage root.
type FileSource string

func (f FileSource) Open() (io.ReadCloser, error) { return os.Open(string(f)) }
func (f FileSource) String() string               { return string(f) }

// BytesSource is an in-memory encoded image.
type BytesSource []byte

func (b BytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (b BytesSource) String() string { return "<memory>" }
