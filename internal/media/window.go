package media

import (
	"fmt"
	"io"
	"os"
)

// Window is a read-only view of length bytes of a file starting at an offset.
// Reads past the end of the window return io.EOF regardless of how large the
// underlying file is.
type Window struct {
	file    *os.File
	section *io.SectionReader
	closed  bool
}

var _ io.ReadSeekCloser = (*Window)(nil)

// OpenWindow opens path and exposes bytes [start, start+length).
// The caller owns the returned Window and must Close it.
func OpenWindow(path string, start, length int64) (*Window, error) {
	if start < 0 || length < 0 {
		return nil, fmt.Errorf("invalid window start=%d length=%d", start, length)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if start+length > info.Size() {
		f.Close()
		return nil, fmt.Errorf("window [%d,%d) exceeds file size %d", start, start+length, info.Size())
	}

	return &Window{
		file:    f,
		section: io.NewSectionReader(f, start, length),
	}, nil
}

func (w *Window) Read(p []byte) (int, error) {
	return w.section.Read(p)
}

// Seek is relative to the window, not the file.
func (w *Window) Seek(offset int64, whence int) (int64, error) {
	return w.section.Seek(offset, whence)
}

func (w *Window) Size() int64 {
	return w.section.Size()
}

func (w *Window) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}
