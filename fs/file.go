package fs

import "io"

// File is an open file handle. Name returns the path it was opened with,
// which is what Rename expects for temporary files.
type File interface {
	io.ReadWriteCloser
	Name() string
}
