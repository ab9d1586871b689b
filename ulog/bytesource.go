package ulog

import (
	"fmt"
	"os"
)

// ByteSource is a random-access byte provider. The decoder never assumes
// sequential access: every read names its own offset and length. This is the
// external collaborator described abstractly in the specification; FileByteSource
// and MemoryByteSource below are the two concrete implementations the rest of
// this module (and its tests) run against.
type ByteSource interface {
	// Open prepares the source for reading and returns its total size.
	Open() (int64, error)
	// Size returns the total size of the source. Valid only after Open.
	Size() int64
	// Read returns exactly length bytes starting at offset, or an error if
	// that many bytes are not available.
	Read(offset int64, length int) ([]byte, error)
}

// FileByteSource is a ByteSource backed by an *os.File opened read-only.
type FileByteSource struct {
	path string
	f    *os.File
	size int64
}

// NewFileByteSource returns a FileByteSource for the file at path. The file
// is not opened until Open is called.
func NewFileByteSource(path string) *FileByteSource {
	return &FileByteSource{path: path}
}

func (s *FileByteSource) Open() (int64, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", s.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return 0, fmt.Errorf("failed to stat %s: %w", s.path, err)
	}
	s.f = f
	s.size = info.Size()
	return s.size, nil
}

func (s *FileByteSource) Size() int64 {
	return s.size
}

func (s *FileByteSource) Read(offset int64, length int) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}
	buf := make([]byte, length)
	n, err := s.f.ReadAt(buf, offset)
	if err != nil && n < length {
		return nil, fmt.Errorf("%w: read %d of %d bytes at offset %d: %s", ErrUnexpectedEOF, n, length, offset, err)
	}
	return buf, nil
}

// Close releases the underlying file handle.
func (s *FileByteSource) Close() error {
	if s.f == nil {
		return nil
	}
	return s.f.Close()
}

// MemoryByteSource is a ByteSource backed by an in-memory byte slice. It is
// used by the test suite to build synthetic ULog files without touching the
// filesystem, the way the teacher's tests build bag bytes with bufWriteSeeker.
type MemoryByteSource struct {
	data []byte
}

// NewMemoryByteSource returns a MemoryByteSource wrapping data. data is not
// copied; callers must not mutate it after construction.
func NewMemoryByteSource(data []byte) *MemoryByteSource {
	return &MemoryByteSource{data: data}
}

func (s *MemoryByteSource) Open() (int64, error) {
	return int64(len(s.data)), nil
}

func (s *MemoryByteSource) Size() int64 {
	return int64(len(s.data))
}

func (s *MemoryByteSource) Read(offset int64, length int) ([]byte, error) {
	if offset < 0 || offset > int64(len(s.data)) {
		return nil, fmt.Errorf("%w: offset %d out of range", ErrSeekOutOfRange, offset)
	}
	end := offset + int64(length)
	if end > int64(len(s.data)) {
		return nil, fmt.Errorf("%w: requested %d bytes at offset %d, have %d", ErrUnexpectedEOF, length, offset, len(s.data)-int(offset))
	}
	return s.data[offset:end], nil
}
