package ulog

import "fmt"

// DefaultChunkSize is the default block size ChunkedReader fetches from its
// ByteSource.
const DefaultChunkSize = 256 * 1024

type chunkedReaderOptions struct {
	chunkSize int64
}

// ChunkedReaderOption configures a ChunkedReader, in the style of the
// teacher's ScanOption functional options.
type ChunkedReaderOption func(*chunkedReaderOptions)

// WithChunkSize overrides the default 256 KiB chunk size.
func WithChunkSize(n int) ChunkedReaderOption {
	return func(o *chunkedReaderOptions) {
		o.chunkSize = int64(n)
	}
}

// ChunkedReader presents a cursor over a ByteSource, issuing block reads and
// stitching adjacent chunks when a primitive straddles a boundary. It never
// assumes the underlying source is read sequentially, but it is itself not
// safe for concurrent use; independent readers over the same ByteSource are
// expected to each get their own ChunkedReader.
type ChunkedReader struct {
	source    ByteSource
	size      int64
	chunkSize int64

	pos        int64
	chunk      []byte
	chunkStart int64
}

// NewChunkedReader opens source and returns a ChunkedReader positioned at
// offset 0.
func NewChunkedReader(source ByteSource, opts ...ChunkedReaderOption) (*ChunkedReader, error) {
	options := chunkedReaderOptions{chunkSize: DefaultChunkSize}
	for _, opt := range opts {
		opt(&options)
	}
	size, err := source.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open byte source: %w", err)
	}
	return &ChunkedReader{
		source:    source,
		size:      size,
		chunkSize: options.chunkSize,
	}, nil
}

// Position returns the logical byte offset of the next byte to be read.
func (r *ChunkedReader) Position() int64 { return r.pos }

// Size returns the total size of the underlying source.
func (r *ChunkedReader) Size() int64 { return r.size }

// Remaining returns the number of unread bytes.
func (r *ChunkedReader) Remaining() int64 { return r.size - r.pos }

// SeekTo moves the cursor to an absolute offset.
func (r *ChunkedReader) SeekTo(absolute int64) error {
	if absolute < 0 || absolute > r.size {
		return fmt.Errorf("%w: seekTo(%d) outside [0,%d]", ErrSeekOutOfRange, absolute, r.size)
	}
	r.pos = absolute
	return nil
}

// Seek moves the cursor by a relative offset.
func (r *ChunkedReader) Seek(relative int64) error {
	return r.SeekTo(r.pos + relative)
}

// Skip advances the cursor by n bytes. n must be non-negative.
func (r *ChunkedReader) Skip(n int64) error {
	if n < 0 {
		return fmt.Errorf("%w", &ErrMalformedRecord{Offset: r.pos, Reason: fmt.Sprintf("skip requires a non-negative count, got %d", n)})
	}
	return r.SeekTo(r.pos + n)
}

// ensure guarantees that the loaded chunk covers [pos, pos+n), fetching and
// stitching a new chunk if necessary. It is the single place boundary
// crossing is handled.
func (r *ChunkedReader) ensure(n int64) error {
	if n < 0 {
		return fmt.Errorf("%w", &ErrMalformedRecord{Offset: r.pos, Reason: fmt.Sprintf("negative read width %d", n)})
	}
	remaining := r.size - r.pos
	if remaining < n {
		return fmt.Errorf("%w: need %d bytes at offset %d, only %d remain", ErrUnexpectedEOF, n, r.pos, remaining)
	}

	var tail []byte
	if r.chunk != nil && r.pos >= r.chunkStart && r.pos <= r.chunkStart+int64(len(r.chunk)) {
		tail = r.chunk[r.pos-r.chunkStart:]
	}
	if int64(len(tail)) >= n {
		return nil
	}

	need := n - int64(len(tail))
	maxAvail := remaining - int64(len(tail))
	fetchLen := clampFetch(r.chunkSize, need, maxAvail)

	fetched, err := r.source.Read(r.pos+int64(len(tail)), int(fetchLen))
	if err != nil {
		return fmt.Errorf("failed to fetch chunk at offset %d: %w", r.pos+int64(len(tail)), err)
	}

	newChunk := make([]byte, len(tail)+len(fetched))
	copy(newChunk, tail)
	copy(newChunk[len(tail):], fetched)
	r.chunk = newChunk
	r.chunkStart = r.pos

	if int64(len(r.chunk)) < n {
		return fmt.Errorf("%w: stitched chunk still short of %d bytes", ErrUnexpectedEOF, n)
	}
	return nil
}

// clampFetch returns preferred, clamped to be at least minNeeded and at most
// maxAvail.
func clampFetch(preferred, minNeeded, maxAvail int64) int64 {
	n := preferred
	if n < minNeeded {
		n = minNeeded
	}
	if n > maxAvail {
		n = maxAvail
	}
	return n
}

// readN returns a view of the next n bytes and advances the cursor. The
// returned slice aliases the internal chunk buffer and is valid only until
// the next non-peek read.
func (r *ChunkedReader) readN(n int) ([]byte, error) {
	if err := r.ensure(int64(n)); err != nil {
		return nil, err
	}
	start := r.pos - r.chunkStart
	b := r.chunk[start : start+int64(n)]
	r.pos += int64(n)
	return b, nil
}

// PeekUint8 returns the byte at position()+k without advancing the cursor.
func (r *ChunkedReader) PeekUint8(k int) (uint8, error) {
	if err := r.ensure(int64(k) + 1); err != nil {
		return 0, err
	}
	idx := r.pos - r.chunkStart + int64(k)
	return r.chunk[idx], nil
}

// ReadBytes borrows the next n bytes and advances the cursor by n. See readN
// for aliasing rules.
func (r *ChunkedReader) ReadBytes(n int) ([]byte, error) {
	return r.readN(n)
}

// ReadString decodes the next n bytes as UTF-8 and advances the cursor by n.
func (r *ChunkedReader) ReadString(n int) (string, error) {
	b, err := r.readN(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *ChunkedReader) ReadUint8() (uint8, error) {
	b, err := r.readN(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *ChunkedReader) ReadInt8() (int8, error) {
	v, err := r.ReadUint8()
	return int8(v), err
}

func (r *ChunkedReader) ReadUint16() (uint16, error) {
	b, err := r.readN(2)
	if err != nil {
		return 0, err
	}
	return leUint16(b), nil
}

func (r *ChunkedReader) ReadInt16() (int16, error) {
	b, err := r.readN(2)
	if err != nil {
		return 0, err
	}
	return leInt16(b), nil
}

func (r *ChunkedReader) ReadUint32() (uint32, error) {
	b, err := r.readN(4)
	if err != nil {
		return 0, err
	}
	return leUint32(b), nil
}

func (r *ChunkedReader) ReadInt32() (int32, error) {
	b, err := r.readN(4)
	if err != nil {
		return 0, err
	}
	return leInt32(b), nil
}

func (r *ChunkedReader) ReadUint64() (uint64, error) {
	b, err := r.readN(8)
	if err != nil {
		return 0, err
	}
	return leUint64(b), nil
}

func (r *ChunkedReader) ReadInt64() (int64, error) {
	b, err := r.readN(8)
	if err != nil {
		return 0, err
	}
	return leInt64(b), nil
}

func (r *ChunkedReader) ReadFloat32() (float32, error) {
	b, err := r.readN(4)
	if err != nil {
		return 0, err
	}
	return leFloat32(b), nil
}

func (r *ChunkedReader) ReadFloat64() (float64, error) {
	b, err := r.readN(8)
	if err != nil {
		return 0, err
	}
	return leFloat64(b), nil
}
