package ulog

import (
	"bytes"
	"encoding/binary"
	"math"
)

// byteWriter is a small little-endian byte-stream builder used by tests to
// assemble record payloads, mirroring the teacher's use of hand-built byte
// slices in testutils.go (bagfile, connection, message).
type byteWriter struct {
	buf bytes.Buffer
}

func newByteWriter() *byteWriter { return &byteWriter{} }

func (w *byteWriter) u8(v uint8) *byteWriter {
	w.buf.WriteByte(v)
	return w
}

func (w *byteWriter) u16(v uint16) *byteWriter {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
	return w
}

func (w *byteWriter) u32(v uint32) *byteWriter {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
	return w
}

func (w *byteWriter) u64(v uint64) *byteWriter {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
	return w
}

func (w *byteWriter) f32(v float32) *byteWriter {
	return w.u32(math.Float32bits(v))
}

func (w *byteWriter) f64(v float64) *byteWriter {
	return w.u64(math.Float64bits(v))
}

func (w *byteWriter) raw(b []byte) *byteWriter {
	w.buf.Write(b)
	return w
}

func (w *byteWriter) str(s string) *byteWriter {
	w.buf.WriteString(s)
	return w
}

func (w *byteWriter) bytes() []byte {
	return append([]byte{}, w.buf.Bytes()...)
}

// recordBuilder assembles a sequence of size/tag/payload records into a full
// in-memory ULog byte stream, the way the teacher's bagfile() helper
// assembles ROS bag bytes through a real Writer.
type recordBuilder struct {
	buf bytes.Buffer
}

func newRecordBuilder() *recordBuilder { return &recordBuilder{} }

// header writes the 16-byte file header.
func (b *recordBuilder) header(version uint8, startTimestamp uint64) *recordBuilder {
	b.buf.Write(fileMagic[:])
	b.buf.WriteByte(version)
	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], startTimestamp)
	b.buf.Write(ts[:])
	return b
}

// record appends one size-prefixed, tagged record.
func (b *recordBuilder) record(tag byte, payload []byte) *recordBuilder {
	var size [2]byte
	binary.LittleEndian.PutUint16(size[:], uint16(len(payload)))
	b.buf.Write(size[:])
	b.buf.WriteByte(tag)
	b.buf.Write(payload)
	return b
}

func (b *recordBuilder) bytes() []byte {
	return append([]byte{}, b.buf.Bytes()...)
}

func flagBitsPayload(incompatByte0 byte, appended [3]uint64) []byte {
	w := newByteWriter()
	w.raw(make([]byte, 8))       // compatible flags, all zero
	w.u8(incompatByte0)          // incompatible flags byte 0
	w.raw(make([]byte, 7))       // incompatible flags bytes 1-7
	for _, o := range appended {
		w.u64(o)
	}
	return w.bytes()
}

func keyedPayload(keyLenPrefixBytes int, key string, value []byte, prefix ...byte) []byte {
	w := newByteWriter()
	for _, p := range prefix {
		w.u8(p)
	}
	w.u8(uint8(len(key)))
	w.str(key)
	w.raw(value)
	return w.bytes()
}

func informationPayload(key string, value []byte) []byte {
	return keyedPayload(1, key, value)
}

func informationMultiPayload(isContinued bool, key string, value []byte) []byte {
	var c uint8
	if isContinued {
		c = 1
	}
	return keyedPayload(1, key, value, c)
}

func parameterPayload(key string, value []byte) []byte {
	return keyedPayload(1, key, value)
}

func parameterDefaultPayload(defaultTypes uint8, key string, value []byte) []byte {
	return keyedPayload(1, key, value, defaultTypes)
}

func addLoggedPayload(multiID uint8, msgID uint16, name string) []byte {
	return newByteWriter().u8(multiID).u16(msgID).str(name).bytes()
}

func removeLoggedPayload(msgID uint8) []byte {
	return newByteWriter().u8(msgID).bytes()
}

func dataPayload(msgID uint16, data []byte) []byte {
	return newByteWriter().u16(msgID).raw(data).bytes()
}

func logPayload(level uint8, timestamp uint64, message string) []byte {
	return newByteWriter().u8(level).u64(timestamp).str(message).bytes()
}

func logTaggedPayload(level uint8, tag uint16, timestamp uint64, message string) []byte {
	return newByteWriter().u8(level).u16(tag).u64(timestamp).str(message).bytes()
}

func syncPayload() []byte {
	return append([]byte{}, syncMagic[:]...)
}

func dropoutPayload(duration uint16) []byte {
	return newByteWriter().u16(duration).bytes()
}
