package ulog

import (
	"encoding/binary"
	"math"
)

// Little-endian decode helpers, mirroring the teacher's binary.go aliases.

func leUint16(b []byte) uint16 { return binary.LittleEndian.Uint16(b) }
func leUint32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }
func leUint64(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }

func leInt16(b []byte) int16 { return int16(leUint16(b)) }
func leInt32(b []byte) int32 { return int32(leUint32(b)) }
func leInt64(b []byte) int64 { return int64(leUint64(b)) }

func leFloat32(b []byte) float32 { return math.Float32frombits(leUint32(b)) }
func leFloat64(b []byte) float64 { return math.Float64frombits(leUint64(b)) }
