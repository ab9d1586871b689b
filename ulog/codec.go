package ulog

import (
	"bytes"
	"errors"
	"fmt"
)

// ErrEndOfRecords is returned by DecodeRecord when fewer than 3 header bytes
// remain before the bound, or (in lenient mode) when a decode failure occurs
// at a record boundary. Callers treat it like io.EOF: stop iterating, not an
// error to propagate.
var ErrEndOfRecords = errors.New("ulog: end of records")

// syncMagic is the fixed 8-byte payload of a Synchronization record.
var syncMagic = [8]byte{0x2F, 0x73, 0x13, 0x20, 0x25, 0x0C, 0xBB, 0x12}

// minPayloadSize returns the minimum payload length required for tag, and
// whether tag is one of the thirteen recognized kinds.
func minPayloadSize(tag Tag) (int, bool) {
	switch tag {
	case TagFlagBits:
		return 40, true
	case TagInformation:
		return 1, true
	case TagInformationMulti:
		return 2, true
	case TagFormatDefinition:
		return 0, true
	case TagParameter:
		return 1, true
	case TagParameterDefault:
		return 2, true
	case TagAddLogged:
		return 3, true
	case TagRemoveLogged:
		return 1, true
	case TagData:
		return 2, true
	case TagLog:
		return 9, true
	case TagLogTagged:
		return 11, true
	case TagSync:
		return 8, true
	case TagDropout:
		return 2, true
	default:
		return 0, false
	}
}

func malformed(offset int64, tag byte, reason string) error {
	return &ErrMalformedRecord{Offset: offset, Tag: tag, Reason: reason}
}

// DecodeRecord decodes the next record from r. dataEnd bounds how far into
// the file a record's payload may extend (used to stop at the logical end of
// the Data section, e.g. before appended crash-dump bytes). When lenient is
// true, a short read or malformed record at a boundary yields ErrEndOfRecords
// instead of propagating the underlying error — the convention used by the
// indexer to tolerate a truncated tail.
func DecodeRecord(r *ChunkedReader, dataEnd int64, lenient bool) (Record, error) {
	offset := r.Position()
	if dataEnd-offset < 3 {
		return nil, ErrEndOfRecords
	}

	size, err := r.ReadUint16()
	if err != nil {
		if lenient {
			return nil, ErrEndOfRecords
		}
		return nil, fmt.Errorf("failed to read record size at offset %d: %w", offset, err)
	}
	tagByte, err := r.ReadUint8()
	if err != nil {
		if lenient {
			return nil, ErrEndOfRecords
		}
		return nil, fmt.Errorf("failed to read record tag at offset %d: %w", offset, err)
	}

	if offset+3+int64(size) > dataEnd {
		if lenient {
			return nil, ErrEndOfRecords
		}
		return nil, malformed(offset, tagByte, "record payload extends past section end")
	}

	payload, err := r.ReadBytes(int(size))
	if err != nil {
		if lenient {
			return nil, ErrEndOfRecords
		}
		return nil, fmt.Errorf("failed to read payload at offset %d: %w", offset, err)
	}

	rec, err := decodePayload(Tag(tagByte), offset, payload)
	if err != nil {
		if lenient {
			return nil, ErrEndOfRecords
		}
		return nil, err
	}
	return rec, nil
}

// decodePayload dispatches on tag, validating the per-tag minimum payload
// size (§4.3) before interpreting the fields.
func decodePayload(tag Tag, offset int64, payload []byte) (Record, error) {
	if min, known := minPayloadSize(tag); known && len(payload) < min {
		return nil, malformed(offset, byte(tag), fmt.Sprintf("payload of %d bytes shorter than minimum %d", len(payload), min))
	}

	switch tag {
	case TagFlagBits:
		var compat, incompat [8]byte
		copy(compat[:], payload[0:8])
		copy(incompat[:], payload[8:16])
		var appended [3]uint64
		for i := 0; i < 3; i++ {
			appended[i] = leUint64(payload[16+8*i:])
		}
		return &FlagBitsRecord{
			Offset:          offset,
			CompatFlags:     compat,
			IncompatFlags:   incompat,
			AppendedOffsets: appended,
		}, nil

	case TagInformation:
		keyLen := int(payload[0])
		if 1+keyLen > len(payload) {
			return nil, malformed(offset, byte(tag), "keyLen overruns payload")
		}
		return &InformationRecord{
			Offset: offset,
			Key:    string(payload[1 : 1+keyLen]),
			Value:  payload[1+keyLen:],
		}, nil

	case TagInformationMulti:
		isContinued := payload[0] != 0
		keyLen := int(payload[1])
		if 2+keyLen > len(payload) {
			return nil, malformed(offset, byte(tag), "keyLen overruns payload")
		}
		return &InformationMultiRecord{
			Offset:      offset,
			IsContinued: isContinued,
			Key:         string(payload[2 : 2+keyLen]),
			Value:       payload[2+keyLen:],
		}, nil

	case TagFormatDefinition:
		return &FormatDefinitionRecord{Offset: offset, Format: string(payload)}, nil

	case TagParameter:
		keyLen := int(payload[0])
		if 1+keyLen > len(payload) {
			return nil, malformed(offset, byte(tag), "keyLen overruns payload")
		}
		return &ParameterRecord{
			Offset: offset,
			Key:    string(payload[1 : 1+keyLen]),
			Value:  payload[1+keyLen:],
		}, nil

	case TagParameterDefault:
		defaultTypes := payload[0]
		keyLen := int(payload[1])
		if 2+keyLen > len(payload) {
			return nil, malformed(offset, byte(tag), "keyLen overruns payload")
		}
		return &ParameterDefaultRecord{
			Offset:       offset,
			DefaultTypes: defaultTypes,
			Key:          string(payload[2 : 2+keyLen]),
			Value:        payload[2+keyLen:],
		}, nil

	case TagAddLogged:
		return &AddLoggedRecord{
			Offset:      offset,
			MultiID:     payload[0],
			MsgID:       leUint16(payload[1:3]),
			MessageName: string(payload[3:]),
		}, nil

	case TagRemoveLogged:
		return &RemoveLoggedRecord{Offset: offset, MsgID: payload[0]}, nil

	case TagData:
		return &DataRecord{
			Offset: offset,
			MsgID:  leUint16(payload[0:2]),
			Data:   payload[2:],
		}, nil

	case TagLog:
		return &LogRecord{
			Offset:    offset,
			LogLevel:  payload[0],
			Timestamp: leUint64(payload[1:9]),
			Message:   string(payload[9:]),
		}, nil

	case TagLogTagged:
		return &LogTaggedRecord{
			Offset:    offset,
			LogLevel:  payload[0],
			LogTag:    leUint16(payload[1:3]),
			Timestamp: leUint64(payload[3:11]),
			Message:   string(payload[11:]),
		}, nil

	case TagSync:
		if !bytes.Equal(payload[:8], syncMagic[:]) {
			return nil, malformed(offset, byte(tag), "invalid sync magic")
		}
		return &SynchronizationRecord{Offset: offset}, nil

	case TagDropout:
		return &DropoutRecord{Offset: offset, Duration: leUint16(payload[0:2])}, nil

	default:
		return &UnknownRecord{Offset: offset, Kind: byte(tag), Bytes: payload}, nil
	}
}
