package ulog

import (
	"errors"
	"fmt"
)

// Sentinel errors for cases that need no structured context, mirroring the
// teacher's package-level error values in rosbag/errors.go.
var (
	// ErrShortBuffer indicates fewer bytes were available than required.
	ErrShortBuffer = errors.New("ulog: short buffer")
	// ErrUnexpectedEOF indicates the byte source ended before a required read
	// could complete.
	ErrUnexpectedEOF = errors.New("ulog: unexpected eof")
	// ErrStateViolation indicates an engine method was called out of order,
	// e.g. querying before Open, or encountering a data-section tag while
	// still parsing definitions.
	ErrStateViolation = errors.New("ulog: state violation")
	// ErrSeekOutOfRange indicates a seek target fell outside [0, size()].
	ErrSeekOutOfRange = errors.New("ulog: seek out of range")
	// ErrNoRange names the case of a range query that matches no entries.
	// findRange and Engine.ResolveRange report that case through their ok
	// result and do not return this error.
	ErrNoRange = errors.New("ulog: no matching range")
)

// ErrInvalidMagic indicates the file header's magic bytes did not match.
type ErrInvalidMagic struct {
	Got []byte
}

func (e *ErrInvalidMagic) Error() string {
	return fmt.Sprintf("ulog: invalid magic bytes: % x", e.Got)
}

// ErrIncompatibleFlag indicates an incompatible FlagBits byte was set outside
// the one recognized bit (appended-data, byte 0).
type ErrIncompatibleFlag struct {
	ByteIndex int
	Value     byte
}

func (e *ErrIncompatibleFlag) Error() string {
	return fmt.Sprintf("ulog: incompatible flag byte %d has unrecognized value 0x%02x", e.ByteIndex, e.Value)
}

// ErrMalformedRecord indicates a record payload violated its tag's shape:
// too short, a keyLen overrunning the payload, or bad sync bytes. A
// non-positive array length in a field definition is reported as
// ErrBadFormat instead.
type ErrMalformedRecord struct {
	Offset int64
	Tag    byte
	Reason string
}

func (e *ErrMalformedRecord) Error() string {
	return fmt.Sprintf("ulog: malformed record (tag=%q offset=%d): %s", string(e.Tag), e.Offset, e.Reason)
}

// ErrBadFormat indicates a format or field-definition string could not be
// parsed.
type ErrBadFormat struct {
	Input  string
	Reason string
}

func (e *ErrBadFormat) Error() string {
	return fmt.Sprintf("ulog: bad format string %q: %s", e.Input, e.Reason)
}

// ErrUnknownType indicates a complex field referenced a message name not
// present in the definitions table.
type ErrUnknownType struct {
	TypeName string
}

func (e *ErrUnknownType) Error() string {
	return fmt.Sprintf("ulog: unknown type: %s", e.TypeName)
}

// ErrUnknownSubscription indicates a Data record referenced a msg_id never
// bound by an AddLogged record.
type ErrUnknownSubscription struct {
	MsgID  uint16
	Offset int64
}

func (e *ErrUnknownSubscription) Error() string {
	return fmt.Sprintf("ulog: unknown subscription msg_id=%d at offset %d", e.MsgID, e.Offset)
}

// ErrMissingTimestamp indicates a message definition has no top-level
// uint64_t timestamp field.
type ErrMissingTimestamp struct {
	MessageName string
}

func (e *ErrMissingTimestamp) Error() string {
	return fmt.Sprintf("ulog: message definition %q has no uint64_t timestamp field", e.MessageName)
}
