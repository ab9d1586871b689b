package ulog

import (
	"strconv"
	"strings"
)

// builtinWidths holds the byte width of each of the twelve ULog builtin
// primitive types. A field whose type is not a key of this map is complex
// and resolves its size recursively through the definitions table.
var builtinWidths = map[string]int{
	"bool":     1,
	"int8_t":   1,
	"uint8_t":  1,
	"char":     1,
	"int16_t":  2,
	"uint16_t": 2,
	"int32_t":  4,
	"uint32_t": 4,
	"float":    4,
	"int64_t":  8,
	"uint64_t": 8,
	"double":   8,
}

func isBuiltinType(t string) bool {
	_, ok := builtinWidths[t]
	return ok
}

// Field is one member of a MessageDefinition, parsed from a format string
// of the shape "type[arrayLength]? name".
type Field struct {
	Type        string
	Name        string
	ArrayLength int // 0 means the field is not an array.
	IsComplex   bool

	size      int // per-element size, memoized by fieldSize.
	sizeKnown bool
}

// IsPadding reports whether f is a padding field (name begins with "_").
// Padding fields participate in offset arithmetic but are excluded from
// decoded output.
func (f *Field) IsPadding() bool {
	return strings.HasPrefix(f.Name, "_")
}

// count returns the field's effective array length: arrayLength if present,
// else 1 for a scalar field.
func (f *Field) count() int {
	if f.ArrayLength > 0 {
		return f.ArrayLength
	}
	return 1
}

// MessageDefinition is a named, ordered list of fields parsed from an `F`
// record's format string.
type MessageDefinition struct {
	Name   string
	Format string
	Fields []*Field

	size      int // total byte size, memoized by messageSize.
	sizeKnown bool
}

// parseFieldDefinition parses a single "type[len]? name" field string, the
// grammar shared by message fields and by Information/Parameter record keys.
func parseFieldDefinition(s string) (*Field, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, &ErrBadFormat{Input: s, Reason: "empty field"}
	}
	parts := strings.Fields(trimmed)
	if len(parts) != 2 {
		return nil, &ErrBadFormat{Input: s, Reason: `expected "type name"`}
	}
	typeToken, name := parts[0], parts[1]

	typeName := typeToken
	arrayLength := 0
	if idx := strings.IndexByte(typeToken, '['); idx >= 0 {
		if !strings.HasSuffix(typeToken, "]") {
			return nil, &ErrBadFormat{Input: s, Reason: "unterminated array bracket"}
		}
		typeName = typeToken[:idx]
		lenStr := typeToken[idx+1 : len(typeToken)-1]
		n, err := strconv.Atoi(lenStr)
		if err != nil {
			return nil, &ErrBadFormat{Input: s, Reason: "invalid array length: " + lenStr}
		}
		if n <= 0 {
			return nil, &ErrBadFormat{Input: s, Reason: "array length must be positive"}
		}
		arrayLength = n
	}
	if typeName == "" {
		return nil, &ErrBadFormat{Input: s, Reason: "empty type"}
	}

	return &Field{
		Type:        typeName,
		Name:        name,
		ArrayLength: arrayLength,
		IsComplex:   !isBuiltinType(typeName),
	}, nil
}

// parseMessageDefinition parses a full format string of the shape
// "name:type1 field1;type2[N] field2;...". A trailing ";" is tolerated but
// not required; empty fields between ";" separators are silently skipped.
func parseMessageDefinition(s string) (*MessageDefinition, error) {
	idx := strings.IndexByte(s, ':')
	if idx < 0 {
		return nil, &ErrBadFormat{Input: s, Reason: `missing ":" after message name`}
	}
	name := strings.TrimSpace(s[:idx])
	if name == "" {
		return nil, &ErrBadFormat{Input: s, Reason: "empty message name"}
	}

	var fields []*Field
	for _, raw := range strings.Split(s[idx+1:], ";") {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		f, err := parseFieldDefinition(trimmed)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}

	return &MessageDefinition{
		Name:   name,
		Format: s,
		Fields: fields,
	}, nil
}

// fieldSize returns the per-element size of f in bytes, memoizing the result
// on f. Complex fields resolve their size recursively through defs. Per the
// convention pinned by this implementation, the memoized size is per-element:
// callers multiply by f.count() (i.e. arrayLength, or 1 for scalars) when
// walking offsets.
func fieldSize(f *Field, defs map[string]*MessageDefinition) (int, error) {
	if f.sizeKnown {
		return f.size, nil
	}
	var sz int
	if !f.IsComplex {
		w, ok := builtinWidths[f.Type]
		if !ok {
			return 0, &ErrUnknownType{TypeName: f.Type}
		}
		sz = w
	} else {
		def, ok := defs[f.Type]
		if !ok {
			return 0, &ErrUnknownType{TypeName: f.Type}
		}
		s, err := messageSize(def, defs)
		if err != nil {
			return 0, err
		}
		sz = s
	}
	f.size = sz
	f.sizeKnown = true
	return sz, nil
}

// messageSize returns the total byte size of def (the sum of each field's
// fieldSize times its array length, including padding fields), memoizing the
// result on def.
func messageSize(def *MessageDefinition, defs map[string]*MessageDefinition) (int, error) {
	if def.sizeKnown {
		return def.size, nil
	}
	total := 0
	for _, f := range def.Fields {
		elemSize, err := fieldSize(f, defs)
		if err != nil {
			return 0, err
		}
		total += elemSize * f.count()
	}
	def.size = total
	def.sizeKnown = true
	return total, nil
}
