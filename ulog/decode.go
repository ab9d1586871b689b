package ulog

import "fmt"

// Message is a decoded value tree: each non-padding field becomes a named
// member whose value is a primitive, a slice of primitives, a nested
// Message, a slice of nested Messages, or (for char arrays) a string. It is
// plain Go data and marshals directly with encoding/json.
type Message map[string]any

// DecodeMessage decodes def's fields out of data starting at offset,
// producing a Message value tree. defs resolves complex field types.
//
// Fields are walked in declaration order; the cursor advances by
// fieldSize(f, defs) * count(f) whether or not the field is padding, so that
// offset arithmetic stays correct even for fields excluded from the output.
func DecodeMessage(def *MessageDefinition, defs map[string]*MessageDefinition, data []byte, offset int) (Message, error) {
	msg := make(Message, len(def.Fields))
	cur := offset

	for _, f := range def.Fields {
		elemSize, err := fieldSize(f, defs)
		if err != nil {
			return nil, err
		}
		count := f.count()
		total := elemSize * count

		if f.IsPadding() {
			cur += total
			continue
		}

		value, err := decodeField(f, defs, elemSize, count, data, cur)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		msg[f.Name] = value
		cur += total
	}

	return msg, nil
}

func decodeField(f *Field, defs map[string]*MessageDefinition, elemSize, count int, data []byte, offset int) (any, error) {
	if f.IsComplex {
		elemDef, ok := defs[f.Type]
		if !ok {
			return nil, &ErrUnknownType{TypeName: f.Type}
		}
		if f.ArrayLength == 0 {
			return DecodeMessage(elemDef, defs, data, offset)
		}
		arr := make([]Message, count)
		for i := 0; i < count; i++ {
			child, err := DecodeMessage(elemDef, defs, data, offset+i*elemSize)
			if err != nil {
				return nil, err
			}
			arr[i] = child
		}
		return arr, nil
	}

	if f.Type == "char" && f.ArrayLength > 0 {
		return decodeCharArray(data, offset, count), nil
	}

	if f.ArrayLength == 0 {
		return decodePrimitive(f.Type, data, offset)
	}

	arr := make([]any, count)
	for i := 0; i < count; i++ {
		v, err := decodePrimitive(f.Type, data, offset+i*elemSize)
		if err != nil {
			return nil, err
		}
		arr[i] = v
	}
	return arr, nil
}

// decodeCharArray decodes a char[N] field as a UTF-8 string, truncated to
// however many of the N bytes actually remain in data (spec §4.4).
func decodeCharArray(data []byte, offset, n int) string {
	remaining := len(data) - offset
	if remaining < 0 {
		remaining = 0
	}
	if n > remaining {
		n = remaining
	}
	if n <= 0 {
		return ""
	}
	return string(data[offset : offset+n])
}

func sliceAt(data []byte, offset, width int) ([]byte, error) {
	if offset < 0 || offset+width > len(data) {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortBuffer, width, offset, len(data)-offset)
	}
	return data[offset : offset+width], nil
}

func decodePrimitive(typeName string, data []byte, offset int) (any, error) {
	switch typeName {
	case "bool":
		b, err := sliceAt(data, offset, 1)
		if err != nil {
			return nil, err
		}
		return b[0] != 0, nil
	case "int8_t":
		b, err := sliceAt(data, offset, 1)
		if err != nil {
			return nil, err
		}
		return int8(b[0]), nil
	case "uint8_t":
		b, err := sliceAt(data, offset, 1)
		if err != nil {
			return nil, err
		}
		return b[0], nil
	case "char":
		b, err := sliceAt(data, offset, 1)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case "int16_t":
		b, err := sliceAt(data, offset, 2)
		if err != nil {
			return nil, err
		}
		return leInt16(b), nil
	case "uint16_t":
		b, err := sliceAt(data, offset, 2)
		if err != nil {
			return nil, err
		}
		return leUint16(b), nil
	case "int32_t":
		b, err := sliceAt(data, offset, 4)
		if err != nil {
			return nil, err
		}
		return leInt32(b), nil
	case "uint32_t":
		b, err := sliceAt(data, offset, 4)
		if err != nil {
			return nil, err
		}
		return leUint32(b), nil
	case "float":
		b, err := sliceAt(data, offset, 4)
		if err != nil {
			return nil, err
		}
		return leFloat32(b), nil
	case "int64_t":
		b, err := sliceAt(data, offset, 8)
		if err != nil {
			return nil, err
		}
		return leInt64(b), nil
	case "uint64_t":
		b, err := sliceAt(data, offset, 8)
		if err != nil {
			return nil, err
		}
		return leUint64(b), nil
	case "double":
		b, err := sliceAt(data, offset, 8)
		if err != nil {
			return nil, err
		}
		return leFloat64(b), nil
	default:
		return nil, &ErrUnknownType{TypeName: typeName}
	}
}
