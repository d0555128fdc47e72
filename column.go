// Column type enum and schema key, the persisted vocabulary records are
// built from. Ordinal values are fixed (1..5) because they are written to
// disk; do not renumber them.
package strata

import (
	"io"
)

// ColumnType is a tagged enum over the five physical scalar types a column
// may hold. Values are persisted — never renumber.
type ColumnType uint16

const (
	ColumnBool ColumnType = iota + 1
	ColumnInt16
	ColumnUInt32
	ColumnInt32
	ColumnFloat32
)

// tag returns the physical primitive tag (§4.1) a ColumnType encodes as.
func (t ColumnType) tag() byte {
	switch t {
	case ColumnBool:
		return TagBool
	case ColumnInt16:
		return TagInt16
	case ColumnUInt32:
		return TagUInt32
	case ColumnInt32:
		return TagInt32
	case ColumnFloat32:
		return TagFloat32
	default:
		return 0
	}
}

// Width returns the column's physical byte width.
func (t ColumnType) Width() int {
	return primSize(t.tag())
}

// Valid reports whether t is one of the five declared column types.
func (t ColumnType) Valid() bool {
	return t >= ColumnBool && t <= ColumnFloat32
}

func (t ColumnType) String() string {
	switch t {
	case ColumnBool:
		return "Bool"
	case ColumnInt16:
		return "Int16"
	case ColumnUInt32:
		return "UInt32"
	case ColumnInt32:
		return "Int32"
	case ColumnFloat32:
		return "Float32"
	default:
		return "Unknown"
	}
}

// Column is a schema key: a name unique within a database paired with its
// physical type. Declaration order is significant — it defines record
// layout.
type Column struct {
	Name string
	Type ColumnType
}

// encode writes a Column: writeString(name) then writePrim('H', type).
func (c Column) encode(w io.Writer) error {
	if err := writeString(w, c.Name); err != nil {
		return err
	}
	return writePrim(w, TagUInt16, uint16(c.Type))
}

// decodeColumn reads a Column written by encode. offset annotates errors.
func decodeColumn(r io.Reader, offset int64) (Column, int64, error) {
	name, err := readString(r, offset)
	if err != nil {
		return Column{}, offset, err
	}
	nameLen := int64(1 + len(name))
	v, err := readPrim(r, TagUInt16, offset+nameLen)
	if err != nil {
		return Column{}, offset, err
	}
	typ := ColumnType(v.(uint16))
	if !typ.Valid() {
		return Column{}, offset, corruptf(offset+nameLen, "invalid column type %d", typ)
	}
	return Column{Name: name, Type: typ}, offset + nameLen + 2, nil
}

// zeroValue returns the column type's zero representation, used by
// addKey to widen existing rows and by Add to fill missing fields.
func (t ColumnType) zeroValue() any {
	switch t {
	case ColumnBool:
		return false
	case ColumnInt16:
		return int16(0)
	case ColumnUInt32:
		return uint32(0)
	case ColumnInt32:
		return int32(0)
	case ColumnFloat32:
		return float32(0)
	default:
		return nil
	}
}

// coerce converts v (typically from a caller-supplied field map) into the
// concrete Go value this column type expects, or ErrInvalidValue if it
// doesn't fit.
func (t ColumnType) coerce(v any) (any, error) {
	if v == nil {
		return nil, ErrInvalidValue
	}
	switch t {
	case ColumnBool:
		switch x := v.(type) {
		case bool:
			return x, nil
		}
	case ColumnInt16:
		switch x := v.(type) {
		case int16:
			return x, nil
		case int:
			if x < -32768 || x > 32767 {
				return nil, ErrInvalidValue
			}
			return int16(x), nil
		case float64:
			return int16(x), nil
		}
	case ColumnUInt32:
		switch x := v.(type) {
		case uint32:
			return x, nil
		case int:
			if x < 0 {
				return nil, ErrInvalidValue
			}
			return uint32(x), nil
		case float64:
			if x < 0 {
				return nil, ErrInvalidValue
			}
			return uint32(x), nil
		}
	case ColumnInt32:
		switch x := v.(type) {
		case int32:
			return x, nil
		case int:
			return int32(x), nil
		case float64:
			return int32(x), nil
		}
	case ColumnFloat32:
		switch x := v.(type) {
		case float32:
			return x, nil
		case float64:
			return float32(x), nil
		case int:
			return float32(x), nil
		}
	}
	return nil, ErrInvalidValue
}
