// Record format and the packed-row codec.
//
// A record is a fixed-width row: a u32 timestamp followed by one field per
// column in schema order. The record format string is the concatenation of
// column type tags, prefixed with the timestamp tag 'I' — e.g. a shard with
// columns (Int16, Float32) has record format "I" + "h" + "f" = "Ihf".
// packRecords packs N rows into one contiguous buffer in a single
// pass, because one large write is materially faster than N small ones
// (§4.1) — the same reasoning the source material applies to its own
// bulk append path.
package strata

import (
	"bytes"
	"io"
)

// recordFormat returns the format string for a shard with the given
// columns: the timestamp tag 'I' followed by each column's physical tag,
// in schema order.
func recordFormat(columns []Column) string {
	tags := make([]byte, 0, 1+len(columns))
	tags = append(tags, TagUInt32)
	for _, c := range columns {
		tags = append(tags, c.Type.tag())
	}
	return string(tags)
}

// recordWidth returns the total byte width of one record under format.
func recordWidth(format string) int {
	w := 0
	for i := 0; i < len(format); i++ {
		w += primSize(format[i])
	}
	return w
}

// Row is one decoded record: a timestamp plus one value per column, in
// schema order. Values are boxed Go primitives matching each column's
// physical type (bool, int16, uint32, int32, float32).
type Row struct {
	Timestamp uint32
	Values    []any
}

// packRecord writes one row under format to w.
func packRecord(w io.Writer, format string, row Row) error {
	if err := writePrim(w, format[0], row.Timestamp); err != nil {
		return err
	}
	if len(row.Values) != len(format)-1 {
		return ErrInvalidValue
	}
	for i, v := range row.Values {
		if err := writePrim(w, format[i+1], v); err != nil {
			return err
		}
	}
	return nil
}

// packRecords packs rows into one contiguous buffer — a single write call
// is significantly faster than packing and writing N times.
func packRecords(format string, rows []Row) ([]byte, error) {
	width := recordWidth(format)
	buf := bytes.NewBuffer(make([]byte, 0, width*len(rows)))
	for _, row := range rows {
		if err := packRecord(buf, format, row); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// unpackRecord reads one row from data, which must be exactly
// recordWidth(format) bytes.
func unpackRecord(format string, data []byte) (Row, error) {
	if len(data) != recordWidth(format) {
		return Row{}, corruptf(0, "record length %d does not match format width %d", len(data), recordWidth(format))
	}
	r := bytes.NewReader(data)
	ts, err := readPrim(r, format[0], 0)
	if err != nil {
		return Row{}, err
	}
	values := make([]any, len(format)-1)
	offset := int64(primSize(format[0]))
	for i := 1; i < len(format); i++ {
		v, err := readPrim(r, format[i], offset)
		if err != nil {
			return Row{}, err
		}
		values[i-1] = v
		offset += int64(primSize(format[i]))
	}
	return Row{Timestamp: ts.(uint32), Values: values}, nil
}

// unpackRecords decodes every fixed-width record in data, which must be an
// exact multiple of recordWidth(format) — the buffered bulk-unpack path
// range reads use to decode many records per syscall instead of one.
func unpackRecords(format string, data []byte) ([]Row, error) {
	width := recordWidth(format)
	if width == 0 || len(data)%width != 0 {
		return nil, corruptf(0, "record file length %d is not a multiple of record width %d", len(data), width)
	}
	rows := make([]Row, 0, len(data)/width)
	for off := 0; off < len(data); off += width {
		row, err := unpackRecord(format, data[off:off+width])
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// widenRow appends a zero value of the given type to row's values, used by
// addKey to widen every existing row when a column is added.
func widenRow(row Row, t ColumnType) Row {
	values := make([]any, len(row.Values)+1)
	copy(values, row.Values)
	values[len(row.Values)] = t.zeroValue()
	return Row{Timestamp: row.Timestamp, Values: values}
}
