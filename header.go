// Archive header: the full contents of a shard's .strdridx file — fixed
// prefix fields, the column schema, and the sparse index entries.
//
// Every multi-byte field is little-endian; readers must verify both the
// magic string and CurrentRevision before trusting the rest of the layout
// (§6). Unlike the source material's JSON-with-padding header, this format
// has no fixed total size: it grows with KeyCount and IndexCount, which is
// why encode/decode walk the fields in declared order rather than seeking
// to constant byte offsets.
package strata

import (
	"bytes"
	"io"
)

// CurrentRevision is the on-disk format revision this package reads and
// writes. Readers encountering any other revision MUST refuse to open.
const CurrentRevision = 0

// ArchiveMagic is the literal magic string persisted at the start of every
// .strdridx file. Readers MUST verify it.
const ArchiveMagic = "strdridx"

// IndexEntryType is a reserved tag on index entries; current writers only
// ever emit Default.
type IndexEntryType uint16

const (
	IndexDefault IndexEntryType = iota + 1
	IndexStart
	IndexEnd
)

// IndexEntry is a sparse lookup pointer: the first record with
// timestamp >= Timestamp lives at byte Offset in the record file.
type IndexEntry struct {
	Timestamp uint32
	Offset    uint32
	Type      IndexEntryType
}

const indexEntrySize = 4 + 4 + 2

func (e IndexEntry) encode(w io.Writer) error {
	if err := writePrim(w, TagUInt32, e.Timestamp); err != nil {
		return err
	}
	if err := writePrim(w, TagUInt32, e.Offset); err != nil {
		return err
	}
	return writePrim(w, TagUInt16, uint16(e.Type))
}

func decodeIndexEntry(r io.Reader, offset int64) (IndexEntry, error) {
	ts, err := readPrim(r, TagUInt32, offset)
	if err != nil {
		return IndexEntry{}, err
	}
	off, err := readPrim(r, TagUInt32, offset+4)
	if err != nil {
		return IndexEntry{}, err
	}
	typ, err := readPrim(r, TagUInt16, offset+8)
	if err != nil {
		return IndexEntry{}, err
	}
	return IndexEntry{
		Timestamp: ts.(uint32),
		Offset:    off.(uint32),
		Type:      IndexEntryType(typ.(uint16)),
	}, nil
}

// ArchiveHeader is the complete, in-order content of a .strdridx file.
type ArchiveHeader struct {
	Revision      uint32
	Resolution    uint8
	MinRange      uint32
	MaxRange      uint32
	Index         uint16
	KeyCount      uint16
	IndexCount    uint16
	IndexInterval uint32
	Keys          []Column
	Indices       []IndexEntry
}

// encode writes the full header — fixed prefix, then KeyCount columns, then
// IndexCount index entries — to w.
func (h *ArchiveHeader) encode(w io.Writer) error {
	if err := writeString(w, ArchiveMagic); err != nil {
		return err
	}
	if err := writePrim(w, TagUInt32, h.Revision); err != nil {
		return err
	}
	if err := writePrim(w, TagUInt8, h.Resolution); err != nil {
		return err
	}
	if err := writePrim(w, TagUInt32, h.MinRange); err != nil {
		return err
	}
	if err := writePrim(w, TagUInt32, h.MaxRange); err != nil {
		return err
	}
	if err := writePrim(w, TagUInt16, h.Index); err != nil {
		return err
	}
	if err := writePrim(w, TagUInt16, uint16(len(h.Keys))); err != nil {
		return err
	}
	if err := writePrim(w, TagUInt16, uint16(len(h.Indices))); err != nil {
		return err
	}
	if err := writePrim(w, TagUInt32, h.IndexInterval); err != nil {
		return err
	}
	for _, k := range h.Keys {
		if err := k.encode(w); err != nil {
			return err
		}
	}
	for _, idx := range h.Indices {
		if err := idx.encode(w); err != nil {
			return err
		}
	}
	return nil
}

// decodeArchiveHeader parses a full ArchiveHeader from r, verifying the
// magic string and revision.
func decodeArchiveHeader(r io.Reader) (*ArchiveHeader, error) {
	var offset int64

	magic, err := readString(r, offset)
	if err != nil {
		return nil, err
	}
	offset += int64(1 + len(magic))
	if magic != ArchiveMagic {
		return nil, corruptf(0, "bad archive magic %q", magic)
	}

	rev, err := readPrim(r, TagUInt32, offset)
	if err != nil {
		return nil, err
	}
	offset += 4
	if rev.(uint32) != CurrentRevision {
		return nil, corruptf(offset-4, "unsupported archive revision %d", rev)
	}

	res, err := readPrim(r, TagUInt8, offset)
	if err != nil {
		return nil, err
	}
	offset++

	minR, err := readPrim(r, TagUInt32, offset)
	if err != nil {
		return nil, err
	}
	offset += 4

	maxR, err := readPrim(r, TagUInt32, offset)
	if err != nil {
		return nil, err
	}
	offset += 4

	idx, err := readPrim(r, TagUInt16, offset)
	if err != nil {
		return nil, err
	}
	offset += 2

	keyCount, err := readPrim(r, TagUInt16, offset)
	if err != nil {
		return nil, err
	}
	offset += 2

	indexCount, err := readPrim(r, TagUInt16, offset)
	if err != nil {
		return nil, err
	}
	offset += 2

	interval, err := readPrim(r, TagUInt32, offset)
	if err != nil {
		return nil, err
	}
	offset += 4

	h := &ArchiveHeader{
		Revision:      rev.(uint32),
		Resolution:    res.(uint8),
		MinRange:      minR.(uint32),
		MaxRange:      maxR.(uint32),
		Index:         idx.(uint16),
		KeyCount:      keyCount.(uint16),
		IndexCount:    indexCount.(uint16),
		IndexInterval: interval.(uint32),
	}

	for i := 0; i < int(h.KeyCount); i++ {
		col, next, err := decodeColumn(r, offset)
		if err != nil {
			return nil, err
		}
		h.Keys = append(h.Keys, col)
		offset = next
	}

	for i := 0; i < int(h.IndexCount); i++ {
		e, err := decodeIndexEntry(r, offset)
		if err != nil {
			return nil, err
		}
		h.Indices = append(h.Indices, e)
		offset += indexEntrySize
	}

	return h, nil
}

// bytes encodes the header to a standalone buffer (used for atomic rewrite).
func (h *ArchiveHeader) bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := h.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
