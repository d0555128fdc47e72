// Catalog file: the full contents of a database's db.strdr file — the
// shard descriptor table and the column schema shared by every shard.
package strata

import (
	"bytes"
	"io"
)

// CatalogMagic is the literal magic string persisted at the start of every
// db.strdr file. Readers MUST verify it.
const CatalogMagic = "strdrdb"

// ShardDescriptor is a catalog-level record of one archive shard.
// MinRange is the shard key; MaxRange = MinRange + period(MinRange).
// Index is the 1-based ordinal used in the shard's file names.
// Resolution is reserved (always zero in this revision) so that two shards
// sharing a range but differing resolution may coexist in the future.
type ShardDescriptor struct {
	MinRange   uint32
	MaxRange   uint32
	Index      uint16
	Resolution uint8
}

const shardDescriptorSize = 4 + 4 + 2 + 1

func (s ShardDescriptor) encode(w io.Writer) error {
	if err := writePrim(w, TagUInt32, s.MinRange); err != nil {
		return err
	}
	if err := writePrim(w, TagUInt32, s.MaxRange); err != nil {
		return err
	}
	if err := writePrim(w, TagUInt16, s.Index); err != nil {
		return err
	}
	return writePrim(w, TagUInt8, s.Resolution)
}

func decodeShardDescriptor(r io.Reader, offset int64) (ShardDescriptor, error) {
	minR, err := readPrim(r, TagUInt32, offset)
	if err != nil {
		return ShardDescriptor{}, err
	}
	maxR, err := readPrim(r, TagUInt32, offset+4)
	if err != nil {
		return ShardDescriptor{}, err
	}
	idx, err := readPrim(r, TagUInt16, offset+8)
	if err != nil {
		return ShardDescriptor{}, err
	}
	res, err := readPrim(r, TagUInt8, offset+10)
	if err != nil {
		return ShardDescriptor{}, err
	}
	return ShardDescriptor{
		MinRange:   minR.(uint32),
		MaxRange:   maxR.(uint32),
		Index:      idx.(uint16),
		Resolution: res.(uint8),
	}, nil
}

// DatabaseFile is the complete, in-order content of a db.strdr file.
type DatabaseFile struct {
	Revision      uint32
	DatabaseName  string
	IndexInterval uint32
	ArchiveRange  ArchiveRange
	Archives      []ShardDescriptor
	Keys          []Column
}

// encode writes magic, fixed prefix, archive descriptors, then columns.
func (d *DatabaseFile) encode(w io.Writer) error {
	if err := writeString(w, CatalogMagic); err != nil {
		return err
	}
	if err := writePrim(w, TagUInt32, d.Revision); err != nil {
		return err
	}
	if err := writeString(w, d.DatabaseName); err != nil {
		return err
	}
	if err := writePrim(w, TagUInt16, uint16(len(d.Archives))); err != nil {
		return err
	}
	if err := writePrim(w, TagUInt16, uint16(len(d.Keys))); err != nil {
		return err
	}
	if err := writePrim(w, TagUInt32, d.IndexInterval); err != nil {
		return err
	}
	if err := writePrim(w, TagUInt16, uint16(d.ArchiveRange)); err != nil {
		return err
	}
	for _, a := range d.Archives {
		if err := a.encode(w); err != nil {
			return err
		}
	}
	for _, k := range d.Keys {
		if err := k.encode(w); err != nil {
			return err
		}
	}
	return nil
}

// decodeDatabaseFile parses a full DatabaseFile from r, verifying the magic
// string and revision.
func decodeDatabaseFile(r io.Reader) (*DatabaseFile, error) {
	var offset int64

	magic, err := readString(r, offset)
	if err != nil {
		return nil, err
	}
	offset += int64(1 + len(magic))
	if magic != CatalogMagic {
		return nil, corruptf(0, "bad catalog magic %q", magic)
	}

	rev, err := readPrim(r, TagUInt32, offset)
	if err != nil {
		return nil, err
	}
	offset += 4
	if rev.(uint32) != CurrentRevision {
		return nil, corruptf(offset-4, "unsupported catalog revision %d", rev)
	}

	name, err := readString(r, offset)
	if err != nil {
		return nil, err
	}
	offset += int64(1 + len(name))

	archiveCount, err := readPrim(r, TagUInt16, offset)
	if err != nil {
		return nil, err
	}
	offset += 2

	keyCount, err := readPrim(r, TagUInt16, offset)
	if err != nil {
		return nil, err
	}
	offset += 2

	interval, err := readPrim(r, TagUInt32, offset)
	if err != nil {
		return nil, err
	}
	offset += 4

	rangeVal, err := readPrim(r, TagUInt16, offset)
	if err != nil {
		return nil, err
	}
	offset += 2

	ar := ArchiveRange(rangeVal.(uint16))
	if !ar.Valid() {
		return nil, corruptf(offset-2, "invalid archive range %d", rangeVal)
	}

	d := &DatabaseFile{
		Revision:      rev.(uint32),
		DatabaseName:  name,
		IndexInterval: interval.(uint32),
		ArchiveRange:  ar,
	}

	for i := 0; i < int(archiveCount.(uint16)); i++ {
		sd, err := decodeShardDescriptor(r, offset)
		if err != nil {
			return nil, err
		}
		d.Archives = append(d.Archives, sd)
		offset += shardDescriptorSize
	}

	for i := 0; i < int(keyCount.(uint16)); i++ {
		col, next, err := decodeColumn(r, offset)
		if err != nil {
			return nil, err
		}
		d.Keys = append(d.Keys, col)
		offset = next
	}

	return d, nil
}

func (d *DatabaseFile) bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
