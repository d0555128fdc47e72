// JSON diagnostic snapshots of catalog and shard state.
//
// These types are a one-way transcription from the decoded in-memory
// structs to JSON for operational tooling — never a second wire format, and
// never read back by the engine.
package strata

import (
	"github.com/goccy/go-json"
)

// ColumnSnapshot is the JSON view of one schema column.
type ColumnSnapshot struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ArchiveSnapshot is the JSON view of one shard.
type ArchiveSnapshot struct {
	Index      uint16 `json:"index"`
	Resolution uint8  `json:"resolution"`
	MinRange   uint32 `json:"minRange"`
	MaxRange   uint32 `json:"maxRange"`
	KeyCount   int    `json:"keyCount"`
	IndexCount int    `json:"indexCount"`
}

// CatalogSnapshot is the JSON view of an entire database: its schema and
// every registered shard.
type CatalogSnapshot struct {
	DatabaseName  string            `json:"databaseName"`
	Revision      uint32            `json:"revision"`
	IndexInterval uint32            `json:"indexInterval"`
	ArchiveRange  string            `json:"archiveRange"`
	Recovered     bool              `json:"recovered"`
	Keys          []ColumnSnapshot  `json:"keys"`
	Archives      []ArchiveSnapshot `json:"archives"`
}

func columnSnapshots(cols []Column) []ColumnSnapshot {
	out := make([]ColumnSnapshot, len(cols))
	for i, c := range cols {
		out[i] = ColumnSnapshot{Name: c.Name, Type: c.Type.String()}
	}
	return out
}

// describe builds the JSON-serializable snapshot of this catalog. It does
// not open any shard's record file; shard bounds come from the catalog's
// descriptor table, and key/index counts from the in-memory header of the
// shards in loaded (zero for any shard not in loaded).
func (c *Catalog) describe(loaded map[uint16]*ArchiveStore) CatalogSnapshot {
	snap := CatalogSnapshot{
		DatabaseName:  c.file.DatabaseName,
		Revision:      c.file.Revision,
		IndexInterval: c.file.IndexInterval,
		ArchiveRange:  c.file.ArchiveRange.String(),
		Recovered:     c.recovered,
		Keys:          columnSnapshots(c.file.Keys),
	}
	for _, d := range c.file.Archives {
		as := ArchiveSnapshot{
			Index:      d.Index,
			Resolution: d.Resolution,
			MinRange:   d.MinRange,
			MaxRange:   d.MaxRange,
		}
		if store, ok := loaded[d.Index]; ok {
			as.KeyCount = len(store.header.Keys)
			as.IndexCount = len(store.header.Indices)
		}
		snap.Archives = append(snap.Archives, as)
	}
	return snap
}

// JSON marshals the snapshot using the same JSON library the teacher's
// tooling uses for anything that isn't part of an on-disk wire format.
func (s CatalogSnapshot) JSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}
