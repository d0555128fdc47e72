// Archive header encode/decode tests.
package strata

import (
	"bytes"
	"testing"
)

func sampleHeader() *ArchiveHeader {
	return &ArchiveHeader{
		Revision:      CurrentRevision,
		Resolution:    0,
		MinRange:      ts("2024-05-10T00:00:00Z"),
		MaxRange:      ts("2024-05-17T00:00:00Z"),
		Index:         1,
		IndexInterval: 3600,
		Keys: []Column{
			{Name: "v", Type: ColumnFloat32},
			{Name: "flag", Type: ColumnBool},
		},
		Indices: []IndexEntry{
			{Timestamp: ts("2024-05-10T01:00:00Z"), Offset: 0, Type: IndexDefault},
			{Timestamp: ts("2024-05-10T02:00:00Z"), Offset: 24, Type: IndexDefault},
		},
	}
}

func TestArchiveHeaderRoundTrip(t *testing.T) {
	h := sampleHeader()
	buf, err := h.bytes()
	if err != nil {
		t.Fatalf("bytes: %v", err)
	}

	got, err := decodeArchiveHeader(bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("decodeArchiveHeader: %v", err)
	}

	if got.MinRange != h.MinRange || got.MaxRange != h.MaxRange || got.Index != h.Index {
		t.Errorf("decoded prefix mismatch: %+v", got)
	}
	if len(got.Keys) != len(h.Keys) || got.Keys[0] != h.Keys[0] {
		t.Errorf("decoded keys mismatch: %+v", got.Keys)
	}
	if len(got.Indices) != len(h.Indices) || got.Indices[1] != h.Indices[1] {
		t.Errorf("decoded indices mismatch: %+v", got.Indices)
	}
}

func TestArchiveHeaderRejectsBadMagic(t *testing.T) {
	var buf bytes.Buffer
	writeString(&buf, "notanindex")
	_, err := decodeArchiveHeader(&buf)
	if err == nil {
		t.Fatal("expected error for bad magic")
	}
	if _, ok := err.(*CorruptError); !ok {
		t.Fatalf("expected *CorruptError, got %T", err)
	}
}

func TestArchiveHeaderRejectsFutureRevision(t *testing.T) {
	h := sampleHeader()
	h.Revision = CurrentRevision + 1
	buf, err := h.bytes()
	if err != nil {
		t.Fatalf("bytes: %v", err)
	}
	_, err = decodeArchiveHeader(bytes.NewReader(buf))
	if err == nil {
		t.Fatal("expected error decoding header with unsupported revision")
	}
}

func TestIndexEntryRoundTrip(t *testing.T) {
	e := IndexEntry{Timestamp: 100, Offset: 240, Type: IndexDefault}
	var buf bytes.Buffer
	if err := e.encode(&buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := decodeIndexEntry(&buf, 0)
	if err != nil {
		t.Fatalf("decodeIndexEntry: %v", err)
	}
	if got != e {
		t.Errorf("decodeIndexEntry = %+v, want %+v", got, e)
	}
}
