// Concrete end-to-end scenarios over a Week-range database, one per
// documented testable property.
package strata

import (
	"errors"
	"testing"
)

func TestScenarioAddKeySingleInsertQuery(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, "sensors", RangeWeek, DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if err := s.AddKey("v", ColumnFloat32); err != nil {
		t.Fatalf("AddKey: %v", err)
	}
	if err := s.Add(ts("2024-05-10T15:30:30Z"), map[string]any{"v": float32(5.0)}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	rows, err := s.Query(ts("2024-05-10T15:00:00Z"), ts("2024-05-10T16:00:00Z"), "", true, false)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	got, ok := rows.([]Row)
	if !ok || len(got) != 1 {
		t.Fatalf("Query = %#v, want 1 row", rows)
	}
}

func TestScenarioSequenceViolation(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, "sensors", RangeWeek, DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if err := s.AddKey("v", ColumnFloat32); err != nil {
		t.Fatalf("AddKey: %v", err)
	}
	if err := s.Add(ts("2024-05-10T15:30:30Z"), map[string]any{"v": float32(5.0)}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	err = s.Add(ts("2024-05-10T14:30:30Z"), map[string]any{"v": float32(5.0)})
	if !errors.Is(err, ErrSequenceViolation) {
		t.Fatalf("Add out-of-order = %v, want ErrSequenceViolation", err)
	}
}

func TestScenarioDuplicateColumn(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, "sensors", RangeWeek, DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if err := s.AddKey("v", ColumnFloat32); err != nil {
		t.Fatalf("AddKey: %v", err)
	}
	if err := s.AddKey("v", ColumnFloat32); !errors.Is(err, ErrKeyAlreadyExists) {
		t.Fatalf("duplicate AddKey = %v, want ErrKeyAlreadyExists", err)
	}
}

func TestScenarioCrossShardBulkInsert(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, "sensors", RangeWeek, DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if err := s.AddKey("v", ColumnFloat32); err != nil {
		t.Fatalf("AddKey: %v", err)
	}
	entries := []Entry{
		{Timestamp: ts("2024-05-10T15:30:30Z"), Fields: map[string]any{"v": float32(5.0)}},
		{Timestamp: ts("2024-05-11T15:30:30Z"), Fields: map[string]any{"v": float32(5.0)}},
		{Timestamp: ts("2024-05-12T15:30:30Z"), Fields: map[string]any{"v": float32(5.0)}},
		{Timestamp: ts("2024-05-13T15:30:30Z"), Fields: map[string]any{"v": float32(5.0)}},
	}
	if err := s.BulkAdd(entries); err != nil {
		t.Fatalf("BulkAdd: %v", err)
	}

	all, err := s.Query(ts("2024-05-10T15:00:00Z"), ts("2024-05-13T16:00:00Z"), "", true, false)
	if err != nil {
		t.Fatalf("Query full range: %v", err)
	}
	if got := all.([]Row); len(got) != 4 {
		t.Errorf("full-range Query returned %d rows, want 4", len(got))
	}

	firstTwo, err := s.Query(ts("2024-05-10T15:00:00Z"), ts("2024-05-11T16:00:00Z"), "", true, false)
	if err != nil {
		t.Fatalf("Query first two days: %v", err)
	}
	if got := firstTwo.([]Row); len(got) != 2 {
		t.Errorf("first-two-days Query returned %d rows, want 2", len(got))
	}
}

func TestScenarioInvalidPayload(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, "sensors", RangeWeek, DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if err := s.AddKey("v", ColumnFloat32); err != nil {
		t.Fatalf("AddKey: %v", err)
	}

	err = s.Add(ts("2024-05-10T15:30:30Z"), map[string]any{"v": nil})
	if !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("Add with nil value = %v, want ErrInvalidValue", err)
	}

	err = s.Add(ts("2024-05-10T15:30:30Z"), map[string]any{})
	if !errors.Is(err, ErrEmptyPayload) {
		t.Fatalf("Add with empty payload = %v, want ErrEmptyPayload", err)
	}
}
