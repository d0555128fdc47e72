// Archive fingerprint tests.
package strata

import "testing"

func TestVerifyFingerprintStableAcrossCalls(t *testing.T) {
	_, store := openTestArchive(t)
	store.writeRecords([]Row{
		{Timestamp: ts("2024-05-10T15:30:00Z"), Values: []any{float32(1)}},
		{Timestamp: ts("2024-05-10T15:31:00Z"), Values: []any{float32(2)}},
	})

	fp1, err := store.verify(AlgXXHash3)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	fp2, err := store.verify(AlgXXHash3)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if fp1.Digest != fp2.Digest {
		t.Errorf("digest changed between calls with no writes: %q vs %q", fp1.Digest, fp2.Digest)
	}
	if fp1.RecordCount != 2 {
		t.Errorf("RecordCount = %d, want 2", fp1.RecordCount)
	}
}

func TestVerifyFingerprintChangesAfterAppend(t *testing.T) {
	_, store := openTestArchive(t)
	store.writeRecords([]Row{{Timestamp: ts("2024-05-10T15:30:00Z"), Values: []any{float32(1)}}})

	before, err := store.verify(AlgXXHash3)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}

	store.writeRecords([]Row{{Timestamp: ts("2024-05-10T15:31:00Z"), Values: []any{float32(2)}}})

	after, err := store.verify(AlgXXHash3)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if before.Digest == after.Digest {
		t.Error("digest did not change after an append")
	}
	if after.RecordCount != 2 {
		t.Errorf("RecordCount after append = %d, want 2", after.RecordCount)
	}
}

func TestVerifyBothAlgorithmsProduceDistinctDigests(t *testing.T) {
	_, store := openTestArchive(t)
	store.writeRecords([]Row{{Timestamp: ts("2024-05-10T15:30:00Z"), Values: []any{float32(1)}}})

	xx, err := store.verify(AlgXXHash3)
	if err != nil {
		t.Fatalf("verify xxh3: %v", err)
	}
	b2, err := store.verify(AlgBlake2b)
	if err != nil {
		t.Fatalf("verify blake2b: %v", err)
	}
	if xx.Digest == "" || b2.Digest == "" {
		t.Fatal("expected non-empty digests from both algorithms")
	}
	if xx.Digest == b2.Digest {
		t.Error("xxh3 and blake2b produced identical digests")
	}
}

func TestVerifyRejectsUnknownAlgorithm(t *testing.T) {
	_, store := openTestArchive(t)
	if _, err := store.verify(99); err == nil {
		t.Fatal("expected error for an unknown checksum algorithm")
	}
}
