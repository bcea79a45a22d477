package cache

import (
	"strings"
	"testing"
)

func TestSessionEntryRejectsLongFields(t *testing.T) {
	long := strings.Repeat("x", 256)
	if _, err := EncodeSessionEntry(&SessionEntry{TeacherID: long}); err == nil {
		t.Fatal("expected error for long teacher id")
	}
	if _, err := EncodeSessionEntry(&SessionEntry{ClassIDs: []string{long}}); err == nil {
		t.Fatal("expected error for long class id")
	}
	classes := make([]string, 256)
	if _, err := EncodeSessionEntry(&SessionEntry{ClassIDs: classes}); err == nil {
		t.Fatal("expected error for too many classes")
	}
}

func TestSessionEntryCarriesDeadline(t *testing.T) {
	in := &SessionEntry{TeacherID: "t1", CourseID: "c1", ClassIDs: []string{"A", "B"}, StartedAt: 1700000000, EndsAt: 1700000180}
	data, err := EncodeSessionEntry(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if data[0] != entryFormatVersionCurrent {
		t.Fatalf("unexpected version byte %d", data[0])
	}
	out, err := DecodeSessionEntry(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.StartedAt != in.StartedAt || out.EndsAt != in.EndsAt {
		t.Fatalf("times mismatch: %+v", out)
	}

	// An entry written before the deadline was encoded is rejected.
	if _, err := DecodeSessionEntry(append([]byte{1}, data[1:len(data)-8]...)); err == nil {
		t.Fatal("expected previous format version to fail")
	}
}

func TestSessionEntryDecodeRejectsCorruptData(t *testing.T) {
	data, err := EncodeSessionEntry(&SessionEntry{TeacherID: "t1", CourseID: "c1", ClassIDs: []string{"A"}, StartedAt: 42})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	cases := map[string][]byte{
		"empty":         {},
		"bad version":   append([]byte{9}, data[1:]...),
		"truncated":     data[:len(data)-3],
		"trailing byte": append(append([]byte{}, data...), 0x00),
	}
	for name, blob := range cases {
		if _, err := DecodeSessionEntry(blob); err == nil {
			t.Fatalf("%s: expected decode error", name)
		}
	}
}

func TestNonceRecordDecodeRejectsCorruptData(t *testing.T) {
	data, err := EncodeNonceRecord(&NonceRecord{SessionID: "s1", IssuedAt: 10, ExpiresAt: 15})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeNonceRecord(data[:len(data)-1]); err == nil {
		t.Fatal("expected truncated record to fail")
	}
	if _, err := DecodeNonceRecord(append([]byte{2}, data[1:]...)); err == nil {
		t.Fatal("expected unknown version to fail")
	}
}

func FuzzDecodeSessionEntry(f *testing.F) {
	seed, _ := EncodeSessionEntry(&SessionEntry{TeacherID: "t", CourseID: "c", ClassIDs: []string{"A", "B"}, StartedAt: 1, EndsAt: 2})
	f.Add(seed)
	f.Add([]byte{1, 0, 0, 0})
	f.Fuzz(func(t *testing.T, data []byte) {
		entry, err := DecodeSessionEntry(data)
		if err != nil {
			return
		}
		again, err := EncodeSessionEntry(entry)
		if err != nil {
			t.Fatalf("re-encode decoded entry: %v", err)
		}
		if string(again) != string(data) {
			t.Fatalf("decode/encode not stable")
		}
	})
}
