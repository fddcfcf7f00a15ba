package hashutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestHashBytes_KnownVector(t *testing.T) {
	// The well-known SHA-256 digest of the single byte "a".
	got := HashBytes("a")
	want := Hash("ca978112ca1bbdcafac231b39a23dc4da786eff8147c4e72b9807785afee48bb")
	if got != want {
		t.Fatalf("HashBytes(%q) = %s, want %s", "a", got, want)
	}
}

func TestHashBytes_Deterministic(t *testing.T) {
	if HashBytes("hello") != HashBytes("hello") {
		t.Fatal("HashBytes is not deterministic")
	}
}

func TestHashConcat_MatchesManualHash(t *testing.T) {
	left := HashBytes("a")
	right := HashBytes("b")
	got := HashConcat(left, right)
	want := HashBytes(string(left) + string(right))
	if got != want {
		t.Fatalf("HashConcat = %s, want %s", got, want)
	}
}

func TestHashFile_StreamsChunks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	data := make([]byte, chunkSize*3+17)
	for i := range data {
		data[i] = byte(i % 251)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	want := HashBytes(string(data))
	if got != want {
		t.Fatalf("HashFile = %s, want %s", got, want)
	}
}

func TestHashFile_MissingFile(t *testing.T) {
	_, err := HashFile(filepath.Join(t.TempDir(), "nope.bin"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
