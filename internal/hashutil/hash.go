// Package hashutil computes the content hashes that back every leaf and
// interior node in a merkle tree. It mirrors the teacher's ObjectStore
// content-addressing (internal/dag/store.go in the original memex-fs tree)
// but returns plain lowercase hex SHA-256 instead of a CID, since the wire
// format this service commits to (§3 of SPEC_FULL.md) is the hex digest
// itself.
package hashutil

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	sha256simd "github.com/minio/sha256-simd"
)

// chunkSize is the streaming read size for hashFile, per spec.
const chunkSize = 4096

// Hash is a 64-character lowercase hex SHA-256 digest.
type Hash string

// String returns the hex digest.
func (h Hash) String() string { return string(h) }

// HashBytes returns the SHA-256 of s's UTF-8 bytes as lowercase hex.
func HashBytes(s string) Hash {
	sum := sha256simd.Sum256([]byte(s))
	return Hash(hex.EncodeToString(sum[:]))
}

// HashConcat returns HashBytes(left + right), the exact concatenation the
// tree builder uses to combine two child hashes (no separator, no length
// prefix — see SPEC_FULL.md §9 on domain separation).
func HashConcat(left, right Hash) Hash {
	return HashBytes(string(left) + string(right))
}

// HashFile opens path, reads it sequentially in 4 KiB chunks, and returns the
// streamed SHA-256 of its contents as lowercase hex. The file is closed on
// every exit path.
func HashFile(path string) (Hash, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hashutil: open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256simd.New()
	buf := make([]byte, chunkSize)
	r := bufio.NewReaderSize(f, chunkSize)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				break
			}
			return "", fmt.Errorf("hashutil: read %s: %w", path, rerr)
		}
	}
	return Hash(hex.EncodeToString(h.Sum(nil))), nil
}
