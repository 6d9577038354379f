package manifest

import (
	"crypto/md5" //nolint:gosec // content fingerprint only, not security-sensitive (spec §9)
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// chunkSplitThreshold is the file-size boundary (10 MiB) above which hashing
// switches from whole-file MD5 to the two-level chunked construction
// (spec §3). The split must be byte-exact for cross-machine agreement.
const chunkSplitThreshold = 10 * 1024 * 1024

// chunkSize is the size of each chunk hashed independently in the two-level
// construction (1 MiB; the final chunk may be smaller).
const chunkSize = 1 * 1024 * 1024

// HashFile computes the content fingerprint for the file at path following
// the spec's two-regime rule: files under 10 MiB are digested whole; files
// at or above 10 MiB are split into 1 MiB chunks, each hex-digested, and the
// concatenation of those hex strings (as ASCII bytes) is hashed again. The
// two regimes never produce the same digest for the same bytes.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("manifest: opening %s for hash: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("manifest: stat %s for hash: %w", path, err)
	}

	if info.Size() < chunkSplitThreshold {
		return hashWhole(f)
	}

	return hashChunked(f)
}

// hashWhole digests the entire stream with a single MD5 pass.
func hashWhole(r io.Reader) (string, error) {
	h := md5.New() //nolint:gosec // content fingerprint only

	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("manifest: hashing: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// hashChunked implements the two-level construction for files >= 10 MiB:
// each 1 MiB chunk (last chunk may be smaller) is hex-digested independently,
// the hex strings are concatenated as an ASCII byte sequence, and that
// concatenation is MD5'd once more.
func hashChunked(r io.Reader) (string, error) {
	var concatenated []byte

	buf := make([]byte, chunkSize)

	for {
		n, readErr := io.ReadFull(r, buf)
		if n > 0 {
			h := md5.New() //nolint:gosec // content fingerprint only
			h.Write(buf[:n])
			concatenated = append(concatenated, []byte(hex.EncodeToString(h.Sum(nil)))...)
		}

		if readErr == io.EOF {
			break
		}

		if readErr == io.ErrUnexpectedEOF {
			break
		}

		if readErr != nil {
			return "", fmt.Errorf("manifest: reading chunk: %w", readErr)
		}
	}

	final := md5.Sum(concatenated) //nolint:gosec // content fingerprint only

	return hex.EncodeToString(final[:]), nil
}

// HashEmpty returns the fingerprint of the empty byte string, matching
// EmptyHash. Exposed for callers constructing synthetic marker entries.
func HashEmpty() string {
	sum := md5.Sum(nil) //nolint:gosec // content fingerprint only
	return hex.EncodeToString(sum[:])
}
