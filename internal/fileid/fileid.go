// Package fileid derives deterministic source document IDs for imported files.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

const prefix = "file:"

// PathID returns a stable ID for the given absolute path. Same path always yields the same ID.
func PathID(absolutePath string) string {
	normalized := filepath.Clean(absolutePath)
	hash := sha256.Sum256([]byte(normalized))
	return prefix + hex.EncodeToString(hash[:])
}

// SourceID returns an ID for one version of a file: the same path with the same bytes yields the
// same ID, and any edit yields a new one.
func SourceID(absolutePath string, content []byte) string {
	h := sha256.New()
	h.Write([]byte(filepath.Clean(absolutePath)))
	h.Write([]byte{0})
	h.Write(content)
	return prefix + hex.EncodeToString(h.Sum(nil))
}
