package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"regexp"
	"strings"
)

var nonNamespaceChars = regexp.MustCompile(`[^a-zA-Z0-9_]+`)

// Namespace derives a sanitized, file-safe identifier from a dataset or CSV
// filename, used to scope every per-dataset state file.
// `instagram_export (v2).csv` -> `instagram_export_v2`.
func Namespace(path string) string {
	base := path
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	base = nonNamespaceChars.ReplaceAllString(base, "_")
	base = strings.Trim(base, "_")
	if base == "" {
		base = "dataset"
	}
	return strings.ToLower(base)
}

// hashFile returns the hex SHA-256 of a file's contents, used as the
// `hash_of_input` fingerprint that gates Step 0/Step 1 cache hits.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// promptFingerprint identifies a prompt template's identity: its file name
// combined with the hex SHA-256 of its content, so changing prompt wording
// invalidates every chunk file built against the old prompt.
func promptFingerprint(promptPath string, content []byte) string {
	h := sha256.Sum256(content)
	name := promptPath
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	return name + ":" + hex.EncodeToString(h[:])[:16]
}

// contentHash is a plain hex SHA-256 digest of arbitrary bytes, used to
// fingerprint a chunk's row set independent of any file name.
func contentHash(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])
}
