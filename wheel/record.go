package wheel

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
)

const (
	metadataName = "METADATA"
	recordName   = "RECORD"
)

// recordDigest computes a content digest in RECORD format: a SHA-256
// hash encoded as URL-safe base64 without padding.
func recordDigest(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256=" + base64.RawURLEncoding.EncodeToString(sum[:])
}

// buildRecord generates the RECORD manifest for an entry set. Each
// entry gets one "path,digest,size" line in lexicographic path order,
// followed by a self-referencing line for the RECORD entry itself with
// empty digest and size fields, since the manifest cannot hash itself.
func buildRecord(entries map[string][]byte, recordPath string) []byte {
	names := sortedNames(entries)
	lines := make([]string, 0, len(names)+1)
	for _, name := range names {
		content := entries[name]
		lines = append(lines, fmt.Sprintf("%s,%s,%d", name, recordDigest(content), len(content)))
	}
	lines = append(lines, recordPath+",,")
	return []byte(strings.Join(lines, "\n"))
}

func sortedNames(entries map[string][]byte) []string {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
