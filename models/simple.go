package models

import (
	"encoding/json"
	"strings"
)

// PackageIndex represents a project page of the Simple API.
type PackageIndex struct {
	Meta     Meta        `json:"meta"`
	Name     string      `json:"name"`
	Files    []FileEntry `json:"files"`
	Versions []string    `json:"versions,omitempty"`
}

// Meta contains metadata for the Simple API.
type Meta struct {
	APIVersion string `json:"api-version"`
}

// FileEntry represents one downloadable file in a project page.
type FileEntry struct {
	Filename       string            `json:"filename"`
	URL            string            `json:"url"`
	Hashes         map[string]string `json:"hashes,omitempty"`
	RequiresPython string            `json:"requires-python,omitempty"`
	Size           int64             `json:"size,omitempty"`
	Yanked         json.RawMessage   `json:"yanked,omitempty"`
}

func (f FileEntry) PackageName() string {
	parts := strings.SplitN(f.Filename, "-", 2)
	if len(parts) < 2 {
		return f.Filename
	}
	return parts[0]
}

var binaryExtensions = []string{".bz2", ".gz", ".tar", ".whl", ".zip"}

func (f FileEntry) Version() string {
	fn := f.Filename
	for _, ext := range binaryExtensions {
		fn = strings.TrimSuffix(fn, ext)
	}
	parts := strings.SplitN(fn, "-", 3)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

func (f FileEntry) IsWheel() bool {
	return strings.HasSuffix(f.Filename, ".whl")
}

// digestPreference is the order in which hash algorithms are chosen
// when building an anchor fragment.
var digestPreference = []string{"sha256", "sha384", "sha512", "md5"}

// Digest returns the preferred hash in "algo=hex" fragment form, or an
// empty string if the entry carries no hashes.
func (f FileEntry) Digest() string {
	for _, algo := range digestPreference {
		if v, ok := f.Hashes[algo]; ok {
			return algo + "=" + v
		}
	}
	return ""
}
