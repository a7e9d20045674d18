package models

import (
	"encoding/json"
	"testing"
)

func TestFileEntryVersion(t *testing.T) {
	tests := []struct {
		filename string
		expected string
	}{
		{"icechunk-1.5.0-cp311-cp311-manylinux_2_17_x86_64.whl", "1.5.0"},
		{"requests-2.31.0-py3-none-any.whl", "2.31.0"},
		{"agate-0.5.2.tar.gz", "0.5.2"},
		{"tool-10.20.30.tar.bz2", "10.20.30"},
		{"invalid_package.tar.gz", ""},
	}
	for _, test := range tests {
		entry := FileEntry{Filename: test.filename}
		if got := entry.Version(); got != test.expected {
			t.Errorf("for filename '%s', expected version '%s', got '%s'", test.filename, test.expected, got)
		}
	}
}

func TestFileEntryPackageName(t *testing.T) {
	entry := FileEntry{Filename: "icechunk-1.5.0-py3-none-any.whl"}
	if got := entry.PackageName(); got != "icechunk" {
		t.Errorf("expected package name 'icechunk', got '%s'", got)
	}
}

func TestFileEntryIsWheel(t *testing.T) {
	tests := []struct {
		filename string
		expected bool
	}{
		{"icechunk-1.5.0-py3-none-any.whl", true},
		{"icechunk-1.5.0.tar.gz", false},
		{"icechunk-1.5.0.zip", false},
	}
	for _, test := range tests {
		entry := FileEntry{Filename: test.filename}
		if got := entry.IsWheel(); got != test.expected {
			t.Errorf("for filename '%s', expected IsWheel %v, got %v", test.filename, test.expected, got)
		}
	}
}

func TestFileEntryDigest(t *testing.T) {
	tests := []struct {
		name     string
		hashes   map[string]string
		expected string
	}{
		{
			name:     "sha256 preferred over md5",
			hashes:   map[string]string{"md5": "aaaa", "sha256": "bbbb"},
			expected: "sha256=bbbb",
		},
		{
			name:     "md5 used as a last resort",
			hashes:   map[string]string{"md5": "aaaa"},
			expected: "md5=aaaa",
		},
		{
			name:     "no hashes",
			hashes:   nil,
			expected: "",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			entry := FileEntry{Hashes: test.hashes}
			if got := entry.Digest(); got != test.expected {
				t.Errorf("expected digest '%s', got '%s'", test.expected, got)
			}
		})
	}
}

func TestPackageIndexJSON(t *testing.T) {
	input := `{
		"meta": {"api-version": "1.0"},
		"name": "icechunk",
		"files": [
			{
				"filename": "icechunk-1.5.0-py3-none-any.whl",
				"url": "https://files.example.com/icechunk-1.5.0-py3-none-any.whl",
				"hashes": {"sha256": "abc123"},
				"requires-python": ">=3.9",
				"size": 1024,
				"yanked": false
			}
		]
	}`
	var index PackageIndex
	if err := json.Unmarshal([]byte(input), &index); err != nil {
		t.Fatalf("failed to unmarshal index: %v", err)
	}
	if index.Name != "icechunk" {
		t.Errorf("expected name 'icechunk', got '%s'", index.Name)
	}
	if len(index.Files) != 1 {
		t.Fatalf("expected one file, got %d", len(index.Files))
	}
	f := index.Files[0]
	if f.RequiresPython != ">=3.9" {
		t.Errorf("expected requires-python '>=3.9', got '%s'", f.RequiresPython)
	}
	if f.Size != 1024 {
		t.Errorf("expected size 1024, got %d", f.Size)
	}
	if f.Hashes["sha256"] != "abc123" {
		t.Errorf("expected sha256 hash, got %v", f.Hashes)
	}
}
