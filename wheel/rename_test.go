package wheel

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func buildArchive(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		f, err := zw.Create(name)
		if err != nil {
			t.Fatalf("failed to create archive entry %s: %v", name, err)
		}
		if _, err := f.Write([]byte(entries[name])); err != nil {
			t.Fatalf("failed to write archive entry %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to close archive: %v", err)
	}
	return buf.Bytes()
}

func extractArchive(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	entries := make(map[string]string, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("failed to open entry %s: %v", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("failed to read entry %s: %v", f.Name, err)
		}
		entries[f.Name] = string(content)
	}
	return entries
}

const demoMetadata = `Metadata-Version: 2.1
Name: icechunk
Version: 1.5.0
Requires-Python: >=3.9
Requires-Dist: numpy>=1.21
Requires-Dist: typing-extensions; python_version < "3.11"

Transactional storage engine.
`

func demoWheel(t *testing.T) []byte {
	t.Helper()
	return buildArchive(t, map[string]string{
		"icechunk/__init__.py": "from icechunk.core import Repository\n" +
			"import icechunk.util\n" +
			"NAME = \"icechunk\"\n",
		"icechunk/core.py": "import icechunk\n\n\nclass Repository:\n    pass\n",
		"icechunk/util.py": "def icechunk_helper():\n    return \"not an import of icechunk\"\n",
		"icechunk-1.5.0.dist-info/METADATA": demoMetadata,
		"icechunk-1.5.0.dist-info/WHEEL":    "Wheel-Version: 1.0\nGenerator: test\nRoot-Is-Purelib: true\nTag: py3-none-any\n",
		"icechunk-1.5.0.dist-info/RECORD":   "icechunk/__init__.py,sha256=stale,0\n",
		"icechunk-1.5.0.data/scripts/ice":   "#!/usr/bin/env python\nimport icechunk\n",
	})
}

func TestRenameBytes(t *testing.T) {
	renamed, err := RenameBytes(demoWheel(t), "icechunk_v1", Options{})
	if err != nil {
		t.Fatalf("failed to rename wheel: %v", err)
	}
	entries := extractArchive(t, renamed)

	t.Run("reserved path prefixes are migrated", func(t *testing.T) {
		expected := []string{
			"icechunk_v1-1.5.0.data/scripts/ice",
			"icechunk_v1-1.5.0.dist-info/METADATA",
			"icechunk_v1-1.5.0.dist-info/RECORD",
			"icechunk_v1-1.5.0.dist-info/WHEEL",
			"icechunk_v1/__init__.py",
			"icechunk_v1/core.py",
			"icechunk_v1/util.py",
		}
		var got []string
		for name := range entries {
			got = append(got, name)
		}
		sort.Strings(got)
		if diff := cmp.Diff(expected, got); diff != "" {
			t.Errorf("unexpected entry names (-want +got):\n%s", diff)
		}
	})
	t.Run("imports are rewritten, string literals are not", func(t *testing.T) {
		expected := "from icechunk_v1.core import Repository\n" +
			"import icechunk_v1.util\n" +
			"NAME = \"icechunk\"\n"
		if diff := cmp.Diff(expected, entries["icechunk_v1/__init__.py"]); diff != "" {
			t.Errorf("unexpected __init__.py (-want +got):\n%s", diff)
		}
	})
	t.Run("bare import is rewritten", func(t *testing.T) {
		if got := entries["icechunk_v1/core.py"]; !strings.Contains(got, "import icechunk_v1\n") {
			t.Errorf("expected rewritten import, got:\n%s", got)
		}
	})
	t.Run("identifiers containing the old name are untouched", func(t *testing.T) {
		if got := entries["icechunk_v1/util.py"]; !strings.Contains(got, "icechunk_helper") {
			t.Errorf("expected icechunk_helper to survive, got:\n%s", got)
		}
	})
	t.Run("metadata name is replaced, other fields are kept", func(t *testing.T) {
		metadata := entries["icechunk_v1-1.5.0.dist-info/METADATA"]
		if !strings.Contains(metadata, "Name: icechunk_v1\n") {
			t.Errorf("expected Name: icechunk_v1, got:\n%s", metadata)
		}
		if !strings.Contains(metadata, "Version: 1.5.0\n") {
			t.Errorf("expected version to be preserved, got:\n%s", metadata)
		}
		if !strings.Contains(metadata, "Requires-Dist: numpy>=1.21\n") {
			t.Errorf("expected dependencies to be preserved, got:\n%s", metadata)
		}
	})
	t.Run("record is regenerated with correct digests", func(t *testing.T) {
		record := entries["icechunk_v1-1.5.0.dist-info/RECORD"]
		lines := strings.Split(record, "\n")
		if len(lines) != len(entries) {
			t.Fatalf("expected %d record lines, got %d:\n%s", len(entries), len(lines), record)
		}
		if lines[len(lines)-1] != "icechunk_v1-1.5.0.dist-info/RECORD,," {
			t.Errorf("expected empty self entry as the final line, got %q", lines[len(lines)-1])
		}
		for _, line := range lines[:len(lines)-1] {
			parts := strings.Split(line, ",")
			if len(parts) != 3 {
				t.Fatalf("malformed record line %q", line)
			}
			content, ok := entries[parts[0]]
			if !ok {
				t.Fatalf("record references missing entry %q", parts[0])
			}
			sum := sha256.Sum256([]byte(content))
			expected := "sha256=" + base64.RawURLEncoding.EncodeToString(sum[:])
			if parts[1] != expected {
				t.Errorf("digest mismatch for %s: expected %s, got %s", parts[0], expected, parts[1])
			}
			if parts[2] != fmt.Sprintf("%d", len(content)) {
				t.Errorf("size mismatch for %s: expected %d, got %s", parts[0], len(content), parts[2])
			}
		}
	})
	t.Run("record lines are sorted", func(t *testing.T) {
		record := entries["icechunk_v1-1.5.0.dist-info/RECORD"]
		lines := strings.Split(record, "\n")
		paths := make([]string, 0, len(lines)-1)
		for _, line := range lines[:len(lines)-1] {
			paths = append(paths, strings.Split(line, ",")[0])
		}
		if !sort.StringsAreSorted(paths) {
			t.Errorf("record paths are not sorted:\n%s", record)
		}
	})
}

func TestRenameBytesPreservesDistInfoCase(t *testing.T) {
	// Wheels built from case-preserving project names keep that case in
	// the dist-info and data directories, while the package root uses
	// the normalized form.
	data := buildArchive(t, map[string]string{
		"django/__init__.py":             "import django\n",
		"Django-3.2.dist-info/METADATA":  "Metadata-Version: 2.1\nName: Django\nVersion: 3.2\n",
		"Django-3.2.dist-info/RECORD":    "",
		"Django-3.2.data/scripts/manage": "#!/usr/bin/env python\n",
	})

	renamed, err := RenameBytes(data, "django_v1", Options{})
	if err != nil {
		t.Fatalf("failed to rename wheel: %v", err)
	}
	entries := extractArchive(t, renamed)

	expected := []string{
		"django_v1-3.2.data/scripts/manage",
		"django_v1-3.2.dist-info/METADATA",
		"django_v1-3.2.dist-info/RECORD",
		"django_v1/__init__.py",
	}
	var got []string
	for name := range entries {
		got = append(got, name)
	}
	sort.Strings(got)
	if diff := cmp.Diff(expected, got); diff != "" {
		t.Errorf("unexpected entry names (-want +got):\n%s", diff)
	}
	if metadata := entries["django_v1-3.2.dist-info/METADATA"]; !strings.Contains(metadata, "Name: django_v1\n") {
		t.Errorf("expected renamed metadata, got:\n%s", metadata)
	}
	if got := entries["django_v1/__init__.py"]; !strings.Contains(got, "import django_v1\n") {
		t.Errorf("expected rewritten import, got:\n%s", got)
	}

	t.Run("no-op check folds case", func(t *testing.T) {
		if _, err := RenameBytes(data, "Django", Options{}); !errors.Is(err, ErrNoOpRename) {
			t.Fatalf("expected ErrNoOpRename, got %v", err)
		}
	})
}

func TestRenameBytesSkipImports(t *testing.T) {
	renamed, err := RenameBytes(demoWheel(t), "icechunk_v1", Options{SkipImports: true})
	if err != nil {
		t.Fatalf("failed to rename wheel: %v", err)
	}
	entries := extractArchive(t, renamed)
	if got := entries["icechunk_v1/core.py"]; !strings.Contains(got, "import icechunk\n") {
		t.Errorf("expected imports to be left alone, got:\n%s", got)
	}
}

func TestRenameBytesDependencyRenames(t *testing.T) {
	renamed, err := RenameBytes(demoWheel(t), "icechunk_v1", Options{
		// The key is matched by normalized name, so the underscore
		// spelling matches the hyphenated Requires-Dist line.
		DependencyRenames: map[string]string{"typing_extensions": "typing_extensions_v4"},
	})
	if err != nil {
		t.Fatalf("failed to rename wheel: %v", err)
	}
	entries := extractArchive(t, renamed)
	metadata := entries["icechunk_v1-1.5.0.dist-info/METADATA"]
	if !strings.Contains(metadata, "Requires-Dist: typing_extensions_v4; python_version < \"3.11\"\n") {
		t.Errorf("expected renamed dependency with marker preserved, got:\n%s", metadata)
	}
	if !strings.Contains(metadata, "Requires-Dist: numpy>=1.21\n") {
		t.Errorf("expected unrelated dependency to be untouched, got:\n%s", metadata)
	}
}

func TestRenameBytesErrors(t *testing.T) {
	t.Run("no-op rename is rejected", func(t *testing.T) {
		// Icechunk normalizes to the current name, so nothing would change.
		_, err := RenameBytes(demoWheel(t), "Icechunk", Options{})
		if !errors.Is(err, ErrNoOpRename) {
			t.Fatalf("expected ErrNoOpRename, got %v", err)
		}
	})
	t.Run("missing dist-info is rejected", func(t *testing.T) {
		data := buildArchive(t, map[string]string{
			"icechunk/__init__.py": "",
		})
		_, err := RenameBytes(data, "icechunk_v1", Options{})
		if !errors.Is(err, ErrNoDistInfo) {
			t.Fatalf("expected ErrNoDistInfo, got %v", err)
		}
	})
	t.Run("multiple dist-info directories are rejected", func(t *testing.T) {
		data := buildArchive(t, map[string]string{
			"icechunk-1.5.0.dist-info/METADATA": demoMetadata,
			"other-0.1.dist-info/METADATA":      "Name: other\n",
		})
		_, err := RenameBytes(data, "icechunk_v1", Options{})
		if !errors.Is(err, ErrMultipleDistInfo) {
			t.Fatalf("expected ErrMultipleDistInfo, got %v", err)
		}
	})
	t.Run("not a zip archive is rejected", func(t *testing.T) {
		_, err := RenameBytes([]byte("not a zip"), "icechunk_v1", Options{})
		if !errors.Is(err, ErrNotWheel) {
			t.Fatalf("expected ErrNotWheel, got %v", err)
		}
	})
}

func TestRename(t *testing.T) {
	dir := t.TempDir()
	wheelPath := filepath.Join(dir, "icechunk-1.5.0-py3-none-any.whl")
	if err := os.WriteFile(wheelPath, demoWheel(t), 0o644); err != nil {
		t.Fatalf("failed to write wheel: %v", err)
	}

	t.Run("renamed wheel is written with a rewritten filename", func(t *testing.T) {
		outputPath, err := Rename(wheelPath, "icechunk_v1", Options{})
		if err != nil {
			t.Fatalf("failed to rename wheel: %v", err)
		}
		if filepath.Base(outputPath) != "icechunk_v1-1.5.0-py3-none-any.whl" {
			t.Errorf("unexpected output filename %s", filepath.Base(outputPath))
		}
		data, err := os.ReadFile(outputPath)
		if err != nil {
			t.Fatalf("failed to read renamed wheel: %v", err)
		}
		entries := extractArchive(t, data)
		if _, ok := entries["icechunk_v1-1.5.0.dist-info/METADATA"]; !ok {
			t.Errorf("expected migrated dist-info in output")
		}
	})
	t.Run("output directory is honoured", func(t *testing.T) {
		outputDir := filepath.Join(dir, "out")
		outputPath, err := Rename(wheelPath, "icechunk_v1", Options{OutputDir: outputDir})
		if err != nil {
			t.Fatalf("failed to rename wheel: %v", err)
		}
		if filepath.Dir(outputPath) != outputDir {
			t.Errorf("expected output in %s, got %s", outputDir, outputPath)
		}
	})
	t.Run("rename normalizes the output filename", func(t *testing.T) {
		outputPath, err := Rename(wheelPath, "Icechunk-V2", Options{})
		if err != nil {
			t.Fatalf("failed to rename wheel: %v", err)
		}
		if filepath.Base(outputPath) != "icechunk_v2-1.5.0-py3-none-any.whl" {
			t.Errorf("unexpected output filename %s", filepath.Base(outputPath))
		}
	})
	t.Run("missing file", func(t *testing.T) {
		_, err := Rename(filepath.Join(dir, "missing-1.0-py3-none-any.whl"), "renamed", Options{})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
	t.Run("wrong extension", func(t *testing.T) {
		notWheel := filepath.Join(dir, "archive.zip")
		if err := os.WriteFile(notWheel, demoWheel(t), 0o644); err != nil {
			t.Fatalf("failed to write file: %v", err)
		}
		_, err := Rename(notWheel, "renamed", Options{})
		if !errors.Is(err, ErrNotWheel) {
			t.Fatalf("expected ErrNotWheel, got %v", err)
		}
	})
}
