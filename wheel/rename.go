package wheel

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/flate"
)

// Options control a rename operation.
type Options struct {
	// OutputDir is the directory to write the renamed wheel to.
	// Defaults to the directory of the source wheel.
	OutputDir string
	// SkipImports disables rewriting of import statements in Python
	// source entries.
	SkipImports bool
	// DependencyRenames maps dependency names that were themselves
	// renamed (old name to new name). Matching Requires-Dist lines in
	// METADATA are rewritten to reference the new names.
	DependencyRenames map[string]string
}

// Rename rewrites a wheel archive on disk under a new distribution
// name and returns the path of the renamed wheel. The output archive
// has its package, dist-info and data directories migrated to the new
// name, its METADATA Name field replaced, its Python imports rewritten
// (unless disabled), and a freshly generated RECORD.
func Rename(wheelPath, newName string, opts Options) (string, error) {
	if _, err := os.Stat(wheelPath); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, wheelPath)
		}
		return "", fmt.Errorf("failed to stat %s: %w", wheelPath, err)
	}
	if !strings.HasSuffix(wheelPath, Ext) {
		return "", fmt.Errorf("%w: %s", ErrNotWheel, wheelPath)
	}

	c, err := ParseFilename(filepath.Base(wheelPath))
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(wheelPath)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", wheelPath, err)
	}

	entries, err := renameArchive(data, newName, opts)
	if err != nil {
		return "", err
	}

	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = filepath.Dir(wheelPath)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	c.Distribution = Normalize(newName)
	outputPath := filepath.Join(outputDir, c.Filename())

	f, err := os.Create(outputPath)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", outputPath, err)
	}
	defer f.Close()
	if err := writeArchive(f, entries); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", outputPath, err)
	}
	return outputPath, nil
}

// RenameBytes rewrites an in-memory wheel archive under a new
// distribution name. The old name and version are derived from the
// dist-info directory inside the archive, so the caller does not need
// to know the source filename. Used by the proxy's download path.
func RenameBytes(wheelBytes []byte, newName string, opts Options) ([]byte, error) {
	entries, err := renameArchive(wheelBytes, newName, opts)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := writeArchive(&buf, entries); err != nil {
		return nil, fmt.Errorf("failed to write renamed wheel: %w", err)
	}
	return buf.Bytes(), nil
}

// renameArchive reads the full entry set out of a zip archive, applies
// the rewrite, and regenerates the RECORD manifest. The old name and
// version come from the archive's own dist-info directory: the literal
// spelling is kept for path prefix matching, while the normalized form
// drives the package root, import rewriting and the no-op check.
func renameArchive(data []byte, newName string, opts Options) (entries map[string][]byte, err error) {
	oldDist, version, err := distInfoNameVersion(data)
	if err != nil {
		return nil, err
	}

	newNorm := Normalize(newName)
	if Normalize(oldDist) == newNorm {
		return nil, fmt.Errorf("%w: %q", ErrNoOpRename, newName)
	}

	entries, err = readArchive(data)
	if err != nil {
		return nil, err
	}

	dependencyRenames := make(map[string]string, len(opts.DependencyRenames))
	for old, replacement := range opts.DependencyRenames {
		dependencyRenames[Normalize(old)] = replacement
	}

	rw := rewrite{
		oldPkg:            Normalize(oldDist),
		oldDist:           oldDist,
		newName:           newNorm,
		displayName:       newName,
		version:           version,
		skipImports:       opts.SkipImports,
		dependencyRenames: dependencyRenames,
	}
	entries, err = rewriteEntries(entries, rw)
	if err != nil {
		return nil, err
	}

	recordPath := rw.newDistInfo() + "/" + recordName
	entries[recordPath] = buildRecord(entries, recordPath)
	return entries, nil
}

func readArchive(data []byte) (map[string][]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotWheel, err)
	}
	entries := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open archive entry %s: %w", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read archive entry %s: %w", f.Name, err)
		}
		entries[f.Name] = content
	}
	return entries, nil
}

// writeArchive writes the entry set as a deflate-compressed zip with
// entries in lexicographic order, matching the layout produced by
// standard wheel tooling.
func writeArchive(w io.Writer, entries map[string][]byte) error {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})
	for _, name := range sortedNames(entries) {
		f, err := zw.Create(name)
		if err != nil {
			return fmt.Errorf("failed to create entry %s: %w", name, err)
		}
		if _, err := f.Write(entries[name]); err != nil {
			return fmt.Errorf("failed to write entry %s: %w", name, err)
		}
	}
	return zw.Close()
}

// distInfoNameVersion locates the single dist-info directory in an
// archive and splits it into the distribution name, spelled exactly as
// the directory spells it, and the version. Zero dist-info directories
// is ErrNoDistInfo; more than one makes the distribution ambiguous and
// is rejected as invalid input.
func distInfoNameVersion(wheelBytes []byte) (name, version string, err error) {
	zr, err := zip.NewReader(bytes.NewReader(wheelBytes), int64(len(wheelBytes)))
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrNotWheel, err)
	}

	seen := map[string]bool{}
	var distInfo string
	for _, f := range zr.File {
		dir, _, ok := strings.Cut(f.Name, "/")
		if !ok || !strings.HasSuffix(dir, ".dist-info") {
			continue
		}
		if !seen[dir] {
			seen[dir] = true
			distInfo = dir
		}
	}
	if len(seen) == 0 {
		return "", "", ErrNoDistInfo
	}
	if len(seen) > 1 {
		return "", "", fmt.Errorf("%w: found %d", ErrMultipleDistInfo, len(seen))
	}

	base := strings.TrimSuffix(distInfo, ".dist-info")
	i := strings.LastIndex(base, "-")
	if i == -1 {
		return "", "", fmt.Errorf("%w: %q has no version", ErrMalformedFilename, distInfo)
	}
	return base[:i], base[i+1:], nil
}
