package download

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/a-h/retread/models"
	"github.com/a-h/retread/upstream"
	"github.com/a-h/retread/wheel"
	pep440 "github.com/aquasecurity/go-pep440-version"
)

// Options control a compatible-wheel fetch.
type Options struct {
	// VersionSpec is an optional PEP 440 specifier, e.g. "<2".
	VersionSpec string
	// PythonVersion is the target CPython version, e.g. "3.12".
	PythonVersion string
	// Rename, if set, renames the downloaded wheel to this
	// distribution name and removes the original download.
	Rename string
}

// BestWheel picks the highest-versioned wheel whose tags match the
// compatibility list, breaking version ties by tag priority (lower
// index in compatTags wins). Returns false if nothing is compatible.
func BestWheel(files []models.FileEntry, compatTags []Tag) (models.FileEntry, bool) {
	priority := make(map[Tag]int, len(compatTags))
	for i, t := range compatTags {
		priority[t] = i
	}

	type candidate struct {
		file     models.FileEntry
		version  pep440.Version
		priority int
	}
	var candidates []candidate

	for _, f := range files {
		tags, err := WheelTags(f.Filename)
		if err != nil {
			continue
		}
		best := len(compatTags)
		for _, t := range tags {
			if p, ok := priority[t]; ok && p < best {
				best = p
			}
		}
		if best == len(compatTags) {
			continue
		}
		v, err := pep440.Parse(f.Version())
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{file: f, version: v, priority: best})
	}

	if len(candidates) == 0 {
		return models.FileEntry{}, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if !candidates[i].version.Equal(candidates[j].version) {
			return candidates[i].version.GreaterThan(candidates[j].version)
		}
		return candidates[i].priority < candidates[j].priority
	})
	return candidates[0].file, true
}

// Fetch downloads the best platform-compatible wheel for a project
// into outputDir and returns the path of the resulting file. With
// Options.Rename set, the downloaded wheel is run through the rename
// engine and the intermediate download is removed.
func Fetch(ctx context.Context, log *slog.Logger, client *upstream.Client, project, outputDir string, opts Options) (string, error) {
	files, err := client.List(ctx, project)
	if err != nil {
		return "", fmt.Errorf("failed to list %s: %w", project, err)
	}
	if len(files) == 0 {
		return "", fmt.Errorf("no wheels found for %s", project)
	}

	files, err = upstream.FilterVersions(files, opts.VersionSpec)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", fmt.Errorf("no wheels found for %s matching %s", project, opts.VersionSpec)
	}

	compatTags, err := CompatibleTags(opts.PythonVersion)
	if err != nil {
		return "", err
	}
	best, ok := BestWheel(files, compatTags)
	if !ok {
		return "", fmt.Errorf("no compatible wheel found for %s on this platform", project)
	}

	log.Info("found compatible wheel", slog.String("filename", best.Filename))

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	outputPath := filepath.Join(outputDir, best.Filename)

	body, err := client.Download(ctx, best.URL)
	if err != nil {
		return "", err
	}
	defer body.Close()

	f, err := os.Create(outputPath)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", outputPath, err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write %s: %w", outputPath, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", outputPath, err)
	}

	if opts.Rename == "" {
		return outputPath, nil
	}

	renamedPath, err := wheel.Rename(outputPath, opts.Rename, wheel.Options{OutputDir: outputDir})
	if err != nil {
		return "", err
	}
	if err := os.Remove(outputPath); err != nil {
		return "", fmt.Errorf("failed to remove %s: %w", outputPath, err)
	}
	log.Info("renamed wheel", slog.String("path", renamedPath))
	return renamedPath, nil
}
