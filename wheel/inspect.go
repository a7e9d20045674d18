package wheel

import (
	"archive/zip"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ExtensionSafety classifies whether a compiled extension module is
// expected to survive a rename. The classification is a heuristic, not
// a verified guarantee: it only checks the module naming convention.
type ExtensionSafety string

const (
	// SafetySafe means the extension module follows the underscore
	// prefix convention, so the importable package name can change
	// without touching the extension's own module name.
	SafetySafe ExtensionSafety = "safe"
	// SafetyUnsafe means the extension module is directly importable
	// under the distribution name and renaming is likely to break it.
	SafetyUnsafe ExtensionSafety = "unsafe"
	// SafetyUnknown means the module name could not be determined.
	SafetyUnknown ExtensionSafety = "unknown"
)

// Extension describes a compiled extension entry found in a wheel.
type Extension struct {
	Path   string          `json:"path"`
	Module string          `json:"module"`
	Safety ExtensionSafety `json:"safety"`
}

// Info describes a wheel's structure, as returned by Inspect.
type Info struct {
	Filename   string      `json:"filename"`
	Components Components  `json:"components"`
	Files      []string    `json:"files"`
	Extensions []Extension `json:"extensions,omitempty"`
}

// SafeToRename reports whether every compiled extension in the wheel is
// classified as safe. A wheel without extensions is always safe. This
// is advisory only.
func (i Info) SafeToRename() bool {
	for _, ext := range i.Extensions {
		if ext.Safety != SafetySafe {
			return false
		}
	}
	return true
}

var nativeSuffixes = []string{".so", ".pyd", ".dylib"}

// Inspect reads a wheel and reports its parsed filename components,
// its full entry list, and a safety classification for every compiled
// extension entry.
func Inspect(wheelPath string) (Info, error) {
	if _, err := os.Stat(wheelPath); err != nil {
		if os.IsNotExist(err) {
			return Info{}, fmt.Errorf("%w: %s", ErrNotFound, wheelPath)
		}
		return Info{}, fmt.Errorf("failed to stat %s: %w", wheelPath, err)
	}
	if !strings.HasSuffix(wheelPath, Ext) {
		return Info{}, fmt.Errorf("%w: %s", ErrNotWheel, wheelPath)
	}

	c, err := ParseFilename(filepath.Base(wheelPath))
	if err != nil {
		return Info{}, err
	}

	zr, err := zip.OpenReader(wheelPath)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrNotWheel, err)
	}
	defer zr.Close()

	info := Info{
		Filename:   filepath.Base(wheelPath),
		Components: c,
	}
	for _, f := range zr.File {
		info.Files = append(info.Files, f.Name)
		if ext, ok := classifyExtension(f.Name); ok {
			info.Extensions = append(info.Extensions, ext)
		}
	}
	return info, nil
}

func classifyExtension(name string) (Extension, bool) {
	var isNative bool
	for _, suffix := range nativeSuffixes {
		if strings.HasSuffix(name, suffix) {
			isNative = true
			break
		}
	}
	if !isNative {
		return Extension{}, false
	}

	// The module name is the base name up to the first dot, e.g.
	// "_icechunk" from "_icechunk.cpython-311-darwin.so".
	module, _, _ := strings.Cut(path.Base(name), ".")
	ext := Extension{Path: name, Module: module}
	switch {
	case module == "":
		ext.Safety = SafetyUnknown
	case strings.HasPrefix(module, "_"):
		ext.Safety = SafetySafe
	default:
		ext.Safety = SafetyUnsafe
	}
	return ext, true
}
