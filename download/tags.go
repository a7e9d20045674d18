package download

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/a-h/retread/wheel"
)

// Tag is a PEP 425 compatibility tag.
type Tag struct {
	Python   string // e.g. "cp312", "py3"
	ABI      string // e.g. "cp312", "abi3", "none"
	Platform string // e.g. "manylinux_2_17_x86_64", "any"
}

func (t Tag) String() string {
	return t.Python + "-" + t.ABI + "-" + t.Platform
}

// WheelTags expands a wheel filename into its individual compatibility
// tags. A compound platform tag like "macosx_10_9_x86_64.macosx_11_0_arm64"
// yields one tag per platform.
func WheelTags(filename string) ([]Tag, error) {
	c, err := wheel.ParseFilename(filename)
	if err != nil {
		return nil, err
	}
	var tags []Tag
	for _, platform := range strings.Split(c.PlatformTag, ".") {
		tags = append(tags, Tag{Python: c.PythonTag, ABI: c.ABITag, Platform: platform})
	}
	return tags, nil
}

// CompatibleTags generates an ordered compatibility tag list for a
// CPython version on the current platform, most specific first. The
// platform list is a fixed mapping from GOOS/GOARCH to the common
// manylinux/macosx/windows tags, not a full PEP 600 resolver.
func CompatibleTags(pythonVersion string) ([]Tag, error) {
	major, minor, err := splitPythonVersion(pythonVersion)
	if err != nil {
		return nil, err
	}
	cp := fmt.Sprintf("cp%s%s", major, minor)
	platforms := platformTags(runtime.GOOS, runtime.GOARCH)

	var tags []Tag
	for _, p := range platforms {
		tags = append(tags, Tag{Python: cp, ABI: cp, Platform: p})
	}
	for _, p := range platforms {
		tags = append(tags, Tag{Python: cp, ABI: "abi3", Platform: p})
	}
	for _, p := range platforms {
		tags = append(tags, Tag{Python: cp, ABI: "none", Platform: p})
	}
	tags = append(tags,
		Tag{Python: "py" + major, ABI: "none", Platform: "any"},
		Tag{Python: "py" + major + minor, ABI: "none", Platform: "any"},
	)
	return tags, nil
}

func splitPythonVersion(v string) (major, minor string, err error) {
	major, minor, found := strings.Cut(v, ".")
	if !found || major == "" || minor == "" {
		return "", "", fmt.Errorf("invalid Python version %q: expected e.g. 3.12", v)
	}
	return major, minor, nil
}

func platformTags(goos, goarch string) []string {
	switch goos {
	case "linux":
		arch := map[string]string{"amd64": "x86_64", "arm64": "aarch64"}[goarch]
		if arch == "" {
			arch = goarch
		}
		return []string{
			"manylinux_2_28_" + arch,
			"manylinux_2_17_" + arch,
			"manylinux2014_" + arch,
			"linux_" + arch,
			"any",
		}
	case "darwin":
		if goarch == "arm64" {
			return []string{"macosx_12_0_arm64", "macosx_11_0_arm64", "any"}
		}
		return []string{"macosx_11_0_x86_64", "macosx_10_9_x86_64", "any"}
	case "windows":
		if goarch == "arm64" {
			return []string{"win_arm64", "any"}
		}
		return []string{"win_amd64", "any"}
	default:
		return []string{"any"}
	}
}
