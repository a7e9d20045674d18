package wheel

import (
	"fmt"
	"regexp"
	"strings"
)

// Ext is the file extension of a binary distribution archive.
const Ext = ".whl"

// Components holds the parts of a wheel filename:
// {distribution}-{version}(-{build})?-{python}-{abi}-{platform}.whl
type Components struct {
	Distribution string
	Version      string
	Build        string
	PythonTag    string
	ABITag       string
	// PlatformTag may be a compound of multiple platforms joined with
	// dots, e.g. "macosx_10_9_x86_64.macosx_11_0_arm64". It is kept
	// verbatim.
	PlatformTag string
}

// ParseFilename parses a wheel filename into its components.
//
// The optional build tag is detected by checking whether the third
// dash-separated segment starts with a digit. Build tags always do,
// Python tags never should - a Python tag that started with a digit
// would be misread as a build tag. This is a known limitation of the
// wheel filename format itself.
func ParseFilename(filename string) (c Components, err error) {
	name := strings.TrimSuffix(filename, Ext)
	parts := strings.Split(name, "-")
	if len(parts) < 5 {
		return c, fmt.Errorf("%w: %q", ErrMalformedFilename, filename)
	}

	c.Distribution = parts[0]
	c.Version = parts[1]
	if len(parts) >= 6 && parts[2] != "" && parts[2][0] >= '0' && parts[2][0] <= '9' {
		c.Build = parts[2]
		c.PythonTag = parts[3]
		c.ABITag = parts[4]
		c.PlatformTag = parts[5]
		return c, nil
	}
	c.PythonTag = parts[2]
	c.ABITag = parts[3]
	c.PlatformTag = parts[4]
	return c, nil
}

// Filename builds the wheel filename from its components, the inverse
// of ParseFilename. The build segment is omitted when empty.
func (c Components) Filename() string {
	parts := []string{c.Distribution, c.Version}
	if c.Build != "" {
		parts = append(parts, c.Build)
	}
	parts = append(parts, c.PythonTag, c.ABITag, c.PlatformTag)
	return strings.Join(parts, "-") + Ext
}

var separatorRuns = regexp.MustCompile(`[-_.]+`)

// Normalize folds a package name to the canonical form used inside
// wheel archives: runs of hyphens, underscores and dots become a
// single underscore, and the result is lowercased. Two names denote
// the same logical package iff they normalize equal, so Normalize is
// also the basis for rename rule lookups.
func Normalize(name string) string {
	return strings.ToLower(separatorRuns.ReplaceAllString(name, "_"))
}
