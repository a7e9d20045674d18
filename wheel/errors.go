package wheel

import "errors"

var (
	// ErrNotFound is returned when the input wheel does not exist.
	ErrNotFound = errors.New("wheel not found")
	// ErrNotWheel is returned when the input file does not have a .whl extension.
	ErrNotWheel = errors.New("not a wheel file")
	// ErrMalformedFilename is returned when a filename cannot be split
	// into the required distribution, version and tag segments.
	ErrMalformedFilename = errors.New("malformed wheel filename")
	// ErrNoOpRename is returned when the new name normalizes to the
	// same name as the existing distribution. Renaming a package to
	// itself is a caller bug, not a supported operation.
	ErrNoOpRename = errors.New("new name is the same as the existing name")
	// ErrNoDistInfo is returned when the archive contains no dist-info
	// directory for the distribution being renamed.
	ErrNoDistInfo = errors.New("no dist-info directory found in wheel")
	// ErrMultipleDistInfo is returned when an archive contains more
	// than one dist-info directory and the distribution is ambiguous.
	ErrMultipleDistInfo = errors.New("multiple dist-info directories found in wheel")
)
