package wheel

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// rewrite describes one rename operation over an archive's entries.
type rewrite struct {
	// oldPkg is the normalized old name, used for the package root
	// directory and import statements.
	oldPkg string
	// oldDist is the distribution name exactly as the archive's
	// dist-info directory spells it. Wheels built from case-preserving
	// project names (Django, SQLAlchemy) keep that case here, so prefix
	// matching must use the literal form, never the normalized one.
	oldDist string
	// newName is the normalized new name, used for all rewritten paths.
	newName string
	// displayName is the new name as supplied by the caller, used for
	// the METADATA Name field. Paths always use the normalized form.
	displayName string
	version     string
	// skipImports disables rewriting of import statements in .py entries.
	skipImports bool
	// dependencyRenames maps normalized dependency names to their new
	// names, applied to Requires-Dist lines in METADATA.
	dependencyRenames map[string]string
}

func (rw rewrite) oldDistInfo() string {
	return rw.oldDist + "-" + rw.version + ".dist-info"
}

func (rw rewrite) newDistInfo() string {
	return rw.newName + "-" + rw.version + ".dist-info"
}

func (rw rewrite) oldDataDir() string {
	return rw.oldDist + "-" + rw.version + ".data"
}

func (rw rewrite) newDataDir() string {
	return rw.newName + "-" + rw.version + ".data"
}

// rewriteEntries transforms the full entry set of a wheel archive:
// reserved path prefixes are migrated from the old name to the new
// name, METADATA and Python source contents are rewritten, and the old
// RECORD entry is dropped (the caller regenerates it). The returned
// map is a fresh entry set; the input is not modified.
func rewriteEntries(entries map[string][]byte, rw rewrite) (map[string][]byte, error) {
	fromRe, importRe := importPatterns(rw.oldPkg)

	out := make(map[string][]byte, len(entries))
	foundDistInfo := false
	for name, content := range entries {
		newName := name
		switch {
		case name == rw.oldPkg || strings.HasPrefix(name, rw.oldPkg+"/"):
			newName = rw.newName + name[len(rw.oldPkg):]
		case name == rw.oldDistInfo() || strings.HasPrefix(name, rw.oldDistInfo()+"/"):
			newName = rw.newDistInfo() + name[len(rw.oldDistInfo()):]
			foundDistInfo = true
		case name == rw.oldDataDir() || strings.HasPrefix(name, rw.oldDataDir()+"/"):
			newName = rw.newDataDir() + name[len(rw.oldDataDir()):]
		}

		// The old RECORD is regenerated from scratch after rewriting.
		if name == recordName || strings.HasSuffix(name, "/"+recordName) {
			continue
		}

		switch {
		case newName == rw.newDistInfo()+"/"+metadataName:
			content = rewriteMetadata(content, rw.displayName, rw.dependencyRenames)
		case !rw.skipImports && strings.HasSuffix(newName, ".py"):
			content = rewriteImports(content, rw.newName, fromRe, importRe)
		}

		out[newName] = content
	}
	if !foundDistInfo {
		return nil, fmt.Errorf("%w: expected %s", ErrNoDistInfo, rw.oldDistInfo())
	}
	return out, nil
}

// importPatterns builds the two statement-level reference forms that
// are rewritten in Python sources: "from old import" / "from old.sub"
// and a bare "import old". Word boundaries stop the patterns from
// firing on identifiers that merely contain the old name.
func importPatterns(oldName string) (fromRe, importRe *regexp.Regexp) {
	fromRe = regexp.MustCompile(`\bfrom ` + regexp.QuoteMeta(oldName) + `(\s|\.)`)
	importRe = regexp.MustCompile(`\bimport ` + regexp.QuoteMeta(oldName) + `\b`)
	return fromRe, importRe
}

// rewriteImports replaces statement-level references to the old module
// name. Occurrences of the old name outside import statements, such as
// string literals, are deliberately left untouched: the engine targets
// reference syntax, not arbitrary text, and dynamic imports built from
// strings at runtime are out of scope.
func rewriteImports(content []byte, newName string, fromRe, importRe *regexp.Regexp) []byte {
	text := string(content)
	text = fromRe.ReplaceAllString(text, "from "+newName+"$1")
	text = importRe.ReplaceAllString(text, "import "+newName)
	return []byte(text)
}

// rewriteMetadata replaces the declared Name in a METADATA entry and,
// when dependency renames are supplied, rewrites Requires-Dist lines
// whose referenced package was itself renamed. Version specifiers,
// extras and markers on those lines are preserved.
func rewriteMetadata(content []byte, newName string, dependencyRenames map[string]string) []byte {
	lines := strings.Split(string(content), "\n")
	for i, line := range lines {
		if strings.HasPrefix(line, "Name:") {
			lines[i] = "Name: " + newName
			continue
		}
		if len(dependencyRenames) > 0 && strings.HasPrefix(line, "Requires-Dist:") {
			lines[i] = rewriteRequiresDist(line, dependencyRenames)
		}
	}
	return []byte(strings.Join(lines, "\n"))
}

func rewriteRequiresDist(line string, dependencyRenames map[string]string) string {
	rest := strings.TrimPrefix(line, "Requires-Dist:")
	trimmed := strings.TrimLeft(rest, " ")
	leading := rest[:len(rest)-len(trimmed)]

	end := strings.IndexFunc(trimmed, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' && r != '.'
	})
	if end == -1 {
		end = len(trimmed)
	}
	depName := trimmed[:end]
	if depName == "" {
		return line
	}

	replacement, ok := dependencyRenames[Normalize(depName)]
	if !ok {
		return line
	}
	return "Requires-Dist:" + leading + replacement + trimmed[end:]
}
