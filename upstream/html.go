package upstream

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/a-h/retread/models"
	"golang.org/x/net/html"
)

// ParseProjectHTML parses a PEP 503 project page into file entries.
// Each anchor contributes one entry: the anchor text is the filename,
// the href (resolved against pageURL) is the download URL, an optional
// data-requires-python attribute carries the Python requirement, and
// an optional "#algo=hex" URL fragment carries a content digest.
func ParseProjectHTML(r io.Reader, pageURL string) ([]models.FileEntry, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page URL %q: %w", pageURL, err)
	}

	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var files []models.FileEntry
	for n := range doc.Descendants() {
		if n.Type != html.ElementNode || n.Data != "a" {
			continue
		}
		entry, ok := anchorToEntry(n, base)
		if !ok {
			continue
		}
		files = append(files, entry)
	}
	return files, nil
}

func anchorToEntry(n *html.Node, base *url.URL) (entry models.FileEntry, ok bool) {
	var href string
	for _, attr := range n.Attr {
		switch attr.Key {
		case "href":
			href = attr.Val
		case "data-requires-python":
			entry.RequiresPython = attr.Val
		}
	}
	if href == "" {
		return entry, false
	}

	entry.Filename = strings.TrimSpace(nodeText(n))
	if entry.Filename == "" {
		return entry, false
	}

	ref, err := url.Parse(href)
	if err != nil {
		return entry, false
	}
	resolved := base.ResolveReference(ref)
	if algo, hex, found := strings.Cut(resolved.Fragment, "="); found && algo != "" && hex != "" {
		entry.Hashes = map[string]string{algo: hex}
	}
	resolved.Fragment = ""
	entry.URL = resolved.String()
	return entry, true
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}
