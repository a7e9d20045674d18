package upstream

import (
	"strings"
	"testing"

	"github.com/a-h/retread/models"
	"github.com/google/go-cmp/cmp"
)

func TestParseProjectHTML(t *testing.T) {
	page := `<!DOCTYPE html>
<html>
<body>
<h1>Links for icechunk</h1>
<a href="../../packages/icechunk-1.5.0-py3-none-any.whl#sha256=abc123" data-requires-python="&gt;=3.9">icechunk-1.5.0-py3-none-any.whl</a><br/>
<a href="https://files.example.com/icechunk-2.0.0-py3-none-any.whl">icechunk-2.0.0-py3-none-any.whl</a><br/>
<a href="icechunk-2.1.0.tar.gz">icechunk-2.1.0.tar.gz</a><br/>
<a>no href</a><br/>
</body>
</html>`

	files, err := ParseProjectHTML(strings.NewReader(page), "https://pypi.example.com/simple/icechunk/")
	if err != nil {
		t.Fatalf("failed to parse project page: %v", err)
	}

	expected := []models.FileEntry{
		{
			Filename:       "icechunk-1.5.0-py3-none-any.whl",
			URL:            "https://pypi.example.com/packages/icechunk-1.5.0-py3-none-any.whl",
			Hashes:         map[string]string{"sha256": "abc123"},
			RequiresPython: ">=3.9",
		},
		{
			Filename: "icechunk-2.0.0-py3-none-any.whl",
			URL:      "https://files.example.com/icechunk-2.0.0-py3-none-any.whl",
		},
		{
			Filename: "icechunk-2.1.0.tar.gz",
			URL:      "https://pypi.example.com/simple/icechunk/icechunk-2.1.0.tar.gz",
		},
	}
	if diff := cmp.Diff(expected, files); diff != "" {
		t.Errorf("unexpected entries (-want +got):\n%s", diff)
	}
}
