package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/a-h/retread/models"
	pep440 "github.com/aquasecurity/go-pep440-version"
)

const userAgent = "retread/0.1 (+https://github.com/a-h/retread)"

// New creates a client that queries the given upstream simple index
// base URLs in priority order. The underlying HTTP client is shared by
// all requests and is safe for concurrent use.
func New(log *slog.Logger, upstreams []string) *Client {
	return &Client{
		log: log,
		client: &http.Client{
			Timeout: 5 * time.Minute,
		},
		upstreams: upstreams,
	}
}

type Client struct {
	log       *slog.Logger
	client    *http.Client
	upstreams []string
}

// List fetches the wheel file entries for a project from the first
// upstream that has it. A 404 means "try the next upstream", and so
// does any transport failure: listing is transient-failure-tolerant at
// the cost of masking which upstream failed. An empty result with a
// nil error means no configured upstream knows the project.
func (c *Client) List(ctx context.Context, project string) ([]models.FileEntry, error) {
	for _, base := range c.upstreams {
		pageURL := strings.TrimSuffix(base, "/") + "/" + url.PathEscape(project) + "/"
		files, err := c.list(ctx, project, pageURL)
		if err != nil {
			c.log.Warn("upstream listing failed, trying next", slog.String("url", pageURL), slog.Any("error", err))
			continue
		}
		if len(files) == 0 {
			continue
		}
		return files, nil
	}
	return nil, nil
}

var errProjectNotFound = fmt.Errorf("project not found")

func (c *Client) list(ctx context.Context, project, pageURL string) ([]models.FileEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/vnd.pypi.simple.v1+json, text/html;q=0.5")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to perform request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, errProjectNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var files []models.FileEntry
	if strings.Contains(resp.Header.Get("Content-Type"), "json") {
		var index models.PackageIndex
		if err := json.NewDecoder(resp.Body).Decode(&index); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		files = index.Files
	} else {
		files, err = ParseProjectHTML(resp.Body, pageURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse project page: %w", err)
		}
	}

	// Only wheels can be renamed, so only wheels are listed.
	wheels := files[:0]
	for _, f := range files {
		if f.IsWheel() {
			wheels = append(wheels, f)
		}
	}

	c.log.Debug("fetched project page", slog.String("project", project), slog.String("url", pageURL), slog.Int("wheels", len(wheels)))
	return wheels, nil
}

// Download opens a streaming GET for a package file. The caller owns
// the returned body and must close it. A non-2xx status is an error:
// once a specific file's URL is known there is no fallback source, so
// a failed download is terminal.
func (c *Client) Download(ctx context.Context, fileURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", fileURL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code %d when downloading %s", resp.StatusCode, fileURL)
	}
	return resp.Body, nil
}

// FindFileURL returns the URL of the entry with the given filename.
func FindFileURL(files []models.FileEntry, filename string) (string, bool) {
	for _, f := range files {
		if f.Filename == filename {
			return f.URL, true
		}
	}
	return "", false
}

// FilterVersions keeps only entries whose version satisfies the PEP
// 440 specifier. Pre-release versions are included in matching.
// Entries with unparseable versions are dropped rather than failing
// the whole listing. An empty specifier keeps everything.
func FilterVersions(files []models.FileEntry, specifier string) ([]models.FileEntry, error) {
	if specifier == "" {
		return files, nil
	}
	spec, err := pep440.NewSpecifiers(specifier, pep440.WithPreRelease(true))
	if err != nil {
		return nil, fmt.Errorf("invalid version specifier %q: %w", specifier, err)
	}
	filtered := make([]models.FileEntry, 0, len(files))
	for _, f := range files {
		v, err := pep440.Parse(f.Version())
		if err != nil {
			continue
		}
		if !spec.Check(v) {
			continue
		}
		filtered = append(filtered, f)
	}
	return filtered, nil
}
