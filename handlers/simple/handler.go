package simple

import (
	"encoding/json"
	"html"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/a-h/retread/config"
	"github.com/a-h/retread/metrics"
	"github.com/a-h/retread/models"
	"github.com/a-h/retread/upstream"
	"github.com/a-h/retread/wheel"
)

const jsonContentType = "application/vnd.pypi.simple.v1+json"

func New(log *slog.Logger, client *upstream.Client, cfg config.Config, metrics metrics.Metrics) Handler {
	return Handler{
		log:     log,
		client:  client,
		cfg:     cfg,
		metrics: metrics,
	}
}

// Handler serves a PEP 503 simple index backed by upstream indexes,
// substituting renamed wheels for the configured virtual packages.
type Handler struct {
	log     *slog.Logger
	client  *upstream.Client
	cfg     config.Config
	metrics metrics.Metrics
}

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Trim prefix of /simple, if present. The request is left
	// untouched so wrapping middleware sees the path it was given.
	p := strings.TrimPrefix(r.URL.Path, "/simple")
	p = strings.TrimPrefix(p, "/")
	p = strings.TrimSuffix(p, "/")

	if p == "" {
		h.listProjects(w, r)
		return
	}

	pathParts := strings.Split(p, "/")
	if len(pathParts) > 1 {
		h.getFile(w, r, pathParts[0], pathParts[1])
		return
	}

	h.getProject(w, r, p)
}

// listProjects serves the root index. Only the virtual packages from
// the rename rules are listed: the proxy is not a full mirror, and
// real projects are resolved on demand when their page is requested.
func (h Handler) listProjects(w http.ResponseWriter, r *http.Request) {
	names := h.cfg.VirtualPackages()

	if wantsJSON(r) {
		response := struct {
			Meta     models.Meta `json:"meta"`
			Projects []struct {
				Name string `json:"name"`
			} `json:"projects"`
		}{
			Meta: models.Meta{APIVersion: "1.0"},
		}
		for _, name := range names {
			response.Projects = append(response.Projects, struct {
				Name string `json:"name"`
			}{Name: name})
		}
		w.Header().Set("Content-Type", jsonContentType)
		json.NewEncoder(w).Encode(response)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte("<!DOCTYPE html>\n<html>\n<head><title>Simple index</title></head>\n<body>\n"))
	for _, name := range names {
		w.Write([]byte("<a href=\"" + html.EscapeString(name) + "/\">" + html.EscapeString(name) + "</a><br/>\n"))
	}
	w.Write([]byte("</body>\n</html>\n"))
}

// getProject serves a project page. Virtual packages get the original
// package's records filtered by the rule's version constraint, with
// filenames rewritten and URLs pointing back at this proxy. Unknown
// names pass through to upstream unmodified.
func (h Handler) getProject(w http.ResponseWriter, r *http.Request, name string) {
	rule, isVirtual := h.cfg.Rule(name)

	project := name
	if isVirtual {
		project = rule.Original
	}

	files, err := h.client.List(r.Context(), project)
	if err != nil {
		h.log.Error("failed to list project", slog.String("project", project), slog.Any("error", err))
		h.metrics.IncrementUpstreamErrors(r.Context())
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	if len(files) == 0 {
		http.Error(w, "project not found", http.StatusNotFound)
		return
	}

	kind := "passthrough"
	if isVirtual {
		kind = "renamed"
		files, err = upstream.FilterVersions(files, rule.VersionSpec)
		if err != nil {
			h.log.Error("failed to filter versions", slog.String("project", project), slog.Any("error", err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if len(files) == 0 {
			http.Error(w, "project not found", http.StatusNotFound)
			return
		}
		for i, f := range files {
			renamed := RewriteFilename(f.Filename, rule)
			files[i].Filename = renamed
			// The proxy serves the renamed bytes itself; relative URLs
			// resolve to this project page's download endpoint. The
			// upstream digest and size no longer apply once the
			// archive is rewritten, so they are not advertised.
			files[i].URL = renamed
			files[i].Hashes = nil
			files[i].Size = 0
		}
	}

	h.metrics.IncrementListings(r.Context(), kind)

	index := models.PackageIndex{
		Meta:  models.Meta{APIVersion: "1.0"},
		Name:  name,
		Files: files,
	}
	seen := make(map[string]bool)
	for _, f := range files {
		if v := f.Version(); v != "" && !seen[v] {
			seen[v] = true
			index.Versions = append(index.Versions, v)
		}
	}

	if wantsJSON(r) {
		w.Header().Set("Content-Type", jsonContentType)
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.Encode(index)
		return
	}

	h.getProjectHTML(w, index)
}

func (h Handler) getProjectHTML(w http.ResponseWriter, index models.PackageIndex) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte("<!DOCTYPE html>\n<html>\n<head><title>Links for " + html.EscapeString(index.Name) + "</title></head>\n<body>\n<h1>Links for " + html.EscapeString(index.Name) + "</h1>\n"))

	for _, file := range index.Files {
		href := file.URL
		if digest := file.Digest(); digest != "" && !strings.Contains(href, "#") {
			href += "#" + digest
		}
		w.Write([]byte("<a href=\"" + html.EscapeString(href) + "\""))
		if file.RequiresPython != "" {
			w.Write([]byte(" data-requires-python=\"" + html.EscapeString(file.RequiresPython) + "\""))
		}
		w.Write([]byte(">" + html.EscapeString(file.Filename) + "</a><br/>\n"))
	}

	w.Write([]byte("</body>\n</html>\n"))
}

// getFile serves a package file. For a virtual package the original
// wheel is fetched from upstream, buffered, renamed in memory and
// served directly. For anything else the client is redirected to the
// upstream URL and no bytes pass through the proxy.
func (h Handler) getFile(w http.ResponseWriter, r *http.Request, name, filename string) {
	rule, isVirtual := h.cfg.Rule(name)

	if !isVirtual {
		files, err := h.client.List(r.Context(), name)
		if err != nil {
			h.log.Error("failed to list project", slog.String("project", name), slog.Any("error", err))
			h.metrics.IncrementUpstreamErrors(r.Context())
			http.Error(w, "bad gateway", http.StatusBadGateway)
			return
		}
		fileURL, ok := upstream.FindFileURL(files, filename)
		if !ok {
			http.Error(w, "file not found", http.StatusNotFound)
			return
		}
		http.Redirect(w, r, fileURL, http.StatusFound)
		return
	}

	originalFilename := OriginalFilename(filename, rule)

	files, err := h.client.List(r.Context(), rule.Original)
	if err != nil {
		h.log.Error("failed to list project", slog.String("project", rule.Original), slog.Any("error", err))
		h.metrics.IncrementUpstreamErrors(r.Context())
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	files, err = upstream.FilterVersions(files, rule.VersionSpec)
	if err != nil {
		h.log.Error("failed to filter versions", slog.String("project", rule.Original), slog.Any("error", err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	fileURL, ok := upstream.FindFileURL(files, originalFilename)
	if !ok {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}

	h.log.Debug("downloading wheel for rename", slog.String("url", fileURL), slog.String("newName", rule.NewName))
	body, err := h.client.Download(r.Context(), fileURL)
	if err != nil {
		h.log.Error("failed to download wheel", slog.String("url", fileURL), slog.Any("error", err))
		h.metrics.IncrementUpstreamErrors(r.Context())
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	defer body.Close()

	// The whole wheel is buffered before rewriting. Simpler than a
	// streaming rewrite, at the cost of memory proportional to the
	// artifact size.
	wheelBytes, err := io.ReadAll(body)
	if err != nil {
		h.log.Error("failed to read wheel", slog.String("url", fileURL), slog.Any("error", err))
		h.metrics.IncrementUpstreamErrors(r.Context())
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}

	renamed, err := wheel.RenameBytes(wheelBytes, rule.NewName, wheel.Options{})
	if err != nil {
		h.log.Error("failed to rename wheel", slog.String("filename", originalFilename), slog.Any("error", err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	n, err := w.Write(renamed)
	if err != nil {
		h.log.Error("failed to write wheel to response", slog.String("filename", filename), slog.Any("error", err))
		return
	}
	h.metrics.IncrementRenamedDownloads(r.Context(), int64(n))
}

// RewriteFilename substitutes the distribution prefix of a wheel
// filename according to a rename rule. The match is exact on the
// distribution boundary: only a first segment that normalizes to the
// rule's original name is replaced, never arbitrary substrings.
func RewriteFilename(filename string, rule config.RenameRule) string {
	return substituteDistribution(filename, rule.Original, rule.NewName)
}

// OriginalFilename maps a renamed wheel filename back to the original,
// the inverse of RewriteFilename.
func OriginalFilename(renamed string, rule config.RenameRule) string {
	return substituteDistribution(renamed, rule.NewName, rule.Original)
}

func substituteDistribution(filename, from, to string) string {
	distribution, rest, found := strings.Cut(filename, "-")
	if !found || wheel.Normalize(distribution) != wheel.Normalize(from) {
		return filename
	}
	return wheel.Normalize(to) + "-" + rest
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), jsonContentType)
}
