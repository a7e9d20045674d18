package save

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/a-h/retread/config"
	"github.com/a-h/retread/handlers/simple"
	"github.com/a-h/retread/models"
	"github.com/a-h/retread/storage"
	"github.com/a-h/retread/upstream"
	"github.com/a-h/retread/wheel"
)

func New(log *slog.Logger, client *upstream.Client, storage storage.Storage) *Saver {
	return &Saver{
		log:     log,
		client:  client,
		storage: storage,
	}
}

// Saver writes a renamed mirror snapshot: for each rename rule, every
// matching upstream wheel is downloaded, run through the rename
// engine, and stored under the virtual package name alongside its
// metadata.
type Saver struct {
	log     *slog.Logger
	client  *upstream.Client
	storage storage.Storage
}

func (s *Saver) Save(ctx context.Context, rules []config.RenameRule) error {
	for _, rule := range rules {
		if err := s.saveRule(ctx, rule); err != nil {
			s.log.Error("failed to save package", slog.String("package", rule.Original), slog.Any("error", err))
			return err
		}
	}
	return nil
}

func (s *Saver) saveRule(ctx context.Context, rule config.RenameRule) error {
	s.log.Info("saving renamed package", slog.String("original", rule.Original), slog.String("name", rule.NewName), slog.String("version", rule.VersionSpec))

	files, err := s.client.List(ctx, rule.Original)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", rule.Original, err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no wheels found for %s", rule.Original)
	}

	files, err = upstream.FilterVersions(files, rule.VersionSpec)
	if err != nil {
		return fmt.Errorf("failed to filter versions for %s: %w", rule.Original, err)
	}

	s.log.Debug("saving wheels", slog.String("package", rule.Original), slog.Int("totalFiles", len(files)))
	for _, file := range files {
		if err := s.saveWheel(ctx, rule, file); err != nil {
			return fmt.Errorf("failed to save wheel %s: %w", file.Filename, err)
		}
	}

	s.log.Info("saved package", slog.String("name", rule.NewName), slog.Int("files", len(files)))
	return nil
}

func (s *Saver) saveWheel(ctx context.Context, rule config.RenameRule, file models.FileEntry) error {
	renamedFilename := simple.RewriteFilename(file.Filename, rule)
	storagePath := fmt.Sprintf("%s/%s", wheel.Normalize(rule.NewName), renamedFilename)

	_, exists, err := s.storage.Stat(ctx, storagePath)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", storagePath, err)
	}
	if exists {
		s.log.Debug("wheel already saved, skipping", slog.String("file", renamedFilename))
		return nil
	}

	s.log.Debug("downloading wheel", slog.String("url", file.URL))
	body, err := s.client.Download(ctx, file.URL)
	if err != nil {
		return err
	}
	wheelBytes, err := io.ReadAll(body)
	body.Close()
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", file.URL, err)
	}

	renamed, err := wheel.RenameBytes(wheelBytes, rule.NewName, wheel.Options{})
	if err != nil {
		return fmt.Errorf("failed to rename %s: %w", file.Filename, err)
	}

	w, err := s.storage.Put(ctx, storagePath)
	if err != nil {
		return fmt.Errorf("failed to create storage writer for %s: %w", storagePath, err)
	}
	if _, err := w.Write(renamed); err != nil {
		w.Close()
		return fmt.Errorf("failed to write %s to storage: %w", storagePath, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close storage writer for %s: %w", storagePath, err)
	}

	// Save metadata alongside the wheel, describing the renamed bytes
	// rather than the upstream originals.
	sum := sha256.Sum256(renamed)
	entry := models.FileEntry{
		Filename:       renamedFilename,
		URL:            renamedFilename,
		Hashes:         map[string]string{"sha256": hex.EncodeToString(sum[:])},
		RequiresPython: file.RequiresPython,
		Size:           int64(len(renamed)),
	}
	mw, err := s.storage.Put(ctx, storagePath+".json")
	if err != nil {
		return fmt.Errorf("failed to create storage writer for metadata %s: %w", storagePath, err)
	}
	defer mw.Close()
	encoder := json.NewEncoder(mw)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(entry); err != nil {
		return fmt.Errorf("failed to encode metadata for %s: %w", storagePath, err)
	}

	return nil
}
