package ingest

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/sitequant/takeoff/constants"
	"github.com/sitequant/takeoff/internal/entity"
	"github.com/sitequant/takeoff/internal/repository"
)

// Registrar records uploaded artifacts. Files are deduplicated by
// content hash per project, so re-dropping the same document is a no-op.
type Registrar struct {
	files  repository.FileStore
	logs   repository.LogStore
	logger *slog.Logger
}

func NewRegistrar(files repository.FileStore, logs repository.LogStore, logger *slog.Logger) *Registrar {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registrar{files: files, logs: logs, logger: logger}
}

// RegisterPath hashes and classifies one document and records it for the
// project. The bool reports whether the content was already registered.
func (r *Registrar) RegisterPath(ctx context.Context, projectID uuid.UUID, path string) (*entity.ProjectFile, bool, error) {
	filename := filepath.Base(path)
	fileType, ok := constants.ClassifyFile(filename)
	if !ok {
		return nil, false, fmt.Errorf("unsupported file: %s", filename)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, false, fmt.Errorf("stat file: %w", err)
	}
	hash, err := hashFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("hash file: %w", err)
	}

	file := &entity.ProjectFile{
		ProjectID:   projectID,
		Filename:    filename,
		SourcePath:  path,
		FileExt:     constants.NormalizeExt(filepath.Ext(filename)),
		FileSize:    info.Size(),
		ContentHash: hash,
		FileType:    fileType,
		Status:      constants.FileStatusPending,
	}
	stored, deduped, err := r.files.UpsertByHash(ctx, file)
	if err != nil {
		return nil, false, err
	}
	if deduped {
		r.logger.Debug("file already registered", "project_id", projectID, "filename", filename)
		return stored, true, nil
	}

	r.logs.Append(ctx, projectID, stored.ID, fmt.Sprintf("registered %s file: %s", strings.ToLower(string(fileType)), filename))
	r.logger.Info("file registered",
		"project_id", projectID, "file_id", stored.ID,
		"filename", filename, "file_type", fileType, "size", info.Size())
	return stored, false, nil
}

// Run consumes watcher events. Inbox layout is <root>/<project-id>/...;
// files outside a project directory are skipped.
func (r *Registrar) Run(ctx context.Context, roots []string, events <-chan string, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if ok && err != nil {
				r.logger.Error("inbox watcher error", "error", err)
			}
		case path, ok := <-events:
			if !ok {
				return
			}
			projectID, ok := projectForPath(roots, path)
			if !ok {
				r.logger.Warn("inbox file outside a project directory", "path", path)
				continue
			}
			if _, _, err := r.RegisterPath(ctx, projectID, path); err != nil {
				r.logger.Error("inbox registration failed", "path", path, "error", err)
			}
		}
	}
}

func projectForPath(roots []string, path string) (uuid.UUID, bool) {
	for _, root := range roots {
		rel, err := filepath.Rel(root, path)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) < 2 {
			continue
		}
		id, err := uuid.Parse(parts[0])
		if err != nil {
			continue
		}
		return id, true
	}
	return uuid.Nil, false
}

func hashFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}
