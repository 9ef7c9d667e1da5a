// Package backup writes and restores ZIP bundles holding data.json and the
// images directory.
package backup

import (
	"archive/zip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"
)

const (
	// Version is the only bundle version Restore accepts.
	Version = "1.0"

	dataFile     = "data.json"
	imagesPrefix = "images/"

	maxDataBytes  = 256 << 20
	maxImageBytes = 64 << 20
)

// Store is the persistence a backup reads from and restores into.
type Store interface {
	ExportDataset(ctx context.Context) (core.Dataset, error)
	ReplaceDataset(ctx context.Context, d core.Dataset) error
	RecordBackup(ctx context.Context, rec core.BackupRecord) (core.BackupRecord, error)
}

// Settings records when the last backup was taken.
type Settings interface {
	SetLastBackupAt(ctx context.Context, at time.Time) error
}

// Invalidator drops cached reports after a restore.
type Invalidator interface {
	Clear()
}

type bundle struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	core.Dataset
}

// RestoreResult summarizes a completed restore.
type RestoreResult struct {
	Accounts     int `json:"accounts"`
	Categories   int `json:"categories"`
	Transactions int `json:"transactions"`
	Budgets      int `json:"budgets"`
	Images       int `json:"images"`
}

type Service struct {
	store       Store
	settings    Settings
	invalidator Invalidator
	imagesDir   string
	now         func() time.Time
}

func NewService(store Store, settings Settings, invalidator Invalidator, imagesDir string) *Service {
	return &Service{
		store:       store,
		settings:    settings,
		invalidator: invalidator,
		imagesDir:   imagesDir,
		now:         time.Now,
	}
}

// FileName suggests a bundle name for a backup taken at t.
func FileName(t time.Time) string {
	return "fintrack-backup-" + t.UTC().Format("20060102-150405") + ".zip"
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Create streams a bundle to w and records it under name.
func (s *Service) Create(ctx context.Context, w io.Writer, name string) (core.BackupRecord, error) {
	d, err := s.store.ExportDataset(ctx)
	if err != nil {
		return core.BackupRecord{}, fmt.Errorf("export dataset: %w", err)
	}
	createdAt := s.now()

	cw := &countingWriter{w: w}
	zw := zip.NewWriter(cw)

	data, err := json.MarshalIndent(bundle{Version: Version, CreatedAt: createdAt.UTC(), Dataset: d}, "", "  ")
	if err != nil {
		return core.BackupRecord{}, fmt.Errorf("encode data.json: %w", err)
	}
	f, err := zw.CreateHeader(&zip.FileHeader{Name: dataFile, Method: zip.Deflate, Modified: createdAt})
	if err != nil {
		return core.BackupRecord{}, fmt.Errorf("create data.json entry: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		return core.BackupRecord{}, fmt.Errorf("write data.json: %w", err)
	}

	images, err := s.addImages(ctx, zw)
	if err != nil {
		return core.BackupRecord{}, err
	}
	if err := zw.Close(); err != nil {
		return core.BackupRecord{}, fmt.Errorf("finish zip: %w", err)
	}

	rec, err := s.store.RecordBackup(ctx, core.BackupRecord{
		FileName:     name,
		SizeBytes:    cw.n,
		Transactions: len(d.Transactions),
		CreatedAt:    createdAt,
	})
	if err != nil {
		return core.BackupRecord{}, fmt.Errorf("record backup: %w", err)
	}
	if s.settings != nil {
		if err := s.settings.SetLastBackupAt(ctx, createdAt); err != nil {
			slog.WarnContext(ctx, "Failed to store last backup time", "error", err)
		}
	}
	slog.InfoContext(ctx, "Backup created",
		"file", name,
		"bytes", cw.n,
		"transactions", len(d.Transactions),
		"images", images)
	return rec, nil
}

func (s *Service) addImages(ctx context.Context, zw *zip.Writer) (int, error) {
	if s.imagesDir == "" {
		return 0, nil
	}
	count := 0
	err := filepath.WalkDir(s.imagesDir, func(p string, e fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == s.imagesDir {
				return fs.SkipAll
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !e.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(s.imagesDir, p)
		if err != nil {
			return err
		}
		info, err := e.Info()
		if err != nil {
			return err
		}
		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		hdr.Name = imagesPrefix + filepath.ToSlash(rel)
		hdr.Method = zip.Store
		dst, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		src, err := os.Open(p)
		if err != nil {
			return err
		}
		defer src.Close()
		if _, err := io.Copy(dst, src); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("add images: %w", err)
	}
	return count, nil
}

// Restore validates the bundle completely before replacing any data: a
// non-ZIP input, a missing data.json, a version other than "1.0", dangling
// references or unsafe image paths fail with a FileFormatError and leave the
// ledger untouched.
func (s *Service) Restore(ctx context.Context, r io.ReaderAt, size int64) (RestoreResult, error) {
	const op = "restore backup"
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return RestoreResult{}, core.FileFormatError(op, "not a zip archive")
	}

	var (
		dataEntry *zip.File
		images    []*zip.File
	)
	for _, f := range zr.File {
		switch {
		case f.Name == dataFile:
			dataEntry = f
		case strings.HasPrefix(f.Name, imagesPrefix):
			if f.FileInfo().IsDir() {
				continue
			}
			rel := strings.TrimPrefix(f.Name, imagesPrefix)
			if !core.IsSafeRelativePath(rel) || path.Clean(rel) != rel {
				return RestoreResult{}, core.FileFormatError(op, "unsafe image path %q", f.Name)
			}
			images = append(images, f)
		}
	}
	if dataEntry == nil {
		return RestoreResult{}, core.FileFormatError(op, "bundle has no %s", dataFile)
	}

	b, err := readBundle(dataEntry)
	if err != nil {
		return RestoreResult{}, err
	}
	if b.Version != Version {
		return RestoreResult{}, core.FileFormatError(op, "unsupported backup version %q", b.Version)
	}
	if err := b.CheckIntegrity(); err != nil {
		return RestoreResult{}, err
	}
	if err := b.ValidateRows(); err != nil {
		return RestoreResult{}, err
	}
	if b.Settings == nil {
		b.Settings = map[string]string{}
	}

	staging, err := s.extractImages(ctx, images)
	if err != nil {
		return RestoreResult{}, err
	}
	if err := s.store.ReplaceDataset(ctx, b.Dataset); err != nil {
		os.RemoveAll(staging)
		return RestoreResult{}, fmt.Errorf("replace dataset: %w", err)
	}
	if err := s.swapImages(staging); err != nil {
		// Data is restored; images stay where they were.
		slog.ErrorContext(ctx, "Failed to swap restored images", "error", err)
	}
	if s.invalidator != nil {
		s.invalidator.Clear()
	}

	res := RestoreResult{
		Accounts:     len(b.Accounts),
		Categories:   len(b.Categories),
		Transactions: len(b.Transactions),
		Budgets:      len(b.Budgets),
		Images:       len(images),
	}
	slog.InfoContext(ctx, "Backup restored",
		"accounts", res.Accounts,
		"transactions", res.Transactions,
		"images", res.Images,
		"bundle_created_at", b.CreatedAt)
	return res, nil
}

func readBundle(f *zip.File) (bundle, error) {
	const op = "restore backup"
	rc, err := f.Open()
	if err != nil {
		return bundle{}, core.FileFormatError(op, "cannot open %s: %v", dataFile, err)
	}
	defer rc.Close()

	var b bundle
	if err := json.NewDecoder(io.LimitReader(rc, maxDataBytes)).Decode(&b); err != nil {
		return bundle{}, core.FileFormatError(op, "invalid %s: %v", dataFile, err)
	}
	return b, nil
}

// extractImages writes the bundle images to a staging directory next to the
// images directory and returns its path.
func (s *Service) extractImages(ctx context.Context, images []*zip.File) (string, error) {
	if s.imagesDir == "" {
		return "", nil
	}
	parent := filepath.Dir(filepath.Clean(s.imagesDir))
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", fmt.Errorf("create images parent: %w", err)
	}
	staging := filepath.Join(parent, "."+filepath.Base(s.imagesDir)+"-restore-"+uuid.NewString())
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return "", fmt.Errorf("create staging directory: %w", err)
	}
	for _, f := range images {
		if err := ctx.Err(); err != nil {
			os.RemoveAll(staging)
			return "", err
		}
		if err := extractFile(f, filepath.Join(staging, filepath.FromSlash(strings.TrimPrefix(f.Name, imagesPrefix)))); err != nil {
			os.RemoveAll(staging)
			return "", err
		}
	}
	return staging, nil
}

func extractFile(f *zip.File, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create image directory: %w", err)
	}
	rc, err := f.Open()
	if err != nil {
		return core.FileFormatError("restore backup", "cannot open %s: %v", f.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create image: %w", err)
	}
	n, err := io.Copy(out, io.LimitReader(rc, maxImageBytes+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return core.FileFormatError("restore backup", "cannot extract %s: %v", f.Name, err)
	}
	if n > maxImageBytes {
		return core.FileFormatError("restore backup", "image %s is too large", f.Name)
	}
	return nil
}

// swapImages replaces the images directory with the staging directory.
func (s *Service) swapImages(staging string) error {
	if staging == "" {
		return nil
	}
	old := staging + "-old"
	if err := os.Rename(s.imagesDir, old); err != nil && !errors.Is(err, fs.ErrNotExist) {
		os.RemoveAll(staging)
		return fmt.Errorf("move current images: %w", err)
	}
	if err := os.Rename(staging, s.imagesDir); err != nil {
		os.Rename(old, s.imagesDir)
		return fmt.Errorf("install restored images: %w", err)
	}
	return os.RemoveAll(old)
}
