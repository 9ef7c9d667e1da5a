// Package attachments stores transaction images under the images directory.
package attachments

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"fintrack/internal/core"
)

const (
	DefaultMaxDimension = 1600
	jpegQuality         = 85
)

// Store keeps normalized JPEGs at <root>/YYYY/MM/<uuid>.jpg.
type Store struct {
	root   string
	maxDim int
	now    func() time.Time
}

func NewStore(root string, maxDim int) (*Store, error) {
	if maxDim <= 0 {
		maxDim = DefaultMaxDimension
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create images directory: %w", err)
	}
	return &Store{root: root, maxDim: maxDim, now: time.Now}, nil
}

// Root is the images directory.
func (s *Store) Root() string {
	return s.root
}

// Save decodes an image, applies its EXIF orientation, shrinks it to fit the
// maximum dimension and writes it as JPEG. It returns the relative path.
func (s *Store) Save(r io.Reader) (string, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return "", core.FileFormatError("save attachment", "unsupported image: %v", err)
	}
	b := img.Bounds()
	if b.Dx() > s.maxDim || b.Dy() > s.maxDim {
		img = imaging.Fit(img, s.maxDim, s.maxDim, imaging.Lanczos)
	}

	now := s.now()
	rel := filepath.ToSlash(filepath.Join(now.Format("2006"), now.Format("01"), uuid.NewString()+".jpg"))
	full := filepath.Join(s.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create attachment directory: %w", err)
	}
	if err := imaging.Save(img, full, imaging.JPEGQuality(jpegQuality)); err != nil {
		return "", fmt.Errorf("write attachment: %w", err)
	}
	slog.Info("Attachment saved", "path", rel, "width", img.Bounds().Dx(), "height", img.Bounds().Dy())
	return rel, nil
}

// Path resolves a relative attachment path inside the root.
func (s *Store) Path(rel string) (string, error) {
	if !core.IsSafeRelativePath(rel) {
		return "", core.ValidationError("resolve attachment", "invalid attachment path %q", rel)
	}
	return filepath.Join(s.root, filepath.FromSlash(rel)), nil
}

// Open returns the stored file for reading.
func (s *Store) Open(rel string) (*os.File, error) {
	full, err := s.Path(rel)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, core.NotFoundError("open attachment", "attachment %s not found", rel)
	}
	if err != nil {
		return nil, fmt.Errorf("open attachment: %w", err)
	}
	return f, nil
}

// Delete removes the file; a missing file is not an error.
func (s *Store) Delete(rel string) error {
	full, err := s.Path(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete attachment: %w", err)
	}
	return nil
}

// DeleteAll removes every listed attachment, logging failures.
func (s *Store) DeleteAll(paths []string) {
	for _, p := range paths {
		if err := s.Delete(p); err != nil {
			slog.Warn("Failed to delete attachment", "path", p, "error", err)
		}
	}
}
