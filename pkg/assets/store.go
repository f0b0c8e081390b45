// Package assets persists decoded images and files so the platform can
// reference them by URL or local path.
package assets

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tinyland-inc/gsbridge/pkg/utils"
)

// Store writes assets under two directories: content-hashed images that are
// served over HTTP, and uuid-named files that are referenced by path.
type Store struct {
	imageDir  string
	fileDir   string
	publicURL string
	now       func() time.Time
}

type StoreOption func(*Store)

// WithClock overrides the time source used in image names.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

func NewStore(imageDir, fileDir, publicURL string, opts ...StoreOption) *Store {
	s := &Store{
		imageDir:  imageDir,
		fileDir:   fileDir,
		publicURL: strings.TrimRight(publicURL, "/"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) ImageDir() string { return s.imageDir }

// SaveImage writes data as <sha1[:8]>_<unix millis>.png and returns the name.
func (s *Store) SaveImage(data []byte) (string, error) {
	sum := sha1.Sum(data)
	name := fmt.Sprintf("%s_%d.png", hex.EncodeToString(sum[:])[:8], s.now().UnixMilli())
	if err := writeFile(s.imageDir, name, data); err != nil {
		return "", fmt.Errorf("save image: %w", err)
	}
	return name, nil
}

// SaveFile writes data under a fresh uuid and returns the absolute location.
func (s *Store) SaveFile(data []byte) (string, error) {
	name := uuid.NewString()
	if err := writeFile(s.fileDir, name, data); err != nil {
		return "", fmt.Errorf("save file: %w", err)
	}
	location, err := filepath.Abs(filepath.Join(s.fileDir, name))
	if err != nil {
		return "", fmt.Errorf("save file: %w", err)
	}
	return location, nil
}

// ImageURL returns the public URL an image saved as name is served at.
func (s *Store) ImageURL(name string) string {
	return s.publicURL + "/files/" + name
}

// Open opens a stored image by name for serving.
func (s *Store) Open(name string) (*os.File, error) {
	if err := utils.ValidateAssetName(name); err != nil {
		return nil, err
	}
	return os.Open(filepath.Join(s.imageDir, name))
}

func writeFile(dir, name string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, name), data, 0o644)
}
