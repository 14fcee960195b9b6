package filestore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	logx "github.com/1VeniVediVeci1/chatgpt-web-sub000/pkg/logger"
)

// Store persists binary images and serves them back by relative path.
// Generated and uploaded images both go through here so conversation
// records only ever hold small path references, never raw base64.
type Store interface {
	// WriteImage stores data and returns the relative path to reference it by.
	WriteImage(data []byte, mimeType string) (string, error)
	// ReadImage loads a previously written image.
	ReadImage(relPath string) (mimeType string, data []byte, err error)
}

var extByMime = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

var mimeByExt = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// DiskStore writes images under a single root directory. File names carry
// the write timestamp plus a random suffix to avoid collisions within one
// millisecond.
type DiskStore struct {
	root string
}

// NewDiskStore ensures root exists and returns a store over it.
func NewDiskStore(root string) (*DiskStore, error) {
	if root == "" {
		root = "uploads"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskStore{root: root}, nil
}

func (s *DiskStore) WriteImage(data []byte, mimeType string) (string, error) {
	ext, ok := extByMime[strings.ToLower(mimeType)]
	if !ok {
		ext = ".png"
	}
	name := fmt.Sprintf("%d-%s%s", time.Now().UnixMilli(), uuid.NewString()[:8], ext)
	rel := filepath.Join("uploads", name)
	abs := filepath.Join(s.root, name)

	if err := os.WriteFile(abs, data, 0o644); err != nil {
		logx.Error().Err(err).Str("path", abs).Msg("failed to write image")
		return "", fmt.Errorf("write image: %w", err)
	}
	logx.Debug().Str("path", rel).Int("bytes", len(data)).Msg("image persisted")
	return rel, nil
}

func (s *DiskStore) ReadImage(relPath string) (string, []byte, error) {
	name := filepath.Base(relPath)
	data, err := os.ReadFile(filepath.Join(s.root, name))
	if err != nil {
		return "", nil, fmt.Errorf("read image: %w", err)
	}
	mimeType, ok := mimeByExt[strings.ToLower(filepath.Ext(name))]
	if !ok {
		mimeType = "application/octet-stream"
	}
	return mimeType, data, nil
}

var _ Store = (*DiskStore)(nil)
