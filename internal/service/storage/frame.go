package storage

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	"mirrorml/internal/service/imaging"
)

// FrameSaver keeps the latest frame seen by a listener on disk, overwriting the
// previous one. A zero-value path disables saving.
type FrameSaver struct {
	path string
	mu   sync.Mutex
}

// NewFrameSaver creates a FrameSaver writing to path.
func NewFrameSaver(path string) *FrameSaver {
	return &FrameSaver{path: path}
}

// FrameMode is the permission of saved frames.
const FrameMode os.FileMode = 0644

// Save encodes img as JPEG next to the target and renames it into place.
func (s *FrameSaver) Save(img image.Image) error {
	if s == nil || s.path == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create frame directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp frame: %w", err)
	}
	tmpName := tmp.Name()

	if err := imaging.EncodeJPEG(tmp, img); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	if err := tmp.Chmod(FrameMode); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to set frame permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write frame: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to save frame %s: %w", s.path, err)
	}
	return nil
}
