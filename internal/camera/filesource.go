// Package camera enthält Bildquellen ohne native Abhängigkeiten.
package camera

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"faceauth-go/internal/faceauth"
	"faceauth-go/internal/imaging"
)

// FileSource liefert Bilder aus einer Datei oder der Reihe nach aus einem Verzeichnis.
// Nach dem letzten Bild meldet Read ErrEmptyFrame, außer Loop ist gesetzt.
type FileSource struct {
	paths []string
	loop  bool

	mu   sync.Mutex
	next int
}

var _ faceauth.FrameSource = (*FileSource)(nil)

// NewFileSource erstellt eine Quelle für path (Datei oder Verzeichnis)
func NewFileSource(path string, loop bool) (*FileSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open frame source: %w", err)
	}

	if !info.IsDir() {
		return &FileSource{paths: []string{path}, loop: loop}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			paths = append(paths, filepath.Join(path, e.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no images in %s", path)
	}
	sort.Strings(paths)

	return &FileSource{paths: paths, loop: loop}, nil
}

// IsFileSource meldet, ob device auf eine Datei oder ein Verzeichnis zeigt
func IsFileSource(device string) bool {
	_, err := os.Stat(device)
	return err == nil
}

// Read liefert das nächste Bild
func (s *FileSource) Read(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.next >= len(s.paths) {
		if !s.loop {
			s.mu.Unlock()
			return nil, faceauth.ErrEmptyFrame
		}
		s.next = 0
	}
	path := s.paths[s.next]
	s.next++
	s.mu.Unlock()

	return imaging.DecodeFile(path)
}

// Close implementiert io.Closer
func (s *FileSource) Close() error {
	return nil
}
