// Package evidence persists screenshot proofs to the proofs directory.
package evidence

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const maxNameLen = 120

var (
	ErrEmptyImage = errors.New("empty image")

	unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
)

// Store writes one PNG per capture, named {sanitized-target}_{epoch-millis}.png.
// Names are collision resistant without locking.
type Store struct {
	dir string
	now func() time.Time
}

func New(dir string) *Store {
	return &Store{dir: dir, now: time.Now}
}

// Persist writes data and returns the absolute path of the file.
func (s *Store) Persist(target string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyImage
	}
	dir, err := filepath.Abs(s.dir)
	if err != nil {
		return "", fmt.Errorf("resolve proofs dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create proofs dir: %w", err)
	}

	name := fmt.Sprintf("%s_%d.png", SanitizeTarget(target), s.now().UnixMilli())
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		// same target captured twice within one millisecond
		path = filepath.Join(dir, fmt.Sprintf("%s_%d.png", SanitizeTarget(target), s.now().UnixNano()))
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	}
	if err != nil {
		return "", fmt.Errorf("create proof: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write proof: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close proof: %w", err)
	}
	return path, nil
}

// SanitizeTarget maps a URL onto a file name fragment.
func SanitizeTarget(target string) string {
	s := strings.TrimPrefix(strings.TrimPrefix(target, "https://"), "http://")
	s = unsafeChars.ReplaceAllString(s, "_")
	s = strings.Trim(s, "._-")
	if len(s) > maxNameLen {
		s = s[:maxNameLen]
	}
	if s == "" {
		return "target"
	}
	return s
}
