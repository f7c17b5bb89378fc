// Package storage is a local-disk blob store for uploaded artifacts and
// generated QR images. References are paths relative to the store root,
// safe to persist and to serve statically.
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/guidely/guidely/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("storage",
	fx.Provide(New),
)

type Store struct {
	root string
}

func New(cfg config.Config) (*Store, error) {
	root := cfg.StorageDir
	if strings.TrimSpace(root) == "" {
		root = "data"
	}
	for _, sub := range []string{"artifacts", "qr"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	return &Store{root: root}, nil
}

// Root returns the store root directory.
func (s *Store) Root() string { return s.root }

// SaveArtifact streams an uploaded instruction artifact and returns its
// reference.
func (s *Store) SaveArtifact(name string, r io.Reader) (string, error) {
	ref := filepath.Join("artifacts", sanitize(name))
	if err := s.write(ref, r); err != nil {
		return "", err
	}
	return ref, nil
}

// SaveQR persists a rendered QR PNG and returns its reference.
func (s *Store) SaveQR(name string, png []byte) (string, error) {
	ref := filepath.Join("qr", sanitize(name))
	f, err := os.Create(filepath.Join(s.root, ref))
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.Write(png); err != nil {
		return "", err
	}
	return ref, nil
}

// Open opens a stored blob by reference.
func (s *Store) Open(ref string) (io.ReadCloser, error) {
	clean := filepath.Clean(ref)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return nil, fmt.Errorf("invalid blob reference %q", ref)
	}
	return os.Open(filepath.Join(s.root, clean))
}

// Remove deletes a stored blob; missing blobs are not an error.
func (s *Store) Remove(ref string) error {
	clean := filepath.Clean(ref)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return fmt.Errorf("invalid blob reference %q", ref)
	}
	err := os.Remove(filepath.Join(s.root, clean))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *Store) write(ref string, r io.Reader) error {
	f, err := os.Create(filepath.Join(s.root, ref))
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, r)
	return err
}

func sanitize(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "blob"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, name)
}
