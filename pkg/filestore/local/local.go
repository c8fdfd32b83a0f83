package local

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
)

type Store struct {
	root   string
	prefix string
}

// New creates a store writing to root. URLs are built with prefix.
func New(root, prefix string) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("local: couldn't create %q: %w", root, err)
	}
	return &Store{root: root, prefix: prefix}, nil
}

func (s *Store) Put(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	dst, err := s.path(name)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return "", fmt.Errorf("local: couldn't write %q: %w", dst, err)
	}
	return s.prefix + url.PathEscape(name), nil
}

func (s *Store) Get(ctx context.Context, name string) ([]byte, error) {
	src, err := s.path(name)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(src)
	if err != nil {
		return nil, fmt.Errorf("local: couldn't read %q: %w", src, err)
	}
	return b, nil
}

func (s *Store) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("local: invalid file name %q", name)
	}
	return filepath.Join(s.root, name), nil
}
