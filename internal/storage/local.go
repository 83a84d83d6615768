package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore writes uploads below a directory on the local filesystem.
type LocalStore struct {
	root      string
	urlPrefix string
	maxBytes  int64
}

func NewLocalStore(root, urlPrefix string, maxBytes int64) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage/local: mkdir %s: %w", root, err)
	}
	return &LocalStore{
		root:      root,
		urlPrefix: strings.TrimRight(urlPrefix, "/"),
		maxBytes:  maxBytes,
	}, nil
}

func (s *LocalStore) Store(_ context.Context, filename string, r io.Reader, size int64) (string, error) {
	if err := check(filename, size, s.maxBytes); err != nil {
		return "", err
	}
	name := objectName(filename)
	full := filepath.Join(s.root, name)

	f, err := os.Create(full)
	if err != nil {
		return "", fmt.Errorf("storage/local: create %s: %w", name, err)
	}
	defer f.Close()

	// Guard against a size header that understates the body.
	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	n, err := io.Copy(f, src)
	if err != nil {
		_ = os.Remove(full)
		return "", fmt.Errorf("storage/local: write %s: %w", name, err)
	}
	if s.maxBytes > 0 && n > s.maxBytes {
		_ = os.Remove(full)
		return "", fmt.Errorf("%w: more than %d bytes", ErrTooLarge, s.maxBytes)
	}
	return s.urlPrefix + "/" + name, nil
}

func (s *LocalStore) Open(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.root, SafeName(name)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage/local: open %s: %w", name, err)
	}
	return f, nil
}
