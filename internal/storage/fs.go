package storage

import (
	"errors"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

type FSStore struct{ base string }

func NewFSStore(base string) (*FSStore, error) {
	if base == "" {
		base = "./data"
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, err
	}
	return &FSStore{base: base}, nil
}

// resolve maps a key to a path under base. Keys that would escape the
// storage root are refused; upload keys carry sanitized parts only, so a
// rejection here means the caller skipped sanitization.
func (s *FSStore) resolve(key string) (string, error) {
	if key == "" {
		return "", errors.New("empty key")
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == ".." ||
		strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errors.New("key escapes storage root")
	}
	return filepath.Join(s.base, clean), nil
}

func (s *FSStore) Put(key string, r io.Reader) (string, error) {
	dst, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return "", err
	}
	return key, nil
}

func (s *FSStore) Get(key string) (io.ReadCloser, error) {
	p, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

func (s *FSStore) Exists(key string) bool {
	p, err := s.resolve(key)
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

func (s *FSStore) Delete(key string) error {
	p, err := s.resolve(key)
	if err != nil {
		return err
	}
	return os.Remove(p)
}

func (s *FSStore) SignedURL(key string) (string, error) {
	p, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	u := url.URL{Scheme: "file", Path: p}
	return u.String(), nil
}
