package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
)

type LocalStorage struct {
	dir string
}

func NewLocalStorage(dir string) (*LocalStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &LocalStorage{dir: dir}, nil
}

func (s *LocalStorage) Upload(ctx context.Context, name string, data io.Reader) error {
	f, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return err
	}

	if _, err := io.Copy(f, data); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

func (s *LocalStorage) Download(ctx context.Context, name string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(s.dir, name))
}

func (s *LocalStorage) Delete(ctx context.Context, name string) error {
	return os.Remove(filepath.Join(s.dir, name))
}

func (s *LocalStorage) Exists(ctx context.Context, name string) (bool, error) {
	_, err := os.Stat(filepath.Join(s.dir, name))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
