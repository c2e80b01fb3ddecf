package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalPrefix - URL-префикс, по которому роутер отдает локальные вложения
const LocalPrefix = "/uploads/"

// LocalStore хранит вложения в каталоге на диске. Используется, когда MinIO не настроен.
type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir %q: %w", dir, err)
	}
	return &LocalStore{dir: dir}, nil
}

func (s *LocalStore) Dir() string {
	return s.dir
}

// Save пишет файл целиком; недописанный файл удаляется
func (s *LocalStore) Save(_ context.Context, name string, r io.Reader, _ int64, _ string) (string, error) {
	name = filepath.Base(name)
	full := filepath.Join(s.dir, name)

	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create %q: %w", name, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(full)
		return "", fmt.Errorf("failed to write %q: %w", name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(full)
		return "", fmt.Errorf("failed to close %q: %w", name, err)
	}
	return LocalPrefix + name, nil
}

// Delete удаляет файл по пути, который вернул Save. Отсутствующий файл не ошибка.
func (s *LocalStore) Delete(_ context.Context, path string) error {
	full := filepath.Join(s.dir, filepath.Base(path))
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %q: %w", path, err)
	}
	return nil
}
