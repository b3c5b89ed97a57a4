package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

type FileCache struct {
	Dir string
}

var _ Cache = (*FileCache)(nil)

func NewFileCache(dir string) *FileCache {
	return &FileCache{Dir: dir}
}

// path resolves key below Dir. Keys that are absolute or climb out of Dir
// are rejected.
func (fc *FileCache) path(key string) (string, error) {
	if !filepath.IsLocal(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(fc.Dir, key), nil
}

func (fc *FileCache) Get(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := fc.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

func (fc *FileCache) Exists(_ context.Context, key string) (bool, error) {
	p, err := fc.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (fc *FileCache) Put(_ context.Context, key, value string, opts PutOptions) error {
	filePath, err := fc.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return err
	}

	if opts.Condition == PutIfNoneMatch {
		f, err := os.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err != nil {
			if errors.Is(err, fs.ErrExist) {
				return ErrAlreadyExists
			}
			return err
		}
		if _, err := f.WriteString(value); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	}

	// write then rename so a reader never sees half a document
	tmp, err := os.CreateTemp(filepath.Dir(filePath), ".tmp-"+filepath.Base(filePath)+"-*")
	if err != nil {
		return err
	}
	if _, err := tmp.WriteString(value); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filePath)
}
