package rpc

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/BartekS5/cmigrate/pkg/logger"
)

// InvalidSuffix is appended to cache files whose payload did not parse.
const InvalidSuffix = ".invalid"

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// Cache keeps raw response bodies on disk, one file per logical call name.
type Cache struct {
	Dir string
}

// NewCache creates dir if needed.
func NewCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create rpc cache %s: %w", dir, err)
	}
	return &Cache{Dir: dir}, nil
}

// Path is the file that holds the response for name.
func (c *Cache) Path(name string) string {
	return filepath.Join(c.Dir, unsafeName.ReplaceAllString(name, "_")+".xml")
}

func (c *Cache) Get(name string) ([]byte, bool, error) {
	b, err := os.ReadFile(c.Path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// Put writes body through a temporary file so a crash never leaves a
// truncated entry behind.
func (c *Cache) Put(name string, body []byte) error {
	tmp, err := os.CreateTemp(c.Dir, ".rpc-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), c.Path(name))
}

// Quarantine moves the entry for name aside and returns its new path.
func (c *Cache) Quarantine(name string) (string, error) {
	from := c.Path(name)
	to := from + InvalidSuffix
	if err := os.Rename(from, to); err != nil {
		return "", err
	}
	return to, nil
}

// Remove drops the entry for name. A missing entry is not an error.
func (c *Cache) Remove(name string) {
	if err := os.Remove(c.Path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warnf("rpc cache: remove %s: %v", name, err)
	}
}
