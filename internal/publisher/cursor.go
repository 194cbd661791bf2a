package publisher

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dmitrijs2005/postkeeper/internal/filex"
)

// FileCursor persists the newest processed mention id in a small file so
// mentions are not re-scored after a restart.
type FileCursor struct {
	mu   sync.Mutex
	path string
}

func NewFileCursor(path string) *FileCursor {
	return &FileCursor{path: path}
}

// Load returns the stored id, empty when nothing was stored yet.
func (c *FileCursor) Load() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (c *FileCursor) Save(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := filex.EnsureDir(filepath.Dir(c.path)); err != nil {
		return err
	}
	return filex.WriteFileAtomic(c.path, []byte(id+"\n"), 0o600)
}
