// Package blob stores uploaded files on the local filesystem.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/core"
	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/logging"
)

// LocalStore writes blobs under Dir and hands out URLs rooted at BaseURL.
// Keys are laid out as yyyy/mm/dd/<uuid>-<name>.
type LocalStore struct {
	dir     string
	baseURL string
	now     func() time.Time
}

var _ core.BlobStore = (*LocalStore)(nil)

// NewLocalStore creates dir if needed.
func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if dir == "" {
		return nil, errors.New("blob: directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("blob: create %s: %w", dir, err)
	}
	return &LocalStore{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}, nil
}

// Store writes data and returns its URL.
func (s *LocalStore) Store(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key := path.Join(s.now().UTC().Format("2006/01/02"), uuid.NewString()+"-"+sanitizeName(name))
	full := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", fmt.Errorf("blob: store %s: %w", name, err)
	}

	// Write to a temp file first so readers never see a partial blob.
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return "", fmt.Errorf("blob: store %s: %w", name, err)
	}
	if err := os.Rename(tmp, full); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("blob: store %s: %w", name, err)
	}

	logging.FromContext(ctx).Debug("blob stored", "key", key, "bytes", len(data))
	return s.baseURL + "/" + key, nil
}

// Delete removes the blobs behind urls. URLs this store did not issue are
// skipped, and blobs that are already gone are not an error.
func (s *LocalStore) Delete(ctx context.Context, urls []string) error {
	var errs []error
	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			return err
		}
		key, ok := s.keyFor(u)
		if !ok {
			logging.FromContext(ctx).Warn("blob: ignoring foreign url", "url", u)
			continue
		}
		err := os.Remove(filepath.Join(s.dir, filepath.FromSlash(key)))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("blob: delete %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// keyFor maps a URL back to its key, rejecting anything that would escape dir.
func (s *LocalStore) keyFor(url string) (string, bool) {
	key, ok := strings.CutPrefix(url, s.baseURL+"/")
	if !ok || key == "" {
		return "", false
	}
	clean := path.Clean(key)
	if clean != key || strings.HasPrefix(clean, "../") || path.IsAbs(clean) {
		return "", false
	}
	return clean, true
}

// sanitizeName keeps the base name and replaces anything outside
// [A-Za-z0-9._-] with '_'.
func sanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "blob"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
}
