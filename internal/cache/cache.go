// Package cache stores downloaded artifacts on disk, addressed by the hash of
// their normalized query.
//
// Each artifact is a blob {dir}/{key}.mp3 with a {dir}/{key}.json sidecar that
// records its title. Writes land in a temporary file that is renamed into place,
// so readers never observe a partial blob.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playroom/internal/models"
	"github.com/desertthunder/playroom/internal/shared"
)

const (
	blobExt    = ".mp3"
	sidecarExt = ".json"
)

type sidecar struct {
	Title string `json:"title"`
}

// Cache is a content-addressed artifact store. Operations on one key are linearizable.
type Cache struct {
	dir    string
	locks  shared.KeyedMutex
	logger *log.Logger
}

// New returns a cache rooted at dir, creating the directory if needed.
func New(dir string, logger *log.Logger) (*Cache, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: cache directory", shared.ErrMissingArgument)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create cache dir: %v", shared.ErrStorageFailure, err)
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Cache{dir: dir, logger: shared.WithLogger(logger, "component", "cache")}, nil
}

// Dir returns the cache root.
func (c *Cache) Dir() string { return c.dir }

func (c *Cache) blobPath(key string) string    { return filepath.Join(c.dir, key+blobExt) }
func (c *Cache) sidecarPath(key string) string { return filepath.Join(c.dir, key+sidecarExt) }

func checkKey(key string) error {
	if !shared.IsCacheKey(key) {
		return fmt.Errorf("%w: cache key %q", shared.ErrInvalidInput, key)
	}
	return nil
}

// Get returns the artifact stored under key, or [shared.ErrNotFound].
func (c *Cache) Get(key string) (*models.Artifact, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	unlock := c.locks.Lock(key)
	defer unlock()
	return c.stat(key)
}

func (c *Cache) stat(key string) (*models.Artifact, error) {
	info, err := os.Stat(c.blobPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: artifact %s", shared.ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %v", shared.ErrStorageFailure, key, err)
	}
	return &models.Artifact{
		Key:   key,
		Path:  c.blobPath(key),
		Size:  info.Size(),
		Title: c.readTitle(key),
	}, nil
}

// readTitle falls back to the key when the sidecar is missing or unreadable.
func (c *Cache) readTitle(key string) string {
	data, err := os.ReadFile(c.sidecarPath(key))
	if err != nil {
		return key
	}
	var meta sidecar
	if err := json.Unmarshal(data, &meta); err != nil || meta.Title == "" {
		c.logger.Warn("unreadable sidecar", "key", key, "error", err)
		return key
	}
	return meta.Title
}

// Put writes the bytes of r under key, replacing any previous artifact.
func (c *Cache) Put(key string, r io.Reader, title string) (*models.Artifact, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	unlock := c.locks.Lock(key)
	defer unlock()

	if err := c.writeAtomic(c.blobPath(key), func(w io.Writer) error {
		_, err := io.Copy(w, r)
		return err
	}); err != nil {
		return nil, fmt.Errorf("%w: write artifact %s: %v", shared.ErrStorageFailure, key, err)
	}

	meta, err := json.Marshal(sidecar{Title: title})
	if err != nil {
		return nil, fmt.Errorf("%w: encode sidecar: %v", shared.ErrStorageFailure, err)
	}
	if err := c.writeAtomic(c.sidecarPath(key), func(w io.Writer) error {
		_, err := w.Write(meta)
		return err
	}); err != nil {
		return nil, fmt.Errorf("%w: write sidecar %s: %v", shared.ErrStorageFailure, key, err)
	}

	c.logger.Debug("stored artifact", "key", key, "title", title)
	return c.stat(key)
}

// PutFile moves the file at src into the cache under key.
func (c *Cache) PutFile(key, src, title string) (*models.Artifact, error) {
	f, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", shared.ErrStorageFailure, src, err)
	}
	defer f.Close()

	artifact, err := c.Put(key, f, title)
	if err != nil {
		return nil, err
	}
	if err := os.Remove(src); err != nil && !errors.Is(err, fs.ErrNotExist) {
		c.logger.Warn("failed to remove fetched file", "path", src, "error", err)
	}
	return artifact, nil
}

func (c *Cache) writeAtomic(dst string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(c.dir, "."+filepath.Base(dst)+".*.part")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, dst)
}

// Open returns a reader over the blob stored under key.
func (c *Cache) Open(key string) (io.ReadCloser, *models.Artifact, error) {
	artifact, err := c.Get(key)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(artifact.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, fmt.Errorf("%w: artifact %s", shared.ErrNotFound, key)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: open %s: %v", shared.ErrStorageFailure, key, err)
	}
	return f, artifact, nil
}

// Remove deletes the blob and sidecar of key. Removing an absent key is not an error.
func (c *Cache) Remove(key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	unlock := c.locks.Lock(key)
	defer unlock()

	for _, p := range []string{c.blobPath(key), c.sidecarPath(key)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: remove %s: %v", shared.ErrStorageFailure, p, err)
		}
	}
	c.logger.Debug("removed artifact", "key", key)
	return nil
}

// List returns every stored artifact ordered by key.
func (c *Cache) List() ([]models.Artifact, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: read cache dir: %v", shared.ErrStorageFailure, err)
	}

	var artifacts []models.Artifact
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, blobExt) {
			continue
		}
		key := strings.TrimSuffix(name, blobExt)
		if !shared.IsCacheKey(key) {
			continue
		}
		artifact, err := c.Get(key)
		if errors.Is(err, shared.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, *artifact)
	}

	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Key < artifacts[j].Key })
	return artifacts, nil
}

// Oversized returns the artifacts larger than limit bytes.
func (c *Cache) Oversized(limit int64) ([]models.Artifact, error) {
	all, err := c.List()
	if err != nil {
		return nil, err
	}
	var over []models.Artifact
	for _, a := range all {
		if a.Size > limit {
			over = append(over, a)
		}
	}
	return over, nil
}
