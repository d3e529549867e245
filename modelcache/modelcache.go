// Package modelcache resolves model weight files through a local cache.
// A model already present in the cache directory is served from disk;
// otherwise it is downloaded once and kept for every later run.
package modelcache

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"odescreen/logging"
)

// Cache resolves model files under one directory.
type Cache struct {
	dir    string
	client *http.Client
}

// New creates the cache directory if needed.
func New(dir string) (*Cache, error) {
	if dir == "" {
		return nil, fmt.Errorf("model cache directory not configured")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create model cache %s: %v", dir, err)
	}
	return &Cache{
		dir:    dir,
		client: &http.Client{Timeout: 5 * time.Minute},
	}, nil
}

// Resolve returns the local path for a named model. Cache hits never touch
// the network; on a miss the model is fetched from url into the cache.
func (c *Cache) Resolve(name, url string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("model name is empty")
	}
	path := filepath.Join(c.dir, filepath.Base(name))

	if _, err := os.Stat(path); err == nil {
		logging.DebugLog("Model cache hit: %s", path)
		return path, nil
	}

	if url == "" {
		return "", fmt.Errorf("model %s not cached and no download URL configured", name)
	}
	if err := c.download(path, url); err != nil {
		return "", err
	}
	return path, nil
}

// download fetches the model into a temp file first so a failed transfer
// never leaves a truncated model in the cache.
func (c *Cache) download(path, url string) error {
	logging.LogInfo("Downloading model %s", url)

	resp, err := c.client.Get(url)
	if err != nil {
		return fmt.Errorf("cannot download model from %s: %v", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model download from %s failed: %s", url, resp.Status)
	}

	tmp, err := os.CreateTemp(c.dir, "download-*")
	if err != nil {
		return fmt.Errorf("cannot create temp file in %s: %v", c.dir, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("cannot write model %s: %v", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cannot finish model %s: %v", path, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("cannot place model %s: %v", path, err)
	}
	logging.LogInfo("Model cached at %s", path)
	return nil
}
