package cache

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/serpctx/internal/model"
)

// File stores results as JSON files in a directory, for single-node setups
// without Redis. Freshness is judged by file modification time.
type File struct {
	Dir string
	TTL time.Duration
	// StrictPerms, when true, enforces 0700 on the cache directory and 0600 on
	// files to provide at-rest protection via restricted permissions.
	StrictPerms bool
}

func (c *File) ensureDir() error {
	if c == nil || c.Dir == "" {
		return errors.New("cache dir not configured")
	}
	perm := os.FileMode(0o755)
	if c.StrictPerms {
		perm = 0o700
	}
	if err := os.MkdirAll(c.Dir, perm); err != nil {
		return err
	}
	// If directory already existed and StrictPerms is on, tighten perms
	if c.StrictPerms {
		if info, err := os.Stat(c.Dir); err == nil && info.Mode()&0o777 != 0o700 {
			_ = os.Chmod(c.Dir, 0o700)
		}
	}
	return nil
}

func (c *File) ttl() time.Duration {
	if c.TTL <= 0 {
		return DefaultTTL
	}
	return c.TTL
}

func (c *File) pathFor(key string) string {
	return filepath.Join(c.Dir, strings.TrimPrefix(key, KeyPrefix)+".json")
}

// Get returns a fresh entry. Expired entries are removed.
func (c *File) Get(_ context.Context, key string) (*model.Result, bool) {
	if c == nil || c.Dir == "" {
		return nil, false
	}
	p := c.pathFor(key)
	info, err := os.Stat(p)
	if err != nil {
		return nil, false
	}
	if time.Since(info.ModTime()) > c.ttl() {
		_ = os.Remove(p)
		return nil, false
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, false
	}
	var res model.Result
	if err := json.Unmarshal(b, &res); err != nil {
		log.Warn().Err(err).Str("path", p).Msg("cache entry undecodable")
		return nil, false
	}
	return &res, true
}

// Set writes a non-empty result. Failures are logged and dropped.
func (c *File) Set(_ context.Context, key string, res *model.Result) {
	if !cacheable(res) {
		return
	}
	if err := c.ensureDir(); err != nil {
		log.Warn().Err(err).Msg("cache dir unavailable")
		return
	}
	b, err := json.Marshal(res)
	if err != nil {
		log.Warn().Err(err).Msg("cache encode failed")
		return
	}
	mode := os.FileMode(0o644)
	if c.StrictPerms {
		mode = 0o600
	}
	if err := os.WriteFile(c.pathFor(key), b, mode); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache set failed")
	}
}

func (c *File) Close() error { return nil }

// ClearDir removes the directory and all contents. It recreates the directory
// afterwards to leave a valid empty cache location.
func ClearDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return errors.New("empty dir")
	}
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}
