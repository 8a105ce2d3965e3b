package usage

import (
	"context"
	"encoding/json"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var bucketUsage = []byte("usage")

// Stats is one cached directory measurement.
type Stats struct {
	Path        string    `json:"path"`
	Bytes       int64     `json:"bytes"`
	Files       int64     `json:"files"`
	Dirs        int64     `json:"dirs"`
	FreeBytes   int64     `json:"freeBytes"`
	TotalBytes  int64     `json:"totalBytes"`
	RefreshedAt time.Time `json:"refreshedAt"`
}

// Cache persists directory usage measurements between refreshes, so
// list views never pay for a filesystem walk.
type Cache struct {
	db *bolt.DB
}

func Open(path string) (*Cache, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open usage cache")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketUsage)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to initialize usage cache")
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// Refresh walks each named directory and replaces its cached entry.
// A missing directory clears the entry instead of failing the whole
// refresh.
func (c *Cache) Refresh(ctx context.Context, roots map[string]string) error {
	for name, root := range roots {
		if err := ctx.Err(); err != nil {
			return err
		}

		stats, err := measure(ctx, root)
		if err != nil {
			if derr := c.delete(name); derr != nil {
				return derr
			}
			continue
		}
		if err := c.put(name, stats); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the cached stats for a named directory.
func (c *Cache) Get(name string) (Stats, error) {
	var stats Stats
	err := c.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketUsage).Get([]byte(name))
		if raw == nil {
			return errors.Errorf("no usage entry for %q", name)
		}
		return json.Unmarshal(raw, &stats)
	})
	return stats, err
}

// All returns every cached entry keyed by name.
func (c *Cache) All() (map[string]Stats, error) {
	out := make(map[string]Stats)
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketUsage).ForEach(func(k, v []byte) error {
			var stats Stats
			if err := json.Unmarshal(v, &stats); err != nil {
				return err
			}
			out[string(k)] = stats
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Cache) put(name string, stats Stats) error {
	raw, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketUsage).Put([]byte(name), raw)
	})
}

func (c *Cache) delete(name string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketUsage).Delete([]byte(name))
	})
}

func measure(ctx context.Context, root string) (Stats, error) {
	stats := Stats{Path: root, RefreshedAt: time.Now().UTC()}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err != nil {
			if path == root {
				return err
			}
			// Entries can vanish mid-walk while a transfer prunes them.
			return nil
		}
		if d.IsDir() {
			if path != root {
				stats.Dirs++
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		stats.Files++
		stats.Bytes += info.Size()
		return nil
	})
	if err != nil {
		return Stats{}, err
	}

	if free, total, err := filesystemBytes(root); err == nil {
		stats.FreeBytes = free
		stats.TotalBytes = total
	}
	return stats, nil
}
