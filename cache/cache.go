package cache

import (
	"crypto/sha1" //nolint:gosec
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/log"
	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"
)

const (
	pathsBucket      = "paths"
	formatterBucket  = "formatter"
	defaultOpenDelay = time.Second
)

var ErrNotOpen = errors.New("cache is not open")

// Entry represents a cache entry, indicating the last size and modified time for a file path.
type Entry struct {
	Size     int64
	Modified time.Time
}

func newEntry(info fs.FileInfo) *Entry {
	return &Entry{
		Size:     info.Size(),
		Modified: info.ModTime(),
	}
}

// Matches reports whether info has the same size and modified time as the entry.
func (e *Entry) Matches(info fs.FileInfo) bool {
	return e != nil && e.Size == info.Size() && e.Modified.Equal(info.ModTime())
}

// Cache records the state of files after they were last formatted, so unchanged files can be skipped.
// Entries are only valid for the executable the cache was opened with: a different or modified executable clears
// every path entry.
type Cache struct {
	db  *bolt.DB
	log *log.Logger
}

// Open creates a Cache for a given root path.
// If clean is true, Open will delete any existing data in the cache.
//
// The database will be located in `XDG_CACHE_DIR/elm-format-on-save/format-cache/<id>.db`, where <id> is determined
// by hashing the root path.
func Open(root string, clean bool, executable string) (*Cache, error) {
	h := sha1.New() //nolint:gosec
	h.Write([]byte(root))
	name := hex.EncodeToString(h.Sum(nil))

	path, err := xdg.CacheFile(fmt.Sprintf("elm-format-on-save/format-cache/%v.db", name))
	if err != nil {
		return nil, fmt.Errorf("could not resolve local path for the cache: %w", err)
	}

	return OpenPath(path, clean, executable)
}

// OpenPath creates a Cache backed by the database at path.
func OpenPath(path string, clean bool, executable string) (*Cache, error) {
	l := log.WithPrefix("cache")

	stat, err := os.Stat(executable)
	if err != nil {
		return nil, fmt.Errorf("failed to stat formatter executable: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: defaultOpenDelay})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache at %v: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		paths, err := tx.CreateBucketIfNotExists([]byte(pathsBucket))
		if err != nil {
			return fmt.Errorf("failed to create paths bucket: %w", err)
		}

		formatter, err := tx.CreateBucketIfNotExists([]byte(formatterBucket))
		if err != nil {
			return fmt.Errorf("failed to create formatter bucket: %w", err)
		}

		entry, err := getEntry(formatter, executable)
		if err != nil {
			return fmt.Errorf("failed to retrieve entry for formatter: %w", err)
		}

		changed := !entry.Matches(stat)
		l.Debug("checking if formatter has changed", "executable", executable, "changed", changed)

		// a different executable than last time also invalidates the paths
		var stale [][]byte

		if err = formatter.ForEach(func(key []byte, _ []byte) error {
			if string(key) != executable {
				stale = append(stale, key)
			}

			return nil
		}); err != nil {
			return fmt.Errorf("failed to check for other formatters: %w", err)
		}

		for _, key := range stale {
			if err = formatter.Delete(key); err != nil {
				return fmt.Errorf("failed to remove formatter entry: %w", err)
			}
		}

		if err = putEntry(formatter, executable, newEntry(stat)); err != nil {
			return fmt.Errorf("failed to write formatter entry: %w", err)
		}

		if clean || changed || len(stale) > 0 {
			l.Debug("clearing path entries")

			if err = tx.DeleteBucket([]byte(pathsBucket)); err != nil {
				return fmt.Errorf("failed to remove path entries: %w", err)
			}

			if _, err = tx.CreateBucket([]byte(pathsBucket)); err != nil {
				return fmt.Errorf("failed to recreate paths bucket: %w", err)
			}
		} else {
			l.Debugf("%d path entries", paths.Stats().KeyN)
		}

		return nil
	})
	if err != nil {
		_ = db.Close()

		return nil, err
	}

	return &Cache{db: db, log: l}, nil
}

// Changed reports whether the file at path is new or has changed since it was last recorded.
func (c *Cache) Changed(path string, info fs.FileInfo) (bool, error) {
	if c == nil || c.db == nil {
		return true, ErrNotOpen
	}

	var changed bool

	err := c.db.View(func(tx *bolt.Tx) error {
		cached, err := getEntry(tx.Bucket([]byte(pathsBucket)), path)
		if err != nil {
			return err
		}

		changed = !cached.Matches(info)

		return nil
	})

	return changed, err
}

// Update records the current size and modified time for each of paths.
func (c *Cache) Update(paths ...string) error {
	if c == nil || c.db == nil {
		return ErrNotOpen
	}

	if len(paths) == 0 {
		return nil
	}

	return c.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(pathsBucket))

		for _, path := range paths {
			info, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("failed to stat %s: %w", path, err)
			}

			if err = putEntry(bucket, path, newEntry(info)); err != nil {
				return err
			}
		}

		return nil
	})
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}

	return c.db.Close()
}

// getEntry is a helper for reading cache entries from bolt.
func getEntry(bucket *bolt.Bucket, path string) (*Entry, error) {
	b := bucket.Get([]byte(path))
	if b == nil {
		return nil, nil
	}

	var cached Entry
	if err := msgpack.Unmarshal(b, &cached); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache info for path '%v': %w", path, err)
	}

	return &cached, nil
}

// putEntry is a helper for writing cache entries into bolt.
func putEntry(bucket *bolt.Bucket, path string, entry *Entry) error {
	bytes, err := msgpack.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	if err = bucket.Put([]byte(path), bytes); err != nil {
		return fmt.Errorf("failed to put cache entry: %w", err)
	}

	return nil
}
