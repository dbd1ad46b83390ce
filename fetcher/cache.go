package fetcher

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shamaton/msgpack/v2"
	"github.com/zeebo/blake3"
)

// CacheRecord describes one decrypted container kept on disk.
type CacheRecord struct {
	ID        string `msgpack:"id"`
	URL       string `msgpack:"url"`
	Digest    string `msgpack:"digest"`
	FetchedAt int64  `msgpack:"fetchedAt"`
}

type Cache struct {
	dir string
}

func NewCache(dir string) *Cache {
	return &Cache{dir: dir}
}

func digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (c *Cache) paths(id string) (string, string) {
	return filepath.Join(c.dir, id+".glb"), filepath.Join(c.dir, id+".meta")
}

// Load returns the cached container of id. A missing or corrupt entry is
// reported as a miss.
func (c *Cache) Load(id string) (*CacheRecord, []byte, bool) {
	dataPath, metaPath := c.paths(id)
	meta, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, nil, false
	}
	var record CacheRecord
	if err := msgpack.Unmarshal(meta, &record); err != nil {
		logger.Warnf("Ignoring unreadable cache record %s: %v", metaPath, err)
		return nil, nil, false
	}
	data, err := os.ReadFile(dataPath)
	if err != nil {
		return nil, nil, false
	}
	if record.ID != id || record.Digest != digest(data) {
		logger.Warnf("Cache entry %s does not match its record, ignoring it", dataPath)
		return nil, nil, false
	}
	return &record, data, true
}

func (c *Cache) Store(id, url string, data []byte) (*CacheRecord, error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	record := &CacheRecord{ID: id, URL: url, Digest: digest(data), FetchedAt: time.Now().Unix()}
	meta, err := msgpack.Marshal(record)
	if err != nil {
		return nil, err
	}
	dataPath, metaPath := c.paths(id)
	if err := os.WriteFile(dataPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write cache entry: %w", err)
	}
	if err := os.WriteFile(metaPath, meta, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write cache record: %w", err)
	}
	return record, nil
}
