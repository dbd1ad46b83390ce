package fetcher

import (
	"context"
	"fmt"
)

// Asset is a decrypted container together with the URL it was retrieved from.
type Asset struct {
	ID        string
	URL       string
	Container []byte
	Cached    bool
}

// Retrieve returns the decrypted container of id, from cache when allowed.
func (c *Client) Retrieve(ctx context.Context, cache *Cache, id string, useCache bool) (*Asset, error) {
	if useCache && cache != nil {
		if record, data, ok := cache.Load(id); ok {
			logger.Infof("Loaded cached container for %s", id)
			return &Asset{ID: id, URL: record.URL, Container: data, Cached: true}, nil
		}
	}
	model, err := c.FetchModel(ctx, id)
	if err != nil {
		return nil, err
	}
	container, err := Decrypt(model.Data)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", id, err)
	}
	if cache != nil {
		if _, err := cache.Store(id, model.URL, container); err != nil {
			logger.Warnf("Failed to cache %s: %v", id, err)
		}
	}
	logger.Infof("Fetched and decrypted container for %s", id)
	return &Asset{ID: id, URL: model.URL, Container: container}, nil
}
