// Package fetcher retrieves encrypted preview models and their companion data
// from the hub.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"haruki-vroid-deobfuscator/config"
	harukiLogger "haruki-vroid-deobfuscator/utils/logger"

	"github.com/go-resty/resty/v2"
)

var logger = harukiLogger.NewLogger("HarukiVRoidFetcher", "INFO", nil)

var ErrModelNotFound = errors.New("model preview not found")

const maxAttempts = 4

type Client struct {
	hub    config.HubConfig
	client *resty.Client
	// retryDelay is the pause between attempts.
	retryDelay time.Duration
}

func NewClient(hub config.HubConfig, proxy string) *Client {
	client := resty.New()
	client.
		SetRetryCount(0).
		SetTimeout(60*time.Second).
		SetTransport(&http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConnsPerHost: 16,
			IdleConnTimeout:     30 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		}).
		SetHeader("Accept", "*/*").
		SetHeader("User-Agent", hub.UserAgent).
		SetHeader("X-Api-Version", hub.APIVersion)
	if proxy != "" {
		client.SetProxy(proxy)
	}
	return &Client{hub: hub, client: client, retryDelay: time.Second}
}

func (c *Client) Close() {
	c.client = nil
}

// request performs a GET with up to four attempts on transport errors and 5xx.
func (c *Client) request(ctx context.Context, url string) (*resty.Response, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}
		resp, err := c.client.R().
			SetContext(ctx).
			Get(url)
		if err != nil {
			lastErr = err
			logger.Warnf("GET %s failed (attempt %d): %v", url, attempt+1, err)
			continue
		}
		if resp.StatusCode() >= 500 {
			lastErr = fmt.Errorf("server error: %s", resp.Status())
			logger.Warnf("GET %s returned %d (attempt %d)", url, resp.StatusCode(), attempt+1)
			continue
		}
		return resp, nil
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New("request failed after retries")
}

func (c *Client) modelURL(id string, suffix string) string {
	return strings.TrimRight(c.hub.APIBase, "/") + "/character_models/" + id + suffix
}

// finalURL returns the URL of the last request in the redirect chain.
func finalURL(resp *resty.Response) string {
	if resp.RawResponse != nil && resp.RawResponse.Request != nil && resp.RawResponse.Request.URL != nil {
		return resp.RawResponse.Request.URL.String()
	}
	return resp.Request.URL
}

type EncryptedModel struct {
	ID   string
	URL  string
	Data []byte
}

// FetchModel downloads the encrypted optimized preview, falling back to the
// plain preview when the optimized one does not exist.
func (c *Client) FetchModel(ctx context.Context, id string) (*EncryptedModel, error) {
	resp, err := c.request(ctx, c.modelURL(id, "/optimized_preview"))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() == http.StatusNotFound {
		logger.Infof("Optimized preview of %s not found, trying preview", id)
		if resp, err = c.request(ctx, c.modelURL(id, "/preview")); err != nil {
			return nil, err
		}
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, id)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("failed to fetch model %s: %s", id, resp.Status())
	}
	model := &EncryptedModel{ID: id, URL: finalURL(resp), Data: resp.Body()}
	logger.Infof("Fetched %d encrypted bytes for %s from %s", len(model.Data), id, model.URL)
	return model, nil
}
