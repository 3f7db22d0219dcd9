// Package storage talks to the blob store holding rendered documents.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client wraps interactions with the object storage API.
type Client struct {
	baseURL    string
	bucket     string
	apiKey     string
	httpClient *http.Client
}

// NewClient constructs a new client for the given bucket.
func NewClient(baseURL, bucket, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		bucket:  bucket,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Upload stores content under path and returns its public URL. Existing
// objects at the same path are overwritten, which is what document
// regeneration relies on.
func (c *Client) Upload(ctx context.Context, path string, content []byte, contentType string) (string, error) {
	url := fmt.Sprintf("%s/object/%s/%s", c.baseURL, c.bucket, strings.TrimLeft(path, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(content))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("storage: upload failed with status %d: %s", resp.StatusCode, string(body))
	}
	return c.PublicURL(path), nil
}

// PublicURL returns the public retrieval URL for an object path.
func (c *Client) PublicURL(path string) string {
	return fmt.Sprintf("%s/object/public/%s/%s", c.baseURL, c.bucket, strings.TrimLeft(path, "/"))
}
