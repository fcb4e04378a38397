// Package blob uploads photo attachments to an S3-compatible object store and
// resolves the public URLs recorded on vehicle records.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultRequestTimeout = 30 * time.Second

// Config describes the object storage endpoint used for photo attachments.
// Bucket and Endpoint are required; when either is missing the constructor
// returns a disabled client and submissions proceed without photos.
type Config struct {
	Endpoint       string
	Region         string
	AccessKey      string
	SecretKey      string
	Bucket         string
	UseSSL         bool
	Prefix         string
	PublicEndpoint string
	RequestTimeout time.Duration
}

// ObjectRef identifies a stored attachment and its publicly fetchable URL.
type ObjectRef struct {
	Key string
	URL string
}

// Client is the attachment store boundary used by the submitter.
type Client interface {
	Enabled() bool
	Upload(ctx context.Context, key, contentType string, body []byte) (ObjectRef, error)
}

type disabledClient struct{}

func (disabledClient) Enabled() bool { return false }

func (disabledClient) Upload(ctx context.Context, key, contentType string, body []byte) (ObjectRef, error) {
	return ObjectRef{}, fmt.Errorf("attachment store not configured")
}

// NewClient builds an attachment store client from the provided configuration.
func NewClient(cfg Config) Client {
	bucket := strings.TrimSpace(cfg.Bucket)
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if bucket == "" || endpoint == "" {
		return disabledClient{}
	}
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	if strings.Contains(endpoint, "://") {
		if parsed, err := url.Parse(endpoint); err == nil {
			if parsed.Scheme != "" {
				scheme = parsed.Scheme
			}
			endpoint = parsed.Host
		}
	}
	baseURL := &url.URL{Scheme: scheme, Host: endpoint}
	if baseURL.Host == "" {
		return disabledClient{}
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	sanitized := cfg
	sanitized.Bucket = bucket
	sanitized.Prefix = strings.Trim(strings.TrimSpace(cfg.Prefix), "/")
	return &s3Client{
		cfg:        sanitized,
		endpoint:   baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type s3Client struct {
	cfg        Config
	endpoint   *url.URL
	httpClient *http.Client
}

func (c *s3Client) Enabled() bool { return true }

// Upload stores the payload under the prefixed key and returns its reference.
func (c *s3Client) Upload(ctx context.Context, key, contentType string, body []byte) (ObjectRef, error) {
	finalKey := c.applyPrefix(key)
	target := c.objectURL(finalKey)
	request, err := http.NewRequestWithContext(ctx, http.MethodPut, target.String(), bytes.NewReader(body))
	if err != nil {
		return ObjectRef{}, fmt.Errorf("create upload request: %w", err)
	}
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	if err := c.signRequest(request, hashSHA256Hex(body)); err != nil {
		return ObjectRef{}, err
	}
	response, err := c.httpClient.Do(request)
	if err != nil {
		return ObjectRef{}, fmt.Errorf("upload object %s: %w", finalKey, err)
	}
	defer func() {
		_ = response.Body.Close()
	}()
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return ObjectRef{}, fmt.Errorf("upload object %s: unexpected status %d", finalKey, response.StatusCode)
	}
	return ObjectRef{Key: finalKey, URL: c.publicURL(finalKey)}, nil
}

func (c *s3Client) applyPrefix(key string) string {
	trimmed := strings.TrimLeft(strings.TrimSpace(key), "/")
	if c.cfg.Prefix == "" {
		return trimmed
	}
	if trimmed == "" {
		return c.cfg.Prefix
	}
	if trimmed == c.cfg.Prefix || strings.HasPrefix(trimmed, c.cfg.Prefix+"/") {
		return trimmed
	}
	return c.cfg.Prefix + "/" + trimmed
}

func (c *s3Client) objectURL(finalKey string) *url.URL {
	path := "/" + strings.TrimLeft(c.cfg.Bucket, "/")
	if trimmedKey := strings.TrimLeft(finalKey, "/"); trimmedKey != "" {
		path += "/" + trimmedKey
	}
	u := *c.endpoint
	u.Path = path
	return &u
}

// publicURL resolves the fetchable URL for a stored key. When no public
// endpoint is configured, the storage endpoint itself serves the object.
func (c *s3Client) publicURL(key string) string {
	base := strings.TrimSpace(c.cfg.PublicEndpoint)
	if base == "" {
		return c.objectURL(key).String()
	}
	trimmedBase := strings.TrimRight(base, "/")
	trimmedKey := strings.TrimLeft(key, "/")
	if trimmedKey == "" {
		return trimmedBase
	}
	return trimmedBase + "/" + trimmedKey
}
