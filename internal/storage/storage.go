// Package storage reads the file storage credentials handed to tools and
// checks that the storage they point at is reachable.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var (
	// ErrNotConfigured is returned by ParseCredentials for an empty blob.
	ErrNotConfigured = errors.New("storage credentials not configured")

	// ErrUnsupportedProvider is returned for providers Probe cannot reach.
	ErrUnsupportedProvider = errors.New("unsupported storage provider")
)

const (
	ProviderMinio = "minio"
	ProviderS3    = "s3"

	defaultS3Endpoint = "s3.amazonaws.com"
	defaultRegion     = "us-east-1"
)

// Credentials locate an S3-compatible object store.
type Credentials struct {
	Provider    string
	EndpointURL string
	Key         string
	Secret      string
	Region      string
}

type credentialsBlob struct {
	Provider    string `json:"provider"`
	Credentials struct {
		EndpointURL string `json:"endpoint_url"`
		Key         string `json:"key"`
		Secret      string `json:"secret"`
		Region      string `json:"region"`
	} `json:"credentials"`
}

// ParseCredentials decodes a WORKFLOW_EXECUTION_FILE_STORAGE_CREDENTIALS
// value such as
//
//	{"provider": "minio", "credentials": {"endpoint_url": "http://minio:9000", "key": "k", "secret": "s"}}
func ParseCredentials(blob string) (Credentials, error) {
	blob = strings.TrimSpace(blob)
	if blob == "" || blob == "{}" {
		return Credentials{}, ErrNotConfigured
	}

	var raw credentialsBlob
	if err := json.Unmarshal([]byte(blob), &raw); err != nil {
		return Credentials{}, fmt.Errorf("decode storage credentials: %w", err)
	}

	c := Credentials{
		Provider:    strings.ToLower(raw.Provider),
		EndpointURL: raw.Credentials.EndpointURL,
		Key:         raw.Credentials.Key,
		Secret:      raw.Credentials.Secret,
		Region:      raw.Credentials.Region,
	}
	if err := c.Validate(); err != nil {
		return Credentials{}, err
	}
	return c, nil
}

// Validate reports whether c names a supported provider with a key and
// secret. minio additionally requires an endpoint; s3 defaults to AWS.
func (c Credentials) Validate() error {
	switch c.Provider {
	case ProviderMinio:
		if c.EndpointURL == "" {
			return errors.New("minio storage requires endpoint_url")
		}
	case ProviderS3:
	case "":
		return errors.New("storage provider is required")
	default:
		return fmt.Errorf("%w %q", ErrUnsupportedProvider, c.Provider)
	}
	if c.Key == "" || c.Secret == "" {
		return errors.New("storage key and secret are required")
	}
	return nil
}

// endpoint splits EndpointURL into the host minio-go expects and whether
// TLS is used. Bare hosts default to TLS.
func (c Credentials) endpoint() (string, bool, error) {
	if c.EndpointURL == "" {
		return defaultS3Endpoint, true, nil
	}
	if !strings.Contains(c.EndpointURL, "://") {
		return c.EndpointURL, true, nil
	}
	u, err := url.Parse(c.EndpointURL)
	if err != nil {
		return "", false, fmt.Errorf("parse endpoint_url: %w", err)
	}
	switch u.Scheme {
	case "http":
		return u.Host, false, nil
	case "https":
		return u.Host, true, nil
	}
	return "", false, fmt.Errorf("unsupported endpoint_url scheme %q", u.Scheme)
}

// Client builds a minio client for c.
func (c Credentials) Client() (*minio.Client, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	host, secure, err := c.endpoint()
	if err != nil {
		return nil, err
	}
	region := c.Region
	if region == "" {
		region = defaultRegion
	}
	return minio.New(host, &minio.Options{
		Creds:     credentials.NewStaticV4(c.Key, c.Secret, ""),
		Secure:    secure,
		Region:    region,
		Transport: newTransport(),
	})
}

// Probe lists buckets to confirm the credentials work.
func Probe(ctx context.Context, c Credentials) error {
	client, err := c.Client()
	if err != nil {
		return err
	}
	if _, err := client.ListBuckets(ctx); err != nil {
		return fmt.Errorf("list buckets: %w", err)
	}
	return nil
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
	}
}
