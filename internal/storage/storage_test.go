package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCredentials(t *testing.T) {
	c, err := ParseCredentials(`{"provider": "MinIO", "credentials": {"endpoint_url": "http://unstract-minio:9000", "key": "minio", "secret": "minio123"}}`)
	require.NoError(t, err)

	assert.Equal(t, ProviderMinio, c.Provider)
	assert.Equal(t, "http://unstract-minio:9000", c.EndpointURL)
	assert.Equal(t, "minio", c.Key)
	assert.Equal(t, "minio123", c.Secret)
}

func TestParseCredentialsNotConfigured(t *testing.T) {
	for _, blob := range []string{"", "{}", "  {}  "} {
		_, err := ParseCredentials(blob)
		assert.ErrorIs(t, err, ErrNotConfigured, "blob %q", blob)
	}
}

func TestParseCredentialsInvalid(t *testing.T) {
	tests := []struct {
		name string
		blob string
	}{
		{"not json", "{nope"},
		{"no provider", `{"credentials": {"key": "k", "secret": "s"}}`},
		{"unknown provider", `{"provider": "gcs", "credentials": {"key": "k", "secret": "s"}}`},
		{"minio without endpoint", `{"provider": "minio", "credentials": {"key": "k", "secret": "s"}}`},
		{"missing secret", `{"provider": "s3", "credentials": {"key": "k"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCredentials(tt.blob)
			require.Error(t, err)
			assert.NotErrorIs(t, err, ErrNotConfigured)
		})
	}
}

func TestParseCredentialsUnsupportedProvider(t *testing.T) {
	_, err := ParseCredentials(`{"provider": "gcs", "credentials": {"json": "..."}}`)
	require.ErrorIs(t, err, ErrUnsupportedProvider)
	assert.Contains(t, err.Error(), `"gcs"`)
}

func TestEndpoint(t *testing.T) {
	tests := []struct {
		url        string
		wantHost   string
		wantSecure bool
		wantErr    bool
	}{
		{"", defaultS3Endpoint, true, false},
		{"http://minio:9000", "minio:9000", false, false},
		{"https://storage.example.com", "storage.example.com", true, false},
		{"minio.internal:9000", "minio.internal:9000", true, false},
		{"ftp://minio", "", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			host, secure, err := Credentials{EndpointURL: tt.url}.endpoint()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantSecure, secure)
		})
	}
}

const listBucketsXML = `<?xml version="1.0" encoding="UTF-8"?>
<ListAllMyBucketsResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
  <Owner><ID>minio</ID><DisplayName>minio</DisplayName></Owner>
  <Buckets><Bucket><Name>unstract</Name><CreationDate>2024-01-01T00:00:00.000Z</CreationDate></Bucket></Buckets>
</ListAllMyBucketsResult>`

const accessDeniedXML = `<?xml version="1.0" encoding="UTF-8"?>
<Error><Code>AccessDenied</Code><Message>Access Denied.</Message><RequestId>1</RequestId></Error>`

func TestProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/xml")
		w.Write([]byte(listBucketsXML))
	}))
	defer srv.Close()

	c := Credentials{Provider: ProviderMinio, EndpointURL: srv.URL, Key: "minio", Secret: "minio123"}
	assert.NoError(t, Probe(context.Background(), c))
}

func TestProbeAccessDenied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(accessDeniedXML))
	}))
	defer srv.Close()

	c := Credentials{Provider: ProviderMinio, EndpointURL: srv.URL, Key: "minio", Secret: "wrong"}
	err := Probe(context.Background(), c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list buckets")
}
