package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/erp/stockflow/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewS3ObjectStore_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.StorageConfig
		want string
	}{
		{"nil config", nil, "configuration is required"},
		{"missing bucket", &config.StorageConfig{AccessKey: "k", SecretKey: "s"}, "bucket is required"},
		{"missing access key", &config.StorageConfig{Bucket: "b", SecretKey: "s"}, "access key is required"},
		{"missing secret key", &config.StorageConfig{Bucket: "b", AccessKey: "k"}, "secret key is required"},
		{"bad endpoint", &config.StorageConfig{Bucket: "b", AccessKey: "k", SecretKey: "s", Endpoint: "http://"}, "invalid storage endpoint"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewS3ObjectStore(tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	got, err := normalizeEndpoint("", false)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000", got)

	got, err = normalizeEndpoint("minio:9000", true)
	require.NoError(t, err)
	assert.Equal(t, "https://minio:9000", got)

	got, err = normalizeEndpoint("http://minio:9000", true)
	require.NoError(t, err)
	assert.Equal(t, "http://minio:9000", got)
}

// fakeS3 answers the handful of path-style calls the store makes.
type fakeS3 struct {
	mu      sync.Mutex
	buckets map[string]bool
	objects map[string][]byte
	types   map[string]string
}

func newFakeS3(t *testing.T) (*fakeS3, *httptest.Server) {
	t.Helper()
	f := &fakeS3{buckets: map[string]bool{}, objects: map[string][]byte{}, types: map[string]string{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	bucket, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if key == "" {
		switch r.Method {
		case http.MethodHead:
			if !f.buckets[bucket] {
				w.WriteHeader(http.StatusNotFound)
				return
			}
		case http.MethodPut:
			f.buckets[bucket] = true
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	if !f.buckets[bucket] {
		notFound(w, "NoSuchBucket")
		return
	}
	full := bucket + "/" + key
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[full] = body
		f.types[full] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodHead:
		if _, ok := f.objects[full]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		body, ok := f.objects[full]
		if !ok {
			notFound(w, "NoSuchKey")
			return
		}
		w.Header().Set("Content-Type", f.types[full])
		_, _ = w.Write(body)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func notFound(w http.ResponseWriter, code string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusNotFound)
	_, _ = io.WriteString(w, "<Error><Code>"+code+"</Code><Message>not found</Message></Error>")
}

func (f *fakeS3) object(key string) ([]byte, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.objects[key], f.types[key]
}

func TestS3ObjectStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	fake, srv := newFakeS3(t)
	store, err := NewS3ObjectStore(&config.StorageConfig{
		Endpoint:  srv.URL,
		Bucket:    "manifests",
		AccessKey: "minio",
		SecretKey: "minio123",
		PathStyle: true,
		Prefix:    "/dispatch/",
	}, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	assert.Equal(t, "manifests", store.Bucket())

	require.NoError(t, store.EnsureBucket(ctx))
	require.NoError(t, store.EnsureBucket(ctx), "existing bucket is left alone")

	exists, err := store.Exists(ctx, "t1/trf/shipped.json")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.Get(ctx, "t1/trf/shipped.json")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	body := []byte(`{"event":"TransferShipped"}`)
	require.NoError(t, store.Put(ctx, "t1/trf/shipped.json", body, "application/json"))

	stored, contentType := fake.object("manifests/dispatch/t1/trf/shipped.json")
	assert.Equal(t, body, stored)
	assert.Equal(t, "application/json", contentType)

	exists, err = store.Exists(ctx, "t1/trf/shipped.json")
	require.NoError(t, err)
	assert.True(t, exists)

	got, err := store.Get(ctx, "t1/trf/shipped.json")
	require.NoError(t, err)
	assert.Equal(t, body, got)

	assert.Error(t, store.Put(ctx, "", body, "application/json"))
}

func TestMemoryObjectStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryObjectStore()

	body := []byte("manifest")
	require.NoError(t, store.Put(ctx, "t/a.json", body, "application/json"))
	require.NoError(t, store.Put(ctx, "t/b.json", []byte("other"), "application/json"))
	require.NoError(t, store.Put(ctx, "u/c.json", []byte("x"), "text/plain"))
	body[0] = 'X'

	got, err := store.Get(ctx, "t/a.json")
	require.NoError(t, err)
	assert.Equal(t, "manifest", string(got), "stored bytes are copied")

	ok, err := store.Exists(ctx, "t/b.json")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	assert.Equal(t, []string{"t/a.json", "t/b.json"}, store.Keys("t/"))
	assert.Equal(t, "text/plain", store.ContentType("u/c.json"))
	assert.Error(t, store.Put(ctx, "", nil, ""))
}
