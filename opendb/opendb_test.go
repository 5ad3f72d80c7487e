package opendb

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pcparts/partsdb/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	cpuA = `{"opendb_id": "11111111-1111-4111-8111-111111111111", "metadata": {"name": "CPU A"}, "price": 100}`
	cpuB = `{"opendb_id": "22222222-2222-4222-8222-222222222222", "metadata": {"name": "CPU B"}, "price": 200}`
	gpu  = `{"opendb_id": "33333333-3333-4333-8333-333333333333", "metadata": {"name": "GPU"}}`
)

// buildArchive returns a gzipped tarball laid out like the GitHub codeload archive.
func buildArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "buildcores-open-db-main/", Typeflag: tar.TypeDir, Mode: 0o755}))
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     "buildcores-open-db-main/" + name,
			Typeflag: tar.TypeReg,
			Mode:     0o644,
			Size:     int64(len(body)),
		}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func datasetArchive(t *testing.T) []byte {
	return buildArchive(t, map[string]string{
		"open-db/CPU/b.json":        cpuB,
		"open-db/CPU/a.json":        cpuA,
		"open-db/CPU/broken.json":   `{"opendb_id": `,
		"open-db/CPU/README.md":     "not a record",
		"open-db/CPU/nested/x.json": cpuA,
		"open-db/GPU/g.json":        gpu,
		"README.md":                 "# dataset",
	})
}

func fastRetry(retries int) ArchiveOption {
	return WithRetry(retries, time.Millisecond, 5*time.Millisecond)
}

func TestArchiveSource_Fetch(t *testing.T) {
	// Arrange
	archive := datasetArchive(t)
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_, _ = w.Write(archive)
	}))
	defer srv.Close()

	src := NewArchiveSource(srv.URL, WithToken("secret"), WithHTTPClient(srv.Client()))

	// Act
	records, err := src.Fetch(context.Background(), "CPU")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", auth)
	require.Len(t, records, 3)

	assert.Equal(t, "CPU/a.json", records[0].Ref)
	assert.Equal(t, "CPU/b.json", records[1].Ref)
	assert.Equal(t, "CPU/broken.json", records[2].Ref)

	require.NoError(t, records[0].Err)
	assert.Equal(t, "11111111-1111-4111-8111-111111111111", records[0].Data["opendb_id"])
	assert.Equal(t, json.Number("100"), records[0].Data["price"])

	assert.Error(t, records[2].Err)
	assert.Nil(t, records[2].Data)
	assert.Equal(t, srv.URL, src.Describe())
}

func TestArchiveSource_RetriesTransientFailures(t *testing.T) {
	testCases := []struct {
		name   string
		status int
	}{
		{name: "service unavailable", status: http.StatusServiceUnavailable},
		{name: "rate limited", status: http.StatusTooManyRequests},
		{name: "bad gateway", status: http.StatusBadGateway},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			archive := datasetArchive(t)
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) == 1 {
					w.WriteHeader(tc.status)
					return
				}
				_, _ = w.Write(archive)
			}))
			defer srv.Close()

			src := NewArchiveSource(srv.URL, fastRetry(3), WithLogger(zaptest.NewLogger(t)))

			records, err := src.Fetch(context.Background(), "CPU")

			require.NoError(t, err)
			assert.Len(t, records, 3)
			assert.Equal(t, int32(2), calls.Load())
		})
	}
}

func TestArchiveSource_Unavailable(t *testing.T) {
	testCases := []struct {
		name      string
		status    int
		retries   int
		wantCalls int32
	}{
		{name: "not found is not retried", status: http.StatusNotFound, retries: 3, wantCalls: 1},
		{name: "forbidden is not retried", status: http.StatusForbidden, retries: 3, wantCalls: 1},
		{name: "server errors exhaust retries", status: http.StatusInternalServerError, retries: 2, wantCalls: 3},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			src := NewArchiveSource(srv.URL, fastRetry(tc.retries))

			records, err := src.Fetch(context.Background(), "CPU")

			assert.Nil(t, records)
			assert.ErrorIs(t, err, ErrSourceUnavailable)
			var serr *statusError
			require.True(t, errors.As(err, &serr))
			assert.Equal(t, tc.status, serr.code)
			assert.Equal(t, tc.wantCalls, calls.Load())
		})
	}
}

func TestArchiveSource_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewArchiveSource(url, fastRetry(1)).Fetch(context.Background(), "CPU")

	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestArchiveSource_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	src := NewArchiveSource(srv.URL, WithTimeout(50*time.Millisecond), fastRetry(1))

	start := time.Now()
	_, err := src.Fetch(context.Background(), "CPU")

	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestArchiveSource_CancelledByCaller(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := NewArchiveSource(srv.URL, fastRetry(3)).Fetch(ctx, "CPU")

	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrSourceUnavailable)
}

func TestArchiveSource_MissingDirectory(t *testing.T) {
	archive := datasetArchive(t)
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write(archive)
	}))
	defer srv.Close()

	_, err := NewArchiveSource(srv.URL, fastRetry(3)).Fetch(context.Background(), "PSU")

	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.ErrorIs(t, err, errDirectoryNotFound)
	assert.Equal(t, int32(1), calls.Load())
}

func TestArchiveSource_CorruptArchive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("definitely not gzip"))
	}))
	defer srv.Close()

	_, err := NewArchiveSource(srv.URL, fastRetry(0)).Fetch(context.Background(), "CPU")

	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestDirSource_Fetch(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "open-db", "CPU", "b.json"), cpuB)
	writeFile(t, filepath.Join(root, "open-db", "CPU", "a.json"), cpuA)
	writeFile(t, filepath.Join(root, "open-db", "CPU", "null.json"), "null")
	writeFile(t, filepath.Join(root, "open-db", "CPU", "notes.txt"), "skip me")
	writeFile(t, filepath.Join(root, "open-db", "GPU", "g.json"), gpu)

	src := NewDirSource(root)
	records, err := src.Fetch(context.Background(), "CPU")

	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "CPU/a.json", records[0].Ref)
	assert.Equal(t, "CPU/b.json", records[1].Ref)
	assert.Equal(t, "CPU/null.json", records[2].Ref)
	assert.Error(t, records[2].Err)
	assert.Equal(t, "dir:"+root, src.Describe())
}

func TestDirSource_MissingDirectory(t *testing.T) {
	_, err := NewDirSource(t.TempDir()).Fetch(context.Background(), "CPU")

	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestNew(t *testing.T) {
	src, err := New(config.OpenDBConfig{Source: "dir", LocalPath: "/data"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &DirSource{}, src)

	src, err = New(config.OpenDBConfig{Source: "archive", ArchiveURL: "https://example.com/db.tar.gz", MaxRetries: 1}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.IsType(t, &ArchiveSource{}, src)

	_, err = New(config.OpenDBConfig{Source: "git"}, nil)
	assert.Error(t, err)
}
