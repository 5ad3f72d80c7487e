package opendb

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pcparts/partsdb/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// maxDocumentSize caps a single JSON document read from the archive.
const maxDocumentSize = 4 << 20

// ArchiveSource downloads the dataset as a gzipped tarball over HTTP.
type ArchiveSource struct {
	url        string
	token      string
	client     *http.Client
	timeout    time.Duration
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	logger     *zap.Logger
}

type ArchiveOption func(*ArchiveSource)

// WithHTTPClient replaces the instrumented default client.
func WithHTTPClient(client *http.Client) ArchiveOption {
	return func(s *ArchiveSource) { s.client = client }
}

// WithToken sends the token as a bearer credential.
func WithToken(token string) ArchiveOption {
	return func(s *ArchiveSource) { s.token = token }
}

// WithTimeout bounds each download attempt.
func WithTimeout(d time.Duration) ArchiveOption {
	return func(s *ArchiveSource) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithRetry sets how many times a transient failure is retried and the
// exponential backoff bounds between attempts.
func WithRetry(maxRetries int, baseDelay, maxDelay time.Duration) ArchiveOption {
	return func(s *ArchiveSource) {
		if maxRetries >= 0 {
			s.maxRetries = maxRetries
		}
		if baseDelay > 0 {
			s.baseDelay = baseDelay
		}
		if maxDelay > 0 {
			s.maxDelay = maxDelay
		}
	}
}

func WithLogger(logger *zap.Logger) ArchiveOption {
	return func(s *ArchiveSource) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewArchiveSource(url string, opts ...ArchiveOption) *ArchiveSource {
	s := &ArchiveSource{
		url:        url,
		client:     &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		timeout:    60 * time.Second,
		maxRetries: 3,
		baseDelay:  500 * time.Millisecond,
		maxDelay:   10 * time.Second,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ArchiveSource) Describe() string {
	return s.url
}

// statusError is a non-success HTTP response.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.code, http.StatusText(e.code))
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// Fetch downloads the archive and returns the documents of one category directory.
// Network errors, timeouts, 429 and 5xx responses are retried with exponential backoff.
func (s *ArchiveSource) Fetch(ctx context.Context, directory string) ([]Record, error) {
	ctx, span := telemetry.StartSpan(ctx, "opendb.fetch", "opendb.url", s.url, "opendb.directory", directory)
	defer span.End()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.baseDelay
	b.MaxInterval = s.maxDelay
	b.MaxElapsedTime = 0

	attempt := 0
	var records []Record
	operation := func() error {
		attempt++
		var err error
		records, err = s.download(ctx, directory)
		return err
	}
	notify := func(err error, next time.Duration) {
		s.logger.Warn("OpenDB download failed, retrying",
			zap.String("url", s.url),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", next),
			zap.Error(err),
		)
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.maxRetries)), ctx), notify)
	telemetry.SetAttributes(span, "opendb.attempts", attempt, "opendb.records", len(records))
	if err != nil {
		telemetry.RecordError(span, err)
		// the caller gave up; the source may be fine
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, s.url, err)
	}
	return records, nil
}

func (s *ArchiveSource) download(ctx context.Context, directory string) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("User-Agent", "partsdb")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		serr := &statusError{code: resp.StatusCode}
		if retryableStatus(resp.StatusCode) {
			return nil, serr
		}
		return nil, backoff.Permanent(serr)
	}

	return readArchive(resp.Body, directory)
}

// errDirectoryNotFound marks an archive that downloaded fine but lacks the directory.
var errDirectoryNotFound = errors.New("directory not found in archive")

// readArchive extracts */open-db/<directory>/*.json from a gzipped tar stream.
func readArchive(r io.Reader, directory string) ([]Record, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	found := false
	var records []Record
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read tar stream: %w", err)
		}

		parts := strings.Split(strings.Trim(hdr.Name, "/"), "/")
		idx := indexOf(parts, "open-db")
		if idx < 0 || idx+1 >= len(parts) || parts[idx+1] != directory {
			continue
		}
		found = true

		if hdr.Typeflag != tar.TypeReg || len(parts) != idx+3 || !strings.EqualFold(path.Ext(hdr.Name), ".json") {
			continue
		}

		ref := directory + "/" + parts[idx+2]
		if hdr.Size > maxDocumentSize {
			records = append(records, Record{Ref: ref, Err: fmt.Errorf("document is %d bytes, limit is %d", hdr.Size, maxDocumentSize)})
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", hdr.Name, err)
		}
		records = append(records, decodeRecord(ref, data))
	}

	if !found {
		return nil, backoff.Permanent(fmt.Errorf("%w: open-db/%s", errDirectoryNotFound, directory))
	}

	sortRecords(records)
	return records, nil
}

func indexOf(parts []string, name string) int {
	for i, p := range parts {
		if p == name {
			return i
		}
	}
	return -1
}
