package storage

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"quickdeploy/api/logging"
	"quickdeploy/api/model"
	"quickdeploy/api/retry"
)

const (
	DefaultConcurrency        = 5
	DefaultMultipartThreshold = 10 << 20
	DefaultPartSize           = 8 << 20
	DefaultOpTimeout          = 5 * time.Minute

	fallbackContentType = "application/octet-stream"
)

// Extensions the platform mime table tends to miss.
var contentTypes = map[string]string{
	".webmanifest": "application/manifest+json",
	".map":         "application/json",
	".mjs":         "text/javascript; charset=utf-8",
	".wasm":        "application/wasm",
	".ico":         "image/x-icon",
	".woff2":       "font/woff2",
}

// Synchronizer replaces the contents of a bucket with an artifact set.
type Synchronizer struct {
	Store              ObjectStore
	Concurrency        int
	MultipartThreshold int64
	PartSize           uint64
	// OpTimeout bounds each list and delete call and each upload
	// attempt. A timed out attempt is retried like a network fault.
	OpTimeout time.Duration
	// Retry wraps every upload. Retryable defaults to IsTransient.
	Retry  retry.Policy
	Logger *slog.Logger
	// InFlight, when set, tracks uploads currently running.
	InFlight prometheus.Gauge
}

func NewSynchronizer(store ObjectStore) *Synchronizer {
	return &Synchronizer{
		Store:              store,
		Concurrency:        DefaultConcurrency,
		MultipartThreshold: DefaultMultipartThreshold,
		PartSize:           DefaultPartSize,
		OpTimeout:          DefaultOpTimeout,
		Retry:              retry.Default(IsTransient),
		Logger:             slog.Default(),
	}
}

// Clear deletes every object in the bucket, one listing page at a time,
// and returns how many keys were deleted.
func (s *Synchronizer) Clear(ctx context.Context) (int, error) {
	deleted := 0
	cursor := ""
	for {
		var page Page
		err := s.bounded(ctx, func(ctx context.Context) (err error) {
			page, err = s.Store.ListPage(ctx, cursor)
			return err
		})
		if err != nil {
			return deleted, fmt.Errorf("clear: %w", err)
		}
		if len(page.Keys) == 0 {
			return deleted, nil
		}
		err = s.bounded(ctx, func(ctx context.Context) error {
			return s.Store.DeleteObjects(ctx, page.Keys)
		})
		if err != nil {
			return deleted, fmt.Errorf("clear: %w", err)
		}
		deleted += len(page.Keys)
		if page.Cursor == "" {
			return deleted, nil
		}
		cursor = page.Cursor
	}
}

// SyncAll uploads every artifact in key order, at most Concurrency at a
// time. The first upload that fails for good aborts the rest.
func (s *Synchronizer) SyncAll(ctx context.Context, artifacts model.ArtifactSet) error {
	limit := s.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, key := range artifacts.Keys() {
		path := artifacts[key]
		g.Go(func() error {
			return s.upload(gctx, key, path)
		})
	}
	return g.Wait()
}

func (s *Synchronizer) upload(ctx context.Context, key, path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	size := fi.Size()

	threshold := s.MultipartThreshold
	if threshold <= 0 {
		threshold = DefaultMultipartThreshold
	}
	opts := PutOptions{ContentType: ContentType(path)}
	if size > threshold {
		opts.Multipart = true
		opts.PartSize = s.PartSize
		if opts.PartSize == 0 {
			opts.PartSize = DefaultPartSize
		}
	}

	if s.InFlight != nil {
		s.InFlight.Inc()
		defer s.InFlight.Dec()
	}

	policy := s.Retry
	if policy.Retryable == nil {
		policy.Retryable = IsTransient
	}
	if policy.Logger != nil {
		policy.Logger = policy.Logger.With("key", key)
	}

	err = retry.Do(ctx, policy, func(ctx context.Context) error {
		return s.bounded(ctx, func(ctx context.Context) error {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			return s.Store.PutObject(ctx, key, f, size, opts)
		})
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	logging.FromContext(ctx, s.Logger).Debug("uploaded", "key", key, "bytes", size, "multipart", opts.Multipart)
	return nil
}

// bounded runs one store call under OpTimeout.
func (s *Synchronizer) bounded(ctx context.Context, call func(ctx context.Context) error) error {
	timeout := s.OpTimeout
	if timeout <= 0 {
		timeout = DefaultOpTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return call(ctx)
}

// ContentType picks a MIME type from the file extension.
func ContentType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return fallbackContentType
}

