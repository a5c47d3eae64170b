// Package secrets resolves secret:// references (Stripe API key, JWT signing
// secret) against Google Secret Manager, with a local fallback file so the
// service starts on a developer machine without cloud credentials.
package secrets

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultFallbackPath = ".secrets.local"
	meterName           = "github.com/clearbay/orders/internal/platform/secrets"
)

var newSecretManagerClient = func(ctx context.Context, opts ...option.ClientOption) (*secretmanager.Client, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type accessClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher satisfies config.SecretResolver. Resolved values are cached for the
// life of the process; secrets here rotate by restart, not in place.
type Fetcher struct {
	client     accessClient
	ownsClient bool
	logger     *zap.Logger
	projectID  string

	fallbackPath string
	fallbackOnce sync.Once
	fallback     map[string]string
	fallbackErr  error

	mu    sync.RWMutex
	cache map[string]string

	fetchLatency metric.Float64Histogram
	cacheHits    metric.Int64Counter
}

// Option customises Fetcher construction.
type Option func(*Fetcher)

// WithLogger sets the diagnostic logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithProject sets the project used when a reference has no project override.
func WithProject(projectID string) Option {
	return func(f *Fetcher) { f.projectID = strings.TrimSpace(projectID) }
}

// WithFallbackFile overrides the path of the local fallback secrets file.
func WithFallbackFile(path string) Option {
	return func(f *Fetcher) { f.fallbackPath = strings.TrimSpace(path) }
}

// WithAccessClient injects a preconfigured Secret Manager client, primarily
// for tests.
func WithAccessClient(client accessClient) Option {
	return func(f *Fetcher) { f.client = client }
}

// NewFetcher builds a fetcher. When the Secret Manager client cannot be
// created (no credentials locally) the fetcher still works, serving values
// from the fallback file only.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	f := &Fetcher{
		logger:       zap.NewNop(),
		fallbackPath: defaultFallbackPath,
		cache:        make(map[string]string),
	}
	for _, opt := range opts {
		opt(f)
	}

	meter := otel.GetMeterProvider().Meter(meterName)
	var err error
	if f.fetchLatency, err = meter.Float64Histogram(
		"secrets.fetch.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency in milliseconds for secret fetch attempts"),
	); err != nil {
		f.logger.Warn("secrets: unable to register latency metric", zap.Error(err))
		f.fetchLatency = nil
	}
	if f.cacheHits, err = meter.Int64Counter(
		"secrets.fetch.cache_hits",
		metric.WithDescription("Count of cache hits when resolving secrets"),
	); err != nil {
		f.logger.Warn("secrets: unable to register cache hit metric", zap.Error(err))
		f.cacheHits = nil
	}

	if f.client == nil {
		client, err := newSecretManagerClient(ctx)
		if err != nil {
			f.logger.Warn("secrets: secret manager client unavailable; operating in fallback mode", zap.Error(err))
		} else {
			f.client = client
			f.ownsClient = true
		}
	}
	return f, nil
}

// Close releases the Secret Manager client when the fetcher created it.
func (f *Fetcher) Close() error {
	if f.ownsClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// ResolveSecret resolves a secret:// reference, trying the cache, then Secret
// Manager, then the fallback file. Remote access failures that look like a
// missing environment (no permissions, no connectivity) fall through to the
// fallback file; a genuinely missing secret does not.
func (f *Fetcher) ResolveSecret(ctx context.Context, raw string) (string, error) {
	start := time.Now()
	ref, err := parseRef(raw)
	if err != nil {
		return "", err
	}

	f.mu.RLock()
	cached, ok := f.cache[ref.cacheKey()]
	f.mu.RUnlock()
	if ok {
		f.countCacheHit(ctx, ref)
		f.observe(ctx, start, "cache", nil)
		return cached, nil
	}

	project := ref.project
	if project == "" {
		project = f.projectID
	}

	if f.client != nil && project != "" {
		value, err := f.access(ctx, project, ref)
		if err == nil {
			f.store(ref, value)
			f.observe(ctx, start, "remote", nil)
			return value, nil
		}
		if !environmentError(err) {
			f.observe(ctx, start, "error", err)
			return "", fmt.Errorf("secrets: fetch failed for %s: %w", ref.canonical, err)
		}
		f.logger.Debug("secrets: falling back to local secrets", zap.String("ref", ref.canonical), zap.Error(err))
	}

	value, ok := f.localValue(ref)
	if !ok {
		err := fmt.Errorf("secrets: fallback value not found for %s", ref.canonical)
		f.observe(ctx, start, "error", err)
		return "", err
	}
	f.store(ref, value)
	f.observe(ctx, start, "fallback", nil)
	return value, nil
}

func (f *Fetcher) access(ctx context.Context, project string, ref secretRef) (string, error) {
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, ref.name, ref.version)
	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", err
	}
	if resp.GetPayload() == nil {
		return "", fmt.Errorf("secret manager returned empty payload for %s", name)
	}
	return string(resp.GetPayload().GetData()), nil
}

func (f *Fetcher) store(ref secretRef, value string) {
	f.mu.Lock()
	f.cache[ref.cacheKey()] = value
	f.mu.Unlock()
}

func (f *Fetcher) localValue(ref secretRef) (string, bool) {
	f.fallbackOnce.Do(f.loadFallback)
	if f.fallbackErr != nil {
		f.logger.Debug("secrets: fallback load error", zap.Error(f.fallbackErr))
		return "", false
	}
	if value, ok := f.fallback[ref.cacheKey()]; ok {
		return value, true
	}
	value, ok := f.fallback[ref.canonical]
	return value, ok
}

// loadFallback reads KEY=VALUE lines; keys are secret:// references, blank
// lines and # comments are skipped. A missing file is simply an empty set.
func (f *Fetcher) loadFallback() {
	f.fallback = map[string]string{}
	if f.fallbackPath == "" {
		return
	}

	file, err := os.Open(f.fallbackPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			f.fallbackErr = fmt.Errorf("secrets: unable to open fallback file %s: %w", f.fallbackPath, err)
		}
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" {
			continue
		}
		if ref, err := parseRef(key); err == nil {
			f.fallback[ref.canonical] = value
			f.fallback[ref.cacheKey()] = value
		} else {
			f.fallback[key] = value
		}
	}
	if err := scanner.Err(); err != nil {
		f.fallbackErr = fmt.Errorf("secrets: failed reading %s: %w", f.fallbackPath, err)
	}
}

func (f *Fetcher) observe(ctx context.Context, start time.Time, source string, err error) {
	if f.fetchLatency == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("source", source)}
	if err != nil {
		attrs = append(attrs, attribute.String("error", err.Error()))
	}
	f.fetchLatency.Record(ctx, float64(time.Since(start))/float64(time.Millisecond), metric.WithAttributes(attrs...))
}

func (f *Fetcher) countCacheHit(ctx context.Context, ref secretRef) {
	if f.cacheHits == nil {
		return
	}
	// The reference itself is hashed so metric labels never leak secret names.
	sum := sha256.Sum256([]byte(ref.canonical))
	f.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("secret", hex.EncodeToString(sum[:8]))))
}

// secretRef is a parsed secret://NAME?version=N&project=P reference.
type secretRef struct {
	canonical string
	name      string
	version   string
	project   string
}

func (r secretRef) cacheKey() string { return r.canonical + "#" + r.version }

func parseRef(raw string) (secretRef, error) {
	if strings.TrimSpace(raw) == "" {
		return secretRef{}, errors.New("secrets: empty reference")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return secretRef{}, fmt.Errorf("secrets: invalid reference %q: %w", raw, err)
	}
	if u.Scheme != "secret" {
		return secretRef{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	name := strings.Trim(strings.TrimPrefix(u.Host+u.Path, "/"), "/")
	if name == "" {
		return secretRef{}, fmt.Errorf("secrets: missing secret name in %q", raw)
	}

	canonical := *u
	canonical.RawQuery = ""
	canonical.Fragment = ""

	query := u.Query()
	version := strings.TrimSpace(query.Get("version"))
	if version == "" {
		version = "latest"
	}

	return secretRef{
		canonical: canonical.String(),
		name:      name,
		version:   version,
		project:   strings.TrimSpace(query.Get("project")),
	}, nil
}

// environmentError reports whether a Secret Manager failure indicates the
// environment cannot reach secrets at all, which is when the fallback file
// applies. NotFound stays an error: the secret should exist.
func environmentError(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}
