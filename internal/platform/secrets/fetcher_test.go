package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fakeAccessClient struct {
	mu      sync.Mutex
	values  map[string]string
	errs    map[string]error
	counter map[string]int
}

func newFakeAccessClient() *fakeAccessClient {
	return &fakeAccessClient{
		values:  make(map[string]string),
		errs:    make(map[string]error),
		counter: make(map[string]int),
	}
}

func (f *fakeAccessClient) AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := req.GetName()
	f.counter[name]++
	if err := f.errs[name]; err != nil {
		return nil, err
	}
	if value, ok := f.values[name]; ok {
		return &secretmanagerpb.AccessSecretVersionResponse{
			Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
		}, nil
	}
	return nil, status.Error(codes.NotFound, "not found")
}

func (f *fakeAccessClient) Close() error { return nil }

func (f *fakeAccessClient) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counter[name]
}

func writeFallbackFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".secrets.local")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("failed writing fallback file: %v", err)
	}
	return path
}

func TestResolveSecretCachesRemoteValue(t *testing.T) {
	ctx := context.Background()
	client := newFakeAccessClient()
	resource := "projects/test/secrets/stripe-api-key/versions/latest"
	client.values[resource] = "sk_test_123"

	fetcher, err := NewFetcher(ctx,
		WithAccessClient(client),
		WithProject("test"),
		WithLogger(zap.NewNop()),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	for i := 0; i < 2; i++ {
		got, err := fetcher.ResolveSecret(ctx, "secret://stripe-api-key")
		if err != nil {
			t.Fatalf("ResolveSecret call %d returned error: %v", i+1, err)
		}
		if got != "sk_test_123" {
			t.Fatalf("got %q, want sk_test_123", got)
		}
	}
	if calls := client.callCount(resource); calls != 1 {
		t.Fatalf("remote fetches = %d, want 1 (second read served from cache)", calls)
	}
}

func TestResolveSecretHonoursVersionQuery(t *testing.T) {
	ctx := context.Background()
	client := newFakeAccessClient()
	resource := "projects/test/secrets/jwt-signing-secret/versions/5"
	client.values[resource] = "version-5"

	fetcher, err := NewFetcher(ctx, WithAccessClient(client), WithProject("test"))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	got, err := fetcher.ResolveSecret(ctx, "secret://jwt-signing-secret?version=5")
	if err != nil {
		t.Fatalf("ResolveSecret returned error: %v", err)
	}
	if got != "version-5" {
		t.Fatalf("got %q, want version-5", got)
	}
	if calls := client.callCount(resource); calls != 1 {
		t.Fatalf("fetches of version 5 = %d, want 1", calls)
	}
}

func TestResolveSecretFallsBackWhenAccessDenied(t *testing.T) {
	ctx := context.Background()
	fallback := writeFallbackFile(t, "# local development secrets\nsecret://stripe-api-key=sk_local\n")

	client := newFakeAccessClient()
	client.errs["projects/test/secrets/stripe-api-key/versions/latest"] = status.Error(codes.PermissionDenied, "denied")

	fetcher, err := NewFetcher(ctx,
		WithAccessClient(client),
		WithProject("test"),
		WithFallbackFile(fallback),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	got, err := fetcher.ResolveSecret(ctx, "secret://stripe-api-key")
	if err != nil {
		t.Fatalf("ResolveSecret returned error: %v", err)
	}
	if got != "sk_local" {
		t.Fatalf("got %q, want the fallback value sk_local", got)
	}
}

func TestResolveSecretDoesNotFallbackOnNotFound(t *testing.T) {
	ctx := context.Background()
	fallback := writeFallbackFile(t, "secret://stripe-api-key=sk_local\n")

	client := newFakeAccessClient()
	client.errs["projects/test/secrets/stripe-api-key/versions/latest"] = status.Error(codes.NotFound, "missing")

	fetcher, err := NewFetcher(ctx,
		WithAccessClient(client),
		WithProject("test"),
		WithFallbackFile(fallback),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	if _, err := fetcher.ResolveSecret(ctx, "secret://stripe-api-key"); err == nil {
		t.Fatal("expected error for a secret missing from the configured project")
	}
}

func TestNewFetcherWithoutCredentialsUsesFallback(t *testing.T) {
	ctx := context.Background()

	original := newSecretManagerClient
	newSecretManagerClient = func(context.Context, ...option.ClientOption) (*secretmanager.Client, error) {
		return nil, errors.New("no credentials")
	}
	t.Cleanup(func() { newSecretManagerClient = original })

	fallback := writeFallbackFile(t, "secret://stripe-api-key=sk_local\n")

	fetcher, err := NewFetcher(ctx, WithFallbackFile(fallback))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	got, err := fetcher.ResolveSecret(ctx, "secret://stripe-api-key")
	if err != nil {
		t.Fatalf("ResolveSecret returned error: %v", err)
	}
	if got != "sk_local" {
		t.Fatalf("got %q, want sk_local", got)
	}
}

func TestParseRefRejectsMalformedReferences(t *testing.T) {
	for _, raw := range []string{"", "  ", "vault://stripe-api-key", "secret://"} {
		if _, err := parseRef(raw); err == nil {
			t.Fatalf("parseRef(%q) succeeded, want error", raw)
		}
	}
}
