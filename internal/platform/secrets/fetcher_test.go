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
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const sessionSecret = "projects/campusnest/secrets/admin_session_secret/versions/latest"

func writeFallback(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".secrets.local")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write fallback: %v", err)
	}
	return path
}

func TestResolveCachesRemoteSecret(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	client.values[sessionSecret] = "remote-secret"

	fetcher, err := NewFetcher(ctx, WithSecretManagerClient(client), WithDefaultProject("campusnest"))
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	defer fetcher.Close()

	for i := 0; i < 2; i++ {
		got, err := fetcher.Resolve(ctx, "secret://admin_session_secret")
		if err != nil || got != "remote-secret" {
			t.Fatalf("resolve %d: %q %v", i, got, err)
		}
	}
	if calls := client.callCount(sessionSecret); calls != 1 {
		t.Fatalf("expected one remote fetch, got %d", calls)
	}

	fetcher.Invalidate("sm://admin_session_secret")
	if _, err := fetcher.ResolveSecret(ctx, "sm://admin_session_secret"); err != nil {
		t.Fatalf("resolve after invalidate: %v", err)
	}
	if calls := client.callCount(sessionSecret); calls != 2 {
		t.Fatalf("expected refetch after invalidate, got %d", calls)
	}
}

func TestResolveHonoursVersionAndProject(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	pinned := "projects/other/secrets/admin_session_secret/versions/3"
	client.values[pinned] = "pinned"

	fetcher, _ := NewFetcher(ctx, WithSecretManagerClient(client), WithDefaultProject("campusnest"))
	got, err := fetcher.Resolve(ctx, "secret://admin_session_secret?version=3&project=other")
	if err != nil || got != "pinned" {
		t.Fatalf("expected pinned value, got %q %v", got, err)
	}
}

func TestResolveFallsBackWhenUnavailable(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	client.errors[sessionSecret] = status.Error(codes.Unavailable, "offline")

	fetcher, _ := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithDefaultProject("campusnest"),
		WithFallbackFile(writeFallback(t, "admin_session_secret=local-secret\n")),
	)
	got, err := fetcher.Resolve(ctx, "secret://admin_session_secret")
	if err != nil || got != "local-secret" {
		t.Fatalf("expected fallback value, got %q %v", got, err)
	}
}

func TestResolveDoesNotFallbackOnNotFound(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	client.errors[sessionSecret] = status.Error(codes.NotFound, "missing")

	fetcher, _ := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithDefaultProject("campusnest"),
		WithFallbackFile(writeFallback(t, "admin_session_secret=local-secret\n")),
	)
	if _, err := fetcher.Resolve(ctx, "secret://admin_session_secret"); err == nil {
		t.Fatal("expected error for missing secret")
	}
}

func TestNewFetcherWithoutCredentialsUsesFallback(t *testing.T) {
	original := secretManagerClientFactory
	secretManagerClientFactory = func(context.Context, ...option.ClientOption) (*secretmanager.Client, error) {
		return nil, errors.New("no credentials")
	}
	t.Cleanup(func() { secretManagerClientFactory = original })

	fetcher, err := NewFetcher(context.Background(), WithFallbackFile(writeFallback(t, "redis_password=hunter2\n")))
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	got, err := fetcher.Resolve(context.Background(), "secret://redis_password")
	if err != nil || got != "hunter2" {
		t.Fatalf("expected fallback value, got %q %v", got, err)
	}
	if _, err := fetcher.Resolve(context.Background(), "secret://unknown"); err == nil {
		t.Fatal("expected error for secret missing from fallback")
	}
}

func TestParseReference(t *testing.T) {
	if _, err := parseReference("https://example.com"); err == nil {
		t.Fatal("expected unsupported scheme error")
	}
	if _, err := parseReference("secret://"); err == nil {
		t.Fatal("expected missing name error")
	}
	ref, err := parseReference("sm://admin_code?version=2")
	if err != nil || ref.canonical != "secret://admin_code" || ref.version != "2" {
		t.Fatalf("unexpected reference %#v %v", ref, err)
	}
}

type fakeSecretClient struct {
	mu      sync.Mutex
	values  map[string]string
	errors  map[string]error
	counter map[string]int
}

func newFakeSecretClient() *fakeSecretClient {
	return &fakeSecretClient{
		values:  make(map[string]string),
		errors:  make(map[string]error),
		counter: make(map[string]int),
	}
}

func (f *fakeSecretClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := req.GetName()
	f.counter[name]++
	if err := f.errors[name]; err != nil {
		return nil, err
	}
	if value, ok := f.values[name]; ok {
		return &secretmanagerpb.AccessSecretVersionResponse{Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)}}, nil
	}
	return nil, status.Error(codes.NotFound, "not found")
}

func (f *fakeSecretClient) Close() error { return nil }

func (f *fakeSecretClient) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counter[name]
}
