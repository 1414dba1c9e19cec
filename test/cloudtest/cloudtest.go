// Package cloudtest holds helpers for S3 integration tests against a moto
// server. Tests using it are tagged //go:build cloudintegration.
//
//	func TestSomething(t *testing.T) {
//	    cloudtest.SkipIfUnavailable(t)
//	    bucket := cloudtest.CreateBucket(t, ctx)
//	    cloudtest.PutObject(t, ctx, bucket, "in/a.csv", []byte("x\n1\n"))
//	}
package cloudtest

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/3leaps/storagekit/pkg/provider"
	providers3 "github.com/3leaps/storagekit/pkg/provider/s3"
)

const (
	// DefaultEndpoint is the moto server address. Port 5555 avoids the macOS
	// AirPlay receiver on 5000.
	DefaultEndpoint = "http://localhost:5555"

	DefaultRegion = "us-east-1"

	// moto accepts any key pair.
	TestAccessKeyID     = "testing"
	TestSecretAccessKey = "testing"
)

var (
	// Endpoint is overridden by MOTO_ENDPOINT.
	Endpoint = envOr("MOTO_ENDPOINT", DefaultEndpoint)

	// Region is overridden by MOTO_REGION.
	Region = envOr("MOTO_REGION", DefaultRegion)
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Available reports whether the moto control API answers.
func Available() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, Endpoint+"/moto-api/", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// SkipIfUnavailable skips t when moto is not running.
func SkipIfUnavailable(t *testing.T) {
	t.Helper()
	if !Available() {
		t.Skipf("moto server not available at %s", Endpoint)
	}
}

// S3Config returns a backend configuration pointing at moto.
func S3Config() providers3.Config {
	return providers3.Config{
		Endpoint:        Endpoint,
		Region:          Region,
		AccessKeyID:     TestAccessKeyID,
		SecretAccessKey: TestSecretAccessKey,
		ForcePathStyle:  true,
	}
}

// Backend connects an S3 backend to moto and closes it when t ends.
func Backend(t *testing.T, ctx context.Context) *providers3.Provider {
	t.Helper()
	b, err := providers3.New(ctx, S3Config())
	if err != nil {
		t.Fatalf("connect to moto: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

// BucketName derives a unique, valid bucket name from the test name.
func BucketName(t *testing.T) string {
	name := strings.ToLower(t.Name())
	name = strings.NewReplacer("/", "-", "_", "-", " ", "-").Replace(name)
	if len(name) > 50 {
		name = name[:50]
	}
	return fmt.Sprintf("%s-%d", strings.Trim(name, "-"), time.Now().UnixNano()%100000)
}

// CreateBucket creates a uniquely named bucket and empties it on cleanup.
// moto drops the buckets themselves when it restarts.
func CreateBucket(t *testing.T, ctx context.Context) string {
	t.Helper()
	b := Backend(t, ctx)
	name := BucketName(t)
	if err := b.CreateRepository(ctx, name); err != nil {
		t.Fatalf("create bucket %s: %v", name, err)
	}
	t.Cleanup(func() { emptyBucket(t, b, name) })
	return name
}

func emptyBucket(t *testing.T, b provider.Backend, bucket string) {
	ctx := context.Background()
	objects, err := b.ListObjects(ctx, bucket, "")
	if err != nil {
		t.Logf("list %s for cleanup: %v", bucket, err)
		return
	}
	for _, obj := range objects {
		if err := b.DeleteObject(ctx, bucket, obj.Key); err != nil {
			t.Logf("delete %s/%s: %v", bucket, obj.Key, err)
		}
	}
}

// PutObject uploads content to bucket/key.
func PutObject(t *testing.T, ctx context.Context, bucket, key string, content []byte) {
	t.Helper()
	if err := Backend(t, ctx).PutObject(ctx, bucket, key, content, provider.PutOptions{}); err != nil {
		t.Fatalf("put %s/%s: %v", bucket, key, err)
	}
}

// PutObjects uploads one small object per key.
func PutObjects(t *testing.T, ctx context.Context, bucket string, keys []string) {
	t.Helper()
	b := Backend(t, ctx)
	for _, key := range keys {
		if err := b.PutObject(ctx, bucket, key, []byte("content of "+key), provider.PutOptions{}); err != nil {
			t.Fatalf("put %s/%s: %v", bucket, key, err)
		}
	}
}
