package storage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"ai-voice-transcription-service/internal/apperror"
	"ai-voice-transcription-service/internal/config"
	"ai-voice-transcription-service/internal/observability/metrics"
	"ai-voice-transcription-service/internal/service/format"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type recordedPut struct {
	method      string
	path        string
	contentType string
}

// fakeStore answers every request with status and records what it saw.
type fakeStore struct {
	mu     sync.Mutex
	status int
	body   string
	puts   []recordedPut
}

func (f *fakeStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.puts = append(f.puts, recordedPut{method: r.Method, path: r.URL.Path, contentType: r.Header.Get("Content-Type")})
	status, body := f.status, f.body
	f.mu.Unlock()

	if body != "" {
		w.Header().Set("Content-Type", "application/xml")
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func (f *fakeStore) requests() []recordedPut {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedPut(nil), f.puts...)
}

func storeConfig(endpoint string) config.StorageConfig {
	return config.StorageConfig{
		AccessKeyID:     "AKTEST",
		SecretAccessKey: "SKTEST",
		Bucket:          "voice-bucket",
		Region:          "cn-beijing",
		Endpoint:        endpoint,
		ForcePathStyle:  true,
		PresignExpiry:   600 * time.Second,
		MaxAttempts:     1,
	}
}

func newTestGateway(t *testing.T, store *fakeStore) (*Gateway, *metrics.Metrics) {
	t.Helper()
	srv := httptest.NewServer(store)
	t.Cleanup(srv.Close)

	m := metrics.NewMetricsWith(prometheus.NewRegistry())
	g, err := New(context.Background(), storeConfig(srv.URL),
		WithClock(func() time.Time { return fixedNow }),
		WithMetrics(m),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g, m
}

func TestGateway_MissingConfiguration(t *testing.T) {
	store := &fakeStore{status: http.StatusOK}
	srv := httptest.NewServer(store)
	defer srv.Close()

	cfg := storeConfig(srv.URL)
	cfg.SecretAccessKey = ""
	cfg.Bucket = ""

	g, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New should not fail on missing credentials: %v", err)
	}

	var cfgErr *apperror.ConfigurationError
	if _, _, err := g.UploadURL(context.Background(), "u1", format.WebM); !errors.As(err, &cfgErr) {
		t.Errorf("UploadURL: expected ConfigurationError, got %v", err)
	}
	if _, err := g.DownloadURL(context.Background(), "voice/u1/k.webm"); !errors.As(err, &cfgErr) {
		t.Errorf("DownloadURL: expected ConfigurationError, got %v", err)
	}
	if err := g.PutObject(context.Background(), ObjectLocation{Key: "k"}, []byte("x")); !errors.As(err, &cfgErr) {
		t.Errorf("PutObject: expected ConfigurationError, got %v", err)
	}
	if len(cfgErr.Missing) != 2 {
		t.Errorf("expected 2 missing keys, got %v", cfgErr.Missing)
	}
	if n := len(store.requests()); n != 0 {
		t.Errorf("expected no network calls, got %d", n)
	}
}

func TestGateway_UploadURL(t *testing.T) {
	g, m := newTestGateway(t, &fakeStore{status: http.StatusOK})

	signed, loc, err := g.UploadURL(context.Background(), "u1", format.WebM)
	if err != nil {
		t.Fatalf("UploadURL: %v", err)
	}

	if signed.Method != http.MethodPut {
		t.Errorf("expected PUT, got %s", signed.Method)
	}
	if !signed.ExpiresAt.Equal(fixedNow.Add(600 * time.Second)) {
		t.Errorf("unexpected expiry %v", signed.ExpiresAt)
	}
	if !strings.Contains(signed.URL, "/voice-bucket/"+loc.Key) {
		t.Errorf("signed URL %s does not address key %s", signed.URL, loc.Key)
	}
	if !strings.Contains(signed.URL, "X-Amz-Expires=600") {
		t.Errorf("signed URL missing 600s expiry: %s", signed.URL)
	}
	if !strings.HasPrefix(loc.Key, "voice/u1/") || !strings.HasSuffix(loc.Key, ".webm") {
		t.Errorf("unexpected key %s", loc.Key)
	}
	if loc.ContentType != "audio/webm" || loc.Bucket != "voice-bucket" {
		t.Errorf("unexpected location %+v", loc)
	}
	if got := testutil.ToFloat64(m.PresignTotal.WithLabelValues(http.MethodPut)); got != 1 {
		t.Errorf("expected 1 presign recorded, got %v", got)
	}

	_, second, _ := g.UploadURL(context.Background(), "u1", format.WebM)
	if second.Key == loc.Key {
		t.Error("expected a fresh key per upload URL")
	}
}

func TestGateway_DownloadURL(t *testing.T) {
	g, _ := newTestGateway(t, &fakeStore{status: http.StatusOK})

	signed, err := g.DownloadURL(context.Background(), "voice/u1/1-a.ogg")
	if err != nil {
		t.Fatalf("DownloadURL: %v", err)
	}
	if signed.Method != http.MethodGet {
		t.Errorf("expected GET, got %s", signed.Method)
	}
	if !strings.Contains(signed.URL, "/voice-bucket/voice/u1/1-a.ogg") {
		t.Errorf("unexpected URL %s", signed.URL)
	}

	var valErr *apperror.ValidationError
	if _, err := g.DownloadURL(context.Background(), ""); !errors.As(err, &valErr) {
		t.Errorf("expected ValidationError for empty key, got %v", err)
	}
}

func TestGateway_PresignFailure(t *testing.T) {
	awsCfg := aws.Config{
		Region: "cn-beijing",
		Credentials: aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{}, errors.New("credential source unavailable")
		}),
	}
	g := NewFromAWSConfig(awsCfg, storeConfig("http://127.0.0.1:1"),
		WithMetrics(metrics.NewMetricsWith(prometheus.NewRegistry())))

	_, _, err := g.UploadURL(context.Background(), "u1", format.OGG)
	var upErr *apperror.UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if upErr.Service != apperror.ServiceObjectStore || upErr.Op != "presign_put" {
		t.Errorf("unexpected upstream error %+v", upErr)
	}
}

func TestGateway_PutObject_SuccessStatuses(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusNoContent} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			store := &fakeStore{status: status}
			g, m := newTestGateway(t, store)

			loc := g.NewLocation("u1", format.OGG)
			if err := g.PutObject(context.Background(), loc, []byte("OggS-audio")); err != nil {
				t.Fatalf("PutObject: %v", err)
			}

			reqs := store.requests()
			if len(reqs) != 1 {
				t.Fatalf("expected 1 request, got %d", len(reqs))
			}
			if reqs[0].method != http.MethodPut || reqs[0].path != "/voice-bucket/"+loc.Key {
				t.Errorf("unexpected request %+v", reqs[0])
			}
			if reqs[0].contentType != "audio/ogg" {
				t.Errorf("expected audio/ogg content type, got %s", reqs[0].contentType)
			}
			if got := testutil.ToFloat64(m.UploadBytes); got != float64(len("OggS-audio")) {
				t.Errorf("expected uploaded bytes recorded, got %v", got)
			}
		})
	}
}

func TestGateway_PutObject_RejectsOtherSuccessStatus(t *testing.T) {
	g, _ := newTestGateway(t, &fakeStore{status: http.StatusPartialContent})

	err := g.PutObject(context.Background(), g.NewLocation("u1", format.WebM), []byte("x"))
	var upErr *apperror.UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if upErr.StatusCode != http.StatusPartialContent {
		t.Errorf("expected status 206, got %d", upErr.StatusCode)
	}
}

func TestGateway_PutObject_StoreRejects(t *testing.T) {
	store := &fakeStore{
		status: http.StatusForbidden,
		body:   `<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>Access Denied</Message></Error>`,
	}
	g, m := newTestGateway(t, store)

	err := g.PutObject(context.Background(), g.NewLocation("u1", format.WebM), []byte("x"))
	var upErr *apperror.UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if upErr.StatusCode != http.StatusForbidden {
		t.Errorf("expected status 403, got %d", upErr.StatusCode)
	}
	if !strings.Contains(upErr.Message, "AccessDenied") {
		t.Errorf("expected store error code in message, got %q", upErr.Message)
	}
	if apperror.HTTPStatus(err) != http.StatusBadGateway {
		t.Errorf("store failures should map to 502, got %d", apperror.HTTPStatus(err))
	}
	if got := testutil.ToFloat64(m.StoreErrors.WithLabelValues("put_object")); got != 1 {
		t.Errorf("expected 1 store error recorded, got %v", got)
	}
}
