package research

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func TestFetchPolicySchemeAllowDeny(t *testing.T) {
	policy := newFetchPolicy(ReaderConfig{})
	if _, err := policy.validateURL("https://example.com/page"); err != nil {
		t.Fatalf("expected https to be allowed: %v", err)
	}
	if _, err := policy.validateURL("http://example.com/page"); err != nil {
		t.Fatalf("expected http to be allowed: %v", err)
	}
	if _, err := policy.validateURL("file:///etc/passwd"); err == nil {
		t.Fatal("expected file scheme to be denied")
	}
}

func TestFetchPolicyBlocksPrivateIP(t *testing.T) {
	policy := newFetchPolicy(ReaderConfig{})
	if _, err := policy.validateURL("http://127.0.0.1:8080/admin"); err == nil {
		t.Fatal("expected private loopback ip to be blocked")
	}
	if _, err := policy.validateURL("http://[::1]/"); err == nil {
		t.Fatal("expected ipv6 loopback to be blocked")
	}
	if _, err := policy.validateURL("http://internal.local/"); err == nil {
		t.Fatal("expected .local hostname to be blocked")
	}
}

func TestFetchPolicyHonorsConfiguredHostsAndPorts(t *testing.T) {
	policy := newFetchPolicy(ReaderConfig{
		BlockedHosts: []string{"Tracker.example"},
		AllowedPorts: []int{8443},
	})

	if _, err := policy.validateURL("https://tracker.example/feed"); err == nil {
		t.Fatal("expected configured host to be blocked")
	}
	if _, err := policy.validateURL("https://cdn.tracker.example/feed"); err == nil {
		t.Fatal("expected subdomain of configured host to be blocked")
	}
	if _, err := policy.validateURL("https://example.com:8443/api"); err != nil {
		t.Fatalf("expected configured port to be allowed: %v", err)
	}
	if _, err := policy.validateURL("https://example.com:9000/api"); err == nil {
		t.Fatal("expected unlisted port to be blocked")
	}
}

func TestFetchPolicyAllowPrivateHosts(t *testing.T) {
	policy := newFetchPolicy(ReaderConfig{AllowPrivateHosts: true})
	if _, err := policy.validateURL("http://127.0.0.1/status"); err != nil {
		t.Fatalf("expected loopback to pass with private hosts allowed: %v", err)
	}
	if _, err := policy.validateURL("http://docs.internal/wiki"); err != nil {
		t.Fatalf("expected internal hostname to pass with private hosts allowed: %v", err)
	}
}

func TestReaderBodySizeCap(t *testing.T) {
	payload := strings.Repeat("a", 2048)
	client := &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusOK,
				Header:     http.Header{"Content-Type": []string{"text/plain"}},
				Body:       io.NopCloser(strings.NewReader(payload)),
				Request:    req,
			}, nil
		}),
	}
	reader := NewHTTPReader(ReaderConfig{MaxBytes: 256, MaxTextRunes: 512, RequestTimeout: 2 * time.Second}, client)

	result, err := reader.Read(context.Background(), "https://example.com/large")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !result.Truncated {
		t.Fatalf("expected truncated result")
	}
	if len(result.Text) == 0 || len(result.Text) > 256 {
		t.Fatalf("expected bounded extracted text, got length=%d", len(result.Text))
	}
}

func TestReaderCapsTitleLength(t *testing.T) {
	body := "<html><head><title>" + strings.Repeat("t", 100) + "</title></head><body><p>content</p></body></html>"
	client := &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusOK,
				Header:     http.Header{"Content-Type": []string{"text/html"}},
				Body:       io.NopCloser(strings.NewReader(body)),
				Request:    req,
			}, nil
		}),
	}
	reader := NewHTTPReader(ReaderConfig{RequestTimeout: time.Second, MaxTitleRunes: 12}, client)

	result, err := reader.Read(context.Background(), "https://example.com/long-title")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(result.Title) != 12 {
		t.Fatalf("expected title capped at 12 runes, got %d: %q", len(result.Title), result.Title)
	}
}

func TestReaderTimeoutBehavior(t *testing.T) {
	client := &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			<-req.Context().Done()
			return nil, req.Context().Err()
		}),
	}
	reader := NewHTTPReader(ReaderConfig{RequestTimeout: 20 * time.Millisecond}, client)

	_, err := reader.Read(context.Background(), "https://example.com/slow")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestReaderExtractionSmokeByContentType(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
	}{
		{name: "html", contentType: "text/html", body: "<html><head><title>T</title></head><body><h1>Hello</h1><p>World</p></body></html>"},
		{name: "text", contentType: "text/plain", body: "plain text"},
		{name: "markdown", contentType: "text/markdown", body: "# Header\nBody"},
		{name: "json", contentType: "application/json", body: "{\"a\":1,\"b\":2}"},
		{name: "csv", contentType: "text/csv", body: "a,b\n1,2"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := &http.Client{
				Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
					return &http.Response{
						StatusCode: http.StatusOK,
						Header:     http.Header{"Content-Type": []string{tc.contentType}},
						Body:       io.NopCloser(strings.NewReader(tc.body)),
						Request:    req,
					}, nil
				}),
			}
			reader := NewHTTPReader(ReaderConfig{RequestTimeout: time.Second}, client)
			result, err := reader.Read(context.Background(), "https://example.com/content")
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if strings.TrimSpace(result.Text) == "" {
				t.Fatalf("expected non-empty extracted text")
			}
		})
	}
}
