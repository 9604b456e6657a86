package fetch_test

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"betamode/internal/fetch"
	"betamode/internal/logging"
	"betamode/internal/services"
)

var gifBytes = []byte("GIF89a\x01\x00\x01\x00\x80\x00\x00\x00\x00\x00\xff\xff\xff!\xf9\x04\x01\x00\x00\x00\x00,\x00\x00\x00\x00\x01\x00\x01\x00\x00\x02\x02D\x01\x00;")

func TestFetchHTTPSendsUserAgent(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "image/gif")
		_, _ = w.Write(gifBytes)
	}))
	defer server.Close()

	f := fetch.New(fetch.Options{UserAgent: "Initial/1.0"}, logging.NewNop())
	f.SetUserAgent("Configured/2.0")

	payload, err := f.Fetch(context.Background(), server.URL+"/a.gif")
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if gotUA != "Configured/2.0" {
		t.Fatalf("unexpected user agent %q", gotUA)
	}
	if string(payload.Bytes) != string(gifBytes) || payload.MIME != "image/gif" {
		t.Fatalf("unexpected payload: mime=%q len=%d", payload.MIME, len(payload.Bytes))
	}
}

func TestSetUserAgentIgnoresEmpty(t *testing.T) {
	f := fetch.New(fetch.Options{UserAgent: "Keep/1.0"}, nil)
	f.SetUserAgent("   ")
	if f.UserAgent() != "Keep/1.0" {
		t.Fatalf("unexpected user agent %q", f.UserAgent())
	}
}

func TestFetchSniffsMIMEWhenHeaderIsGeneric(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(gifBytes)
	}))
	defer server.Close()

	payload, err := fetch.New(fetch.Options{}, nil).Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if payload.MIME != "image/gif" {
		t.Fatalf("expected sniffed image/gif, got %q", payload.MIME)
	}
}

func TestFetchHTTPErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	_, err := fetch.New(fetch.Options{}, nil).Fetch(context.Background(), server.URL+"/missing.png")
	if !errors.Is(err, services.ErrFetch) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected status in error, got %q", err.Error())
	}
}

func TestFetchEnforcesMaxBytes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 2048))
	}))
	defer server.Close()

	_, err := fetch.New(fetch.Options{MaxBytes: 1024}, nil).Fetch(context.Background(), server.URL)
	if err == nil || !strings.Contains(err.Error(), "exceeds") {
		t.Fatalf("expected size error, got %v", err)
	}
}

func TestFetchEmptyBodyFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	if _, err := fetch.New(fetch.Options{}, nil).Fetch(context.Background(), server.URL); !errors.Is(err, services.ErrFetch) {
		t.Fatalf("expected fetch error for empty body, got %v", err)
	}
}

func TestFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	_, err := fetch.New(fetch.Options{Timeout: 50 * time.Millisecond}, nil).Fetch(context.Background(), server.URL)
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestFetchDataURI(t *testing.T) {
	source := "data:image/gif;base64," + base64.StdEncoding.EncodeToString(gifBytes)
	payload, err := fetch.New(fetch.Options{}, nil).Fetch(context.Background(), source)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if string(payload.Bytes) != string(gifBytes) || payload.MIME != "image/gif" {
		t.Fatalf("unexpected payload: mime=%q len=%d", payload.MIME, len(payload.Bytes))
	}
}

func TestFetchRejectsSchemes(t *testing.T) {
	f := fetch.New(fetch.Options{AllowedSchemes: []string{"https"}}, nil)
	for _, source := range []string{"file:///etc/passwd", "ftp://example.com/a.png", "http://example.com/a.png", "no-scheme"} {
		if _, err := f.Fetch(context.Background(), source); !errors.Is(err, services.ErrFetch) {
			t.Fatalf("expected %q to be rejected, got %v", source, err)
		}
	}
}

func TestFetchHonoursCancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(gifBytes)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := fetch.New(fetch.Options{}, nil).Fetch(ctx, server.URL); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
