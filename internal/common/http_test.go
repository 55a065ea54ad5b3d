package common

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientIPPrecedence(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:1234"
	if got := ClientIP(req); got != "192.0.2.10" {
		t.Fatalf("remote addr fallback: got %q", got)
	}

	req.Header.Set("X-Real-IP", "198.51.100.7")
	if got := ClientIP(req); got != "198.51.100.7" {
		t.Fatalf("x-real-ip: got %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 198.51.100.7")
	if got := ClientIP(req); got != "203.0.113.9" {
		t.Fatalf("x-forwarded-for first hop: got %q", got)
	}
}

func TestRequestOriginPrefersOriginHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "http://api.internal/create-customer", nil)
	req.Header.Set("Origin", "https://shop.example/")
	if got := RequestOrigin(req); got != "https://shop.example" {
		t.Fatalf("origin header: got %q", got)
	}
}

func TestRequestOriginFallsBackToReferer(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "http://api.internal/create-customer", nil)
	req.Header.Set("Referer", "https://shop.example/checkout?step=2")
	if got := RequestOrigin(req); got != "https://shop.example" {
		t.Fatalf("referer fallback: got %q", got)
	}
}

func TestRequestOriginFallsBackToHost(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/create-customer", nil)
	req.Host = "localhost:4242"
	if got := RequestOrigin(req); got != "http://localhost:4242" {
		t.Fatalf("host fallback: got %q", got)
	}

	req.TLS = &tls.ConnectionState{}
	if got := RequestOrigin(req); got != "https://localhost:4242" {
		t.Fatalf("tls scheme: got %q", got)
	}

	req.TLS = nil
	req.Header.Set("X-Forwarded-Proto", "https")
	if got := RequestOrigin(req); got != "https://localhost:4242" {
		t.Fatalf("forwarded proto: got %q", got)
	}
}
