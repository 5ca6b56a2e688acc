package netsafe

import (
	"bytes"
	"context"
	"errors"
	"net/netip"
	"strings"
	"testing"
)

func TestValidateSecret(t *testing.T) {
	if err := ValidateSecret([]byte("short")); !errors.Is(err, ErrSecretTooShort) {
		t.Fatalf("short secret: got %v", err)
	}
	if err := ValidateSecret(bytes.Repeat([]byte("a"), MinSecretLen)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParseHTTPURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://www.linkedin.com/feed/", false},
		{"http://localhost:8080/hook", false},
		{"ftp://example.com/data", true},
		{"javascript:alert(1)", true},
		{"https:///nohost", true},
		{"://bad", true},
	}
	for _, tt := range tests {
		_, err := ParseHTTPURL(tt.url)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseHTTPURL(%q) error=%v, wantErr=%v", tt.url, err, tt.wantErr)
		}
	}
}

func TestValidateTargetLiteralAddresses(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		url  string
		want error
	}{
		{"https://93.184.215.14/hook", nil},
		{"http://127.0.0.1/admin", ErrPrivateTarget},
		{"http://10.0.0.1/internal", ErrPrivateTarget},
		{"http://192.168.1.1/api", ErrPrivateTarget},
		{"http://172.16.0.1/secret", ErrPrivateTarget},
		{"http://[::1]/api", ErrPrivateTarget},
		{"http://0.0.0.0/", ErrPrivateTarget},
		{"gopher://8.8.8.8/", ErrUnsafeScheme},
	}
	for _, tt := range tests {
		if err := ValidateTarget(ctx, tt.url); !errors.Is(err, tt.want) {
			t.Errorf("ValidateTarget(%q) = %v, want %v", tt.url, err, tt.want)
		}
	}
}

func TestIsPrivate(t *testing.T) {
	tests := []struct {
		ip      string
		private bool
	}{
		{"127.0.0.1", true},
		{"10.0.0.1", true},
		{"172.16.0.1", true},
		{"192.168.0.1", true},
		{"169.254.1.1", true},
		{"fd00::1", true},
		{"::ffff:10.0.0.1", true},
		{"8.8.8.8", false},
		{"1.1.1.1", false},
		{"::1", true},
	}
	for _, tt := range tests {
		if got := IsPrivate(netip.MustParseAddr(tt.ip)); got != tt.private {
			t.Errorf("IsPrivate(%s) = %v, want %v", tt.ip, got, tt.private)
		}
	}
}

func TestLimitedReadAll(t *testing.T) {
	data := strings.Repeat("x", 100)
	got, err := LimitedReadAll(strings.NewReader(data), 200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 100 {
		t.Fatalf("expected 100 bytes, got %d", len(got))
	}
	if _, err := LimitedReadAll(strings.NewReader(data), 100); err != nil {
		t.Fatalf("exact limit: %v", err)
	}
	if _, err := LimitedReadAll(strings.NewReader(data), 50); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("oversized read: got %v", err)
	}
}
