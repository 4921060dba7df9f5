package security

import (
	"net/netip"
	"strings"
	"testing"
)

func TestURLValidate(t *testing.T) {
	v := NewURL()

	tests := []struct {
		name    string
		url     string
		wantErr bool
		errMsg  string // substring to check in error message
	}{
		// Public URLs pass
		{
			name:    "https URL",
			url:     "https://example.com/page",
			wantErr: false,
		},
		{
			name:    "http URL",
			url:     "http://example.com/page",
			wantErr: false,
		},
		{
			name:    "URL with port",
			url:     "https://example.com:8080/api",
			wantErr: false,
		},

		// Schemes outside http/https
		{
			name:    "ftp scheme",
			url:     "ftp://example.com/file",
			wantErr: true,
			errMsg:  "unsupported scheme",
		},
		{
			name:    "file scheme",
			url:     "file:///etc/passwd",
			wantErr: true,
			errMsg:  "unsupported scheme",
		},
		{
			name:    "javascript scheme",
			url:     "javascript:alert(1)",
			wantErr: true,
			errMsg:  "unsupported scheme",
		},

		// Blocked hostnames
		{
			name:    "localhost",
			url:     "http://localhost/admin",
			wantErr: true,
			errMsg:  "blocked host",
		},
		{
			name:    "localhost with port",
			url:     "http://localhost:8080/admin",
			wantErr: true,
			errMsg:  "blocked host",
		},
		{
			name:    "gcp metadata hostname",
			url:     "http://metadata.google.internal/computeMetadata/v1/",
			wantErr: true,
			errMsg:  "blocked host",
		},

		// Loopback
		{
			name:    "127.0.0.1",
			url:     "http://127.0.0.1/admin",
			wantErr: true,
			errMsg:  "loopback",
		},
		{
			name:    "127.0.0.1 with port",
			url:     "http://127.0.0.1:3000/api",
			wantErr: true,
			errMsg:  "loopback",
		},
		{
			name:    "wider loopback range",
			url:     "http://127.1.2.3/",
			wantErr: true,
			errMsg:  "loopback",
		},

		// RFC 1918
		{
			name:    "10.0.0.1",
			url:     "http://10.0.0.1/internal",
			wantErr: true,
			errMsg:  "private IP",
		},
		{
			name:    "172.16.0.1",
			url:     "http://172.16.0.1/internal",
			wantErr: true,
			errMsg:  "private IP",
		},
		{
			name:    "192.168.1.1",
			url:     "http://192.168.1.1/router",
			wantErr: true,
			errMsg:  "private IP",
		},

		// Cloud metadata IP gets its own error, other link-local the generic one
		{
			name:    "metadata endpoint",
			url:     "http://169.254.169.254/latest/meta-data/",
			wantErr: true,
			errMsg:  "metadata",
		},
		{
			name:    "link-local IP",
			url:     "http://169.254.1.1/",
			wantErr: true,
			errMsg:  "link-local",
		},

		// IPv6
		{
			name:    "IPv6 loopback",
			url:     "http://[::1]/admin",
			wantErr: true,
			errMsg:  "loopback",
		},
		{
			name:    "IPv4-mapped loopback",
			url:     "http://[::ffff:127.0.0.1]/admin",
			wantErr: true,
			errMsg:  "loopback",
		},

		// Degenerate inputs
		{
			name:    "empty URL",
			url:     "",
			wantErr: true,
			errMsg:  "unsupported scheme", // empty URL has empty scheme
		},
		{
			name:    "malformed URL",
			url:     "://invalid",
			wantErr: true,
			errMsg:  "invalid URL",
		},
		{
			name:    "0.0.0.0",
			url:     "http://0.0.0.0/",
			wantErr: true,
			errMsg:  "unspecified",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.url)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Validate(%q) expected error, got nil", tt.url)
					return
				}
				if tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("Validate(%q) error = %q, want error containing %q", tt.url, err.Error(), tt.errMsg)
				}
			} else if err != nil {
				t.Errorf("Validate(%q) unexpected error: %v", tt.url, err)
			}
		})
	}
}

func TestURLCheckAddr(t *testing.T) {
	v := NewURL()

	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		// Public addresses pass
		{"public resolver", "8.8.8.8", false},
		{"public resolver 2", "1.1.1.1", false},
		{"public web host", "93.184.216.34", false},

		// Everything non-public fails
		{"private 10.x", "10.0.0.1", true},
		{"private 172.16.x", "172.16.0.1", true},
		{"private 192.168.x", "192.168.1.1", true},
		{"loopback", "127.0.0.1", true},
		{"loopback range end", "127.255.255.255", true},
		{"link-local", "169.254.1.1", true},
		{"cloud metadata", "169.254.169.254", true},
		{"mapped loopback", "::ffff:127.0.0.1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, err := netip.ParseAddr(tt.addr)
			if err != nil {
				t.Fatalf("parsing address %s: %v", tt.addr, err)
			}
			err = v.checkAddr(addr)
			if tt.wantErr && err == nil {
				t.Errorf("checkAddr(%s) expected error, got nil", tt.addr)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("checkAddr(%s) unexpected error: %v", tt.addr, err)
			}
		})
	}
}

func TestURLSafeTransport(t *testing.T) {
	v := NewURL()
	transport := v.SafeTransport()

	if transport == nil {
		t.Fatal("SafeTransport() returned nil")
	}
	if transport.DialContext == nil {
		t.Error("SafeTransport() DialContext is nil")
	}

	// The dialer must refuse blocked addresses even when handed them
	// directly, which is what a DNS rebind amounts to.
	tests := []struct {
		name    string
		addr    string
		wantSub string // expected substring in error message
	}{
		{name: "loopback", addr: "127.0.0.1:80", wantSub: "loopback"},
		{name: "private 10.x", addr: "10.0.0.1:80", wantSub: "private"},
		{name: "private 192.168.x", addr: "192.168.1.1:80", wantSub: "private"},
		{name: "metadata endpoint", addr: "169.254.169.254:80", wantSub: "metadata"},
		{name: "IPv6 loopback", addr: "[::1]:80", wantSub: "loopback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := transport.DialContext(t.Context(), "tcp", tt.addr)
			if err == nil {
				t.Errorf("SafeTransport().DialContext(%q) = nil, want error", tt.addr)
				return
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("SafeTransport().DialContext(%q) error = %q, want error containing %q", tt.addr, err.Error(), tt.wantSub)
			}
		})
	}
}
