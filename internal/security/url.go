package security

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"
)

// metadataAddr is the cloud metadata endpoint shared by AWS, GCP, and
// Azure. Link-local checks already cover it; the explicit match keeps
// the error message specific.
var metadataAddr = netip.MustParseAddr("169.254.169.254")

// URL gates the targets the fetchPage tool is allowed to reach. Tool
// inputs come from the model, which in turn takes them from user text,
// so every fetched URL is attacker-controlled and must be kept away
// from loopback, private ranges, link-local, and metadata services.
//
// Validate covers the URL as written. SafeTransport re-checks at dial
// time against the actual resolved addresses, which also closes the
// DNS-rebinding window and covers every redirect hop, since redirects
// dial through the same transport.
type URL struct {
	allowedSchemes map[string]struct{}
	blockedHosts   map[string]struct{}
}

// NewURL creates a URL validator allowing http/https to public hosts.
func NewURL() *URL {
	return &URL{
		allowedSchemes: map[string]struct{}{
			"http":  {},
			"https": {},
		},
		blockedHosts: map[string]struct{}{
			"localhost":                {},
			"metadata.google.internal": {},
			"metadata.gce.internal":    {},
			"metadata.internal":        {},
		},
	}
}

// Validate checks whether a URL names an allowed scheme and host.
// Hostnames (as opposed to IP literals) pass here and get their
// resolved addresses checked by SafeTransport.
func (v *URL) Validate(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if _, ok := v.allowedSchemes[strings.ToLower(u.Scheme)]; !ok {
		return fmt.Errorf("unsupported scheme: %s (allowed: http, https)", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("empty hostname")
	}

	if _, blocked := v.blockedHosts[strings.ToLower(host)]; blocked {
		return fmt.Errorf("blocked host: %s", host)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		return v.checkAddr(addr)
	}
	return nil
}

// checkAddr rejects addresses outside the public internet.
func (v *URL) checkAddr(addr netip.Addr) error {
	// ::ffff:127.0.0.1 and friends check as their IPv4 form
	addr = addr.Unmap()

	switch {
	case addr == metadataAddr:
		return fmt.Errorf("cloud metadata endpoint blocked: %s", addr)
	case addr.IsLoopback():
		return fmt.Errorf("loopback address not allowed: %s", addr)
	case addr.IsPrivate():
		return fmt.Errorf("private IP not allowed: %s", addr)
	case addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast():
		return fmt.Errorf("link-local address not allowed: %s", addr)
	case addr.IsUnspecified():
		return fmt.Errorf("unspecified address not allowed: %s", addr)
	}
	return nil
}

// SafeTransport returns an http.Transport whose dialer validates the
// resolved addresses of every connection, including redirect targets.
// Pass it to the client fetching model-chosen URLs:
//
//	client := &http.Client{Transport: validator.SafeTransport()}
func (v *URL) SafeTransport() *http.Transport {
	return &http.Transport{
		DialContext:         v.safeDialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

// safeDialContext resolves addr, rejects any blocked address, and
// connects to the first resolved one so the checked address is the
// dialed address.
func (v *URL) safeDialContext(ctx context.Context, network, addrPort string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addrPort)
	if err != nil {
		host = addrPort
		port = ""
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if err := v.checkAddr(addr); err != nil {
			return nil, fmt.Errorf("SSRF blocked: %w", err)
		}
		return (&net.Dialer{}).DialContext(ctx, network, addrPort)
	}

	addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil, fmt.Errorf("DNS lookup failed: %w", err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("no IP addresses resolved for %s", host)
	}
	for _, addr := range addrs {
		if err := v.checkAddr(addr); err != nil {
			return nil, fmt.Errorf("SSRF blocked (resolved %s -> %s): %w", host, addr, err)
		}
	}

	target := addrs[0].String()
	if port != "" {
		target = net.JoinHostPort(target, port)
	}
	return (&net.Dialer{}).DialContext(ctx, network, target)
}
