// Package netsafe guards the places where feedsweep talks to endpoints it
// was configured with: webhook targets must be http(s) and, unless allowed,
// public; webhook secrets must be long enough to sign with; documents read
// from disk or the network are size-bounded.
package netsafe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"net/url"
	"strings"
)

// MinSecretLen is the minimum length of an HMAC signing secret.
const MinSecretLen = 32

var (
	ErrSecretTooShort = fmt.Errorf("netsafe: secret must be at least %d bytes", MinSecretLen)
	ErrUnsafeScheme   = errors.New("netsafe: only http and https schemes are allowed")
	ErrPrivateTarget  = errors.New("netsafe: URL targets a private or loopback address")
	ErrTooLarge       = errors.New("netsafe: input exceeds limit")
)

// ValidateSecret checks that secret is at least MinSecretLen bytes.
func ValidateSecret(secret []byte) error {
	if len(secret) < MinSecretLen {
		return ErrSecretTooShort
	}
	return nil
}

// ParseHTTPURL parses raw and requires an http(s) scheme and a host.
func ParseHTTPURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("netsafe: invalid URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, ErrUnsafeScheme
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("netsafe: URL %q has no host", raw)
	}
	return u, nil
}

// ValidateTarget is ParseHTTPURL plus a check that the host does not
// resolve to a private address. Hostnames that fail to resolve pass: the
// request fails later with a network error anyway.
func ValidateTarget(ctx context.Context, raw string) error {
	u, err := ParseHTTPURL(raw)
	if err != nil {
		return err
	}
	host := u.Hostname()
	if addr, err := netip.ParseAddr(host); err == nil {
		if IsPrivate(addr) {
			return ErrPrivateTarget
		}
		return nil
	}
	addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		if IsPrivate(a) {
			return ErrPrivateTarget
		}
	}
	return nil
}

// IsPrivate reports loopback, RFC 1918/4193, link-local and unspecified
// addresses.
func IsPrivate(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsLoopback() || addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() ||
		addr.IsUnspecified()
}

// LimitedReadAll reads r fully, failing with ErrTooLarge past maxBytes.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, maxBytes)
	}
	return data, nil
}
