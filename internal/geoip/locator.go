// Package geoip finds the timezone of a network address through ipinfo.io.
package geoip

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ipinfo/go/v2/ipinfo"
	"github.com/ipinfo/go/v2/ipinfo/cache"

	"github.com/JonMunkholm/transactions/internal/config"
	"github.com/JonMunkholm/transactions/internal/logging"
	"github.com/JonMunkholm/transactions/internal/metrics"
)

// ErrNoTimezone is returned when the lookup succeeds without a timezone.
var ErrNoTimezone = errors.New("address lookup returned no timezone")

// Lookup fetches details for ip; a nil ip means the caller's own public
// address.
type Lookup func(ip net.IP) (*ipinfo.Core, error)

// Locator implements core.AddressLocator.
type Locator struct {
	lookup Lookup
}

// New builds a Locator backed by an ipinfo client with an in-memory cache.
func New(cfg config.GeoIPConfig) *Locator {
	var c *ipinfo.Cache
	if cfg.CacheTTL > 0 {
		c = ipinfo.NewCache(cache.NewInMemory().WithExpiration(cfg.CacheTTL))
	}
	client := ipinfo.NewClient(&http.Client{Timeout: cfg.Timeout}, c, cfg.Token)
	return NewWithLookup(client.GetIPInfo)
}

// NewWithLookup builds a Locator around an arbitrary lookup function.
func NewWithLookup(lookup Lookup) *Locator {
	return &Locator{lookup: lookup}
}

// LookupTimezone returns the IANA timezone of ip. Loopback, private and
// unspecified addresses resolve to the server's own public address.
func (l *Locator) LookupTimezone(ctx context.Context, ip string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var addr net.IP
	if ip != "" {
		addr = net.ParseIP(ip)
		if addr == nil {
			metrics.GeoIPLookups.WithLabelValues("invalid").Inc()
			return "", fmt.Errorf("address lookup: invalid address %q", ip)
		}
		if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() {
			addr = nil
		}
	}

	type result struct {
		info *ipinfo.Core
		err  error
	}
	done := make(chan result, 1)
	start := time.Now()
	go func() {
		info, err := l.lookup(addr)
		done <- result{info, err}
	}()

	var r result
	select {
	case <-ctx.Done():
		metrics.GeoIPLookups.WithLabelValues("canceled").Inc()
		return "", ctx.Err()
	case r = <-done:
	}

	logger := logging.WithFields(ctx, "ip", ip, "self", addr == nil)
	if r.err != nil {
		metrics.GeoIPLookups.WithLabelValues("error").Inc()
		logger.Warn("address lookup failed", "error", r.err)
		return "", fmt.Errorf("address lookup: %w", r.err)
	}
	if r.info == nil || r.info.Timezone == "" {
		metrics.GeoIPLookups.WithLabelValues("empty").Inc()
		return "", ErrNoTimezone
	}

	metrics.GeoIPLookups.WithLabelValues("ok").Inc()
	logger.Debug("address located", "timezone", r.info.Timezone, "duration_ms", time.Since(start).Milliseconds())
	return r.info.Timezone, nil
}
