// Package geoip tags client addresses with a country code for access logs.
package geoip

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/oschwald/geoip2-golang"
)

var (
	// ErrUnavailable is returned by a Resolver with no open database.
	ErrUnavailable = errors.New("geoip: resolver unavailable")
	// ErrInvalidIP is returned when the address cannot be parsed.
	ErrInvalidIP = errors.New("geoip: invalid ip")
)

// Resolver looks up client countries in a MaxMind GeoIP2/GeoLite2 database.
type Resolver struct {
	reader *geoip2.Reader
}

// Open loads the database at path. An empty path disables lookups and
// returns a nil *Resolver with no error.
func Open(path string) (*Resolver, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geoip: open %s: %w", path, err)
	}
	return &Resolver{reader: reader}, nil
}

// Lookup returns the ISO country code for addr, which may carry a port.
// Loopback and private addresses resolve to "" without touching the database.
func (r *Resolver) Lookup(addr string) (string, error) {
	ip := parseAddr(addr)
	if ip == nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidIP, addr)
	}
	if r == nil || r.reader == nil {
		return "", ErrUnavailable
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() {
		return "", nil
	}
	record, err := r.reader.Country(ip)
	if err != nil {
		return "", fmt.Errorf("geoip: lookup %s: %w", ip, err)
	}
	return strings.ToUpper(record.Country.IsoCode), nil
}

// Close releases the database. Safe on a nil *Resolver.
func (r *Resolver) Close() error {
	if r == nil || r.reader == nil {
		return nil
	}
	return r.reader.Close()
}

func parseAddr(addr string) net.IP {
	addr = strings.TrimSpace(addr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return net.ParseIP(strings.Trim(addr, "[]"))
}
