// Package dns resolves the relay host, falling back to public resolvers when
// the system resolver fails (captive portals, broken VPN split DNS).
package dns

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"
)

// publicDNS are queried in parallel when a local lookup fails: Cloudflare,
// Google and Quad9, IPv4 first.
var publicDNS = []string{
	"1.1.1.1", "8.8.8.8", "9.9.9.9",
	"1.0.0.1", "8.8.4.4", "149.112.112.112",
	"2606:4700:4700::1111", "2001:4860:4860::8888",
}

const (
	localTimeout = 1 * time.Second
	raceTimeout  = 2 * time.Second
)

type lookupFunc func(ctx context.Context, host, server string) ([]string, error)

// Resolver looks a host up locally first and races the public servers on
// failure. The zero value is ready to use.
type Resolver struct {
	// Servers overrides the public fallback list.
	Servers []string
	Logger  *slog.Logger

	// lookup is swapped out in tests. An empty server means the system resolver.
	lookup lookupFunc
}

var defaultResolver = &Resolver{}

// Lookup resolves host with the default Resolver.
func Lookup(ctx context.Context, host string) (string, error) {
	return defaultResolver.Lookup(ctx, host)
}

// DialContext resolves the host of addr before dialing it. It has the
// signature of net.Dialer.DialContext so it can be handed to websocket and
// HTTP dialers.
func DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	return defaultResolver.DialContext(ctx, network, addr)
}

func (r *Resolver) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	ip, err := r.Lookup(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("dns lookup failed: %w", err)
	}
	var d net.Dialer
	return d.DialContext(ctx, network, net.JoinHostPort(ip, port))
}

// Lookup returns one address for host, preferring IPv4.
func (r *Resolver) Lookup(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}

	lookup := r.lookup
	if lookup == nil {
		lookup = lookupHost
	}

	localCtx, cancel := context.WithTimeout(ctx, localTimeout)
	ips, err := lookup(localCtx, host, "")
	cancel()
	if err == nil && len(ips) > 0 {
		return preferIPv4(ips), nil
	}

	r.logger().Debug("system dns lookup failed, racing public resolvers", "host", host, "error", err)
	return r.race(ctx, host, lookup)
}

func (r *Resolver) race(ctx context.Context, host string, lookup lookupFunc) (string, error) {
	servers := r.Servers
	if len(servers) == 0 {
		servers = publicDNS
	}

	type result struct {
		ips []string
		err error
	}
	results := make(chan result, len(servers))
	ctx, cancel := context.WithTimeout(ctx, raceTimeout)
	defer cancel()

	for _, server := range servers {
		go func(server string) {
			ips, err := lookup(ctx, host, server)
			results <- result{ips: ips, err: err}
		}(server)
	}

	failures := 0
	for range servers {
		select {
		case res := <-results:
			if res.err == nil && len(res.ips) > 0 {
				return preferIPv4(res.ips), nil
			}
			failures++
		case <-ctx.Done():
			return "", fmt.Errorf("lookup %s: public dns race: %w", host, ctx.Err())
		}
	}
	return "", fmt.Errorf("failed to resolve %s: all %d public DNS servers failed", host, failures)
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// lookupHost queries server on port 53, or the system resolver when server is
// empty.
func lookupHost(ctx context.Context, host, server string) ([]string, error) {
	res := &net.Resolver{}
	if server != "" {
		res.PreferGo = true
		res.Dial = func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(server, "53"))
		}
	}
	ips, err := res.LookupHost(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, errors.New("no IP addresses found")
	}
	return ips, nil
}

func preferIPv4(ips []string) string {
	for _, ip := range ips {
		if parsed := net.ParseIP(ip); parsed != nil && parsed.To4() != nil {
			return ip
		}
	}
	return ips[0]
}
