package mapdata

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// DefaultResolvConf is read by NewResolver when no path is given.
const DefaultResolvConf = "/etc/resolv.conf"

// Resolver turns hostname preload entries into IPv4 addresses.
type Resolver struct {
	servers []string
	client  *dns.Client
}

// NewResolver reads nameservers from a resolv.conf style file.
func NewResolver(confPath string) (*Resolver, error) {
	if confPath == "" {
		confPath = DefaultResolvConf
	}
	conf, err := dns.ClientConfigFromFile(confPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read resolver config: %w", err)
	}
	servers := make([]string, 0, len(conf.Servers))
	for _, s := range conf.Servers {
		servers = append(servers, net.JoinHostPort(s, conf.Port))
	}
	return NewResolverWithServers(servers...), nil
}

// NewResolverWithServers queries the given host:port servers in order.
func NewResolverWithServers(servers ...string) *Resolver {
	c := new(dns.Client)
	c.Timeout = 2 * time.Second
	return &Resolver{servers: servers, client: c}
}

// LookupIPv4 returns the A records for host.
func (r *Resolver) LookupIPv4(ctx context.Context, host string) ([]string, error) {
	if len(r.servers) == 0 {
		return nil, fmt.Errorf("no nameservers configured")
	}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), dns.TypeA)
	m.RecursionDesired = true

	var lastErr error
	for _, server := range r.servers {
		resp, _, err := r.client.ExchangeContext(ctx, m, server)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.Rcode != dns.RcodeSuccess {
			lastErr = fmt.Errorf("%s: %s", server, dns.RcodeToString[resp.Rcode])
			continue
		}
		var out []string
		for _, ans := range resp.Answer {
			if a, ok := ans.(*dns.A); ok {
				out = append(out, a.A.String())
			}
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("%s has no A records", host)
		}
		return out, nil
	}
	return nil, fmt.Errorf("failed to resolve %s: %w", host, lastErr)
}

// ErrDuplicate is returned by Expand when two entries yield the same address.
var ErrDuplicate = errors.New("duplicate preload address")

// Expand replaces hostname entries with their addresses, keeping entry
// order. Address entries pass through unchanged. An address reached twice,
// directly or through a hostname, is an error naming both entries.
func (r *Resolver) Expand(ctx context.Context, entries []string) ([]string, error) {
	from := make(map[string]string, len(entries))
	var out []string
	add := func(ip, entry string) error {
		if prev, ok := from[ip]; ok {
			if prev == entry {
				return fmt.Errorf("%w: %s", ErrDuplicate, ip)
			}
			return fmt.Errorf("%w: %s (from %s and %s)", ErrDuplicate, ip, prev, entry)
		}
		from[ip] = entry
		out = append(out, ip)
		return nil
	}

	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if net.ParseIP(entry) != nil {
			if err := add(entry, entry); err != nil {
				return nil, err
			}
			continue
		}
		ips, err := r.LookupIPv4(ctx, entry)
		if err != nil {
			return nil, err
		}
		for _, ip := range ips {
			if err := add(ip, entry); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}
