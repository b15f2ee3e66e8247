package validator

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
)

var privateRanges = mustParseCIDRs(
	"10.0.0.0/8",     // Private network
	"172.16.0.0/12",  // Private network
	"192.168.0.0/16", // Private network
	"169.254.0.0/16", // Link-local, cloud metadata
	"100.64.0.0/10",  // Shared address space (CGNAT)
	"fc00::/7",       // Unique local address (IPv6)
	"fe80::/10",      // Link-local (IPv6)
	"::1/128",        // Loopback (IPv6)
)

// Resolver looks up the addresses of a host. *net.Resolver satisfies it.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// URLGuard blocks requests to loopback and private networks unless allowed.
type URLGuard struct {
	AllowLocalhost  bool
	AllowPrivateIPs bool
	Resolver        Resolver
}

// NewURLGuard returns a guard that resolves hosts with net.DefaultResolver.
func NewURLGuard(allowLocalhost, allowPrivateIPs bool) *URLGuard {
	return &URLGuard{
		AllowLocalhost:  allowLocalhost,
		AllowPrivateIPs: allowPrivateIPs,
		Resolver:        net.DefaultResolver,
	}
}

// Check performs SSRF protection checks before a request is sent.
func (g *URLGuard) Check(ctx context.Context, rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("unsupported URL scheme: %q", parsed.Scheme)
	}

	hostname := parsed.Hostname()
	if hostname == "" {
		return fmt.Errorf("URL must contain a hostname")
	}

	if isLocalhost(hostname) && !g.AllowLocalhost {
		return fmt.Errorf("requests to localhost are not allowed")
	}
	if g.AllowLocalhost && g.AllowPrivateIPs {
		return nil
	}

	addrs, err := g.Resolver.LookupIPAddr(ctx, hostname)
	if err != nil {
		return fmt.Errorf("failed to resolve hostname: %w", err)
	}

	for _, addr := range addrs {
		if addr.IP.IsLoopback() && !g.AllowLocalhost {
			return fmt.Errorf("requests to localhost are not allowed: %s", addr.IP)
		}
		if isPrivateIP(addr.IP) && !g.AllowPrivateIPs {
			return fmt.Errorf("requests to private IP ranges are not allowed: %s", addr.IP)
		}
	}

	return nil
}

func isLocalhost(hostname string) bool {
	hostname = strings.ToLower(hostname)
	return hostname == "localhost" ||
		strings.HasSuffix(hostname, ".localhost") ||
		hostname == "::1" ||
		strings.HasPrefix(hostname, "127.") ||
		hostname == "0.0.0.0" ||
		hostname == "::"
}

func isPrivateIP(ip net.IP) bool {
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	for _, network := range privateRanges {
		if network.Contains(ip) {
			return true
		}
	}
	// AWS IMDSv2 IPv6
	return ip.Equal(net.ParseIP("fd00:ec2::254"))
}

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(err)
		}
		nets = append(nets, network)
	}
	return nets
}
