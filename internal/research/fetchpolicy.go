package research

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
)

var (
	errInvalidURLScheme = errors.New("unsupported url scheme")
	errBlockedURLHost   = errors.New("blocked url host")
	errBlockedURLPort   = errors.New("blocked url port")
)

var uniqueLocalV6 = netip.MustParsePrefix("fc00::/7")

// fetchPolicy decides which URLs the reader may touch. Built from
// ReaderConfig; the defaults block private networks, local hostnames,
// and every port except 80 and 443.
type fetchPolicy struct {
	allowPrivateHosts bool
	blockedHosts      map[string]struct{}
	allowedPorts      map[int]struct{}
}

func newFetchPolicy(cfg ReaderConfig) fetchPolicy {
	policy := fetchPolicy{
		allowPrivateHosts: cfg.AllowPrivateHosts,
		blockedHosts:      make(map[string]struct{}, len(cfg.BlockedHosts)),
		allowedPorts:      make(map[int]struct{}, 2),
	}
	for _, host := range cfg.BlockedHosts {
		host = strings.ToLower(strings.TrimSpace(host))
		if host != "" {
			policy.blockedHosts[host] = struct{}{}
		}
	}
	ports := cfg.AllowedPorts
	if len(ports) == 0 {
		ports = []int{80, 443}
	}
	for _, port := range ports {
		if port > 0 && port < 65536 {
			policy.allowedPorts[port] = struct{}{}
		}
	}
	return policy
}

func (p fetchPolicy) validateURL(rawURL string) (*url.URL, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, err
	}
	if parsed == nil || parsed.Host == "" {
		return nil, errors.New("url host is required")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, errInvalidURLScheme
	}
	hostname := strings.ToLower(strings.TrimSpace(parsed.Hostname()))
	if hostname == "" {
		return nil, errors.New("url hostname is required")
	}
	if p.hostBlocked(hostname) {
		return nil, errBlockedURLHost
	}
	if !p.portAllowed(parsed.Port()) {
		return nil, errBlockedURLPort
	}
	return parsed, nil
}

func (p fetchPolicy) portAllowed(rawPort string) bool {
	trimmed := strings.TrimSpace(rawPort)
	if trimmed == "" {
		return true
	}
	port, err := strconv.Atoi(trimmed)
	if err != nil {
		return false
	}
	_, ok := p.allowedPorts[port]
	return ok
}

func (p fetchPolicy) hostBlocked(hostname string) bool {
	if _, ok := p.blockedHosts[hostname]; ok {
		return true
	}
	for blocked := range p.blockedHosts {
		if strings.HasSuffix(hostname, "."+blocked) {
			return true
		}
	}
	if p.allowPrivateHosts {
		return false
	}
	if hostname == "localhost" || strings.HasSuffix(hostname, ".localhost") {
		return true
	}
	if strings.HasSuffix(hostname, ".local") || strings.HasSuffix(hostname, ".internal") {
		return true
	}
	if ip, err := netip.ParseAddr(hostname); err == nil {
		return privateAddr(ip)
	}
	return false
}

// checkResolvedHost re-validates a host at dial time, after DNS
// resolution, so a public name cannot rebind to a private address.
func (p fetchPolicy) checkResolvedHost(ctx context.Context, host string) error {
	if p.hostBlocked(host) {
		return errBlockedURLHost
	}
	if p.allowPrivateHosts {
		return nil
	}

	ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
	if err != nil {
		return err
	}
	if len(ips) == 0 {
		return fmt.Errorf("no ip addresses for host %q", host)
	}
	for _, ip := range ips {
		addr, ok := netip.AddrFromSlice(ip)
		if !ok {
			continue
		}
		if privateAddr(addr) {
			return errBlockedURLHost
		}
	}
	return nil
}

func (p fetchPolicy) dialContext(base *net.Dialer) func(context.Context, string, string) (net.Conn, error) {
	if base == nil {
		base = &net.Dialer{}
	}
	return func(ctx context.Context, network, address string) (net.Conn, error) {
		host, _, err := net.SplitHostPort(address)
		if err != nil {
			host = address
		}
		host = strings.ToLower(strings.TrimSpace(host))
		if host == "" {
			return nil, errors.New("empty host")
		}
		if err := p.checkResolvedHost(ctx, host); err != nil {
			return nil, err
		}
		return base.DialContext(ctx, network, address)
	}
}

func privateAddr(ip netip.Addr) bool {
	if !ip.IsValid() {
		return true
	}
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsMulticast() || ip.IsPrivate() || ip.IsUnspecified() {
		return true
	}
	if ip.Is6() {
		if ip.IsInterfaceLocalMulticast() {
			return true
		}
		return uniqueLocalV6.Contains(ip)
	}
	return false
}
