package webhookauth

import (
	"fmt"
	"net/netip"
)

// allowlist holds the gateway's published egress addresses. Entries may be
// single addresses or CIDR prefixes.
type allowlist struct {
	addrs    map[netip.Addr]struct{}
	prefixes []netip.Prefix
}

func newAllowlist(entries []string) (*allowlist, error) {
	al := &allowlist{addrs: make(map[netip.Addr]struct{}, len(entries))}
	for _, entry := range entries {
		if prefix, err := netip.ParsePrefix(entry); err == nil {
			al.prefixes = append(al.prefixes, prefix)
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid allowlist entry %q: %w", entry, err)
		}
		al.addrs[addr.Unmap()] = struct{}{}
	}
	return al, nil
}

func (al *allowlist) contains(addr netip.Addr) bool {
	addr = addr.Unmap()
	if _, ok := al.addrs[addr]; ok {
		return true
	}
	for _, prefix := range al.prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// isDevelopmentAddr reports whether the address is a loopback or private
// tunnel address that the development-mode bypass accepts.
func isDevelopmentAddr(addr netip.Addr) bool {
	return addr.IsLoopback() || addr.IsPrivate()
}
