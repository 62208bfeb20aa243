// Package privacy keeps personal data out of logs.
package privacy

import "net/netip"

// AnonymizeIP truncates an address to its network prefix: /24 for IPv4,
// /48 for IPv6. Unparseable input is returned as "invalid".
func AnonymizeIP(ip string) string {
	if ip == "" {
		return ""
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "invalid"
	}
	addr = addr.Unmap()
	bits := 48
	if addr.Is4() {
		bits = 24
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return "invalid"
	}
	return prefix.String()
}
