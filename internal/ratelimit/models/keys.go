package models

import "strings"

// SanitizeKeySegment escapes delimiter characters in rate limit key segments
// so an identifier containing ':' cannot address a neighbouring bucket.
func SanitizeKeySegment(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}

// NewIPRateLimitKey is the bucket key for one client IP on one endpoint class.
func NewIPRateLimitKey(ip string, class EndpointClass) string {
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + SanitizeKeySegment(ip) + ":" + string(class)
}
