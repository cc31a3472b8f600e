package utils

import (
	"net/url"
	"strings"
)

// IsAllowedDocURL reports whether raw points at one of the approved document
// domains or a subdomain of one. It fails closed: anything that does not parse
// is rejected. This is the SSRF gate for every proxied PDF fetch and print job.
func IsAllowedDocURL(raw string, domains []string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	hostname := strings.ToLower(parsed.Hostname())
	if hostname == "" {
		return false
	}
	for _, domain := range domains {
		if hostname == domain || strings.HasSuffix(hostname, "."+domain) {
			return true
		}
	}
	return false
}
