package server

import (
	"net/http"
	"strings"

	"github.com/cuemby/burrow/pkg/db"
)

// ResolveTenant picks the tenant id for a request. Priority: X-Subdomain,
// then the first label of X-Forwarded-Host, then the first label of Host
// when the host has at least three labels, else the default tenant. The
// result is normalised to a lowercase underscore-only namespace.
func ResolveTenant(r *http.Request, defaultTenant string) string {
	if sub := r.Header.Get("X-Subdomain"); sub != "" {
		return db.NormalizeNamespace(sub)
	}
	if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
		if label := firstLabel(fwd); label != "" {
			return db.NormalizeNamespace(label)
		}
	}
	host := r.Host
	if host == "" {
		host = r.Header.Get("Host")
	}
	if label, ok := subdomainLabel(host); ok {
		return db.NormalizeNamespace(label)
	}
	return db.NormalizeNamespace(defaultTenant)
}

func firstLabel(host string) string {
	host = stripPort(host)
	label, _, _ := strings.Cut(host, ".")
	return label
}

// subdomainLabel returns the first label of a host that actually carries a
// subdomain. Bare domains like example.com resolve to the default tenant.
func subdomainLabel(host string) (string, bool) {
	host = stripPort(host)
	labels := strings.Split(host, ".")
	if len(labels) < 3 {
		return "", false
	}
	return labels[0], true
}

func stripPort(host string) string {
	if i := strings.LastIndex(host, ":"); i >= 0 && !strings.Contains(host[i:], "]") {
		return host[:i]
	}
	return host
}
