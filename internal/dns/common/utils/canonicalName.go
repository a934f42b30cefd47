package utils

import "strings"

// CanonicalDNSName returns a DNS name in canonical form:
// - Lowercased
// - Trimmed of surrounding whitespace
// - No trailing dot, matching the dot-joined form produced by the wire decoder.
func CanonicalDNSName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ToLower(name)
	for strings.HasSuffix(name, ".") {
		name = strings.TrimSuffix(name, ".")
	}
	return name
}

// IsSubdomain reports whether child equals parent or lies beneath it.
// The root zone (empty name) is the parent of every name.
// Both names are compared in canonical form.
func IsSubdomain(child, parent string) bool {
	child = CanonicalDNSName(child)
	parent = CanonicalDNSName(parent)
	if parent == "" {
		return true
	}
	if child == parent {
		return true
	}
	return strings.HasSuffix(child, "."+parent)
}
