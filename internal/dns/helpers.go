package dns

import (
	"fmt"
	"strings"

	mdns "github.com/miekg/dns"
)

// Apex is the label that addresses the zone's base domain itself.
const Apex = "@"

// RecordName joins a subdomain label and a base domain into the record name
// the provider stores, lowercase and without a trailing dot.
// e.g. ("bestcf", "example.com") → "bestcf.example.com"
// e.g. ("@", "example.com") → "example.com"
func RecordName(label, domain string) (string, error) {
	domain = strings.TrimSuffix(domain, ".")
	if domain == "" {
		return "", fmt.Errorf("dns: empty base domain")
	}
	name := domain
	if label != Apex {
		if err := ValidateLabel(label); err != nil {
			return "", err
		}
		name = label + "." + domain
	}
	if _, ok := mdns.IsDomainName(name); !ok {
		return "", fmt.Errorf("dns: invalid record name %q", name)
	}
	return strings.TrimSuffix(mdns.CanonicalName(name), "."), nil
}

// ValidateLabel reports whether label can be used as a subdomain: either the
// apex marker "@" or one or more dot-separated DNS labels.
func ValidateLabel(label string) error {
	if label == Apex {
		return nil
	}
	if label == "" || strings.HasPrefix(label, ".") || strings.HasSuffix(label, ".") {
		return fmt.Errorf("dns: invalid subdomain label %q", label)
	}
	if _, ok := mdns.IsDomainName(label); !ok {
		return fmt.Errorf("dns: invalid subdomain label %q", label)
	}
	return nil
}
