// Package providers imports all DNS provider packages to trigger their init() registration.
package providers

import (
	_ "github.com/bestdns/bestdns/internal/dns/cloudflare"
)
