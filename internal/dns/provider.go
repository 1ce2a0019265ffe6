package dns

import (
	"context"
	"errors"
)

// ErrNoZones is returned by Provider.Zone when the account has no zones.
var ErrNoZones = errors.New("no zones found")

// Zone is the DNS zone records are managed in.
type Zone struct {
	ID     string
	Domain string // base domain, e.g. "example.com"
}

// Record represents a DNS record to be managed.
type Record struct {
	ID       string // provider-assigned, empty for records not yet created
	Hostname string // FQDN, e.g. "app.example.com"
	Type     string // "A"
	Value    string // IP address
	TTL      int    // 1 = provider automatic
	Proxied  bool
}

// Provider is the interface that DNS providers must implement.
type Provider interface {
	// Zone returns the first zone visible to the configured credentials.
	Zone(ctx context.Context) (Zone, error)
	// List returns the records in zone with exactly this hostname and type.
	List(ctx context.Context, zone Zone, hostname, recordType string) ([]Record, error)
	Create(ctx context.Context, zone Zone, record Record) error
	// Delete removes a single record by its ID.
	Delete(ctx context.Context, zone Zone, record Record) error
}
