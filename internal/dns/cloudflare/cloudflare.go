package cloudflare

import (
	"context"
	"fmt"
	"strconv"

	cf "github.com/cloudflare/cloudflare-go"
	"github.com/go-logr/logr"

	"github.com/bestdns/bestdns/internal/dns"
)

func init() {
	dns.Register("cloudflare", func(log logr.Logger, settings map[string]string) (dns.Provider, error) {
		return New(log, settings)
	})
}

// listPageSize is the page size used when listing records by name. Pages are
// never followed; Purge lists again after deleting.
const listPageSize = 100

// Provider implements dns.Provider for the Cloudflare v4 API.
type Provider struct {
	api *cf.API
	log logr.Logger
}

// New creates a Cloudflare DNS provider from the given settings map.
// Required settings: api_token.
// Optional settings: base_url (default the public v4 API),
// requests_per_second (default the client library's limit).
func New(log logr.Logger, settings map[string]string) (*Provider, error) {
	token := settings["api_token"]
	if token == "" {
		return nil, fmt.Errorf("cloudflare: missing required setting 'api_token'")
	}

	// No retries: a failed call surfaces immediately.
	opts := []cf.Option{cf.UsingRetryPolicy(0, 0, 0)}
	if v := settings["base_url"]; v != "" {
		opts = append(opts, cf.BaseURL(v))
	}
	if v := settings["requests_per_second"]; v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil || rps <= 0 {
			return nil, fmt.Errorf("cloudflare: invalid requests_per_second %q", v)
		}
		opts = append(opts, cf.UsingRateLimit(rps))
	}

	api, err := cf.NewWithAPIToken(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("cloudflare: create client: %w", err)
	}
	return &Provider{api: api, log: log}, nil
}

// Zone returns the first zone on the account. There is no disambiguation
// between multiple zones.
func (p *Provider) Zone(ctx context.Context) (dns.Zone, error) {
	// Paging options are rejected here; the client pages on its own.
	resp, err := p.api.ListZonesContext(ctx)
	if err != nil {
		return dns.Zone{}, fmt.Errorf("cloudflare: list zones: %w", err)
	}
	if !resp.Success {
		return dns.Zone{}, fmt.Errorf("cloudflare: list zones: %v", resp.Errors)
	}
	if len(resp.Result) == 0 {
		return dns.Zone{}, fmt.Errorf("cloudflare: %w", dns.ErrNoZones)
	}

	z := resp.Result[0]
	p.log.V(1).Info("resolved zone", "id", z.ID, "domain", z.Name, "visible", len(resp.Result))
	return dns.Zone{ID: z.ID, Domain: z.Name}, nil
}

// List returns one page of records matching hostname and recordType.
func (p *Provider) List(ctx context.Context, zone dns.Zone, hostname, recordType string) ([]dns.Record, error) {
	rows, _, err := p.api.ListDNSRecords(ctx, cf.ZoneIdentifier(zone.ID), cf.ListDNSRecordsParams{
		Type:       recordType,
		Name:       hostname,
		ResultInfo: cf.ResultInfo{Page: 1, PerPage: listPageSize},
	})
	if err != nil {
		return nil, fmt.Errorf("cloudflare: list %s records for %s: %w", recordType, hostname, err)
	}

	records := make([]dns.Record, 0, len(rows))
	for _, r := range rows {
		rec := dns.Record{
			ID:       r.ID,
			Hostname: r.Name,
			Type:     r.Type,
			Value:    r.Content,
			TTL:      r.TTL,
		}
		if r.Proxied != nil {
			rec.Proxied = *r.Proxied
		}
		records = append(records, rec)
	}
	return records, nil
}

// Create adds a new DNS record.
func (p *Provider) Create(ctx context.Context, zone dns.Zone, record dns.Record) error {
	p.log.V(1).Info("creating record", "hostname", record.Hostname, "type", record.Type, "value", record.Value)

	created, err := p.api.CreateDNSRecord(ctx, cf.ZoneIdentifier(zone.ID), cf.CreateDNSRecordParams{
		Type:    record.Type,
		Name:    record.Hostname,
		Content: record.Value,
		TTL:     record.TTL,
		Proxied: cf.BoolPtr(record.Proxied),
	})
	if err != nil {
		return fmt.Errorf("cloudflare: create %s record %s -> %s: %w", record.Type, record.Hostname, record.Value, err)
	}

	p.log.V(1).Info("record created", "id", created.ID)
	return nil
}

// Delete removes a DNS record by ID.
func (p *Provider) Delete(ctx context.Context, zone dns.Zone, record dns.Record) error {
	if record.ID == "" {
		return fmt.Errorf("cloudflare: delete %s: record has no id", record.Hostname)
	}
	p.log.V(1).Info("deleting record", "id", record.ID, "hostname", record.Hostname)

	if err := p.api.DeleteDNSRecord(ctx, cf.ZoneIdentifier(zone.ID), record.ID); err != nil {
		return fmt.Errorf("cloudflare: delete record %s (%s): %w", record.ID, record.Hostname, err)
	}
	return nil
}
