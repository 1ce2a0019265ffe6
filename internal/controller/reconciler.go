package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/bestdns/bestdns/internal/config"
	"github.com/bestdns/bestdns/internal/dns"
	"github.com/bestdns/bestdns/internal/iplist"
	"github.com/bestdns/bestdns/internal/metrics"
)

const (
	recordType = "A"
	// autoTTL asks the provider to pick the TTL.
	autoTTL = 1
)

// ErrPurgeIncomplete is returned when records are still listed after the
// configured number of delete rounds.
var ErrPurgeIncomplete = errors.New("purge incomplete")

// Fetcher downloads and filters an IP list.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*iplist.Result, error)
}

// Reconciler replaces the A records of each target hostname with the
// head of the target's IP list.
type Reconciler struct {
	Log            logr.Logger
	DNS            dns.Provider
	Fetcher        Fetcher
	Targets        []config.Target
	PurgeMaxRounds int
	Metrics        *metrics.Recorder // optional
}

// Run resolves the zone once and reconciles every target in order. The
// first zone, fetch or purge error stops the run; the partial report is
// returned with it.
func (r *Reconciler) Run(ctx context.Context) (*Report, error) {
	zone, err := r.DNS.Zone(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving zone: %w", err)
	}
	r.Log.Info("resolved zone", "domain", zone.Domain)

	report := &Report{Zone: zone}
	for _, target := range r.Targets {
		tr, err := r.Reconcile(ctx, zone, target)
		report.Targets = append(report.Targets, tr)
		if err != nil {
			return report, fmt.Errorf("target %q: %w", target.Name, err)
		}
	}

	if r.Metrics != nil {
		r.Metrics.MarkSuccess()
	}
	return report, nil
}

// Reconcile runs fetch, truncate, purge and publish for one target. Publish
// only starts once the purge has finished cleanly.
func (r *Reconciler) Reconcile(ctx context.Context, zone dns.Zone, target config.Target) (TargetReport, error) {
	tr := TargetReport{Name: target.Name, Limit: target.Limit}
	log := r.Log.WithValues("target", target.Name)

	hostname, err := dns.RecordName(target.Name, zone.Domain)
	if err != nil {
		return tr, err
	}
	tr.Hostname = hostname

	list, err := r.Fetcher.Fetch(ctx, target.URL)
	if err != nil {
		return tr, fmt.Errorf("fetching ip list: %w", err)
	}
	tr.Lines = list.Lines
	tr.Valid = len(list.Addrs)
	if r.Metrics != nil {
		r.Metrics.ObserveList(target.Name, list.Lines, len(list.Addrs))
	}

	selected := iplist.Truncate(list.Addrs, target.Limit)
	for _, addr := range selected {
		tr.Selected = append(tr.Selected, addr.String())
	}
	log.Info("fetched ip list", "url", target.URL, "valid", tr.Valid, "dropped", list.Dropped, "selected", len(tr.Selected))

	tr.Deleted, err = r.Purge(ctx, zone, target.Name, hostname)
	if err != nil {
		return tr, err
	}

	tr.Published, tr.Failed, tr.PublishErrors = r.Publish(ctx, zone, target.Name, hostname, tr.Selected)
	if err := ctx.Err(); err != nil {
		return tr, err
	}
	return tr, nil
}

// Purge lists and deletes the A records named hostname until a list comes
// back empty, at most PurgeMaxRounds times. Any list or delete error is
// returned at once; records already deleted stay deleted.
func (r *Reconciler) Purge(ctx context.Context, zone dns.Zone, target, hostname string) (int, error) {
	log := r.Log.WithValues("target", target, "hostname", hostname)
	rounds := r.PurgeMaxRounds
	if rounds < 1 {
		rounds = config.DefaultPurgeMaxRounds
	}

	deleted := 0
	for round := 0; ; round++ {
		records, err := r.DNS.List(ctx, zone, hostname, recordType)
		if err != nil {
			return deleted, fmt.Errorf("listing records: %w", err)
		}
		if len(records) == 0 {
			return deleted, nil
		}
		if round == rounds {
			return deleted, fmt.Errorf("%w: %s still has %d %s records after %d rounds",
				ErrPurgeIncomplete, hostname, len(records), recordType, rounds)
		}

		for _, rec := range records {
			if err := r.DNS.Delete(ctx, zone, rec); err != nil {
				return deleted, fmt.Errorf("deleting record: %w", err)
			}
			deleted++
			if r.Metrics != nil {
				r.Metrics.RecordDeleted(target)
			}
			log.Info("record deleted", "id", rec.ID, "value", rec.Value)
		}
	}
}

// Publish creates one A record per address. A failed create is logged and
// skipped. It returns the published and failed addresses in attempt order,
// with the failures also joined into an aggregate error.
func (r *Reconciler) Publish(ctx context.Context, zone dns.Zone, target, hostname string, addrs []string) (published, failed []string, err error) {
	log := r.Log.WithValues("target", target, "hostname", hostname)

	var errs []error
	for _, addr := range addrs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		err := r.DNS.Create(ctx, zone, dns.Record{
			Hostname: hostname,
			Type:     recordType,
			Value:    addr,
			TTL:      autoTTL,
			Proxied:  false,
		})
		if r.Metrics != nil {
			r.Metrics.RecordPublished(target, err == nil)
		}
		if err != nil {
			log.Error(err, "failed to add record", "value", addr)
			errs = append(errs, err)
			failed = append(failed, addr)
			continue
		}
		log.Info("record added", "value", addr)
		published = append(published, addr)
	}
	return published, failed, utilerrors.NewAggregate(errs)
}
