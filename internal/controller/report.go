package controller

import (
	"fmt"
	"strings"

	"github.com/bestdns/bestdns/internal/dns"
)

// Report summarises a run.
type Report struct {
	Zone    dns.Zone
	Targets []TargetReport
}

// TargetReport is the outcome for a single target.
type TargetReport struct {
	Name          string
	Hostname      string
	Limit         int
	Lines         int      // non-blank lines in the source list
	Valid         int      // IPv4 entries in the source list
	Selected      []string // entries kept after truncation, in source order
	Deleted       int
	Published     []string
	Failed        []string // one entry per failed create, duplicates included
	PublishErrors error    // aggregate of per-address failures, nil if none
}

// FormatReport returns a human-readable summary of a run.
func FormatReport(r *Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Zone %s (%s)\n", r.Zone.Domain, r.Zone.ID)

	for _, t := range r.Targets {
		fmt.Fprintf(&b, "  %s -> %s\n", t.Name, t.Hostname)
		fmt.Fprintf(&b, "    list: %d lines, %d valid, %d selected (limit %d)\n",
			t.Lines, t.Valid, len(t.Selected), t.Limit)
		fmt.Fprintf(&b, "    records: %d deleted, %d published\n", t.Deleted, len(t.Published))

		// Addresses
		for _, addr := range t.Published {
			fmt.Fprintf(&b, "      + %s\n", addr)
		}
		if len(t.Failed) > 0 {
			fmt.Fprintf(&b, "    failed:\n")
			for _, addr := range t.Failed {
				fmt.Fprintf(&b, "      ! %s\n", addr)
			}
		}
	}

	return b.String()
}
