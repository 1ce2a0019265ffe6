// Package metrics records per-target run statistics and pushes them to a
// Prometheus Pushgateway at the end of a run.
package metrics

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Recorder holds the metrics of a single run in its own registry.
type Recorder struct {
	Registry *prometheus.Registry

	listLines    *prometheus.GaugeVec
	validIPs     *prometheus.GaugeVec
	deleted      *prometheus.CounterVec
	published    *prometheus.CounterVec
	publishFails *prometheus.CounterVec
	lastSuccess  prometheus.Gauge

	successOnce sync.Once
	succeeded   bool
}

// NewRecorder creates a Recorder with all collectors registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		Registry: prometheus.NewRegistry(),
		listLines: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bestdns_list_lines",
			Help: "Non-blank lines in the last downloaded IP list.",
		}, []string{"target"}),
		validIPs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bestdns_list_valid_ips",
			Help: "IPv4 entries in the last downloaded IP list.",
		}, []string{"target"}),
		deleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bestdns_records_deleted_total",
			Help: "A records deleted before publishing.",
		}, []string{"target"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bestdns_records_published_total",
			Help: "A records created.",
		}, []string{"target"}),
		publishFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bestdns_record_publish_failures_total",
			Help: "A record creations that failed.",
		}, []string{"target"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bestdns_last_success_timestamp_seconds",
			Help: "Unix time of the last run that finished without a fatal error.",
		}),
	}
	// lastSuccess joins the registry only in MarkSuccess.
	r.Registry.MustRegister(r.listLines, r.validIPs, r.deleted, r.published, r.publishFails)
	return r
}

// ObserveList records the size of a downloaded list.
func (r *Recorder) ObserveList(target string, lines, valid int) {
	r.listLines.WithLabelValues(target).Set(float64(lines))
	r.validIPs.WithLabelValues(target).Set(float64(valid))
}

// RecordDeleted counts one deleted record.
func (r *Recorder) RecordDeleted(target string) {
	r.deleted.WithLabelValues(target).Inc()
}

// RecordPublished counts one publish attempt.
func (r *Recorder) RecordPublished(target string, ok bool) {
	if ok {
		r.published.WithLabelValues(target).Inc()
		return
	}
	r.publishFails.WithLabelValues(target).Inc()
}

// MarkSuccess registers the last-success gauge and stamps it with the
// current time.
func (r *Recorder) MarkSuccess() {
	r.successOnce.Do(func() {
		r.Registry.MustRegister(r.lastSuccess)
		r.succeeded = true
	})
	r.lastSuccess.SetToCurrentTime()
}

// Push sends the registry to the Pushgateway at url under job. A successful
// run replaces the job's group (PUT); a failed run only adds its own series
// (POST) so the previous last-success timestamp survives.
func (r *Recorder) Push(ctx context.Context, url, job string) error {
	pusher := push.New(url, job).Gatherer(r.Registry)

	var err error
	if r.succeeded {
		err = pusher.PushContext(ctx)
	} else {
		err = pusher.AddContext(ctx)
	}
	if err != nil {
		return fmt.Errorf("metrics: push to %s: %w", url, err)
	}
	return nil
}
