// Package telemetry provides counters, gauges and a Prometheus text
// exposition endpoint.
package telemetry

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// Provider collects service metrics and exposes them in Prometheus text
// format. All methods are safe for concurrent use.
type Provider struct {
	serviceName    string
	serviceVersion string
	startedAt      time.Time

	mu       sync.RWMutex
	counters map[string]int64
	gauges   map[string]int64
}

// NewProvider creates a Provider for the given service identity.
func NewProvider(serviceName, serviceVersion string) *Provider {
	return &Provider{
		serviceName:    serviceName,
		serviceVersion: serviceVersion,
		startedAt:      time.Now(),
		counters:       make(map[string]int64),
		gauges:         make(map[string]int64),
	}
}

// IncCounter adds delta to the named counter. Label pairs are rendered into
// the Prometheus series name, e.g. IncCounter("sync_incidents_total", 2,
// "site", "riverview").
func (p *Provider) IncCounter(name string, delta int64, labelPairs ...string) {
	key := seriesKey(name, labelPairs)
	p.mu.Lock()
	p.counters[key] += delta
	p.mu.Unlock()
}

// SetGauge sets the named gauge to val.
func (p *Provider) SetGauge(name string, val int64, labelPairs ...string) {
	key := seriesKey(name, labelPairs)
	p.mu.Lock()
	p.gauges[key] = val
	p.mu.Unlock()
}

// Counter returns the current value of the named counter.
func (p *Provider) Counter(name string, labelPairs ...string) int64 {
	key := seriesKey(name, labelPairs)
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.counters[key]
}

func seriesKey(name string, labelPairs []string) string {
	if len(labelPairs) == 0 {
		return name
	}
	var b strings.Builder
	b.WriteString(name)
	b.WriteString("{")
	for i := 0; i+1 < len(labelPairs); i += 2 {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, "%s=%q", labelPairs[i], labelPairs[i+1])
	}
	b.WriteString("}")
	return b.String()
}

// RequestMiddleware counts HTTP requests by method and status class.
func (p *Provider) RequestMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			p.IncCounter("http_requests_total", 1,
				"method", c.Request().Method,
				"status", fmt.Sprintf("%dxx", status/100),
			)
			return err
		}
	}
}

// PrometheusHandler serves the collected metrics in Prometheus text format.
func (p *Provider) PrometheusHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		var b strings.Builder

		fmt.Fprintf(&b, "# HELP %s_uptime_seconds Seconds since service start.\n", p.serviceName)
		fmt.Fprintf(&b, "# TYPE %s_uptime_seconds gauge\n", p.serviceName)
		fmt.Fprintf(&b, "%s_uptime_seconds %d\n", p.serviceName, int64(time.Since(p.startedAt).Seconds()))

		p.mu.RLock()
		counterKeys := sortedKeys(p.counters)
		for _, k := range counterKeys {
			fmt.Fprintf(&b, "%s %d\n", k, p.counters[k])
		}
		gaugeKeys := sortedKeys(p.gauges)
		for _, k := range gaugeKeys {
			fmt.Fprintf(&b, "%s %d\n", k, p.gauges[k])
		}
		p.mu.RUnlock()

		return c.String(http.StatusOK, b.String())
	}
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Counter names recorded by the sync pipeline.
const (
	MetricIncidentsCreated = "sync_incidents_created_total"
	MetricIncidentsUpdated = "sync_incidents_updated_total"
	MetricTasksGenerated   = "sync_tasks_generated_total"
	MetricNotesMatched     = "sync_notes_matched_total"
	MetricSyncFailures     = "sync_failures_total"
	MetricRecordsRejected  = "sync_records_rejected_total"
)
