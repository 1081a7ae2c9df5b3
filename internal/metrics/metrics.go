// Package metrics collects and exposes Prometheus metrics for the auth
// flows.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what services use to record auth events.
type Recorder interface {
	RecordLogin()
	RecordLoginFailure(reason string)
	RecordTokenIssued(grant string)
	RecordSSOHandoff(service, outcome string)
}

// Collector implements Recorder on a Prometheus registry.
type Collector struct {
	registry      *prometheus.Registry
	logins        prometheus.Counter
	loginFailures *prometheus.CounterVec
	tokensIssued  *prometheus.CounterVec
	ssoHandoffs   *prometheus.CounterVec
}

var _ Recorder = (*Collector)(nil)

// NewCollector creates a Collector with its own registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	c := &Collector{
		registry: registry,
		logins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "appsqa_auth_logins_total",
			Help: "Successful logins.",
		}),
		loginFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appsqa_auth_login_failures_total",
			Help: "Failed login attempts by reason.",
		}, []string{"reason"}),
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appsqa_auth_tokens_issued_total",
			Help: "OAuth token bundles issued by grant type.",
		}, []string{"grant"}),
		ssoHandoffs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appsqa_auth_sso_handoffs_total",
			Help: "SSO handoff attempts by service and outcome.",
		}, []string{"service", "outcome"}),
	}

	registry.MustRegister(c.logins, c.loginFailures, c.tokensIssued, c.ssoHandoffs)

	return c
}

func (c *Collector) RecordLogin() {
	c.logins.Inc()
}

func (c *Collector) RecordLoginFailure(reason string) {
	c.loginFailures.WithLabelValues(reason).Inc()
}

func (c *Collector) RecordTokenIssued(grant string) {
	c.tokensIssued.WithLabelValues(grant).Inc()
}

func (c *Collector) RecordSSOHandoff(service, outcome string) {
	c.ssoHandoffs.WithLabelValues(service, outcome).Inc()
}

// Handler serves the collected metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
